// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fetcher

import (
	"context"
	"encoding/binary"
	"os"
	"sync/atomic"

	"github.com/decred/berryscan/canvas"
	"github.com/syndtr/goleveldb/leveldb"
)

// Cache is a Fetcher that keeps every successfully fetched board in a
// leveldb database keyed by height.  Boards at a given height never change
// once the ledger has produced them, so entries never expire.  Failures are
// not cached.
type Cache struct {
	db      *leveldb.DB
	fetcher Fetcher

	hits   uint64 // atomic
	misses uint64 // atomic
}

var _ Fetcher = (*Cache)(nil)

// NewCache opens or creates the cache database at path in front of f.  The
// caller is responsible for calling Close.
func NewCache(path string, f Fetcher) (*Cache, error) {
	err := os.MkdirAll(path, 0700)
	if err != nil {
		return nil, err
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db, fetcher: f}, nil
}

// heightKey returns the big endian height so that iteration order matches
// height order.
func heightKey(height uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], height)
	return k[:]
}

// lookup returns the cached board at height, if any.  Corrupt entries are
// logged and treated as misses.
func (c *Cache) lookup(height uint64) *canvas.Board {
	payload, err := c.db.Get(heightKey(height), nil)
	if err == leveldb.ErrNotFound {
		return nil
	}
	if err != nil {
		log.Errorf("Cache get %v: %v", height, err)
		return nil
	}
	var b canvas.Board
	if err := b.UnmarshalBinary(payload); err != nil {
		log.Errorf("Cache entry %v corrupt: %v", height, err)
		return nil
	}
	return &b
}

// FetchBoard returns the cached board at height or fetches and caches it.
func (c *Cache) FetchBoard(ctx context.Context, height uint64) (*canvas.Board, error) {
	if b := c.lookup(height); b != nil {
		atomic.AddUint64(&c.hits, 1)
		log.Tracef("Cache hit %v", height)
		return b, nil
	}
	atomic.AddUint64(&c.misses, 1)

	b, err := c.fetcher.FetchBoard(ctx, height)
	if err != nil {
		return nil, err
	}

	payload, err := b.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := c.db.Put(heightKey(height), payload, nil); err != nil {
		// The board is still good, only the cache is unhappy.
		log.Errorf("Cache put %v: %v", height, err)
	}

	return b, nil
}

// Stats returns the number of cache hits and misses so far.
func (c *Cache) Stats() (uint64, uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

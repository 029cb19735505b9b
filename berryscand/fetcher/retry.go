// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/decred/berryscan/canvas"
)

const (
	// DefaultMaxAttempts is the number of fetch attempts per height.
	DefaultMaxAttempts = 5

	// DefaultBackoff is the sleep after the first failed attempt.  It
	// doubles on every following attempt.
	DefaultBackoff = time.Second
)

// HeightSource reports the height of the latest final block.
type HeightSource interface {
	LatestHeight(ctx context.Context) (uint64, error)
}

// Retrier wraps a Fetcher with bounded retries and exponential backoff.  Every
// failure ends up as a plain "no board" result.
type Retrier struct {
	fetcher     Fetcher
	maxAttempts int
	backoff     time.Duration

	// sleep waits for d or until ctx is done.  Overridden during tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier returns a Retrier around f.  Zero values select the defaults.
func NewRetrier(f Fetcher, maxAttempts int, backoff time.Duration) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Retrier{
		fetcher:     f,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		sleep:       sleepCtx,
	}
}

// sleepCtx waits for d.  It returns early with the context error when ctx is
// cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// newBackOff returns the wait schedule for one operation: r.backoff doubling
// after every failure, without jitter or an elapsed time limit.  It stops as
// soon as ctx is done.
func (r *Retrier) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.backoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = r.backoff << uint(r.maxAttempts)
	if b.MaxInterval < r.backoff {
		b.MaxInterval = time.Duration(1<<63 - 1)
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// retry runs op until it succeeds, reports ErrNotFound, ctx is done or
// r.maxAttempts attempts have failed.  It returns the last error.
func (r *Retrier) retry(ctx context.Context, what string, op func() error) error {
	bo := r.newBackOff(ctx)

	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = op()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) {
			log.Debugf("%v: %v", what, err)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		log.Errorf("%v attempt %v/%v: %v", what, attempt, r.maxAttempts,
			err)
		if serr := r.sleep(ctx, wait); serr != nil {
			return serr
		}
	}

	log.Warnf("%v: giving up after %v attempts", what, r.maxAttempts)
	return err
}

// Fetch returns the board at height.  The boolean is false when no board
// could be obtained: the ledger reported no state at that height, all
// attempts failed, or ctx was cancelled.
func (r *Retrier) Fetch(ctx context.Context, height uint64) (*canvas.Board, bool) {
	var board *canvas.Board
	err := r.retry(ctx, fmt.Sprintf("Fetch %v", height), func() error {
		var err error
		board, err = r.fetcher.FetchBoard(ctx, height)
		return err
	})
	if err != nil {
		return nil, false
	}
	return board, true
}

// LatestHeight asks src for the latest final height with the same attempt
// bound and backoff as Fetch.
func (r *Retrier) LatestHeight(ctx context.Context, src HeightSource) (uint64, error) {
	var height uint64
	err := r.retry(ctx, "LatestHeight", func() error {
		var err error
		height, err = src.LatestHeight(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return height, nil
}

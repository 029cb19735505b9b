// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package fetcher reads Berry Club boards from a NEAR JSON-RPC endpoint.
package fetcher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	v1 "github.com/decred/berryscan/api/v1"
	"github.com/decred/berryscan/canvas"
)

const (
	// DefaultTimeout is the default per request timeout.
	DefaultTimeout = 30 * time.Second

	// maxResponseSize clamps how much of a response body is read.  A full
	// board is a little over 40KB once base64 encoded.
	maxResponseSize = 4 << 20
)

var (
	// ErrNotFound is returned when the ledger has no queryable state at
	// the requested height, either because the height is beyond the tip
	// or because it was pruned.  Retrying does not help.
	ErrNotFound = errors.New("state not found")

	// ErrTransient is returned for network failures, undecodable
	// responses and any other condition that may go away on retry.
	ErrTransient = errors.New("transient failure")
)

// Fetcher reads the board at a ledger height.
type Fetcher interface {
	FetchBoard(ctx context.Context, height uint64) (*canvas.Board, error)
}

// Client is a Fetcher that talks to a NEAR JSON-RPC endpoint.  Every call is
// a single round trip; retries are the caller's business.
type Client struct {
	url          string
	accountID    string
	prefixBase64 string
	prefix       []byte
	timeout      time.Duration
	httpClient   *http.Client

	id uint64 // Request id, atomic
}

var _ Fetcher = (*Client)(nil)

// New returns a client for the RPC endpoint at url that reads the rows stored
// under keyPrefix (base64) in the storage of accountID.
func New(url, accountID, keyPrefix string, timeout time.Duration) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("invalid rpc url")
	}
	if !v1.RegexpAccountID.MatchString(accountID) {
		return nil, fmt.Errorf("invalid account id: %v", accountID)
	}
	prefix, err := base64.StdEncoding.DecodeString(keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("invalid key prefix %v: %v", keyPrefix,
			err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		url:          url,
		accountID:    accountID,
		prefixBase64: keyPrefix,
		prefix:       prefix,
		timeout:      timeout,
		httpClient:   &http.Client{},
	}, nil
}

func transientf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %v", ErrTransient, fmt.Sprintf(format, args...))
}

// isNotFound reports whether an RPC error says the requested block does not
// exist on the server.
func isNotFound(e *v1.RPCError) bool {
	if e.Cause != nil {
		switch e.Cause.Name {
		case v1.CauseUnknownBlock, v1.CauseGarbageCollectedBlock:
			return true
		}
	}
	text := strings.ToLower(e.Message + " " + e.DataString())
	return strings.Contains(text, "not found")
}

// call performs a single JSON-RPC round trip and decodes the result into
// result.
func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	id := atomic.AddUint64(&c.id, 1)
	b, err := json.Marshal(v1.Request{
		ID:      strconv.FormatUint(id, 10),
		JSONRPC: v1.JSONRPCVersion,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url,
		bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	log.Tracef("%v %v: %s", method, c.url, b)

	r, err := c.httpClient.Do(req)
	if err != nil {
		return transientf("%v: %v", method, err)
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxResponseSize))
	if err != nil {
		return transientf("%v: read body: %v", method, err)
	}

	var reply v1.Response
	if err := json.Unmarshal(body, &reply); err != nil {
		if r.StatusCode != http.StatusOK {
			return transientf("%v: %v", method, r.Status)
		}
		return transientf("%v: could not decode response: %v", method,
			err)
	}
	if reply.Error != nil {
		if isNotFound(reply.Error) {
			return fmt.Errorf("%w: %w", ErrNotFound, reply.Error)
		}
		return fmt.Errorf("%w: %w", ErrTransient, reply.Error)
	}
	if r.StatusCode != http.StatusOK {
		return transientf("%v: %v", method, r.Status)
	}
	if len(reply.Result) == 0 || string(reply.Result) == "null" {
		return transientf("%v: empty result", method)
	}
	if err := json.Unmarshal(reply.Result, result); err != nil {
		return transientf("%v: could not decode result: %v", method,
			err)
	}

	return nil
}

// decodeBoard converts the storage entries of a view_state result into a
// board.  Rows that are absent from the result keep default pixels.
func (c *Client) decodeBoard(height uint64, vs *v1.ViewStateResult) (*canvas.Board, error) {
	if vs.BlockHeight != 0 {
		height = vs.BlockHeight
	}
	board := canvas.NewBoard(height)
	for _, kv := range vs.Values {
		key, err := base64.StdEncoding.DecodeString(kv.Key)
		if err != nil {
			return nil, transientf("invalid key %v: %v", kv.Key, err)
		}
		if len(key) != len(c.prefix)+8 || !bytes.HasPrefix(key, c.prefix) {
			return nil, transientf("unexpected key %x", key)
		}
		row := binary.LittleEndian.Uint64(key[len(c.prefix):])
		if row >= canvas.Height {
			return nil, transientf("row out of range: %v", row)
		}
		value, err := base64.StdEncoding.DecodeString(kv.Value)
		if err != nil {
			return nil, transientf("invalid value for row %v: %v",
				row, err)
		}
		pixels, err := canvas.DecodeRow(value)
		if err != nil {
			return nil, transientf("invalid row %v: %v", row, err)
		}
		board.Pixels[row] = pixels
	}
	return board, nil
}

// FetchBoard returns the board as stored at the provided height.  Errors
// wrap either ErrNotFound or ErrTransient.
func (c *Client) FetchBoard(ctx context.Context, height uint64) (*canvas.Board, error) {
	var vs v1.ViewStateResult
	err := c.call(ctx, v1.MethodQuery, v1.ViewStateParams{
		RequestType:  v1.RequestTypeViewState,
		AccountID:    c.accountID,
		BlockID:      height,
		PrefixBase64: c.prefixBase64,
	}, &vs)
	if err != nil {
		return nil, err
	}

	board, err := c.decodeBoard(height, &vs)
	if err != nil {
		return nil, err
	}
	log.Debugf("Fetched board %v: %v rows", board.BlockHeight,
		len(vs.Values))

	return board, nil
}

// LatestHeight returns the height of the latest final block.
func (c *Client) LatestHeight(ctx context.Context) (uint64, error) {
	var br v1.BlockResult
	err := c.call(ctx, v1.MethodBlock, v1.BlockParams{
		Finality: v1.FinalityFinal,
	}, &br)
	if err != nil {
		return 0, err
	}
	if br.Header.Height == 0 {
		return 0, transientf("block: missing header height")
	}
	return br.Header.Height, nil
}

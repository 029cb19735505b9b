// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fetcher

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	v1 "github.com/decred/berryscan/api/v1"
	"github.com/decred/berryscan/canvas"
)

// rowItem returns the storage entry for row as the contract stores it.
func rowItem(row uint64, pixels *[canvas.Width]canvas.Pixel) v1.StateItem {
	key := make([]byte, 9)
	key[0] = 'p'
	binary.LittleEndian.PutUint64(key[1:], row)
	return v1.StateItem{
		Key:   base64.StdEncoding.EncodeToString(key),
		Value: base64.StdEncoding.EncodeToString(canvas.AppendRow(nil, pixels)),
	}
}

// newServer returns a test RPC server that answers every request with the
// output of reply.
func newServer(t *testing.T, reply func(req v1.Request) (int, interface{})) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read request: %v", err)
			return
		}
		var req v1.Request
		if err := json.Unmarshal(b, &req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		status, body := reply(req)
		w.WriteHeader(status)
		switch v := body.(type) {
		case string:
			w.Write([]byte(v))
		default:
			json.NewEncoder(w).Encode(v)
		}
	}))
}

func result(t *testing.T, v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newTestClient(t *testing.T, url string) *Client {
	c, err := New(url, v1.DefaultAccountID, v1.DefaultKeyPrefix, 0)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNew(t *testing.T) {
	if _, err := New("", v1.DefaultAccountID, v1.DefaultKeyPrefix, 0); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := New("http://x", "Not Valid", v1.DefaultKeyPrefix, 0); err == nil {
		t.Fatal("expected error for invalid account")
	}
	if _, err := New("http://x", v1.DefaultAccountID, "*", 0); err == nil {
		t.Fatal("expected error for invalid prefix")
	}
}

func TestFetchBoard(t *testing.T) {
	var top, bottom [canvas.Width]canvas.Pixel
	top[0] = canvas.Pixel{Color: 0xff0000, OwnerID: 7}
	bottom[canvas.Width-1] = canvas.Pixel{Color: 0x0000ff, OwnerID: 9}

	s := newServer(t, func(req v1.Request) (int, interface{}) {
		if req.Method != v1.MethodQuery || req.JSONRPC != "2.0" {
			t.Errorf("unexpected request %+v", req)
		}
		params, ok := req.Params.(map[string]interface{})
		if !ok {
			t.Errorf("unexpected params %T", req.Params)
		} else {
			if params["request_type"] != v1.RequestTypeViewState ||
				params["account_id"] != v1.DefaultAccountID ||
				params["prefix_base64"] != v1.DefaultKeyPrefix ||
				params["block_id"] != float64(160) {
				t.Errorf("unexpected params %v", params)
			}
		}
		return http.StatusOK, v1.Response{
			ID:      req.ID,
			JSONRPC: v1.JSONRPCVersion,
			Result: result(t, v1.ViewStateResult{
				BlockHeight: 160,
				Values: []v1.StateItem{
					rowItem(0, &top),
					rowItem(canvas.Height-1, &bottom),
				},
			}),
		}
	})
	defer s.Close()

	b, err := newTestClient(t, s.URL).FetchBoard(context.Background(), 160)
	if err != nil {
		t.Fatal(err)
	}
	if b.BlockHeight != 160 {
		t.Fatalf("height: got %v want 160", b.BlockHeight)
	}
	if b.At(0, 0) != top[0] {
		t.Fatalf("pixel (0,0): got %+v", b.At(0, 0))
	}
	if b.At(canvas.Width-1, canvas.Height-1) != bottom[canvas.Width-1] {
		t.Fatalf("last pixel: got %+v", b.At(canvas.Width-1,
			canvas.Height-1))
	}
	want := canvas.NewBoard(160)
	want.Pixels[0] = top
	want.Pixels[canvas.Height-1] = bottom
	if !canvas.StateEqual(want, b) {
		t.Fatalf("unexpected pixels, %v differ", canvas.Diff(want, b))
	}
}

func TestFetchBoardMissingHeight(t *testing.T) {
	s := newServer(t, func(req v1.Request) (int, interface{}) {
		return http.StatusOK, v1.Response{
			ID:     req.ID,
			Result: result(t, v1.ViewStateResult{}),
		}
	})
	defer s.Close()

	b, err := newTestClient(t, s.URL).FetchBoard(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if b.BlockHeight != 42 {
		t.Fatalf("height: got %v want 42", b.BlockHeight)
	}
}

func TestFetchBoardNotFound(t *testing.T) {
	replies := []*v1.RPCError{{
		Code:    -32000,
		Message: "Server error",
		Data:    json.RawMessage(`"DB Not Found Error: BLOCK HEIGHT: 1 \n Cause: Unknown"`),
	}, {
		Name:    "HANDLER_ERROR",
		Cause:   &v1.ErrorCause{Name: v1.CauseUnknownBlock},
		Code:    -32000,
		Message: "Server error",
	}, {
		Name:    "HANDLER_ERROR",
		Cause:   &v1.ErrorCause{Name: v1.CauseGarbageCollectedBlock},
		Code:    -32000,
		Message: "Server error",
	}}

	for i, rerr := range replies {
		rerr := rerr
		s := newServer(t, func(req v1.Request) (int, interface{}) {
			return http.StatusOK, v1.Response{ID: req.ID, Error: rerr}
		})
		_, err := newTestClient(t, s.URL).FetchBoard(context.Background(), 1)
		s.Close()
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("%v: got %v want %v", i, err, ErrNotFound)
		}
		var e *v1.RPCError
		if !errors.As(err, &e) {
			t.Fatalf("%v: rpc error not wrapped: %v", i, err)
		}
	}
}

func TestFetchBoardTransient(t *testing.T) {
	var row [canvas.Width]canvas.Pixel
	badKey := rowItem(0, &row)
	badKey.Key = base64.StdEncoding.EncodeToString([]byte("q\x00\x00\x00\x00\x00\x00\x00\x00"))
	shortKey := rowItem(0, &row)
	shortKey.Key = base64.StdEncoding.EncodeToString([]byte("p\x01"))
	badValue := rowItem(0, &row)
	badValue.Value = base64.StdEncoding.EncodeToString([]byte{1, 0, 0, 0})
	notBase64 := rowItem(0, &row)
	notBase64.Value = "***"

	tests := []struct {
		name   string
		status int
		body   func(id string) interface{}
	}{
		{"server error", http.StatusInternalServerError,
			func(string) interface{} { return "boom" }},
		{"garbage", http.StatusOK,
			func(string) interface{} { return "{" }},
		{"rate limited", http.StatusTooManyRequests,
			func(string) interface{} { return "slow down" }},
		{"null result", http.StatusOK,
			func(id string) interface{} { return v1.Response{ID: id} }},
		{"other rpc error", http.StatusOK,
			func(id string) interface{} {
				return v1.Response{ID: id, Error: &v1.RPCError{
					Code:    -32000,
					Message: "Server error",
					Data:    json.RawMessage(`"account berryclub.ek.near does not exist"`),
				}}
			}},
		{"wrong result schema", http.StatusOK,
			func(id string) interface{} {
				return v1.Response{ID: id,
					Result: json.RawMessage(`{"values":"nope"}`)}
			}},
		{"row out of range", http.StatusOK,
			func(id string) interface{} {
				return v1.Response{ID: id, Result: result(t,
					v1.ViewStateResult{Values: []v1.StateItem{
						rowItem(canvas.Height, &row)}})}
			}},
		{"wrong prefix", http.StatusOK,
			func(id string) interface{} {
				return v1.Response{ID: id, Result: result(t,
					v1.ViewStateResult{Values: []v1.StateItem{
						badKey}})}
			}},
		{"short key", http.StatusOK,
			func(id string) interface{} {
				return v1.Response{ID: id, Result: result(t,
					v1.ViewStateResult{Values: []v1.StateItem{
						shortKey}})}
			}},
		{"bad row", http.StatusOK,
			func(id string) interface{} {
				return v1.Response{ID: id, Result: result(t,
					v1.ViewStateResult{Values: []v1.StateItem{
						badValue}})}
			}},
		{"bad base64", http.StatusOK,
			func(id string) interface{} {
				return v1.Response{ID: id, Result: result(t,
					v1.ViewStateResult{Values: []v1.StateItem{
						notBase64}})}
			}},
	}

	for _, test := range tests {
		test := test
		s := newServer(t, func(req v1.Request) (int, interface{}) {
			return test.status, test.body(req.ID)
		})
		_, err := newTestClient(t, s.URL).FetchBoard(context.Background(), 1)
		s.Close()
		if !errors.Is(err, ErrTransient) {
			t.Errorf("%v: got %v want %v", test.name, err,
				ErrTransient)
		}
	}
}

func TestFetchBoardConnectionRefused(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	url := s.URL
	s.Close()

	_, err := newTestClient(t, url).FetchBoard(context.Background(), 1)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("got %v want %v", err, ErrTransient)
	}
}

func TestLatestHeight(t *testing.T) {
	s := newServer(t, func(req v1.Request) (int, interface{}) {
		if req.Method != v1.MethodBlock {
			t.Errorf("unexpected method %v", req.Method)
		}
		return http.StatusOK, v1.Response{
			ID: req.ID,
			Result: result(t, v1.BlockResult{
				Header: v1.BlockHeader{Height: 27337102},
			}),
		}
	})
	defer s.Close()

	h, err := newTestClient(t, s.URL).LatestHeight(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if h != 27337102 {
		t.Fatalf("got %v want 27337102", h)
	}
}

// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package v1

import (
	"encoding/json"
	"fmt"
	"regexp"
)

const (
	// APIVersion defines the version number for this code.
	APIVersion = 1

	// JSONRPCVersion is the JSON-RPC protocol version spoken to the
	// ledger RPC endpoint.
	JSONRPCVersion = "2.0"

	// MethodQuery is the RPC method used to read contract state.
	MethodQuery = "query"

	// MethodBlock is the RPC method used to read block headers.
	MethodBlock = "block"

	// RequestTypeViewState selects raw contract storage in a query.
	RequestTypeViewState = "view_state"

	// FinalityFinal asks for the latest final block.
	FinalityFinal = "final"

	// DefaultRPCURL is the default mainnet archival RPC endpoint.
	DefaultRPCURL = "https://archival-rpc.mainnet.near.org/"

	// DefaultAccountID is the Berry Club contract account.
	DefaultAccountID = "berryclub.ek.near"

	// DefaultKeyPrefix is the base64 encoded storage prefix of board
	// rows ("p").
	DefaultKeyPrefix = "cA=="

	// DefaultGenesisHeight is the height of the first board.
	DefaultGenesisHeight = 21793900

	// DefaultListenPort is the default status API port.
	DefaultListenPort = "49160"

	// Error causes reported by the RPC server when the requested block
	// is unknown or was pruned.
	CauseUnknownBlock          = "UNKNOWN_BLOCK"
	CauseGarbageCollectedBlock = "GARBAGE_COLLECTED_BLOCK"
)

var (
	// RoutePrefix is the route url prefix for this version.
	RoutePrefix = fmt.Sprintf("/v%v", APIVersion)

	// StatusRoute defines the API route for retrieving the scanner
	// status.
	StatusRoute = RoutePrefix + "/status"

	// BoardRoute defines the API route for retrieving the last recorded
	// board.
	BoardRoute = RoutePrefix + "/board"

	// RegexpAccountID is the valid text representation of an account.
	RegexpAccountID = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)

	// RegexpBase64 is the valid text representation of a padded base64
	// string.
	RegexpBase64 = regexp.MustCompile(`^([A-Za-z0-9+/]{4})*([A-Za-z0-9+/]{2}==|[A-Za-z0-9+/]{3}=)?$`)
)

// Request is a JSON-RPC request envelope.
type Request struct {
	ID      string      `json:"id"`
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// Response is a JSON-RPC response envelope.  Exactly one of Result and
// Error is set by a well behaved server.
type Response struct {
	ID      string          `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// ErrorCause is the structured cause of an RPC error.
type ErrorCause struct {
	Name string          `json:"name"`
	Info json.RawMessage `json:"info,omitempty"`
}

// RPCError is the application level error object returned by the RPC
// server.  Data is a string on older servers and an object on newer ones.
type RPCError struct {
	Name    string          `json:"name,omitempty"`
	Cause   *ErrorCause     `json:"cause,omitempty"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error satisfies the error interface.
func (e *RPCError) Error() string {
	s := fmt.Sprintf("rpc error %v: %v", e.Code, e.Message)
	if e.Cause != nil && e.Cause.Name != "" {
		s += " (" + e.Cause.Name + ")"
	}
	if len(e.Data) != 0 {
		s += ": " + e.DataString()
	}
	return s
}

// DataString returns Data as text.  String data is unquoted, anything else
// is returned verbatim.
func (e *RPCError) DataString() string {
	var s string
	if err := json.Unmarshal(e.Data, &s); err == nil {
		return s
	}
	return string(e.Data)
}

// ViewStateParams are the parameters of a view_state query.
type ViewStateParams struct {
	RequestType  string `json:"request_type"`
	AccountID    string `json:"account_id"`
	BlockID      uint64 `json:"block_id"`
	PrefixBase64 string `json:"prefix_base64"`
}

// StateItem is a single contract storage entry.  Key and Value are base64.
type StateItem struct {
	Key   string   `json:"key"`
	Value string   `json:"value"`
	Proof []string `json:"proof,omitempty"`
}

// ViewStateResult is the result of a view_state query.
type ViewStateResult struct {
	BlockHash   string      `json:"block_hash"`
	BlockHeight uint64      `json:"block_height"`
	Proof       []string    `json:"proof,omitempty"`
	Values      []StateItem `json:"values"`
}

// BlockParams are the parameters of a block request.
type BlockParams struct {
	Finality string `json:"finality"`
}

// BlockHeader is the subset of a block header used by the scanner.
type BlockHeader struct {
	Height    uint64 `json:"height"`
	Hash      string `json:"hash"`
	Timestamp uint64 `json:"timestamp"`
}

// BlockResult is the result of a block request.
type BlockResult struct {
	Header BlockHeader `json:"header"`
}

// StatusReply is returned by the status route.
type StatusReply struct {
	Version           string `json:"version"`
	Running           bool   `json:"running"`
	GenesisHeight     uint64 `json:"genesisheight"`
	FinalHeight       uint64 `json:"finalheight"`
	Cursor            uint64 `json:"cursor"`
	LastScannedHeight uint64 `json:"lastscannedheight"`
	Boards            int    `json:"boards"`
	LastChangeHeight  uint64 `json:"lastchangeheight"`
	JumpProbes        uint64 `json:"jumpprobes"`
	JumpSkips         uint64 `json:"jumpskips"`
	LinearFetches     uint64 `json:"linearfetches"`
	Unavailable       uint64 `json:"unavailable"`
}

// BoardReply is returned by the board route.  Pixels are row major.
type BoardReply struct {
	Index       int        `json:"index"`
	BlockHeight uint64     `json:"blockheight"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Colors      [][]uint32 `json:"colors"`
	Owners      [][]uint32 `json:"owners"`
}

// ErrorReply is returned by the status API on failure.
type ErrorReply struct {
	Error string `json:"error"`
}

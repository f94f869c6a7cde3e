package rpcfetch

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Package errors.
var (
	// ErrNoEndpoints is returned when no RPC endpoints are available.
	ErrNoEndpoints = errors.New("no RPC endpoints available")

	// ErrClosed is returned when operating on a closed watcher.
	ErrClosed = errors.New("watcher is closed")

	// ErrAlreadyRunning is returned when Start is called on a running watcher.
	ErrAlreadyRunning = errors.New("watcher is already running")

	// ErrAccountNotFound is returned when the node has no such account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound is returned when the node has no record of a signature.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrMatchNotFound is returned when no match exists at the requested address.
	ErrMatchNotFound = errors.New("match not found")

	// ErrPlatformNotInitialized is returned before InitializePlatform has run.
	ErrPlatformNotInitialized = errors.New("platform is not initialized")
)

// JSON-RPC error codes the client reacts to.
const (
	codePreflightFailure = -32002
	codeNodeUnhealthy    = -32005
)

// RPCError represents a JSON-RPC error response.
type RPCError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// TransactionFailure is the data attached to a sendTransaction error when
// the transaction executed and failed.
type TransactionFailure struct {
	Signature     string          `json:"signature"`
	Err           json.RawMessage `json:"err"`
	Logs          []string        `json:"logs"`
	UnitsConsumed uint64          `json:"unitsConsumed"`
}

// CustomCode extracts the program error code from
// {"InstructionError":[index,{"Custom":code}]}.
func (f *TransactionFailure) CustomCode() (uint32, bool) {
	var ie struct {
		InstructionError []json.RawMessage
	}
	if err := json.Unmarshal(f.Err, &ie); err != nil || len(ie.InstructionError) != 2 {
		return 0, false
	}
	var custom struct {
		Custom *uint32
	}
	if err := json.Unmarshal(ie.InstructionError[1], &custom); err != nil || custom.Custom == nil {
		return 0, false
	}
	return *custom.Custom, true
}

// AsTransactionFailure returns the failure details carried by err, if any.
func AsTransactionFailure(err error) (*TransactionFailure, bool) {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != codePreflightFailure || len(rpcErr.Data) == 0 {
		return nil, false
	}
	var f TransactionFailure
	if json.Unmarshal(rpcErr.Data, &f) != nil || f.Signature == "" {
		return nil, false
	}
	return &f, true
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrClosed) || errors.Is(err, ErrMatchNotFound) {
		return false
	}

	// The node answered; only an unhealthy node is worth asking again.
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == codeNodeUnhealthy
	}

	// Transport errors are potentially transient.
	return true
}

package rpc

import (
	"errors"
	"fmt"

	"github.com/fortiblox/X1-Duel/pkg/runtime"
)

// JSON-RPC 2.0 standard error codes.
const (
	// ParseError indicates invalid JSON was received.
	ParseError = -32700

	// InvalidRequest indicates the JSON sent is not a valid Request object.
	InvalidRequest = -32600

	// MethodNotFound indicates the method does not exist.
	MethodNotFound = -32601

	// InvalidParams indicates invalid method parameters.
	InvalidParams = -32602

	// InternalError indicates an internal JSON-RPC error.
	InternalError = -32603
)

// Server error codes, numbered like the Solana RPC.
const (
	// SendTransactionPreflightFailure indicates the submitted transaction failed.
	SendTransactionPreflightFailure = -32002

	// TransactionSignatureVerificationFailure indicates signature verification failed.
	TransactionSignatureVerificationFailure = -32003

	// NodeUnhealthy indicates the node is unhealthy.
	NodeUnhealthy = -32005

	// TransactionHistoryNotAvailable indicates the history index is disabled.
	TransactionHistoryNotAvailable = -32011

	// ScanError indicates a scan/iteration error.
	ScanError = -32012

	// MinContextSlotNotReached indicates min context slot not yet reached.
	MinContextSlotNotReached = -32016

	// AirdropUnavailable indicates the faucet is disabled or the request exceeds its cap.
	AirdropUnavailable = -32040
)

// Common error messages.
var (
	ErrParseError               = NewRPCError(ParseError, "Parse error")
	ErrInvalidRequest           = NewRPCError(InvalidRequest, "Invalid Request")
	ErrMethodNotFound           = NewRPCError(MethodNotFound, "Method not found")
	ErrInvalidParams            = NewRPCError(InvalidParams, "Invalid params")
	ErrInternalError            = NewRPCError(InternalError, "Internal error")
	ErrNodeUnhealthy            = NewRPCError(NodeUnhealthy, "Node is unhealthy")
	ErrHistoryNotAvailable      = NewRPCError(TransactionHistoryNotAvailable, "Match history is not enabled on this node")
	ErrAirdropDisabled          = NewRPCError(AirdropUnavailable, "Airdrops are disabled on this node")
	ErrMinContextSlotNotReached = NewRPCError(MinContextSlotNotReached, "Minimum context slot has not been reached")
)

// NewRPCError creates a new RPC error.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
	}
}

// NewRPCErrorWithData creates a new RPC error with additional data.
func NewRPCErrorWithData(code int, message string, data interface{}) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("RPC error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// InvalidParamsError creates an invalid params error with a custom message.
func InvalidParamsError(msg string) *RPCError {
	return NewRPCError(InvalidParams, msg)
}

// InvalidParamsErrorf creates an invalid params error with a formatted message.
func InvalidParamsErrorf(format string, args ...interface{}) *RPCError {
	return NewRPCError(InvalidParams, fmt.Sprintf(format, args...))
}

// InternalServerErrorf creates an internal server error with a formatted message.
func InternalServerErrorf(format string, args ...interface{}) *RPCError {
	return NewRPCError(InternalError, fmt.Sprintf(format, args...))
}

// MinContextSlotError creates an error for min context slot not reached.
func MinContextSlotError(minSlot, currentSlot uint64) *RPCError {
	return NewRPCErrorWithData(MinContextSlotNotReached,
		fmt.Sprintf("Minimum context slot %d has not been reached, current slot is %d", minSlot, currentSlot),
		map[string]uint64{"minSlot": minSlot, "currentSlot": currentSlot})
}

// TransactionErrorJSON renders a receipt error the way Solana clients expect:
// {"InstructionError":[index,{"Custom":code}]} for program errors,
// {"InstructionError":[index,"message"]} for other instruction failures and
// a bare message for transaction-level failures.
func TransactionErrorJSON(te *runtime.TransactionError) interface{} {
	if te == nil {
		return nil
	}
	if te.InstructionIndex < 0 {
		return te.Message
	}
	if te.Code != nil {
		return map[string]interface{}{
			"InstructionError": []interface{}{te.InstructionIndex, map[string]uint32{"Custom": *te.Code}},
		}
	}
	return map[string]interface{}{
		"InstructionError": []interface{}{te.InstructionIndex, te.Message},
	}
}

// submitError maps an executor rejection to an RPC error.
func submitError(err error) *RPCError {
	switch {
	case errors.Is(err, runtime.ErrInvalidSignature),
		errors.Is(err, runtime.ErrMissingSignature),
		errors.Is(err, runtime.ErrTooManySignatures):
		return NewRPCError(TransactionSignatureVerificationFailure, err.Error())
	case errors.Is(err, runtime.ErrMalformedTransaction),
		errors.Is(err, runtime.ErrNoInstructions),
		errors.Is(err, runtime.ErrTransactionExpired),
		errors.Is(err, runtime.ErrAlreadyProcessed),
		errors.Is(err, runtime.ErrProgramWritable):
		return NewRPCError(SendTransactionPreflightFailure, err.Error())
	default:
		return InternalServerErrorf("execute transaction: %v", err)
	}
}

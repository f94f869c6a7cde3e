package runtime

import (
	"errors"
	"fmt"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/svm"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/duel"
)

// TransactionError describes why a transaction was rolled back.
type TransactionError struct {
	// InstructionIndex is the failing instruction, or -1 for transaction-level failures.
	InstructionIndex int `json:"instructionIndex"`

	// Code is set for program errors that carry a custom error number.
	Code *uint32 `json:"code,omitempty"`

	// Name is the error name for program errors.
	Name string `json:"name,omitempty"`

	Message string `json:"message"`
}

func (e *TransactionError) Error() string {
	if e.InstructionIndex < 0 {
		return e.Message
	}
	return fmt.Sprintf("instruction %d: %s", e.InstructionIndex, e.Message)
}

// newTransactionError classifies err, extracting the program error number if
// the failure came from the duel program.
func newTransactionError(index int, err error) *TransactionError {
	te := &TransactionError{InstructionIndex: index, Message: err.Error()}
	if pe, ok := duel.AsProgramError(err); ok {
		code := pe.Code
		te.Code = &code
		te.Name = pe.Name
		te.Message = pe.Msg
	}
	return te
}

// Receipt is the outcome of an executed transaction.
type Receipt struct {
	Signature            types.Signature   `json:"signature"`
	Slot                 uint64            `json:"slot"`
	BlockTime            int64             `json:"blockTime"`
	Err                  *TransactionError `json:"err"`
	Logs                 []string          `json:"logs"`
	ComputeUnitsConsumed uint64            `json:"computeUnitsConsumed"`
	AccountKeys          []types.Pubkey    `json:"accountKeys"`
	Events               []svm.Event       `json:"events,omitempty"`
}

// Succeeded reports whether the transaction committed.
func (r *Receipt) Succeeded() bool {
	return r.Err == nil
}

// ProgramErrorCode returns the custom error number of a failed receipt.
func (r *Receipt) ProgramErrorCode() (uint32, bool) {
	if r.Err == nil || r.Err.Code == nil {
		return 0, false
	}
	return *r.Err.Code, true
}

// Is lets errors.Is match a failed receipt against duel program errors.
func (e *TransactionError) Is(target error) bool {
	var pe *duel.ProgramError
	if errors.As(target, &pe) && e.Code != nil {
		return pe.Code == *e.Code
	}
	return false
}

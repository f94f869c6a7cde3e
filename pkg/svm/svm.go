// Package svm defines the contract between the transaction executor and the
// native programs it runs.
//
// A program sees its instruction as a list of AccountInfo views plus opaque
// instruction data. It mutates the views in place; the executor checks the
// result against the ownership rules and writes it back only if the whole
// transaction succeeds.
package svm

import (
	"errors"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
)

var (
	// ErrInvalidInstruction is returned for malformed instructions.
	ErrInvalidInstruction = errors.New("invalid instruction")

	// ErrUnknownProgram is returned when an instruction targets a program the node does not run.
	ErrUnknownProgram = errors.New("unknown program")

	// ErrNotEnoughAccountKeys is returned when an instruction lists too few accounts.
	ErrNotEnoughAccountKeys = errors.New("not enough account keys")

	// ErrPrivilegeEscalation is returned when a CPI asks for signer or writable
	// privileges the caller does not hold.
	ErrPrivilegeEscalation = errors.New("cross-program invocation with unauthorized signer or writable account")

	// ErrCallDepth is returned when CPIs nest too deeply.
	ErrCallDepth = errors.New("cross-program invocation call depth too deep")

	// ErrUnbalancedInstruction is returned when lamports are created or destroyed.
	ErrUnbalancedInstruction = errors.New("sum of account balances before and after instruction do not match")

	// ErrReadonlyLamportChange is returned when a read-only account's balance changes.
	ErrReadonlyLamportChange = errors.New("instruction changed the balance of a read-only account")

	// ErrReadonlyDataModified is returned when a read-only account's data changes.
	ErrReadonlyDataModified = errors.New("instruction modified data of a read-only account")

	// ErrExternalAccountLamportSpend is returned when a program debits an account it does not own.
	ErrExternalAccountLamportSpend = errors.New("instruction spent from the balance of an account it does not own")

	// ErrExternalAccountDataModified is returned when a program writes data it does not own.
	ErrExternalAccountDataModified = errors.New("instruction modified data of an account it does not own")

	// ErrModifiedProgramID is returned when an account's owner is changed illegally.
	ErrModifiedProgramID = errors.New("instruction illegally modified the program id of an account")

	// ErrExecutableModified is returned when an instruction flips the executable flag.
	ErrExecutableModified = errors.New("instruction changed executable bit of an account")

	// ErrInsufficientFundsForRent is returned when a write leaves an account
	// funded but below its rent-exempt minimum.
	ErrInsufficientFundsForRent = errors.New("insufficient funds for rent")

	// ErrMissingAccount is returned when a CPI references an account the caller was not given.
	ErrMissingAccount = errors.New("instruction references an account the caller does not hold")
)

// MaxCPIDepth is the deepest allowed cross-program invocation nesting.
const MaxCPIDepth = 4

// AccountMeta describes an account referenced by an instruction.
type AccountMeta struct {
	Pubkey     types.Pubkey `json:"pubkey"`
	IsSigner   bool         `json:"isSigner"`
	IsWritable bool         `json:"isWritable"`
}

// NewAccountMeta is shorthand for building metas in instruction builders.
func NewAccountMeta(pubkey types.Pubkey, writable, signer bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: signer, IsWritable: writable}
}

// Instruction is one program call inside a transaction.
type Instruction struct {
	ProgramID types.Pubkey  `json:"programId"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      []byte        `json:"data"`
}

// AccountInfo is the mutable view of an account handed to a program.
// An account listed twice in one instruction is backed by one AccountInfo.
type AccountInfo struct {
	Key        types.Pubkey
	IsSigner   bool
	IsWritable bool
	Lamports   uint64
	Data       []byte
	Owner      types.Pubkey
	Executable bool
}

// NewAccountInfo builds a view over a stored account.
func NewAccountInfo(key types.Pubkey, acc *accounts.Account, signer, writable bool) *AccountInfo {
	return &AccountInfo{
		Key:        key,
		IsSigner:   signer,
		IsWritable: writable,
		Lamports:   acc.Lamports,
		Data:       append([]byte(nil), acc.Data...),
		Owner:      acc.Owner,
		Executable: acc.Executable,
	}
}

// IsAllocated reports whether the account carries data or has been assigned
// away from the system program. A system-owned account that only holds
// lamports is not allocated.
func (a *AccountInfo) IsAllocated() bool {
	return len(a.Data) > 0 || a.Owner != types.SystemProgramAddr
}

// ToAccount converts the view back into a storable account.
func (a *AccountInfo) ToAccount() *accounts.Account {
	return &accounts.Account{
		Lamports:   a.Lamports,
		Data:       append([]byte(nil), a.Data...),
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  accounts.RentExemptEpoch,
	}
}

// Event is a structured notification emitted by a program. Events are only
// published once the emitting transaction commits.
type Event struct {
	Program types.Pubkey `json:"program"`
	Name    string       `json:"name"`
	Payload interface{}  `json:"payload"`
}

// InvokeContext is what the executor gives a running program.
type InvokeContext interface {
	// ProgramID is the program currently executing.
	ProgramID() types.Pubkey

	// Accounts returns the instruction's accounts in meta order.
	Accounts() []*AccountInfo

	// Now returns the host clock in unix seconds.
	Now() int64

	// Rent returns the rent parameters.
	Rent() accounts.Rent

	// ConsumeCU charges compute units against the transaction budget.
	ConsumeCU(units uint64) error

	// Log appends a program log line to the transaction receipt.
	Log(format string, args ...interface{})

	// Emit queues an event for publication after commit.
	Emit(name string, payload interface{})

	// Invoke performs a cross-program invocation. Each entry of signerSeeds
	// is the full seed list (bump included) of a PDA of the calling program
	// that should be treated as a signer.
	Invoke(ix Instruction, signerSeeds [][][]byte) error
}

// Program is a native program the executor can dispatch to.
type Program interface {
	// ID returns the program address.
	ID() types.Pubkey

	// Process executes one instruction.
	Process(ctx InvokeContext, data []byte) error
}

// CheckedAdd adds two lamport amounts, reporting overflow.
func CheckedAdd(a, b uint64) (uint64, bool) {
	c := a + b
	return c, c >= a
}

// CheckedSub subtracts b from a, reporting underflow.
func CheckedSub(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}

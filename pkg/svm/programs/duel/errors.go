package duel

import (
	"errors"
	"fmt"
)

// ProgramError is an error surfaced by the duel program. Codes follow the
// Anchor numbering: framework account checks below 6000, program errors from
// 6000 upward.
type ProgramError struct {
	Code uint32
	Name string
	Msg  string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("Error Code: %s. Error Number: %d. Error Message: %s.", e.Name, e.Code, e.Msg)
}

func newError(code uint32, name, msg string) *ProgramError {
	e := &ProgramError{Code: code, Name: name, Msg: msg}
	errorsByCode[code] = e
	return e
}

var errorsByCode = make(map[uint32]*ProgramError)

// Framework errors raised while validating instruction data and accounts.
var (
	ErrInstructionFallbackNotFound  = newError(101, "InstructionFallbackNotFound", "Fallback functions are not supported")
	ErrInstructionDidNotDeserialize = newError(102, "InstructionDidNotDeserialize", "The program could not deserialize the given instruction")
	ErrConstraintMut                = newError(2000, "ConstraintMut", "A mut constraint was violated")
	ErrConstraintHasOne             = newError(2001, "ConstraintHasOne", "A has one constraint was violated")
	ErrConstraintSigner             = newError(2002, "ConstraintSigner", "A signer constraint was violated")
	ErrConstraintSeeds              = newError(2006, "ConstraintSeeds", "A seeds constraint was violated")
	ErrAccountDiscriminatorMismatch = newError(3002, "AccountDiscriminatorMismatch", "8 byte discriminator did not match what was expected")
	ErrAccountNotEnoughKeys         = newError(3005, "AccountNotEnoughKeys", "Not enough account keys given to the instruction")
	ErrAccountOwnedByWrongProgram   = newError(3007, "AccountOwnedByWrongProgram", "The given account is owned by a different program than expected")
	ErrAccountNotInitialized        = newError(3012, "AccountNotInitialized", "The program expected this account to be already initialized")
)

// Program errors.
var (
	ErrPlatformPaused            = newError(6000, "PlatformPaused", "Platform is currently paused")
	ErrUnauthorizedAdmin         = newError(6001, "UnauthorizedAdmin", "Unauthorized: Only admin can perform this action")
	ErrUnauthorizedGameAuthority = newError(6002, "UnauthorizedGameAuthority", "Unauthorized: Only game authority can perform this action")
	ErrInvalidMatchState         = newError(6003, "InvalidMatchState", "Match is not in the correct state for this action")
	ErrInvalidStakeAmount        = newError(6004, "InvalidStakeAmount", "Stake amount must be greater than zero")
	ErrStakeTooLow               = newError(6005, "StakeTooLow", "Minimum stake is 0.01 SOL")
	ErrStakeTooHigh              = newError(6006, "StakeTooHigh", "Maximum stake is 100 SOL")
	ErrInvalidWinner             = newError(6007, "InvalidWinner", "Winner must be one of the players")
	ErrNotWinner                 = newError(6008, "NotWinner", "Only the winner can claim the prize")
	ErrMatchFull                 = newError(6009, "MatchFull", "Match already has two players")
	ErrCannotJoinOwnMatch        = newError(6010, "CannotJoinOwnMatch", "Cannot join your own match")
	ErrCannotCancelActiveMatch   = newError(6011, "CannotCancelActiveMatch", "Match can only be cancelled before an opponent joins")
	ErrOnlyCreatorCanCancel      = newError(6012, "OnlyCreatorCanCancel", "Only the match creator can cancel")
	ErrInsufficientEscrowFunds   = newError(6013, "InsufficientEscrowFunds", "Insufficient funds in escrow")
	ErrOverflow                  = newError(6014, "Overflow", "Arithmetic overflow")
	ErrMatchExpired              = newError(6015, "MatchExpired", "Match has expired")
)

// ErrorByCode looks up a program error by its number.
func ErrorByCode(code uint32) (*ProgramError, bool) {
	e, ok := errorsByCode[code]
	return e, ok
}

// AsProgramError extracts the ProgramError from err, if any.
func AsProgramError(err error) (*ProgramError, bool) {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

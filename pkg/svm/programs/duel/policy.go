package duel

import (
	"github.com/holiman/uint256"

	"github.com/fortiblox/X1-Duel/internal/types"
)

// BasisPoints is the fee denominator.
const BasisPoints = 10_000

// ComputeFee splits a pot into the platform fee, floor(pot*feeBps/10000),
// and the prize that goes to the winner. fee+prize always equals pot.
func ComputeFee(pot uint64, feeBps uint16) (fee, prize uint64, err error) {
	if feeBps > MaxFeeBps {
		return 0, 0, ErrOverflow
	}
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(pot), uint256.NewInt(uint64(feeBps)))
	if overflow {
		return 0, 0, ErrOverflow
	}
	quotient := new(uint256.Int).Div(product, uint256.NewInt(BasisPoints))
	if !quotient.IsUint64() {
		return 0, 0, ErrOverflow
	}
	fee = quotient.Uint64()
	if fee > pot {
		return 0, 0, ErrOverflow
	}
	return fee, pot - fee, nil
}

// ValidateStake checks a stake against the allowed range.
func ValidateStake(stake uint64) error {
	switch {
	case stake == 0:
		return ErrInvalidStakeAmount
	case stake < MinStake:
		return ErrStakeTooLow
	case stake > MaxStake:
		return ErrStakeTooHigh
	}
	return nil
}

// IsAdmin reports whether key is the platform admin.
func (c *PlatformConfig) IsAdmin(key types.Pubkey) bool { return c.Admin == key }

// IsGameAuthority reports whether key may submit results.
func (c *PlatformConfig) IsGameAuthority(key types.Pubkey) bool { return c.GameAuthority == key }

// IsPlayer reports whether key is seated in the match.
func (m *GameMatch) IsPlayer(key types.Pubkey) bool {
	if key == m.Player1 {
		return true
	}
	return m.HasOpponent() && key == m.Player2
}

// HasOpponent reports whether player2 has joined.
func (m *GameMatch) HasOpponent() bool { return !m.Player2.IsZero() }

// IsWinner reports whether key won a decided match.
func (m *GameMatch) IsWinner(key types.Pubkey) bool {
	return (m.Status == StatusCompleted || m.Status == StatusClaimed) && m.Winner == key
}

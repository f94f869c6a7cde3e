// Package pda derives program-derived addresses.
//
// A PDA is sha256(seeds || programID || "ProgramDerivedAddress") rejected
// while it lies on the ed25519 curve, so no private key can sign for it.
// FindProgramAddress appends a one-byte bump, searching from 255 down, and
// returns the first off-curve result.
package pda

import (
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	"github.com/fortiblox/X1-Duel/internal/types"
)

// PDA limits.
const (
	MaxSeeds   = 16
	MaxSeedLen = 32
)

// PDA errors.
var (
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrMaxSeedsExceeded      = errors.New("max seeds exceeded")
	ErrInvalidSeeds          = errors.New("invalid seeds, address must fall off the curve")
	ErrNoViableBump          = errors.New("unable to find a viable program address bump")
)

func checkSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return fmt.Errorf("%w: %d seeds", ErrMaxSeedsExceeded, len(seeds))
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLen {
			return fmt.Errorf("%w: seed %d is %d bytes", ErrMaxSeedLengthExceeded, i, len(s))
		}
	}
	return nil
}

// CreateProgramAddress derives the address for the exact seeds given,
// which must already include the bump when one is used.
func CreateProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, error) {
	if err := checkSeeds(seeds); err != nil {
		return types.Pubkey{}, err
	}
	addr, err := solana.CreateProgramAddress(seeds, solana.PublicKey(programID))
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("%w: %v", ErrInvalidSeeds, err)
	}
	return types.Pubkey(addr), nil
}

// FindProgramAddress searches for the canonical bump for seeds.
func FindProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, uint8, error) {
	// One slot is reserved for the bump.
	if len(seeds) >= MaxSeeds {
		return types.Pubkey{}, 0, fmt.Errorf("%w: %d seeds", ErrMaxSeedsExceeded, len(seeds))
	}
	if err := checkSeeds(seeds); err != nil {
		return types.Pubkey{}, 0, err
	}
	addr, bump, err := solana.FindProgramAddress(seeds, solana.PublicKey(programID))
	if err != nil {
		return types.Pubkey{}, 0, fmt.Errorf("%w: %v", ErrNoViableBump, err)
	}
	return types.Pubkey(addr), bump, nil
}

// WithBump returns seeds followed by the one-byte bump.
func WithBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, 0, len(seeds)+1)
	out = append(out, seeds...)
	return append(out, []byte{bump})
}

// Verify re-derives the address for seeds and bump and checks it equals addr.
func Verify(addr types.Pubkey, seeds [][]byte, bump uint8, programID types.Pubkey) bool {
	derived, err := CreateProgramAddress(WithBump(seeds, bump), programID)
	return err == nil && derived == addr
}

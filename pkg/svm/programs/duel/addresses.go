package duel

import (
	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/pda"
)

// ProgramID is the duel program address.
var ProgramID = types.DuelProgramAddr

// PDA seed prefixes.
var (
	SeedPlatformConfig = []byte("platform_config")
	SeedTreasury       = []byte("treasury")
	SeedMatch          = []byte("match")
	SeedEscrow         = []byte("escrow")
)

func platformConfigSeeds() [][]byte { return [][]byte{SeedPlatformConfig} }

func treasurySeeds() [][]byte { return [][]byte{SeedTreasury} }

func matchSeeds(matchID [32]byte) [][]byte { return [][]byte{SeedMatch, matchID[:]} }

func escrowSeeds(gameMatch types.Pubkey) [][]byte { return [][]byte{SeedEscrow, gameMatch[:]} }

// PlatformConfigAddress derives the singleton PlatformConfig address.
func PlatformConfigAddress() (types.Pubkey, uint8, error) {
	return pda.FindProgramAddress(platformConfigSeeds(), ProgramID)
}

// TreasuryAddress derives the fee vault address.
func TreasuryAddress() (types.Pubkey, uint8, error) {
	return pda.FindProgramAddress(treasurySeeds(), ProgramID)
}

// MatchAddress derives the GameMatch address for a match id.
func MatchAddress(matchID [32]byte) (types.Pubkey, uint8, error) {
	return pda.FindProgramAddress(matchSeeds(matchID), ProgramID)
}

// EscrowAddress derives the escrow vault address for a GameMatch.
func EscrowAddress(gameMatch types.Pubkey) (types.Pubkey, uint8, error) {
	return pda.FindProgramAddress(escrowSeeds(gameMatch), ProgramID)
}

// MatchAddresses derives both PDAs of a match.
func MatchAddresses(matchID [32]byte) (gameMatch, escrow types.Pubkey, err error) {
	if gameMatch, _, err = MatchAddress(matchID); err != nil {
		return
	}
	escrow, _, err = EscrowAddress(gameMatch)
	return
}

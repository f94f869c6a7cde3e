package types

var (
	// SystemProgramAddr owns every wallet account.
	SystemProgramAddr = MustPubkeyFromBase58("11111111111111111111111111111111")

	// DuelProgramAddr is the address of the wagering escrow program.
	DuelProgramAddr = MustPubkeyFromBase58("Due1111111111111111111111111111111111111111")
)

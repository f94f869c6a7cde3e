package accounts

// Rent parameters. The defaults match Solana mainnet.
const (
	// AccountStorageOverhead is the per-account byte overhead charged on top of data.
	AccountStorageOverhead = 128

	// DefaultLamportsPerByteYear is the rent rate.
	DefaultLamportsPerByteYear = 3480

	// DefaultExemptionThreshold is how many years of rent make an account exempt.
	DefaultExemptionThreshold = 2

	// RentExemptEpoch is stored in RentEpoch for rent-exempt accounts.
	RentExemptEpoch = ^uint64(0)
)

// Rent computes rent-exempt minimum balances.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  uint64
}

// DefaultRent returns the mainnet rent parameters.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionThreshold:  DefaultExemptionThreshold,
	}
}

// MinimumBalance returns the lamports an account with dataLen bytes must hold
// to be rent exempt.
func (r Rent) MinimumBalance(dataLen uint64) uint64 {
	return (AccountStorageOverhead + dataLen) * r.LamportsPerByteYear * r.ExemptionThreshold
}

// IsExempt reports whether balance covers the minimum for dataLen.
func (r Rent) IsExempt(balance, dataLen uint64) bool {
	return balance >= r.MinimumBalance(dataLen)
}

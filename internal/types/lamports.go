package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSol is the number of lamports in one SOL.
const LamportsPerSol = 1_000_000_000

const solDecimals = 9

var maxLamports = decimal.NewFromBigInt(new(big.Int).SetUint64(^uint64(0)), 0)

// ErrInvalidAmount is returned for unparsable or out-of-range SOL amounts.
var ErrInvalidAmount = errors.New("invalid SOL amount")

// LamportsToSol converts lamports to a decimal SOL amount.
func LamportsToSol(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -solDecimals)
}

// FormatSol renders lamports as a SOL string without trailing zeros.
func FormatSol(lamports uint64) string {
	return LamportsToSol(lamports).String()
}

// ParseSol converts a SOL amount such as "0.25" into lamports. Amounts with
// more than nine decimal places or outside the uint64 range are rejected.
func ParseSol(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	lamports := d.Shift(solDecimals)
	if !lamports.Equal(lamports.Truncate(0)) {
		return 0, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, solDecimals)
	}
	if lamports.GreaterThan(maxLamports) {
		return 0, fmt.Errorf("%w: too large", ErrInvalidAmount)
	}
	return lamports.BigInt().Uint64(), nil
}

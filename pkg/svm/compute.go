package svm

import (
	"errors"
	"sync/atomic"
)

// Compute unit costs charged by the executor and native programs.
const (
	CUDefault              = uint64(200_000)   // Default limit per transaction
	CUMax                  = uint64(1_400_000) // Hard cap per transaction
	CUSignatureVerify      = uint64(720)       // Ed25519 signature verification
	CUInvokeBase           = uint64(1_000)     // Cross-program invocation
	CUCreateProgramAddress = uint64(1_500)     // create_program_address
	CUWriteLock            = uint64(300)       // Per writable account
	CUSystemProgramDefault = uint64(150)       // System program instruction
	CUDuelProgramDefault   = uint64(2_000)     // Duel program instruction
)

var (
	// ErrComputeExceeded is returned when compute units are exhausted.
	ErrComputeExceeded = errors.New("compute budget exceeded")
)

// ComputeMeter tracks compute unit consumption.
type ComputeMeter struct {
	remaining atomic.Uint64
	consumed  atomic.Uint64
	limit     uint64
}

// NewComputeMeter creates a compute meter with the given limit, capped at CUMax.
func NewComputeMeter(limit uint64) *ComputeMeter {
	if limit == 0 || limit > CUMax {
		limit = CUMax
	}
	cm := &ComputeMeter{limit: limit}
	cm.remaining.Store(limit)
	return cm
}

// Consume charges cost units. On exhaustion the meter drops to zero and
// ErrComputeExceeded is returned.
func (cm *ComputeMeter) Consume(cost uint64) error {
	for {
		remaining := cm.remaining.Load()
		if remaining < cost {
			cm.consumed.Add(remaining)
			cm.remaining.Store(0)
			return ErrComputeExceeded
		}
		if cm.remaining.CompareAndSwap(remaining, remaining-cost) {
			cm.consumed.Add(cost)
			return nil
		}
	}
}

// Remaining returns the remaining compute units.
func (cm *ComputeMeter) Remaining() uint64 {
	return cm.remaining.Load()
}

// Consumed returns the total consumed compute units.
func (cm *ComputeMeter) Consumed() uint64 {
	return cm.consumed.Load()
}

// Limit returns the compute unit limit.
func (cm *ComputeMeter) Limit() uint64 {
	return cm.limit
}

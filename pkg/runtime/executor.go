// Package runtime executes signed transactions against the account store.
//
// Each transaction runs on an accounts.Txn overlay. Instructions run in
// order; after every program call the executor checks the account rules
// (balanced lamports, read-only accounts untouched, only owners debit or
// write data). Any failure discards the overlay so the store is left exactly
// as it was. A receipt is recorded for every executed transaction, and
// program events are published only after a successful commit.
package runtime

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"k8s.io/klog/v2"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
	"github.com/fortiblox/X1-Duel/pkg/events"
	"github.com/fortiblox/X1-Duel/pkg/svm"
)

var (
	// ErrAlreadyProcessed is returned for a signature that has already executed.
	ErrAlreadyProcessed = errors.New("transaction already processed")

	// ErrTransactionExpired is returned when RecentTimestamp is outside the accepted window.
	ErrTransactionExpired = errors.New("transaction timestamp outside the accepted window")

	// ErrProgramWritable is returned when a program is listed as a writable account.
	ErrProgramWritable = errors.New("program account may not be writable")
)

// Ledger persists receipts. The blockstore implements it.
type Ledger interface {
	RecordTransaction(tx *Transaction, receipt *Receipt) error
	HasTransaction(sig types.Signature) (bool, error)
}

// Config holds executor configuration.
type Config struct {
	// ComputeLimit is the per-transaction compute budget.
	ComputeLimit uint64

	// MaxTransactionAge bounds how far RecentTimestamp may be from the clock,
	// in seconds. Zero disables the check.
	MaxTransactionAge int64

	// Rent parameters handed to programs.
	Rent accounts.Rent

	// SkipSignatureVerification trusts IsSigner flags as given. Only for tests
	// and local simulation.
	SkipSignatureVerification bool
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		ComputeLimit:      svm.CUDefault,
		MaxTransactionAge: 150,
		Rent:              accounts.DefaultRent(),
	}
}

// Executor runs transactions.
type Executor struct {
	db       accounts.DB
	programs map[types.Pubkey]svm.Program
	clock    Clock
	locks    *AccountLocks
	ledger   Ledger
	emitter  *events.Emitter
	config   Config

	commitMu sync.Mutex
	slot     atomic.Uint64

	// recent guards against replays when no ledger is attached.
	recentMu sync.Mutex
	recent   map[types.Signature]struct{}
}

// NewExecutor creates an executor over db. The ledger and emitter may be nil.
func NewExecutor(db accounts.DB, clock Clock, ledger Ledger, emitter *events.Emitter, config Config, programs ...svm.Program) *Executor {
	if clock == nil {
		clock = SystemClock{}
	}
	e := &Executor{
		db:       db,
		programs: make(map[types.Pubkey]svm.Program, len(programs)),
		clock:    clock,
		locks:    NewAccountLocks(),
		ledger:   ledger,
		emitter:  emitter,
		config:   config,
		recent:   make(map[types.Signature]struct{}),
	}
	for _, p := range programs {
		e.programs[p.ID()] = p
	}
	e.slot.Store(db.GetSlot())
	return e
}

// Slot returns the slot of the last executed transaction.
func (e *Executor) Slot() uint64 {
	return e.slot.Load()
}

// Clock returns the executor's clock.
func (e *Executor) Clock() Clock {
	return e.clock
}

// Rent returns the rent parameters.
func (e *Executor) Rent() accounts.Rent {
	return e.config.Rent
}

// Execute authenticates and runs tx. The returned error is set only when the
// transaction was rejected before execution; execution failures are
// reported in Receipt.Err.
func (e *Executor) Execute(tx *Transaction) (*Receipt, error) {
	meter := svm.NewComputeMeter(e.config.ComputeLimit)

	signers, err := e.authenticate(tx, meter)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	if age := e.config.MaxTransactionAge; age > 0 {
		if d := now - tx.Message.RecentTimestamp; d > age || d < -age {
			return nil, fmt.Errorf("%w: timestamp %d, now %d", ErrTransactionExpired, tx.Message.RecentTimestamp, now)
		}
	}

	keys, writable := tx.Message.AccountKeys()
	for _, ix := range tx.Message.Instructions {
		if writable[ix.ProgramID] && e.programs[ix.ProgramID] != nil {
			return nil, fmt.Errorf("%w: %s", ErrProgramWritable, ix.ProgramID)
		}
	}
	lockSet := e.locks.Acquire(keys, writable)
	defer lockSet.Release()

	sig := tx.Signature()
	if seen, err := e.seen(sig); err != nil {
		return nil, err
	} else if seen {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, sig)
	}

	run := &execution{
		exec:     e,
		txn:      accounts.NewTxn(e.db),
		meter:    meter,
		signers:  signers,
		writable: writable,
		now:      now,
	}
	receipt := &Receipt{
		Signature:   sig,
		BlockTime:   now,
		AccountKeys: keys,
	}

	execErr := run.execute(tx)
	if execErr == nil {
		for _, k := range keys {
			if writable[k] {
				if err := meter.Consume(svm.CUWriteLock); err != nil {
					execErr = newTransactionError(-1, err)
					break
				}
			}
		}
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	if execErr != nil {
		run.txn.Discard()
		receipt.Err = execErr
		receipt.Events = nil
	} else if err := run.txn.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	} else {
		receipt.Events = run.events
	}
	receipt.Logs = run.logs
	receipt.ComputeUnitsConsumed = meter.Consumed()
	receipt.Slot = e.slot.Add(1)
	if err := e.db.SetSlot(receipt.Slot); err != nil {
		klog.Warningf("[exec] failed to persist slot %d: %v", receipt.Slot, err)
	}

	if e.ledger != nil {
		if err := e.ledger.RecordTransaction(tx, receipt); err != nil {
			klog.Errorf("[exec] failed to record %s: %v", sig, err)
		}
	} else {
		e.remember(sig)
	}

	if receipt.Succeeded() {
		klog.V(2).Infof("[exec] %s ok slot=%d cu=%d", sig, receipt.Slot, receipt.ComputeUnitsConsumed)
		e.publish(receipt)
	} else {
		klog.V(2).Infof("[exec] %s failed slot=%d: %v", sig, receipt.Slot, receipt.Err)
	}
	return receipt, nil
}

func (e *Executor) authenticate(tx *Transaction, meter *svm.ComputeMeter) (map[types.Pubkey]bool, error) {
	if len(tx.Message.Instructions) == 0 {
		return nil, ErrNoInstructions
	}
	if len(tx.Message.Instructions) > MaxInstructions {
		return nil, fmt.Errorf("%w: %d instructions", ErrMalformedTransaction, len(tx.Message.Instructions))
	}
	if e.config.SkipSignatureVerification {
		signers := make(map[types.Pubkey]bool)
		for _, k := range tx.Message.Signers() {
			signers[k] = true
		}
		return signers, nil
	}
	for range tx.Signatures {
		if err := meter.Consume(svm.CUSignatureVerify); err != nil {
			return nil, err
		}
	}
	return tx.Verify()
}

func (e *Executor) seen(sig types.Signature) (bool, error) {
	if e.ledger != nil {
		return e.ledger.HasTransaction(sig)
	}
	e.recentMu.Lock()
	defer e.recentMu.Unlock()
	_, ok := e.recent[sig]
	return ok, nil
}

func (e *Executor) remember(sig types.Signature) {
	e.recentMu.Lock()
	e.recent[sig] = struct{}{}
	e.recentMu.Unlock()
}

func (e *Executor) publish(r *Receipt) {
	if e.emitter == nil {
		return
	}
	for _, ev := range r.Events {
		e.emitter.Publish(events.Event{
			Event:     ev,
			Signature: r.Signature,
			Slot:      r.Slot,
			BlockTime: r.BlockTime,
		})
	}
}

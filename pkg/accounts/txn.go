package accounts

import (
	"errors"

	"github.com/fortiblox/X1-Duel/internal/types"
)

// Txn buffers account writes on top of a DB.
//
// Reads see the transaction's own writes first and fall through to the DB
// otherwise. Nothing reaches the DB until Commit, which hands the whole write
// set to DB.ApplyBatch; Discard drops it.
type Txn struct {
	db    DB
	dirty map[types.Pubkey]*Account // nil value marks a deletion
	done  bool
}

// NewTxn starts a transaction over db.
func NewTxn(db DB) *Txn {
	return &Txn{
		db:    db,
		dirty: make(map[types.Pubkey]*Account),
	}
}

// GetAccount returns a copy of the account as seen by this transaction.
func (t *Txn) GetAccount(pubkey types.Pubkey) (*Account, error) {
	if t.done {
		return nil, ErrTxnDone
	}
	if acc, ok := t.dirty[pubkey]; ok {
		if acc == nil {
			return nil, ErrAccountNotFound
		}
		return acc.Clone(), nil
	}
	return t.db.GetAccount(pubkey)
}

// LoadAccount is GetAccount but returns an empty system-owned account when
// the key does not exist yet.
func (t *Txn) LoadAccount(pubkey types.Pubkey) (*Account, bool, error) {
	acc, err := t.GetAccount(pubkey)
	if errors.Is(err, ErrAccountNotFound) {
		return &Account{Owner: types.SystemProgramAddr}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return acc, true, nil
}

// SetAccount buffers a write. A zero account is recorded as a deletion.
func (t *Txn) SetAccount(pubkey types.Pubkey, account *Account) error {
	if t.done {
		return ErrTxnDone
	}
	if account == nil || account.IsZero() {
		t.dirty[pubkey] = nil
		return nil
	}
	t.dirty[pubkey] = account.Clone()
	return nil
}

// DeleteAccount buffers a deletion.
func (t *Txn) DeleteAccount(pubkey types.Pubkey) error {
	return t.SetAccount(pubkey, nil)
}

// Commit applies all buffered writes atomically.
func (t *Txn) Commit() error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true
	if len(t.dirty) == 0 {
		return nil
	}
	return t.db.ApplyBatch(t.dirty)
}

// Discard drops all buffered writes. Safe to call after Commit.
func (t *Txn) Discard() {
	t.done = true
	t.dirty = nil
}

// Package accounts implements the account store that backs every program.
//
// Each account is a lamport balance plus an opaque data buffer owned by a
// program. Program records (platform config, matches, vaults) live in the data
// of accounts whose addresses are program-derived, so the store is a plain
// key-value map from Pubkey to Account.
//
// Writes made while executing a transaction are buffered in a Txn and applied
// to the underlying DB in one atomic batch, or dropped entirely.
package accounts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"github.com/fortiblox/X1-Duel/internal/types"
)

var (
	// ErrAccountNotFound is returned when an account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrClosed is returned when operating on a closed database.
	ErrClosed = errors.New("database closed")

	// ErrInvalidData is returned when account data is malformed.
	ErrInvalidData = errors.New("invalid account data")

	// ErrSnapshotNotFound is returned when a snapshot doesn't exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrTxnDone is returned when a Txn is used after Commit or Discard.
	ErrTxnDone = errors.New("transaction already committed or discarded")
)

// MaxAccountDataSize is the largest data buffer an account may hold.
const MaxAccountDataSize = 10 * 1024 * 1024

// Account represents a single account in the state.
type Account struct {
	// Lamports is the account balance in lamports (1 SOL = 1e9 lamports).
	Lamports uint64

	// Data is the account data. For program records this is
	// discriminator + borsh payload.
	Data []byte

	// Owner is the program that owns this account.
	// Only the owner program can modify the account data or debit lamports.
	Owner types.Pubkey

	// Executable indicates if this is a program account.
	Executable bool

	// RentEpoch is kept for layout compatibility. Rent-exempt accounts carry u64::MAX.
	RentEpoch uint64
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	dataCopy := make([]byte, len(a.Data))
	copy(dataCopy, a.Data)
	return &Account{
		Lamports:   a.Lamports,
		Data:       dataCopy,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}
}

// Equal reports whether two accounts hold identical state.
func (a *Account) Equal(b *Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Lamports == b.Lamports &&
		a.Owner == b.Owner &&
		a.Executable == b.Executable &&
		a.RentEpoch == b.RentEpoch &&
		bytes.Equal(a.Data, b.Data)
}

// IsZero returns true if the account has no lamports and no data.
// Zero accounts are deleted from storage.
func (a *Account) IsZero() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// DataLen returns the length of account data.
func (a *Account) DataLen() int {
	return len(a.Data)
}

// Size returns the total serialized size of the account.
func (a *Account) Size() int {
	// 8 (lamports) + 8 (data_len) + data + 32 (owner) + 1 (executable) + 8 (rent_epoch)
	return 8 + 8 + len(a.Data) + 32 + 1 + 8
}

// Serialize encodes the account for storage.
// Format: lamports (8) + data_len (8) + data + owner (32) + executable (1) + rent_epoch (8)
func (a *Account) Serialize() []byte {
	buf := make([]byte, a.Size())
	off := 0

	binary.LittleEndian.PutUint64(buf[off:], a.Lamports)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(len(a.Data)))
	off += 8
	off += copy(buf[off:], a.Data)
	off += copy(buf[off:], a.Owner[:])
	if a.Executable {
		buf[off] = 1
	}
	off++
	binary.LittleEndian.PutUint64(buf[off:], a.RentEpoch)

	return buf
}

// DeserializeAccount decodes an account produced by Serialize.
func DeserializeAccount(data []byte) (*Account, error) {
	if len(data) < 57 {
		return nil, ErrInvalidData
	}

	off := 0
	lamports := binary.LittleEndian.Uint64(data[off:])
	off += 8
	dataLen := binary.LittleEndian.Uint64(data[off:])
	off += 8

	if dataLen > MaxAccountDataSize {
		return nil, ErrInvalidData
	}
	// 32 (owner) + 1 (executable) + 8 (rent_epoch)
	if uint64(len(data)-off) < dataLen+41 {
		return nil, ErrInvalidData
	}

	acc := &Account{
		Lamports: lamports,
		Data:     make([]byte, dataLen),
	}
	off += copy(acc.Data, data[off:off+int(dataLen)])
	off += copy(acc.Owner[:], data[off:off+32])
	acc.Executable = data[off] != 0
	off++
	acc.RentEpoch = binary.LittleEndian.Uint64(data[off:])

	return acc, nil
}

// DB is the accounts database interface.
// Implementations must be safe for concurrent use.
type DB interface {
	// GetAccount retrieves an account by public key.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetAccount(pubkey types.Pubkey) (*Account, error)

	// SetAccount stores an account.
	// If the account is zero (no lamports and no data), it is deleted.
	SetAccount(pubkey types.Pubkey, account *Account) error

	// DeleteAccount removes an account.
	// Returns nil if the account doesn't exist.
	DeleteAccount(pubkey types.Pubkey) error

	// HasAccount checks if an account exists.
	HasAccount(pubkey types.Pubkey) (bool, error)

	// ApplyBatch writes every entry atomically. A nil or zero account deletes the key.
	ApplyBatch(writes map[types.Pubkey]*Account) error

	// IterateAccounts calls fn for every account in ascending key order.
	IterateAccounts(fn func(pubkey types.Pubkey, account *Account) error) error

	// GetSlot returns the last committed slot.
	GetSlot() uint64

	// SetSlot updates the last committed slot.
	SetSlot(slot uint64) error

	// AccountsCount returns the total number of accounts.
	AccountsCount() (uint64, error)

	// Close closes the database.
	Close() error
}

// MemoryDB is an in-memory implementation of DB.
type MemoryDB struct {
	mu       sync.RWMutex
	accounts map[types.Pubkey]*Account
	slot     uint64
	closed   bool
}

// NewMemoryDB creates a new in-memory accounts database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[types.Pubkey]*Account),
	}
}

// GetAccount retrieves an account.
func (m *MemoryDB) GetAccount(pubkey types.Pubkey) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	acc, ok := m.accounts[pubkey]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

// SetAccount stores an account.
func (m *MemoryDB) SetAccount(pubkey types.Pubkey, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.put(pubkey, account)
	return nil
}

func (m *MemoryDB) put(pubkey types.Pubkey, account *Account) {
	if account == nil || account.IsZero() {
		delete(m.accounts, pubkey)
		return
	}
	m.accounts[pubkey] = account.Clone()
}

// DeleteAccount removes an account.
func (m *MemoryDB) DeleteAccount(pubkey types.Pubkey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.accounts, pubkey)
	return nil
}

// HasAccount checks if an account exists.
func (m *MemoryDB) HasAccount(pubkey types.Pubkey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.accounts[pubkey]
	return ok, nil
}

// ApplyBatch writes all entries under a single lock.
func (m *MemoryDB) ApplyBatch(writes map[types.Pubkey]*Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for pubkey, acc := range writes {
		m.put(pubkey, acc)
	}
	return nil
}

// IterateAccounts visits accounts in ascending key order.
func (m *MemoryDB) IterateAccounts(fn func(pubkey types.Pubkey, account *Account) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	keys := make([]types.Pubkey, 0, len(m.accounts))
	for k := range m.accounts {
		keys = append(keys, k)
	}
	snapshot := make(map[types.Pubkey]*Account, len(keys))
	for _, k := range keys {
		snapshot[k] = m.accounts[k].Clone()
	}
	m.mu.RUnlock()

	SortPubkeys(keys)
	for _, k := range keys {
		if err := fn(k, snapshot[k]); err != nil {
			return err
		}
	}
	return nil
}

// GetSlot returns the current slot.
func (m *MemoryDB) GetSlot() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slot
}

// SetSlot updates the current slot.
func (m *MemoryDB) SetSlot(slot uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.slot = slot
	return nil
}

// AccountsCount returns the number of accounts.
func (m *MemoryDB) AccountsCount() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return uint64(len(m.accounts)), nil
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.accounts = nil
	return nil
}

// SortPubkeys sorts pubkeys in ascending byte order.
func SortPubkeys(pubkeys []types.Pubkey) {
	sort.Slice(pubkeys, func(i, j int) bool {
		return bytes.Compare(pubkeys[i][:], pubkeys[j][:]) < 0
	})
}

var _ DB = (*MemoryDB)(nil)

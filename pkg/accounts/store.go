package accounts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"k8s.io/klog/v2"

	"github.com/fortiblox/X1-Duel/internal/types"
)

// Key layout:
//
//	'a' | pubkey      -> serialized Account
//	"m:state"         -> slot (u64 LE) | account count (u64 LE)
const accountTag = 'a'

var stateKey = []byte("m:state")

// BadgerDBConfig contains configuration for BadgerDB.
type BadgerDBConfig struct {
	Path     string
	InMemory bool

	// SyncWrites fsyncs every committed transaction.
	SyncWrites bool

	// ValueLogFileSize caps each value log file.
	ValueLogFileSize int64

	// Quiet drops badger's info and debug output.
	Quiet bool
}

// DefaultBadgerDBConfig returns default configuration.
func DefaultBadgerDBConfig(path string) BadgerDBConfig {
	return BadgerDBConfig{
		Path:             path,
		SyncWrites:       true,
		ValueLogFileSize: 64 << 20,
		Quiet:            true,
	}
}

// badgerLogger routes badger's logs through klog.
type badgerLogger struct{ quiet bool }

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	klog.Errorf("[badger] "+format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	klog.Warningf("[badger] "+format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	if !l.quiet {
		klog.V(1).Infof("[badger] "+format, args...)
	}
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	if !l.quiet {
		klog.V(4).Infof("[badger] "+format, args...)
	}
}

// BadgerDB stores accounts in badger. ApplyBatch is a single read-write
// transaction, so a transaction's write set lands all at once or not at all.
type BadgerDB struct {
	db *badger.DB

	// mu serializes writers so the cached count matches the stored one.
	mu    sync.Mutex
	slot  atomic.Uint64
	count atomic.Uint64

	closed atomic.Bool
}

// NewBadgerDB opens (or creates) a badger-backed accounts database.
func NewBadgerDB(cfg BadgerDBConfig) (*BadgerDB, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(badgerLogger{quiet: cfg.Quiet})
	if cfg.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(cfg.ValueLogFileSize)
	}
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	b := &BadgerDB{db: db}
	err = db.View(func(txn *badger.Txn) error {
		slot, count, err := readState(txn)
		b.slot.Store(slot)
		b.count.Store(count)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read state: %w", err)
	}
	return b, nil
}

func readState(txn *badger.Txn) (slot, count uint64, err error) {
	item, err := txn.Get(stateKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	err = item.Value(func(val []byte) error {
		if len(val) != 16 {
			return fmt.Errorf("state record: %d bytes", len(val))
		}
		slot = binary.LittleEndian.Uint64(val)
		count = binary.LittleEndian.Uint64(val[8:])
		return nil
	})
	return slot, count, err
}

func writeState(txn *badger.Txn, slot, count uint64) error {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:], slot)
	binary.LittleEndian.PutUint64(buf[8:], count)
	return txn.Set(stateKey, buf[:])
}

func accountKey(pubkey types.Pubkey) []byte {
	return append([]byte{accountTag}, pubkey[:]...)
}

func (b *BadgerDB) view(fn func(txn *badger.Txn) error) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.db.View(fn)
}

// GetAccount retrieves an account by public key.
func (b *BadgerDB) GetAccount(pubkey types.Pubkey) (*Account, error) {
	var account *Account
	err := b.view(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(pubkey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) (err error) {
			account, err = DeserializeAccount(val)
			return err
		})
	})
	return account, err
}

// HasAccount checks if an account exists.
func (b *BadgerDB) HasAccount(pubkey types.Pubkey) (bool, error) {
	var exists bool
	err := b.view(func(txn *badger.Txn) error {
		_, err := txn.Get(accountKey(pubkey))
		switch {
		case err == nil:
			exists = true
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return nil
	})
	return exists, err
}

// SetAccount stores an account.
func (b *BadgerDB) SetAccount(pubkey types.Pubkey, account *Account) error {
	return b.ApplyBatch(map[types.Pubkey]*Account{pubkey: account})
}

// DeleteAccount removes an account.
func (b *BadgerDB) DeleteAccount(pubkey types.Pubkey) error {
	return b.ApplyBatch(map[types.Pubkey]*Account{pubkey: nil})
}

// ApplyBatch writes all entries in one badger transaction.
func (b *BadgerDB) ApplyBatch(writes map[types.Pubkey]*Account) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if len(writes) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	count := b.count.Load()
	err := b.db.Update(func(txn *badger.Txn) error {
		for pubkey, acc := range writes {
			key := accountKey(pubkey)
			_, err := txn.Get(key)
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			existed := err == nil

			if acc == nil || acc.IsZero() {
				if existed {
					if err := txn.Delete(key); err != nil {
						return err
					}
					count--
				}
				continue
			}
			if err := txn.Set(key, acc.Serialize()); err != nil {
				return err
			}
			if !existed {
				count++
			}
		}
		return writeState(txn, b.slot.Load(), count)
	})
	if err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}
	b.count.Store(count)
	return nil
}

// IterateAccounts visits accounts in ascending pubkey order. An error from
// fn stops iteration and is returned.
func (b *BadgerDB) IterateAccounts(fn func(pubkey types.Pubkey, account *Account) error) error {
	return b.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{accountTag}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			pubkey, err := types.PubkeyFromBytes(item.Key()[1:])
			if err != nil {
				continue
			}
			err = item.Value(func(val []byte) error {
				account, err := DeserializeAccount(val)
				if err != nil {
					return fmt.Errorf("account %s: %w", pubkey, err)
				}
				return fn(pubkey, account)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSlot returns the last committed slot.
func (b *BadgerDB) GetSlot() uint64 { return b.slot.Load() }

// SetSlot persists the last committed slot.
func (b *BadgerDB) SetSlot(slot uint64) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.db.Update(func(txn *badger.Txn) error {
		return writeState(txn, slot, b.count.Load())
	})
	if err != nil {
		return err
	}
	b.slot.Store(slot)
	return nil
}

// AccountsCount returns the total number of accounts.
func (b *BadgerDB) AccountsCount() (uint64, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	return b.count.Load(), nil
}

// CollectGarbage rewrites at most one value log file. It reports nothing
// to do as success.
func (b *BadgerDB) CollectGarbage() error {
	if b.closed.Load() {
		return ErrClosed
	}
	err := b.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// Close closes the database.
func (b *BadgerDB) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	return b.db.Close()
}

// BulkLoader streams accounts into an empty BadgerDB through a badger
// WriteBatch. Writes are not atomic; use it only for snapshot restore.
type BulkLoader struct {
	db    *BadgerDB
	batch *badger.WriteBatch
	added uint64
}

// NewBulkLoader starts a bulk load.
func (b *BadgerDB) NewBulkLoader() *BulkLoader {
	return &BulkLoader{db: b, batch: b.db.NewWriteBatch()}
}

// Add queues one account. Zero accounts are skipped.
func (l *BulkLoader) Add(pubkey types.Pubkey, account *Account) error {
	if account.IsZero() {
		return nil
	}
	if err := l.batch.Set(accountKey(pubkey), account.Serialize()); err != nil {
		return err
	}
	l.added++
	return nil
}

// Flush writes everything queued and records the new account count.
func (l *BulkLoader) Flush() error {
	if err := l.batch.Flush(); err != nil {
		return err
	}

	b := l.db
	b.mu.Lock()
	defer b.mu.Unlock()

	count := b.count.Load() + l.added
	err := b.db.Update(func(txn *badger.Txn) error {
		return writeState(txn, b.slot.Load(), count)
	})
	if err != nil {
		return err
	}
	b.count.Store(count)
	l.added = 0
	return nil
}

// Cancel discards the batch.
func (l *BulkLoader) Cancel() {
	l.batch.Cancel()
	l.added = 0
}

var _ DB = (*BadgerDB)(nil)

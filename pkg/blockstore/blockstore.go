// Package blockstore is the persistent ledger of executed transactions.
//
// Every transaction the executor runs, committed or rolled back, is stored
// with its receipt under its signature. Secondary indexes map slots and
// account addresses back to signatures so the RPC layer can answer
// getTransaction, getSignatureStatuses and getSignaturesForAddress.
package blockstore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"
	"k8s.io/klog/v2"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/runtime"
)

var (
	// ErrTransactionNotFound is returned when a transaction doesn't exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrClosed is returned when operating on a closed blockstore.
	ErrClosed = errors.New("blockstore closed")

	// ErrDuplicateTransaction is returned when a signature is recorded twice.
	ErrDuplicateTransaction = errors.New("transaction already recorded")
)

// Bucket names for BoltDB.
var (
	// bucketTxBySignature stores transaction records keyed by signature.
	bucketTxBySignature = []byte("tx_by_sig")

	// bucketSlotSignatures maps each slot to the signature executed in it.
	bucketSlotSignatures = []byte("slot_sigs")

	// bucketAddressSignatures indexes signatures by address+slot.
	bucketAddressSignatures = []byte("addr_sigs")

	// bucketMetadata stores blockstore metadata.
	bucketMetadata = []byte("metadata")
)

// Metadata keys.
var (
	keyLatestSlot       = []byte("latest_slot")
	keyOldestSlot       = []byte("oldest_slot")
	keyTransactionCount = []byte("transaction_count")
	keyFailedCount      = []byte("failed_count")
)

// addrEntrySize is signature (64) + failed flag (1) + block time (8).
const addrEntrySize = 64 + 1 + 8

// Config holds blockstore configuration options.
type Config struct {
	// Path is the file path of the database.
	Path string

	// NoSync disables fsync after each write (faster but less durable).
	NoSync bool

	// PruneEnabled enables automatic pruning of old transactions.
	PruneEnabled bool

	// PruneInterval is how often to run the pruning routine.
	PruneInterval time.Duration

	// RetainSlots is the number of slots to retain during pruning.
	RetainSlots uint64

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool
}

// DefaultConfig returns the default blockstore configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		PruneEnabled:  false,
		PruneInterval: time.Hour,
		RetainSlots:   DefaultRetainSlots,
	}
}

// Store is the ledger interface used by the node and RPC server.
type Store interface {
	runtime.Ledger

	GetTransaction(signature types.Signature) (*TransactionRecord, error)
	GetTransactionStatus(signature types.Signature) (*TransactionStatus, error)
	GetSignaturesForAddress(address types.Pubkey, opts *SignatureQueryOptions) ([]SignatureInfo, error)

	GetLatestSlot() uint64
	GetOldestSlot() uint64

	Prune(keepSlots uint64) (uint64, error)
	GetStats() (*Stats, error)
	Sync() error
	Close() error
}

// Stats contains blockstore statistics.
type Stats struct {
	// LatestSlot is the most recent slot stored.
	LatestSlot uint64 `json:"latestSlot"`

	// OldestSlot is the oldest slot still retained.
	OldestSlot uint64 `json:"oldestSlot"`

	// TransactionCount is the number of transactions recorded.
	TransactionCount uint64 `json:"transactionCount"`

	// FailedCount is how many of them rolled back.
	FailedCount uint64 `json:"failedCount"`

	// DatabaseSize is the size of the database file in bytes.
	DatabaseSize int64 `json:"databaseSize"`
}

// SignatureQueryOptions configures signature queries.
type SignatureQueryOptions struct {
	// Limit is the maximum number of signatures to return.
	Limit int

	// Before returns signatures older than (not including) this signature.
	Before *types.Signature

	// Until stops at (not including) this signature.
	Until *types.Signature
}

// DefaultSignatureLimit caps GetSignaturesForAddress results.
const DefaultSignatureLimit = 1000

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db     *bolt.DB
	config Config

	enc *zstd.Encoder
	dec *zstd.Decoder

	// Cached values for fast reads.
	mu               sync.RWMutex
	latestSlot       uint64
	oldestSlot       uint64
	transactionCount uint64
	failedCount      uint64

	// Pruning control.
	pruneStop chan struct{}
	pruneWG   sync.WaitGroup

	closed bool
}

// Open creates or opens a blockstore at the given path.
func Open(config Config) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	opts := &bolt.Options{
		Timeout:  5 * time.Second,
		NoSync:   config.NoSync,
		ReadOnly: config.ReadOnly,
	}
	db, err := bolt.Open(config.Path, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	store := &BoltStore{
		db:        db,
		config:    config,
		enc:       enc,
		dec:       dec,
		pruneStop: make(chan struct{}),
	}

	if !config.ReadOnly {
		if err := store.initBuckets(); err != nil {
			db.Close()
			return nil, fmt.Errorf("init buckets: %w", err)
		}
	}
	if err := store.loadCachedValues(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load cached values: %w", err)
	}
	if config.PruneEnabled && !config.ReadOnly {
		store.startPruning()
	}
	return store, nil
}

// initBuckets creates all required buckets.
func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketTxBySignature, bucketSlotSignatures, bucketAddressSignatures, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// loadCachedValues loads frequently-accessed values into memory.
func (s *BoltStore) loadCachedValues() error {
	return s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMetadata)
		if meta == nil {
			return nil
		}
		if v := meta.Get(keyLatestSlot); v != nil {
			s.latestSlot = DecodeSlotKey(v)
		}
		if v := meta.Get(keyOldestSlot); v != nil {
			s.oldestSlot = DecodeSlotKey(v)
		}
		if v := meta.Get(keyTransactionCount); v != nil {
			s.transactionCount = DecodeSlotKey(v)
		}
		if v := meta.Get(keyFailedCount); v != nil {
			s.failedCount = DecodeSlotKey(v)
		}
		return nil
	})
}

// startPruning starts the background pruning goroutine.
func (s *BoltStore) startPruning() {
	s.pruneWG.Add(1)
	go func() {
		defer s.pruneWG.Done()
		ticker := time.NewTicker(s.config.PruneInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n, err := s.Prune(s.config.RetainSlots); err != nil {
					klog.Errorf("[blockstore] prune failed: %v", err)
				} else if n > 0 {
					klog.Infof("[blockstore] pruned %d transactions", n)
				}
			case <-s.pruneStop:
				return
			}
		}
	}()
}

func (s *BoltStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *BoltStore) encodeRecord(rec *TransactionRecord) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return s.enc.EncodeAll(raw, nil), nil
}

func (s *BoltStore) decodeRecord(data []byte) (*TransactionRecord, error) {
	raw, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress record: %w", err)
	}
	var rec TransactionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

// RecordTransaction stores a transaction with its receipt and indexes it by
// slot and by every account it referenced.
func (s *BoltStore) RecordTransaction(txn *runtime.Transaction, receipt *runtime.Receipt) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	raw, err := txn.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	data, err := s.encodeRecord(&TransactionRecord{
		Slot:        receipt.Slot,
		BlockTime:   receipt.BlockTime,
		Transaction: raw,
		Receipt:     receipt,
	})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	entry := make([]byte, addrEntrySize)
	copy(entry, receipt.Signature[:])
	if !receipt.Succeeded() {
		entry[64] = 1
	}
	binary.BigEndian.PutUint64(entry[65:], uint64(receipt.BlockTime))

	sigKey := EncodeSignatureKey(receipt.Signature)
	slotKey := EncodeSlotKey(receipt.Slot)

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.Update(func(tx *bolt.Tx) error {
		txBySig := tx.Bucket(bucketTxBySignature)
		if txBySig.Get(sigKey) != nil {
			return ErrDuplicateTransaction
		}
		if err := txBySig.Put(sigKey, data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketSlotSignatures).Put(slotKey, sigKey); err != nil {
			return err
		}
		addrSigs := tx.Bucket(bucketAddressSignatures)
		for _, addr := range receipt.AccountKeys {
			if err := addrSigs.Put(EncodeAddressSlotKey(addr, receipt.Slot), entry); err != nil {
				return err
			}
		}

		meta := tx.Bucket(bucketMetadata)
		latest := s.latestSlot
		if receipt.Slot > latest {
			latest = receipt.Slot
		}
		oldest := s.oldestSlot
		if oldest == 0 || receipt.Slot < oldest {
			oldest = receipt.Slot
		}
		failed := s.failedCount
		if !receipt.Succeeded() {
			failed++
		}
		for k, v := range map[string]uint64{
			string(keyLatestSlot):       latest,
			string(keyOldestSlot):       oldest,
			string(keyTransactionCount): s.transactionCount + 1,
			string(keyFailedCount):      failed,
		} {
			if err := meta.Put([]byte(k), EncodeSlotKey(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if receipt.Slot > s.latestSlot {
		s.latestSlot = receipt.Slot
	}
	if s.oldestSlot == 0 || receipt.Slot < s.oldestSlot {
		s.oldestSlot = receipt.Slot
	}
	s.transactionCount++
	if !receipt.Succeeded() {
		s.failedCount++
	}
	return nil
}

// HasTransaction reports whether a signature has been recorded.
func (s *BoltStore) HasTransaction(sig types.Signature) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketTxBySignature).Get(EncodeSignatureKey(sig)) != nil
		return nil
	})
	return found, err
}

// GetTransaction retrieves a transaction record by signature.
func (s *BoltStore) GetTransaction(signature types.Signature) (*TransactionRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTxBySignature).Get(EncodeSignatureKey(signature))
		if v == nil {
			return ErrTransactionNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.decodeRecord(data)
}

// GetTransactionStatus returns the slot and error of a transaction.
func (s *BoltStore) GetTransactionStatus(signature types.Signature) (*TransactionStatus, error) {
	rec, err := s.GetTransaction(signature)
	if err != nil {
		return nil, err
	}
	return &TransactionStatus{
		Slot:      rec.Slot,
		Signature: signature,
		Err:       rec.Receipt.Err,
	}, nil
}

// GetSignaturesForAddress returns signatures that referenced address, newest first.
func (s *BoltStore) GetSignaturesForAddress(address types.Pubkey, opts *SignatureQueryOptions) ([]SignatureInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &SignatureQueryOptions{}
	}
	limit := opts.Limit
	if limit <= 0 || limit > DefaultSignatureLimit {
		limit = DefaultSignatureLimit
	}

	startSlot := uint64(math.MaxUint64)
	if opts.Before != nil {
		status, err := s.GetTransactionStatus(*opts.Before)
		if err != nil {
			return nil, fmt.Errorf("before: %w", err)
		}
		if status.Slot == 0 {
			return nil, nil
		}
		startSlot = status.Slot - 1
	}
	var untilSlot uint64
	if opts.Until != nil {
		status, err := s.GetTransactionStatus(*opts.Until)
		if err != nil {
			return nil, fmt.Errorf("until: %w", err)
		}
		untilSlot = status.Slot
	}

	var out []SignatureInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAddressSignatures).Cursor()
		start := EncodeAddressSlotKey(address, startSlot)

		k, v := c.Seek(start)
		if k == nil {
			k, v = c.Last()
		} else if !bytes.Equal(k, start) {
			k, v = c.Prev()
		}
		for ; k != nil && len(out) < limit; k, v = c.Prev() {
			addr, slot := DecodeAddressSlotKey(k)
			if addr != address {
				break
			}
			if opts.Until != nil && slot <= untilSlot {
				break
			}
			if len(v) != addrEntrySize {
				continue
			}
			info := SignatureInfo{
				Slot:      slot,
				Failed:    v[64] == 1,
				BlockTime: int64(binary.BigEndian.Uint64(v[65:])),
			}
			copy(info.Signature[:], v[:64])
			out = append(out, info)
		}
		return nil
	})
	return out, err
}

// GetLatestSlot returns the most recent slot recorded.
func (s *BoltStore) GetLatestSlot() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestSlot
}

// GetOldestSlot returns the oldest slot still retained.
func (s *BoltStore) GetOldestSlot() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.oldestSlot
}

// Prune removes transactions older than the retention window and returns
// how many were deleted.
func (s *BoltStore) Prune(keepSlots uint64) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	latest := s.GetLatestSlot()
	if latest <= keepSlots {
		return 0, nil
	}
	cutoff := latest - keepSlots

	var pruned uint64
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Update(func(tx *bolt.Tx) error {
		slots := tx.Bucket(bucketSlotSignatures)
		txBySig := tx.Bucket(bucketTxBySignature)
		addrSigs := tx.Bucket(bucketAddressSignatures)

		type victim struct {
			slot uint64
			sig  []byte
		}
		var victims []victim
		c := slots.Cursor()
		for k, v := c.First(); k != nil && DecodeSlotKey(k) < cutoff; k, v = c.Next() {
			victims = append(victims, victim{slot: DecodeSlotKey(k), sig: append([]byte(nil), v...)})
		}

		for _, vic := range victims {
			data := txBySig.Get(vic.sig)
			if data != nil {
				rec, err := s.decodeRecord(data)
				if err != nil {
					return err
				}
				for _, addr := range rec.Receipt.AccountKeys {
					if err := addrSigs.Delete(EncodeAddressSlotKey(addr, vic.slot)); err != nil {
						return err
					}
				}
				if err := txBySig.Delete(vic.sig); err != nil {
					return err
				}
			}
			if err := slots.Delete(EncodeSlotKey(vic.slot)); err != nil {
				return err
			}
			pruned++
		}
		if pruned == 0 {
			return nil
		}
		return tx.Bucket(bucketMetadata).Put(keyOldestSlot, EncodeSlotKey(cutoff))
	})
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		s.oldestSlot = cutoff
	}
	return pruned, nil
}

// GetStats returns blockstore statistics.
func (s *BoltStore) GetStats() (*Stats, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	stats := &Stats{
		LatestSlot:       s.latestSlot,
		OldestSlot:       s.oldestSlot,
		TransactionCount: s.transactionCount,
		FailedCount:      s.failedCount,
	}
	s.mu.RUnlock()

	if info, err := os.Stat(s.config.Path); err == nil {
		stats.DatabaseSize = info.Size()
	}
	return stats, nil
}

// Sync forces an fsync of the database.
func (s *BoltStore) Sync() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Sync()
}

// Close stops pruning and closes the database.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.pruneStop)
	s.pruneWG.Wait()
	s.dec.Close()
	s.enc.Close()
	return s.db.Close()
}

var _ Store = (*BoltStore)(nil)

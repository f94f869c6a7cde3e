package accounts

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/X1-Duel/internal/types"
)

// Snapshot file format:
//
//	magic "X1DS" | version u32 | slot u64 | count u64 | accounts hash [32]
//	zstd stream of records: pubkey [32] | size u32 | serialized account
//
// The header is rewritten on Close once the record count is known.
const snapshotVersion uint32 = 1

const snapshotHeaderSize = 4 + 8 + 8 + 32

var snapshotMagic = []byte{'X', '1', 'D', 'S'}

// ErrSnapshotHashMismatch is returned when a restored state does not hash to
// the value recorded in the snapshot header.
var ErrSnapshotHashMismatch = errors.New("snapshot accounts hash mismatch")

// SnapshotHeader describes a snapshot file.
type SnapshotHeader struct {
	Version       uint32
	Slot          uint64
	AccountsCount uint64
	AccountsHash  types.Hash
}

// SnapshotWriter writes accounts to a snapshot file.
type SnapshotWriter struct {
	file   *os.File
	enc    *zstd.Encoder
	writer *bufio.Writer
	header SnapshotHeader
}

// NewSnapshotWriter creates a snapshot file at path.
func NewSnapshotWriter(path string, slot uint64, accountsHash types.Hash) (*SnapshotWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create snapshot file: %w", err)
	}

	sw := &SnapshotWriter{
		file: file,
		header: SnapshotHeader{
			Version:      snapshotVersion,
			Slot:         slot,
			AccountsHash: accountsHash,
		},
	}
	if err := sw.writeHeader(); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}

	sw.enc, err = zstd.NewWriter(file)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("init zstd writer: %w", err)
	}
	sw.writer = bufio.NewWriter(sw.enc)
	return sw, nil
}

func (sw *SnapshotWriter) writeHeader() error {
	buf := make([]byte, 4+snapshotHeaderSize)
	copy(buf, snapshotMagic)
	off := 4
	binary.LittleEndian.PutUint32(buf[off:], sw.header.Version)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], sw.header.Slot)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], sw.header.AccountsCount)
	off += 8
	copy(buf[off:], sw.header.AccountsHash[:])

	_, err := sw.file.WriteAt(buf, 0)
	if err != nil {
		return err
	}
	_, err = sw.file.Seek(int64(len(buf)), io.SeekStart)
	return err
}

// WriteAccount appends one account record.
func (sw *SnapshotWriter) WriteAccount(pubkey types.Pubkey, account *Account) error {
	data := account.Serialize()
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(data)))

	if _, err := sw.writer.Write(pubkey[:]); err != nil {
		return err
	}
	if _, err := sw.writer.Write(size[:]); err != nil {
		return err
	}
	if _, err := sw.writer.Write(data); err != nil {
		return err
	}
	sw.header.AccountsCount++
	return nil
}

// Close flushes the stream and finalizes the header.
func (sw *SnapshotWriter) Close() error {
	if err := sw.writer.Flush(); err != nil {
		sw.file.Close()
		return err
	}
	if err := sw.enc.Close(); err != nil {
		sw.file.Close()
		return err
	}
	if err := sw.writeHeader(); err != nil {
		sw.file.Close()
		return err
	}
	return sw.file.Close()
}

// SnapshotReader reads accounts from a snapshot file.
type SnapshotReader struct {
	file   *os.File
	dec    *zstd.Decoder
	reader *bufio.Reader
	Header SnapshotHeader
	read   uint64
}

// OpenSnapshot opens a snapshot and parses its header.
func OpenSnapshot(path string) (*SnapshotReader, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("open snapshot: %w", err)
	}

	sr := &SnapshotReader{file: file}
	if err := sr.readHeader(); err != nil {
		file.Close()
		return nil, err
	}

	sr.dec, err = zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("init zstd reader: %w", err)
	}
	sr.reader = bufio.NewReader(sr.dec)
	return sr, nil
}

func (sr *SnapshotReader) readHeader() error {
	buf := make([]byte, 4+snapshotHeaderSize)
	if _, err := io.ReadFull(sr.file, buf); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if string(buf[:4]) != string(snapshotMagic) {
		return fmt.Errorf("invalid snapshot magic: %q", buf[:4])
	}

	off := 4
	sr.Header.Version = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if sr.Header.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d", sr.Header.Version)
	}
	sr.Header.Slot = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	sr.Header.AccountsCount = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	copy(sr.Header.AccountsHash[:], buf[off:])
	return nil
}

// ReadAccount returns the next account, or io.EOF after the last one.
func (sr *SnapshotReader) ReadAccount() (types.Pubkey, *Account, error) {
	var pubkey types.Pubkey
	if sr.read >= sr.Header.AccountsCount {
		return pubkey, nil, io.EOF
	}

	if _, err := io.ReadFull(sr.reader, pubkey[:]); err != nil {
		return pubkey, nil, fmt.Errorf("read pubkey: %w", err)
	}
	var sizeBuf [4]byte
	if _, err := io.ReadFull(sr.reader, sizeBuf[:]); err != nil {
		return pubkey, nil, fmt.Errorf("read size: %w", err)
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])
	if size > MaxAccountDataSize+100 {
		return pubkey, nil, fmt.Errorf("account size %d exceeds maximum", size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(sr.reader, data); err != nil {
		return pubkey, nil, fmt.Errorf("read account data: %w", err)
	}
	account, err := DeserializeAccount(data)
	if err != nil {
		return pubkey, nil, fmt.Errorf("deserialize account: %w", err)
	}

	sr.read++
	return pubkey, account, nil
}

// Close releases the reader.
func (sr *SnapshotReader) Close() error {
	if sr.dec != nil {
		sr.dec.Close()
	}
	return sr.file.Close()
}

// CreateSnapshot writes the full state of db to path.
func CreateSnapshot(db DB, path string) (*SnapshotHeader, error) {
	accountsHash, err := NewHashComputer(db).ComputeAccountsHash()
	if err != nil {
		return nil, fmt.Errorf("compute accounts hash: %w", err)
	}

	writer, err := NewSnapshotWriter(path, db.GetSlot(), accountsHash)
	if err != nil {
		return nil, err
	}

	err = db.IterateAccounts(func(pubkey types.Pubkey, account *Account) error {
		return writer.WriteAccount(pubkey, account)
	})
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("write accounts: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close snapshot: %w", err)
	}
	header := writer.header
	return &header, nil
}

// LoadSnapshot restores a snapshot into db, which should be empty, and
// verifies the resulting accounts hash.
func LoadSnapshot(db DB, path string) (*SnapshotHeader, error) {
	reader, err := OpenSnapshot(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	const chunk = 1000
	var (
		bw      *BulkLoader
		pending = make(map[types.Pubkey]*Account, chunk)
	)
	if bdb, ok := db.(*BadgerDB); ok {
		bw = bdb.NewBulkLoader()
	}

	for {
		pubkey, account, err := reader.ReadAccount()
		if err == io.EOF {
			break
		}
		if err != nil {
			if bw != nil {
				bw.Cancel()
			}
			return nil, err
		}

		if bw != nil {
			if err := bw.Add(pubkey, account); err != nil {
				bw.Cancel()
				return nil, fmt.Errorf("set account: %w", err)
			}
			continue
		}

		pending[pubkey] = account
		if len(pending) >= chunk {
			if err := db.ApplyBatch(pending); err != nil {
				return nil, err
			}
			pending = make(map[types.Pubkey]*Account, chunk)
		}
	}

	if bw != nil {
		if err := bw.Flush(); err != nil {
			return nil, fmt.Errorf("flush batch: %w", err)
		}
	} else if err := db.ApplyBatch(pending); err != nil {
		return nil, err
	}

	if err := db.SetSlot(reader.Header.Slot); err != nil {
		return nil, err
	}

	got, err := NewHashComputer(db).ComputeAccountsHash()
	if err != nil {
		return nil, err
	}
	if got != reader.Header.AccountsHash {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrSnapshotHashMismatch, got, reader.Header.AccountsHash)
	}

	header := reader.Header
	return &header, nil
}

package blockstore

import (
	"encoding/binary"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/runtime"
)

// TransactionRecord is what the ledger keeps for every executed transaction.
type TransactionRecord struct {
	// Slot is the slot the executor assigned to the transaction.
	Slot uint64 `json:"slot"`

	// BlockTime is the executor clock when the transaction ran.
	BlockTime int64 `json:"blockTime"`

	// Transaction is the wire encoding of the signed transaction.
	Transaction []byte `json:"transaction"`

	// Receipt is the execution outcome.
	Receipt *runtime.Receipt `json:"receipt"`
}

// Decode returns the signed transaction.
func (r *TransactionRecord) Decode() (*runtime.Transaction, error) {
	var tx runtime.Transaction
	if err := tx.UnmarshalBinary(r.Transaction); err != nil {
		return nil, err
	}
	return &tx, nil
}

// TransactionStatus is the lightweight status returned for signature lookups.
type TransactionStatus struct {
	// Slot is the slot the transaction was processed in.
	Slot uint64 `json:"slot"`

	// Signature is the transaction signature.
	Signature types.Signature `json:"signature"`

	// Err is the error if execution failed.
	Err *runtime.TransactionError `json:"err"`
}

// SignatureInfo is one entry of the address-to-signature index.
type SignatureInfo struct {
	// Signature is the transaction signature.
	Signature types.Signature `json:"signature"`

	// Slot is the slot of the transaction.
	Slot uint64 `json:"slot"`

	// Failed is set when the transaction rolled back.
	Failed bool `json:"failed"`

	// BlockTime is the execution timestamp.
	BlockTime int64 `json:"blockTime"`
}

// Helper functions for key encoding.

// EncodeSlotKey encodes a slot number as a big-endian 8-byte key.
// Big-endian ensures proper lexicographic ordering.
func EncodeSlotKey(slot uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, slot)
	return key
}

// DecodeSlotKey decodes a slot number from a big-endian 8-byte key.
func DecodeSlotKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key)
}

// EncodeSignatureKey encodes a signature as a key (raw bytes).
func EncodeSignatureKey(sig types.Signature) []byte {
	return sig[:]
}

// EncodeAddressSlotKey encodes an address+slot composite key.
// Format: [32-byte address][8-byte slot big-endian]
func EncodeAddressSlotKey(addr types.Pubkey, slot uint64) []byte {
	key := make([]byte, 40)
	copy(key[:32], addr[:])
	binary.BigEndian.PutUint64(key[32:], slot)
	return key
}

// DecodeAddressSlotKey decodes an address+slot composite key.
func DecodeAddressSlotKey(key []byte) (types.Pubkey, uint64) {
	var addr types.Pubkey
	if len(key) < 40 {
		return addr, 0
	}
	copy(addr[:], key[:32])
	return addr, binary.BigEndian.Uint64(key[32:40])
}

// DefaultRetainSlots is how many slots Prune keeps by default.
const DefaultRetainSlots uint64 = 1_000_000

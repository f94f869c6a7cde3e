package accounts

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/fortiblox/X1-Duel/internal/types"
)

// ComputeAccountHash hashes every field of an account together with its key.
//
// Layout: lamports (8) | rent_epoch (8) | data | executable (1) | owner (32) | pubkey (32)
func ComputeAccountHash(pubkey types.Pubkey, account *Account) types.Hash {
	if account == nil || account.IsZero() {
		return types.Hash{}
	}

	h := blake3.New()
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], account.Lamports)
	h.Write(u64[:])
	binary.LittleEndian.PutUint64(u64[:], account.RentEpoch)
	h.Write(u64[:])
	h.Write(account.Data)
	if account.Executable {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write(account.Owner[:])
	h.Write(pubkey[:])

	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashComputer derives state digests from a DB.
type HashComputer struct {
	db DB
}

// NewHashComputer creates a hash computer over db.
func NewHashComputer(db DB) *HashComputer {
	return &HashComputer{db: db}
}

// ComputeAccountsHash returns the merkle root over every account hash in key order.
func (h *HashComputer) ComputeAccountsHash() (types.Hash, error) {
	var hashes []types.Hash
	err := h.db.IterateAccounts(func(pubkey types.Pubkey, account *Account) error {
		hashes = append(hashes, ComputeAccountHash(pubkey, account))
		return nil
	})
	if err != nil {
		return types.Hash{}, err
	}
	return ComputeMerkleRoot(hashes), nil
}

// ComputeDeltaHash hashes a write set. Deleted accounts contribute the zero hash.
func ComputeDeltaHash(writes map[types.Pubkey]*Account) types.Hash {
	if len(writes) == 0 {
		return types.Hash{}
	}
	keys := make([]types.Pubkey, 0, len(writes))
	for k := range writes {
		keys = append(keys, k)
	}
	SortPubkeys(keys)

	hashes := make([]types.Hash, len(keys))
	for i, k := range keys {
		hashes[i] = ComputeAccountHash(k, writes[k])
	}
	return ComputeMerkleRoot(hashes)
}

// ComputeMerkleRoot builds a binary merkle tree with domain-separated
// leaves (0x00) and nodes (0x01). An odd node is paired with the zero hash.
func ComputeMerkleRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 0 {
		return types.Hash{}
	}

	level := make([]types.Hash, len(hashes))
	for i, h := range hashes {
		level[i] = leafHash(h)
	}

	for len(level) > 1 {
		next := make([]types.Hash, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			var right types.Hash
			if i+1 < len(level) {
				right = level[i+1]
			}
			next[i/2] = nodeHash(level[i], right)
		}
		level = next
	}
	return level[0]
}

func leafHash(data types.Hash) types.Hash {
	var buf [33]byte
	buf[0] = 0x00
	copy(buf[1:], data[:])
	return blake3.Sum256(buf[:])
}

func nodeHash(left, right types.Hash) types.Hash {
	var buf [65]byte
	buf[0] = 0x01
	copy(buf[1:], left[:])
	copy(buf[33:], right[:])
	return blake3.Sum256(buf[:])
}

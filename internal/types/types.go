// Package types defines the key, signature and digest types shared by the
// node, its programs and its clients. All of them render as base58 text.
package types

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Size constants for core types.
const (
	PubkeySize    = 32
	SignatureSize = 64
	HashSize      = 32
)

var (
	ErrInvalidPubkey    = errors.New("invalid pubkey: must be 32 bytes")
	ErrInvalidSignature = errors.New("invalid signature: must be 64 bytes")
	ErrInvalidHash      = errors.New("invalid hash: must be 32 bytes")
)

// decodeBase58 fills dst from s, which must decode to exactly len(dst) bytes.
func decodeBase58(dst []byte, s string, invalid error) error {
	data, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("base58 decode: %w", err)
	}
	if len(data) != len(dst) {
		return invalid
	}
	copy(dst, data)
	return nil
}

// Pubkey is an Ed25519 public key or a program-derived address.
type Pubkey [PubkeySize]byte

// ZeroPubkey marks an unset address in program records. It is also the
// system program's address.
var ZeroPubkey Pubkey

// PubkeyFromBase58 parses a base58-encoded public key.
func PubkeyFromBase58(s string) (Pubkey, error) {
	var p Pubkey
	err := decodeBase58(p[:], s, ErrInvalidPubkey)
	return p, err
}

// PubkeyFromBytes copies a 32-byte slice into a Pubkey.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var p Pubkey
	if len(b) != PubkeySize {
		return p, ErrInvalidPubkey
	}
	copy(p[:], b)
	return p, nil
}

// MustPubkeyFromBase58 is PubkeyFromBase58 for package-level constants.
func MustPubkeyFromBase58(s string) Pubkey {
	p, err := PubkeyFromBase58(s)
	if err != nil {
		panic(fmt.Sprintf("invalid pubkey constant %q: %v", s, err))
	}
	return p
}

func (p Pubkey) String() string { return base58.Encode(p[:]) }

// IsZero reports whether p is unset.
func (p Pubkey) IsZero() bool { return p == ZeroPubkey }

// MarshalText implements encoding.TextMarshaler.
func (p Pubkey) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	return decodeBase58(p[:], string(text), ErrInvalidPubkey)
}

// Signature is an Ed25519 signature. A transaction is identified by its
// fee payer's signature.
type Signature [SignatureSize]byte

// SignatureFromBase58 parses a base58-encoded signature.
func SignatureFromBase58(s string) (Signature, error) {
	var sig Signature
	err := decodeBase58(sig[:], s, ErrInvalidSignature)
	return sig, err
}

func (s Signature) String() string { return base58.Encode(s[:]) }

// IsZero reports whether s is unset.
func (s Signature) IsZero() bool { return s == Signature{} }

// Verify checks s against message under pubkey.
func (s Signature) Verify(pubkey Pubkey, message []byte) bool {
	return ed25519.Verify(pubkey[:], message, s[:])
}

// MarshalText implements encoding.TextMarshaler.
func (s Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signature) UnmarshalText(text []byte) error {
	return decodeBase58(s[:], string(text), ErrInvalidSignature)
}

// Hash is a 32-byte digest, such as the account state hash.
type Hash [HashSize]byte

func (h Hash) String() string { return base58.Encode(h[:]) }

// IsZero reports whether h is unset.
func (h Hash) IsZero() bool { return h == Hash{} }

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	return decodeBase58(h[:], string(text), ErrInvalidHash)
}

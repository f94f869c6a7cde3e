// Package wallet stores signing keys in password-encrypted keystore files.
//
// A keystore is a small JSON document: the public address in the clear and
// the 32-byte ed25519 seed sealed with AES-256-GCM under a key derived from
// the password with PBKDF2-SHA256. Plain Solana CLI keypair files (a JSON
// array of 64 bytes) can be imported as well.
package wallet

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/pbkdf2"

	"github.com/fortiblox/X1-Duel/internal/types"
)

// Keystore format constants.
const (
	Version           = 1
	KDFName           = "pbkdf2-sha256"
	CipherName        = "aes-256-gcm"
	DefaultIterations = 262_144
	saltSize          = 32
	keySize           = 32
)

var (
	// ErrWrongPassword is returned when the password does not open the keystore.
	ErrWrongPassword = errors.New("wrong password or corrupted keystore")

	// ErrUnsupported is returned for keystores with an unknown version, KDF or cipher.
	ErrUnsupported = errors.New("unsupported keystore")

	// ErrAddressMismatch is returned when the decrypted key does not match the stored address.
	ErrAddressMismatch = errors.New("keystore address does not match key")
)

// Keystore is the on-disk JSON form.
type Keystore struct {
	Version int          `json:"version"`
	Address types.Pubkey `json:"address"`
	Crypto  CryptoParams `json:"crypto"`
}

// CryptoParams describes how the seed is sealed. Byte fields are hex.
type CryptoParams struct {
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Cipher     string `json:"cipher"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Encrypt seals kp under password using iterations rounds of PBKDF2.
func Encrypt(kp *types.Keypair, password string, iterations int) (*Keystore, error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}

	aead, err := newAEAD(password, salt, iterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, kp.Seed(), kp.Public[:])

	return &Keystore{
		Version: Version,
		Address: kp.Public,
		Crypto: CryptoParams{
			KDF:        KDFName,
			Iterations: iterations,
			Salt:       hex.EncodeToString(salt),
			Cipher:     CipherName,
			Nonce:      hex.EncodeToString(nonce),
			Ciphertext: hex.EncodeToString(sealed),
		},
	}, nil
}

// Decrypt opens the keystore with password.
func (ks *Keystore) Decrypt(password string) (*types.Keypair, error) {
	if ks.Version != Version || ks.Crypto.KDF != KDFName || ks.Crypto.Cipher != CipherName {
		return nil, fmt.Errorf("%w: version %d, kdf %q, cipher %q", ErrUnsupported, ks.Version, ks.Crypto.KDF, ks.Crypto.Cipher)
	}
	salt, err := hex.DecodeString(ks.Crypto.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	nonce, err := hex.DecodeString(ks.Crypto.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	sealed, err := hex.DecodeString(ks.Crypto.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	aead, err := newAEAD(password, salt, ks.Crypto.Iterations)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce length %d", ErrUnsupported, len(nonce))
	}
	seed, err := aead.Open(nil, nonce, sealed, ks.Address[:])
	if err != nil {
		return nil, ErrWrongPassword
	}

	kp, err := types.KeypairFromSeed(seed)
	if err != nil {
		return nil, err
	}
	if kp.Public != ks.Address {
		return nil, ErrAddressMismatch
	}
	return kp, nil
}

func newAEAD(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: iterations %d", ErrUnsupported, iterations)
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Save encrypts kp and writes it to path with owner-only permissions. It
// refuses to overwrite an existing file.
func Save(path string, kp *types.Keypair, password string, iterations int) error {
	ks, err := Encrypt(kp, password, iterations)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode keystore: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create keystore dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create keystore: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write keystore: %w", err)
	}
	return f.Close()
}

// ReadKeystore parses a keystore file without decrypting it.
func ReadKeystore(path string) (*Keystore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ks Keystore
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("parse keystore %s: %w", path, err)
	}
	return &ks, nil
}

// Load reads and decrypts the keystore at path.
func Load(path, password string) (*types.Keypair, error) {
	ks, err := ReadKeystore(path)
	if err != nil {
		return nil, err
	}
	return ks.Decrypt(password)
}

// ImportSolanaKeygen reads an unencrypted Solana CLI keypair file.
func ImportSolanaKeygen(path string) (*types.Keypair, error) {
	priv, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}
	if len(priv) != 64 {
		return nil, fmt.Errorf("invalid keypair file: %d bytes", len(priv))
	}
	kp, err := types.KeypairFromSeed([]byte(priv)[:32])
	if err != nil {
		return nil, err
	}
	if pub := priv.PublicKey(); types.Pubkey(pub) != kp.Public {
		return nil, ErrAddressMismatch
	}
	return kp, nil
}

// ExportSolanaKeygen writes kp as a Solana CLI keypair file (unencrypted).
func ExportSolanaKeygen(path string, kp *types.Keypair) error {
	raw := make([]int, len(kp.Private))
	for i, b := range kp.Private {
		raw[i] = int(b)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadKey reads a signing key from either format: a JSON array is taken as
// a Solana CLI keypair file, anything else as an encrypted keystore.
func LoadKey(path, password string) (*types.Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		return ImportSolanaKeygen(path)
	}
	return Load(path, password)
}

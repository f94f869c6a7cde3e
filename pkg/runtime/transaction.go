package runtime

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/svm"
)

// Limits on transaction shape.
const (
	MaxInstructions     = 64
	MaxAccountsPerTx    = 64
	MaxInstructionData  = 1232
	MaxTransactionSize  = 64 * 1024
	maxAccountsPerInstr = 32
)

var (
	// ErrMissingSignature is returned when a required signer did not sign.
	ErrMissingSignature = errors.New("missing signature for required signer")

	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("transaction signature verification failure")

	// ErrTooManySignatures is returned when more signatures than signers are supplied.
	ErrTooManySignatures = errors.New("too many signatures")

	// ErrMalformedTransaction is returned for undecodable or oversize transactions.
	ErrMalformedTransaction = errors.New("malformed transaction")

	// ErrNoInstructions is returned for empty transactions.
	ErrNoInstructions = errors.New("transaction has no instructions")
)

// Message is the signed body of a transaction.
type Message struct {
	FeePayer        types.Pubkey      `json:"feePayer"`
	RecentTimestamp int64             `json:"recentTimestamp"`
	Nonce           uint64            `json:"nonce"`
	Instructions    []svm.Instruction `json:"instructions"`
}

// Transaction is a message plus one signature per required signer.
type Transaction struct {
	Signatures []types.Signature `json:"signatures"`
	Message    Message           `json:"message"`
}

// NewTransaction builds an unsigned transaction.
func NewTransaction(feePayer types.Pubkey, recent int64, nonce uint64, ixs ...svm.Instruction) *Transaction {
	return &Transaction{
		Message: Message{
			FeePayer:        feePayer,
			RecentTimestamp: recent,
			Nonce:           nonce,
			Instructions:    ixs,
		},
	}
}

// Signers returns the keys that must sign, fee payer first, then every
// signer meta in instruction order, without duplicates.
func (m *Message) Signers() []types.Pubkey {
	seen := map[types.Pubkey]bool{m.FeePayer: true}
	out := []types.Pubkey{m.FeePayer}
	for _, ix := range m.Instructions {
		for _, meta := range ix.Accounts {
			if meta.IsSigner && !seen[meta.Pubkey] {
				seen[meta.Pubkey] = true
				out = append(out, meta.Pubkey)
			}
		}
	}
	return out
}

// AccountKeys returns every key the message touches in first-seen order,
// with the union of their writable flags. The fee payer is always writable.
func (m *Message) AccountKeys() ([]types.Pubkey, map[types.Pubkey]bool) {
	writable := map[types.Pubkey]bool{m.FeePayer: true}
	keys := []types.Pubkey{m.FeePayer}
	add := func(k types.Pubkey, w bool) {
		if _, ok := writable[k]; !ok {
			keys = append(keys, k)
			writable[k] = false
		}
		if w {
			writable[k] = true
		}
	}
	for _, ix := range m.Instructions {
		add(ix.ProgramID, false)
		for _, meta := range ix.Accounts {
			add(meta.Pubkey, meta.IsWritable)
		}
	}
	return keys, writable
}

// MarshalWithEncoder writes the message in borsh layout.
func (m *Message) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(m.FeePayer[:], false); err != nil {
		return err
	}
	if err := enc.WriteInt64(m.RecentTimestamp, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint64(m.Nonce, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint32(uint32(len(m.Instructions)), bin.LE); err != nil {
		return err
	}
	for _, ix := range m.Instructions {
		if err := enc.WriteBytes(ix.ProgramID[:], false); err != nil {
			return err
		}
		if err := enc.WriteUint32(uint32(len(ix.Accounts)), bin.LE); err != nil {
			return err
		}
		for _, meta := range ix.Accounts {
			if err := enc.WriteBytes(meta.Pubkey[:], false); err != nil {
				return err
			}
			if err := enc.WriteBool(meta.IsSigner); err != nil {
				return err
			}
			if err := enc.WriteBool(meta.IsWritable); err != nil {
				return err
			}
		}
		if err := enc.WriteUint32(uint32(len(ix.Data)), bin.LE); err != nil {
			return err
		}
		if err := enc.WriteBytes(ix.Data, false); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalWithDecoder reads a borsh message, bounding every length prefix.
func (m *Message) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if m.FeePayer, err = readPubkey(dec); err != nil {
		return err
	}
	if m.RecentTimestamp, err = dec.ReadInt64(bin.LE); err != nil {
		return err
	}
	if m.Nonce, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	if n > MaxInstructions {
		return fmt.Errorf("%w: %d instructions", ErrMalformedTransaction, n)
	}
	m.Instructions = make([]svm.Instruction, n)
	for i := range m.Instructions {
		ix := &m.Instructions[i]
		if ix.ProgramID, err = readPubkey(dec); err != nil {
			return err
		}
		na, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return err
		}
		if na > maxAccountsPerInstr {
			return fmt.Errorf("%w: %d accounts in instruction %d", ErrMalformedTransaction, na, i)
		}
		ix.Accounts = make([]svm.AccountMeta, na)
		for j := range ix.Accounts {
			meta := &ix.Accounts[j]
			if meta.Pubkey, err = readPubkey(dec); err != nil {
				return err
			}
			if meta.IsSigner, err = dec.ReadBool(); err != nil {
				return err
			}
			if meta.IsWritable, err = dec.ReadBool(); err != nil {
				return err
			}
		}
		dl, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return err
		}
		if dl > MaxInstructionData {
			return fmt.Errorf("%w: %d bytes of data in instruction %d", ErrMalformedTransaction, dl, i)
		}
		if ix.Data, err = dec.ReadBytes(int(dl)); err != nil {
			return err
		}
		ix.Data = append([]byte(nil), ix.Data...)
	}
	return nil
}

// Bytes returns the message bytes covered by signatures.
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.MarshalWithEncoder(bin.NewBorshEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sign signs the message with each keypair, placing signatures in Signers order.
// Keypairs that are not required signers are ignored.
func (tx *Transaction) Sign(signers ...*types.Keypair) error {
	msg, err := tx.Message.Bytes()
	if err != nil {
		return err
	}
	required := tx.Message.Signers()
	if len(tx.Signatures) != len(required) {
		sigs := make([]types.Signature, len(required))
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	for _, kp := range signers {
		for i, key := range required {
			if key == kp.Public {
				tx.Signatures[i] = kp.Sign(msg)
			}
		}
	}
	return nil
}

// Signature is the transaction id: the fee payer's signature.
func (tx *Transaction) Signature() types.Signature {
	if len(tx.Signatures) == 0 {
		return types.Signature{}
	}
	return tx.Signatures[0]
}

// Verify checks that every required signer produced a valid signature and
// returns the set of verified keys.
func (tx *Transaction) Verify() (map[types.Pubkey]bool, error) {
	if len(tx.Message.Instructions) == 0 {
		return nil, ErrNoInstructions
	}
	msg, err := tx.Message.Bytes()
	if err != nil {
		return nil, err
	}
	required := tx.Message.Signers()
	if len(tx.Signatures) > len(required) {
		return nil, ErrTooManySignatures
	}
	verified := make(map[types.Pubkey]bool, len(required))
	for i, key := range required {
		if i >= len(tx.Signatures) || tx.Signatures[i].IsZero() {
			return nil, fmt.Errorf("%w: %s", ErrMissingSignature, key)
		}
		if !tx.Signatures[i].Verify(key, msg) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSignature, key)
		}
		verified[key] = true
	}
	return verified, nil
}

// MarshalBinary encodes the transaction: signature count, signatures, message.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	if err := enc.WriteUint32(uint32(len(tx.Signatures)), bin.LE); err != nil {
		return nil, err
	}
	for _, sig := range tx.Signatures {
		if err := enc.WriteBytes(sig[:], false); err != nil {
			return nil, err
		}
	}
	if err := tx.Message.MarshalWithEncoder(enc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a transaction produced by MarshalBinary.
func (tx *Transaction) UnmarshalBinary(data []byte) error {
	if len(data) > MaxTransactionSize {
		return fmt.Errorf("%w: %d bytes", ErrMalformedTransaction, len(data))
	}
	dec := bin.NewBorshDecoder(data)
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if n > MaxAccountsPerTx {
		return fmt.Errorf("%w: %d signatures", ErrMalformedTransaction, n)
	}
	tx.Signatures = make([]types.Signature, n)
	for i := range tx.Signatures {
		raw, err := dec.ReadBytes(types.SignatureSize)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
		}
		copy(tx.Signatures[i][:], raw)
	}
	if err := tx.Message.UnmarshalWithDecoder(dec); err != nil {
		if errors.Is(err, ErrMalformedTransaction) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if dec.Remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedTransaction, dec.Remaining())
	}
	return nil
}

func readPubkey(dec *bin.Decoder) (types.Pubkey, error) {
	raw, err := dec.ReadBytes(types.PubkeySize)
	if err != nil {
		return types.Pubkey{}, err
	}
	return types.PubkeyFromBytes(raw)
}

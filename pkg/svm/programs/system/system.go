// Package system implements the native System Program.
//
// The System Program owns every wallet account. It is the only way to
// create accounts, assign them to another program, and move lamports out of
// a wallet. The duel program reaches it through cross-program invocation to
// fund escrows and to create its PDA accounts.
package system

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
	"github.com/fortiblox/X1-Duel/pkg/svm"
)

// ProgramID is the System Program address.
var ProgramID = types.SystemProgramAddr

// Instruction discriminants (little-endian u32 prefix).
const (
	InstructionCreateAccount uint32 = 0
	InstructionAssign        uint32 = 1
	InstructionTransfer      uint32 = 2
	InstructionAllocate      uint32 = 8
)

// Error types.
var (
	ErrInvalidInstructionData   = errors.New("invalid instruction data")
	ErrInsufficientFunds        = errors.New("insufficient funds for instruction")
	ErrAccountAlreadyInUse      = errors.New("account already in use")
	ErrInvalidAccountOwner      = errors.New("invalid account owner")
	ErrAccountNotRentExempt     = errors.New("account not rent exempt")
	ErrMissingRequiredSignature = errors.New("missing required signature for instruction")
	ErrAccountDataTooLarge      = errors.New("account data too large")
	ErrTransferFromDataAccount  = errors.New("transfer: `from` must not carry data")
	ErrArithmeticOverflow       = errors.New("arithmetic overflowed")
)

// Processor executes System Program instructions.
type Processor struct{}

// NewProcessor creates a new System Program processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// ID returns the System Program address.
func (p *Processor) ID() types.Pubkey {
	return ProgramID
}

// Process executes a System Program instruction.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if err := ctx.ConsumeCU(svm.CUSystemProgramDefault); err != nil {
		return err
	}

	dec := bin.NewBinDecoder(data)
	kind, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return ErrInvalidInstructionData
	}

	switch kind {
	case InstructionCreateAccount:
		var params CreateAccountParams
		if err := params.UnmarshalWithDecoder(dec); err != nil {
			return err
		}
		return p.createAccount(ctx, params)
	case InstructionAssign:
		owner, err := readPubkey(dec)
		if err != nil {
			return err
		}
		return p.assign(ctx, owner)
	case InstructionTransfer:
		lamports, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return ErrInvalidInstructionData
		}
		return p.transfer(ctx, lamports)
	case InstructionAllocate:
		space, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return ErrInvalidInstructionData
		}
		return p.allocate(ctx, space)
	default:
		return fmt.Errorf("%w: unknown discriminant %d", ErrInvalidInstructionData, kind)
	}
}

// CreateAccountParams are the arguments of CreateAccount.
type CreateAccountParams struct {
	Lamports uint64
	Space    uint64
	Owner    types.Pubkey
}

// UnmarshalWithDecoder reads lamports, space and owner.
func (c *CreateAccountParams) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if c.Lamports, err = dec.ReadUint64(bin.LE); err != nil {
		return ErrInvalidInstructionData
	}
	if c.Space, err = dec.ReadUint64(bin.LE); err != nil {
		return ErrInvalidInstructionData
	}
	c.Owner, err = readPubkey(dec)
	return err
}

// MarshalWithEncoder writes lamports, space and owner.
func (c CreateAccountParams) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(c.Lamports, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint64(c.Space, bin.LE); err != nil {
		return err
	}
	return enc.WriteBytes(c.Owner[:], false)
}

func readPubkey(dec *bin.Decoder) (types.Pubkey, error) {
	raw, err := dec.ReadBytes(types.PubkeySize)
	if err != nil {
		return types.Pubkey{}, ErrInvalidInstructionData
	}
	return types.PubkeyFromBytes(raw)
}

func accountAt(ctx svm.InvokeContext, i int) (*svm.AccountInfo, error) {
	accts := ctx.Accounts()
	if i >= len(accts) {
		return nil, svm.ErrNotEnoughAccountKeys
	}
	return accts[i], nil
}

// createAccount: [0] funder (signer, writable), [1] new account (signer, writable).
func (p *Processor) createAccount(ctx svm.InvokeContext, params CreateAccountParams) error {
	funder, err := accountAt(ctx, 0)
	if err != nil {
		return err
	}
	newAccount, err := accountAt(ctx, 1)
	if err != nil {
		return err
	}

	if params.Space > accounts.MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}
	if !funder.IsSigner {
		ctx.Log("Create Account: `from` account %s must sign", funder.Key)
		return ErrMissingRequiredSignature
	}
	if !newAccount.IsSigner {
		ctx.Log("Create Account: `to` account %s must sign", newAccount.Key)
		return ErrMissingRequiredSignature
	}
	if newAccount.Lamports > 0 || len(newAccount.Data) > 0 || newAccount.Owner != ProgramID {
		ctx.Log("Create Account: account %s already in use", newAccount.Key)
		return ErrAccountAlreadyInUse
	}
	if minBalance := ctx.Rent().MinimumBalance(params.Space); params.Lamports < minBalance {
		ctx.Log("Create Account: %d lamports below rent-exempt minimum %d", params.Lamports, minBalance)
		return ErrAccountNotRentExempt
	}

	if err := move(ctx, funder, newAccount, params.Lamports); err != nil {
		return err
	}
	newAccount.Data = make([]byte, params.Space)
	newAccount.Owner = params.Owner
	return nil
}

// assign: [0] account (signer, writable).
func (p *Processor) assign(ctx svm.InvokeContext, owner types.Pubkey) error {
	acct, err := accountAt(ctx, 0)
	if err != nil {
		return err
	}
	if acct.Owner == owner {
		return nil
	}
	if !acct.IsSigner {
		ctx.Log("Assign: account %s must sign", acct.Key)
		return ErrMissingRequiredSignature
	}
	if acct.Owner != ProgramID {
		return ErrInvalidAccountOwner
	}
	acct.Owner = owner
	return nil
}

// transfer: [0] from (signer, writable), [1] to (writable).
func (p *Processor) transfer(ctx svm.InvokeContext, lamports uint64) error {
	from, err := accountAt(ctx, 0)
	if err != nil {
		return err
	}
	to, err := accountAt(ctx, 1)
	if err != nil {
		return err
	}

	if !from.IsSigner {
		ctx.Log("Transfer: `from` account %s must sign", from.Key)
		return ErrMissingRequiredSignature
	}
	if from.Owner != ProgramID {
		return ErrInvalidAccountOwner
	}
	if len(from.Data) > 0 {
		return ErrTransferFromDataAccount
	}
	return move(ctx, from, to, lamports)
}

// allocate: [0] account (signer, writable).
func (p *Processor) allocate(ctx svm.InvokeContext, space uint64) error {
	acct, err := accountAt(ctx, 0)
	if err != nil {
		return err
	}
	if !acct.IsSigner {
		return ErrMissingRequiredSignature
	}
	if len(acct.Data) > 0 || acct.Owner != ProgramID {
		return ErrAccountAlreadyInUse
	}
	if space > accounts.MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}
	acct.Data = make([]byte, space)
	return nil
}

func move(ctx svm.InvokeContext, from, to *svm.AccountInfo, lamports uint64) error {
	if from.Key == to.Key {
		return nil
	}
	if from.Lamports < lamports {
		ctx.Log("Transfer: insufficient lamports %d, need %d", from.Lamports, lamports)
		return ErrInsufficientFunds
	}
	credited, ok := svm.CheckedAdd(to.Lamports, lamports)
	if !ok {
		return ErrArithmeticOverflow
	}
	from.Lamports -= lamports
	to.Lamports = credited
	return nil
}

// instructionData encodes a discriminant followed by the fields written by
// body. Encoding into a bytes.Buffer only fails on a programming error.
func instructionData(kind uint32, body func(enc *bin.Encoder) error) []byte {
	var buf bytes.Buffer
	enc := bin.NewBinEncoder(&buf)
	if err := enc.WriteUint32(kind, bin.LE); err != nil {
		panic(fmt.Sprintf("system: encode discriminant %d: %v", kind, err))
	}
	if err := body(enc); err != nil {
		panic(fmt.Sprintf("system: encode instruction %d: %v", kind, err))
	}
	return buf.Bytes()
}

// CreateAccount builds a CreateAccount instruction.
func CreateAccount(funder, newAccount types.Pubkey, lamports, space uint64, owner types.Pubkey) svm.Instruction {
	params := CreateAccountParams{Lamports: lamports, Space: space, Owner: owner}
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(funder, true, true),
			svm.NewAccountMeta(newAccount, true, true),
		},
		Data: instructionData(InstructionCreateAccount, params.MarshalWithEncoder),
	}
}

// Transfer builds a Transfer instruction.
func Transfer(from, to types.Pubkey, lamports uint64) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(from, true, true),
			svm.NewAccountMeta(to, true, false),
		},
		Data: instructionData(InstructionTransfer, func(enc *bin.Encoder) error {
			return enc.WriteUint64(lamports, bin.LE)
		}),
	}
}

// Assign builds an Assign instruction.
func Assign(account, owner types.Pubkey) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts:  []svm.AccountMeta{svm.NewAccountMeta(account, true, true)},
		Data: instructionData(InstructionAssign, func(enc *bin.Encoder) error {
			return enc.WriteBytes(owner[:], false)
		}),
	}
}

// Allocate builds an Allocate instruction.
func Allocate(account types.Pubkey, space uint64) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts:  []svm.AccountMeta{svm.NewAccountMeta(account, true, true)},
		Data: instructionData(InstructionAllocate, func(enc *bin.Encoder) error {
			return enc.WriteUint64(space, bin.LE)
		}),
	}
}

var _ svm.Program = (*Processor)(nil)

package duel

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/svm"
)

// InstructionKind names a duel program entry point.
type InstructionKind string

const (
	KindInitializePlatform InstructionKind = "initialize_platform"
	KindCreateMatch        InstructionKind = "create_match"
	KindJoinMatch          InstructionKind = "join_match"
	KindCancelMatch        InstructionKind = "cancel_match"
	KindSubmitResult       InstructionKind = "submit_result"
	KindClaimWinnings      InstructionKind = "claim_winnings"
	KindUpdatePlatform     InstructionKind = "update_platform"
	KindWithdrawFees       InstructionKind = "withdraw_fees"
)

// Discriminator returns the 8-byte selector prefixed to instruction data.
func (k InstructionKind) Discriminator() Discriminator {
	sum := sha256.Sum256([]byte("global:" + string(k)))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

var instructionKinds = []InstructionKind{
	KindInitializePlatform,
	KindCreateMatch,
	KindJoinMatch,
	KindCancelMatch,
	KindSubmitResult,
	KindClaimWinnings,
	KindUpdatePlatform,
	KindWithdrawFees,
}

var kindByDiscriminator = func() map[Discriminator]InstructionKind {
	m := make(map[Discriminator]InstructionKind, len(instructionKinds))
	for _, k := range instructionKinds {
		m[k.Discriminator()] = k
	}
	return m
}()

// CreateMatchArgs are the arguments of CreateMatch.
type CreateMatchArgs struct {
	StakeAmount uint64
	MatchID     [32]byte
}

// SubmitResultArgs are the arguments of SubmitResult.
type SubmitResultArgs struct {
	Winner types.Pubkey
}

// UpdatePlatformArgs carries optional settings. A nil field is left unchanged.
type UpdatePlatformArgs struct {
	NewAdmin         *types.Pubkey
	NewGameAuthority *types.Pubkey
	Paused           *bool
}

// WithdrawFeesArgs are the arguments of WithdrawFees.
type WithdrawFeesArgs struct {
	Amount uint64
}

// DecodeInstruction splits instruction data into its kind and a decoder
// positioned at the arguments.
func DecodeInstruction(data []byte) (InstructionKind, *bin.Decoder, error) {
	if len(data) < DiscriminatorSize {
		return "", nil, ErrInstructionFallbackNotFound
	}
	var d Discriminator
	copy(d[:], data[:DiscriminatorSize])
	kind, ok := kindByDiscriminator[d]
	if !ok {
		return "", nil, ErrInstructionFallbackNotFound
	}
	return kind, bin.NewBorshDecoder(data[DiscriminatorSize:]), nil
}

func (a *CreateMatchArgs) decode(dec *bin.Decoder) (err error) {
	if a.StakeAmount, err = dec.ReadUint64(bin.LE); err != nil {
		return ErrInstructionDidNotDeserialize
	}
	raw, err := dec.ReadBytes(32)
	if err != nil {
		return ErrInstructionDidNotDeserialize
	}
	copy(a.MatchID[:], raw)
	return nil
}

func (a *SubmitResultArgs) decode(dec *bin.Decoder) (err error) {
	if a.Winner, err = readPubkey(dec); err != nil {
		return ErrInstructionDidNotDeserialize
	}
	return nil
}

func (a *UpdatePlatformArgs) decode(dec *bin.Decoder) error {
	var err error
	if a.NewAdmin, err = readOptionPubkey(dec); err != nil {
		return err
	}
	if a.NewGameAuthority, err = readOptionPubkey(dec); err != nil {
		return err
	}
	present, err := readOptionTag(dec)
	if err != nil || !present {
		return err
	}
	paused, err := dec.ReadBool()
	if err != nil {
		return ErrInstructionDidNotDeserialize
	}
	a.Paused = &paused
	return nil
}

func (a *WithdrawFeesArgs) decode(dec *bin.Decoder) (err error) {
	if a.Amount, err = dec.ReadUint64(bin.LE); err != nil {
		return ErrInstructionDidNotDeserialize
	}
	return nil
}

func readOptionTag(dec *bin.Decoder) (bool, error) {
	tag, err := dec.ReadUint8()
	if err != nil {
		return false, ErrInstructionDidNotDeserialize
	}
	switch tag {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, ErrInstructionDidNotDeserialize
}

func readOptionPubkey(dec *bin.Decoder) (*types.Pubkey, error) {
	present, err := readOptionTag(dec)
	if err != nil || !present {
		return nil, err
	}
	pk, err := readPubkey(dec)
	if err != nil {
		return nil, ErrInstructionDidNotDeserialize
	}
	return &pk, nil
}

type instructionData struct {
	buf bytes.Buffer
	enc *bin.Encoder
}

func newInstructionData(kind InstructionKind) *instructionData {
	d := &instructionData{}
	d.enc = bin.NewBorshEncoder(&d.buf)
	disc := kind.Discriminator()
	d.buf.Write(disc[:])
	return d
}

func (d *instructionData) pubkey(pk types.Pubkey) *instructionData {
	_ = d.enc.WriteBytes(pk[:], false)
	return d
}

func (d *instructionData) optionPubkey(pk *types.Pubkey) *instructionData {
	if pk == nil {
		_ = d.enc.WriteUint8(0)
		return d
	}
	_ = d.enc.WriteUint8(1)
	return d.pubkey(*pk)
}

func (d *instructionData) bytes() []byte { return d.buf.Bytes() }

// InitializePlatformAccounts lists the accounts of InitializePlatform.
type InitializePlatformAccounts struct {
	Admin         types.Pubkey
	GameAuthority types.Pubkey
}

// NewInitializePlatformInstruction builds InitializePlatform.
func NewInitializePlatformInstruction(accts InitializePlatformAccounts) (svm.Instruction, error) {
	config, _, err := PlatformConfigAddress()
	if err != nil {
		return svm.Instruction{}, err
	}
	treasury, _, err := TreasuryAddress()
	if err != nil {
		return svm.Instruction{}, err
	}
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(config, true, false),
			svm.NewAccountMeta(treasury, true, false),
			svm.NewAccountMeta(accts.Admin, true, true),
			svm.NewAccountMeta(accts.GameAuthority, false, false),
			svm.NewAccountMeta(types.SystemProgramAddr, false, false),
		},
		Data: newInstructionData(KindInitializePlatform).bytes(),
	}, nil
}

// NewCreateMatchInstruction builds CreateMatch for player1.
func NewCreateMatchInstruction(player1 types.Pubkey, args CreateMatchArgs) (svm.Instruction, error) {
	config, _, err := PlatformConfigAddress()
	if err != nil {
		return svm.Instruction{}, err
	}
	gameMatch, escrow, err := MatchAddresses(args.MatchID)
	if err != nil {
		return svm.Instruction{}, err
	}
	data := newInstructionData(KindCreateMatch)
	_ = data.enc.WriteUint64(args.StakeAmount, bin.LE)
	_ = data.enc.WriteBytes(args.MatchID[:], false)
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(config, true, false),
			svm.NewAccountMeta(gameMatch, true, false),
			svm.NewAccountMeta(escrow, true, false),
			svm.NewAccountMeta(player1, true, true),
			svm.NewAccountMeta(types.SystemProgramAddr, false, false),
		},
		Data: data.bytes(),
	}, nil
}

// NewJoinMatchInstruction builds JoinMatch for player2.
func NewJoinMatchInstruction(player2 types.Pubkey, matchID [32]byte) (svm.Instruction, error) {
	config, _, err := PlatformConfigAddress()
	if err != nil {
		return svm.Instruction{}, err
	}
	gameMatch, escrow, err := MatchAddresses(matchID)
	if err != nil {
		return svm.Instruction{}, err
	}
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(config, true, false),
			svm.NewAccountMeta(gameMatch, true, false),
			svm.NewAccountMeta(escrow, true, false),
			svm.NewAccountMeta(player2, true, true),
			svm.NewAccountMeta(types.SystemProgramAddr, false, false),
		},
		Data: newInstructionData(KindJoinMatch).bytes(),
	}, nil
}

// NewCancelMatchInstruction builds CancelMatch signed by player1.
func NewCancelMatchInstruction(player1 types.Pubkey, matchID [32]byte) (svm.Instruction, error) {
	gameMatch, escrow, err := MatchAddresses(matchID)
	if err != nil {
		return svm.Instruction{}, err
	}
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(gameMatch, true, false),
			svm.NewAccountMeta(escrow, true, false),
			svm.NewAccountMeta(player1, true, true),
		},
		Data: newInstructionData(KindCancelMatch).bytes(),
	}, nil
}

// NewSubmitResultInstruction builds SubmitResult signed by the game authority.
func NewSubmitResultInstruction(gameAuthority types.Pubkey, matchID [32]byte, winner types.Pubkey) (svm.Instruction, error) {
	config, _, err := PlatformConfigAddress()
	if err != nil {
		return svm.Instruction{}, err
	}
	gameMatch, _, err := MatchAddress(matchID)
	if err != nil {
		return svm.Instruction{}, err
	}
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(config, true, false),
			svm.NewAccountMeta(gameMatch, true, false),
			svm.NewAccountMeta(gameAuthority, false, true),
		},
		Data: newInstructionData(KindSubmitResult).pubkey(winner).bytes(),
	}, nil
}

// NewClaimWinningsInstruction builds ClaimWinnings signed by the winner.
func NewClaimWinningsInstruction(winner types.Pubkey, matchID [32]byte) (svm.Instruction, error) {
	config, _, err := PlatformConfigAddress()
	if err != nil {
		return svm.Instruction{}, err
	}
	treasury, _, err := TreasuryAddress()
	if err != nil {
		return svm.Instruction{}, err
	}
	gameMatch, escrow, err := MatchAddresses(matchID)
	if err != nil {
		return svm.Instruction{}, err
	}
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(config, false, false),
			svm.NewAccountMeta(gameMatch, true, false),
			svm.NewAccountMeta(escrow, true, false),
			svm.NewAccountMeta(treasury, true, false),
			svm.NewAccountMeta(winner, true, true),
		},
		Data: newInstructionData(KindClaimWinnings).bytes(),
	}, nil
}

// NewUpdatePlatformInstruction builds UpdatePlatform signed by the admin.
func NewUpdatePlatformInstruction(admin types.Pubkey, args UpdatePlatformArgs) (svm.Instruction, error) {
	config, _, err := PlatformConfigAddress()
	if err != nil {
		return svm.Instruction{}, err
	}
	data := newInstructionData(KindUpdatePlatform).
		optionPubkey(args.NewAdmin).
		optionPubkey(args.NewGameAuthority)
	if args.Paused == nil {
		_ = data.enc.WriteUint8(0)
	} else {
		_ = data.enc.WriteUint8(1)
		_ = data.enc.WriteBool(*args.Paused)
	}
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(config, true, false),
			svm.NewAccountMeta(admin, false, true),
		},
		Data: data.bytes(),
	}, nil
}

// NewWithdrawFeesInstruction builds WithdrawFees signed by the admin.
func NewWithdrawFeesInstruction(admin, destination types.Pubkey, amount uint64) (svm.Instruction, error) {
	config, _, err := PlatformConfigAddress()
	if err != nil {
		return svm.Instruction{}, err
	}
	treasury, _, err := TreasuryAddress()
	if err != nil {
		return svm.Instruction{}, err
	}
	data := newInstructionData(KindWithdrawFees)
	_ = data.enc.WriteUint64(amount, bin.LE)
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(config, false, false),
			svm.NewAccountMeta(treasury, true, false),
			svm.NewAccountMeta(destination, true, false),
			svm.NewAccountMeta(admin, false, true),
		},
		Data: data.bytes(),
	}, nil
}

// String describes the instruction kind.
func (k InstructionKind) String() string {
	return fmt.Sprintf("duel::%s", string(k))
}

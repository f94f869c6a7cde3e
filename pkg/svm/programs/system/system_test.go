package system

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
	"github.com/fortiblox/X1-Duel/pkg/svm"
)

type fakeContext struct {
	accts []*svm.AccountInfo
	logs  []string
}

func (f *fakeContext) ProgramID() types.Pubkey { return ProgramID }
func (f *fakeContext) Accounts() []*svm.AccountInfo { return f.accts }
func (f *fakeContext) Now() int64 { return 0 }
func (f *fakeContext) Rent() accounts.Rent { return accounts.DefaultRent() }
func (f *fakeContext) ConsumeCU(uint64) error { return nil }
func (f *fakeContext) Emit(string, interface{}) {}
func (f *fakeContext) Invoke(svm.Instruction, [][][]byte) error { return nil }
func (f *fakeContext) Log(format string, args ...interface{}) {
	f.logs = append(f.logs, fmt.Sprintf(format, args...))
}

func key(b byte) types.Pubkey {
	var pk types.Pubkey
	pk[0] = b
	return pk
}

func wallet(b byte, lamports uint64, signer bool) *svm.AccountInfo {
	return &svm.AccountInfo{Key: key(b), Lamports: lamports, Owner: ProgramID, IsSigner: signer, IsWritable: true}
}

func TestTransfer(t *testing.T) {
	from, to := wallet(1, 1000, true), wallet(2, 5, false)
	ctx := &fakeContext{accts: []*svm.AccountInfo{from, to}}

	ix := Transfer(from.Key, to.Key, 400)
	if err := NewProcessor().Process(ctx, ix.Data); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if from.Lamports != 600 || to.Lamports != 405 {
		t.Errorf("balances: from %d, to %d", from.Lamports, to.Lamports)
	}
}

func TestTransferErrors(t *testing.T) {
	tests := []struct {
		name    string
		from    *svm.AccountInfo
		amount  uint64
		wantErr error
	}{
		{"unsigned", wallet(1, 1000, false), 1, ErrMissingRequiredSignature},
		{"insufficient", wallet(1, 10, true), 11, ErrInsufficientFunds},
		{"program owned", &svm.AccountInfo{Key: key(1), Lamports: 100, Owner: types.DuelProgramAddr, IsSigner: true}, 1, ErrInvalidAccountOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to := wallet(2, 0, false)
			ctx := &fakeContext{accts: []*svm.AccountInfo{tt.from, to}}
			err := NewProcessor().Process(ctx, Transfer(tt.from.Key, to.Key, tt.amount).Data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransferOverflow(t *testing.T) {
	from, to := wallet(1, 10, true), wallet(2, ^uint64(0), false)
	ctx := &fakeContext{accts: []*svm.AccountInfo{from, to}}
	err := NewProcessor().Process(ctx, Transfer(from.Key, to.Key, 1).Data)
	if !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("got %v, want ErrArithmeticOverflow", err)
	}
	if from.Lamports != 10 {
		t.Errorf("from debited on failure: %d", from.Lamports)
	}
}

func TestCreateAccount(t *testing.T) {
	rent := accounts.DefaultRent()
	funder := wallet(1, 10_000_000, true)
	fresh := &svm.AccountInfo{Key: key(2), Owner: ProgramID, IsSigner: true, IsWritable: true}
	ctx := &fakeContext{accts: []*svm.AccountInfo{funder, fresh}}

	ix := CreateAccount(funder.Key, fresh.Key, rent.MinimumBalance(8), 8, types.DuelProgramAddr)
	if err := NewProcessor().Process(ctx, ix.Data); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if fresh.Owner != types.DuelProgramAddr || len(fresh.Data) != 8 {
		t.Errorf("new account not initialized: %+v", fresh)
	}
	if fresh.Lamports != rent.MinimumBalance(8) {
		t.Errorf("new account lamports: got %d", fresh.Lamports)
	}

	// Creating again fails.
	err := NewProcessor().Process(ctx, ix.Data)
	if !errors.Is(err, ErrAccountAlreadyInUse) {
		t.Errorf("second create: got %v, want ErrAccountAlreadyInUse", err)
	}
}

func TestCreateAccountBelowRent(t *testing.T) {
	funder := wallet(1, 10_000_000, true)
	fresh := &svm.AccountInfo{Key: key(2), Owner: ProgramID, IsSigner: true, IsWritable: true}
	ctx := &fakeContext{accts: []*svm.AccountInfo{funder, fresh}}

	ix := CreateAccount(funder.Key, fresh.Key, 1, 8, types.DuelProgramAddr)
	if err := NewProcessor().Process(ctx, ix.Data); !errors.Is(err, ErrAccountNotRentExempt) {
		t.Errorf("got %v, want ErrAccountNotRentExempt", err)
	}
}

func TestInvalidDiscriminant(t *testing.T) {
	ctx := &fakeContext{}
	if err := NewProcessor().Process(ctx, []byte{99, 0, 0, 0}); !errors.Is(err, ErrInvalidInstructionData) {
		t.Errorf("got %v, want ErrInvalidInstructionData", err)
	}
}

func TestAllocate(t *testing.T) {
	acct := wallet(2, 5_000_000, true)
	ctx := &fakeContext{accts: []*svm.AccountInfo{acct}}

	if err := NewProcessor().Process(ctx, Allocate(acct.Key, 16).Data); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if len(acct.Data) != 16 || acct.Owner != ProgramID || acct.Lamports != 5_000_000 {
		t.Errorf("unexpected account after allocate: %+v", acct)
	}

	// Allocated accounts cannot be allocated again.
	if err := NewProcessor().Process(ctx, Allocate(acct.Key, 16).Data); !errors.Is(err, ErrAccountAlreadyInUse) {
		t.Errorf("second allocate: got %v, want ErrAccountAlreadyInUse", err)
	}
}

func TestAllocateErrors(t *testing.T) {
	unsigned := wallet(2, 0, false)
	ctx := &fakeContext{accts: []*svm.AccountInfo{unsigned}}
	if err := NewProcessor().Process(ctx, Allocate(unsigned.Key, 8).Data); !errors.Is(err, ErrMissingRequiredSignature) {
		t.Errorf("unsigned: got %v, want ErrMissingRequiredSignature", err)
	}

	signed := wallet(3, 0, true)
	ctx = &fakeContext{accts: []*svm.AccountInfo{signed}}
	err := NewProcessor().Process(ctx, Allocate(signed.Key, accounts.MaxAccountDataSize+1).Data)
	if !errors.Is(err, ErrAccountDataTooLarge) {
		t.Errorf("oversized: got %v, want ErrAccountDataTooLarge", err)
	}
}

func TestAssign(t *testing.T) {
	acct := wallet(2, 1_000_000, true)
	ctx := &fakeContext{accts: []*svm.AccountInfo{acct}}

	if err := NewProcessor().Process(ctx, Assign(acct.Key, types.DuelProgramAddr).Data); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if acct.Owner != types.DuelProgramAddr {
		t.Errorf("owner: got %s, want %s", acct.Owner, types.DuelProgramAddr)
	}

	// Reassigning to the current owner is a no-op; moving it again is not
	// the system program's call.
	if err := NewProcessor().Process(ctx, Assign(acct.Key, types.DuelProgramAddr).Data); err != nil {
		t.Errorf("idempotent assign: %v", err)
	}
	if err := NewProcessor().Process(ctx, Assign(acct.Key, key(9)).Data); !errors.Is(err, ErrInvalidAccountOwner) {
		t.Errorf("foreign assign: got %v, want ErrInvalidAccountOwner", err)
	}
}

func TestAssignRequiresSignature(t *testing.T) {
	acct := wallet(2, 1_000_000, false)
	ctx := &fakeContext{accts: []*svm.AccountInfo{acct}}
	if err := NewProcessor().Process(ctx, Assign(acct.Key, types.DuelProgramAddr).Data); !errors.Is(err, ErrMissingRequiredSignature) {
		t.Errorf("got %v, want ErrMissingRequiredSignature", err)
	}
	if acct.Owner != ProgramID {
		t.Error("owner changed without a signature")
	}
}

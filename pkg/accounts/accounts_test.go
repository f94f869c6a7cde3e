package accounts

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fortiblox/X1-Duel/internal/types"
)

func testKey(b byte) types.Pubkey {
	var pk types.Pubkey
	pk[0] = b
	pk[31] = b
	return pk
}

func TestAccountSerialization(t *testing.T) {
	account := &Account{
		Lamports:  1_000_000_000,
		Data:      []byte("match record"),
		Owner:     types.DuelProgramAddr,
		RentEpoch: RentExemptEpoch,
	}

	restored, err := DeserializeAccount(account.Serialize())
	if err != nil {
		t.Fatalf("DeserializeAccount failed: %v", err)
	}
	if !restored.Equal(account) {
		t.Errorf("restored account differs: got %+v, want %+v", restored, account)
	}

	if _, err := DeserializeAccount(account.Serialize()[:20]); !errors.Is(err, ErrInvalidData) {
		t.Errorf("truncated input: got %v, want ErrInvalidData", err)
	}
}

func TestMemoryDB(t *testing.T) {
	db := NewMemoryDB()
	defer db.Close()

	pubkey := testKey(1)
	account := &Account{Lamports: 500, Data: []byte("data"), Owner: types.DuelProgramAddr}

	if err := db.SetAccount(pubkey, account); err != nil {
		t.Fatalf("SetAccount failed: %v", err)
	}

	got, err := db.GetAccount(pubkey)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if got.Lamports != 500 {
		t.Errorf("Lamports: got %d, want %d", got.Lamports, 500)
	}

	// Returned accounts are copies.
	got.Data[0] = 'X'
	again, _ := db.GetAccount(pubkey)
	if again.Data[0] != 'd' {
		t.Error("GetAccount must return a copy")
	}

	// Zero accounts are deleted.
	if err := db.SetAccount(pubkey, &Account{}); err != nil {
		t.Fatalf("SetAccount(zero) failed: %v", err)
	}
	if _, err := db.GetAccount(pubkey); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("got %v, want ErrAccountNotFound", err)
	}

	count, _ := db.AccountsCount()
	if count != 0 {
		t.Errorf("AccountsCount: got %d, want 0", count)
	}
}

func TestMemoryDBIterateSorted(t *testing.T) {
	db := NewMemoryDB()
	for _, b := range []byte{9, 3, 7, 1} {
		db.SetAccount(testKey(b), &Account{Lamports: uint64(b)})
	}

	var seen []byte
	err := db.IterateAccounts(func(pk types.Pubkey, acc *Account) error {
		seen = append(seen, pk[0])
		return nil
	})
	if err != nil {
		t.Fatalf("IterateAccounts failed: %v", err)
	}
	if !bytes.Equal(seen, []byte{1, 3, 7, 9}) {
		t.Errorf("iteration order: got %v", seen)
	}
}

func TestTxnReadYourWrites(t *testing.T) {
	db := NewMemoryDB()
	a, b := testKey(1), testKey(2)
	db.SetAccount(a, &Account{Lamports: 100})

	txn := NewTxn(db)
	txn.SetAccount(a, &Account{Lamports: 40})
	txn.SetAccount(b, &Account{Lamports: 60})

	got, err := txn.GetAccount(a)
	if err != nil || got.Lamports != 40 {
		t.Fatalf("txn view of a: got %+v, %v", got, err)
	}

	// Nothing reached the DB yet.
	base, _ := db.GetAccount(a)
	if base.Lamports != 100 {
		t.Errorf("db modified before commit: got %d", base.Lamports)
	}
	if ok, _ := db.HasAccount(b); ok {
		t.Error("b should not exist before commit")
	}

	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	base, _ = db.GetAccount(a)
	if base.Lamports != 40 {
		t.Errorf("after commit: got %d, want 40", base.Lamports)
	}
	if _, err := txn.GetAccount(a); !errors.Is(err, ErrTxnDone) {
		t.Errorf("use after commit: got %v, want ErrTxnDone", err)
	}
}

func TestTxnDiscard(t *testing.T) {
	db := NewMemoryDB()
	a := testKey(1)
	db.SetAccount(a, &Account{Lamports: 100})

	txn := NewTxn(db)
	txn.DeleteAccount(a)
	if _, err := txn.GetAccount(a); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("deleted in txn: got %v", err)
	}
	txn.Discard()

	got, err := db.GetAccount(a)
	if err != nil || got.Lamports != 100 {
		t.Errorf("discard leaked writes: %+v, %v", got, err)
	}
}

func TestTxnLoadAccountDefaults(t *testing.T) {
	txn := NewTxn(NewMemoryDB())
	acc, exists, err := txn.LoadAccount(testKey(4))
	if err != nil {
		t.Fatalf("LoadAccount failed: %v", err)
	}
	if exists {
		t.Error("account should not exist")
	}
	if acc.Owner != types.SystemProgramAddr || acc.Lamports != 0 {
		t.Errorf("unexpected default account %+v", acc)
	}
}

func TestRentMinimumBalance(t *testing.T) {
	rent := DefaultRent()
	tests := []struct {
		dataLen uint64
		want    uint64
	}{
		{0, 890_880},
		{8, 946_560},
		{140, 1_865_280},
	}
	for _, tt := range tests {
		if got := rent.MinimumBalance(tt.dataLen); got != tt.want {
			t.Errorf("MinimumBalance(%d) = %d, want %d", tt.dataLen, got, tt.want)
		}
	}
	if rent.IsExempt(946_559, 8) {
		t.Error("balance one below minimum should not be exempt")
	}
}

func TestAccountsHashChanges(t *testing.T) {
	db := NewMemoryDB()
	db.SetAccount(testKey(1), &Account{Lamports: 1})
	db.SetAccount(testKey(2), &Account{Lamports: 2})

	hc := NewHashComputer(db)
	h1, err := hc.ComputeAccountsHash()
	if err != nil {
		t.Fatalf("ComputeAccountsHash failed: %v", err)
	}
	h2, _ := hc.ComputeAccountsHash()
	if h1 != h2 {
		t.Error("hash must be deterministic")
	}

	db.SetAccount(testKey(2), &Account{Lamports: 3})
	h3, _ := hc.ComputeAccountsHash()
	if h3 == h1 {
		t.Error("hash must change when an account changes")
	}
}

func TestBadgerDBInMemory(t *testing.T) {
	db, err := NewBadgerDB(BadgerDBConfig{InMemory: true, Quiet: true})
	if err != nil {
		t.Fatalf("NewBadgerDB failed: %v", err)
	}
	defer db.Close()

	if err := db.SetAccount(testKey(3), &Account{Lamports: 5}); err != nil {
		t.Fatalf("SetAccount failed: %v", err)
	}
	if ok, _ := db.HasAccount(testKey(3)); !ok {
		t.Error("account missing after SetAccount")
	}
	if err := db.CollectGarbage(); err != nil {
		t.Errorf("CollectGarbage: %v", err)
	}
}

func TestBadgerDB(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadgerDB(DefaultBadgerDBConfig(dir))
	if err != nil {
		t.Fatalf("NewBadgerDB failed: %v", err)
	}

	a, b := testKey(1), testKey(2)
	err = db.ApplyBatch(map[types.Pubkey]*Account{
		a: {Lamports: 10, Owner: types.DuelProgramAddr, Data: []byte{1, 2}},
		b: {Lamports: 20},
	})
	if err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if count, _ := db.AccountsCount(); count != 2 {
		t.Errorf("AccountsCount: got %d, want 2", count)
	}

	if err := db.DeleteAccount(b); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	if err := db.SetSlot(42); err != nil {
		t.Fatalf("SetSlot failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err = NewBadgerDB(DefaultBadgerDBConfig(dir))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	if db.GetSlot() != 42 {
		t.Errorf("slot after reopen: got %d, want 42", db.GetSlot())
	}
	if count, _ := db.AccountsCount(); count != 1 {
		t.Errorf("AccountsCount after reopen: got %d, want 1", count)
	}
	got, err := db.GetAccount(a)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if got.Owner != types.DuelProgramAddr || !bytes.Equal(got.Data, []byte{1, 2}) {
		t.Errorf("unexpected account %+v", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := NewMemoryDB()
	for i := byte(1); i <= 5; i++ {
		src.SetAccount(testKey(i), &Account{Lamports: uint64(i) * 1000, Data: []byte{i}})
	}
	src.SetSlot(7)

	path := filepath.Join(t.TempDir(), "state.x1ds")
	header, err := CreateSnapshot(src, path)
	if err != nil {
		t.Fatalf("CreateSnapshot failed: %v", err)
	}
	if header.AccountsCount != 5 {
		t.Errorf("AccountsCount: got %d, want 5", header.AccountsCount)
	}

	dst, err := NewBadgerDB(DefaultBadgerDBConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("NewBadgerDB failed: %v", err)
	}
	defer dst.Close()

	loaded, err := LoadSnapshot(dst, path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if loaded.Slot != 7 || dst.GetSlot() != 7 {
		t.Errorf("slot: header %d, db %d, want 7", loaded.Slot, dst.GetSlot())
	}
	if count, _ := dst.AccountsCount(); count != 5 {
		t.Errorf("AccountsCount: got %d, want 5", count)
	}
}

func TestOpenSnapshotMissing(t *testing.T) {
	_, err := OpenSnapshot(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("got %v, want ErrSnapshotNotFound", err)
	}
}

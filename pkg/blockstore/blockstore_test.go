package blockstore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
	"github.com/fortiblox/X1-Duel/pkg/runtime"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/system"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	config := DefaultConfig(filepath.Join(t.TempDir(), "blockstore.db"))
	config.NoSync = true
	store, err := Open(config)
	if err != nil {
		t.Fatalf("failed to open blockstore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newKeypair(t *testing.T) *types.Keypair {
	t.Helper()
	kp, err := types.NewKeypair()
	if err != nil {
		t.Fatalf("failed to generate keypair: %v", err)
	}
	return kp
}

// signedTransfer returns a signed transfer and a receipt for it at slot.
func signedTransfer(t *testing.T, from *types.Keypair, to types.Pubkey, slot uint64, failed bool) (*runtime.Transaction, *runtime.Receipt) {
	t.Helper()
	tx := runtime.NewTransaction(from.Public, 1_700_000_000, slot, system.Transfer(from.Public, to, 1000))
	if err := tx.Sign(from); err != nil {
		t.Fatalf("sign: %v", err)
	}
	keys, _ := tx.Message.AccountKeys()
	receipt := &runtime.Receipt{
		Signature:   tx.Signature(),
		Slot:        slot,
		BlockTime:   1_700_000_000 + int64(slot),
		AccountKeys: keys,
		Logs:        []string{"Program 11111111111111111111111111111111 invoke [1]"},
	}
	if failed {
		receipt.Err = &runtime.TransactionError{InstructionIndex: 0, Message: "insufficient funds"}
	}
	return tx, receipt
}

func TestRecordAndGetTransaction(t *testing.T) {
	store := openTestStore(t)
	from := newKeypair(t)
	to := newKeypair(t).Public

	tx, receipt := signedTransfer(t, from, to, 1, false)
	if err := store.RecordTransaction(tx, receipt); err != nil {
		t.Fatalf("record: %v", err)
	}

	ok, err := store.HasTransaction(receipt.Signature)
	if err != nil || !ok {
		t.Fatalf("HasTransaction = %v, %v", ok, err)
	}

	rec, err := store.GetTransaction(receipt.Signature)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Slot != 1 || rec.BlockTime != receipt.BlockTime {
		t.Errorf("slot/time = %d/%d", rec.Slot, rec.BlockTime)
	}
	if len(rec.Receipt.Logs) != 1 {
		t.Errorf("logs = %v", rec.Receipt.Logs)
	}
	decoded, err := rec.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Signature() != receipt.Signature {
		t.Errorf("decoded signature mismatch")
	}
	if _, err := decoded.Verify(); err != nil {
		t.Errorf("stored transaction no longer verifies: %v", err)
	}

	if store.GetLatestSlot() != 1 {
		t.Errorf("latest slot = %d", store.GetLatestSlot())
	}
}

func TestRecordDuplicateRejected(t *testing.T) {
	store := openTestStore(t)
	tx, receipt := signedTransfer(t, newKeypair(t), newKeypair(t).Public, 1, false)
	if err := store.RecordTransaction(tx, receipt); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.RecordTransaction(tx, receipt); !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("second record = %v, want ErrDuplicateTransaction", err)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	store := openTestStore(t)
	var sig types.Signature
	sig[0] = 7
	if _, err := store.GetTransaction(sig); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("got %v, want ErrTransactionNotFound", err)
	}
	if ok, _ := store.HasTransaction(sig); ok {
		t.Fatal("HasTransaction reported unknown signature")
	}
}

func TestTransactionStatusCarriesError(t *testing.T) {
	store := openTestStore(t)
	tx, receipt := signedTransfer(t, newKeypair(t), newKeypair(t).Public, 3, true)
	if err := store.RecordTransaction(tx, receipt); err != nil {
		t.Fatalf("record: %v", err)
	}
	status, err := store.GetTransactionStatus(receipt.Signature)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Slot != 3 || status.Err == nil || status.Err.Message != "insufficient funds" {
		t.Errorf("status = %+v", status)
	}

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TransactionCount != 1 || stats.FailedCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSignaturesForAddress(t *testing.T) {
	store := openTestStore(t)
	payer := newKeypair(t)
	other := newKeypair(t)
	dest := newKeypair(t).Public

	var sigs []types.Signature
	for slot := uint64(1); slot <= 5; slot++ {
		tx, receipt := signedTransfer(t, payer, dest, slot, slot == 4)
		if err := store.RecordTransaction(tx, receipt); err != nil {
			t.Fatalf("record slot %d: %v", slot, err)
		}
		sigs = append(sigs, receipt.Signature)
	}
	// Unrelated transaction that must not show up for payer.
	tx, receipt := signedTransfer(t, other, newKeypair(t).Public, 6, false)
	if err := store.RecordTransaction(tx, receipt); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := store.GetSignaturesForAddress(payer.Public, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d signatures, want 5", len(got))
	}
	for i, info := range got {
		want := sigs[len(sigs)-1-i]
		if info.Signature != want {
			t.Errorf("entry %d out of order", i)
		}
	}
	if !got[1].Failed || got[0].Failed {
		t.Errorf("failed flags wrong: %+v", got[:2])
	}

	got, err = store.GetSignaturesForAddress(payer.Public, &SignatureQueryOptions{Limit: 2, Before: &sigs[3]})
	if err != nil {
		t.Fatalf("query before: %v", err)
	}
	if len(got) != 2 || got[0].Slot != 3 || got[1].Slot != 2 {
		t.Errorf("before query = %+v", got)
	}

	got, err = store.GetSignaturesForAddress(payer.Public, &SignatureQueryOptions{Until: &sigs[2]})
	if err != nil {
		t.Fatalf("query until: %v", err)
	}
	if len(got) != 2 || got[0].Slot != 5 || got[1].Slot != 4 {
		t.Errorf("until query = %+v", got)
	}

	got, err = store.GetSignaturesForAddress(dest, &SignatureQueryOptions{Limit: 1})
	if err != nil {
		t.Fatalf("query dest: %v", err)
	}
	if len(got) != 1 || got[0].Slot != 5 {
		t.Errorf("dest query = %+v", got)
	}
}

func TestPrune(t *testing.T) {
	store := openTestStore(t)
	payer := newKeypair(t)
	dest := newKeypair(t).Public

	var sigs []types.Signature
	for slot := uint64(1); slot <= 10; slot++ {
		tx, receipt := signedTransfer(t, payer, dest, slot, false)
		if err := store.RecordTransaction(tx, receipt); err != nil {
			t.Fatalf("record: %v", err)
		}
		sigs = append(sigs, receipt.Signature)
	}

	pruned, err := store.Prune(4)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 5 {
		t.Errorf("pruned = %d, want 5", pruned)
	}
	if store.GetOldestSlot() != 6 {
		t.Errorf("oldest slot = %d, want 6", store.GetOldestSlot())
	}
	if _, err := store.GetTransaction(sigs[0]); !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("slot 1 still present: %v", err)
	}
	if _, err := store.GetTransaction(sigs[9]); err != nil {
		t.Errorf("slot 10 missing: %v", err)
	}
	got, err := store.GetSignaturesForAddress(payer.Public, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("address index has %d entries after prune, want 5", len(got))
	}
}

func TestReopenKeepsCachedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blockstore.db")
	store, err := Open(DefaultConfig(path))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tx, receipt := signedTransfer(t, newKeypair(t), newKeypair(t).Public, 42, false)
	if err := store.RecordTransaction(tx, receipt); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.RecordTransaction(tx, receipt); !errors.Is(err, ErrClosed) {
		t.Errorf("record after close = %v, want ErrClosed", err)
	}

	store, err = Open(DefaultConfig(path))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.LatestSlot != 42 || stats.TransactionCount != 1 {
		t.Errorf("stats after reopen = %+v", stats)
	}
}

func TestExecutorRecordsIntoStore(t *testing.T) {
	store := openTestStore(t)
	db := accounts.NewMemoryDB()
	clock := runtime.NewManualClock(1_700_000_000)
	exec := runtime.NewExecutor(db, clock, store, nil, runtime.DefaultConfig(), system.NewProcessor())

	payer := newKeypair(t)
	if err := db.SetAccount(payer.Public, &accounts.Account{Lamports: 1_000_000_000, Owner: types.SystemProgramAddr}); err != nil {
		t.Fatalf("fund: %v", err)
	}
	dest := newKeypair(t).Public

	tx := runtime.NewTransaction(payer.Public, clock.Now(), 1, system.Transfer(payer.Public, dest, 5000))
	if err := tx.Sign(payer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	receipt, err := exec.Execute(tx)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !receipt.Succeeded() {
		t.Fatalf("transfer failed: %v", receipt.Err)
	}

	rec, err := store.GetTransaction(receipt.Signature)
	if err != nil {
		t.Fatalf("ledger missing transaction: %v", err)
	}
	if rec.Slot != receipt.Slot {
		t.Errorf("slot = %d, want %d", rec.Slot, receipt.Slot)
	}

	if _, err := exec.Execute(tx); !errors.Is(err, runtime.ErrAlreadyProcessed) {
		t.Errorf("replay = %v, want ErrAlreadyProcessed", err)
	}
}

package history

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/events"
	"github.com/fortiblox/X1-Duel/pkg/svm"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/duel"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DefaultConfig(filepath.Join(t.TempDir(), "history.db")))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func pubkey(b byte) types.Pubkey {
	var pk types.Pubkey
	pk[0] = b
	pk[31] = b
	return pk
}

func event(slot uint64, name string, payload interface{}) events.Event {
	var sig types.Signature
	sig[0] = byte(slot)
	sig[1] = 0x5a
	return events.Event{
		Event:     svm.Event{Program: duel.ProgramID, Name: name, Payload: payload},
		Signature: sig,
		Slot:      slot,
		BlockTime: 1_700_000_000 + int64(slot),
	}
}

func mustApply(t *testing.T, s *Store, ev events.Event) {
	t.Helper()
	if err := s.Apply(ev); err != nil {
		t.Fatalf("apply %s: %v", ev.Name, err)
	}
}

func TestMatchLifecycle(t *testing.T) {
	s := openTestStore(t)
	match, p1, p2 := pubkey(1), pubkey(2), pubkey(3)
	id := [32]byte{9, 9, 9}

	mustApply(t, s, event(1, duel.EventMatchCreated, duel.MatchCreated{
		Match: match, MatchID: id, Player1: p1, StakeAmount: 100_000_000, CreatedAt: 1_700_000_001,
	}))
	m, err := s.GetMatch(match)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Status != "WaitingForOpponent" || m.Player2 != nil || m.StakeAmount != 100_000_000 {
		t.Errorf("after create: %+v", m)
	}

	mustApply(t, s, event(2, duel.EventMatchJoined, duel.MatchJoined{
		Match: match, MatchID: id, Player1: p1, Player2: p2, Pot: 200_000_000, StartedAt: 1_700_000_002,
	}))
	mustApply(t, s, event(3, duel.EventResultSubmitted, duel.ResultSubmitted{
		Match: match, MatchID: id, Winner: p2, FeeAmount: 10_000_000, PrizeAmount: 190_000_000, EndedAt: 1_700_000_003,
	}))
	mustApply(t, s, event(4, duel.EventWinningsClaimed, duel.WinningsClaimed{
		Match: match, MatchID: id, Winner: p2, PrizeAmount: 190_000_000, FeeAmount: 10_000_000,
	}))

	m, err = s.GetMatch(match)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Status != "Claimed" {
		t.Errorf("status = %s", m.Status)
	}
	if m.Player2 == nil || *m.Player2 != p2 || m.Winner == nil || *m.Winner != p2 {
		t.Errorf("players wrong: %+v", m)
	}
	if m.FeeAmount != 10_000_000 || m.PrizeAmount != 190_000_000 {
		t.Errorf("amounts = %d/%d", m.FeeAmount, m.PrizeAmount)
	}
	if m.StartedAt != 1_700_000_002 || m.EndedAt != 1_700_000_003 || m.ClaimedAt != 1_700_000_004 {
		t.Errorf("times = %d/%d/%d", m.StartedAt, m.EndedAt, m.ClaimedAt)
	}
	if m.CreatedSlot != 1 || m.UpdatedSlot != 4 {
		t.Errorf("slots = %d/%d", m.CreatedSlot, m.UpdatedSlot)
	}

	stats, err := s.GetPlayerStats(p2)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Played != 1 || stats.Won != 1 || stats.Lost != 0 || stats.Winnings != 190_000_000 {
		t.Errorf("p2 stats = %+v", stats)
	}
	stats, err = s.GetPlayerStats(p1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Played != 1 || stats.Lost != 1 || stats.Wagered != 100_000_000 {
		t.Errorf("p1 stats = %+v", stats)
	}
}

func TestCancelledMatch(t *testing.T) {
	s := openTestStore(t)
	match, p1 := pubkey(1), pubkey(2)

	mustApply(t, s, event(1, duel.EventMatchCreated, duel.MatchCreated{Match: match, Player1: p1, StakeAmount: 50_000_000}))
	mustApply(t, s, event(2, duel.EventMatchCancelled, duel.MatchCancelled{Match: match, Player1: p1, Refunded: 50_000_000}))

	m, err := s.GetMatch(match)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Status != "Cancelled" || m.Refunded != 50_000_000 || m.EndedAt != 1_700_000_002 {
		t.Errorf("cancelled row = %+v", m)
	}
	stats, err := s.GetPlayerStats(p1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Played != 0 {
		t.Errorf("cancelled match counted as played: %+v", stats)
	}
}

func TestListMatchesFilters(t *testing.T) {
	s := openTestStore(t)
	p1, p2, p3 := pubkey(10), pubkey(11), pubkey(12)

	mustApply(t, s, event(1, duel.EventMatchCreated, duel.MatchCreated{Match: pubkey(1), Player1: p1, StakeAmount: 1}))
	mustApply(t, s, event(2, duel.EventMatchCreated, duel.MatchCreated{Match: pubkey(2), Player1: p3, StakeAmount: 2}))
	mustApply(t, s, event(3, duel.EventMatchCreated, duel.MatchCreated{Match: pubkey(3), Player1: p1, StakeAmount: 3}))
	mustApply(t, s, event(4, duel.EventMatchJoined, duel.MatchJoined{Match: pubkey(2), Player1: p3, Player2: p2}))

	all, err := s.ListMatches(Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Address != pubkey(3) || all[2].Address != pubkey(1) {
		t.Fatalf("list order wrong: %d rows", len(all))
	}

	mine, err := s.ListMatches(Query{Player: &p1})
	if err != nil {
		t.Fatalf("list p1: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("p1 rows = %d, want 2", len(mine))
	}

	joined, err := s.ListMatches(Query{Player: &p2})
	if err != nil {
		t.Fatalf("list p2: %v", err)
	}
	if len(joined) != 1 || joined[0].Address != pubkey(2) {
		t.Errorf("p2 rows = %+v", joined)
	}

	open, err := s.ListMatches(Query{Status: "WaitingForOpponent", Limit: 1})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 || open[0].Address != pubkey(3) {
		t.Errorf("open rows = %+v", open)
	}

	page, err := s.ListMatches(Query{Limit: 1, Offset: 2})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 || page[0].Address != pubkey(1) {
		t.Errorf("page rows = %+v", page)
	}
}

func TestApplyUnknownMatch(t *testing.T) {
	s := openTestStore(t)
	err := s.Apply(event(1, duel.EventMatchJoined, duel.MatchJoined{Match: pubkey(7)}))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := s.GetMatch(pubkey(7)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get = %v, want ErrNotFound", err)
	}
}

func TestApplyIgnoresOtherPrograms(t *testing.T) {
	s := openTestStore(t)
	ev := event(1, duel.EventMatchCreated, duel.MatchCreated{Match: pubkey(1), Player1: pubkey(2)})
	ev.Program = types.SystemProgramAddr
	mustApply(t, s, ev)
	if _, err := s.GetMatch(pubkey(1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign event was indexed: %v", err)
	}
}

func TestAttachAndWithdrawals(t *testing.T) {
	s := openTestStore(t)
	em := events.NewEmitter()
	s.Attach(em)

	em.Publish(event(1, duel.EventMatchCreated, duel.MatchCreated{Match: pubkey(1), Player1: pubkey(2), StakeAmount: 5}))
	em.Publish(event(2, duel.EventFeesWithdrawn, duel.FeesWithdrawn{Destination: pubkey(3), Amount: 700}))
	em.Publish(event(3, duel.EventFeesWithdrawn, duel.FeesWithdrawn{Destination: pubkey(3), Amount: 300}))

	if _, err := s.GetMatch(pubkey(1)); err != nil {
		t.Fatalf("attached store missed MatchCreated: %v", err)
	}
	total, err := s.TotalWithdrawn()
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 1000 {
		t.Errorf("total withdrawn = %d, want 1000", total)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{Driver: "mysql", DSN: "x"}).Validate(); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("mysql: %v", err)
	}
	if err := (Config{Driver: DriverSQLite}).Validate(); err == nil {
		t.Error("empty dsn accepted")
	}
	if err := DefaultConfig("/tmp/h.db").Validate(); err != nil {
		t.Errorf("default: %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("postgres rebind = %q", got)
	}
	lite := &Store{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

package rpc

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
	"github.com/fortiblox/X1-Duel/pkg/blockstore"
	"github.com/fortiblox/X1-Duel/pkg/events"
	"github.com/fortiblox/X1-Duel/pkg/history"
	"github.com/fortiblox/X1-Duel/pkg/runtime"
	"github.com/fortiblox/X1-Duel/pkg/svm"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/duel"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/system"
)

const sol = 1_000_000_000

type testNode struct {
	server *Server
	db     *accounts.MemoryDB
	clock  *runtime.ManualClock
	exec   *runtime.Executor
	faucet *types.Keypair
	nonce  uint64
}

// newTestServer wires a server over in-memory accounts, a bbolt ledger and
// a SQLite history index in a temp dir.
func newTestServer(t *testing.T) *testNode {
	t.Helper()
	dir := t.TempDir()

	ledger, err := blockstore.Open(blockstore.DefaultConfig(filepath.Join(dir, "ledger.db")))
	if err != nil {
		t.Fatalf("Failed to open ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	hist, err := history.Open(history.DefaultConfig(filepath.Join(dir, "history.db")))
	if err != nil {
		t.Fatalf("Failed to open history: %v", err)
	}
	t.Cleanup(func() { hist.Close() })

	emitter := events.NewEmitter()
	hist.Attach(emitter)

	n := &testNode{
		db:    accounts.NewMemoryDB(),
		clock: runtime.NewManualClock(1_700_000_000),
	}
	n.exec = runtime.NewExecutor(n.db, n.clock, ledger, emitter, runtime.DefaultConfig(),
		system.NewProcessor(), duel.NewProcessor())

	n.faucet, err = types.NewKeypair()
	if err != nil {
		t.Fatalf("Failed to create faucet: %v", err)
	}
	n.fund(t, n.faucet.Public, 10_000*sol)

	config := DefaultConfig()
	config.Addr = ":0"
	config.AirdropLimit = 500 * sol
	config.Faucet = n.faucet
	n.server = New(config, n.db, ledger, n.exec, hist)
	return n
}

func (n *testNode) fund(t *testing.T, key types.Pubkey, lamports uint64) {
	t.Helper()
	if err := n.db.SetAccount(key, &accounts.Account{Lamports: lamports, Owner: types.SystemProgramAddr}); err != nil {
		t.Fatalf("Failed to fund account: %v", err)
	}
}

func (n *testNode) wallet(t *testing.T, lamports uint64) *types.Keypair {
	t.Helper()
	kp, err := types.NewKeypair()
	if err != nil {
		t.Fatalf("Failed to create keypair: %v", err)
	}
	n.fund(t, kp.Public, lamports)
	return kp
}

// encodeTx signs ixs with signer and returns the base64 wire form.
func (n *testNode) encodeTx(t *testing.T, signer *types.Keypair, ixs ...svm.Instruction) string {
	t.Helper()
	n.nonce++
	tx := runtime.NewTransaction(signer.Public, n.clock.Now(), n.nonce, ixs...)
	if err := tx.Sign(signer); err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// send submits a transaction over RPC and returns its signature.
func (n *testNode) send(t *testing.T, signer *types.Keypair, ixs ...svm.Instruction) string {
	t.Helper()
	resp := makeRPCRequest(t, n.server, "sendTransaction", []interface{}{n.encodeTx(t, signer, ixs...)})
	if resp.Error != nil {
		t.Fatalf("sendTransaction failed: %v", resp.Error)
	}
	sig, ok := resp.Result.(string)
	if !ok {
		t.Fatalf("Expected signature string, got %T", resp.Result)
	}
	return sig
}

// makeRPCRequest makes a single JSON-RPC request against the server.
func makeRPCRequest(t *testing.T, server *Server, method string, params interface{}) *Response {
	t.Helper()

	var paramsRaw json.RawMessage
	if params != nil {
		var err error
		paramsRaw, err = json.Marshal(params)
		if err != nil {
			t.Fatalf("Failed to marshal params: %v", err)
		}
	}

	body, err := json.Marshal(Request{
		JSONRPC: JSONRPCVersion,
		ID:      1,
		Method:  method,
		Params:  paramsRaw,
	})
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.handleRPC(rr, httpReq)

	var resp Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	return &resp
}

// decodeResult re-decodes a generic result into v.
func decodeResult(t *testing.T, resp *Response, v interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("Expected no error, got: %v", resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("Failed to re-marshal result: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
}

func TestGetHealth(t *testing.T) {
	n := newTestServer(t)

	resp := makeRPCRequest(t, n.server, "getHealth", nil)
	if resp.Error != nil {
		t.Fatalf("Expected no error, got: %v", resp.Error)
	}
	if resp.Result != "ok" {
		t.Errorf("Expected 'ok', got: %v", resp.Result)
	}

	n.server.SetHealthy(false)
	resp = makeRPCRequest(t, n.server, "getHealth", nil)
	if resp.Error == nil || resp.Error.Code != NodeUnhealthy {
		t.Errorf("Expected NodeUnhealthy, got: %+v", resp.Error)
	}
}

func TestGetVersion(t *testing.T) {
	n := newTestServer(t)

	var version VersionInfo
	decodeResult(t, makeRPCRequest(t, n.server, "getVersion", nil), &version)
	if version.Core != Version {
		t.Errorf("Expected %s, got %s", Version, version.Core)
	}
}

func TestGetBalance(t *testing.T) {
	n := newTestServer(t)
	kp := n.wallet(t, 12345)

	var result struct {
		Context Context `json:"context"`
		Value   uint64  `json:"value"`
	}
	decodeResult(t, makeRPCRequest(t, n.server, "getBalance", []interface{}{kp.Public.String()}), &result)
	if result.Value != 12345 {
		t.Errorf("Expected balance 12345, got %d", result.Value)
	}

	missing := types.Pubkey{7}
	decodeResult(t, makeRPCRequest(t, n.server, "getBalance", []interface{}{missing.String()}), &result)
	if result.Value != 0 {
		t.Errorf("Expected 0 for missing account, got %d", result.Value)
	}
}

func TestGetAccountInfo(t *testing.T) {
	n := newTestServer(t)
	key := types.Pubkey{1, 2, 3}
	if err := n.db.SetAccount(key, &accounts.Account{Lamports: 5000, Data: []byte{1, 2, 3, 4}, Owner: types.SystemProgramAddr}); err != nil {
		t.Fatal(err)
	}

	var result struct {
		Value *AccountInfo `json:"value"`
	}
	decodeResult(t, makeRPCRequest(t, n.server, "getAccountInfo", []interface{}{key.String(), map[string]string{"encoding": "base58"}}), &result)
	if result.Value == nil {
		t.Fatal("Expected account info")
	}
	if result.Value.Lamports != 5000 || result.Value.Space != 4 {
		t.Errorf("Unexpected account: %+v", result.Value)
	}
	data, ok := result.Value.Data.([]interface{})
	if !ok || len(data) != 2 || data[1] != "base58" {
		t.Errorf("Unexpected data encoding: %v", result.Value.Data)
	}

	decodeResult(t, makeRPCRequest(t, n.server, "getAccountInfo", []interface{}{types.Pubkey{9}.String()}), &result)
	if result.Value != nil {
		t.Errorf("Expected null for missing account, got %+v", result.Value)
	}
}

func TestGetMultipleAccounts(t *testing.T) {
	n := newTestServer(t)
	a := n.wallet(t, 100)

	var result struct {
		Value []*AccountInfo `json:"value"`
	}
	decodeResult(t, makeRPCRequest(t, n.server, "getMultipleAccounts", []interface{}{
		[]string{a.Public.String(), types.Pubkey{9}.String()},
	}), &result)
	if len(result.Value) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(result.Value))
	}
	if result.Value[0] == nil || result.Value[0].Lamports != 100 {
		t.Errorf("Unexpected first account: %+v", result.Value[0])
	}
	if result.Value[1] != nil {
		t.Errorf("Expected null second account")
	}
}

func TestGetMinimumBalanceForRentExemption(t *testing.T) {
	n := newTestServer(t)

	cases := map[uint64]float64{0: 890_880, duel.GameMatchSize: 2_192_400, duel.PlatformConfigSize: 1_865_280}
	for size, want := range cases {
		resp := makeRPCRequest(t, n.server, "getMinimumBalanceForRentExemption", []interface{}{size})
		if resp.Error != nil {
			t.Fatalf("size %d: %v", size, resp.Error)
		}
		if resp.Result != want {
			t.Errorf("size %d: expected %v, got %v", size, want, resp.Result)
		}
	}
}

func TestMethodNotFound(t *testing.T) {
	n := newTestServer(t)
	resp := makeRPCRequest(t, n.server, "getBlock", []interface{}{1})
	if resp.Error == nil || resp.Error.Code != MethodNotFound {
		t.Errorf("Expected MethodNotFound, got %+v", resp.Error)
	}
}

func TestInvalidParams(t *testing.T) {
	n := newTestServer(t)
	for _, tc := range []struct {
		method string
		params interface{}
	}{
		{"getBalance", []interface{}{}},
		{"getBalance", []interface{}{"not-a-pubkey"}},
		{"getAccountInfo", "oops"},
		{"sendTransaction", []interface{}{"!!!"}},
		{"getMatch", []interface{}{"zz"}},
	} {
		resp := makeRPCRequest(t, n.server, tc.method, tc.params)
		if resp.Error == nil || resp.Error.Code != InvalidParams {
			t.Errorf("%s %v: expected InvalidParams, got %+v", tc.method, tc.params, resp.Error)
		}
	}
}

func TestBatchRequest(t *testing.T) {
	n := newTestServer(t)
	body := `[{"jsonrpc":"2.0","id":1,"method":"getHealth"},{"jsonrpc":"2.0","id":2,"method":"getSlot"},{"jsonrpc":"1.0","id":3,"method":"getSlot"}]`

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	n.server.handleRPC(rr, req)

	var responses []Response
	if err := json.Unmarshal(rr.Body.Bytes(), &responses); err != nil {
		t.Fatalf("Failed to unmarshal batch: %v", err)
	}
	if len(responses) != 3 {
		t.Fatalf("Expected 3 responses, got %d", len(responses))
	}
	if responses[0].Result != "ok" {
		t.Errorf("Unexpected health result: %v", responses[0].Result)
	}
	if responses[2].Error == nil || responses[2].Error.Code != InvalidRequest {
		t.Errorf("Expected InvalidRequest for bad version, got %+v", responses[2].Error)
	}
}

func TestCORSHeaders(t *testing.T) {
	n := newTestServer(t)
	handler := n.server.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://example.com" {
		t.Errorf("Missing CORS origin header")
	}
}

func TestRequestAirdrop(t *testing.T) {
	n := newTestServer(t)
	dest := types.Pubkey{42}

	resp := makeRPCRequest(t, n.server, "requestAirdrop", []interface{}{dest.String(), 2 * sol})
	if resp.Error != nil {
		t.Fatalf("Airdrop failed: %v", resp.Error)
	}
	acc, err := n.db.GetAccount(dest)
	if err != nil || acc.Lamports != 2*sol {
		t.Fatalf("Expected 2 SOL at destination, got %+v, %v", acc, err)
	}

	resp = makeRPCRequest(t, n.server, "requestAirdrop", []interface{}{dest.String(), 501 * sol})
	if resp.Error == nil || resp.Error.Code != AirdropUnavailable {
		t.Errorf("Expected AirdropUnavailable over the limit, got %+v", resp.Error)
	}

	n.server.config.AirdropLimit = 0
	resp = makeRPCRequest(t, n.server, "requestAirdrop", []interface{}{dest.String(), sol})
	if resp.Error == nil || resp.Error.Code != AirdropUnavailable {
		t.Errorf("Expected airdrop disabled, got %+v", resp.Error)
	}
}

func TestDuelFlowOverRPC(t *testing.T) {
	n := newTestServer(t)
	admin := n.wallet(t, 10*sol)
	authority := n.wallet(t, sol)
	p1 := n.wallet(t, 10*sol)
	p2 := n.wallet(t, 10*sol)

	ix, err := duel.NewInitializePlatformInstruction(duel.InitializePlatformAccounts{Admin: admin.Public, GameAuthority: authority.Public})
	if err != nil {
		t.Fatal(err)
	}
	n.send(t, admin, ix)

	matchID := [32]byte{0xab, 0xcd}
	ix, err = duel.NewCreateMatchInstruction(p1.Public, duel.CreateMatchArgs{StakeAmount: sol / 10, MatchID: matchID})
	if err != nil {
		t.Fatal(err)
	}
	createSig := n.send(t, p1, ix)

	// The open lobby lists the new match.
	var lobby struct {
		Value []MatchView `json:"value"`
	}
	decodeResult(t, makeRPCRequest(t, n.server, "getOpenMatches", nil), &lobby)
	if len(lobby.Value) != 1 || lobby.Value[0].StakeSol != "0.1" {
		t.Fatalf("Unexpected lobby: %+v", lobby.Value)
	}

	ix, err = duel.NewJoinMatchInstruction(p2.Public, matchID)
	if err != nil {
		t.Fatal(err)
	}
	n.send(t, p2, ix)

	decodeResult(t, makeRPCRequest(t, n.server, "getOpenMatches", nil), &lobby)
	if len(lobby.Value) != 0 {
		t.Errorf("Joined match still listed as open")
	}

	ix, err = duel.NewSubmitResultInstruction(authority.Public, matchID, p2.Public)
	if err != nil {
		t.Fatal(err)
	}
	n.send(t, authority, ix)

	var match struct {
		Value *MatchView `json:"value"`
	}
	decodeResult(t, makeRPCRequest(t, n.server, "getMatch", []interface{}{hex.EncodeToString(matchID[:])}), &match)
	if match.Value == nil {
		t.Fatal("Expected match view")
	}
	if match.Value.Status != "Completed" || match.Value.Winner == nil || *match.Value.Winner != p2.Public.String() {
		t.Errorf("Unexpected match: %+v", match.Value)
	}
	if match.Value.FeeAmount != 10_000_000 || match.Value.PrizeAmount != 190_000_000 {
		t.Errorf("Unexpected fee/prize: %d/%d", match.Value.FeeAmount, match.Value.PrizeAmount)
	}
	if match.Value.EscrowBalance == nil || *match.Value.EscrowBalance != 2*(sol/10)+duelRent(n, duel.VaultSize) {
		t.Errorf("Unexpected escrow balance: %v", match.Value.EscrowBalance)
	}

	// Lookup by address matches lookup by id.
	var byAddr struct {
		Value *MatchView `json:"value"`
	}
	decodeResult(t, makeRPCRequest(t, n.server, "getMatch", []interface{}{match.Value.Address}), &byAddr)
	if byAddr.Value == nil || byAddr.Value.MatchID != match.Value.MatchID {
		t.Errorf("Lookup by address returned %+v", byAddr.Value)
	}

	ix, err = duel.NewClaimWinningsInstruction(p2.Public, matchID)
	if err != nil {
		t.Fatal(err)
	}
	n.send(t, p2, ix)

	var platform struct {
		Value *PlatformView `json:"value"`
	}
	decodeResult(t, makeRPCRequest(t, n.server, "getPlatformConfig", nil), &platform)
	if platform.Value == nil {
		t.Fatal("Expected platform config")
	}
	if platform.Value.TotalMatches != 1 || platform.Value.MatchesCompleted != 1 || platform.Value.TotalFeesCollected != 10_000_000 {
		t.Errorf("Unexpected platform counters: %+v", platform.Value)
	}
	if platform.Value.FeePercent != "5" {
		t.Errorf("Expected fee percent 5, got %s", platform.Value.FeePercent)
	}
	if platform.Value.WithdrawableFees == nil || *platform.Value.WithdrawableFees != 10_000_000 {
		t.Errorf("Unexpected withdrawable fees: %v", platform.Value.WithdrawableFees)
	}

	// jsonParsed account encoding renders the record.
	var info struct {
		Value struct {
			Data ParsedAccountData `json:"data"`
		} `json:"value"`
	}
	decodeResult(t, makeRPCRequest(t, n.server, "getAccountInfo", []interface{}{match.Value.Address, map[string]string{"encoding": "jsonParsed"}}), &info)
	if info.Value.Data.Program != "x1-duel" || info.Value.Data.Parsed.Type != "gameMatch" {
		t.Errorf("Unexpected parsed data: %+v", info.Value.Data)
	}

	// The ledger serves the create transaction.
	var tx TransactionResponse
	decodeResult(t, makeRPCRequest(t, n.server, "getTransaction", []interface{}{createSig, map[string]string{"encoding": "jsonParsed"}}), &tx)
	if tx.Meta == nil || tx.Meta.Err != nil || len(tx.Meta.LogMessages) == 0 {
		t.Fatalf("Unexpected meta: %+v", tx.Meta)
	}
	parsed, _ := json.Marshal(tx.Transaction)
	if !bytes.Contains(parsed, []byte(`"type":"create_match"`)) {
		t.Errorf("Parsed transaction missing instruction type: %s", parsed)
	}

	var sigs []SignatureInfo
	decodeResult(t, makeRPCRequest(t, n.server, "getSignaturesForAddress", []interface{}{p1.Public.String()}), &sigs)
	if len(sigs) != 1 || sigs[0].Signature != createSig {
		t.Errorf("Unexpected p1 signatures: %+v", sigs)
	}

	// History was fed by the committed events.
	var hist struct {
		Matches []history.Match      `json:"matches"`
		Stats   *history.PlayerStats `json:"stats"`
	}
	decodeResult(t, makeRPCRequest(t, n.server, "getMatchHistory", []interface{}{map[string]string{"player": p2.Public.String()}}), &hist)
	if len(hist.Matches) != 1 || hist.Matches[0].Status != "Claimed" {
		t.Fatalf("Unexpected history: %+v", hist.Matches)
	}
	if hist.Stats == nil || hist.Stats.Won != 1 || hist.Stats.Winnings != 190_000_000 {
		t.Errorf("Unexpected stats: %+v", hist.Stats)
	}

	// Duel-owned accounts filtered by size leave only the platform config.
	var programAccounts []KeyedAccountInfo
	decodeResult(t, makeRPCRequest(t, n.server, "getProgramAccounts", []interface{}{
		duel.ProgramID.String(),
		map[string]interface{}{"filters": []map[string]interface{}{{"dataSize": duel.PlatformConfigSize}}},
	}), &programAccounts)
	if len(programAccounts) != 1 {
		t.Errorf("Expected only the platform config, got %d accounts", len(programAccounts))
	}
}

func duelRent(n *testNode, size uint64) uint64 {
	return n.exec.Rent().MinimumBalance(size)
}

func TestSendTransactionProgramError(t *testing.T) {
	n := newTestServer(t)
	admin := n.wallet(t, 10*sol)
	p1 := n.wallet(t, 10*sol)

	ix, err := duel.NewInitializePlatformInstruction(duel.InitializePlatformAccounts{Admin: admin.Public, GameAuthority: admin.Public})
	if err != nil {
		t.Fatal(err)
	}
	n.send(t, admin, ix)

	ix, err = duel.NewCreateMatchInstruction(p1.Public, duel.CreateMatchArgs{StakeAmount: 1000, MatchID: [32]byte{1}})
	if err != nil {
		t.Fatal(err)
	}
	resp := makeRPCRequest(t, n.server, "sendTransaction", []interface{}{n.encodeTx(t, p1, ix)})
	if resp.Error == nil || resp.Error.Code != SendTransactionPreflightFailure {
		t.Fatalf("Expected preflight failure, got %+v", resp.Error)
	}
	data, _ := json.Marshal(resp.Error.Data)
	if !bytes.Contains(data, []byte(`{"InstructionError":[0,{"Custom":6005}]}`)) {
		t.Errorf("Expected StakeTooLow custom code in %s", data)
	}

	// The failed transaction is still recorded.
	var payload struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatal(err)
	}
	var statuses struct {
		Value []*SignatureStatus `json:"value"`
	}
	decodeResult(t, makeRPCRequest(t, n.server, "getSignatureStatuses", []interface{}{[]string{payload.Signature}}), &statuses)
	if len(statuses.Value) != 1 || statuses.Value[0] == nil || statuses.Value[0].Err == nil {
		t.Errorf("Expected failed status, got %+v", statuses.Value)
	}
}

func TestSendTransactionBadSignature(t *testing.T) {
	n := newTestServer(t)
	from := n.wallet(t, sol)

	n.nonce++
	tx := runtime.NewTransaction(from.Public, n.clock.Now(), n.nonce, system.Transfer(from.Public, types.Pubkey{5}, 1000))
	tx.Signatures = []types.Signature{{1, 2, 3}}
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	resp := makeRPCRequest(t, n.server, "sendTransaction", []interface{}{base64.StdEncoding.EncodeToString(raw)})
	if resp.Error == nil || resp.Error.Code != TransactionSignatureVerificationFailure {
		t.Errorf("Expected signature failure, got %+v", resp.Error)
	}
}

func TestGetStateHashChanges(t *testing.T) {
	n := newTestServer(t)

	var before, after StateHash
	decodeResult(t, makeRPCRequest(t, n.server, "getStateHash", nil), &before)
	n.wallet(t, 1)
	decodeResult(t, makeRPCRequest(t, n.server, "getStateHash", nil), &after)
	if before.Hash == after.Hash {
		t.Error("State hash did not change after account write")
	}
	if after.Accounts != before.Accounts+1 {
		t.Errorf("Expected account count to grow by one: %d -> %d", before.Accounts, after.Accounts)
	}
}

func TestMatchHistoryDisabled(t *testing.T) {
	n := newTestServer(t)
	n.server.history = nil
	resp := makeRPCRequest(t, n.server, "getMatchHistory", nil)
	if resp.Error == nil || resp.Error.Code != TransactionHistoryNotAvailable {
		t.Errorf("Expected history unavailable, got %+v", resp.Error)
	}
}

func TestEncoding(t *testing.T) {
	data := []byte("hello duel")
	for _, enc := range []Encoding{EncodingBase58, EncodingBase64, EncodingBase64Zstd} {
		encoded, err := EncodeAccountData(data, enc)
		if err != nil {
			t.Fatalf("%s: %v", enc, err)
		}
		pair := encoded.([]string)
		decoded, err := DecodeAccountData(pair[0], Encoding(pair[1]))
		if err != nil {
			t.Fatalf("%s decode: %v", enc, err)
		}
		if !bytes.Equal(decoded, data) {
			t.Errorf("%s: got %q", enc, decoded)
		}
	}
}

func TestDataSlice(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4, 5}
	if got := ApplyDataSlice(data, &DataSlice{Offset: 2, Length: 3}); !bytes.Equal(got, []byte{2, 3, 4}) {
		t.Errorf("Unexpected slice: %v", got)
	}
	if got := ApplyDataSlice(data, &DataSlice{Offset: 10, Length: 3}); len(got) != 0 {
		t.Errorf("Expected empty slice past the end, got %v", got)
	}
	if got := ApplyDataSlice(data, &DataSlice{Offset: 4, Length: 10}); !bytes.Equal(got, []byte{4, 5}) {
		t.Errorf("Expected clamped slice, got %v", got)
	}
}

func TestTransactionErrorJSON(t *testing.T) {
	code := uint32(6009)
	got, _ := json.Marshal(TransactionErrorJSON(&runtime.TransactionError{InstructionIndex: 1, Code: &code}))
	if string(got) != `{"InstructionError":[1,{"Custom":6009}]}` {
		t.Errorf("Unexpected custom error JSON: %s", got)
	}
	got, _ = json.Marshal(TransactionErrorJSON(&runtime.TransactionError{InstructionIndex: -1, Message: "boom"}))
	if string(got) != `"boom"` {
		t.Errorf("Unexpected transaction-level error JSON: %s", got)
	}
	if TransactionErrorJSON(nil) != nil {
		t.Error("Expected nil for success")
	}
}

package dashboard

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	goruntime "runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
	"github.com/fortiblox/X1-Duel/pkg/blockstore"
	"github.com/fortiblox/X1-Duel/pkg/rpc"
	"github.com/fortiblox/X1-Duel/pkg/svm"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/duel"
)

var (
	errPlatformNotInitialized = errors.New("platform is not initialized")
	errNotAMatch              = errors.New("account is not a duel match")
)

// matchStatuses feeds the history page's status filter.
var matchStatuses = []string{
	duel.StatusWaitingForOpponent.String(),
	duel.StatusInProgress.String(),
	duel.StatusCompleted.String(),
	duel.StatusCancelled.String(),
	duel.StatusClaimed.String(),
}

// StatusResponse is the response for GET /api/status.
type StatusResponse struct {
	CurrentSlot        uint64  `json:"currentSlot"`
	IsRunning          bool    `json:"isRunning"`
	Uptime             string  `json:"uptime"`
	UptimeSeconds      float64 `json:"uptimeSeconds"`
	TxsProcessed       uint64  `json:"txsProcessed"`
	TxsFailed          uint64  `json:"txsFailed"`
	EventsPublished    uint64  `json:"eventsPublished"`
	AccountsCount      uint64  `json:"accountsCount"`
	LedgerTransactions uint64  `json:"ledgerTransactions"`
	LedgerFailed       uint64  `json:"ledgerFailed"`
	LedgerSize         int64   `json:"ledgerSize"`
	HistoryEnabled     bool    `json:"historyEnabled"`
	LastError          string  `json:"lastError,omitempty"`
}

// AccountResponse is the response for GET /api/accounts/:pubkey.
type AccountResponse struct {
	Pubkey     string            `json:"pubkey"`
	Lamports   uint64            `json:"lamports"`
	Owner      string            `json:"owner"`
	Executable bool              `json:"executable"`
	DataLen    int               `json:"dataLen"`
	DataHex    string            `json:"dataHex,omitempty"` // first 256 bytes
	RentExempt bool              `json:"rentExempt"`
	Record     string            `json:"record,omitempty"`
	Platform   *rpc.PlatformView `json:"platform,omitempty"`
	Match      *rpc.MatchView    `json:"match,omitempty"`
}

// TransactionResponse is the response for GET /api/transactions/:sig.
type TransactionResponse struct {
	Signature            string                `json:"signature"`
	Slot                 uint64                `json:"slot"`
	BlockTime            int64                 `json:"blockTime"`
	Success              bool                  `json:"success"`
	Error                string                `json:"error,omitempty"`
	ErrorName            string                `json:"errorName,omitempty"`
	FeePayer             string                `json:"feePayer"`
	ComputeUnitsConsumed uint64                `json:"computeUnitsConsumed"`
	Instructions         []InstructionResponse `json:"instructions"`
	LogMessages          []string              `json:"logMessages,omitempty"`
	Events               []svm.Event           `json:"events,omitempty"`
}

// InstructionResponse is an instruction in a transaction.
type InstructionResponse struct {
	Program  string   `json:"program"`
	Type     string   `json:"type,omitempty"`
	Accounts []string `json:"accounts"`
	DataHex  string   `json:"dataHex"`
}

// MetricsResponse is the response for GET /api/metrics.
type MetricsResponse struct {
	MemAlloc     uint64 `json:"memAlloc"`
	MemSys       uint64 `json:"memSys"`
	MemHeapInuse uint64 `json:"memHeapInuse"`
	NumGC        uint32 `json:"numGC"`
	NumGoroutine int    `json:"numGoroutine"`
	NumCPU       int    `json:"numCPU"`
	GoVersion    string `json:"goVersion"`

	AccountsCount    uint64 `json:"accountsCount"`
	TransactionCount uint64 `json:"transactionCount"`
	DatabaseSize     int64  `json:"databaseSize"`
	OpenMatches      int    `json:"openMatches"`
}

func (d *Dashboard) now() int64 {
	if d.executor != nil {
		return d.executor.Clock().Now()
	}
	return 0
}

func (d *Dashboard) status() *StatusResponse {
	s := &StatusResponse{HistoryEnabled: d.history != nil}
	if d.stats != nil {
		s.CurrentSlot = d.stats.CurrentSlot()
		s.IsRunning = d.stats.IsRunning()
		s.UptimeSeconds = d.stats.Uptime().Seconds()
		s.Uptime = formatDuration(d.stats.Uptime())
		s.TxsProcessed = d.stats.TxsProcessed()
		s.TxsFailed = d.stats.TxsFailed()
		s.EventsPublished = d.stats.EventsPublished()
		if err := d.stats.LastError(); err != nil {
			s.LastError = err.Error()
		}
	} else if d.executor != nil {
		s.CurrentSlot = d.executor.Slot()
	}
	s.AccountsCount, _ = d.accounts.AccountsCount()
	if stats, err := d.ledger.GetStats(); err == nil {
		s.LedgerTransactions = stats.TransactionCount
		s.LedgerFailed = stats.FailedCount
		s.LedgerSize = stats.DatabaseSize
	}
	return s
}

func (d *Dashboard) balance(key types.Pubkey) uint64 {
	acc, err := d.accounts.GetAccount(key)
	if err != nil {
		return 0
	}
	return acc.Lamports
}

// platform loads the platform config with its treasury balances.
func (d *Dashboard) platform() (*rpc.PlatformView, error) {
	address, _, err := duel.PlatformConfigAddress()
	if err != nil {
		return nil, err
	}
	account, err := d.accounts.GetAccount(address)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, errPlatformNotInitialized
	}
	if err != nil {
		return nil, err
	}
	cfg, err := duel.DecodePlatformConfig(account.Data)
	if err != nil {
		return nil, err
	}

	view := rpc.NewPlatformView(address, cfg)
	balance := d.balance(cfg.Treasury)
	var withdrawable uint64
	if d.executor != nil {
		if reserve := d.executor.Rent().MinimumBalance(duel.VaultSize); balance > reserve {
			withdrawable = balance - reserve
		}
	}
	view.TreasuryBalance = &balance
	view.WithdrawableFees = &withdrawable
	return view, nil
}

// lobby lists joinable matches, oldest first.
func (d *Dashboard) lobby(limit int) ([]*rpc.MatchView, error) {
	now := d.now()
	open := []*rpc.MatchView{}
	err := d.accounts.IterateAccounts(func(pubkey types.Pubkey, account *accounts.Account) error {
		if account.Owner != duel.ProgramID || len(account.Data) != duel.GameMatchSize {
			return nil
		}
		if duel.MatchStatus(account.Data[duel.GameMatchStatusOffset]) != duel.StatusWaitingForOpponent {
			return nil
		}
		m, err := duel.DecodeGameMatch(account.Data)
		if err != nil || m.IsExpired(now) {
			return nil
		}
		open = append(open, rpc.NewMatchView(pubkey, m, now))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].CreatedAt < open[j].CreatedAt })
	if limit > 0 && len(open) > limit {
		open = open[:limit]
	}
	return open, nil
}

// matchAddress accepts a 64-character hex match id or a base58 address.
func matchAddress(ref string) (types.Pubkey, error) {
	if len(ref) == 64 {
		if raw, err := hex.DecodeString(strings.ToLower(ref)); err == nil {
			var id [32]byte
			copy(id[:], raw)
			address, _, err := duel.MatchAddress(id)
			return address, err
		}
	}
	return types.PubkeyFromBase58(ref)
}

func (d *Dashboard) match(ref string) (*rpc.MatchView, error) {
	address, err := matchAddress(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid match reference: %w", err)
	}
	account, err := d.accounts.GetAccount(address)
	if err != nil {
		return nil, err
	}
	if account.Owner != duel.ProgramID {
		return nil, errNotAMatch
	}
	m, err := duel.DecodeGameMatch(account.Data)
	if err != nil {
		return nil, errNotAMatch
	}
	view := rpc.NewMatchView(address, m, d.now())
	if escrow, err := types.PubkeyFromBase58(view.Escrow); err == nil {
		balance := d.balance(escrow)
		view.EscrowBalance = &balance
	}
	return view, nil
}

func (d *Dashboard) account(query string) (*AccountResponse, error) {
	pubkey, err := types.PubkeyFromBase58(query)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	account, err := d.accounts.GetAccount(pubkey)
	if err != nil {
		return nil, err
	}

	resp := &AccountResponse{
		Pubkey:     pubkey.String(),
		Lamports:   account.Lamports,
		Owner:      account.Owner.String(),
		Executable: account.Executable,
		DataLen:    len(account.Data),
	}
	if len(account.Data) > 0 {
		resp.DataHex = hex.EncodeToString(account.Data[:min(len(account.Data), 256)])
	}
	if d.executor != nil {
		resp.RentExempt = d.executor.Rent().IsExempt(account.Lamports, uint64(len(account.Data)))
	}

	if account.Owner == duel.ProgramID && len(account.Data) >= duel.DiscriminatorSize {
		disc := account.Data[:duel.DiscriminatorSize]
		switch {
		case bytes.Equal(disc, duel.PlatformConfigDiscriminator[:]):
			resp.Record = "platformConfig"
			resp.Platform, _ = d.platform()
		case bytes.Equal(disc, duel.GameMatchDiscriminator[:]):
			resp.Record = "gameMatch"
			resp.Match, _ = d.match(pubkey.String())
		case duel.IsVault(account.Data):
			resp.Record = "vault"
		}
	}
	return resp, nil
}

func (d *Dashboard) transaction(sigStr string) (*TransactionResponse, error) {
	sig, err := types.SignatureFromBase58(sigStr)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	record, err := d.ledger.GetTransaction(sig)
	if err != nil {
		return nil, err
	}
	tx, err := record.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	resp := &TransactionResponse{
		Signature: sig.String(),
		Slot:      record.Slot,
		BlockTime: record.BlockTime,
		Success:   true,
		FeePayer:  tx.Message.FeePayer.String(),
	}
	if receipt := record.Receipt; receipt != nil {
		resp.Success = receipt.Succeeded()
		if receipt.Err != nil {
			resp.Error = receipt.Err.Error()
			resp.ErrorName = receipt.Err.Name
		}
		resp.ComputeUnitsConsumed = receipt.ComputeUnitsConsumed
		resp.LogMessages = receipt.Logs
		resp.Events = receipt.Events
	}

	for _, ix := range tx.Message.Instructions {
		ir := InstructionResponse{
			Program: ix.ProgramID.String(),
			DataHex: hex.EncodeToString(ix.Data),
		}
		switch ix.ProgramID {
		case types.SystemProgramAddr:
			ir.Program = "system"
		case duel.ProgramID:
			ir.Program = "x1-duel"
			if kind, _, err := duel.DecodeInstruction(ix.Data); err == nil {
				ir.Type = string(kind)
			}
		}
		for _, meta := range ix.Accounts {
			ir.Accounts = append(ir.Accounts, meta.Pubkey.String())
		}
		resp.Instructions = append(resp.Instructions, ir)
	}
	return resp, nil
}

// notFound maps lookup errors to 404 and everything else to 400.
func notFound(err error) int {
	if errors.Is(err, accounts.ErrAccountNotFound) || errors.Is(err, blockstore.ErrTransactionNotFound) ||
		errors.Is(err, errPlatformNotInitialized) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// handleAPIStatus handles GET /api/status.
func (d *Dashboard) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, d.status())
}

// handleAPIPlatform handles GET /api/platform.
func (d *Dashboard) handleAPIPlatform(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	view, err := d.platform()
	if err != nil {
		writeError(w, err.Error(), notFound(err))
		return
	}
	writeJSON(w, view)
}

// handleAPILobby handles GET /api/lobby?limit=N.
func (d *Dashboard) handleAPILobby(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	limit := d.config.LobbySize
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= d.config.LobbySize {
			limit = parsed
		}
	}
	matches, err := d.lobby(limit)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, matches)
}

// handleAPIMatch handles GET /api/matches/:ref.
func (d *Dashboard) handleAPIMatch(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	ref := strings.TrimPrefix(r.URL.Path, "/api/matches/")
	if ref == "" {
		writeError(w, "Match id or address required", http.StatusBadRequest)
		return
	}
	view, err := d.match(ref)
	if err != nil {
		writeError(w, err.Error(), notFound(err))
		return
	}
	writeJSON(w, view)
}

// handleAPIAccount handles GET /api/accounts/:pubkey.
func (d *Dashboard) handleAPIAccount(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	pubkeyStr := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	if pubkeyStr == "" {
		writeError(w, "Public key required", http.StatusBadRequest)
		return
	}
	resp, err := d.account(pubkeyStr)
	if err != nil {
		writeError(w, err.Error(), notFound(err))
		return
	}
	writeJSON(w, resp)
}

// handleAPITransaction handles GET /api/transactions/:sig.
func (d *Dashboard) handleAPITransaction(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	sigStr := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
	if sigStr == "" {
		writeError(w, "Signature required", http.StatusBadRequest)
		return
	}
	resp, err := d.transaction(sigStr)
	if err != nil {
		writeError(w, err.Error(), notFound(err))
		return
	}
	writeJSON(w, resp)
}

// handleAPIMetrics handles GET /api/metrics.
func (d *Dashboard) handleAPIMetrics(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	var memStats goruntime.MemStats
	goruntime.ReadMemStats(&memStats)

	resp := MetricsResponse{
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		MemHeapInuse: memStats.HeapInuse,
		NumGC:        memStats.NumGC,
		NumGoroutine: goruntime.NumGoroutine(),
		NumCPU:       goruntime.NumCPU(),
		GoVersion:    goruntime.Version(),
	}
	if count, err := d.accounts.AccountsCount(); err == nil {
		resp.AccountsCount = count
	}
	if stats, err := d.ledger.GetStats(); err == nil {
		resp.TransactionCount = stats.TransactionCount
		resp.DatabaseSize = stats.DatabaseSize
	}
	if open, err := d.lobby(0); err == nil {
		resp.OpenMatches = len(open)
	}
	writeJSON(w, resp)
}

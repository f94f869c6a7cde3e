// Package node wires an X1-Duel node together.
//
// The Node ties together all components:
// - AccountsDB (badger or in-memory) holding wallets, platform and match accounts
// - Executor running the system and duel programs
// - Blockstore ledger recording every executed transaction
// - History index fed by program events
// - JSON-RPC server for clients
// - Optional web dashboard for operators
//
// The node manages the lifecycle of these components, applies genesis
// funding on first start, and reports status for monitoring.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
	"github.com/fortiblox/X1-Duel/pkg/blockstore"
	"github.com/fortiblox/X1-Duel/pkg/dashboard"
	"github.com/fortiblox/X1-Duel/pkg/events"
	"github.com/fortiblox/X1-Duel/pkg/history"
	"github.com/fortiblox/X1-Duel/pkg/rpc"
	"github.com/fortiblox/X1-Duel/pkg/runtime"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/duel"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/system"
	"github.com/fortiblox/X1-Duel/pkg/wallet"
)

// Node errors.
var (
	ErrAlreadyRunning = errors.New("node is already running")
	ErrNotRunning     = errors.New("node is not running")
	ErrConfigInvalid  = errors.New("invalid node configuration")
	ErrInitFailed     = errors.New("node initialization failed")
)

// FaucetPasswordEnv holds the password for an encrypted faucet keystore.
const FaucetPasswordEnv = EnvPrefix + "FAUCET_PASSWORD"

// Node is a running X1-Duel node.
type Node struct {
	config Config
	clock  runtime.Clock

	// Core components
	accounts  accounts.DB
	ledger    blockstore.Store
	history   *history.Store
	emitter   *events.Emitter
	executor  *runtime.Executor
	rpcServer *rpc.Server
	dashboard *dashboard.Dashboard
	faucet    *types.Keypair

	// State management
	running     atomic.Bool
	startTime   time.Time
	lastError   error
	lastErrorMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	txsProcessed    atomic.Uint64
	txsFailed       atomic.Uint64
	eventsPublished atomic.Uint64
}

// New creates a node with the given configuration. Nothing is opened until
// Start is called. clock may be nil for the wall clock.
func New(config *Config, clock runtime.Clock) (*Node, error) {
	if config == nil {
		c := DefaultConfig()
		config = &c
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = runtime.SystemClock{}
	}
	return &Node{config: *config, clock: clock}, nil
}

// Start opens storage, applies genesis, and starts the RPC server. It
// returns once everything is running.
func (n *Node) Start(ctx context.Context) error {
	if n.running.Swap(true) {
		return ErrAlreadyRunning
	}

	n.ctx, n.cancel = context.WithCancel(ctx)
	n.startTime = time.Now()

	if err := n.initialize(); err != nil {
		n.cancel()
		n.closeStorage()
		n.running.Store(false)
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	if n.config.StatusInterval > 0 {
		n.wg.Add(1)
		go n.statusLoop()
	}

	if n.rpcServer != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.rpcServer.Start(n.ctx); err != nil {
				n.reportError(fmt.Errorf("RPC server error: %w", err))
			}
		}()
	}

	if n.dashboard != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.dashboard.Start(n.ctx); err != nil {
				n.reportError(fmt.Errorf("dashboard error: %w", err))
			}
		}()
	}

	klog.Infof("[node] started at slot %d (data dir %s)", n.executor.Slot(), n.config.DataDir)
	return nil
}

// initialize sets up storage, programs and the RPC server.
func (n *Node) initialize() error {
	if err := os.MkdirAll(n.config.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	ledgerConfig := blockstore.DefaultConfig(filepath.Join(n.config.DataDir, "ledger", "ledger.db"))
	ledgerConfig.NoSync = n.config.Ledger.NoSync
	ledgerConfig.PruneEnabled = n.config.Ledger.PruneEnabled
	if n.config.Ledger.PruneInterval > 0 {
		ledgerConfig.PruneInterval = n.config.Ledger.PruneInterval
	}
	if n.config.Ledger.RetainSlots > 0 {
		ledgerConfig.RetainSlots = n.config.Ledger.RetainSlots
	}
	ledger, err := blockstore.Open(ledgerConfig)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	n.ledger = &countingLedger{Store: ledger, node: n}

	if n.config.InMemory {
		n.accounts = accounts.NewMemoryDB()
	} else {
		accts, err := accounts.NewBadgerDB(accounts.DefaultBadgerDBConfig(filepath.Join(n.config.DataDir, "accounts")))
		if err != nil {
			return fmt.Errorf("open accounts database: %w", err)
		}
		n.accounts = accts
	}

	if n.config.RPC.FaucetKeyPath != "" {
		n.faucet, err = wallet.LoadKey(n.config.RPC.FaucetKeyPath, os.Getenv(FaucetPasswordEnv))
		if err != nil {
			return fmt.Errorf("load faucet key: %w", err)
		}
	}

	if err := n.prepareState(ledger.GetLatestSlot()); err != nil {
		return err
	}

	n.emitter = events.NewEmitter()
	n.emitter.Subscribe(events.Wildcard, n.onEvent)
	if n.config.History.Enabled {
		if err := n.openHistory(); err != nil {
			return err
		}
	}

	execConfig := runtime.DefaultConfig()
	execConfig.ComputeLimit = n.config.Executor.ComputeLimit
	execConfig.MaxTransactionAge = n.config.Executor.MaxTransactionAge
	n.executor = runtime.NewExecutor(n.accounts, n.clock, n.ledger, n.emitter, execConfig,
		system.NewProcessor(), duel.NewProcessor())

	if n.config.RPC.Enabled {
		rpcConfig := n.config.RPC.Server
		rpcConfig.Faucet = n.faucet
		n.rpcServer = rpc.New(rpcConfig, n.accounts, n.ledger, n.executor, n.history)
	}
	if n.config.Dashboard.Enabled {
		dash, err := dashboard.New(n.config.Dashboard.Server, n.ledger, n.accounts, n.executor,
			n.history, dashboardStats{n})
		if err != nil {
			return fmt.Errorf("create dashboard: %w", err)
		}
		n.dashboard = dash
	}
	return nil
}

// prepareState restores a snapshot or applies genesis when the account
// store is empty, and keeps the slot counter ahead of the ledger.
func (n *Node) prepareState(ledgerSlot uint64) error {
	count, err := n.accounts.AccountsCount()
	if err != nil {
		return fmt.Errorf("count accounts: %w", err)
	}

	if count == 0 {
		if n.config.SnapshotPath != "" {
			header, err := accounts.LoadSnapshot(n.accounts, n.config.SnapshotPath)
			if err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}
			klog.Infof("[node] restored %d accounts at slot %d from %s (hash %s)",
				header.AccountsCount, header.Slot, n.config.SnapshotPath, header.AccountsHash)
		} else if err := n.applyGenesis(); err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
	}

	if n.accounts.GetSlot() < ledgerSlot {
		if err := n.accounts.SetSlot(ledgerSlot); err != nil {
			return fmt.Errorf("set slot: %w", err)
		}
	}
	return nil
}

// applyGenesis credits the configured wallets and the faucet.
func (n *Node) applyGenesis() error {
	writes := make(map[types.Pubkey]*accounts.Account)
	credit := func(key types.Pubkey, lamports uint64) error {
		acc, ok := writes[key]
		if !ok {
			acc = &accounts.Account{Owner: types.SystemProgramAddr}
			writes[key] = acc
		}
		if acc.Lamports+lamports < acc.Lamports {
			return fmt.Errorf("genesis balance overflow for %s", key)
		}
		acc.Lamports += lamports
		return nil
	}

	for _, ga := range n.config.Genesis.Accounts {
		key, err := types.PubkeyFromBase58(ga.Address)
		if err != nil {
			return err
		}
		lamports, err := types.ParseSol(ga.Amount)
		if err != nil {
			return err
		}
		if err := credit(key, lamports); err != nil {
			return err
		}
	}
	if n.faucet != nil && n.config.Genesis.FaucetLamports > 0 {
		if err := credit(n.faucet.Public, n.config.Genesis.FaucetLamports); err != nil {
			return err
		}
	}
	if len(writes) == 0 {
		return nil
	}

	if err := n.accounts.ApplyBatch(writes); err != nil {
		return err
	}
	klog.Infof("[node] genesis funded %d accounts", len(writes))
	return nil
}

func (n *Node) openHistory() error {
	config := history.Config{Driver: n.config.History.Driver, DSN: n.config.History.DSN}
	if config.Driver == history.DriverSQLite && config.DSN == "" {
		dir := filepath.Join(n.config.DataDir, "history")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
		config.DSN = filepath.Join(dir, "history.db")
	}
	hist, err := history.Open(config)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	hist.Attach(n.emitter)
	n.history = hist
	return nil
}

func (n *Node) onEvent(ev events.Event) {
	n.eventsPublished.Add(1)
	klog.V(1).Infof("[events] %s %s slot=%d sig=%s", ev.Program, ev.Name, ev.Slot, ev.Signature)
}

// statusLoop periodically logs progress and flushes the ledger.
func (n *Node) statusLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.config.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if err := n.ledger.Sync(); err != nil {
				n.reportError(fmt.Errorf("sync ledger: %w", err))
			}
			if gc, ok := n.accounts.(interface{ CollectGarbage() error }); ok {
				if err := gc.CollectGarbage(); err != nil {
					klog.Warningf("[node] accounts gc: %v", err)
				}
			}
			s := n.Status()
			klog.Infof("[node] slot=%d txs=%d failed=%d events=%d accounts=%d",
				s.Slot, s.TxsProcessed, s.TxsFailed, s.EventsPublished, s.AccountsCount)
		}
	}
}

// Stop gracefully stops the node and closes storage.
func (n *Node) Stop() error {
	if !n.running.Load() {
		return ErrNotRunning
	}

	if n.cancel != nil {
		n.cancel()
	}
	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.dashboard != nil {
		n.dashboard.Stop()
	}
	n.wg.Wait()

	if n.ledger != nil {
		n.ledger.Sync()
	}
	n.closeStorage()

	n.running.Store(false)
	klog.Infof("[node] stopped")
	return nil
}

func (n *Node) closeStorage() {
	if n.history != nil {
		n.history.Close()
		n.history = nil
	}
	if n.accounts != nil {
		n.accounts.Close()
		n.accounts = nil
	}
	if n.ledger != nil {
		n.ledger.Close()
		n.ledger = nil
	}
}

// CreateSnapshot writes the current account state to path.
func (n *Node) CreateSnapshot(path string) (*accounts.SnapshotHeader, error) {
	if !n.running.Load() {
		return nil, ErrNotRunning
	}
	return accounts.CreateSnapshot(n.accounts, path)
}

// Status contains the current node status.
type Status struct {
	// Slot is the slot of the last executed transaction.
	Slot uint64

	// AccountsCount is the total number of accounts in the database.
	AccountsCount uint64

	// IsRunning indicates if the node is running.
	IsRunning bool

	// Uptime is how long the node has been running.
	Uptime time.Duration

	// TxsProcessed counts executed transactions since start, TxsFailed the
	// ones among them that rolled back.
	TxsProcessed uint64
	TxsFailed    uint64

	// EventsPublished counts program events since start.
	EventsPublished uint64

	// LedgerStats contains ledger statistics.
	LedgerStats *blockstore.Stats

	// RPCAddr is the RPC server address if enabled.
	RPCAddr string

	// DashboardAddr is the dashboard address if enabled.
	DashboardAddr string

	// LastError is the most recent background error.
	LastError error
}

// Status returns the current node status.
func (n *Node) Status() *Status {
	s := &Status{
		IsRunning:       n.running.Load(),
		Uptime:          time.Since(n.startTime),
		TxsProcessed:    n.txsProcessed.Load(),
		TxsFailed:       n.txsFailed.Load(),
		EventsPublished: n.eventsPublished.Load(),
		LastError:       n.getLastError(),
	}
	if n.executor != nil {
		s.Slot = n.executor.Slot()
	}
	if n.accounts != nil {
		s.AccountsCount, _ = n.accounts.AccountsCount()
	}
	if n.ledger != nil {
		s.LedgerStats, _ = n.ledger.GetStats()
	}
	if n.rpcServer != nil {
		s.RPCAddr = n.rpcServer.Addr()
	}
	if n.dashboard != nil {
		s.DashboardAddr = n.dashboard.Address()
	}
	return s
}

// Executor returns the transaction executor. Nil before Start.
func (n *Node) Executor() *runtime.Executor { return n.executor }

// Accounts returns the account store. Nil before Start.
func (n *Node) Accounts() accounts.DB { return n.accounts }

// Ledger returns the transaction ledger. Nil before Start.
func (n *Node) Ledger() blockstore.Store { return n.ledger }

// History returns the match-history index, or nil when disabled.
func (n *Node) History() *history.Store { return n.history }

// RPC returns the RPC server, or nil when disabled.
func (n *Node) RPC() *rpc.Server { return n.rpcServer }

// Dashboard returns the web dashboard, or nil when disabled.
func (n *Node) Dashboard() *dashboard.Dashboard { return n.dashboard }

// Faucet returns the faucet key, or nil when none is configured.
func (n *Node) Faucet() *types.Keypair { return n.faucet }

func (n *Node) reportError(err error) {
	klog.Errorf("[node] %v", err)
	n.lastErrorMu.Lock()
	n.lastError = err
	n.lastErrorMu.Unlock()
	if n.config.OnError != nil {
		n.config.OnError(err)
	}
}

func (n *Node) getLastError() error {
	n.lastErrorMu.RLock()
	defer n.lastErrorMu.RUnlock()
	return n.lastError
}

// countingLedger counts receipts on their way into the ledger.
type countingLedger struct {
	blockstore.Store
	node *Node
}

func (l *countingLedger) RecordTransaction(tx *runtime.Transaction, receipt *runtime.Receipt) error {
	if err := l.Store.RecordTransaction(tx, receipt); err != nil {
		return err
	}
	l.node.txsProcessed.Add(1)
	if !receipt.Succeeded() {
		l.node.txsFailed.Add(1)
	}
	return nil
}

// dashboardStats exposes the node's counters to the dashboard.
type dashboardStats struct{ n *Node }

func (s dashboardStats) CurrentSlot() uint64 {
	if s.n.executor == nil {
		return 0
	}
	return s.n.executor.Slot()
}

func (s dashboardStats) IsRunning() bool         { return s.n.running.Load() }
func (s dashboardStats) Uptime() time.Duration   { return time.Since(s.n.startTime) }
func (s dashboardStats) TxsProcessed() uint64    { return s.n.txsProcessed.Load() }
func (s dashboardStats) TxsFailed() uint64       { return s.n.txsFailed.Load() }
func (s dashboardStats) EventsPublished() uint64 { return s.n.eventsPublished.Load() }
func (s dashboardStats) LastError() error        { return s.n.getLastError() }

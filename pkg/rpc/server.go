// Package rpc implements the JSON-RPC 2.0 server for X1-Duel.
//
// The API follows the Solana JSON-RPC conventions so existing tooling can
// read accounts and submit transactions, and adds duel-specific views.
//
// Supported methods:
//   - Account: getAccountInfo, getBalance, getMultipleAccounts, getProgramAccounts
//   - Transaction: sendTransaction, getTransaction, getSignaturesForAddress, getSignatureStatuses
//   - Node: getHealth, getVersion, getSlot, getStateHash, getMinimumBalanceForRentExemption, requestAirdrop
//   - Duel: getPlatformConfig, getMatch, getOpenMatches, getMatchHistory
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
	"github.com/fortiblox/X1-Duel/pkg/blockstore"
	"github.com/fortiblox/X1-Duel/pkg/history"
	"github.com/fortiblox/X1-Duel/pkg/runtime"
)

// Config holds RPC server configuration.
type Config struct {
	// Addr is the listen address (host:port).
	Addr string `yaml:"addr"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxRequestSize caps the request body in bytes. A signed duel
	// transaction is well under 2KB.
	MaxRequestSize int64 `yaml:"max_request_size"`

	// EnableCORS lets browser clients call the node. AllowedOrigins
	// restricts them; empty allows any origin.
	EnableCORS     bool     `yaml:"enable_cors"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	// LogRequests logs every call with its latency.
	LogRequests bool `yaml:"log_requests"`

	// AirdropLimit caps a single requestAirdrop. Zero disables airdrops.
	AirdropLimit uint64 `yaml:"airdrop_limit"`

	// Faucet funds airdrops. Required when AirdropLimit is set.
	Faucet *types.Keypair `yaml:"-"`
}

// DefaultConfig returns a default RPC server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8899",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxRequestSize: 50 * 1024,
		EnableCORS:     true,
	}
}

// handlerFunc is a JSON-RPC method handler.
type handlerFunc func(params json.RawMessage) (interface{}, *RPCError)

// Server is the JSON-RPC 2.0 server.
type Server struct {
	config     Config
	accountsDB accounts.DB
	ledger     blockstore.Store
	executor   *runtime.Executor
	history    *history.Store
	methods    map[string]handlerFunc

	unhealthy    atomic.Bool
	airdropNonce atomic.Uint64

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new RPC server. hist may be nil, in which case
// getMatchHistory reports that history is unavailable.
func New(config Config, accountsDB accounts.DB, ledger blockstore.Store, executor *runtime.Executor, hist *history.Store) *Server {
	s := &Server{
		config:     config,
		accountsDB: accountsDB,
		ledger:     ledger,
		executor:   executor,
		history:    hist,
	}
	s.airdropNonce.Store(uint64(time.Now().UnixNano()))
	s.methods = map[string]handlerFunc{
		"getAccountInfo":      s.getAccountInfo,
		"getBalance":          s.getBalance,
		"getMultipleAccounts": s.getMultipleAccounts,
		"getProgramAccounts":  s.getProgramAccounts,

		"sendTransaction":         s.sendTransaction,
		"getTransaction":          s.getTransaction,
		"getSignaturesForAddress": s.getSignaturesForAddress,
		"getSignatureStatuses":    s.getSignatureStatuses,

		"getHealth":                         s.getHealth,
		"getVersion":                        s.getVersion,
		"getSlot":                           s.getSlot,
		"getStateHash":                      s.getStateHash,
		"getMinimumBalanceForRentExemption": s.getMinimumBalanceForRentExemption,
		"requestAirdrop":                    s.requestAirdrop,

		"getPlatformConfig": s.getPlatformConfig,
		"getMatch":          s.getMatch,
		"getOpenMatches":    s.getOpenMatches,
		"getMatchHistory":   s.getMatchHistory,
	}
	return s
}

// Handler returns the HTTP handler serving JSON-RPC on "/".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRPC)
	return s.corsMiddleware(mux)
}

// Start listens on the configured address and serves until ctx is
// cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.server, s.listener = srv, listener
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.Stop() })
	defer stop()

	klog.Infof("[RPC] listening on %s", listener.Addr())
	if err := srv.Serve(listener); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting up to five seconds for in-flight
// requests.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Addr returns the bound listen address once Start has run, otherwise the
// configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// SetHealthy sets the server health status reported by getHealth.
func (s *Server) SetHealthy(healthy bool) { s.unhealthy.Store(!healthy) }

// IsHealthy returns the current health status.
func (s *Server) IsHealthy() bool { return !s.unhealthy.Load() }

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	if !s.config.EnableCORS {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, solana-client")
			h.Set("Access-Control-Max-Age", "3600")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	allowed := s.config.AllowedOrigins
	return len(allowed) == 0 || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

// handleRPC handles single and batch JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err != nil || mediaType != "application/json" {
			writeJSON(w, errorResponse(nil, ErrInvalidRequest))
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxRequestSize))
	if err != nil {
		writeJSON(w, errorResponse(nil, ErrParseError))
		return
	}

	if len(body) > 0 && body[0] == '[' {
		var batch []Request
		if err := json.Unmarshal(body, &batch); err != nil {
			writeJSON(w, errorResponse(nil, ErrParseError))
			return
		}
		if len(batch) == 0 {
			writeJSON(w, errorResponse(nil, ErrInvalidRequest))
			return
		}
		responses := make([]Response, len(batch))
		for i, req := range batch {
			responses[i] = s.serve(req)
		}
		writeJSON(w, responses)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, errorResponse(nil, ErrParseError))
		return
	}
	writeJSON(w, s.serve(req))
}

// serve validates and dispatches one request.
func (s *Server) serve(req Request) Response {
	if req.JSONRPC != JSONRPCVersion {
		return errorResponse(req.ID, ErrInvalidRequest)
	}
	handler, ok := s.methods[req.Method]
	if !ok {
		return errorResponse(req.ID, NewRPCError(MethodNotFound, fmt.Sprintf("Method not found: %s", req.Method)))
	}

	start := time.Now()
	result, rpcErr := handler(req.Params)
	if s.config.LogRequests {
		klog.Infof("[RPC] %s id=%v took=%s err=%v", req.Method, req.ID, time.Since(start), rpcErr != nil)
	}
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}
	return Response{JSONRPC: JSONRPCVersion, ID: req.ID, Result: result}
}

func errorResponse(id interface{}, err *RPCError) Response {
	return Response{JSONRPC: JSONRPCVersion, ID: id, Error: err}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.V(1).Infof("[RPC] write response: %v", err)
	}
}

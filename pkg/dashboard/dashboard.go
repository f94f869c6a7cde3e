// Package dashboard provides an embedded web dashboard for operating an
// X1-Duel node.
//
// The dashboard provides:
// - Node health and transaction counters
// - Platform configuration, volume and treasury balance
// - The lobby of matches waiting for an opponent
// - Match lookup by id or address, with settled matches from the history index
// - Account and transaction lookup
//
// Pages and assets are compiled into the binary, so the dashboard needs no
// files on disk.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
	"github.com/fortiblox/X1-Duel/pkg/blockstore"
	"github.com/fortiblox/X1-Duel/pkg/history"
	"github.com/fortiblox/X1-Duel/pkg/runtime"
)

// Config holds dashboard configuration options.
type Config struct {
	// Addr is the listen address (host:port).
	// Default: "127.0.0.1:8080"
	Addr string `yaml:"addr"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// LobbySize caps the matches shown on the lobby page.
	LobbySize int `yaml:"lobby_size"`
}

// DefaultConfig returns the default dashboard configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		LobbySize:    100,
	}
}

// NodeStats provides node counters to the dashboard.
type NodeStats interface {
	// CurrentSlot returns the slot of the last executed transaction.
	CurrentSlot() uint64

	// IsRunning returns true if the node is running.
	IsRunning() bool

	// Uptime returns how long the node has been running.
	Uptime() time.Duration

	// TxsProcessed returns how many transactions ran since start.
	TxsProcessed() uint64

	// TxsFailed returns how many of them rolled back.
	TxsFailed() uint64

	// EventsPublished returns how many program events were emitted.
	EventsPublished() uint64

	// LastError returns the last background error, if any.
	LastError() error
}

// Dashboard is the web dashboard server.
type Dashboard struct {
	config   Config
	server   *http.Server
	ledger   blockstore.Store
	accounts accounts.DB
	executor *runtime.Executor
	history  *history.Store
	stats    NodeStats

	templates *template.Template

	mu        sync.RWMutex
	listener  net.Listener
	running   bool
	startTime time.Time
}

// New creates a new dashboard server. hist and stats may be nil.
func New(config Config, ledger blockstore.Store, accts accounts.DB, exec *runtime.Executor,
	hist *history.Store, stats NodeStats) (*Dashboard, error) {
	defaults := DefaultConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.LobbySize <= 0 {
		config.LobbySize = defaults.LobbySize
	}

	d := &Dashboard{
		config:    config,
		ledger:    ledger,
		accounts:  accts,
		executor:  exec,
		history:   hist,
		stats:     stats,
		startTime: time.Now(),
	}

	tmpl, err := d.parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	d.templates = tmpl

	return d, nil
}

func (d *Dashboard) parseTemplates() (*template.Template, error) {
	funcMap := template.FuncMap{
		"formatDuration": formatDuration,
		"formatNumber":   formatNumber,
		"formatBytes":    formatBytes,
		"formatTime":     formatTime,
		"truncateHash":   truncateHash,
		"sol":            types.FormatSol,
		"deref":          func(s *string) string { return derefOr(s, "") },
	}

	tmpl := template.New("").Funcs(funcMap)
	if _, err := tmpl.New("layout").Parse(layoutTemplate); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	pages := map[string]string{
		"home":        homeTemplate,
		"lobby":       lobbyTemplate,
		"matches":     matchesTemplate,
		"match":       matchDetailTemplate,
		"accounts":    accountsTemplate,
		"transaction": transactionTemplate,
	}
	for name, content := range pages {
		if _, err := tmpl.New(name).Parse(content); err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
	}
	return tmpl, nil
}

// Handler returns the dashboard's routes.
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/static/", d.handleStatic)

	mux.HandleFunc("/", d.handleHome)
	mux.HandleFunc("/lobby", d.handleLobby)
	mux.HandleFunc("/matches", d.handleMatches)
	mux.HandleFunc("/matches/", d.handleMatchDetail)
	mux.HandleFunc("/accounts", d.handleAccounts)
	mux.HandleFunc("/transactions/", d.handleTransaction)

	mux.HandleFunc("/api/status", d.handleAPIStatus)
	mux.HandleFunc("/api/platform", d.handleAPIPlatform)
	mux.HandleFunc("/api/lobby", d.handleAPILobby)
	mux.HandleFunc("/api/matches/", d.handleAPIMatch)
	mux.HandleFunc("/api/accounts/", d.handleAPIAccount)
	mux.HandleFunc("/api/transactions/", d.handleAPITransaction)
	mux.HandleFunc("/api/metrics", d.handleAPIMetrics)

	return mux
}

// Start starts the dashboard HTTP server and blocks until it stops.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dashboard already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.server = &http.Server{
		Addr:         d.config.Addr,
		Handler:      d.Handler(),
		ReadTimeout:  d.config.ReadTimeout,
		WriteTimeout: d.config.WriteTimeout,
		IdleTimeout:  d.config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	srv := d.server
	d.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { d.Stop() })
	defer stop()

	listener, err := net.Listen("tcp", d.config.Addr)
	if err != nil {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", d.config.Addr, err)
	}
	d.mu.Lock()
	d.listener = listener
	d.mu.Unlock()

	klog.Infof("[dashboard] listening on %s", listener.Addr())
	if err := srv.Serve(listener); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the dashboard server.
func (d *Dashboard) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	srv := d.server
	d.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
	return nil
}

// Address returns the address the dashboard is listening on.
func (d *Dashboard) Address() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.listener != nil {
		return d.listener.Addr().String()
	}
	return d.config.Addr
}

func (d *Dashboard) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := map[string]interface{}{
		"Status": d.status(),
	}
	if platform, err := d.platform(); err == nil {
		data["Platform"] = platform
	} else {
		data["PlatformErr"] = err.Error()
	}
	if d.history != nil {
		recent, err := d.history.ListMatches(history.Query{Limit: 10})
		if err == nil {
			data["Recent"] = recent
		}
	}
	d.renderPage(w, "home", data)
}

func (d *Dashboard) handleLobby(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{}
	matches, err := d.lobby(d.config.LobbySize)
	if err != nil {
		data["Error"] = err.Error()
	}
	data["Matches"] = matches
	d.renderPage(w, "lobby", data)
}

// handleMatches lists settled matches from the history index, optionally
// filtered by ?player= and ?status=.
func (d *Dashboard) handleMatches(w http.ResponseWriter, r *http.Request) {
	player := r.URL.Query().Get("player")
	status := r.URL.Query().Get("status")
	data := map[string]interface{}{
		"Player":   player,
		"Status":   status,
		"Statuses": matchStatuses,
		"Enabled":  d.history != nil,
	}
	if d.history == nil {
		d.renderPage(w, "matches", data)
		return
	}

	q := history.Query{Status: status, Limit: 50}
	if player != "" {
		pk, err := types.PubkeyFromBase58(player)
		if err != nil {
			data["Error"] = fmt.Sprintf("Invalid player address: %v", err)
			d.renderPage(w, "matches", data)
			return
		}
		q.Player = &pk
		if stats, err := d.history.GetPlayerStats(pk); err == nil {
			data["Stats"] = stats
		}
	}
	matches, err := d.history.ListMatches(q)
	if err != nil {
		data["Error"] = err.Error()
	}
	data["Matches"] = matches
	d.renderPage(w, "matches", data)
}

func (d *Dashboard) handleMatchDetail(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimPrefix(r.URL.Path, "/matches/")
	if ref == "" {
		http.Redirect(w, r, "/lobby", http.StatusFound)
		return
	}

	data := map[string]interface{}{"Ref": ref}
	view, err := d.match(ref)
	if err != nil {
		data["Error"] = err.Error()
	} else {
		data["Match"] = view
	}
	if d.history != nil && view != nil {
		if address, err := types.PubkeyFromBase58(view.Address); err == nil {
			if row, err := d.history.GetMatch(address); err == nil {
				data["History"] = row
			}
		}
	}
	d.renderPage(w, "match", data)
}

func (d *Dashboard) handleAccounts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	data := map[string]interface{}{"Query": query}

	if query != "" {
		resp, err := d.account(query)
		if err != nil {
			data["SearchErr"] = err.Error()
		} else {
			data["Account"] = resp
		}
	}
	d.renderPage(w, "accounts", data)
}

func (d *Dashboard) handleTransaction(w http.ResponseWriter, r *http.Request) {
	sigStr := strings.TrimPrefix(r.URL.Path, "/transactions/")
	if sigStr == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	resp, err := d.transaction(sigStr)
	if err != nil {
		d.renderPage(w, "transaction", map[string]interface{}{
			"Error":     err.Error(),
			"Signature": sigStr,
		})
		return
	}
	d.renderPage(w, "transaction", map[string]interface{}{
		"Transaction": resp,
		"Signature":   sigStr,
	})
}

func (d *Dashboard) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/static/")

	content, contentType, ok := getStaticAsset(name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write([]byte(content))
}

// renderPage renders a page template inside the layout.
func (d *Dashboard) renderPage(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	var content strings.Builder
	if err := d.templates.ExecuteTemplate(&content, name, data); err != nil {
		http.Error(w, fmt.Sprintf("Template error: %v", err), http.StatusInternalServerError)
		return
	}

	page := map[string]interface{}{
		"PageName": name,
		"Content":  template.HTML(content.String()),
	}
	if err := d.templates.ExecuteTemplate(w, "layout", page); err != nil {
		http.Error(w, fmt.Sprintf("Template error: %v", err), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Template helper functions

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

func formatNumber(n interface{}) string {
	switch v := n.(type) {
	case int:
		return formatInt(int64(v))
	case int64:
		return formatInt(v)
	case uint64:
		return formatInt(int64(v))
	case float64:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprintf("%v", n)
	}
}

func formatInt(n int64) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 1000000:
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	case n < 1000000000:
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	return fmt.Sprintf("%.1fB", float64(n)/1000000000)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatTime renders a unix timestamp; zero means "not yet".
func formatTime(t int64) string {
	if t == 0 {
		return "-"
	}
	return time.Unix(t, 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

func truncateHash(s string, n int) string {
	if len(s) <= n*2+3 {
		return s
	}
	return s[:n] + "..." + s[len(s)-n:]
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

package rpcfetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fortiblox/X1-Duel/pkg/rpc"
)

// Default configuration values.
const (
	// DefaultPollInterval is the default interval between match polls.
	DefaultPollInterval = time.Second

	// DefaultRequestTimeout is the default timeout for RPC requests.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultUpdateChannelSize is the default buffer size for the update channel.
	DefaultUpdateChannelSize = 16

	// DefaultMaxRetries is the default number of retries for failed requests.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the initial delay between retries.
	DefaultRetryDelay = 100 * time.Millisecond

	// DefaultMaxRetryDelay is the maximum delay between retries.
	DefaultMaxRetryDelay = 5 * time.Second
)

// Config holds configuration for the Watcher.
type Config struct {
	// PollInterval is the interval between getMatch polls.
	PollInterval time.Duration

	// RequestTimeout is the timeout for individual RPC requests.
	RequestTimeout time.Duration

	// UpdateChannelSize is the buffer size for the update channel.
	UpdateChannelSize int

	// MaxRetries is the number of retries for a failed poll.
	MaxRetries int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration

	// MaxRetryDelay is the maximum delay between retries.
	MaxRetryDelay time.Duration

	// StopOnTerminal stops the watcher once the match is Cancelled or Claimed.
	StopOnTerminal bool

	// OnUpdate is called for each observed change (optional).
	OnUpdate func(*rpc.MatchView)

	// OnError is called when a poll fails after all retries (optional).
	OnError func(error)
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:      DefaultPollInterval,
		RequestTimeout:    DefaultRequestTimeout,
		UpdateChannelSize: DefaultUpdateChannelSize,
		MaxRetries:        DefaultMaxRetries,
		RetryDelay:        DefaultRetryDelay,
		MaxRetryDelay:     DefaultMaxRetryDelay,
		StopOnTerminal:    true,
	}
}

// WithDefaults applies default values for any unset fields.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.PollInterval == 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.UpdateChannelSize == 0 {
		c.UpdateChannelSize = defaults.UpdateChannelSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = defaults.RetryDelay
	}
	if c.MaxRetryDelay == 0 {
		c.MaxRetryDelay = defaults.MaxRetryDelay
	}

	return c
}

// Watcher polls a single match and reports every change of its status or
// escrow balance.
type Watcher struct {
	config Config
	client *RPCClient
	ref    string

	// Output channel for updates
	updates chan *rpc.MatchView

	// State tracking
	running     atomic.Bool
	closed      atomic.Bool
	polls       atomic.Uint64
	lastUpdate  atomic.Int64
	lastError   error
	lastErrorMu sync.RWMutex

	// Context and synchronization
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for the match identified by ref (address or
// hex match id).
func NewWatcher(pool Pool, ref string, config Config) (*Watcher, error) {
	config = config.WithDefaults()

	if pool == nil {
		return nil, ErrNoEndpoints
	}
	if ref == "" {
		return nil, errors.New("match reference is required")
	}

	return &Watcher{
		config:  config,
		client:  NewRPCClient(pool, config.RequestTimeout),
		ref:     ref,
		updates: make(chan *rpc.MatchView, config.UpdateChannelSize),
	}, nil
}

// Start begins polling. The first successful poll is always reported.
func (w *Watcher) Start(ctx context.Context) error {
	if w.closed.Load() {
		return ErrClosed
	}
	if w.running.Swap(true) {
		return ErrAlreadyRunning
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.lastUpdate.Store(time.Now().UnixNano())

	w.wg.Add(1)
	go w.pollLoop()
	return nil
}

func (w *Watcher) pollLoop() {
	defer w.wg.Done()
	defer close(w.updates)
	defer w.running.Store(false)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	var last *rpc.MatchView
	for {
		view, err := w.fetchWithRetry(w.ctx)
		w.polls.Add(1)
		switch {
		case err != nil && w.ctx.Err() != nil:
			return
		case err != nil:
			w.setLastError(err)
			if w.config.OnError != nil {
				w.config.OnError(err)
			}
			if !IsRetryable(err) {
				return
			}
		case changed(last, view):
			last = view
			w.lastUpdate.Store(time.Now().UnixNano())
			if w.config.OnUpdate != nil {
				w.config.OnUpdate(view)
			}
			select {
			case w.updates <- view:
			case <-w.ctx.Done():
				return
			}
			if w.config.StopOnTerminal && (view.Status == "Cancelled" || view.Status == "Claimed") {
				return
			}
		}

		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func changed(prev, next *rpc.MatchView) bool {
	if prev == nil {
		return true
	}
	if prev.Status != next.Status {
		return true
	}
	if (prev.EscrowBalance == nil) != (next.EscrowBalance == nil) {
		return true
	}
	return prev.EscrowBalance != nil && *prev.EscrowBalance != *next.EscrowBalance
}

// fetchWithRetry polls the match with exponential backoff.
func (w *Watcher) fetchWithRetry(ctx context.Context) (*rpc.MatchView, error) {
	var lastErr error
	delay := w.config.RetryDelay

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		view, err := w.client.GetMatch(ctx, w.ref)
		if err == nil {
			return view, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err

		if attempt < w.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, w.config.MaxRetryDelay)
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}

// Updates returns the channel of observed match states. It is closed when
// the watcher stops.
func (w *Watcher) Updates() <-chan *rpc.MatchView {
	return w.updates
}

// Health reports the watcher's progress.
type Health struct {
	Running    bool
	Polls      uint64
	LastUpdate time.Time
	LastError  error
}

// Health returns the current health status.
func (w *Watcher) Health() Health {
	return Health{
		Running:    w.IsRunning(),
		Polls:      w.polls.Load(),
		LastUpdate: time.Unix(0, w.lastUpdate.Load()),
		LastError:  w.getLastError(),
	}
}

// Close stops the watcher and waits for the poll loop to exit.
func (w *Watcher) Close() error {
	if w.closed.Swap(true) {
		return ErrClosed
	}

	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return nil
}

// IsRunning returns whether the watcher is currently polling.
func (w *Watcher) IsRunning() bool {
	return w.running.Load() && !w.closed.Load()
}

func (w *Watcher) setLastError(err error) {
	w.lastErrorMu.Lock()
	w.lastError = err
	w.lastErrorMu.Unlock()
}

func (w *Watcher) getLastError() error {
	w.lastErrorMu.RLock()
	defer w.lastErrorMu.RUnlock()
	return w.lastError
}

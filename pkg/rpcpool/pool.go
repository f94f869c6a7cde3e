// Package rpcpool keeps a set of X1-Duel node endpoints under periodic
// getHealth/getSlot probes and hands out the healthy ones round-robin.
//
// An endpoint leaves rotation when it reports unhealthy, fails three checks
// or requests in a row, or trails the pool's most advanced endpoint by more
// than the slot threshold (a replica still restoring a snapshot).
//
//	pool := rpcpool.NewPool(50)
//	pool.AddEndpoints([]string{"http://node-a:8899", "http://node-b:8899"})
//	pool.Start(ctx)
//	defer pool.Stop()
//
//	client := rpcfetch.NewRPCClient(pool, 10*time.Second)
package rpcpool

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/fortiblox/X1-Duel/pkg/rpcfetch"
)

var (
	ErrNoHealthyEndpoints = errors.New("no healthy endpoints available")
	ErrPoolClosed         = errors.New("pool is closed")
)

const (
	DefaultSlotThreshold     = uint64(50)
	DefaultHealthCheckPeriod = 30 * time.Second
	DefaultRequestTimeout    = 10 * time.Second

	// failuresBeforeUnhealthy consecutive failures take an endpoint out.
	failuresBeforeUnhealthy = 3
)

type member struct {
	url    string
	client *rpcfetch.RPCClient

	healthy   atomic.Bool
	slot      atomic.Uint64
	checkedAt atomic.Int64
	latency   atomic.Int64
	failures  atomic.Int32
}

// Pool is a health-checked rpcfetch.Pool.
type Pool struct {
	threshold         uint64
	healthCheckPeriod time.Duration
	requestTimeout    time.Duration
	onHealthChange    func(url string, healthy bool, slot uint64)

	mu      sync.RWMutex
	members []*member
	cursor  atomic.Uint64
	topSlot atomic.Uint64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
}

var _ rpcfetch.Pool = (*Pool)(nil)

// NewPool creates an empty pool. An endpoint may trail the most advanced
// one by threshold slots; zero selects DefaultSlotThreshold.
func NewPool(threshold uint64) *Pool {
	if threshold == 0 {
		threshold = DefaultSlotThreshold
	}
	return &Pool{
		threshold:         threshold,
		healthCheckPeriod: DefaultHealthCheckPeriod,
		requestTimeout:    DefaultRequestTimeout,
	}
}

// SetHealthCheckPeriod sets the probe interval. Call before Start.
func (p *Pool) SetHealthCheckPeriod(period time.Duration) { p.healthCheckPeriod = period }

// SetRequestTimeout bounds each probe. Call before Start.
func (p *Pool) SetRequestTimeout(timeout time.Duration) { p.requestTimeout = timeout }

// SetOnHealthChange registers a callback for health transitions.
func (p *Pool) SetOnHealthChange(fn func(url string, healthy bool, slot uint64)) {
	p.onHealthChange = fn
}

// AddEndpoint adds url, initially healthy. Duplicates are ignored.
func (p *Pool) AddEndpoint(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lookup(url) != nil {
		return
	}
	m := &member{url: url, client: rpcfetch.Dial(url)}
	m.healthy.Store(true)
	p.members = append(p.members, m)
}

// AddEndpoints adds every url.
func (p *Pool) AddEndpoints(urls []string) {
	for _, url := range urls {
		p.AddEndpoint(url)
	}
}

// RemoveEndpoint drops url from the pool.
func (p *Pool) RemoveEndpoint(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members = slices.DeleteFunc(p.members, func(m *member) bool { return m.url == url })
}

// lookup requires p.mu.
func (p *Pool) lookup(url string) *member {
	for _, m := range p.members {
		if m.url == url {
			return m
		}
	}
	return nil
}

func (p *Pool) find(url string) *member {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lookup(url)
}

func (p *Pool) snapshot() []*member {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.members)
}

// GetHealthy returns the next healthy endpoint URL.
func (p *Pool) GetHealthy() (string, error) {
	m, err := p.pick()
	if err != nil {
		return "", err
	}
	return m.url, nil
}

func (p *Pool) pick() (*member, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	var up []*member
	for _, m := range p.snapshot() {
		if m.healthy.Load() {
			up = append(up, m)
		}
	}
	if len(up) == 0 {
		return nil, ErrNoHealthyEndpoints
	}
	return up[p.cursor.Add(1)%uint64(len(up))], nil
}

// GetEndpoint implements rpcfetch.Pool.
func (p *Pool) GetEndpoint(ctx context.Context) (*rpcfetch.Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := p.pick()
	if err != nil {
		return nil, err
	}
	return &rpcfetch.Endpoint{
		URL:      m.url,
		Healthy:  true,
		Failures: int(m.failures.Load()),
		Latency:  time.Duration(m.latency.Load()),
	}, nil
}

// MarkUnhealthy implements rpcfetch.Pool. A failed request counts as a
// failed check.
func (p *Pool) MarkUnhealthy(url string, err error) {
	if m := p.find(url); m != nil {
		p.fail(m, err)
	}
}

// MarkHealthy implements rpcfetch.Pool.
func (p *Pool) MarkHealthy(url string, latency time.Duration) {
	if m := p.find(url); m != nil {
		m.failures.Store(0)
		m.latency.Store(int64(latency))
	}
}

// GetHealthyCount implements rpcfetch.Pool.
func (p *Pool) GetHealthyCount() int { return p.HealthyCount() }

// Close implements rpcfetch.Pool.
func (p *Pool) Close() error {
	p.Stop()
	return nil
}

// HealthyCount returns the number of endpoints in rotation.
func (p *Pool) HealthyCount() int {
	n := 0
	for _, m := range p.snapshot() {
		if m.healthy.Load() {
			n++
		}
	}
	return n
}

// TotalCount returns the number of endpoints.
func (p *Pool) TotalCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.members)
}

// Start probes once, then every health check period until Stop or ctx ends.
func (p *Pool) Start(ctx context.Context) {
	if p.started.Swap(true) {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.checkAll()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.healthCheckPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.checkAll()
			}
		}
	}()
}

// Stop ends background checks. The pool hands out nothing afterwards.
func (p *Pool) Stop() {
	if p.closed.Swap(true) {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// CheckNow runs one probe pass synchronously.
func (p *Pool) CheckNow(ctx context.Context) {
	if p.ctx == nil {
		p.ctx = ctx
	}
	p.checkAll()
}

// checkAll probes every endpoint concurrently, then rates the responsive
// ones against the highest slot seen in this pass.
func (p *Pool) checkAll() {
	members := p.snapshot()
	ok := make([]bool, len(members))

	var wg sync.WaitGroup
	for i, m := range members {
		i, m := i, m
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok[i] = p.probe(m)
		}()
	}
	wg.Wait()

	var top uint64
	for i, m := range members {
		if ok[i] {
			top = max(top, m.slot.Load())
		}
	}
	p.topSlot.Store(top)

	for i, m := range members {
		if ok[i] {
			p.setHealthy(m, top-m.slot.Load() <= p.threshold)
		}
	}
}

func (p *Pool) probe(m *member) bool {
	ctx, cancel := context.WithTimeout(p.ctx, p.requestTimeout)
	defer cancel()

	start := time.Now()
	m.checkedAt.Store(start.UnixNano())

	if err := m.client.GetHealth(ctx); err != nil {
		p.fail(m, err)
		return false
	}
	slot, err := m.client.GetSlot(ctx)
	if err != nil {
		p.fail(m, err)
		return false
	}

	m.failures.Store(0)
	m.slot.Store(slot)
	m.latency.Store(int64(time.Since(start)))
	return true
}

func (p *Pool) fail(m *member, err error) {
	klog.V(2).Infof("[rpcpool] %s: %v", m.url, err)
	if m.failures.Add(1) >= failuresBeforeUnhealthy {
		p.setHealthy(m, false)
	}
}

func (p *Pool) setHealthy(m *member, healthy bool) {
	if m.healthy.Swap(healthy) == healthy {
		return
	}
	klog.Infof("[rpcpool] %s healthy=%v slot=%d", m.url, healthy, m.slot.Load())
	if p.onHealthChange != nil {
		p.onHealthChange(m.url, healthy, m.slot.Load())
	}
}

// EndpointInfo describes one endpoint's last observed state.
type EndpointInfo struct {
	URL       string
	Healthy   bool
	Slot      uint64
	Behind    uint64
	LastCheck time.Time
	Latency   time.Duration
	FailCount int
}

// EndpointStatus reports every endpoint.
func (p *Pool) EndpointStatus() []EndpointInfo {
	top := p.topSlot.Load()
	members := p.snapshot()
	infos := make([]EndpointInfo, 0, len(members))
	for _, m := range members {
		slot := m.slot.Load()
		infos = append(infos, EndpointInfo{
			URL:       m.url,
			Healthy:   m.healthy.Load(),
			Slot:      slot,
			Behind:    top - min(top, slot),
			LastCheck: time.Unix(0, m.checkedAt.Load()),
			Latency:   time.Duration(m.latency.Load()),
			FailCount: int(m.failures.Load()),
		})
	}
	return infos
}

package rpcfetch

import (
	"context"
	"sync"
	"time"
)

// Endpoint is a snapshot of one node URL and its last observed health.
type Endpoint struct {
	URL      string
	Healthy  bool
	Failures int
	Latency  time.Duration
}

// Pool picks the node endpoint for each request and learns from outcomes.
type Pool interface {
	// GetEndpoint returns the endpoint to use next, or ErrNoEndpoints.
	GetEndpoint(ctx context.Context) (*Endpoint, error)

	MarkUnhealthy(url string, err error)
	MarkHealthy(url string, latency time.Duration)
	GetHealthyCount() int

	Close() error
}

// SimplePool rotates through a fixed endpoint list. An endpoint is skipped
// once it has FailureThreshold consecutive failures, until a request to it
// succeeds again.
type SimplePool struct {
	FailureThreshold int

	mu    sync.Mutex
	urls  []string
	fails map[string]int
	lat   map[string]time.Duration
	next  int
}

// NewSimplePool creates a SimplePool over urls.
func NewSimplePool(urls []string) *SimplePool {
	return &SimplePool{
		FailureThreshold: 1,
		urls:             append([]string(nil), urls...),
		fails:            make(map[string]int, len(urls)),
		lat:              make(map[string]time.Duration, len(urls)),
	}
}

func (p *SimplePool) healthy(url string) bool {
	return p.fails[url] < max(p.FailureThreshold, 1)
}

// GetEndpoint returns the next healthy endpoint in rotation. With every
// endpoint down it still returns the next one so a recovery is noticed.
func (p *SimplePool) GetEndpoint(ctx context.Context) (*Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.urls)
	if n == 0 {
		return nil, ErrNoEndpoints
	}

	pick := p.next % n
	for i := 0; i < n; i++ {
		if j := (p.next + i) % n; p.healthy(p.urls[j]) {
			pick = j
			break
		}
	}
	p.next = pick + 1

	url := p.urls[pick]
	return &Endpoint{
		URL:      url,
		Healthy:  p.healthy(url),
		Failures: p.fails[url],
		Latency:  p.lat[url],
	}, nil
}

// MarkUnhealthy counts a failed request against url.
func (p *SimplePool) MarkUnhealthy(url string, _ error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.known(url) {
		p.fails[url]++
	}
}

// MarkHealthy clears url's failure count.
func (p *SimplePool) MarkHealthy(url string, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.known(url) {
		delete(p.fails, url)
		p.lat[url] = latency
	}
}

func (p *SimplePool) known(url string) bool {
	for _, u := range p.urls {
		if u == url {
			return true
		}
	}
	return false
}

// GetHealthyCount returns the number of healthy endpoints.
func (p *SimplePool) GetHealthyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, u := range p.urls {
		if p.healthy(u) {
			count++
		}
	}
	return count
}

// Close is a no-op.
func (p *SimplePool) Close() error { return nil }

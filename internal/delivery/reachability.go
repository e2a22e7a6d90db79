package delivery

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// Monitor probes an HTTP endpoint on an interval and reports
// connectivity plus a stream of transitions. It stands in for a
// platform network-status provider.
type Monitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client

	mu        sync.Mutex
	connected bool
	changes   chan bool

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor builds a monitor probing probeURL every interval.
func NewMonitor(probeURL string, interval time.Duration, client *http.Client) *Monitor {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	return &Monitor{
		probeURL: probeURL,
		interval: interval,
		client:   client,
		changes:  make(chan bool, 8),
		quit:     make(chan struct{}),
	}
}

// Connected reports the last observed connectivity state.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Changes streams connectivity transitions; true means a transition to
// reachable. Single consumer.
func (m *Monitor) Changes() <-chan bool { return m.changes }

// Start probes once immediately, then on the interval, until Stop or
// context cancellation.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.probe(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.quit:
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// Stop halts probing and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.quit) })
	m.wg.Wait()
}

func (m *Monitor) probe(ctx context.Context) {
	connected := false
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err == nil {
		if resp, err := m.client.Do(req); err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			connected = resp.StatusCode < 500
		}
	}

	m.mu.Lock()
	changed := connected != m.connected
	m.connected = connected
	m.mu.Unlock()

	if changed {
		select {
		case m.changes <- connected:
		default:
		}
	}
}

// StaticReachability is a fixed connectivity answer, for wiring tests
// and deployments without a probe endpoint.
type StaticReachability bool

func (s StaticReachability) Connected() bool { return bool(s) }

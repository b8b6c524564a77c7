package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tarafreight/syncqueue/pkg/core"
)

// CompositeStatus combines the host flag with backend reachability.
type CompositeStatus string

const (
	// StatusOnline means the host reports online and the backend answered.
	StatusOnline CompositeStatus = "online"
	// StatusLAN means the backend answered but the host reports offline,
	// e.g. a desktop shell talking to a local service without uplink.
	StatusLAN CompositeStatus = "lan"
	// StatusDegraded means the host reports online but the backend did not
	// answer, e.g. a captive portal.
	StatusDegraded CompositeStatus = "degraded"
	// StatusOffline means neither signal is good.
	StatusOffline CompositeStatus = "offline"
)

// DefaultProbeInterval matches the health ping cadence of the desktop shell.
const DefaultProbeInterval = 15 * time.Second

// Prober periodically pings a health endpoint and combines the result with a
// Monitor's flag into a composite status. The probe never feeds back into the
// monitor; the flag stays host-owned and advisory.
type Prober struct {
	monitor  *Monitor
	url      string
	client   *http.Client
	clock    core.Clock
	interval time.Duration
	logger   *slog.Logger

	mu          sync.RWMutex
	reachable   bool
	lastChecked time.Time
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProbeInterval sets the ping cadence.
func WithProbeInterval(d time.Duration) ProberOption {
	return func(p *Prober) { p.interval = d }
}

// WithProbeClient sets the HTTP client used for pings.
func WithProbeClient(c *http.Client) ProberOption {
	return func(p *Prober) { p.client = c }
}

// WithProbeClock sets the clock used for lastChecked stamps.
func WithProbeClock(c core.Clock) ProberOption {
	return func(p *Prober) { p.clock = c }
}

// WithProbeLogger sets the logger.
func WithProbeLogger(l *slog.Logger) ProberOption {
	return func(p *Prober) { p.logger = l }
}

// NewProber creates a prober against the given health URL.
func NewProber(monitor *Monitor, healthURL string, opts ...ProberOption) *Prober {
	p := &Prober{
		monitor:  monitor,
		url:      healthURL,
		client:   &http.Client{Timeout: 5 * time.Second},
		clock:    core.SystemClock{},
		interval: DefaultProbeInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start pings immediately and then on the configured interval until the
// context is cancelled.
func (p *Prober) Start(ctx context.Context) error {
	p.ping(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.ping(ctx)
		}
	}
}

func (p *Prober) ping(ctx context.Context) {
	reachable := false
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err == nil {
		resp, reqErr := p.client.Do(req)
		if reqErr == nil {
			reachable = resp.StatusCode >= 200 && resp.StatusCode < 300
			resp.Body.Close()
		} else {
			p.logger.Debug("health probe failed", "url", p.url, "error", reqErr)
		}
	}

	p.mu.Lock()
	p.reachable = reachable
	p.lastChecked = p.clock.Now()
	p.mu.Unlock()
}

// Reachable reports whether the last probe reached the backend.
func (p *Prober) Reachable() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reachable
}

// LastChecked returns the time of the last probe, zero before the first one.
func (p *Prober) LastChecked() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastChecked
}

// Status derives the composite status from the monitor flag and the last
// probe result.
func (p *Prober) Status() CompositeStatus {
	online := p.monitor.Online()
	reachable := p.Reachable()

	switch {
	case reachable && online:
		return StatusOnline
	case reachable && !online:
		return StatusLAN
	case !reachable && online:
		return StatusDegraded
	default:
		return StatusOffline
	}
}

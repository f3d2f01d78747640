package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"coinwatch/internal/provider"
)

// AssetSource provides the ids fetched on every cycle.
type AssetSource interface {
	IDs() []string
}

// Sink receives the prices of a successful cycle.
type Sink interface {
	Merge(results provider.Prices) int
}

// State is the lifecycle state of a Poller.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StateIdle
	case "running":
		*s = StateRunning
	case "stopped":
		*s = StateStopped
	default:
		return fmt.Errorf("unknown poller state %q", b)
	}
	return nil
}

// ErrClosed is returned by Start and Refresh after Close.
var ErrClosed = errors.New("poller closed")

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Time between cycles (default: 5s)
	Timeout  time.Duration // Per-fetch bound, 0 for none (default: 10s)
}

// Stats is a point-in-time view of the poller's bookkeeping.
type Stats struct {
	State               State         `json:"state"`
	Interval            time.Duration `json:"interval_ns"`
	InFlight            bool          `json:"in_flight"`
	Cycles              uint64        `json:"cycles"`
	Skipped             uint64        `json:"skipped"`
	Failures            uint64        `json:"failures"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	LastSuccess         time.Time     `json:"last_success,omitzero"`
	LastFailure         time.Time     `json:"last_failure,omitzero"`
	LastError           string        `json:"last_error,omitempty"`
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock sets the clock driving the interval.
func WithClock(c clockwork.Clock) Option { return func(p *Poller) { p.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(p *Poller) { p.logger = l } }

// WithErrorHook registers fn to be called with every failed fetch.
// fn runs on the fetch goroutine and must not block for long.
func WithErrorHook(fn func(error)) Option { return func(p *Poller) { p.onError = fn } }

const cycleKey = "cycle"

// Poller drives a provider on a fixed interval and merges results into a sink.
type Poller struct {
	cfg      Config
	provider provider.Provider
	assets   AssetSource
	sink     Sink
	clock    clockwork.Clock
	logger   *slog.Logger
	onError  func(error)

	mu     sync.Mutex
	state  State
	closed bool
	cancel context.CancelFunc
	loop   sync.WaitGroup // run goroutine
	fetch  sync.WaitGroup // fetch goroutines

	// inFlight is set for the whole of a cycle, fetch and merge included.
	inFlight atomic.Bool
	sf       singleflight.Group

	statsMu sync.Mutex
	stats   Stats
}

// New creates a Poller in the idle state.
func New(cfg Config, p provider.Provider, assets AssetSource, sink Sink, opts ...Option) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.Interval)
	}
	if p == nil || assets == nil || sink == nil {
		return nil, errors.New("poll: provider, assets and sink are required")
	}
	pl := &Poller{
		cfg:      cfg,
		provider: p,
		assets:   assets,
		sink:     sink,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(pl)
	}
	if pl.logger == nil {
		pl.logger = slog.Default()
	}
	pl.logger = pl.logger.With("component", "poller", "provider", p.Name())
	return pl, nil
}

// Start moves an idle or stopped poller to running and fires cycle 0 at once.
// Starting a running poller does nothing.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.state == StateRunning {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticker := p.clock.NewTicker(p.cfg.Interval)
	p.cancel = cancel
	p.state = StateRunning

	p.loop.Add(1)
	go p.run(ctx, ticker)

	p.logger.Info("price poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop cancels future cycles. A fetch already in flight still completes and
// its prices are still merged.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.cancel = nil
	p.state = StateStopped
	p.mu.Unlock()

	p.loop.Wait()
	p.logger.Info("price poller stopped")
}

// Close stops the poller and waits for an in-flight fetch, bounded by ctx.
func (p *Poller) Close(ctx context.Context) error {
	p.Stop()

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.fetch.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh runs one cycle now, in any state. If a cycle is already in flight
// the call waits for that one instead of issuing a second request.
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.fetch.Add(1)
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		defer p.fetch.Done()
		_, err, _ := p.sf.Do(cycleKey, p.cycle)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) Stats() Stats {
	p.statsMu.Lock()
	s := p.stats
	p.statsMu.Unlock()

	s.State = p.State()
	s.Interval = p.cfg.Interval
	s.InFlight = p.inFlight.Load()
	return s
}

// run is the main polling loop.
func (p *Poller) run(ctx context.Context, ticker clockwork.Ticker) {
	defer p.loop.Done()
	defer ticker.Stop()

	// Poll immediately on start.
	p.trigger()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			p.trigger()
		}
	}
}

// trigger starts a cycle unless one is already in flight.
func (p *Poller) trigger() {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.statsMu.Lock()
		p.stats.Skipped++
		p.statsMu.Unlock()
		p.logger.Debug("poll cycle skipped, previous fetch still in flight")
		return
	}

	p.fetch.Add(1)
	go func() {
		defer p.fetch.Done()
		// The call may join a cycle that is already finishing and has
		// cleared the flag, so clear it again once the call returns.
		defer p.inFlight.Store(false)
		_, _, _ = p.sf.Do(cycleKey, p.cycle)
	}()
}

// cycle fetches every asset and merges the result. It is only ever run
// through the singleflight group, so two cycles never overlap.
func (p *Poller) cycle() (any, error) {
	p.inFlight.Store(true)
	defer p.inFlight.Store(false)

	// Not derived from the loop context: Stop must not cancel a running fetch.
	ctx := context.Background()
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	ids := p.assets.IDs()
	p.statsMu.Lock()
	p.stats.Cycles++
	n := p.stats.Cycles
	p.statsMu.Unlock()

	start := p.clock.Now()
	prices, err := p.provider.Fetch(ctx, ids)
	if err != nil {
		p.recordFailure(err)
		p.logger.Warn("price fetch failed",
			"cycle", n,
			"kind", provider.KindOf(err).String(),
			"err", err,
		)
		if p.onError != nil {
			p.onError(err)
		}
		return nil, err
	}

	merged := p.sink.Merge(prices)
	p.recordSuccess()

	p.logger.Debug("poll cycle complete",
		"cycle", n,
		"requested", len(ids),
		"received", len(prices),
		"merged", merged,
		"duration", p.clock.Since(start),
	)
	return merged, nil
}

func (p *Poller) recordFailure(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.Failures++
	p.stats.ConsecutiveFailures++
	p.stats.LastFailure = p.clock.Now().UTC()
	p.stats.LastError = err.Error()
}

func (p *Poller) recordSuccess() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.ConsecutiveFailures = 0
	p.stats.LastSuccess = p.clock.Now().UTC()
}

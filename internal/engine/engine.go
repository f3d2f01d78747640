// Package engine owns one instance of every price-board component and their
// lifecycle: construction wires them, Start/Stop drive the poller, and Close
// tears everything down. Renderers read through the accessors and learn about
// changes via Subscribe.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"coinwatch/internal/aggregate"
	"coinwatch/internal/asset"
	"coinwatch/internal/config"
	"coinwatch/internal/conversion"
	"coinwatch/internal/httpx"
	"coinwatch/internal/notify"
	"coinwatch/internal/poll"
	"coinwatch/internal/pricecache"
	"coinwatch/internal/provider"
	"coinwatch/internal/provider/coingecko"
	"coinwatch/internal/provider/coingeckoadapter"
	"coinwatch/internal/provider/ratelimit"
	"coinwatch/internal/viewstate"
)

type options struct {
	provider   provider.Provider
	httpClient coingecko.HTTPClient
	clock      clockwork.Clock
	logger     *slog.Logger
	onError    func(error)
}

type Option func(*options)

// WithProvider replaces the CoinGecko provider built from config.
func WithProvider(p provider.Provider) Option { return func(o *options) { o.provider = p } }

// WithHTTPClient sets the transport used by the CoinGecko client.
func WithHTTPClient(c coingecko.HTTPClient) Option { return func(o *options) { o.httpClient = c } }

func WithClock(c clockwork.Clock) Option { return func(o *options) { o.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithErrorHook is called with every failed fetch, after it was logged.
func WithErrorHook(fn func(error)) Option { return func(o *options) { o.onError = fn } }

type Engine struct {
	registry     *asset.Registry
	hub          *notify.Hub
	cache        *pricecache.Cache
	poller       *poll.Poller
	converter    conversion.Converter
	view         *viewstate.Store
	baseCurrency string
	logger       *slog.Logger
}

func New(cfg config.Config, opts ...Option) (*Engine, error) {
	o := options{clock: clockwork.NewRealClock(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	registry, err := asset.New(cfg.Assets)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	converter, err := conversion.New(decimal.NewFromFloat(cfg.Conversion.Rate), cfg.Conversion.Currency)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	hub := notify.NewHub()
	cache := pricecache.New(pricecache.WithClock(o.clock), pricecache.WithHub(hub))

	p := o.provider
	if p == nil {
		p, err = newCoinGecko(cfg, o.httpClient)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}
	if d := cfg.Poll.MinRequestInterval(); d > 0 {
		p = &ratelimit.MinInterval{P: p, Interval: d, Clock: o.clock}
	}

	poller, err := poll.New(
		poll.Config{Interval: cfg.Poll.Interval(), Timeout: cfg.Poll.Timeout()},
		p, registry, cache,
		poll.WithClock(o.clock),
		poll.WithLogger(o.logger),
		poll.WithErrorHook(o.onError),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	return &Engine{
		registry:     registry,
		hub:          hub,
		cache:        cache,
		poller:       poller,
		converter:    converter,
		view:         viewstate.New(hub, o.logger),
		baseCurrency: cfg.API.VsCurrency,
		logger:       o.logger,
	}, nil
}

func newCoinGecko(cfg config.Config, hc coingecko.HTTPClient) (provider.Provider, error) {
	if hc == nil {
		c := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
		maps.Copy(c.Headers, cfg.API.Headers)
		hc = c
	}
	client, err := coingecko.NewCoinGeckoAPIClient(
		cfg.API.APIKey,
		coingecko.WithBaseURL(cfg.API.BaseURL),
		coingecko.WithHTTPClient(hc),
	)
	if err != nil {
		return nil, fmt.Errorf("coingecko client: %w", err)
	}
	return coingeckoadapter.New(coingeckoadapter.Config{VsCurrency: cfg.API.VsCurrency}, client), nil
}

// Start begins polling: one fetch now, then one per interval.
func (e *Engine) Start() error { return e.poller.Start() }

// Stop cancels future polls; an in-flight fetch still lands in the cache.
func (e *Engine) Stop() { e.poller.Stop() }

// Close stops polling and waits for an in-flight fetch, bounded by ctx.
func (e *Engine) Close(ctx context.Context) error {
	err := e.poller.Close(ctx)
	e.logger.Info("engine closed", "prices", e.cache.Len())
	return err
}

// Refresh runs a poll cycle now and returns its error, if any.
func (e *Engine) Refresh(ctx context.Context) error { return e.poller.Refresh(ctx) }

func (e *Engine) Stats() poll.Stats { return e.poller.Stats() }

// Board is the renderer's view of prices, in registry order.
func (e *Engine) Board() aggregate.Board {
	return aggregate.Build(e.registry.List(), e.cache.Snapshot(), e.converter, e.baseCurrency)
}

func (e *Engine) Snapshot() map[string]pricecache.Entry { return e.cache.Snapshot() }

func (e *Engine) Price(id string) (pricecache.Entry, bool) { return e.cache.Get(id) }

// ResetPrices forgets every cached price.
func (e *Engine) ResetPrices() { e.cache.Reset() }

func (e *Engine) Assets() []asset.Asset { return e.registry.List() }

func (e *Engine) Converter() conversion.Converter { return e.converter }

func (e *Engine) View() viewstate.State { return e.view.State() }

func (e *Engine) NavigateTo(page string) error { return e.view.NavigateTo(page) }

func (e *Engine) ToggleTheme() viewstate.State { return e.view.ToggleTheme() }

// Subscribe registers fn for price and view change events.
func (e *Engine) Subscribe(fn func(notify.Event)) (cancel func()) { return e.hub.Subscribe(fn) }

package pricecache

import (
    "sync"
    "time"

    "github.com/jonboulle/clockwork"
    "github.com/shopspring/decimal"

    "coinwatch/internal/notify"
    "coinwatch/internal/provider"
)

// Entry is the last successfully fetched price of one asset.
// Entries are replaced whole, never edited in place.
type Entry struct {
    AssetID   string          `json:"asset_id"`
    Value     decimal.Decimal `json:"value"`
    UpdatedAt time.Time       `json:"updated_at"`
}

// Cache holds the latest known price per asset.
// An asset is absent until its first successful fetch; after that it is only
// ever replaced, except by Reset. Failed fetches never reach the cache, so
// stale prices survive outages.
type Cache struct {
    clock clockwork.Clock
    hub   *notify.Hub

    mu    sync.RWMutex
    items map[string]Entry // key: asset id
}

type Option func(*Cache)

// WithClock sets the clock used to stamp merged entries.
func WithClock(c clockwork.Clock) Option { return func(pc *Cache) { pc.clock = c } }

// WithHub publishes a TopicPrices event after every merge that wrote something.
func WithHub(h *notify.Hub) Option { return func(pc *Cache) { pc.hub = h } }

func New(opts ...Option) *Cache {
    c := &Cache{clock: clockwork.NewRealClock(), items: make(map[string]Entry)}
    for _, opt := range opts { opt(c) }
    return c
}

// Merge writes every price in results and leaves other assets untouched.
// The whole merge is applied under one lock, so readers observe either none
// or all of it. It returns the number of entries written.
func (c *Cache) Merge(results provider.Prices) int {
    if len(results) == 0 {
        return 0
    }
    now := c.clock.Now().UTC()
    updated := make([]string, 0, len(results))

    c.mu.Lock()
    for id, v := range results {
        if id == "" || v.IsNegative() { continue }
        c.items[id] = Entry{AssetID: id, Value: v, UpdatedAt: now}
        updated = append(updated, id)
    }
    c.mu.Unlock()

    if len(updated) > 0 && c.hub != nil {
        c.hub.Publish(notify.TopicPrices, updated)
    }
    return len(updated)
}

// Get returns the cached entry for id, if any.
func (c *Cache) Get(id string) (Entry, bool) {
    c.mu.RLock()
    e, ok := c.items[id]
    c.mu.RUnlock()
    return e, ok
}

// Snapshot returns a point-in-time copy of every entry.
func (c *Cache) Snapshot() map[string]Entry {
    c.mu.RLock()
    defer c.mu.RUnlock()
    out := make(map[string]Entry, len(c.items))
    for k, v := range c.items { out[k] = v }
    return out
}

func (c *Cache) Len() int {
    c.mu.RLock()
    defer c.mu.RUnlock()
    return len(c.items)
}

// Reset drops every entry. It is the only way an asset becomes absent again.
func (c *Cache) Reset() {
    c.mu.Lock()
    n := len(c.items)
    c.items = make(map[string]Entry)
    c.mu.Unlock()

    if n > 0 && c.hub != nil {
        c.hub.Publish(notify.TopicPrices, []string{})
    }
}

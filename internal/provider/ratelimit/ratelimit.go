package ratelimit

import (
    "context"
    "sync"
    "time"

    "github.com/jonboulle/clockwork"

    "coinwatch/internal/provider"
)

// MinInterval wraps a provider and enforces a minimum time between calls.
// A call that comes too early waits out the remainder, or returns early if
// the context is canceled.
type MinInterval struct {
    P        provider.Provider
    Interval time.Duration
    Clock    clockwork.Clock // defaults to the real clock

    mu   sync.Mutex
    last time.Time
}

func (m *MinInterval) Name() string { return m.P.Name() }

func (m *MinInterval) clock() clockwork.Clock {
    if m.Clock == nil { return clockwork.NewRealClock() }
    return m.Clock
}

func (m *MinInterval) Fetch(ctx context.Context, ids []string) (provider.Prices, error) {
    clk := m.clock()
    if m.Interval > 0 {
        m.mu.Lock()
        wait := time.Duration(0)
        if !m.last.IsZero() { wait = m.last.Add(m.Interval).Sub(clk.Now()) }
        m.mu.Unlock()
        if wait > 0 {
            t := clk.NewTimer(wait)
            defer t.Stop()
            select {
            case <-ctx.Done():
                return nil, provider.Transport(m.P.Name(), ctx.Err())
            case <-t.Chan():
            }
        }
    }
    prices, err := m.P.Fetch(ctx, ids)
    if m.Interval > 0 {
        m.mu.Lock()
        m.last = clk.Now()
        m.mu.Unlock()
    }
    return prices, err
}

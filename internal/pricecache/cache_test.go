package pricecache

import (
    "sync"
    "testing"
    "time"

    "github.com/jonboulle/clockwork"
    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/require"

    "coinwatch/internal/notify"
    "coinwatch/internal/provider"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestMerge_ReplacesAndStamps(t *testing.T) {
    t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
    clk := clockwork.NewFakeClockAt(t1)
    c := New(WithClock(clk))

    n := c.Merge(provider.Prices{"bitcoin": d(100)})
    require.Equal(t, 1, n)

    clk.Advance(5 * time.Second)
    c.Merge(provider.Prices{"bitcoin": d(90)})

    e, ok := c.Get("bitcoin")
    require.True(t, ok)
    require.True(t, d(90).Equal(e.Value), "newest merge wins even when lower")
    require.Equal(t, t1.Add(5*time.Second), e.UpdatedAt)
}

func TestMerge_LeavesOmittedAssetsUntouched(t *testing.T) {
    clk := clockwork.NewFakeClock()
    c := New(WithClock(clk))
    c.Merge(provider.Prices{"bitcoin": d(100), "ethereum": d(20)})
    before, _ := c.Get("ethereum")

    clk.Advance(time.Minute)
    c.Merge(provider.Prices{"bitcoin": d(110)})

    after, ok := c.Get("ethereum")
    require.True(t, ok)
    require.Equal(t, before, after)
}

func TestMerge_EmptyIsNoop(t *testing.T) {
    hub := notify.NewHub()
    var events int
    hub.Subscribe(func(notify.Event) { events++ })
    c := New(WithHub(hub))

    require.Zero(t, c.Merge(nil))
    require.Zero(t, c.Merge(provider.Prices{}))
    require.Zero(t, c.Len())
    require.Zero(t, events)
}

func TestMerge_PublishesUpdatedIDs(t *testing.T) {
    hub := notify.NewHub()
    var got []notify.Event
    hub.Subscribe(func(ev notify.Event) { got = append(got, ev) })
    c := New(WithHub(hub))

    c.Merge(provider.Prices{"bitcoin": d(1), "ethereum": d(2)})

    require.Len(t, got, 1)
    require.Equal(t, notify.TopicPrices, got[0].Topic)
    require.ElementsMatch(t, []string{"bitcoin", "ethereum"}, got[0].Data)
}

func TestSnapshot_IsACopy(t *testing.T) {
    c := New()
    c.Merge(provider.Prices{"bitcoin": d(100)})

    snap := c.Snapshot()
    c.Merge(provider.Prices{"bitcoin": d(200), "ethereum": d(3)})

    require.Len(t, snap, 1)
    require.True(t, d(100).Equal(snap["bitcoin"].Value))
    require.Equal(t, 2, c.Len())
}

func TestReset_ClearsEverything(t *testing.T) {
    c := New()
    c.Merge(provider.Prices{"bitcoin": d(100)})
    c.Reset()

    _, ok := c.Get("bitcoin")
    require.False(t, ok)
    require.Zero(t, c.Len())
}

// A reader never sees a snapshot where assets merged together disagree.
func TestSnapshot_NeverObservesPartialMerge(t *testing.T) {
    c := New()
    c.Merge(provider.Prices{"bitcoin": d(0), "ethereum": d(0)})

    var wg sync.WaitGroup
    stop := make(chan struct{})
    wg.Add(1)
    go func() {
        defer wg.Done()
        for i := int64(1); i <= 2000; i++ {
            c.Merge(provider.Prices{"bitcoin": d(i), "ethereum": d(i)})
        }
        close(stop)
    }()

    for {
        select {
        case <-stop:
            wg.Wait()
            return
        default:
        }
        snap := c.Snapshot()
        require.True(t, snap["bitcoin"].Value.Equal(snap["ethereum"].Value))
    }
}

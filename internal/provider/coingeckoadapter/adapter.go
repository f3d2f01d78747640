package coingeckoadapter

import (
    "context"
    "strings"

    "github.com/shopspring/decimal"

    "coinwatch/internal/provider"
)

// PriceClient is the slice of the CoinGecko client the adapter needs.
type PriceClient interface {
    SimplePrice(ctx context.Context, ids []string, vsCurrency string) (map[string]decimal.Decimal, error)
}

type Config struct {
    Name       string // display name, default: CoinGecko
    VsCurrency string // base currency code, default: usd
}

// Adapter turns a CoinGecko client into a provider.Provider.
// One Fetch is one upstream request; there are no retries.
type Adapter struct {
    cfg    Config
    client PriceClient
}

func New(cfg Config, client PriceClient) *Adapter {
    if cfg.Name == "" { cfg.Name = "CoinGecko" }
    if cfg.VsCurrency == "" { cfg.VsCurrency = "usd" }
    cfg.VsCurrency = strings.ToLower(cfg.VsCurrency)
    return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() string { return a.cfg.Name }

// Currency is the base currency the prices are quoted in.
func (a *Adapter) Currency() string { return a.cfg.VsCurrency }

func (a *Adapter) Fetch(ctx context.Context, ids []string) (provider.Prices, error) {
    // dedupe while keeping request order stable for the query string
    uniq := make([]string, 0, len(ids))
    seen := make(map[string]struct{}, len(ids))
    for _, id := range ids {
        if _, dup := seen[id]; dup || id == "" { continue }
        seen[id] = struct{}{}
        uniq = append(uniq, id)
    }
    if len(uniq) == 0 {
        return provider.Prices{}, nil
    }

    all, err := a.client.SimplePrice(ctx, uniq, a.cfg.VsCurrency)
    if err != nil {
        if ctx.Err() != nil {
            return nil, provider.Transport(a.cfg.Name, ctx.Err())
        }
        return nil, err
    }

    // only the requested ids; anything missing stays missing
    out := make(provider.Prices, len(uniq))
    for _, id := range uniq {
        if p, ok := all[id]; ok { out[id] = p }
    }
    return out, nil
}

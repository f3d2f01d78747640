package aggregate

import (
    "time"

    "github.com/shopspring/decimal"

    "coinwatch/internal/asset"
    "coinwatch/internal/conversion"
    "coinwatch/internal/pricecache"
)

// Row is one asset as a renderer shows it.
// Price fields are nil until the asset's first successful fetch.
type Row struct {
    AssetID     string           `json:"asset_id"`
    DisplayName string           `json:"display_name"`
    IconRef     string           `json:"icon"`
    Loaded      bool             `json:"loaded"`
    Price       *decimal.Decimal `json:"price,omitempty"`
    Converted   *decimal.Decimal `json:"converted,omitempty"`
    UpdatedAt   *time.Time       `json:"updated_at,omitempty"`
}

// Board is the whole price table in registry order.
type Board struct {
    BaseCurrency      string    `json:"base_currency"`
    SecondaryCurrency string    `json:"secondary_currency"`
    Rate              string    `json:"rate"`
    Rows              []Row     `json:"rows"`
    Loaded            int       `json:"loaded"`
    LastUpdatedAt     time.Time `json:"last_updated_at,omitzero"`
}

// Build joins the registry with a cache snapshot.
// Rows follow registry order; snapshot entries for unknown ids are ignored.
func Build(assets []asset.Asset, snap map[string]pricecache.Entry, conv conversion.Converter, baseCurrency string) Board {
    b := Board{
        BaseCurrency:      baseCurrency,
        SecondaryCurrency: conv.Currency(),
        Rate:              conv.Rate().String(),
        Rows:              make([]Row, 0, len(assets)),
    }
    for _, a := range assets {
        row := Row{AssetID: a.ID, DisplayName: a.DisplayName, IconRef: a.IconRef}
        if e, ok := snap[a.ID]; ok {
            price := e.Value
            ts := e.UpdatedAt
            row.Loaded = true
            row.Price = &price
            row.UpdatedAt = &ts
            // cached prices are never negative, so conversion cannot fail here
            if v, err := conv.ToSecondary(price); err == nil { row.Converted = &v }
            b.Loaded++
            if ts.After(b.LastUpdatedAt) { b.LastUpdatedAt = ts }
        }
        b.Rows = append(b.Rows, row)
    }
    return b
}

// Pending returns the ids still waiting for their first price, in order.
func (b Board) Pending() []string {
    var out []string
    for _, r := range b.Rows {
        if !r.Loaded { out = append(out, r.AssetID) }
    }
    return out
}

package aggregate

import (
    "encoding/json"
    "testing"
    "time"

    "github.com/shopspring/decimal"

    "coinwatch/internal/asset"
    "coinwatch/internal/conversion"
    "coinwatch/internal/pricecache"
)

func mustConverter(t *testing.T, rate int64) conversion.Converter {
    t.Helper()
    c, err := conversion.New(decimal.NewFromInt(rate), "IRT")
    if err != nil { t.Fatalf("converter: %v", err) }
    return c
}

func TestBuild_RegistryOrderAndLoading(t *testing.T) {
    t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
    t2 := t1.Add(time.Minute)
    assets := []asset.Asset{
        {ID: "bitcoin", DisplayName: "Bitcoin", IconRef: "/icons/bitcoin.png"},
        {ID: "ethereum", DisplayName: "Ethereum"},
        {ID: "tether", DisplayName: "Tether"},
    }
    snap := map[string]pricecache.Entry{
        "tether":  {AssetID: "tether", Value: decimal.NewFromInt(1), UpdatedAt: t1},
        "bitcoin": {AssetID: "bitcoin", Value: decimal.NewFromInt(2), UpdatedAt: t2},
        "unknown": {AssetID: "unknown", Value: decimal.NewFromInt(9), UpdatedAt: t2},
    }

    b := Build(assets, snap, mustConverter(t, 5), "usd")

    if len(b.Rows) != 3 { t.Fatalf("want 3 rows, got %d: %+v", len(b.Rows), b.Rows) }
    order := []string{b.Rows[0].AssetID, b.Rows[1].AssetID, b.Rows[2].AssetID}
    if order[0] != "bitcoin" || order[1] != "ethereum" || order[2] != "tether" {
        t.Fatalf("rows out of registry order: %v", order)
    }
    btc := b.Rows[0]
    if !btc.Loaded || !btc.Price.Equal(decimal.NewFromInt(2)) || !btc.Converted.Equal(decimal.NewFromInt(10)) || !btc.UpdatedAt.Equal(t2) {
        t.Fatalf("unexpected bitcoin row: %+v", btc)
    }
    eth := b.Rows[1]
    if eth.Loaded || eth.Price != nil || eth.Converted != nil || eth.UpdatedAt != nil {
        t.Fatalf("ethereum should be pending: %+v", eth)
    }
    if b.Loaded != 2 || !b.LastUpdatedAt.Equal(t2) {
        t.Fatalf("unexpected summary: loaded=%d last=%s", b.Loaded, b.LastUpdatedAt)
    }
    if p := b.Pending(); len(p) != 1 || p[0] != "ethereum" {
        t.Fatalf("pending: %v", p)
    }
    if b.SecondaryCurrency != "IRT" || b.BaseCurrency != "usd" || b.Rate != "5" {
        t.Fatalf("currencies: %+v", b)
    }
}

func TestBuild_JSONOmitsPendingPrices(t *testing.T) {
    assets := []asset.Asset{{ID: "bitcoin", DisplayName: "Bitcoin"}}
    b := Build(assets, nil, mustConverter(t, 84500), "usd")

    raw, err := json.Marshal(b.Rows[0])
    if err != nil { t.Fatalf("marshal: %v", err) }
    var m map[string]any
    if err := json.Unmarshal(raw, &m); err != nil { t.Fatalf("unmarshal: %v", err) }
    if _, ok := m["price"]; ok { t.Fatalf("pending row should omit price: %s", raw) }
    if m["loaded"] != false { t.Fatalf("loaded flag: %s", raw) }
}

func TestBuild_PricesEncodeAsStrings(t *testing.T) {
    assets := []asset.Asset{{ID: "bitcoin"}}
    snap := map[string]pricecache.Entry{"bitcoin": {AssetID: "bitcoin", Value: decimal.RequireFromString("50000"), UpdatedAt: time.Now()}}
    b := Build(assets, snap, mustConverter(t, 845000), "usd")

    raw, err := json.Marshal(b.Rows[0])
    if err != nil { t.Fatalf("marshal: %v", err) }
    var m map[string]any
    if err := json.Unmarshal(raw, &m); err != nil { t.Fatalf("unmarshal: %v", err) }
    if m["price"] != "50000" || m["converted"] != "42250000000" {
        t.Fatalf("unexpected encoding: %s", raw)
    }
}

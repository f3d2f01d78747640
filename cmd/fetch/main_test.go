package main

import (
    "bytes"
    "encoding/json"
    "io"
    "net/http"
    "net/http/httptest"
    "path/filepath"
    "testing"
    "time"

    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/require"

    "coinwatch/internal/aggregate"
)

func TestPrintBoard(t *testing.T) {
    price := decimal.NewFromInt(50000)
    conv := decimal.NewFromInt(4_225_000_000)
    at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

    var buf bytes.Buffer
    printBoard(&buf, aggregate.Board{
        BaseCurrency:      "usd",
        SecondaryCurrency: "IRT",
        Rows: []aggregate.Row{
            {AssetID: "bitcoin", DisplayName: "Bitcoin", Loaded: true, Price: &price, Converted: &conv, UpdatedAt: &at},
            {AssetID: "dogecoin", DisplayName: "Dogecoin"},
        },
        Loaded: 1,
    })

    out := buf.String()
    require.Contains(t, out, "PRICE (usd)")
    require.Contains(t, out, "4225000000")
    require.Contains(t, out, "2025-01-02T03:04:05Z")
    require.Contains(t, out, "no price for: [dogecoin]")
}

func coinGeckoStub(t *testing.T, status int, body string) string {
    t.Helper()
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
        w.WriteHeader(status)
        _, _ = io.WriteString(w, body)
    }))
    t.Cleanup(srv.Close)
    return srv.URL
}

func TestRun_PrintsJSONBoard(t *testing.T) {
    t.Setenv("COINGECKO_BASE_URL", coinGeckoStub(t, http.StatusOK, `{"bitcoin":{"usd":2}}`))
    t.Setenv("LOG_LEVEL", "error")
    cfgPath := filepath.Join(t.TempDir(), "absent.json")

    var out bytes.Buffer
    err := run([]string{"-config", cfgPath, "-ids", "bitcoin,tron", "-rate", "10", "-json"}, &out)
    require.NoError(t, err)

    var board aggregate.Board
    require.NoError(t, json.Unmarshal(out.Bytes(), &board))
    require.Equal(t, 1, board.Loaded)
    require.Equal(t, []string{"tron"}, board.Pending())
    require.True(t, decimal.NewFromInt(20).Equal(*board.Rows[0].Converted))
}

func TestRun_RefreshFailureIsReturned(t *testing.T) {
    t.Setenv("COINGECKO_BASE_URL", coinGeckoStub(t, http.StatusInternalServerError, `oops`))
    t.Setenv("LOG_LEVEL", "error")
    cfgPath := filepath.Join(t.TempDir(), "absent.json")

    var out bytes.Buffer
    err := run([]string{"-config", cfgPath, "-ids", "bitcoin"}, &out)
    require.ErrorContains(t, err, "refresh")
    require.Empty(t, out.String())
}

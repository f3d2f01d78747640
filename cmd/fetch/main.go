package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "io"
    "log/slog"
    "os"
    "strconv"
    "text/tabwriter"
    "time"

    "coinwatch/internal/aggregate"
    "coinwatch/internal/asset"
    "coinwatch/internal/config"
    "coinwatch/internal/engine"
)

func main() {
    if err := run(os.Args[1:], os.Stdout); err != nil {
        slog.Error("fetch failed", "err", err)
        os.Exit(1)
    }
}

// run does one refresh and prints the board. The engine is always closed
// before it returns, on error paths too.
func run(args []string, out io.Writer) error {
    fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
    idsCSV := fs.String("ids", os.Getenv("IDS"), "comma-separated CoinGecko ids (default: configured assets)")
    rate := fs.Float64("rate", 0, "conversion rate override")
    timeout := fs.Int("timeout", getenvInt("REQUEST_TIMEOUT_SEC", 15), "request timeout seconds")
    configPath := fs.String("config", os.Getenv("CONFIG_FILE"), "path to config.json or config.yaml (optional)")
    asJSON := fs.Bool("json", false, "print the board as JSON")
    if err := fs.Parse(args); err != nil {
        return err
    }

    cfg, err := config.Load(*configPath)
    if err != nil {
        return fmt.Errorf("config: %w", err)
    }
    if ids := config.SplitCSV(*idsCSV); len(ids) > 0 {
        assets := make([]asset.Asset, 0, len(ids))
        for _, id := range ids {
            assets = append(assets, asset.Asset{ID: id})
        }
        cfg.Assets = assets
    }
    if *rate > 0 { cfg.Conversion.Rate = *rate }
    if *timeout > 0 { cfg.Server.RequestTimeoutSec = *timeout }

    logger := cfg.Logging.Logger(os.Stderr)
    slog.SetDefault(logger)

    eng, err := engine.New(cfg, engine.WithLogger(logger))
    if err != nil {
        return fmt.Errorf("engine: %w", err)
    }

    ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.RequestTimeoutSec)*time.Second)
    defer cancel()
    defer func() {
        if err := eng.Close(ctx); err != nil {
            logger.Warn("engine close", "err", err)
        }
    }()

    if err := eng.Refresh(ctx); err != nil {
        return fmt.Errorf("refresh: %w", err)
    }

    board := eng.Board()
    if *asJSON {
        enc := json.NewEncoder(out)
        enc.SetIndent("", "  ")
        return enc.Encode(board)
    }
    printBoard(out, board)
    return nil
}

func printBoard(w io.Writer, b aggregate.Board) {
    tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
    fmt.Fprintf(tw, "ASSET\tPRICE (%s)\tPRICE (%s)\tUPDATED\n", b.BaseCurrency, b.SecondaryCurrency)
    for _, r := range b.Rows {
        if !r.Loaded {
            fmt.Fprintf(tw, "%s\t-\t-\t-\n", r.DisplayName)
            continue
        }
        converted := "-"
        if r.Converted != nil { converted = r.Converted.StringFixed(0) }
        fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
            r.DisplayName,
            r.Price.String(),
            converted,
            r.UpdatedAt.Format(time.RFC3339),
        )
    }
    _ = tw.Flush()
    if p := b.Pending(); len(p) > 0 {
        fmt.Fprintf(w, "\nno price for: %v\n", p)
    }
}

func getenvInt(key string, def int) int {
    if v := os.Getenv(key); v != "" {
        if x, err := strconv.Atoi(v); err == nil && x > 0 { return x }
    }
    return def
}

package main

import (
    "context"
    "errors"
    "flag"
    "log/slog"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "coinwatch/internal/config"
    "coinwatch/internal/engine"
)

func main() {
    var configPath string
    flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json or config.yaml (optional)")
    flag.Parse()

    // Config
    cfg, err := config.Load(configPath)
    if err != nil {
        slog.Error("config", "err", err)
        os.Exit(1)
    }
    logger := cfg.Logging.Logger(os.Stderr)
    slog.SetDefault(logger)

    if cfg.API.APIKey == "" {
        logger.Warn("COINGECKO_API_KEY not set; using the keyless public tier")
    }

    eng, err := engine.New(cfg, engine.WithLogger(logger))
    if err != nil {
        logger.Error("engine", "err", err)
        os.Exit(1)
    }
    if err := eng.Start(); err != nil {
        logger.Error("engine start", "err", err)
        os.Exit(1)
    }

    api := newAPI(eng, logger, cfg.Server.AllowedOrigin)
    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           api.Handler(),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        WriteTimeout:      20 * time.Second,
        IdleTimeout:       60 * time.Second,
    }

    go func() {
        logger.Info("server listening", "addr", srv.Addr, "assets", len(eng.Assets()), "interval", cfg.Poll.Interval())
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Error("server", "err", err)
            os.Exit(1)
        }
    }()

    // graceful shutdown
    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    api.streams.CloseAll()
    _ = srv.Shutdown(shutdownCtx)
    if err := eng.Close(shutdownCtx); err != nil {
        logger.Warn("engine close", "err", err)
    }
}

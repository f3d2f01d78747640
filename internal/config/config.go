package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "net/url"
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "time"

    "gopkg.in/yaml.v3"

    "coinwatch/internal/asset"
)

type Server struct {
    Port              string `json:"port" yaml:"port"`
    RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
    // AllowedOrigin is the CORS origin for the API and the stream; "*" allows any.
    AllowedOrigin string `json:"allowed_origin" yaml:"allowed_origin"`
}

type API struct {
    BaseURL    string `json:"base_url" yaml:"base_url"`
    APIKey     string `json:"api_key" yaml:"api_key"`
    VsCurrency string `json:"vs_currency" yaml:"vs_currency"`
    // Headers are sent with every upstream request unless already set.
    Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

type Poll struct {
    IntervalMS           int `json:"interval_ms" yaml:"interval_ms"`
    TimeoutMS            int `json:"timeout_ms" yaml:"timeout_ms"`
    MinRequestIntervalMS int `json:"min_request_interval_ms" yaml:"min_request_interval_ms"`
}

type Conversion struct {
    Rate     float64 `json:"rate" yaml:"rate"`
    Currency string  `json:"currency" yaml:"currency"`
}

type Logging struct {
    Level  string `json:"level" yaml:"level"`
    Format string `json:"format" yaml:"format"`
}

type Config struct {
    Server     Server        `json:"server" yaml:"server"`
    API        API           `json:"api" yaml:"api"`
    Poll       Poll          `json:"poll" yaml:"poll"`
    Conversion Conversion    `json:"conversion" yaml:"conversion"`
    Assets     []asset.Asset `json:"assets" yaml:"assets"`
    Logging    Logging       `json:"logging" yaml:"logging"`
}

func Default() Config {
    return Config{
        Server: Server{Port: "8080", RequestTimeoutSec: 10, AllowedOrigin: "*"},
        API: API{
            BaseURL:    "https://api.coingecko.com/api/v3",
            VsCurrency: "usd",
        },
        Poll: Poll{
            IntervalMS: 5000,
            TimeoutMS:  10000,
        },
        Conversion: Conversion{Rate: 84500, Currency: "IRT"},
        Assets:     asset.Defaults(),
        Logging:    Logging{Level: "info", Format: "text"},
    }
}

func (p Poll) Interval() time.Duration { return time.Duration(p.IntervalMS) * time.Millisecond }
func (p Poll) Timeout() time.Duration  { return time.Duration(p.TimeoutMS) * time.Millisecond }
func (p Poll) MinRequestInterval() time.Duration {
    return time.Duration(p.MinRequestIntervalMS) * time.Millisecond
}

// Load reads config from path. JSON unless the extension is .yaml or .yml.
// If path is empty, config.json and then config.yaml in the working directory
// are tried; a missing file yields defaults. Environment variables override
// select fields afterwards, and the result is validated.
func Load(path string) (Config, error) {
    cfg := Default()
    if path == "" {
        for _, candidate := range []string{"config.json", "config.yaml", "config.yml"} {
            if _, err := os.Stat(candidate); err == nil {
                path = candidate
                break
            }
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            if err := decode(path, b, &cfg); err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }
    applyEnv(&cfg)
    if err := cfg.Validate(); err != nil {
        return cfg, fmt.Errorf("invalid configuration: %w", err)
    }
    return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
    switch strings.ToLower(filepath.Ext(path)) {
    case ".yaml", ".yml":
        return yaml.Unmarshal(b, cfg)
    default:
        return json.Unmarshal(b, cfg)
    }
}

// Validate checks configuration validity.
func (c Config) Validate() error {
    if c.Poll.IntervalMS <= 0 {
        return fmt.Errorf("poll interval must be positive, got %dms", c.Poll.IntervalMS)
    }
    if c.Poll.TimeoutMS < 0 || c.Poll.MinRequestIntervalMS < 0 {
        return fmt.Errorf("poll timeouts must not be negative")
    }
    if c.Conversion.Rate <= 0 {
        return fmt.Errorf("conversion rate must be positive, got %v", c.Conversion.Rate)
    }
    if strings.TrimSpace(c.API.VsCurrency) == "" {
        return fmt.Errorf("vs_currency is required")
    }
    u, err := url.Parse(c.API.BaseURL)
    if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
        return fmt.Errorf("invalid API base URL: %q", c.API.BaseURL)
    }
    if _, err := asset.New(c.Assets); err != nil {
        return fmt.Errorf("assets: %w", err)
    }
    return nil
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("PORT"); v != "" { cfg.Server.Port = v }
    if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
        if x, err := strconv.Atoi(v); err == nil && x > 0 { cfg.Server.RequestTimeoutSec = x }
    }
    if v := os.Getenv("CORS_ALLOWED_ORIGIN"); v != "" { cfg.Server.AllowedOrigin = v }
    if v := os.Getenv("COINGECKO_BASE_URL"); v != "" { cfg.API.BaseURL = v }
    if v := os.Getenv("COINGECKO_API_KEY"); v != "" { cfg.API.APIKey = v }
    if v := os.Getenv("VS_CURRENCY"); v != "" { cfg.API.VsCurrency = v }
    if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
        if x, err := strconv.Atoi(v); err == nil && x > 0 { cfg.Poll.IntervalMS = x }
    }
    if v := os.Getenv("POLL_TIMEOUT_MS"); v != "" {
        if x, err := strconv.Atoi(v); err == nil && x >= 0 { cfg.Poll.TimeoutMS = x }
    }
    if v := os.Getenv("MIN_REQUEST_INTERVAL_MS"); v != "" {
        if x, err := strconv.Atoi(v); err == nil && x >= 0 { cfg.Poll.MinRequestIntervalMS = x }
    }
    if v := os.Getenv("CONVERSION_RATE"); v != "" {
        if x, err := strconv.ParseFloat(v, 64); err == nil && x > 0 { cfg.Conversion.Rate = x }
    }
    if v := os.Getenv("CONVERSION_CURRENCY"); v != "" { cfg.Conversion.Currency = v }
    if v := os.Getenv("LOG_LEVEL"); v != "" { cfg.Logging.Level = v }
    if v := os.Getenv("LOG_FORMAT"); v != "" { cfg.Logging.Format = v }
}

// SplitCSV splits a comma separated list, dropping blanks.
func SplitCSV(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" { out = append(out, p) }
    }
    return out
}

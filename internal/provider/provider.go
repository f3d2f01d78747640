package provider

import (
    "context"
    "errors"
    "fmt"
    "net"

    "github.com/shopspring/decimal"
)

// Prices maps asset id to its price in the base currency.
// Ids missing from the upstream response are absent, never zero.
type Prices map[string]decimal.Decimal

// Provider fetches prices for a batch of asset ids in one round trip.
//
//go:generate mockgen -destination=../poll/mock_provider_test.go -package=poll_test coinwatch/internal/provider Provider
type Provider interface {
    Name() string
    Fetch(ctx context.Context, ids []string) (Prices, error)
}

// ErrorKind classifies a failed fetch.
type ErrorKind int

const (
    KindNetwork ErrorKind = iota
    KindTimeout
    KindMalformedResponse
)

func (k ErrorKind) String() string {
    switch k {
    case KindNetwork:
        return "network"
    case KindTimeout:
        return "timeout"
    case KindMalformedResponse:
        return "malformed_response"
    default:
        return "unknown"
    }
}

// FetchError is returned by providers for every failed fetch.
// A fetch that returns a FetchError contributes no prices.
type FetchError struct {
    Provider   string
    Kind       ErrorKind
    StatusCode int // set for non-2xx responses
    Err        error
}

func (e *FetchError) Error() string {
    if e.StatusCode != 0 {
        return fmt.Sprintf("%s: %s: status %d: %v", e.Provider, e.Kind, e.StatusCode, e.Err)
    }
    return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsKind reports whether err carries a FetchError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
    var fe *FetchError
    return errors.As(err, &fe) && fe.Kind == kind
}

// KindOf returns the kind of the FetchError in err's chain.
// Errors that are not FetchErrors are treated as network failures.
func KindOf(err error) ErrorKind {
    var fe *FetchError
    if errors.As(err, &fe) {
        return fe.Kind
    }
    return KindNetwork
}

// Transport wraps a failure that happened before a response was read.
func Transport(name string, err error) *FetchError {
    if fe, ok := err.(*FetchError); ok {
        return fe
    }
    kind := KindNetwork
    var ne net.Error
    if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
        kind = KindTimeout
    }
    return &FetchError{Provider: name, Kind: kind, Err: err}
}

// Malformed wraps a response that could not be decoded into prices.
func Malformed(name string, err error) *FetchError {
    return &FetchError{Provider: name, Kind: KindMalformedResponse, Err: err}
}

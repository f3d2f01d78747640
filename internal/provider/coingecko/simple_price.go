package coingecko

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"coinwatch/internal/provider"
)

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 2 << 10

// SimplePrice retrieves the price of every id in vsCurrency with a single request.
//
// The response looks like:
//
//	{
//	  "bitcoin":  {"usd": 67187.33},
//	  "ethereum": {"usd": 3472.1}
//	}
//
// Ids the API does not know are left out of the response and therefore out of
// the returned map. Every error is a *provider.FetchError.
func (c *CoinGeckoAPIClient) SimplePrice(ctx context.Context, ids []string, vsCurrency string) (map[string]decimal.Decimal, error) {
	query := maps.Clone(c.query)
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", vsCurrency)

	url := fmt.Sprintf("%s/simple/price?%s", strings.TrimRight(c.baseURL, "/"), query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, provider.Transport(providerName, fmt.Errorf("creating request: %w", err))
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, provider.Transport(providerName, fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &provider.FetchError{
			Provider:   providerName,
			Kind:       provider.KindNetwork,
			StatusCode: res.StatusCode,
			Err:        statusError(res.StatusCode, b),
		}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, provider.Transport(providerName, fmt.Errorf("reading response: %w", err))
	}
	prices, err := decodeSimplePrice(body, strings.ToLower(vsCurrency))
	if err != nil {
		return nil, provider.Malformed(providerName, err)
	}
	return prices, nil
}

func statusError(code int, body []byte) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized")
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited")
	default:
		return fmt.Errorf("unexpected status code: %s", strings.TrimSpace(string(body)))
	}
}

func decodeSimplePrice(body []byte, vsCurrency string) (map[string]decimal.Decimal, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding price response: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decoding price response: not an object")
	}

	out := make(map[string]decimal.Decimal, len(raw))
	for id, msg := range raw {
		var quotes map[string]json.RawMessage
		if err := json.Unmarshal(msg, &quotes); err != nil || quotes == nil {
			return nil, fmt.Errorf("decoding %s: not an object", id)
		}
		v, ok := quotes[vsCurrency]
		if !ok {
			return nil, fmt.Errorf("decoding %s: missing %q price", id, vsCurrency)
		}
		price, err := parsePrice(v)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", id, err)
		}
		out[id] = price
	}
	return out, nil
}

func parsePrice(v json.RawMessage) (decimal.Decimal, error) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return decimal.Decimal{}, fmt.Errorf("price %s: %w", string(v), err)
	}
	if n == "" {
		return decimal.Decimal{}, fmt.Errorf("price is null")
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("price %s: %w", string(v), err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("negative price %s", d)
	}
	return d, nil
}

// Package feed is the client for the external market-data source. The
// feed is advisory: it is called with a bounded timeout and a failed
// call leaves the price cache stale rather than taking the system down.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

// Source returns current quotes for a batch of symbols.
type Source interface {
	Quotes(ctx context.Context, symbols []string) ([]model.Quote, error)
}

// Client fetches quotes over HTTP in one batch call per refresh,
// financialmodelingprep style: GET {base}/{SYM1,SYM2,...}?apikey=...
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a feed client. timeout bounds every call; on
// expiry the fetch fails as if the feed were unreachable.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type quotePayload struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// Quotes requests prices for symbols in one call. The response may
// cover only a subset of the requested symbols; quotes with a
// non-positive price are dropped.
func (c *Client) Quotes(ctx context.Context, symbols []string) ([]model.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	u := fmt.Sprintf("%s/%s?apikey=%s",
		c.baseURL, strings.Join(symbols, ","), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed responded %d", resp.StatusCode)
	}

	var payload []quotePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("feed decode: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("feed returned no quotes")
	}

	quotes := make([]model.Quote, 0, len(payload))
	for _, q := range payload {
		if q.Symbol == "" || !q.Price.IsPositive() {
			continue
		}
		quotes = append(quotes, model.Quote{Symbol: q.Symbol, Price: q.Price})
	}
	return quotes, nil
}

// Package marketdata provides clients for the upstream quote service:
// an HTTP JSON client for quotes and history, and a WebSocket stream
// that keeps a live last-quote cache.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/paperdesk/internal/domain"
)

const requestTimeout = 15 * time.Second

// Client is the HTTP market data client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new market data HTTP client
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log.With().Str("client", "marketdata").Logger(),
	}
}

var (
	_ domain.PriceOracle     = (*Client)(nil)
	_ domain.HistoryProvider = (*Client)(nil)
)

type quoteResponse struct {
	Ticker string       `json:"ticker"`
	Price  domain.Money `json:"price"`
}

// Quote fetches the current price for a ticker. An unknown ticker maps
// to ErrPriceUnavailable.
func (c *Client) Quote(ctx context.Context, ticker string) (domain.Money, error) {
	var resp quoteResponse
	err := c.getJSON(ctx, "/v1/quote", url.Values{"ticker": {ticker}}, &resp)
	if err != nil {
		return domain.Money{}, err
	}
	if !resp.Price.IsPositive() {
		return domain.Money{}, fmt.Errorf("%s: %w", ticker, domain.ErrPriceUnavailable)
	}
	return resp.Price, nil
}

type candleDTO struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type historyResponse struct {
	Ticker  string      `json:"ticker"`
	Period  string      `json:"period"`
	Candles []candleDTO `json:"candles"`
}

// History fetches candles for a ticker over a named period such as
// "1mo" or "1y". Candles are returned in ascending time order.
func (c *Client) History(ctx context.Context, ticker, period string) ([]domain.Candle, error) {
	var resp historyResponse
	err := c.getJSON(ctx, "/v1/history", url.Values{"ticker": {ticker}, "period": {period}}, &resp)
	if err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, len(resp.Candles))
	for i, dto := range resp.Candles {
		candles[i] = domain.Candle{
			Time:   time.Unix(dto.Time, 0),
			Open:   dto.Open,
			High:   dto.High,
			Low:    dto.Low,
			Close:  dto.Close,
			Volume: dto.Volume,
		}
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, domain.ErrPriceUnavailable)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

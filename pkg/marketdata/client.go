// Package marketdata fetches OHLCV candles from an exchange-style REST API.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.binance.com"
	defaultLimit   = 500
	maxLimit       = 1000
)

// Candle is a single OHLCV bar.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Snapshot is a fetched candle series for one symbol/timeframe pair.
type Snapshot struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Candles   []Candle  `json:"candles"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Key identifies the freshness scope of a snapshot.
func (s *Snapshot) Key() string {
	if s == nil {
		return ""
	}
	return CacheKey(s.Symbol, s.Timeframe)
}

// CacheKey builds the freshness key for a symbol/timeframe pair.
func CacheKey(symbol, timeframe string) string {
	return strings.ToUpper(strings.TrimSpace(symbol)) + ":" + strings.ToLower(strings.TrimSpace(timeframe))
}

// Client fetches candles over HTTP with a bounded timeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a market data client. Empty baseURL selects the default
// exchange endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Klines fetches up to limit candles for symbol at the given timeframe
// (exchange interval notation: "1m", "15m", "1h", "4h", "1d").
func (c *Client) Klines(ctx context.Context, symbol, timeframe string, limit int) (*Snapshot, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	if timeframe == "" {
		timeframe = "1h"
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", timeframe)
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read klines: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines request failed: HTTP %d: %s", resp.StatusCode, truncate(string(data), 256))
	}

	// Wire format is an array of arrays:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var rows [][]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		candle := Candle{
			OpenTime: parseMillis(row[0]),
			Open:     parseFloat(row[1]),
			High:     parseFloat(row[2]),
			Low:      parseFloat(row[3]),
			Close:    parseFloat(row[4]),
			Volume:   parseFloat(row[5]),
		}
		candles = append(candles, candle)
	}

	return &Snapshot{
		Symbol:    symbol,
		Timeframe: timeframe,
		Candles:   candles,
		FetchedAt: time.Now(),
	}, nil
}

func parseMillis(v any) time.Time {
	switch t := v.(type) {
	case float64:
		return time.UnixMilli(int64(t))
	case string:
		if ms, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return time.Time{}
}

func parseFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	}
	return 0
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/wonny/zion/internal/data"
	"github.com/wonny/zion/internal/resilience"
	"github.com/wonny/zion/pkg/config"
	"github.com/wonny/zion/pkg/httputil"
	"github.com/wonny/zion/pkg/logger"
)

// SourceName is the provider name used in breaker policies and kind source lists
const SourceName = "alpha_vantage"

// ErrThrottled is returned when the API answers 200 with a rate limit note
var ErrThrottled = errors.New("alpha vantage: request throttled")

// Client handles communication with the Alpha Vantage query API
// ⭐ SSOT: Alpha Vantage API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	apiKey     string
	baseURL    string
}

// NewClient creates a new Alpha Vantage client
func NewClient(httpClient *httputil.Client, cfg config.ProviderConfig, log *logger.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://www.alphavantage.co/query"
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.Component(SourceName),
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
	}
}

// Fetchers maps each supported data kind to its fetch function
func (c *Client) Fetchers() map[string]data.FetchFunc {
	return map[string]data.FetchFunc{
		"price": func(ctx context.Context, symbol string) (interface{}, error) {
			return c.Price(ctx, symbol)
		},
		"eps": func(ctx context.Context, symbol string) (interface{}, error) {
			return c.EPS(ctx, symbol)
		},
		"price_series": func(ctx context.Context, symbol string) (interface{}, error) {
			return c.DailyCloses(ctx, symbol)
		},
	}
}

type envelope struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// check turns the API's in-band error fields into errors
func (e envelope) check() error {
	if e.ErrorMessage != "" {
		return resilience.Permanent(fmt.Errorf("alpha vantage: %s", e.ErrorMessage))
	}
	if e.Note != "" || e.Information != "" {
		return ErrThrottled
	}
	return nil
}

type quoteResponse struct {
	envelope
	GlobalQuote map[string]string `json:"Global Quote"`
}

// Price returns the latest traded price
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	var resp quoteResponse
	if err := c.query(ctx, "GLOBAL_QUOTE", symbol, &resp); err != nil {
		return 0, err
	}
	if err := resp.check(); err != nil {
		return 0, err
	}

	raw, ok := resp.GlobalQuote["05. price"]
	if !ok {
		return 0, resilience.Permanent(fmt.Errorf("alpha vantage: no quote for %s", symbol))
	}
	return parseNumber("price", raw)
}

type overviewResponse struct {
	envelope
	Symbol string `json:"Symbol"`
	EPS    string `json:"EPS"`
}

// EPS returns trailing earnings per share from the company overview
func (c *Client) EPS(ctx context.Context, symbol string) (float64, error) {
	var resp overviewResponse
	if err := c.query(ctx, "OVERVIEW", symbol, &resp); err != nil {
		return 0, err
	}
	if err := resp.check(); err != nil {
		return 0, err
	}
	if resp.EPS == "" || resp.EPS == "None" {
		return 0, resilience.Permanent(fmt.Errorf("alpha vantage: no eps for %s", symbol))
	}
	return parseNumber("eps", resp.EPS)
}

type dailyResponse struct {
	envelope
	Series map[string]map[string]string `json:"Time Series (Daily)"`
}

// DailyCloses returns daily closing prices, oldest first
func (c *Client) DailyCloses(ctx context.Context, symbol string) ([]float64, error) {
	var resp dailyResponse
	if err := c.query(ctx, "TIME_SERIES_DAILY", symbol, &resp); err != nil {
		return nil, err
	}
	if err := resp.check(); err != nil {
		return nil, err
	}
	if len(resp.Series) == 0 {
		return nil, resilience.Permanent(fmt.Errorf("alpha vantage: empty series for %s", symbol))
	}

	// 날짜 문자열(YYYY-MM-DD)은 사전순 = 시간순
	dates := make([]string, 0, len(resp.Series))
	for d := range resp.Series {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	closes := make([]float64, 0, len(dates))
	for _, d := range dates {
		v, err := parseNumber("close", resp.Series[d]["4. close"])
		if err != nil {
			return nil, err
		}
		closes = append(closes, v)
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(closes),
	}).Debug("Fetched daily closes")
	return closes, nil
}

func (c *Client) query(ctx context.Context, function, symbol string, dest interface{}) error {
	params := url.Values{}
	params.Set("function", function)
	params.Set("symbol", symbol)
	params.Set("apikey", c.apiKey)

	body, err := c.httpClient.GetBytes(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return fmt.Errorf("alpha vantage %s: %w", function, err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return resilience.Permanent(fmt.Errorf("alpha vantage %s: decode: %w", function, err))
	}
	return nil
}

func parseNumber(field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, resilience.Permanent(fmt.Errorf("alpha vantage: invalid %s %q", field, raw))
	}
	return v, nil
}

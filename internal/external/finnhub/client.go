package finnhub

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/wonny/zion/internal/data"
	"github.com/wonny/zion/internal/resilience"
	"github.com/wonny/zion/pkg/config"
	"github.com/wonny/zion/pkg/httputil"
	"github.com/wonny/zion/pkg/logger"
)

// SourceName is the provider name used in breaker policies and kind source lists
const SourceName = "finnhub"

// seriesLookback is the window requested for daily candles
const seriesLookback = 90 * 24 * time.Hour

// Client handles communication with the Finnhub REST API
// ⭐ SSOT: Finnhub API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	apiKey     string
	baseURL    string
	now        func() time.Time
}

// NewClient creates a new Finnhub client
func NewClient(httpClient *httputil.Client, cfg config.ProviderConfig, log *logger.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://finnhub.io/api/v1"
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.Component(SourceName),
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		now:        time.Now,
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

// QuoteResponse is the /quote payload
type QuoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	PercentChange float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// Price returns the current price. Finnhub answers unknown symbols with zeros.
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	var quote QuoteResponse
	if err := c.get(ctx, "/quote", url.Values{"symbol": {symbol}}, &quote); err != nil {
		return 0, err
	}
	if quote.Current == 0 && quote.Timestamp == 0 {
		return 0, resilience.Permanent(fmt.Errorf("finnhub: no quote for %s", symbol))
	}
	return quote.Current, nil
}

type metricResponse struct {
	Metric map[string]interface{} `json:"metric"`
}

// EPS returns trailing twelve month earnings per share
func (c *Client) EPS(ctx context.Context, symbol string) (float64, error) {
	var resp metricResponse
	params := url.Values{"symbol": {symbol}, "metric": {"all"}}
	if err := c.get(ctx, "/stock/metric", params, &resp); err != nil {
		return 0, err
	}

	for _, key := range []string{"epsTTM", "epsBasicExclExtraItemsTTM"} {
		if v, ok := resp.Metric[key].(float64); ok {
			return v, nil
		}
	}
	return 0, resilience.Permanent(fmt.Errorf("finnhub: no eps for %s", symbol))
}

type candleResponse struct {
	Close  []float64 `json:"c"`
	Status string    `json:"s"`
}

// DailyCloses returns daily closing prices for the lookback window, oldest first
func (c *Client) DailyCloses(ctx context.Context, symbol string) ([]float64, error) {
	to := c.now()
	from := to.Add(-seriesLookback)

	params := url.Values{
		"symbol":     {symbol},
		"resolution": {"D"},
		"from":       {strconv.FormatInt(from.Unix(), 10)},
		"to":         {strconv.FormatInt(to.Unix(), 10)},
	}

	var resp candleResponse
	if err := c.get(ctx, "/stock/candle", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" || len(resp.Close) == 0 {
		return nil, resilience.Permanent(fmt.Errorf("finnhub: no candles for %s (status %q)", symbol, resp.Status))
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(resp.Close),
	}).Debug("Fetched daily candles")
	return resp.Close, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dest interface{}) error {
	params.Set("token", c.apiKey)
	if err := c.httpClient.GetJSON(ctx, c.baseURL+path+"?"+params.Encode(), dest); err != nil {
		return fmt.Errorf("finnhub %s: %w", path, err)
	}
	return nil
}

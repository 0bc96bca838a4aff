package alphavantage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/zion/internal/resilience"
	"github.com/wonny/zion/pkg/config"
	"github.com/wonny/zion/pkg/httputil"
	"github.com/wonny/zion/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	httpClient := httputil.New(&config.Config{HTTPTimeout: 5 * time.Second}, logger.Nop())
	return NewClient(httpClient, config.ProviderConfig{APIKey: "demo", BaseURL: server.URL}, logger.Nop())
}

func TestPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "demo", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(`{"Global Quote": {"01. symbol": "AAPL", "05. price": "189.8400"}}`))
	})

	price, err := client.Price(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 189.84, price)
}

func TestPrice_UnknownSymbolIsPermanent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Global Quote": {}}`))
	})

	_, err := client.Price(context.Background(), "NOPE")
	require.Error(t, err)
	assert.False(t, resilience.IsRetryable(err))
}

func TestThrottleNoteIsRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`))
	})

	_, err := client.EPS(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrThrottled))
	assert.True(t, resilience.IsRetryable(err))
}

func TestErrorMessageIsPermanent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Error Message": "Invalid API call."}`))
	})

	_, err := client.Price(context.Background(), "AAPL")
	require.Error(t, err)
	assert.False(t, resilience.IsRetryable(err))
}

func TestServerErrorIsRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Price(context.Background(), "AAPL")
	require.Error(t, err)

	var statusErr *httputil.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.True(t, resilience.IsRetryable(err))
}

func TestEPS(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OVERVIEW", r.URL.Query().Get("function"))
		_, _ = w.Write([]byte(`{"Symbol": "AAPL", "EPS": "6.42"}`))
	})

	eps, err := client.EPS(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 6.42, eps)
}

func TestDailyCloses_OldestFirst(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Time Series (Daily)": {
			"2024-01-03": {"4. close": "102.0"},
			"2024-01-02": {"4. close": "101.0"},
			"2024-01-04": {"4. close": "103.5"}
		}}`))
	})

	closes, err := client.DailyCloses(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, []float64{101, 102, 103.5}, closes)
}

func TestFetchers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Global Quote": {"05. price": "10"}}`))
	})

	fetchers := client.Fetchers()
	assert.Len(t, fetchers, 3)

	v, err := fetchers["price"](context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10.0, v)
}

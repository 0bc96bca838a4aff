package finnhub

import (
	"context"
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
	return NewClient(httpClient, config.ProviderConfig{APIKey: "tok", BaseURL: server.URL}, logger.Nop())
}

func TestPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "MSFT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		_, _ = w.Write([]byte(`{"c": 415.5, "d": 1.2, "dp": 0.3, "h": 417, "l": 410, "o": 412, "pc": 414.3, "t": 1700000000}`))
	})

	price, err := client.Price(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 415.5, price)
}

func TestPrice_ZeroQuoteIsPermanent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"c": 0, "d": null, "dp": null, "h": 0, "l": 0, "o": 0, "pc": 0, "t": 0}`))
	})

	_, err := client.Price(context.Background(), "ZZZZ")
	require.Error(t, err)
	assert.False(t, resilience.IsRetryable(err))
}

func TestEPS(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    float64
		wantErr bool
	}{
		{"ttm", `{"metric": {"epsTTM": 11.8}}`, 11.8, false},
		{"basic fallback", `{"metric": {"epsBasicExclExtraItemsTTM": 9.1}}`, 9.1, false},
		{"missing", `{"metric": {}}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "all", r.URL.Query().Get("metric"))
				_, _ = w.Write([]byte(tt.body))
			})

			got, err := client.EPS(context.Background(), "MSFT")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDailyCloses(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "D", r.URL.Query().Get("resolution"))
		assert.Equal(t, "1717200000", r.URL.Query().Get("to"))
		_, _ = w.Write([]byte(`{"c": [1, 2, 3], "s": "ok"}`))
	})
	client.now = func() time.Time { return fixed }

	closes, err := client.DailyCloses(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, closes)
}

func TestDailyCloses_NoData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"s": "no_data"}`))
	})

	_, err := client.DailyCloses(context.Background(), "MSFT")
	require.Error(t, err)
	assert.False(t, resilience.IsRetryable(err))
}

func TestRateLimitedIsRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Price(context.Background(), "MSFT")
	require.Error(t, err)
	assert.True(t, resilience.IsRetryable(err))
}

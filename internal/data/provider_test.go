package data

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/zion/internal/cache"
	"github.com/wonny/zion/internal/resilience"
	"github.com/wonny/zion/pkg/logger"
)

type recordingObserver struct {
	outcomes []string
}

func (r *recordingObserver) ObserveFetch(source, kind, outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, source+"/"+kind+"/"+outcome)
}

func newTestProvider(t *testing.T, threshold int) (*Provider, *cache.MemoryStore) {
	t.Helper()

	store := cache.NewMemoryStore()
	breakers := resilience.NewBreakers(func(string) resilience.BreakerConfig {
		return resilience.BreakerConfig{FailureThreshold: threshold, RecoveryTimeout: time.Hour}
	})
	retrier := resilience.NewRetrier(resilience.RetryConfig{MaxRetries: 0})

	p := NewProvider(cache.New(store), breakers, retrier, Options{
		AttemptTimeout: 50 * time.Millisecond,
		KindTTL:        map[string]time.Duration{"price": time.Minute},
	}, logger.Nop())
	return p, store
}

func failing(err error) FetchFunc {
	return func(context.Context, string) (interface{}, error) { return nil, err }
}

func returning(v interface{}) FetchFunc {
	return func(context.Context, string) (interface{}, error) { return v, nil }
}

func TestFetch_FallsBackToSecondary(t *testing.T) {
	p, store := newTestProvider(t, 3)
	require.NoError(t, p.RegisterDataSource("price", "primary", failing(errors.New("503")), 0))
	require.NoError(t, p.RegisterDataSource("price", "secondary", returning(42), 1))

	v, err := p.Fetch(context.Background(), "price", "AAPL")
	require.NoError(t, err)

	f, err := v.Float64()
	require.NoError(t, err)
	assert.Equal(t, 42.0, f)
	assert.Equal(t, "secondary", v.Source)

	assert.Equal(t, 1, p.Breakers().Get("primary").Snapshot().FailureCount)
	assert.Equal(t, 0, p.Breakers().Get("secondary").Snapshot().FailureCount)

	raw, found, err := store.Get(context.Background(), "price:AAPL")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "42", string(raw))
}

func TestFetch_ExhaustedIsNoDataAndNotCached(t *testing.T) {
	p, store := newTestProvider(t, 3)
	require.NoError(t, p.RegisterDataSource("eps", "a", failing(errors.New("down")), 0))
	require.NoError(t, p.RegisterDataSource("eps", "b", failing(errors.New("down")), 1))

	_, err := p.Fetch(context.Background(), "eps", "X")
	require.Error(t, err)
	assert.True(t, IsNoData(err))

	var nd *NoDataError
	require.True(t, errors.As(err, &nd))
	assert.Len(t, nd.Failures, 2)
	assert.True(t, errors.Is(nd.Failures[0], ErrProviderUnavailable))

	_, found, _ := store.Get(context.Background(), "eps:X")
	assert.False(t, found)
}

func TestFetch_NoSources(t *testing.T) {
	p, _ := newTestProvider(t, 3)

	_, err := p.Fetch(context.Background(), "unknown", "X")
	assert.True(t, IsNoData(err))
}

func TestFetch_CacheHitSkipsSources(t *testing.T) {
	p, store := newTestProvider(t, 3)
	require.NoError(t, store.Set(context.Background(), "price:AAPL", []byte("101.5"), time.Minute))

	var calls atomic.Int32
	require.NoError(t, p.RegisterDataSource("price", "primary", func(context.Context, string) (interface{}, error) {
		calls.Add(1)
		return 1, nil
	}, 0))

	f, err := p.FetchFloat(context.Background(), "price", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 101.5, f)
	assert.Equal(t, int32(0), calls.Load())
}

func TestFetch_OpenBreakerIsSkipped(t *testing.T) {
	p, _ := newTestProvider(t, 1)
	obs := &recordingObserver{}
	p.WithObserver(obs)

	var primaryCalls atomic.Int32
	require.NoError(t, p.RegisterDataSource("price", "primary", func(context.Context, string) (interface{}, error) {
		primaryCalls.Add(1)
		return nil, errors.New("down")
	}, 0))
	require.NoError(t, p.RegisterDataSource("price", "secondary", returning(7), 1))

	// 첫 실패로 primary 브레이커 OPEN
	_, err := p.Fetch(context.Background(), "price", "A")
	require.NoError(t, err)
	assert.Equal(t, resilience.Open, p.Breakers().Get("primary").State())

	_, err = p.Fetch(context.Background(), "price", "B")
	require.NoError(t, err)
	assert.Equal(t, int32(1), primaryCalls.Load())
	assert.Contains(t, obs.outcomes, "primary/price/circuit_open")
}

func TestFetch_AttemptTimeout(t *testing.T) {
	p, _ := newTestProvider(t, 3)
	require.NoError(t, p.RegisterDataSource("price", "slow", func(ctx context.Context, _ string) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, 0))
	require.NoError(t, p.RegisterDataSource("price", "fast", returning(3), 1))

	start := time.Now()
	f, err := p.FetchFloat(context.Background(), "price", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, p.Breakers().Get("slow").Snapshot().FailureCount)
}

func TestFetch_CallerCancelDoesNotTripBreaker(t *testing.T) {
	p, _ := newTestProvider(t, 1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, p.RegisterDataSource("price", "primary", func(ctx context.Context, _ string) (interface{}, error) {
		cancel()
		return nil, ctx.Err()
	}, 0))

	_, err := p.Fetch(ctx, "price", "AAPL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsNoData(err))
	assert.Equal(t, resilience.Closed, p.Breakers().Get("primary").State())
}

func TestFetch_NilValueFallsThrough(t *testing.T) {
	p, _ := newTestProvider(t, 3)
	require.NoError(t, p.RegisterDataSource("price", "empty", returning(nil), 0))
	require.NoError(t, p.RegisterDataSource("price", "real", returning(5), 1))

	v, err := p.Fetch(context.Background(), "price", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "real", v.Source)
}

func TestFetch_TypedNilAndEmptyFallThrough(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
	}{
		{"nil slice", []float64(nil)},
		{"empty slice", []float64{}},
		{"nil map", map[string]float64(nil)},
		{"empty string", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProvider(t, 3)
			require.NoError(t, p.RegisterDataSource("price_series", "empty", returning(tt.value), 0))
			require.NoError(t, p.RegisterDataSource("price_series", "real", returning([]float64{1, 2}), 1))

			v, err := p.Fetch(context.Background(), "price_series", "AAPL")
			require.NoError(t, err)
			assert.Equal(t, "real", v.Source)

			series, err := p.FetchSeries(context.Background(), "price_series", "AAPL")
			require.NoError(t, err)
			assert.Equal(t, []float64{1, 2}, series)
		})
	}
}

func TestFetch_RetriesBeforeFallback(t *testing.T) {
	store := cache.NewMemoryStore()
	retrier := resilience.NewRetrier(resilience.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	p := NewProvider(cache.New(store), resilience.NewBreakers(nil), retrier, Options{}, logger.Nop())

	var calls atomic.Int32
	require.NoError(t, p.RegisterDataSource("price", "flaky", func(context.Context, string) (interface{}, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return 9, nil
	}, 0))

	f, err := p.FetchFloat(context.Background(), "price", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 9.0, f)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 0, p.Breakers().Get("flaky").Snapshot().FailureCount)
}

func TestRegisterDataSource(t *testing.T) {
	p, _ := newTestProvider(t, 3)

	require.NoError(t, p.RegisterDataSource("price", "c", returning(1), 2))
	require.NoError(t, p.RegisterDataSource("price", "a", returning(1), 0))
	require.NoError(t, p.RegisterDataSource("price", "b", returning(1), 0))

	assert.Equal(t, []string{"a", "b", "c"}, p.Sources("price"))
	assert.Error(t, p.RegisterDataSource("price", "a", returning(1), 5))
	assert.Error(t, p.RegisterDataSource("price", "d", nil, 0))
	assert.Equal(t, []string{"price"}, p.Kinds())
}

func TestValue_Float64(t *testing.T) {
	f, err := NewValue([]byte(`"12.5"`), "x").Float64()
	require.NoError(t, err)
	assert.Equal(t, 12.5, f)

	_, err = NewValue([]byte(`{"a":1}`), "x").Float64()
	require.Error(t, err)
	assert.False(t, resilience.IsRetryable(err))

	series, err := NewValue([]byte(`[1,2,3]`), "x").Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, series)
}

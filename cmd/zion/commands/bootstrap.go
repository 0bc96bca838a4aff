package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/zion/internal/analysisconfig"
	"github.com/wonny/zion/internal/brain"
	"github.com/wonny/zion/internal/cache"
	"github.com/wonny/zion/internal/data"
	"github.com/wonny/zion/internal/data/repos"
	"github.com/wonny/zion/internal/external/alphavantage"
	"github.com/wonny/zion/internal/external/finnhub"
	"github.com/wonny/zion/internal/external/scrape"
	"github.com/wonny/zion/internal/metrics"
	"github.com/wonny/zion/internal/resilience"
	"github.com/wonny/zion/internal/scoring"
	"github.com/wonny/zion/internal/units"
	"github.com/wonny/zion/pkg/config"
	"github.com/wonny/zion/pkg/database"
	"github.com/wonny/zion/pkg/httputil"
	"github.com/wonny/zion/pkg/logger"
	"github.com/wonny/zion/pkg/redis"
)

// App holds every long-lived component of the engine
type App struct {
	Config       *config.Config
	Analysis     *analysisconfig.Config
	ConfigHash   string
	Logger       *logger.Logger
	Breakers     *resilience.Breakers
	Provider     *data.Provider
	Graph        *brain.Graph
	Registry     *scoring.Registry
	Orchestrator *brain.Orchestrator
	Metrics      *metrics.Metrics          // nil when METRICS_ENABLED=false
	History      *repos.AnalysisRepository // nil when DB_ENABLED=false

	closers []func()
}

// Close releases connections in reverse order of creation
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// bootstrap builds the engine from the environment and the analysis YAML
// ⭐ SSOT: 의존성 조립(DI)은 이 함수에서만
func bootstrap(ctx context.Context) (_ *App, err error) {
	// 1. Process config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if analysisConfigPath != "" {
		cfg.AnalysisConfigPath = analysisConfigPath
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Logger
	log := logger.New(cfg)
	app := &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	// 3. Analysis config
	acfg, _, err := analysisconfig.Load(cfg.AnalysisConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load analysis config: %w", err)
	}
	hash, err := analysisconfig.Hash(acfg)
	if err != nil {
		return nil, fmt.Errorf("hash analysis config: %w", err)
	}
	for _, w := range analysisconfig.Warn(acfg) {
		log.WithField("code", w.Code).Warn(w.Message)
	}
	app.Analysis, app.ConfigHash = acfg, hash

	log.WithFields(map[string]interface{}{
		"path":       cfg.AnalysisConfigPath,
		"hash":       hash[:12],
		"categories": len(acfg.Categories),
	}).Info("Analysis config loaded")

	// 4. Cache store: Redis when enabled, in-process otherwise
	rc, err := redis.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	app.closers = append(app.closers, func() { rc.Close() })

	var store cache.Store = cache.NewMemoryStore()
	var limiter *redis.RateLimiter
	if rc.Enabled() {
		store = redis.NewStore(rc, cfg.Redis.KeyPrefix)
		limiter = redis.NewRateLimiter(rc, cfg.Redis.KeyPrefix+"ratelimit")
		log.Info("Using Redis result cache")
	} else {
		log.Info("Redis disabled, using in-memory result cache")
	}
	resultCache := cache.New(store)

	// 5. Metrics
	if cfg.MetricsEnabled {
		app.Metrics = metrics.New()
	}

	// 6. Resilience: one breaker per source, named policies from YAML
	app.Breakers = resilience.NewBreakers(func(name string) resilience.BreakerConfig {
		p := acfg.BreakerPolicy(name)
		return resilience.BreakerConfig{
			FailureThreshold: p.FailureThreshold,
			RecoveryTimeout:  p.RecoveryTimeout(),
		}
	}).OnStateChange(func(name string, from, to resilience.State) {
		log.WithFields(map[string]interface{}{
			"source": name,
			"from":   from.String(),
			"to":     to.String(),
		}).Warn("Circuit breaker state changed")
		if app.Metrics != nil {
			app.Metrics.BreakerStateChanged(name, from, to)
		}
	})

	r := acfg.Resilience
	retrier := resilience.NewRetrier(resilience.RetryConfig{
		MaxRetries: r.MaxRetries,
		BaseDelay:  r.BaseDelay,
		MaxDelay:   r.MaxDelay,
		Jitter:     r.Jitter,
	}).OnRetry(func(attempt int, delay time.Duration, err error) {
		log.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay,
		}).Debug("Retrying data source")
	})

	// 7. Data provider + sources
	kindTTL := make(map[string]time.Duration, len(acfg.Kinds))
	for name, k := range acfg.Kinds {
		kindTTL[name] = k.TTL()
	}
	app.Provider = data.NewProvider(resultCache, app.Breakers, retrier, data.Options{
		AttemptTimeout: r.AttemptTimeout,
		KindTTL:        kindTTL,
	}, log)
	if app.Metrics != nil {
		app.Provider.WithObserver(app.Metrics)
	}

	if err := registerSources(app.Provider, acfg, buildFetchers(cfg, limiter, log), log); err != nil {
		return nil, err
	}

	// 8. Categories + units
	app.Graph, err = brain.NewGraph(acfg.Categories)
	if err != nil {
		return nil, fmt.Errorf("build category graph: %w", err)
	}
	app.Registry = scoring.NewRegistry(app.Graph.Names())
	n, err := units.Register(app.Registry, app.Provider, units.Options{Benchmark: cfg.BenchmarkSymbol})
	if err != nil {
		return nil, fmt.Errorf("register units: %w", err)
	}
	log.WithField("units", n).Info("Scoring units registered")

	// 9. Runner, aggregator, orchestrator
	runner := scoring.NewRunner(resultCache, acfg.Cache.UnitTTL(), log)
	if app.Metrics != nil {
		runner.WithObserver(app.Metrics)
	}

	app.Orchestrator = brain.NewOrchestrator(
		app.Graph,
		app.Registry,
		runner,
		resultCache,
		brain.NewAggregator(acfg.Verdict, acfg.Regime),
		brain.Options{
			CategoryRetries:     r.CategoryRetries,
			CategoryRetryDelay:  r.CategoryRetryDelay,
			MaxUnitsPerCategory: acfg.Concurrency.MaxUnitsPerCategory,
			AnalysisTTL:         acfg.Cache.AnalysisTTL(),
		},
		log,
	)
	if app.Metrics != nil {
		app.Orchestrator.WithObserver(app.Metrics)
	}

	// 10. Analysis history (optional)
	if cfg.Database.Enabled {
		db, dbErr := database.New(ctx, cfg)
		if dbErr != nil {
			return nil, fmt.Errorf("connect to database: %w", dbErr)
		}
		app.closers = append(app.closers, db.Close)

		app.History = repos.NewAnalysisRepository(db.Pool)
		if err = app.History.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		app.Orchestrator.WithRecorder(app.History)
		log.Info("Analysis history enabled")
	}

	return app, nil
}

// buildFetchers creates the adapters that have credentials, keyed by source name
func buildFetchers(cfg *config.Config, limiter *redis.RateLimiter, log *logger.Logger) map[string]map[string]data.FetchFunc {
	client := func(name string, rpm int) *httputil.Client {
		c := httputil.New(cfg, log)
		if limiter != nil {
			return c.WithRateLimiter(limiter, redis.PerMinute(name, rpm))
		}
		return c.WithLocalLimit(rpm)
	}

	out := make(map[string]map[string]data.FetchFunc)

	if cfg.AlphaVantage.APIKey != "" {
		c := client(alphavantage.SourceName, cfg.AlphaVantage.RequestsPerMin)
		out[alphavantage.SourceName] = alphavantage.NewClient(c, cfg.AlphaVantage, log).Fetchers()
	} else {
		log.Warn("ALPHA_VANTAGE_API_KEY not set, source disabled")
	}

	if cfg.Finnhub.APIKey != "" {
		c := client(finnhub.SourceName, cfg.Finnhub.RequestsPerMin)
		out[finnhub.SourceName] = finnhub.NewClient(c, cfg.Finnhub, log).Fetchers()
	} else {
		log.Warn("FINNHUB_API_KEY not set, source disabled")
	}

	sc := scrape.NewClient(client(scrape.SourceName, cfg.Scraper.RequestsPerMin), cfg.Scraper, log)
	if sc.Enabled() {
		out[scrape.SourceName] = sc.Fetchers()
	}

	return out
}

// registerSources follows the per-kind source order of the YAML (index = priority).
// Sources that are not available or cannot serve a kind are skipped.
func registerSources(p *data.Provider, acfg *analysisconfig.Config, fetchers map[string]map[string]data.FetchFunc, log *logger.Logger) error {
	for kind, k := range acfg.Kinds {
		registered := 0
		for priority, name := range k.Sources {
			fn, ok := fetchers[name][kind]
			if !ok {
				log.WithFields(map[string]interface{}{
					"kind":   kind,
					"source": name,
				}).Debug("Source unavailable for kind, skipped")
				continue
			}
			if err := p.RegisterDataSource(kind, name, fn, priority); err != nil {
				return fmt.Errorf("register %s for %s: %w", name, kind, err)
			}
			registered++
		}
		if registered == 0 {
			log.WithField("kind", kind).Warn("No data source available, units needing it will report NO_DATA")
		}
	}
	return nil
}

package analysisconfig

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
categories:
  - name: valuation
    weight: 0.6
  - name: technical
    weight: 0.4
    dependencies: [valuation]
`

func TestLoad_RepositoryConfig(t *testing.T) {
	path := "../../config/analysis.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("config file not found")
	}

	cfg, yamlData, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, yamlData)

	assert.Len(t, cfg.Categories, 9)
	assert.Equal(t, []string{"alpha_vantage", "finnhub", "scraper"}, cfg.Kinds["price"].Sources)
	assert.Equal(t, 60*time.Second, cfg.Kinds["price"].TTL())
	assert.Equal(t, 24*time.Hour, cfg.Kinds["eps"].TTL())
	assert.Equal(t, 10*time.Second, cfg.Resilience.AttemptTimeout)

	// 해시 생성: 동일 설정 → 동일 해시
	hash, err := Hash(cfg)
	require.NoError(t, err)
	assert.Len(t, hash, 64)
	hash2, _ := Hash(cfg)
	assert.Equal(t, hash, hash2, "hash not deterministic")
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Resilience.CategoryRetries)
	assert.Equal(t, time.Second, cfg.Resilience.CategoryRetryDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Resilience.BaseDelay)
	assert.Equal(t, Verdict{StrongBuy: 0.7, Buy: 0.5, Hold: 0.3}, cfg.Verdict)
	assert.Equal(t, time.Hour, cfg.Cache.UnitTTL())
	assert.Equal(t, []string{"valuation", "technical"}, cfg.CategoryNames())
	assert.Equal(t, map[string]float64{"valuation": 0.6, "technical": 0.4}, cfg.Weights())
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte(minimalYAML + "\nunknown_section: true\n"))
	assert.Error(t, err)
}

func TestParse_Durations(t *testing.T) {
	cfg, err := Parse([]byte(`
resilience:
  max_retries: 2
  base_delay: 250ms
  max_delay: 4s
  attempt_timeout: 3s
` + minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Resilience.BaseDelay)
	assert.Equal(t, 4*time.Second, cfg.Resilience.MaxDelay)
	assert.Equal(t, 2, cfg.Resilience.MaxRetries)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name: "cycle",
			yaml: `
categories:
  - {name: a, weight: 0.5, dependencies: [b]}
  - {name: b, weight: 0.5, dependencies: [a]}
`,
			field: "categories",
		},
		{
			name: "unknown dependency",
			yaml: `
categories:
  - {name: a, weight: 0.5, dependencies: [ghost]}
`,
			field: "categories.a.dependencies",
		},
		{
			name: "duplicate category",
			yaml: `
categories:
  - {name: a, weight: 0.5}
  - {name: a, weight: 0.5}
`,
			field: "categories[1].name",
		},
		{
			name: "unknown policy",
			yaml: `
providers:
  alpha_vantage: {policy: nope}
` + minimalYAML,
			field: "providers.alpha_vantage.policy",
		},
		{
			name: "thresholds out of order",
			yaml: `
verdict: {strong_buy: 0.5, buy: 0.7, hold: 0.3}
` + minimalYAML,
			field: "verdict",
		},
		{
			name: "max delay below base",
			yaml: `
resilience: {base_delay: 2s, max_delay: 1s}
` + minimalYAML,
			field: "resilience.max_delay",
		},
		{
			name: "regime unknown category",
			yaml: `
regime: {enabled: true, category: ghost, unit: volatility}
` + minimalYAML,
			field: "regime.category",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var ve ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidate_CycleNamesPath(t *testing.T) {
	_, err := Parse([]byte(`
categories:
  - {name: a, weight: 0.3, dependencies: [b]}
  - {name: b, weight: 0.3, dependencies: [c]}
  - {name: c, weight: 0.3, dependencies: [a]}
`))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "dependency cycle"), err.Error())
}

func TestBreakerPolicy(t *testing.T) {
	cfg, err := Parse([]byte(`
policies:
  api: {failure_threshold: 3, recovery_timeout_seconds: 300}
  scraper: {failure_threshold: 5, recovery_timeout_seconds: 600}
providers:
  alpha_vantage: {policy: api}
  scraper: {policy: scraper, recovery_timeout_seconds: 30}
` + minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, Policy{FailureThreshold: 3, RecoveryTimeoutSeconds: 300}, cfg.BreakerPolicy("alpha_vantage"))
	assert.Equal(t, Policy{FailureThreshold: 5, RecoveryTimeoutSeconds: 30}, cfg.BreakerPolicy("scraper"))
	assert.Equal(t, cfg.Policies["default"], cfg.BreakerPolicy("unregistered"))
	assert.Equal(t, 300*time.Second, cfg.BreakerPolicy("alpha_vantage").RecoveryTimeout())
}

func TestWarn(t *testing.T) {
	cfg, err := Parse([]byte(`
kinds:
  news: {ttl_seconds: 60}
categories:
  - {name: a, weight: 0.8}
  - {name: b, weight: 0.7}
`))
	require.NoError(t, err)

	warnings := Warn(cfg)
	codes := map[string]bool{}
	for _, w := range warnings {
		codes[w.Code] = true
	}
	assert.True(t, codes["WEIGHTS_OVER_ONE"])
	assert.True(t, codes["KIND_WITHOUT_SOURCES"])
}

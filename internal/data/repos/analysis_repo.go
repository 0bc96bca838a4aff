package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wonny/zion/internal/contracts"
)

// ErrNotFound is returned when no analysis run matches
var ErrNotFound = errors.New("analysis run not found")

// DBTX is the subset of pgxpool.Pool the repository needs
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Schema creates the analysis history tables
const Schema = `
CREATE SCHEMA IF NOT EXISTS analysis;

CREATE TABLE IF NOT EXISTS analysis.runs (
	run_id      UUID PRIMARY KEY,
	symbol      TEXT NOT NULL,
	categories  TEXT[] NOT NULL,
	verdict     TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	regime      TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	result      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS runs_symbol_created_idx ON analysis.runs (symbol, created_at DESC);

CREATE TABLE IF NOT EXISTS analysis.category_scores (
	run_id        UUID NOT NULL REFERENCES analysis.runs (run_id) ON DELETE CASCADE,
	category      TEXT NOT NULL,
	units         INT NOT NULL,
	units_failed  INT NOT NULL,
	score         DOUBLE PRECISION,
	degraded      BOOLEAN NOT NULL DEFAULT FALSE,
	error         TEXT,
	PRIMARY KEY (run_id, category)
);
`

// RunSummary is one row of analysis history
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Symbol     string    `json:"symbol"`
	Verdict    string    `json:"verdict"`
	Confidence float64   `json:"confidence"`
	Regime     string    `json:"regime"`
	CreatedAt  time.Time `json:"created_at"`
}

// AnalysisRepository stores finished analysis runs
// ⭐ SSOT: 분석 이력 저장/조회는 여기서만
type AnalysisRepository struct {
	db DBTX
}

// NewAnalysisRepository creates a new analysis repository
func NewAnalysisRepository(db DBTX) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// EnsureSchema applies Schema. Idempotent.
func (r *AnalysisRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply analysis schema: %w", err)
	}
	return nil
}

// SaveAnalysis persists a run and its per-category summary in one transaction.
// It satisfies brain.Recorder.
func (r *AnalysisRepository) SaveAnalysis(ctx context.Context, res *contracts.AnalysisResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode analysis %s: %w", res.RunID, err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO analysis.runs (
			run_id, symbol, categories, verdict, confidence, regime, duration_ms, result, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO NOTHING
	`,
		res.RunID, res.Symbol, res.Categories,
		res.Verdict, res.Confidence, res.Regime,
		res.ExecutionMetrics.DurationMS, payload, res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis run: %w", err)
	}

	for _, name := range res.Categories {
		cr, ok := res.CategoryResults[name]
		if !ok {
			continue
		}
		if err := saveCategory(ctx, tx, res, name, cr); err != nil {
			return fmt.Errorf("failed to save category %s: %w", name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func saveCategory(ctx context.Context, tx pgx.Tx, res *contracts.AnalysisResult, name string, cr contracts.CategoryResult) error {
	var score *float64
	if v, ok := res.Contributing[name]; ok {
		score = &v
	}
	var errText *string
	if cr.Error != "" {
		errText = &cr.Error
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO analysis.category_scores (
			run_id, category, units, units_failed, score, degraded, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, category) DO NOTHING
	`,
		res.RunID, name, cr.Count, cr.Count-cr.Succeeded(), score, cr.Degraded, errText,
	)
	return err
}

// GetLatest returns the most recent stored analysis for symbol
func (r *AnalysisRepository) GetLatest(ctx context.Context, symbol string) (*contracts.AnalysisResult, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `
		SELECT result
		FROM analysis.runs
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, symbol).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest analysis: %w", err)
	}

	var res contracts.AnalysisResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return &res, nil
}

// ListRecent returns up to limit summaries for symbol, newest first
func (r *AnalysisRepository) ListRecent(ctx context.Context, symbol string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx, `
		SELECT run_id::text, symbol, verdict, confidence, regime, created_at
		FROM analysis.runs
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.RunID, &s.Symbol, &s.Verdict, &s.Confidence, &s.Regime, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

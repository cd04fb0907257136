package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
)

// PostgresVerdictStore persists final verdicts for audit and the feedback
// loop. Signals and layer results are stored as JSONB since they are read
// back whole, never queried field by field.
type PostgresVerdictStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresVerdictStore(dsn string, logger *zap.Logger) (*PostgresVerdictStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open Postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Postgres database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS email_verdicts (
			id UUID PRIMARY KEY,
			message_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			verdict TEXT NOT NULL,
			overall_score DOUBLE PRECISION,
			confidence DOUBLE PRECISION,
			signals JSONB,
			layer_results JSONB,
			explanation TEXT,
			recommendation TEXT,
			processing_ms BIGINT,
			analyzed_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_verdicts_tenant_analyzed
		ON email_verdicts (tenant_id, analyzed_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &PostgresVerdictStore{db: db, logger: logger}, nil
}

func (s *PostgresVerdictStore) StoreVerdict(ctx context.Context, v *core.EmailVerdict) error {
	signals, err := json.Marshal(v.Signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}
	layers, err := json.Marshal(v.LayerResults)
	if err != nil {
		return fmt.Errorf("failed to marshal layer results: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO email_verdicts
			(id, message_id, tenant_id, verdict, overall_score, confidence,
			 signals, layer_results, explanation, recommendation, processing_ms, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, v.ID, v.MessageID, v.TenantID, string(v.Verdict), v.OverallScore, v.Confidence,
		signals, layers, v.Explanation, v.Recommendation,
		v.ProcessingTime.Milliseconds(), v.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("failed to store verdict: %w", err)
	}
	return nil
}

func (s *PostgresVerdictStore) GetVerdict(ctx context.Context, id uuid.UUID) (*core.EmailVerdict, error) {
	var v core.EmailVerdict
	var verdict string
	var signals, layers []byte
	var processingMs int64
	var analyzedAt time.Time

	err := s.db.QueryRowContext(ctx, `
		SELECT id, message_id, tenant_id, verdict, overall_score, confidence,
		       signals, layer_results, explanation, recommendation, processing_ms, analyzed_at
		FROM email_verdicts
		WHERE id = $1
	`, id).Scan(&v.ID, &v.MessageID, &v.TenantID, &verdict, &v.OverallScore, &v.Confidence,
		&signals, &layers, &v.Explanation, &v.Recommendation, &processingMs, &analyzedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("verdict %s not found", id)
		}
		return nil, fmt.Errorf("failed to query verdict: %w", err)
	}

	v.Verdict = core.Verdict(verdict)
	v.ProcessingTime = time.Duration(processingMs) * time.Millisecond
	v.AnalyzedAt = analyzedAt
	if err := json.Unmarshal(signals, &v.Signals); err != nil {
		s.logger.Warn("Failed to unmarshal stored signals",
			zap.String("verdict_id", id.String()), zap.Error(err))
	}
	if err := json.Unmarshal(layers, &v.LayerResults); err != nil {
		s.logger.Warn("Failed to unmarshal stored layer results",
			zap.String("verdict_id", id.String()), zap.Error(err))
	}
	return &v, nil
}

func (s *PostgresVerdictStore) Close() error {
	return s.db.Close()
}

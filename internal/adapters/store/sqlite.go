package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
)

// SQLitePatternStore persists learned lookalike patterns in a local SQLite
// file. Fits single-node deployments.
type SQLitePatternStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLitePatternStore(dbPath string, logger *zap.Logger) (*SQLitePatternStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS lookalike_patterns (
			target_brand TEXT NOT NULL,
			attack_type TEXT NOT NULL,
			pattern TEXT NOT NULL,
			target_domain TEXT,
			occurrences INTEGER,
			avg_confidence REAL,
			is_generalized BOOLEAN,
			last_seen TIMESTAMP,
			feedback_score REAL,
			PRIMARY KEY (target_brand, attack_type, pattern)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLitePatternStore{db: db, logger: logger}, nil
}

func (s *SQLitePatternStore) LoadPatterns(ctx context.Context) ([]*core.LearnedPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_brand, attack_type, pattern, target_domain, occurrences,
		       avg_confidence, is_generalized, last_seen, feedback_score
		FROM lookalike_patterns
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*core.LearnedPattern
	for rows.Next() {
		var p core.LearnedPattern
		var attackType, lastSeen string
		if err := rows.Scan(&p.TargetBrand, &attackType, &p.Pattern, &p.TargetDomain,
			&p.Occurrences, &p.AverageConfidence, &p.IsGeneralized, &lastSeen, &p.FeedbackScore); err != nil {
			return nil, fmt.Errorf("failed to scan pattern row: %w", err)
		}
		p.AttackType = core.AttackType(attackType)
		if ts, err := time.Parse(time.RFC3339, lastSeen); err == nil {
			p.LastSeen = ts
		} else {
			s.logger.Warn("Failed to parse last_seen timestamp",
				zap.String("pattern", p.Pattern), zap.Error(err))
		}
		patterns = append(patterns, &p)
	}
	return patterns, rows.Err()
}

func (s *SQLitePatternStore) SavePattern(ctx context.Context, p *core.LearnedPattern) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO lookalike_patterns
			(target_brand, attack_type, pattern, target_domain, occurrences,
			 avg_confidence, is_generalized, last_seen, feedback_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.TargetBrand, string(p.AttackType), p.Pattern, p.TargetDomain, p.Occurrences,
		p.AverageConfidence, p.IsGeneralized, p.LastSeen.Format(time.RFC3339), p.FeedbackScore)
	if err != nil {
		return fmt.Errorf("failed to save pattern: %w", err)
	}
	return nil
}

func (s *SQLitePatternStore) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
)

// MySQLPatternStore persists learned lookalike patterns in MySQL so a fleet
// of analysis nodes shares one learning corpus.
type MySQLPatternStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLPatternStore opens the shared pattern table. The DSN must carry
// parseTime=true so TIMESTAMP columns scan into time.Time.
func NewMySQLPatternStore(dsn string, logger *zap.Logger) (*MySQLPatternStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS lookalike_patterns (
			target_brand VARCHAR(128) NOT NULL,
			attack_type VARCHAR(32) NOT NULL,
			pattern VARCHAR(255) NOT NULL,
			target_domain VARCHAR(255),
			occurrences INT,
			avg_confidence DOUBLE,
			is_generalized BOOLEAN,
			last_seen TIMESTAMP,
			feedback_score DOUBLE,
			PRIMARY KEY (target_brand, attack_type, pattern)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MySQLPatternStore{db: db, logger: logger}, nil
}

func (s *MySQLPatternStore) LoadPatterns(ctx context.Context) ([]*core.LearnedPattern, error) {
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
		var attackType string
		var lastSeen time.Time
		if err := rows.Scan(&p.TargetBrand, &attackType, &p.Pattern, &p.TargetDomain,
			&p.Occurrences, &p.AverageConfidence, &p.IsGeneralized, &lastSeen, &p.FeedbackScore); err != nil {
			return nil, fmt.Errorf("failed to scan pattern row: %w", err)
		}
		p.AttackType = core.AttackType(attackType)
		p.LastSeen = lastSeen
		patterns = append(patterns, &p)
	}
	return patterns, rows.Err()
}

func (s *MySQLPatternStore) SavePattern(ctx context.Context, p *core.LearnedPattern) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lookalike_patterns
			(target_brand, attack_type, pattern, target_domain, occurrences,
			 avg_confidence, is_generalized, last_seen, feedback_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			target_domain = VALUES(target_domain),
			occurrences = VALUES(occurrences),
			avg_confidence = VALUES(avg_confidence),
			is_generalized = VALUES(is_generalized),
			last_seen = VALUES(last_seen),
			feedback_score = VALUES(feedback_score)
	`, p.TargetBrand, string(p.AttackType), p.Pattern, p.TargetDomain, p.Occurrences,
		p.AverageConfidence, p.IsGeneralized, p.LastSeen, p.FeedbackScore)
	if err != nil {
		return fmt.Errorf("failed to save pattern: %w", err)
	}
	return nil
}

func (s *MySQLPatternStore) Close() error {
	return s.db.Close()
}

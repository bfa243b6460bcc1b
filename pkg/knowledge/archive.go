// Package knowledge archives generated procedure examples in PostgreSQL so they can be browsed later.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/valentinpelus/attackref/pkg/types"
)

const (
	// DefaultRecentLimit is used when Recent is called without a positive limit
	DefaultRecentLimit = 20
	// MaxRecentLimit caps a single history page
	MaxRecentLimit = 200
)

const schema = `
	CREATE TABLE IF NOT EXISTS procedure_examples (
		id                    TEXT PRIMARY KEY,
		technique_name        TEXT NOT NULL,
		technique_description TEXT NOT NULL DEFAULT '',
		procedure_example     TEXT NOT NULL,
		provider              TEXT NOT NULL DEFAULT '',
		created_at            TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS procedure_examples_technique_idx
		ON procedure_examples (lower(technique_name), created_at DESC);
`

// Archive stores generated procedure examples
type Archive struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Stats summarises the archive contents
type Stats struct {
	Total       int            `json:"total"`
	ByTechnique map[string]int `json:"by_technique"`
	ByProvider  map[string]int `json:"by_provider"`
	Latest      *time.Time     `json:"latest,omitempty"`
}

// NewArchive connects to PostgreSQL and makes sure the archive table exists
func NewArchive(ctx context.Context, databaseURL string, logger *zap.Logger) (*Archive, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	a := newArchive(db, logger)
	if err := a.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func newArchive(db *sql.DB, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{db: db, logger: logger, now: time.Now}
}

func (a *Archive) ensureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Store saves a generated example, filling in ID and CreatedAt when unset
func (a *Archive) Store(ctx context.Context, example *types.ProcedureExample) error {
	if example.ID == "" {
		example.ID = uuid.New().String()
	}
	if example.CreatedAt.IsZero() {
		example.CreatedAt = a.now().UTC()
	}

	query := `
		INSERT INTO procedure_examples (
			id, technique_name, technique_description, procedure_example, provider, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			procedure_example = EXCLUDED.procedure_example,
			provider = EXCLUDED.provider
	`

	_, err := a.db.ExecContext(ctx, query,
		example.ID,
		example.TechniqueName,
		example.TechniqueDescription,
		example.Example,
		example.Provider,
		example.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store procedure example: %w", err)
	}

	a.logger.Debug("archived procedure example",
		zap.String("id", example.ID),
		zap.String("technique", example.TechniqueName))
	return nil
}

// Recent returns the newest examples, optionally for one technique (case-insensitive)
func (a *Archive) Recent(ctx context.Context, technique string, limit int) ([]types.ProcedureExample, error) {
	limit = clampLimit(limit)

	query := `
		SELECT id, technique_name, technique_description, procedure_example, provider, created_at
		FROM procedure_examples
		WHERE ($1::text = '' OR lower(technique_name) = lower($1::text))
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := a.db.QueryContext(ctx, query, technique, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query procedure examples: %w", err)
	}
	defer rows.Close()

	examples := make([]types.ProcedureExample, 0)
	for rows.Next() {
		var ex types.ProcedureExample
		if err := rows.Scan(
			&ex.ID,
			&ex.TechniqueName,
			&ex.TechniqueDescription,
			&ex.Example,
			&ex.Provider,
			&ex.CreatedAt,
		); err != nil {
			a.logger.Warn("failed to scan procedure example", zap.Error(err))
			continue
		}
		examples = append(examples, ex)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return examples, nil
}

// Stats returns counts by technique and provider
func (a *Archive) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByTechnique: make(map[string]int),
		ByProvider:  make(map[string]int),
	}

	var latest sql.NullTime
	err := a.db.QueryRowContext(ctx, "SELECT COUNT(*), MAX(created_at) FROM procedure_examples").Scan(&stats.Total, &latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get total examples: %w", err)
	}
	if latest.Valid {
		stats.Latest = &latest.Time
	}

	if err := a.countBy(ctx, "technique_name", stats.ByTechnique); err != nil {
		return nil, err
	}
	if err := a.countBy(ctx, "provider", stats.ByProvider); err != nil {
		return nil, err
	}
	return stats, nil
}

// countBy groups on a fixed column name; never pass user input as column
func (a *Archive) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := a.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM procedure_examples GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("failed to get %s stats: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			continue
		}
		into[key] = count
	}
	return rows.Err()
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}

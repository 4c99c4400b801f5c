/*
Package store persists processed disclosure reports in SQLite. The reports
table is append-mostly: inserts are ignore-on-conflict keyed by report ID,
and rows are never updated or deleted by the pipeline.
*/
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shanehull/tdnetwatch/internal/types"
)

// Store wraps the SQLite database holding processed reports.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path with WAL mode enabled and
// bootstraps the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// WAL for better concurrency between the pipeline writer and API reads.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL,
	name TEXT NOT NULL,
	title TEXT NOT NULL,
	sales_pct REAL,
	profit_pct REAL,
	is_double_growth INTEGER NOT NULL DEFAULT 0,
	summary TEXT,
	pdf_url TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at DESC);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// InsertReport appends one report row, deriving the double-growth flag from
// the analysis. Inserting an ID that already exists is a no-op, which is
// what makes processing at-most-once across runs.
func (s *Store) InsertReport(ctx context.Context, item types.DisclosureItem, analysis types.Analysis) error {
	isDoubleGrowth := 0
	if analysis.IsDoubleGrowth() {
		isDoubleGrowth = 1
	}

	_, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO reports
	(id, code, name, title, sales_pct, profit_pct, is_double_growth, summary, pdf_url, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		item.ID,
		item.Code,
		item.Name,
		item.Title,
		analysis.SalesPct,
		analysis.ProfitPct,
		isDoubleGrowth,
		analysis.Summary,
		item.PDFURL,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report %s: %w", item.ID, err)
	}
	return nil
}

// RecentIDs returns the identifiers of the most recent limit reports. Dedup
// only needs to cover the current scraping horizon, so the window is
// bounded rather than loading all history. An empty table yields an empty
// set, not an error.
func (s *Store) RecentIDs(ctx context.Context, limit int) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id FROM reports ORDER BY created_at DESC LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent report IDs: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan report ID: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// ListReports returns persisted reports newest-first, optionally restricted
// to double-growth rows.
func (s *Store) ListReports(ctx context.Context, onlyDoubleGrowth bool, limit int) ([]types.Report, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
SELECT id, code, name, title, sales_pct, profit_pct, is_double_growth, summary, pdf_url, created_at
FROM reports`
	if onlyDoubleGrowth {
		query += `
WHERE is_double_growth = 1`
	}
	query += `
ORDER BY created_at DESC
LIMIT ?;`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []types.Report
	for rows.Next() {
		var (
			r         types.Report
			salesPct  sql.NullFloat64
			profitPct sql.NullFloat64
			summary   sql.NullString
			isDouble  int
		)
		if err := rows.Scan(&r.ID, &r.Code, &r.Name, &r.Title, &salesPct, &profitPct, &isDouble, &summary, &r.PDFURL, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		if salesPct.Valid {
			v := salesPct.Float64
			r.SalesPct = &v
		}
		if profitPct.Valid {
			v := profitPct.Float64
			r.ProfitPct = &v
		}
		r.Summary = summary.String
		r.IsDoubleGrowth = isDouble == 1
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

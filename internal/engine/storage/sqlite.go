package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rendis/geodrill/internal/engine/stats"
	"github.com/rendis/geodrill/internal/model"
)

// Store keeps KPI records per level, metric and period. It serves as a
// KPI and trend source for the dashboard.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kpi_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		level TEXT NOT NULL,
		metric TEXT NOT NULL,
		period TEXT NOT NULL,
		region_code TEXT NOT NULL,
		region_name TEXT,
		value REAL,
		change_rate REAL,
		percentile REAL,
		status TEXT NOT NULL DEFAULT 'normal',
		computed_at TEXT,
		UNIQUE(level, metric, period, region_code)
	);
	CREATE INDEX IF NOT EXISTS idx_kpi_lookup ON kpi_records(level, metric, period);
	CREATE INDEX IF NOT EXISTS idx_kpi_region ON kpi_records(region_code, metric);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// InsertBatch upserts records for one level, metric and period and
// returns the number of rows written.
func (s *Store) InsertBatch(q stats.Query, records []model.KPIRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning tx: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO kpi_records
		(level, metric, period, region_code, region_name, value, change_rate, percentile, status, computed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("preparing stmt: %w", err)
	}
	defer stmt.Close()

	level := q.Level.DataLevel().String()
	written := 0
	for _, r := range records {
		status := r.Status
		if status == "" {
			status = model.StatusNormal
		}
		var computed any
		if !r.ComputedAt.IsZero() {
			computed = r.ComputedAt.UTC().Format(time.RFC3339)
		}
		res, err := stmt.Exec(level, q.Metric, q.Time, r.RegionCode, r.RegionName,
			nullable(r.Value), nullable(r.ChangeRate), nullable(r.Percentile), string(status), computed)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("inserting %s: %w", r.RegionCode, err)
		}
		n, _ := res.RowsAffected()
		written += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing tx: %w", err)
	}
	return written, nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// FetchKPI returns the records stored for q, ordered by region code.
func (s *Store) FetchKPI(ctx context.Context, q stats.Query) ([]model.KPIRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT region_code, region_name, value, change_rate, percentile, status, computed_at
		FROM kpi_records WHERE level = ? AND metric = ? AND period = ?
		ORDER BY region_code`, q.Level.DataLevel().String(), q.Metric, q.Time)
	if err != nil {
		return nil, &stats.TransientLoadError{Source: "sqlite", Op: "kpi", Err: err}
	}
	defer rows.Close()

	var out []model.KPIRecord
	for rows.Next() {
		var (
			r                         model.KPIRecord
			name, computed            sql.NullString
			value, change, percentile sql.NullFloat64
			status                    string
		)
		if err := rows.Scan(&r.RegionCode, &name, &value, &change, &percentile, &status, &computed); err != nil {
			return nil, &stats.TransientLoadError{Source: "sqlite", Op: "kpi", Err: err}
		}
		r.RegionName = name.String
		r.Value = floatPtr(value)
		r.ChangeRate = floatPtr(change)
		r.Percentile = floatPtr(percentile)
		r.Status = model.ParseStatus(status)
		if computed.Valid {
			if t, err := time.Parse(time.RFC3339, computed.String); err == nil {
				r.ComputedAt = t
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &stats.TransientLoadError{Source: "sqlite", Op: "kpi", Err: err}
	}
	return out, nil
}

// FetchTrend returns one region's values over all stored periods.
func (s *Store) FetchTrend(ctx context.Context, q stats.TrendQuery) ([]model.TrendPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period, value FROM kpi_records
		WHERE level = ? AND metric = ? AND region_code = ?
		ORDER BY period`, q.Level.DataLevel().String(), q.Metric, q.RegionCode)
	if err != nil {
		return nil, &stats.TransientLoadError{Source: "sqlite", Op: "trend", Err: err}
	}
	defer rows.Close()

	var out []model.TrendPoint
	for rows.Next() {
		var (
			p model.TrendPoint
			v sql.NullFloat64
		)
		if err := rows.Scan(&p.Time, &v); err != nil {
			return nil, &stats.TransientLoadError{Source: "sqlite", Op: "trend", Err: err}
		}
		p.Value = floatPtr(v)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Periods lists the stored periods for a level and metric, oldest first.
func (s *Store) Periods(ctx context.Context, level model.Level, metric string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT period FROM kpi_records WHERE level = ? AND metric = ? ORDER BY period`,
		level.DataLevel().String(), metric)
	if err != nil {
		return nil, fmt.Errorf("listing periods: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return model.Float(v.Float64)
}

func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM kpi_records").Scan(&count)
	return count, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"edustat-engine/internal/domain"
	"edustat-engine/internal/source"
	"edustat-engine/internal/stats"
)

func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := d.Pool.QueryRowContext(ctx, `SELECT COUNT(*) FROM vacancies;`).Scan(&n)
	return n, err
}

func (d *DB) Page(ctx context.Context, offset, limit int) ([]domain.Record, error) {
	rows, err := d.Pool.QueryContext(ctx, `
SELECT category, salary_min, salary_max, parsed_at
FROM vacancies
ORDER BY id
LIMIT ? OFFSET ?;`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Record, 0, limit)
	for rows.Next() {
		var (
			r        domain.Record
			lo, hi   sql.NullFloat64
			parsedAt sql.NullString
		)
		if err := rows.Scan(&r.Category, &lo, &hi, &parsedAt); err != nil {
			return nil, err
		}
		if lo.Valid {
			r.SalaryMin = domain.Float(lo.Float64)
		}
		if hi.Valid {
			r.SalaryMax = domain.Float(hi.Float64)
		}
		if parsedAt.Valid {
			if t, err := time.Parse(time.RFC3339, parsedAt.String); err == nil {
				r.ParsedAt = &t
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Aggregate computes the per-category sums in SQL and finishes them with the
// same rules as stats.Aggregate. Categories come back in first-seen order.
func (d *DB) Aggregate(ctx context.Context) (source.Aggregation, error) {
	minExpr := `CASE WHEN salary_min > 0 THEN salary_min END`
	maxExpr := `CASE WHEN salary_max > 0 THEN salary_max END`
	if d.Imputation == stats.ImputePerRecord {
		minExpr = `CASE WHEN salary_min > 0 THEN salary_min WHEN salary_max > 0 THEN salary_max END`
		maxExpr = `CASE WHEN salary_max > 0 THEN salary_max WHEN salary_min > 0 THEN salary_min END`
	}

	// parsed_at is stored as UTC RFC3339, so MAX orders it by time.
	query := fmt.Sprintf(`
SELECT
  category,
  COUNT(*),
  COALESCE(SUM(%[1]s), 0),
  COUNT(%[1]s),
  COALESCE(SUM(%[2]s), 0),
  COUNT(%[2]s),
  MAX(parsed_at)
FROM vacancies
GROUP BY category
ORDER BY MIN(id);
`, minExpr, maxExpr)

	rows, err := d.Pool.QueryContext(ctx, query)
	if err != nil {
		return source.Aggregation{}, err
	}
	defer rows.Close()

	var agg source.Aggregation
	for rows.Next() {
		var (
			t        stats.Totals
			parsedAt sql.NullString
		)
		if err := rows.Scan(&t.Category, &t.Count, &t.SumMin, &t.NMin, &t.SumMax, &t.NMax, &parsedAt); err != nil {
			return source.Aggregation{}, err
		}
		agg.Categories = append(agg.Categories, t.Summary())

		if parsedAt.Valid {
			if ts, err := time.Parse(time.RFC3339, parsedAt.String); err == nil &&
				(agg.LastUpdated == nil || ts.After(*agg.LastUpdated)) {
				agg.LastUpdated = &ts
			}
		}
	}
	if err := rows.Err(); err != nil {
		return source.Aggregation{}, err
	}
	return agg, nil
}

// ReplaceRecords swaps the whole snapshot for records in one transaction and
// logs the sync run.
func (d *DB) ReplaceRecords(ctx context.Context, records []domain.Record, truncated bool) error {
	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vacancies;`); err != nil {
		return fmt.Errorf("clear vacancies: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO vacancies(category, salary_min, salary_max, parsed_at)
VALUES(?,?,?,?);`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		var parsedAt any
		if r.ParsedAt != nil {
			parsedAt = r.ParsedAt.UTC().Format(time.RFC3339)
		}
		if _, err := stmt.ExecContext(ctx, stats.CategoryOf(r), finite(r.SalaryMin), finite(r.SalaryMax), parsedAt); err != nil {
			return fmt.Errorf("insert vacancy: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO sync_runs(synced_at, records, truncated)
VALUES(?,?,?);`, time.Now().UTC().Format(time.RFC3339), len(records), truncated); err != nil {
		return err
	}

	return tx.Commit()
}

type SyncRun struct {
	SyncedAt  time.Time `json:"syncedAt"`
	Records   int       `json:"records"`
	Truncated bool      `json:"truncated"`
}

// LastSync returns the most recent sync run, or nil if there never was one.
func (d *DB) LastSync(ctx context.Context) (*SyncRun, error) {
	var (
		run      SyncRun
		syncedAt string
	)
	err := d.Pool.QueryRowContext(ctx, `
SELECT synced_at, records, truncated
FROM sync_runs
ORDER BY id DESC
LIMIT 1;`).Scan(&syncedAt, &run.Records, &run.Truncated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.SyncedAt, _ = time.Parse(time.RFC3339, syncedAt)
	return &run, nil
}

func finite(v *float64) any {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return *v
}

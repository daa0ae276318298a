package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	_ "github.com/jackc/pgx/v5/stdlib"

	"home_energy/internal/model"
)

const defaultIntervalTable = "energy_intervals"

// OpenPostgres opens and pings a database through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// PostgresSink upserts report rows keyed by (report, interval_start). A
// rerun replaces earlier values and stamps them with its run id.
type PostgresSink struct {
	db    *sql.DB
	run   Run
	table string
}

type PostgresOption func(*PostgresSink)

// WithTable overrides the default table name.
func WithTable(table string) PostgresOption {
	return func(s *PostgresSink) {
		if table != "" {
			s.table = table
		}
	}
}

// NewPostgresSink does not take ownership of db.
func NewPostgresSink(db *sql.DB, run Run, opts ...PostgresOption) *PostgresSink {
	s := &PostgresSink{db: db, run: run, table: defaultIntervalTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PostgresSink) Name() string { return "postgres" }

// EnsureSchema creates the interval table if it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	report         TEXT        NOT NULL,
	interval_start TIMESTAMPTZ NOT NULL,
	produced_wh    BIGINT      NOT NULL,
	net_used_wh    BIGINT      NOT NULL,
	consumed_wh    BIGINT      NOT NULL,
	run_id         UUID        NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (report, interval_start)
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresSink) WriteReport(ctx context.Context, label string, rows iter.Seq[model.IntervalEnergy]) error {
	if s == nil || s.db == nil {
		return errors.New("postgres sink: nil db")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	report,
	interval_start,
	produced_wh,
	net_used_wh,
	consumed_wh,
	run_id
) VALUES (
	$1, $2, $3, $4, $5, $6
)
ON CONFLICT (report, interval_start)
DO UPDATE SET
	produced_wh = EXCLUDED.produced_wh,
	net_used_wh = EXCLUDED.net_used_wh,
	consumed_wh = EXCLUDED.consumed_wh,
	run_id = EXCLUDED.run_id,
	updated_at = NOW()`, s.table)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for row := range rows {
		if _, err := stmt.ExecContext(
			ctx,
			label,
			row.IntervalStart,
			int64(row.Produced),
			int64(row.NetUsed),
			int64(row.Consumed),
			s.run.ID.String(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert %s %s: %w", label, formatStart(row.IntervalStart), err)
		}
	}

	return tx.Commit()
}

// Close is a no-op; the caller owns the database handle.
func (s *PostgresSink) Close() error { return nil }

// Query returns the stored rows of one report in interval order.
func (s *PostgresSink) Query(ctx context.Context, label string) ([]model.IntervalEnergy, error) {
	query := fmt.Sprintf(`
SELECT interval_start, produced_wh, net_used_wh, consumed_wh
FROM %s
WHERE report = $1
ORDER BY interval_start`, s.table)

	rows, err := s.db.QueryContext(ctx, query, label)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.IntervalEnergy
	for rows.Next() {
		var row model.IntervalEnergy
		var produced, netUsed, consumed int64
		if err := rows.Scan(&row.IntervalStart, &produced, &netUsed, &consumed); err != nil {
			return nil, err
		}
		row.Produced = model.WattHours(produced)
		row.NetUsed = model.WattHours(netUsed)
		row.Consumed = model.WattHours(consumed)
		out = append(out, row)
	}
	return out, rows.Err()
}

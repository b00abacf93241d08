// Package postgres provides a PostgreSQL-backed Ledger for guard402.
//
// Records are stored in a single append-only table and spend windows are
// summed server-side. This makes the ledger durable across restarts and
// shareable between guard instances.
//
// The guard402.Ledger interface is synchronous; queries here run against the
// pool with the store's timeout, and query failures on the read side are
// reported through the error handler (slog by default) while the sum falls
// back to zero. RecordUsage returns storage errors directly.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/402guard/guard402"
)

// Store is a PostgreSQL-backed Ledger.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
	timeout     time.Duration
	onError     func(error)
}

var (
	_ guard402.Ledger        = (*Store)(nil)
	_ guard402.WindowSpender = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "guard402_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// WithTimeout bounds each query issued by the synchronous Ledger methods
// (default 5s).
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithErrorHandler sets the callback invoked when a read-side query fails.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Store) { s.onError = fn }
}

// New creates a new PostgreSQL-backed Ledger.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "guard402_",
		timeout:     5 * time.Second,
		onError: func(err error) {
			slog.Warn("guard402/postgres: ledger query failed", "error", err)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) recordsTable() string { return s.tablePrefix + "usage_records" }

// EnsureSchema creates the required table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			service_id TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			subscription_id TEXT NOT NULL DEFAULT '',
			usd_amount DOUBLE PRECISION NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			facilitator_id TEXT NOT NULL DEFAULT '',
			network TEXT NOT NULL DEFAULT '',
			asset TEXT NOT NULL DEFAULT '',
			transaction_ref TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS %s_ts_idx ON %s (ts);
	`, s.recordsTable(), s.recordsTable(), s.recordsTable())
	_, err := s.pool.Exec(ctx, q)
	if err != nil {
		return fmt.Errorf("guard402/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// RecordUsage appends the event and returns the persisted record.
func (s *Store) RecordUsage(event guard402.UsageEvent) (guard402.UsageRecord, error) {
	rec := guard402.UsageRecord{UsageEvent: event, ID: uuid.New().String()}

	var pm guard402.PaymentMeta
	if event.Payment != nil {
		pm = *event.Payment
	}

	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s
			(id, service_id, agent_id, subscription_id, usd_amount, ts, facilitator_id, network, asset, transaction_ref)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, s.recordsTable()),
		rec.ID, rec.ServiceID, rec.AgentID, rec.SubscriptionID, rec.USDAmount, rec.Timestamp,
		pm.FacilitatorID, pm.Network, pm.Asset, pm.Transaction,
	)
	if err != nil {
		return guard402.UsageRecord{}, fmt.Errorf("guard402/postgres: record usage: %w", err)
	}
	return rec, nil
}

// Records returns all records in insertion order.
func (s *Store) Records() []guard402.UsageRecord {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, service_id, agent_id, subscription_id, usd_amount, ts,
			facilitator_id, network, asset, transaction_ref
			FROM %s ORDER BY seq`, s.recordsTable()),
	)
	if err != nil {
		s.onError(fmt.Errorf("guard402/postgres: records: %w", err))
		return nil
	}
	defer rows.Close()

	var out []guard402.UsageRecord
	for rows.Next() {
		var r guard402.UsageRecord
		var pm guard402.PaymentMeta
		if err := rows.Scan(&r.ID, &r.ServiceID, &r.AgentID, &r.SubscriptionID, &r.USDAmount, &r.Timestamp,
			&pm.FacilitatorID, &pm.Network, &pm.Asset, &pm.Transaction); err != nil {
			s.onError(fmt.Errorf("guard402/postgres: scan record: %w", err))
			return nil
		}
		if pm != (guard402.PaymentMeta{}) {
			r.Payment = &pm
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		s.onError(fmt.Errorf("guard402/postgres: records: %w", err))
		return nil
	}
	return out
}

// DailySpendUSD sums spend over the local calendar day of q.Date.
func (s *Store) DailySpendUSD(q guard402.SpendQuery) float64 {
	from, to := guard402.DayWindow(q.Date)
	return s.sum(from, to, guard402.BudgetScope{ServiceID: q.ServiceID, AgentID: q.AgentID})
}

// MonthlySpendUSD sums spend over the calendar month of q.Date.
func (s *Store) MonthlySpendUSD(q guard402.SpendQuery) float64 {
	from, to := guard402.MonthWindow(q.Date)
	return s.sum(from, to, guard402.BudgetScope{ServiceID: q.ServiceID, AgentID: q.AgentID})
}

// WindowSpendUSD sums spend over [from, to] inclusive for the scope.
func (s *Store) WindowSpendUSD(from, to time.Time, scope guard402.BudgetScope) float64 {
	return s.sum(from, to, scope)
}

func (s *Store) sum(from, to time.Time, scope guard402.BudgetScope) float64 {
	ctx, cancel := s.ctx()
	defer cancel()

	q := fmt.Sprintf(`SELECT COALESCE(SUM(usd_amount), 0) FROM %s
		WHERE ts >= $1 AND ts <= $2
		AND ($3 = '' OR service_id = $3)
		AND ($4 = '' OR agent_id = $4)
		AND ($5 = '' OR subscription_id = $5)`, s.recordsTable())

	var total float64
	err := s.pool.QueryRow(ctx, q, from, to, scope.ServiceID, scope.AgentID, scope.SubscriptionID).Scan(&total)
	if err != nil && err != pgx.ErrNoRows {
		s.onError(fmt.Errorf("guard402/postgres: spend sum: %w", err))
		return 0
	}
	return total
}

// Reset deletes all records in one statement.
func (s *Store) Reset() {
	ctx, cancel := s.ctx()
	defer cancel()

	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, s.recordsTable())); err != nil {
		s.onError(fmt.Errorf("guard402/postgres: reset: %w", err))
	}
}

// Package redis provides a Redis-backed Ledger for guard402.
//
// Records are stored as JSON members of a sorted set scored by timestamp, so
// windowed spend queries fetch only the relevant range. Ordering follows
// record timestamps, which coincides with insertion order for a ledger fed
// by a single guard.
//
// The guard402.Ledger interface is synchronous; commands run with the
// store's timeout, and read-side failures are reported through the error
// handler (slog by default) while the result falls back to empty/zero.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/402guard/guard402"
)

// Store is a Redis-backed Ledger.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
	timeout   time.Duration
	onError   func(error)
}

var (
	_ guard402.Ledger        = (*Store)(nil)
	_ guard402.WindowSpender = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "guard402:ledger:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithTimeout bounds each command issued by the synchronous Ledger methods
// (default 5s).
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithErrorHandler sets the callback invoked when a read-side command fails.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Store) { s.onError = fn }
}

// New creates a new Redis-backed Ledger.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "guard402:ledger:",
		timeout:   5 * time.Second,
		onError: func(err error) {
			slog.Warn("guard402/redis: ledger command failed", "error", err)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) recordsKey() string { return s.keyPrefix + "records" }

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// RecordUsage appends the event and returns the persisted record.
func (s *Store) RecordUsage(event guard402.UsageEvent) (guard402.UsageRecord, error) {
	rec := guard402.UsageRecord{UsageEvent: event, ID: uuid.New().String()}

	data, err := json.Marshal(rec)
	if err != nil {
		return guard402.UsageRecord{}, fmt.Errorf("guard402/redis: marshal record: %w", err)
	}

	ctx, cancel := s.ctx()
	defer cancel()

	err = s.client.ZAdd(ctx, s.recordsKey(), goredis.Z{
		Score:  float64(rec.Timestamp.UnixNano()),
		Member: string(data),
	}).Err()
	if err != nil {
		return guard402.UsageRecord{}, fmt.Errorf("guard402/redis: record usage: %w", err)
	}
	return rec, nil
}

// Records returns all records in timestamp order.
func (s *Store) Records() []guard402.UsageRecord {
	return s.rangeRecords("-inf", "+inf")
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

// Reset removes the whole record set in one command.
func (s *Store) Reset() {
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.client.Del(ctx, s.recordsKey()).Err(); err != nil {
		s.onError(fmt.Errorf("guard402/redis: reset: %w", err))
	}
}

func (s *Store) sum(from, to time.Time, scope guard402.BudgetScope) float64 {
	records := s.rangeRecords(
		fmt.Sprintf("%d", from.UnixNano()),
		fmt.Sprintf("%d", to.UnixNano()),
	)

	var total float64
	for _, r := range records {
		if !scope.Matches(r.UsageEvent) {
			continue
		}
		total += r.USDAmount
	}
	return total
}

func (s *Store) rangeRecords(min, max string) []guard402.UsageRecord {
	ctx, cancel := s.ctx()
	defer cancel()

	members, err := s.client.ZRangeByScore(ctx, s.recordsKey(), &goredis.ZRangeBy{
		Min: min,
		Max: max,
	}).Result()
	if err != nil {
		s.onError(fmt.Errorf("guard402/redis: range records: %w", err))
		return nil
	}

	out := make([]guard402.UsageRecord, 0, len(members))
	for _, m := range members {
		var r guard402.UsageRecord
		if err := json.Unmarshal([]byte(m), &r); err != nil {
			s.onError(fmt.Errorf("guard402/redis: unmarshal record: %w", err))
			continue
		}
		out = append(out, r)
	}
	return out
}

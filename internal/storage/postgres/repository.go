package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventdesk/server/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository groups the PostgreSQL-backed stores. Each store works against
// the pool, or against tx when bound to a transaction.
type Repository struct {
	pool *pgxpool.Pool
	db   *connPool
	tx   pgx.Tx
}

// Option configures a Repository.
type Option func(*Repository)

// WithAcquireTimeout bounds how long a store call waits for a free pooled
// connection.
func WithAcquireTimeout(d time.Duration) Option {
	return func(r *Repository) {
		r.db.acquireTimeout = d
	}
}

func NewRepository(pool *pgxpool.Pool, opts ...Option) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	repo := &Repository{pool: pool, db: &connPool{pool: pool}}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

func (r *Repository) Users() *UserRepository {
	return &UserRepository{pool: r.db, tx: r.tx}
}

func (r *Repository) Events() *EventRepository {
	return &EventRepository{pool: r.db, tx: r.tx}
}

func (r *Repository) Participations() *ParticipationRepository {
	return &ParticipationRepository{pool: r.db, tx: r.tx}
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// SchemaVersion reads the migration state recorded by golang-migrate.
func (r *Repository) SchemaVersion(ctx context.Context) (int64, bool, error) {
	var (
		version int64
		dirty   bool
	)
	err := r.pool.QueryRow(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// Inventory counts events by status and the seats held in published events.
func (r *Repository) Inventory(ctx context.Context) (metrics.Inventory, error) {
	inventory := metrics.Inventory{EventsByStatus: map[string]int{}}

	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM events GROUP BY status`)
	if err != nil {
		return metrics.Inventory{}, fmt.Errorf("count events: %w", err)
	}
	var (
		status string
		count  int
	)
	_, err = pgx.ForEachRow(rows, []any{&status, &count}, func() error {
		inventory.EventsByStatus[status] = count
		return nil
	})
	if err != nil {
		return metrics.Inventory{}, fmt.Errorf("count events: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
SELECT count(*)
  FROM participations p
  JOIN events e ON e.id = p.event_id
 WHERE e.status = 'published'
   AND p.status IN ('registered', 'attended')`).Scan(&inventory.SeatsTaken)
	if err != nil {
		return metrics.Inventory{}, fmt.Errorf("count seats: %w", err)
	}
	return inventory, nil
}

// PoolStats summarizes connection pool usage for health output.
func (r *Repository) PoolStats() map[string]any {
	stats := r.pool.Stat()
	return map[string]any{
		"max_connections":      stats.MaxConns(),
		"total_connections":    stats.TotalConns(),
		"idle_connections":     stats.IdleConns(),
		"acquired_connections": stats.AcquiredConns(),
	}
}

type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// withTx runs fn in a transaction, reusing tx when already inside one. A
// failed rollback is joined to fn's error, which stays matchable.
func withTx(ctx context.Context, pool txStarter, tx pgx.Tx, fn func(pgx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func pick(pool *connPool, tx pgx.Tx) queryer {
	if tx != nil {
		return tx
	}
	return pool
}

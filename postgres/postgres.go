package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	dag "github.com/meikuraledutech/dagstore"
)

// PGStore implements dag.Store using PostgreSQL via pgx.
type PGStore struct {
	db        *pgxpool.Pool
	isolation pgx.TxIsoLevel
	coordOpts []dag.Option
	coord     *dag.Coordinator
}

var (
	_ dag.Store    = (*PGStore)(nil)
	_ dag.TxRunner = (*PGStore)(nil)
	_ dag.Tx       = (*pgTx)(nil)
)

// Option configures a PGStore.
type Option func(*PGStore)

// WithIsolation sets the isolation level of mutating transactions.
// Defaults to read committed, where a writer queued on the dag row sees the
// committed edges of the writer ahead of it. Under repeatable read and
// serializable the queued writer fails with SQLSTATE 40001 instead; it is not
// retried.
func WithIsolation(level pgx.TxIsoLevel) Option {
	return func(s *PGStore) { s.isolation = level }
}

// WithCoordinatorOptions passes options to the store's mutation coordinator.
func WithCoordinatorOptions(opts ...dag.Option) Option {
	return func(s *PGStore) { s.coordOpts = append(s.coordOpts, opts...) }
}

// New creates a new PGStore backed by the given pgx connection pool.
func New(db *pgxpool.Pool, opts ...Option) *PGStore {
	s := &PGStore{db: db, isolation: pgx.ReadCommitted}
	for _, opt := range opts {
		opt(s)
	}
	s.coord = dag.NewCoordinator(s, s.coordOpts...)
	return s
}

// ParseIsolation maps a config value to a pgx isolation level.
func ParseIsolation(s string) (pgx.TxIsoLevel, error) {
	switch s {
	case "", "read_committed":
		return pgx.ReadCommitted, nil
	case "repeatable_read":
		return pgx.RepeatableRead, nil
	case "serializable":
		return pgx.Serializable, nil
	default:
		return "", fmt.Errorf("dag: unknown isolation level %q", s)
	}
}

// InTx runs fn in a read-write transaction. It commits when fn returns nil
// and rolls back otherwise.
func (s *PGStore) InTx(ctx context.Context, fn func(tx dag.Tx) error) error {
	return s.inWriteTx(ctx, func(q querier) error {
		return fn(&pgTx{q: q})
	})
}

func (s *PGStore) inWriteTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: s.isolation})
	if err != nil {
		return fmt.Errorf("dag: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("dag: commit: %w", err)
	}
	return nil
}

// snapshot runs fn in a read-only repeatable-read transaction so multi-query
// reads see one consistent state.
func (s *PGStore) snapshot(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("dag: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isNoRows checks if the error is a "no rows" error from pgx.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isForeignKeyViolation reports a 23503 error, raised when a referenced row
// was deleted by a concurrent transaction.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

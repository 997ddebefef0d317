// Package badger implements dag.Store on an embedded BadgerDB.
//
// Records are JSON values under typed key prefixes:
//
//	d/<dag>            dag
//	n/<node>           node (without derived neighbours)
//	dn/<dag>/<node>    dag → node index
//	e/<edge>           edge
//	o/<from>/<edge>    outgoing index
//	i/<to>/<edge>      incoming index
//
// Badger transactions are serializable snapshots with optimistic conflict
// detection. Every structural mutation reads and rewrites its dag key, so two
// writers of the same dag conflict at commit while writers of different dags
// never do. A conflicting commit fails with badger.ErrConflict and is not
// retried.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	dag "github.com/meikuraledutech/dagstore"
)

// Config controls how the database is opened.
type Config struct {
	// Path is the data directory. Required unless InMemory is true.
	Path string

	// InMemory keeps all data in memory. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store implements dag.Store on BadgerDB.
type Store struct {
	db    *badger.DB
	coord *dag.Coordinator
}

var (
	_ dag.Store    = (*Store)(nil)
	_ dag.TxRunner = (*Store)(nil)
	_ dag.Tx       = (*badgerTx)(nil)
)

// Open opens the database described by cfg. opts configure the store's
// mutation coordinator. Caller must call Close when done.
func Open(cfg Config, opts ...dag.Option) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("dag: badger path is required for a persistent database")
	}

	var bopts badger.Options
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("dag: create database directory %s: %w", cfg.Path, err)
		}
		bopts = badger.DefaultOptions(cfg.Path)
	}
	bopts = bopts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("dag: open badger: %w", err)
	}
	return New(db, opts...), nil
}

// New wraps an open database.
func New(db *badger.DB, opts ...dag.Option) *Store {
	s := &Store{db: db}
	s.coord = dag.NewCoordinator(s, opts...)
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn in a read-write transaction. It commits when fn returns nil
// and discards every write otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx dag.Tx) error) error {
	return s.update(ctx, func(t *badgerTx) error { return fn(t) })
}

func (s *Store) update(ctx context.Context, fn func(t *badgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(&badgerTx{txn: txn}); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("dag: commit: %w", err)
	}
	return nil
}

// view runs fn against a read-only snapshot.
func (s *Store) view(ctx context.Context, fn func(t *badgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	return fn(&badgerTx{txn: txn})
}

// CreateSchema is a no-op: badger needs no schema.
func (s *Store) CreateSchema(ctx context.Context) error {
	return ctx.Err()
}

// DropSchema deletes every record.
func (s *Store) DropSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.DropAll()
}

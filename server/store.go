package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	dag "github.com/meikuraledutech/dagstore"
	"github.com/meikuraledutech/dagstore/badger"
	"github.com/meikuraledutech/dagstore/config"
	"github.com/meikuraledutech/dagstore/postgres"
)

// storeHandle is a store the command owns and must close.
type storeHandle interface {
	dag.Store
	Close()
}

type pgHandle struct {
	*postgres.PGStore
	pool *pgxpool.Pool
}

func (h pgHandle) Close() { h.pool.Close() }

type badgerHandle struct {
	*badger.Store
	logger *slog.Logger
}

func (h badgerHandle) Close() {
	if err := h.Store.Close(); err != nil {
		h.logger.Error("close badger", "error", err)
	}
}

// openStore opens the store selected by cfg.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storeHandle, error) {
	mode, err := dag.ParseValidationMode(cfg.Validation.Mode)
	if err != nil {
		return nil, err
	}
	coordOpts := []dag.Option{dag.WithLogger(logger), dag.WithValidationMode(mode)}

	switch cfg.Store.Driver {
	case "postgres":
		isolation, err := postgres.ParseIsolation(cfg.Store.Isolation)
		if err != nil {
			return nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect: %w", err)
		}
		store := postgres.New(pool,
			postgres.WithIsolation(isolation),
			postgres.WithCoordinatorOptions(coordOpts...),
		)
		return pgHandle{PGStore: store, pool: pool}, nil

	case "badger":
		store, err := badger.Open(badger.Config{
			Path:       cfg.Store.BadgerPath,
			InMemory:   cfg.Store.BadgerPath == "",
			SyncWrites: true,
			Logger:     logger.With("component", "badger"),
		}, coordOpts...)
		if err != nil {
			return nil, err
		}
		return badgerHandle{Store: store, logger: logger}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

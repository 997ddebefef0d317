package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	dag "github.com/meikuraledutech/dagstore"
	"github.com/meikuraledutech/dagstore/postgres"
)

// newStore connects to DATABASE_URL and recreates the schema. Tests are
// skipped when it is unset.
func newStore(t *testing.T, opts ...postgres.Option) *postgres.PGStore {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := postgres.New(pool, opts...)
	require.NoError(t, s.DropSchema(ctx))
	require.NoError(t, s.CreateSchema(ctx))
	return s
}

func TestParseIsolation(t *testing.T) {
	for in, want := range map[string]pgx.TxIsoLevel{
		"":                pgx.ReadCommitted,
		"read_committed":  pgx.ReadCommitted,
		"repeatable_read": pgx.RepeatableRead,
		"serializable":    pgx.Serializable,
	} {
		got, err := postgres.ParseIsolation(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := postgres.ParseIsolation("snapshot")
	assert.Error(t, err)
}

func TestPGStore_Scenario(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	d, err := s.CreateDag(ctx, "g")
	require.NoError(t, err)
	a, err := s.CreateNode(ctx, dag.NewNode{DagID: d.ID, Name: "A"})
	require.NoError(t, err)
	b, err := s.CreateNode(ctx, dag.NewNode{DagID: d.ID, Name: "B", Data: json.RawMessage(`{"x":1}`)})
	require.NoError(t, err)

	_, err = s.CreateEdge(ctx, a.ID, b.ID)
	require.NoError(t, err)

	adj, err := s.Serialize(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, dag.Adjacency{a.ID: {b.ID}, b.ID: {}}, adj)

	_, err = s.CreateEdge(ctx, b.ID, a.ID)
	assert.ErrorIs(t, err, dag.ErrCycleDetected)
	after, err := s.Serialize(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, adj, after)

	c, err := s.CreateNode(ctx, dag.NewNode{DagID: d.ID, Name: "C", Predecessors: []string{b.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, c.Predecessors)

	meta, err := s.Metadata(ctx, d.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(meta[b.ID]))
	assert.JSONEq(t, `{}`, string(meta[a.ID]))

	require.NoError(t, s.DeleteNode(ctx, b.ID))
	adj, err = s.Serialize(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, dag.Adjacency{a.ID: {}, c.ID: {}}, adj)

	assert.ErrorIs(t, s.DeleteNode(ctx, b.ID), dag.ErrNodeNotFound)
}

func TestPGStore_NameLimit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	long := strings.Repeat("x", dag.MaxNameLength+1)

	_, err := s.CreateDag(ctx, long)
	assert.ErrorIs(t, err, dag.ErrNameTooLong)

	d, err := s.CreateDag(ctx, "g")
	require.NoError(t, err)
	_, err = s.UpdateDag(ctx, d.ID, long)
	assert.ErrorIs(t, err, dag.ErrNameTooLong)
	_, err = s.CreateNode(ctx, dag.NewNode{DagID: d.ID, Name: long})
	assert.ErrorIs(t, err, dag.ErrNameTooLong)

	n, err := s.CreateNode(ctx, dag.NewNode{DagID: d.ID, Name: strings.Repeat("ø", dag.MaxNameLength)})
	require.NoError(t, err)
	_, err = s.UpdateNode(ctx, n.ID, dag.NodePatch{Name: &long})
	assert.ErrorIs(t, err, dag.ErrNameTooLong)
}

func TestPGStore_EdgeInvariants(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	d1, err := s.CreateDag(ctx, "one")
	require.NoError(t, err)
	d2, err := s.CreateDag(ctx, "two")
	require.NoError(t, err)
	a, err := s.CreateNode(ctx, dag.NewNode{DagID: d1.ID})
	require.NoError(t, err)
	x, err := s.CreateNode(ctx, dag.NewNode{DagID: d2.ID})
	require.NoError(t, err)

	_, err = s.CreateEdge(ctx, a.ID, a.ID)
	assert.ErrorIs(t, err, dag.ErrSelfLoop)
	_, err = s.CreateEdge(ctx, a.ID, x.ID)
	assert.ErrorIs(t, err, dag.ErrCrossDagEdge)
	_, err = s.CreateEdge(ctx, a.ID, dag.NewID())
	assert.ErrorIs(t, err, dag.ErrNodeNotFound)
	_, err = s.CreateNode(ctx, dag.NewNode{DagID: dag.NewID()})
	assert.ErrorIs(t, err, dag.ErrDagNotFound)

	edges, err := s.ListEdges(ctx, d1.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestPGStore_UpdateAndCascade(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	d, err := s.CreateDag(ctx, "g")
	require.NoError(t, err)
	var ids []string
	for _, name := range []string{"A", "B", "C"} {
		n, err := s.CreateNode(ctx, dag.NewNode{DagID: d.ID, Name: name})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}
	ab, err := s.CreateEdge(ctx, ids[0], ids[1])
	require.NoError(t, err)
	_, err = s.CreateEdge(ctx, ids[1], ids[2])
	require.NoError(t, err)

	_, err = s.UpdateEdge(ctx, ab.ID, ids[2], ids[1])
	assert.ErrorIs(t, err, dag.ErrCycleDetected)

	moved, err := s.UpdateEdge(ctx, ab.ID, ids[0], ids[2])
	require.NoError(t, err)
	assert.Equal(t, ids[2], moved.ToNodeID)

	name := "renamed"
	n, err := s.UpdateNode(ctx, ids[0], dag.NodePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", n.Name)
	assert.Equal(t, []string{ids[2]}, n.Successors)

	require.NoError(t, s.DeleteDag(ctx, d.ID))
	_, err = s.GetNode(ctx, ids[0])
	assert.ErrorIs(t, err, dag.ErrNodeNotFound)
	_, err = s.GetEdge(ctx, ab.ID)
	assert.ErrorIs(t, err, dag.ErrEdgeNotFound)
	assert.ErrorIs(t, s.DeleteDag(ctx, d.ID), dag.ErrDagNotFound)
}

func TestPGStore_ConcurrentOppositeEdges(t *testing.T) {
	for _, level := range []pgx.TxIsoLevel{pgx.ReadCommitted, pgx.RepeatableRead, pgx.Serializable} {
		t.Run(string(level), func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t, postgres.WithIsolation(level))

			d, err := s.CreateDag(ctx, "g")
			require.NoError(t, err)
			a, err := s.CreateNode(ctx, dag.NewNode{DagID: d.ID})
			require.NoError(t, err)
			b, err := s.CreateNode(ctx, dag.NewNode{DagID: d.ID})
			require.NoError(t, err)

			for round := 0; round < 20; round++ {
				errs := make([]error, 2)
				var g errgroup.Group
				for i, pair := range [][2]string{{a.ID, b.ID}, {b.ID, a.ID}} {
					g.Go(func() error {
						_, errs[i] = s.CreateEdge(ctx, pair[0], pair[1])
						return nil
					})
				}
				require.NoError(t, g.Wait())

				for _, err := range errs {
					if err != nil {
						assert.True(t, errors.Is(err, dag.ErrCycleDetected) || isSerializationFailure(err),
							"unexpected error: %v", err)
					}
				}

				adj, err := s.Serialize(ctx, d.ID)
				require.NoError(t, err)
				require.True(t, dag.IsAcyclic(adj), "round %d committed a cycle: %v", round, adj)

				edges, err := s.ListEdges(ctx, d.ID)
				require.NoError(t, err)
				for _, e := range edges {
					require.NoError(t, s.DeleteEdge(ctx, e.ID))
				}
			}
		})
	}
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

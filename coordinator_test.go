package dag

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeState is a copy-on-transaction in-memory store.
type fakeState struct {
	dags  map[string]Dag
	nodes map[string]Node
	edges map[string]Edge
}

func (s fakeState) clone() fakeState {
	out := fakeState{
		dags:  make(map[string]Dag, len(s.dags)),
		nodes: make(map[string]Node, len(s.nodes)),
		edges: make(map[string]Edge, len(s.edges)),
	}
	for k, v := range s.dags {
		out.dags[k] = v
	}
	for k, v := range s.nodes {
		out.nodes[k] = v
	}
	for k, v := range s.edges {
		out.edges[k] = v
	}
	return out
}

type fakeRunner struct {
	state     fakeState
	commits   int
	rollbacks int
	locked    []string
	ops       []string
	commitErr error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{state: fakeState{}.clone()}
}

func (r *fakeRunner) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &fakeTx{state: r.state.clone(), runner: r}
	if err := fn(tx); err != nil {
		r.rollbacks++
		return err
	}
	if r.commitErr != nil {
		r.rollbacks++
		return r.commitErr
	}
	r.state = tx.state
	r.commits++
	return nil
}

func (r *fakeRunner) addDag(id string) {
	r.state.dags[id] = Dag{ID: id, Name: id}
}

func (r *fakeRunner) addNode(dagID, id string) {
	r.state.nodes[id] = Node{ID: id, DagID: dagID, CreatedAt: time.Unix(int64(len(r.state.nodes)), 0)}
}

func (r *fakeRunner) adjacency(dagID string) Adjacency {
	tx := &fakeTx{state: r.state}
	nodes, _ := tx.ListNodes(context.Background(), dagID)
	edges, _ := tx.ListEdges(context.Background(), dagID)
	return BuildAdjacency(nodes, edges)
}

type fakeTx struct {
	state  fakeState
	runner *fakeRunner
}

func (t *fakeTx) LockDag(ctx context.Context, dagID string) (*Dag, error) {
	d, ok := t.state.dags[dagID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDagNotFound, dagID)
	}
	t.record("lock_dag")
	if t.runner != nil {
		t.runner.locked = append(t.runner.locked, dagID)
	}
	return &d, nil
}

func (t *fakeTx) GetNode(ctx context.Context, nodeID string) (*Node, error) {
	n, ok := t.state.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	return &n, nil
}

func (t *fakeTx) GetEdge(ctx context.Context, edgeID string) (*Edge, error) {
	e, ok := t.state.edges[edgeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEdgeNotFound, edgeID)
	}
	return &e, nil
}

func (t *fakeTx) InsertNode(ctx context.Context, n *Node) error {
	t.state.nodes[n.ID] = *n
	return nil
}

func (t *fakeTx) record(op string) {
	if t.runner != nil {
		t.runner.ops = append(t.runner.ops, op)
	}
}

func (t *fakeTx) InsertEdge(ctx context.Context, e *Edge) error {
	t.record("insert_edge")
	t.state.edges[e.ID] = *e
	return nil
}

func (t *fakeTx) UpdateEdge(ctx context.Context, e *Edge) error {
	t.record("update_edge")
	if _, ok := t.state.edges[e.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, e.ID)
	}
	t.state.edges[e.ID] = *e
	return nil
}

func (t *fakeTx) ListNodes(ctx context.Context, dagID string) ([]Node, error) {
	var nodes []Node
	for _, n := range t.state.nodes {
		if n.DagID == dagID {
			nodes = append(nodes, n)
		}
	}
	slices.SortFunc(nodes, func(a, b Node) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return nodes, nil
}

func (t *fakeTx) ListEdges(ctx context.Context, dagID string) ([]Edge, error) {
	var edges []Edge
	for _, e := range t.state.edges {
		if t.state.nodes[e.FromNodeID].DagID == dagID {
			edges = append(edges, e)
		}
	}
	slices.SortFunc(edges, func(a, b Edge) int { return strings.Compare(a.ID, b.ID) })
	return edges, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(r *fakeRunner, opts ...Option) *Coordinator {
	return NewCoordinator(r, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func TestCoordinator_CreateEdgeThenReverseIsRejected(t *testing.T) {
	for _, mode := range []ValidationMode{ValidateFull, ValidateReachability} {
		t.Run(mode.String(), func(t *testing.T) {
			ctx := context.Background()
			r := newFakeRunner()
			r.addDag("d")
			r.addNode("d", "a")
			r.addNode("d", "b")
			c := newTestCoordinator(r, WithValidationMode(mode))

			e, err := c.CreateEdge(ctx, "a", "b")
			require.NoError(t, err)
			assert.Equal(t, "a", e.FromNodeID)
			assert.Equal(t, "b", e.ToNodeID)
			assert.Len(t, e.ID, 32)

			_, err = c.CreateEdge(ctx, "b", "a")
			assert.ErrorIs(t, err, ErrCycleDetected)

			assert.Equal(t, 1, r.commits)
			assert.Equal(t, 1, r.rollbacks)
			assert.Len(t, r.state.edges, 1)
			assert.Equal(t, Adjacency{"a": {"b"}, "b": {}}, r.adjacency("d"))
			assert.Equal(t, []string{"d", "d"}, r.locked)
		})
	}
}

func TestCoordinator_SelfLoopRejectedWithoutTransaction(t *testing.T) {
	r := newFakeRunner()
	r.addDag("d")
	r.addNode("d", "a")
	c := newTestCoordinator(r)

	_, err := c.CreateEdge(context.Background(), "a", "a")

	assert.ErrorIs(t, err, ErrSelfLoop)
	assert.Zero(t, r.commits+r.rollbacks, "no transaction is opened")
}

func TestCoordinator_CrossDagEdge(t *testing.T) {
	r := newFakeRunner()
	r.addDag("d1")
	r.addDag("d2")
	r.addNode("d1", "a1")
	r.addNode("d2", "a2")
	c := newTestCoordinator(r)

	_, err := c.CreateEdge(context.Background(), "a1", "a2")

	assert.ErrorIs(t, err, ErrCrossDagEdge)
	assert.Empty(t, r.state.edges)
	assert.Equal(t, 1, r.rollbacks)
}

func TestCoordinator_CreateEdgeMissingEndpoint(t *testing.T) {
	r := newFakeRunner()
	r.addDag("d")
	r.addNode("d", "a")
	c := newTestCoordinator(r)

	_, err := c.CreateEdge(context.Background(), "a", "ghost")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	_, err = c.CreateEdge(context.Background(), "ghost", "a")
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.Empty(t, r.state.edges)
}

func TestCoordinator_CreateNodeWithNeighbours(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := newFakeRunner()
	r.addDag("d")
	r.addNode("d", "a")
	r.addNode("d", "b")
	c := newTestCoordinator(r, WithClock(func() time.Time { return fixed }))

	n, err := c.CreateNode(context.Background(), NewNode{
		DagID:        "d",
		Name:         "c",
		Predecessors: []string{"a", "a"},
		Successors:   []string{"b"},
	})
	require.NoError(t, err)

	assert.Equal(t, "d", n.DagID)
	assert.Equal(t, fixed, n.CreatedAt)
	assert.JSONEq(t, `{}`, string(n.Data))
	assert.Equal(t, []string{"a"}, n.Predecessors, "duplicates are collapsed")
	assert.Equal(t, []string{"b"}, n.Successors)
	assert.Len(t, r.state.edges, 2)
	assert.Equal(t, Adjacency{"a": {n.ID}, "b": {}, n.ID: {"b"}}, r.adjacency("d"))
}

func TestCoordinator_CreateNodeRollsBackOnCycle(t *testing.T) {
	r := newFakeRunner()
	r.addDag("d")
	r.addNode("d", "a")
	c := newTestCoordinator(r)

	_, err := c.CreateNode(context.Background(), NewNode{
		DagID:        "d",
		Predecessors: []string{"a"},
		Successors:   []string{"a"},
	})

	assert.ErrorIs(t, err, ErrCycleDetected)
	assert.Len(t, r.state.nodes, 1, "the new node is rolled back with its edges")
	assert.Empty(t, r.state.edges)
}

func TestCoordinator_CreateNodeMissingReferences(t *testing.T) {
	r := newFakeRunner()
	r.addDag("d")
	c := newTestCoordinator(r)

	_, err := c.CreateNode(context.Background(), NewNode{DagID: "nope"})
	assert.ErrorIs(t, err, ErrDagNotFound)

	_, err = c.CreateNode(context.Background(), NewNode{DagID: "d", Successors: []string{"ghost"}})
	assert.ErrorIs(t, err, ErrNodeNotFound)

	assert.Empty(t, r.state.nodes)
	assert.Equal(t, 0, r.commits)
}

func TestCoordinator_CreateNodeCrossDagNeighbour(t *testing.T) {
	r := newFakeRunner()
	r.addDag("d1")
	r.addDag("d2")
	r.addNode("d2", "other")
	c := newTestCoordinator(r)

	_, err := c.CreateNode(context.Background(), NewNode{DagID: "d1", Predecessors: []string{"other"}})

	assert.ErrorIs(t, err, ErrCrossDagEdge)
	assert.Len(t, r.state.nodes, 1)
}

func TestCoordinator_UpdateEdgeRevalidates(t *testing.T) {
	ctx := context.Background()
	r := newFakeRunner()
	r.addDag("d")
	for _, id := range []string{"a", "b", "c", "x"} {
		r.addNode("d", id)
	}
	c := newTestCoordinator(r)

	for _, pair := range [][2]string{{"a", "b"}, {"b", "c"}} {
		_, err := c.CreateEdge(ctx, pair[0], pair[1])
		require.NoError(t, err)
	}
	ac, err := c.CreateEdge(ctx, "a", "c")
	require.NoError(t, err)

	_, err = c.UpdateEdge(ctx, ac.ID, "c", "a")
	assert.ErrorIs(t, err, ErrCycleDetected)
	assert.Equal(t, "a", r.state.edges[ac.ID].FromNodeID, "rejected update leaves the edge untouched")

	_, err = c.UpdateEdge(ctx, ac.ID, "b", "b")
	assert.ErrorIs(t, err, ErrSelfLoop)

	_, err = c.UpdateEdge(ctx, "ghost", "a", "c")
	assert.ErrorIs(t, err, ErrEdgeNotFound)

	moved, err := c.UpdateEdge(ctx, ac.ID, "x", "c")
	require.NoError(t, err)
	assert.Equal(t, ac.ID, moved.ID)
	assert.Equal(t, Adjacency{"a": {"b"}, "b": {"c"}, "c": {}, "x": {"c"}}, r.adjacency("d"))
}

func TestCoordinator_CommitFailureIsInfrastructure(t *testing.T) {
	r := newFakeRunner()
	r.addDag("d")
	r.addNode("d", "a")
	r.addNode("d", "b")
	r.commitErr = errors.New("connection reset")
	c := newTestCoordinator(r)

	_, err := c.CreateEdge(context.Background(), "a", "b")

	require.Error(t, err)
	assert.False(t, IsDomainError(err))
	assert.Empty(t, r.state.edges)
}

func TestCoordinator_CommitFailureReportedAfterValidation(t *testing.T) {
	r := newFakeRunner()
	r.addDag("d")
	r.addNode("d", "a")
	r.addNode("d", "b")
	r.commitErr = errors.New("dag: commit: Transaction Conflict")

	var buf bytes.Buffer
	c := NewCoordinator(r, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	_, err := c.CreateEdge(context.Background(), "a", "b")

	require.Error(t, err)
	assert.Contains(t, buf.String(), "mutation failed")
	assert.Contains(t, buf.String(), "reached=validated")
}

func TestCoordinator_LocksDagBeforeWritingEdge(t *testing.T) {
	ctx := context.Background()
	r := newFakeRunner()
	r.addDag("d")
	r.addNode("d", "a")
	r.addNode("d", "b")
	r.addNode("d", "c")
	c := newTestCoordinator(r)

	e, err := c.CreateEdge(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"lock_dag", "insert_edge"}, r.ops)

	r.ops = nil
	_, err = c.UpdateEdge(ctx, e.ID, "a", "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"lock_dag", "update_edge"}, r.ops)

	r.ops = nil
	r.addDag("other")
	r.addNode("other", "x")
	_, err = c.CreateEdge(ctx, "a", "x")
	assert.ErrorIs(t, err, ErrCrossDagEdge)
	assert.Empty(t, r.ops, "cross-dag endpoints are rejected before any write")
}

func TestCoordinator_CreateNodeRejectsLongName(t *testing.T) {
	r := newFakeRunner()
	r.addDag("d")
	c := newTestCoordinator(r)

	_, err := c.CreateNode(context.Background(), NewNode{DagID: "d", Name: strings.Repeat("n", MaxNameLength+1)})

	assert.ErrorIs(t, err, ErrNameTooLong)
	assert.Zero(t, r.commits+r.rollbacks)

	n, err := c.CreateNode(context.Background(), NewNode{DagID: "d", Name: strings.Repeat("é", MaxNameLength)})
	require.NoError(t, err)
	assert.Equal(t, MaxNameLength, len([]rune(n.Name)))
}

func TestParseValidationMode(t *testing.T) {
	for in, want := range map[string]ValidationMode{"": ValidateFull, "full": ValidateFull, "reachability": ValidateReachability} {
		got, err := ParseValidationMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseValidationMode("fast")
	assert.Error(t, err)
}

func TestMutationStateString(t *testing.T) {
	assert.Equal(t, "started", StateStarted.String())
	assert.Equal(t, "inserted_raw", StateInsertedRaw.String())
	assert.Equal(t, "validated", StateValidated.String())
	assert.Equal(t, "rejected", StateRejected.String())
}

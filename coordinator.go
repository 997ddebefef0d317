package dag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ValidationMode selects how a mutation is checked for cycles.
type ValidationMode int

const (
	// ValidateFull re-serializes the whole dag and runs a topological sort.
	ValidateFull ValidationMode = iota
	// ValidateReachability checks a single new edge from→to by asking whether
	// from is already reachable from to. Multi-edge mutations still use a full
	// check.
	ValidateReachability
)

func (m ValidationMode) String() string {
	switch m {
	case ValidateFull:
		return "full"
	case ValidateReachability:
		return "reachability"
	default:
		return fmt.Sprintf("ValidationMode(%d)", int(m))
	}
}

// ParseValidationMode parses "full" or "reachability". Empty means full.
func ParseValidationMode(s string) (ValidationMode, error) {
	switch s {
	case "", "full":
		return ValidateFull, nil
	case "reachability":
		return ValidateReachability, nil
	default:
		return ValidateFull, fmt.Errorf("dag: unknown validation mode %q", s)
	}
}

// MutationState is the progress of a single mutation.
type MutationState int

const (
	StateStarted MutationState = iota
	StateInsertedRaw
	StateValidated
	StateRejected
)

func (s MutationState) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateInsertedRaw:
		return "inserted_raw"
	case StateValidated:
		return "validated"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("MutationState(%d)", int(s))
	}
}

// Coordinator runs node and edge creation as insert-then-validate
// transactions: raw rows are written first, the owning dag is re-serialized
// and checked, and any violation rolls the whole transaction back.
//
// A Coordinator holds no locks of its own. Isolation between concurrent
// writers comes from the TxRunner's transactions.
type Coordinator struct {
	runner TxRunner
	logger *slog.Logger
	mode   ValidationMode
	now    func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for rejected and failed mutations.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithValidationMode sets the cycle check strategy.
func WithValidationMode(mode ValidationMode) Option {
	return func(c *Coordinator) { c.mode = mode }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator creates a Coordinator that opens transactions with runner.
func NewCoordinator(runner TxRunner, opts ...Option) *Coordinator {
	c := &Coordinator{
		runner: runner,
		logger: slog.Default(),
		mode:   ValidateFull,
		now:    Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the current UTC time truncated to the microsecond precision
// every backend can store.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// CreateNode persists a node under an existing dag and materializes one edge
// per declared predecessor (pred → node) and successor (node → succ).
//
// Fails with ErrNameTooLong for an oversized name, ErrDagNotFound or
// ErrNodeNotFound for missing references, ErrCrossDagEdge if a declared
// neighbour belongs to another dag and ErrCycleDetected if the declared edges
// close a cycle. Nothing is persisted on failure.
func (c *Coordinator) CreateNode(ctx context.Context, in NewNode) (*Node, error) {
	ctx, m := c.begin(ctx, "create_node", in.DagID)
	if err := ValidateName(in.Name); err != nil {
		m.finish(err)
		return nil, err
	}

	var created *Node
	err := c.runner.InTx(ctx, func(tx Tx) error {
		d, err := tx.LockDag(ctx, in.DagID)
		if err != nil {
			return err
		}

		preds, err := loadNodes(ctx, tx, in.Predecessors)
		if err != nil {
			return err
		}
		succs, err := loadNodes(ctx, tx, in.Successors)
		if err != nil {
			return err
		}
		for _, group := range [][]Node{preds, succs} {
			for _, other := range group {
				if other.DagID != d.ID {
					return fmt.Errorf("%w: node %s belongs to dag %s, not %s",
						ErrCrossDagEdge, other.ID, other.DagID, d.ID)
				}
			}
		}

		now := c.now()
		n := &Node{
			ID:        NewID(),
			DagID:     d.ID,
			Name:      in.Name,
			Data:      NormalizeData(in.Data),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertNode(ctx, n); err != nil {
			return err
		}

		var edges []Edge
		for _, p := range preds {
			edges = append(edges, Edge{ID: NewID(), FromNodeID: p.ID, ToNodeID: n.ID, CreatedAt: now, UpdatedAt: now})
		}
		for _, s := range succs {
			edges = append(edges, Edge{ID: NewID(), FromNodeID: n.ID, ToNodeID: s.ID, CreatedAt: now, UpdatedAt: now})
		}
		for i := range edges {
			if err := tx.InsertEdge(ctx, &edges[i]); err != nil {
				return err
			}
		}
		m.advance(StateInsertedRaw)

		var pending *Edge
		if len(edges) == 1 {
			pending = &edges[0]
		}
		if err := c.validate(ctx, tx, d.ID, pending); err != nil {
			return err
		}
		m.advance(StateValidated)

		out := []Node{*n}
		AttachNeighbours(out, edges)
		created = &out[0]
		return nil
	})
	m.finish(err)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateEdge persists an edge from→to.
//
// Self loops are rejected with ErrSelfLoop before a transaction is opened.
// Missing endpoints fail with ErrNodeNotFound, endpoints in different dags
// with ErrCrossDagEdge and edges that close a cycle with ErrCycleDetected.
//
// The owning dag is locked before the edge row is written, matching the
// dag-then-nodes lock order of DeleteDag.
func (c *Coordinator) CreateEdge(ctx context.Context, fromID, toID string) (*Edge, error) {
	ctx, m := c.begin(ctx, "create_edge", "")
	if fromID == toID {
		err := fmt.Errorf("%w: %s", ErrSelfLoop, fromID)
		m.finish(err)
		return nil, err
	}

	var created *Edge
	err := c.runner.InTx(ctx, func(tx Tx) error {
		dagID, err := lockEndpoints(ctx, tx, m, fromID, toID)
		if err != nil {
			return err
		}

		now := c.now()
		e := &Edge{ID: NewID(), FromNodeID: fromID, ToNodeID: toID, CreatedAt: now, UpdatedAt: now}
		if err := tx.InsertEdge(ctx, e); err != nil {
			return err
		}
		m.advance(StateInsertedRaw)

		if err := c.validate(ctx, tx, dagID, e); err != nil {
			return err
		}
		m.advance(StateValidated)

		created = e
		return nil
	})
	m.finish(err)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateEdge moves an existing edge to new endpoints. The full creation
// invariant set is re-run, as if the edge were deleted and recreated in one
// transaction.
func (c *Coordinator) UpdateEdge(ctx context.Context, edgeID, fromID, toID string) (*Edge, error) {
	ctx, m := c.begin(ctx, "update_edge", "")
	if fromID == toID {
		err := fmt.Errorf("%w: %s", ErrSelfLoop, fromID)
		m.finish(err)
		return nil, err
	}

	var updated *Edge
	err := c.runner.InTx(ctx, func(tx Tx) error {
		e, err := tx.GetEdge(ctx, edgeID)
		if err != nil {
			return err
		}
		dagID, err := lockEndpoints(ctx, tx, m, fromID, toID)
		if err != nil {
			return err
		}

		e.FromNodeID = fromID
		e.ToNodeID = toID
		e.UpdatedAt = c.now()
		if err := tx.UpdateEdge(ctx, e); err != nil {
			return err
		}
		m.advance(StateInsertedRaw)

		if err := c.validate(ctx, tx, dagID, e); err != nil {
			return err
		}
		m.advance(StateValidated)

		updated = e
		return nil
	})
	m.finish(err)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// lockEndpoints loads both endpoints, checks they share a dag and locks it.
func lockEndpoints(ctx context.Context, tx Tx, m *mutation, fromID, toID string) (string, error) {
	from, to, err := loadEndpoints(ctx, tx, fromID, toID)
	if err != nil {
		return "", err
	}
	dagID, err := owningDag(from, to)
	if err != nil {
		return "", err
	}
	m.setDag(dagID)
	if _, err := tx.LockDag(ctx, dagID); err != nil {
		return "", err
	}
	return dagID, nil
}

// validate re-serializes the dag as seen by tx and rejects it if it has a
// cycle. pending is the single edge written by the mutation, if any; it
// enables the reachability shortcut.
func (c *Coordinator) validate(ctx context.Context, tx Tx, dagID string, pending *Edge) error {
	start := time.Now()
	defer func() { validationDuration.Observe(time.Since(start).Seconds()) }()

	nodes, err := tx.ListNodes(ctx, dagID)
	if err != nil {
		return err
	}
	edges, err := tx.ListEdges(ctx, dagID)
	if err != nil {
		return err
	}

	if c.mode == ValidateReachability && pending != nil {
		adj := BuildAdjacency(nodes, without(edges, pending.ID))
		if Reachable(adj, pending.ToNodeID, pending.FromNodeID) {
			return fmt.Errorf("%w: edge %s -> %s", ErrCycleDetected, pending.FromNodeID, pending.ToNodeID)
		}
		return nil
	}

	if !IsAcyclic(BuildAdjacency(nodes, edges)) {
		return fmt.Errorf("%w: dag %s", ErrCycleDetected, dagID)
	}
	return nil
}

// loadNodes fetches each distinct id, failing on the first missing one.
func loadNodes(ctx context.Context, tx Tx, ids []string) ([]Node, error) {
	seen := make(map[string]bool, len(ids))
	nodes := make([]Node, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		n, err := tx.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, nil
}

func loadEndpoints(ctx context.Context, tx Tx, fromID, toID string) (*Node, *Node, error) {
	from, err := tx.GetNode(ctx, fromID)
	if err != nil {
		return nil, nil, err
	}
	to, err := tx.GetNode(ctx, toID)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// owningDag resolves the dag of an edge from its endpoints.
func owningDag(from, to *Node) (string, error) {
	if from.DagID != to.DagID {
		return "", fmt.Errorf("%w: %s is in dag %s, %s is in dag %s",
			ErrCrossDagEdge, from.ID, from.DagID, to.ID, to.DagID)
	}
	return from.DagID, nil
}

// mutation tracks one coordinator call for logs, metrics and tracing.
// StateValidated is reached inside the transaction, so a failed commit is
// logged from that state.
type mutation struct {
	op     string
	dagID  string
	state  MutationState
	span   trace.Span
	logger *slog.Logger
}

func (c *Coordinator) begin(ctx context.Context, op, dagID string) (context.Context, *mutation) {
	ctx, span := tracer.Start(ctx, "dag."+op, trace.WithAttributes(
		attribute.String("dag.op", op),
		attribute.String("dag.validation_mode", c.mode.String()),
	))
	m := &mutation{op: op, state: StateStarted, span: span, logger: c.logger}
	m.setDag(dagID)
	return ctx, m
}

func (m *mutation) setDag(dagID string) {
	if dagID == "" {
		return
	}
	m.dagID = dagID
	m.span.SetAttributes(attribute.String("dag.dag_id", dagID))
}

func (m *mutation) advance(s MutationState) {
	m.state = s
	m.span.AddEvent(s.String())
}

func (m *mutation) finish(err error) {
	defer m.span.End()
	mutationsTotal.WithLabelValues(m.op, resultLabel(err)).Inc()

	if err == nil {
		m.span.SetStatus(codes.Ok, "")
		return
	}

	reached := m.state
	m.advance(StateRejected)
	m.span.RecordError(err)
	m.span.SetStatus(codes.Error, err.Error())

	if IsDomainError(err) {
		m.logger.Debug("mutation rejected",
			"op", m.op, "dag_id", m.dagID, "reached", reached.String(), "reason", err.Error())
		return
	}
	m.logger.Error("mutation failed",
		"op", m.op, "dag_id", m.dagID, "reached", reached.String(), "error", err)
}

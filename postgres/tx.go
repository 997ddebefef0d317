package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	dag "github.com/meikuraledutech/dagstore"
)

const (
	dagColumns  = `id, name, created_at, updated_at`
	nodeColumns = `id, dag_id, name, data, created_at, updated_at`
	edgeColumns = `id, node_from, node_to, created_at, updated_at`
)

// pgTx is the raw dag.Tx view of a pgx transaction.
type pgTx struct {
	q querier
}

// LockDag writes the dag row, which both locks it and marks it changed. Writers
// of the same dag queue on the row; under repeatable read or serializable a
// writer that queued behind a committed one fails with a serialization error
// instead of validating against a stale snapshot. Writers of other dags never
// touch it.
func (t *pgTx) LockDag(ctx context.Context, dagID string) (*dag.Dag, error) {
	d, err := scanDag(t.q.QueryRow(ctx,
		`UPDATE dags SET updated_at = updated_at WHERE id = $1 RETURNING `+dagColumns, dagID))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", dag.ErrDagNotFound, dagID)
		}
		return nil, fmt.Errorf("dag: lock dag: %w", err)
	}
	return d, nil
}

func (t *pgTx) GetNode(ctx context.Context, nodeID string) (*dag.Node, error) {
	return getNode(ctx, t.q, nodeID)
}

func (t *pgTx) GetEdge(ctx context.Context, edgeID string) (*dag.Edge, error) {
	return getEdge(ctx, t.q, edgeID)
}

func (t *pgTx) InsertNode(ctx context.Context, n *dag.Node) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO nodes (id, dag_id, name, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.DagID, n.Name, n.Data, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", dag.ErrDagNotFound, n.DagID)
		}
		return fmt.Errorf("dag: insert node: %w", err)
	}
	return nil
}

func (t *pgTx) InsertEdge(ctx context.Context, e *dag.Edge) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO edges (id, node_from, node_to, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.FromNodeID, e.ToNodeID, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: edge %s -> %s", dag.ErrNodeNotFound, e.FromNodeID, e.ToNodeID)
		}
		return fmt.Errorf("dag: insert edge: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateEdge(ctx context.Context, e *dag.Edge) error {
	ct, err := t.q.Exec(ctx,
		`UPDATE edges SET node_from = $1, node_to = $2, updated_at = $3 WHERE id = $4`,
		e.FromNodeID, e.ToNodeID, e.UpdatedAt, e.ID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: edge %s -> %s", dag.ErrNodeNotFound, e.FromNodeID, e.ToNodeID)
		}
		return fmt.Errorf("dag: update edge: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", dag.ErrEdgeNotFound, e.ID)
	}
	return nil
}

func (t *pgTx) ListNodes(ctx context.Context, dagID string) ([]dag.Node, error) {
	return listNodes(ctx, t.q, dagID)
}

func (t *pgTx) ListEdges(ctx context.Context, dagID string) ([]dag.Edge, error) {
	return listEdges(ctx, t.q, dagID)
}

// ── shared queries ────────────────────────────────────────────────────

func scanDag(row pgx.Row) (*dag.Dag, error) {
	var d dag.Dag
	if err := row.Scan(&d.ID, &d.Name, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanNode(row pgx.Row) (*dag.Node, error) {
	var n dag.Node
	if err := row.Scan(&n.ID, &n.DagID, &n.Name, &n.Data, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func scanEdge(row pgx.Row) (*dag.Edge, error) {
	var e dag.Edge
	if err := row.Scan(&e.ID, &e.FromNodeID, &e.ToNodeID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func getDag(ctx context.Context, q querier, dagID string) (*dag.Dag, error) {
	d, err := scanDag(q.QueryRow(ctx, `SELECT `+dagColumns+` FROM dags WHERE id = $1`, dagID))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", dag.ErrDagNotFound, dagID)
		}
		return nil, fmt.Errorf("dag: get dag: %w", err)
	}
	return d, nil
}

func getNode(ctx context.Context, q querier, nodeID string) (*dag.Node, error) {
	n, err := scanNode(q.QueryRow(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = $1`, nodeID))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", dag.ErrNodeNotFound, nodeID)
		}
		return nil, fmt.Errorf("dag: get node: %w", err)
	}
	return n, nil
}

func getEdge(ctx context.Context, q querier, edgeID string) (*dag.Edge, error) {
	e, err := scanEdge(q.QueryRow(ctx, `SELECT `+edgeColumns+` FROM edges WHERE id = $1`, edgeID))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", dag.ErrEdgeNotFound, edgeID)
		}
		return nil, fmt.Errorf("dag: get edge: %w", err)
	}
	return e, nil
}

// listNodes returns all nodes of a dag, ordered by created_at.
// Returns an empty slice (not nil) if none found.
func listNodes(ctx context.Context, q querier, dagID string) ([]dag.Node, error) {
	rows, err := q.Query(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE dag_id = $1 ORDER BY created_at, id`, dagID)
	if err != nil {
		return nil, fmt.Errorf("dag: list nodes: %w", err)
	}
	defer rows.Close()

	nodes := []dag.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("dag: scan node: %w", err)
		}
		nodes = append(nodes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dag: rows nodes: %w", err)
	}
	return nodes, nil
}

// listEdges returns all edges of a dag, ordered by created_at. An edge
// belongs to the dag of its source node.
func listEdges(ctx context.Context, q querier, dagID string) ([]dag.Edge, error) {
	rows, err := q.Query(ctx, `
		SELECT e.id, e.node_from, e.node_to, e.created_at, e.updated_at
		FROM edges e
		JOIN nodes n ON n.id = e.node_from
		WHERE n.dag_id = $1
		ORDER BY e.created_at, e.id`, dagID)
	if err != nil {
		return nil, fmt.Errorf("dag: list edges: %w", err)
	}
	return collectEdges(rows)
}

func collectEdges(rows pgx.Rows) ([]dag.Edge, error) {
	defer rows.Close()

	edges := []dag.Edge{}
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("dag: scan edge: %w", err)
		}
		edges = append(edges, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dag: rows edges: %w", err)
	}
	return edges, nil
}

package postgres

import (
	"context"
	"fmt"

	dag "github.com/meikuraledutech/dagstore"
)

// CreateNode inserts a node and its declared edges in one transaction.
// The whole insert is rolled back if a declared edge would close a cycle.
func (s *PGStore) CreateNode(ctx context.Context, in dag.NewNode) (*dag.Node, error) {
	return s.coord.CreateNode(ctx, in)
}

// GetNode fetches a single node by its ID, with its predecessors and successors.
// Returns ErrNodeNotFound if it doesn't exist.
func (s *PGStore) GetNode(ctx context.Context, nodeID string) (*dag.Node, error) {
	var node *dag.Node
	err := s.snapshot(ctx, func(q querier) error {
		n, err := getNode(ctx, q, nodeID)
		if err != nil {
			return err
		}
		node, err = withNeighbours(ctx, q, n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// ListNodes returns all nodes for a dagID, ordered by created_at.
// Returns ErrDagNotFound if the dag doesn't exist.
func (s *PGStore) ListNodes(ctx context.Context, dagID string) ([]dag.Node, error) {
	var nodes []dag.Node
	err := s.snapshot(ctx, func(q querier) error {
		if _, err := getDag(ctx, q, dagID); err != nil {
			return err
		}
		var err error
		nodes, err = listNodes(ctx, q, dagID)
		if err != nil {
			return err
		}
		edges, err := listEdges(ctx, q, dagID)
		if err != nil {
			return err
		}
		dag.AttachNeighbours(nodes, edges)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// UpdateNode updates the name and/or data of an existing node.
// The owning dag and the node's edges are not touched.
// Returns ErrNodeNotFound if the node doesn't exist.
func (s *PGStore) UpdateNode(ctx context.Context, nodeID string, patch dag.NodePatch) (*dag.Node, error) {
	if patch.Name != nil {
		if err := dag.ValidateName(*patch.Name); err != nil {
			return nil, err
		}
	}
	var data any
	if patch.Data != nil {
		data = patch.Data
	}

	var node *dag.Node
	err := s.inWriteTx(ctx, func(q querier) error {
		n, err := scanNode(q.QueryRow(ctx, `
			UPDATE nodes
			SET name = COALESCE($1, name), data = COALESCE($2, data), updated_at = $3
			WHERE id = $4
			RETURNING `+nodeColumns,
			patch.Name, data, dag.Now(), nodeID,
		))
		if err != nil {
			if isNoRows(err) {
				return fmt.Errorf("%w: %s", dag.ErrNodeNotFound, nodeID)
			}
			return fmt.Errorf("dag: update node: %w", err)
		}
		node, err = withNeighbours(ctx, q, n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// DeleteNode deletes a node by its ID.
// Associated edges are cascade-deleted by the DB.
// Returns ErrNodeNotFound if the node doesn't exist.
func (s *PGStore) DeleteNode(ctx context.Context, nodeID string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM nodes WHERE id = $1`, nodeID)
	if err != nil {
		return fmt.Errorf("dag: delete node: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", dag.ErrNodeNotFound, nodeID)
	}
	return nil
}

// withNeighbours fills the derived predecessors and successors of n.
func withNeighbours(ctx context.Context, q querier, n *dag.Node) (*dag.Node, error) {
	rows, err := q.Query(ctx,
		`SELECT `+edgeColumns+` FROM edges WHERE node_from = $1 OR node_to = $1 ORDER BY created_at, id`, n.ID)
	if err != nil {
		return nil, fmt.Errorf("dag: node edges: %w", err)
	}
	edges, err := collectEdges(rows)
	if err != nil {
		return nil, err
	}
	out := []dag.Node{*n}
	dag.AttachNeighbours(out, edges)
	return &out[0], nil
}

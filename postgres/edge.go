package postgres

import (
	"context"
	"fmt"

	dag "github.com/meikuraledutech/dagstore"
)

// CreateEdge inserts a single edge between two existing nodes of the same dag.
// The insert is rolled back if it would create a cycle.
func (s *PGStore) CreateEdge(ctx context.Context, fromID, toID string) (*dag.Edge, error) {
	return s.coord.CreateEdge(ctx, fromID, toID)
}

// GetEdge fetches a single edge by its ID.
// Returns ErrEdgeNotFound if it doesn't exist.
func (s *PGStore) GetEdge(ctx context.Context, edgeID string) (*dag.Edge, error) {
	return getEdge(ctx, s.db, edgeID)
}

// ListEdges returns all edges for a dagID, ordered by created_at.
// Returns ErrDagNotFound if the dag doesn't exist.
func (s *PGStore) ListEdges(ctx context.Context, dagID string) ([]dag.Edge, error) {
	var edges []dag.Edge
	err := s.snapshot(ctx, func(q querier) error {
		if _, err := getDag(ctx, q, dagID); err != nil {
			return err
		}
		var err error
		edges, err = listEdges(ctx, q, dagID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// UpdateEdge moves an edge to new endpoints, re-validating every edge invariant.
// Returns ErrEdgeNotFound if the edge doesn't exist.
func (s *PGStore) UpdateEdge(ctx context.Context, edgeID, fromID, toID string) (*dag.Edge, error) {
	return s.coord.UpdateEdge(ctx, edgeID, fromID, toID)
}

// DeleteEdge deletes an edge by its ID.
// Returns ErrEdgeNotFound if the edge doesn't exist.
func (s *PGStore) DeleteEdge(ctx context.Context, edgeID string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM edges WHERE id = $1`, edgeID)
	if err != nil {
		return fmt.Errorf("dag: delete edge: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", dag.ErrEdgeNotFound, edgeID)
	}
	return nil
}

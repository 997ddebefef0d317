package postgres

import (
	"context"
	"encoding/json"

	dag "github.com/meikuraledutech/dagstore"
)

// Serialize returns the adjacency mapping of a dag from one consistent snapshot.
// Returns ErrDagNotFound if the dag doesn't exist.
func (s *PGStore) Serialize(ctx context.Context, dagID string) (dag.Adjacency, error) {
	var adj dag.Adjacency
	err := s.snapshot(ctx, func(q querier) error {
		if _, err := getDag(ctx, q, dagID); err != nil {
			return err
		}
		nodes, err := listNodes(ctx, q, dagID)
		if err != nil {
			return err
		}
		edges, err := listEdges(ctx, q, dagID)
		if err != nil {
			return err
		}
		adj = dag.BuildAdjacency(nodes, edges)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return adj, nil
}

// Metadata returns each node's raw data payload keyed by node ID.
// Returns ErrDagNotFound if the dag doesn't exist.
func (s *PGStore) Metadata(ctx context.Context, dagID string) (map[string]json.RawMessage, error) {
	var out map[string]json.RawMessage
	err := s.snapshot(ctx, func(q querier) error {
		if _, err := getDag(ctx, q, dagID); err != nil {
			return err
		}
		nodes, err := listNodes(ctx, q, dagID)
		if err != nil {
			return err
		}
		out = dag.MetadataOf(nodes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

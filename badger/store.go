package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	dag "github.com/meikuraledutech/dagstore"
)

// CreateDag persists a new, empty dag.
func (s *Store) CreateDag(ctx context.Context, name string) (*dag.Dag, error) {
	if err := dag.ValidateName(name); err != nil {
		return nil, err
	}
	now := dag.Now()
	d := &dag.Dag{ID: dag.NewID(), Name: name, CreatedAt: now, UpdatedAt: now}
	err := s.update(ctx, func(t *badgerTx) error {
		if err := t.put(dagKey(d.ID), d); err != nil {
			return fmt.Errorf("dag: insert dag: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetDag fetches a single dag by its ID.
func (s *Store) GetDag(ctx context.Context, dagID string) (*dag.Dag, error) {
	var d *dag.Dag
	err := s.view(ctx, func(t *badgerTx) error {
		var err error
		d, err = t.getDag(dagID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDags returns every dag, most recently updated first.
func (s *Store) ListDags(ctx context.Context) ([]dag.Dag, error) {
	dags := []dag.Dag{}
	err := s.view(ctx, func(t *badgerTx) error {
		for _, id := range t.suffixes([]byte("d/")) {
			d, err := t.getDag(id)
			if err != nil {
				return err
			}
			dags = append(dags, *d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(dags, func(a, b dag.Dag) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return dags, nil
}

// UpdateDag renames a dag.
func (s *Store) UpdateDag(ctx context.Context, dagID, name string) (*dag.Dag, error) {
	if err := dag.ValidateName(name); err != nil {
		return nil, err
	}
	var d *dag.Dag
	err := s.update(ctx, func(t *badgerTx) error {
		var err error
		if d, err = t.getDag(dagID); err != nil {
			return err
		}
		d.Name = name
		d.UpdatedAt = dag.Now()
		if err := t.put(dagKey(dagID), d); err != nil {
			return fmt.Errorf("dag: update dag: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteDag deletes a dag, all of its nodes and every edge touching them in
// one transaction.
func (s *Store) DeleteDag(ctx context.Context, dagID string) error {
	return s.update(ctx, func(t *badgerTx) error {
		if _, err := t.getDag(dagID); err != nil {
			return err
		}
		for _, nodeID := range t.suffixes(dagNodePrefix(dagID)) {
			n, err := t.GetNode(ctx, nodeID)
			if err != nil {
				return err
			}
			if err := t.deleteNode(ctx, n); err != nil {
				return err
			}
		}
		if err := t.txn.Delete(dagKey(dagID)); err != nil {
			return fmt.Errorf("dag: delete dag: %w", err)
		}
		return nil
	})
}

// CreateNode inserts a node and its declared edges in one transaction.
func (s *Store) CreateNode(ctx context.Context, in dag.NewNode) (*dag.Node, error) {
	return s.coord.CreateNode(ctx, in)
}

// GetNode fetches a single node with its predecessors and successors.
func (s *Store) GetNode(ctx context.Context, nodeID string) (*dag.Node, error) {
	var node *dag.Node
	err := s.view(ctx, func(t *badgerTx) error {
		n, err := t.GetNode(ctx, nodeID)
		if err != nil {
			return err
		}
		node, err = t.withNeighbours(ctx, n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// ListNodes returns all nodes of a dag, ordered by creation time.
func (s *Store) ListNodes(ctx context.Context, dagID string) ([]dag.Node, error) {
	var nodes []dag.Node
	err := s.view(ctx, func(t *badgerTx) error {
		if _, err := t.getDag(dagID); err != nil {
			return err
		}
		var err error
		if nodes, err = t.ListNodes(ctx, dagID); err != nil {
			return err
		}
		edges, err := t.ListEdges(ctx, dagID)
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

// UpdateNode updates the name and/or data of a node.
func (s *Store) UpdateNode(ctx context.Context, nodeID string, patch dag.NodePatch) (*dag.Node, error) {
	if patch.Name != nil {
		if err := dag.ValidateName(*patch.Name); err != nil {
			return nil, err
		}
	}
	var node *dag.Node
	err := s.update(ctx, func(t *badgerTx) error {
		n, err := t.GetNode(ctx, nodeID)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			n.Name = *patch.Name
		}
		if patch.Data != nil {
			n.Data = patch.Data
		}
		n.UpdatedAt = dag.Now()
		if err := t.put(nodeKey(nodeID), n); err != nil {
			return fmt.Errorf("dag: update node: %w", err)
		}
		node, err = t.withNeighbours(ctx, n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// DeleteNode deletes a node and every edge touching it.
func (s *Store) DeleteNode(ctx context.Context, nodeID string) error {
	return s.update(ctx, func(t *badgerTx) error {
		n, err := t.GetNode(ctx, nodeID)
		if err != nil {
			return err
		}
		if _, err := t.LockDag(ctx, n.DagID); err != nil {
			return err
		}
		return t.deleteNode(ctx, n)
	})
}

// CreateEdge inserts an edge between two nodes of the same dag.
func (s *Store) CreateEdge(ctx context.Context, fromID, toID string) (*dag.Edge, error) {
	return s.coord.CreateEdge(ctx, fromID, toID)
}

// GetEdge fetches a single edge by its ID.
func (s *Store) GetEdge(ctx context.Context, edgeID string) (*dag.Edge, error) {
	var e *dag.Edge
	err := s.view(ctx, func(t *badgerTx) error {
		var err error
		e, err = t.GetEdge(ctx, edgeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListEdges returns all edges of a dag, ordered by creation time.
func (s *Store) ListEdges(ctx context.Context, dagID string) ([]dag.Edge, error) {
	var edges []dag.Edge
	err := s.view(ctx, func(t *badgerTx) error {
		if _, err := t.getDag(dagID); err != nil {
			return err
		}
		var err error
		edges, err = t.ListEdges(ctx, dagID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// UpdateEdge moves an edge to new endpoints, re-validating every edge invariant.
func (s *Store) UpdateEdge(ctx context.Context, edgeID, fromID, toID string) (*dag.Edge, error) {
	return s.coord.UpdateEdge(ctx, edgeID, fromID, toID)
}

// DeleteEdge deletes an edge by its ID.
func (s *Store) DeleteEdge(ctx context.Context, edgeID string) error {
	return s.update(ctx, func(t *badgerTx) error {
		e, err := t.GetEdge(ctx, edgeID)
		if err != nil {
			return err
		}
		from, err := t.GetNode(ctx, e.FromNodeID)
		if err == nil {
			if _, err := t.LockDag(ctx, from.DagID); err != nil {
				return err
			}
		} else if !errors.Is(err, dag.ErrNotFound) {
			return err
		}
		return t.deleteEdge(e)
	})
}

// Serialize returns the adjacency mapping of a dag from one snapshot.
func (s *Store) Serialize(ctx context.Context, dagID string) (dag.Adjacency, error) {
	var adj dag.Adjacency
	err := s.view(ctx, func(t *badgerTx) error {
		if _, err := t.getDag(dagID); err != nil {
			return err
		}
		nodes, err := t.ListNodes(ctx, dagID)
		if err != nil {
			return err
		}
		edges, err := t.ListEdges(ctx, dagID)
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
func (s *Store) Metadata(ctx context.Context, dagID string) (map[string]json.RawMessage, error) {
	var out map[string]json.RawMessage
	err := s.view(ctx, func(t *badgerTx) error {
		if _, err := t.getDag(dagID); err != nil {
			return err
		}
		nodes, err := t.ListNodes(ctx, dagID)
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

func (t *badgerTx) withNeighbours(ctx context.Context, n *dag.Node) (*dag.Node, error) {
	edges, err := t.nodeEdges(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	out := []dag.Node{*n}
	dag.AttachNeighbours(out, edges)
	return &out[0], nil
}

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	dag "github.com/meikuraledutech/dagstore"
)

func dagKey(id string) []byte { return []byte("d/" + id) }
func nodeKey(id string) []byte { return []byte("n/" + id) }
func edgeKey(id string) []byte { return []byte("e/" + id) }
func dagNodeKey(dagID, id string) []byte { return []byte("dn/" + dagID + "/" + id) }
func outKey(from, id string) []byte { return []byte("o/" + from + "/" + id) }
func inKey(to, id string) []byte { return []byte("i/" + to + "/" + id) }

func dagNodePrefix(dagID string) []byte { return []byte("dn/" + dagID + "/") }
func outPrefix(from string) []byte { return []byte("o/" + from + "/") }
func inPrefix(to string) []byte { return []byte("i/" + to + "/") }

// badgerTx is the raw dag.Tx view of a badger transaction.
type badgerTx struct {
	txn *badger.Txn
}

func (t *badgerTx) get(key []byte, v any) error {
	item, err := t.txn.Get(key)
	if err != nil {
		return err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func (t *badgerTx) put(key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.txn.Set(key, raw)
}

// suffixes returns the last key segment of every key under prefix.
// The iterator is closed before returning so callers may write afterwards.
func (t *badgerTx) suffixes(prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := t.txn.NewIterator(opts)
	defer it.Close()

	var out []string
	for it.Rewind(); it.Valid(); it.Next() {
		key := string(it.Item().Key())
		out = append(out, key[strings.LastIndexByte(key, '/')+1:])
	}
	return out
}

func (t *badgerTx) getDag(dagID string) (*dag.Dag, error) {
	var d dag.Dag
	if err := t.get(dagKey(dagID), &d); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", dag.ErrDagNotFound, dagID)
		}
		return nil, fmt.Errorf("dag: get dag: %w", err)
	}
	return &d, nil
}

// LockDag reads and rewrites the dag key, so any other transaction that
// touched the same dag fails at commit with badger.ErrConflict.
func (t *badgerTx) LockDag(ctx context.Context, dagID string) (*dag.Dag, error) {
	d, err := t.getDag(dagID)
	if err != nil {
		return nil, err
	}
	if err := t.put(dagKey(dagID), d); err != nil {
		return nil, fmt.Errorf("dag: lock dag: %w", err)
	}
	return d, nil
}

func (t *badgerTx) GetNode(ctx context.Context, nodeID string) (*dag.Node, error) {
	var n dag.Node
	if err := t.get(nodeKey(nodeID), &n); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", dag.ErrNodeNotFound, nodeID)
		}
		return nil, fmt.Errorf("dag: get node: %w", err)
	}
	n.Predecessors, n.Successors = nil, nil
	return &n, nil
}

func (t *badgerTx) GetEdge(ctx context.Context, edgeID string) (*dag.Edge, error) {
	var e dag.Edge
	if err := t.get(edgeKey(edgeID), &e); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", dag.ErrEdgeNotFound, edgeID)
		}
		return nil, fmt.Errorf("dag: get edge: %w", err)
	}
	return &e, nil
}

func (t *badgerTx) InsertNode(ctx context.Context, n *dag.Node) error {
	stored := *n
	stored.Predecessors, stored.Successors = nil, nil
	if err := t.put(nodeKey(n.ID), stored); err != nil {
		return fmt.Errorf("dag: insert node: %w", err)
	}
	if err := t.txn.Set(dagNodeKey(n.DagID, n.ID), nil); err != nil {
		return fmt.Errorf("dag: insert node: %w", err)
	}
	return nil
}

func (t *badgerTx) InsertEdge(ctx context.Context, e *dag.Edge) error {
	if err := t.put(edgeKey(e.ID), e); err != nil {
		return fmt.Errorf("dag: insert edge: %w", err)
	}
	if err := t.txn.Set(outKey(e.FromNodeID, e.ID), nil); err != nil {
		return fmt.Errorf("dag: insert edge: %w", err)
	}
	if err := t.txn.Set(inKey(e.ToNodeID, e.ID), nil); err != nil {
		return fmt.Errorf("dag: insert edge: %w", err)
	}
	return nil
}

func (t *badgerTx) UpdateEdge(ctx context.Context, e *dag.Edge) error {
	old, err := t.GetEdge(ctx, e.ID)
	if err != nil {
		return err
	}
	if err := t.unindexEdge(old); err != nil {
		return err
	}
	return t.InsertEdge(ctx, e)
}

func (t *badgerTx) ListNodes(ctx context.Context, dagID string) ([]dag.Node, error) {
	nodes := []dag.Node{}
	for _, id := range t.suffixes(dagNodePrefix(dagID)) {
		n, err := t.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	slices.SortFunc(nodes, func(a, b dag.Node) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return nodes, nil
}

// ListEdges returns the edges leaving the dag's nodes. Edges never span two
// dags, so this is every edge of the dag.
func (t *badgerTx) ListEdges(ctx context.Context, dagID string) ([]dag.Edge, error) {
	edges := []dag.Edge{}
	for _, nodeID := range t.suffixes(dagNodePrefix(dagID)) {
		for _, edgeID := range t.suffixes(outPrefix(nodeID)) {
			e, err := t.GetEdge(ctx, edgeID)
			if err != nil {
				return nil, err
			}
			edges = append(edges, *e)
		}
	}
	sortEdges(edges)
	return edges, nil
}

// nodeEdges returns every edge touching a node.
func (t *badgerTx) nodeEdges(ctx context.Context, nodeID string) ([]dag.Edge, error) {
	ids := append(t.suffixes(outPrefix(nodeID)), t.suffixes(inPrefix(nodeID))...)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	edges := make([]dag.Edge, 0, len(ids))
	for _, id := range ids {
		e, err := t.GetEdge(ctx, id)
		if err != nil {
			return nil, err
		}
		edges = append(edges, *e)
	}
	sortEdges(edges)
	return edges, nil
}

func (t *badgerTx) unindexEdge(e *dag.Edge) error {
	if err := t.txn.Delete(outKey(e.FromNodeID, e.ID)); err != nil {
		return fmt.Errorf("dag: delete edge: %w", err)
	}
	if err := t.txn.Delete(inKey(e.ToNodeID, e.ID)); err != nil {
		return fmt.Errorf("dag: delete edge: %w", err)
	}
	return nil
}

func (t *badgerTx) deleteEdge(e *dag.Edge) error {
	if err := t.unindexEdge(e); err != nil {
		return err
	}
	if err := t.txn.Delete(edgeKey(e.ID)); err != nil {
		return fmt.Errorf("dag: delete edge: %w", err)
	}
	return nil
}

// deleteNode removes a node and cascades to every edge touching it.
func (t *badgerTx) deleteNode(ctx context.Context, n *dag.Node) error {
	edges, err := t.nodeEdges(ctx, n.ID)
	if err != nil {
		return err
	}
	for i := range edges {
		if err := t.deleteEdge(&edges[i]); err != nil {
			return err
		}
	}
	if err := t.txn.Delete(dagNodeKey(n.DagID, n.ID)); err != nil {
		return fmt.Errorf("dag: delete node: %w", err)
	}
	if err := t.txn.Delete(nodeKey(n.ID)); err != nil {
		return fmt.Errorf("dag: delete node: %w", err)
	}
	return nil
}

func sortEdges(edges []dag.Edge) {
	slices.SortFunc(edges, func(a, b dag.Edge) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

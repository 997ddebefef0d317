package dag

import "context"

// Tx is the raw view of a store inside one atomic transaction.
//
// Implementations read and write rows without checking graph invariants;
// that is the Coordinator's job. Missing rows are reported with the matching
// Err*NotFound error. Nodes returned by a Tx carry no derived neighbours.
type Tx interface {
	// LockDag returns the dag and holds it until the transaction ends, so
	// concurrent mutations of the same dag are serialized. Mutations of other
	// dags are not affected.
	LockDag(ctx context.Context, dagID string) (*Dag, error)

	GetNode(ctx context.Context, nodeID string) (*Node, error)
	GetEdge(ctx context.Context, edgeID string) (*Edge, error)

	InsertNode(ctx context.Context, n *Node) error
	InsertEdge(ctx context.Context, e *Edge) error
	// UpdateEdge rewrites the endpoints and UpdatedAt of an existing edge.
	UpdateEdge(ctx context.Context, e *Edge) error

	// ListNodes and ListEdges return the dag's rows ordered by creation time.
	ListNodes(ctx context.Context, dagID string) ([]Node, error)
	ListEdges(ctx context.Context, dagID string) ([]Edge, error)
}

// TxRunner opens transactions for a Coordinator.
//
// InTx calls fn inside a new transaction. The transaction commits if fn
// returns nil and rolls back otherwise, so a failed fn leaves no trace.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

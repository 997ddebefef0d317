package dag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrNotFound is the base of every not-found error. Use errors.Is to test for it.
var ErrNotFound = errors.New("not found")

var (
	ErrDagNotFound  = fmt.Errorf("dag: dag %w", ErrNotFound)
	ErrNodeNotFound = fmt.Errorf("dag: node %w", ErrNotFound)
	ErrEdgeNotFound = fmt.Errorf("dag: edge %w", ErrNotFound)

	ErrSelfLoop      = errors.New("dag: edge cannot have the same source and destination node")
	ErrCrossDagEdge  = errors.New("dag: edge cannot have different source and destination dag")
	ErrCycleDetected = errors.New("dag: cycle detected, graph is not acyclic")

	ErrNameTooLong = fmt.Errorf("dag: name longer than %d characters", MaxNameLength)

	ErrInvalidID = errors.New("dag: invalid id")
)

// MaxNameLength is the longest dag or node name, in characters.
const MaxNameLength = 255

// ValidateName rejects names longer than MaxNameLength characters.
func ValidateName(name string) error {
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return fmt.Errorf("%w: got %d", ErrNameTooLong, n)
	}
	return nil
}

// IsDomainError reports whether err is one of the graph-integrity failures
// (not found, self loop, cross-dag edge, cycle) or a rejected name. Anything
// else is an infrastructure failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNameTooLong) ||
		errors.Is(err, ErrSelfLoop) ||
		errors.Is(err, ErrCrossDagEdge) ||
		errors.Is(err, ErrCycleDetected)
}

// Store defines the contract for persisting and retrieving DAGs.
//
// Every mutation runs in a single transaction. CreateNode, CreateEdge and
// UpdateEdge go through a Coordinator and never leave a cycle behind.
// Get, Update and Delete report a missing entity with the matching
// Err*NotFound error.
// Dag and node names longer than MaxNameLength fail with ErrNameTooLong.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Dags
	CreateDag(ctx context.Context, name string) (*Dag, error)
	GetDag(ctx context.Context, dagID string) (*Dag, error)
	ListDags(ctx context.Context) ([]Dag, error)
	UpdateDag(ctx context.Context, dagID, name string) (*Dag, error)
	DeleteDag(ctx context.Context, dagID string) error

	// Nodes
	CreateNode(ctx context.Context, in NewNode) (*Node, error)
	GetNode(ctx context.Context, nodeID string) (*Node, error)
	ListNodes(ctx context.Context, dagID string) ([]Node, error)
	UpdateNode(ctx context.Context, nodeID string, patch NodePatch) (*Node, error)
	DeleteNode(ctx context.Context, nodeID string) error

	// Edges
	CreateEdge(ctx context.Context, fromID, toID string) (*Edge, error)
	GetEdge(ctx context.Context, edgeID string) (*Edge, error)
	ListEdges(ctx context.Context, dagID string) ([]Edge, error)
	UpdateEdge(ctx context.Context, edgeID, fromID, toID string) (*Edge, error)
	DeleteEdge(ctx context.Context, edgeID string) error

	// Export
	Serialize(ctx context.Context, dagID string) (Adjacency, error)
	Metadata(ctx context.Context, dagID string) (map[string]json.RawMessage, error)
}

// MetadataOf maps each node ID to its raw payload.
func MetadataOf(nodes []Node) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(nodes))
	for _, n := range nodes {
		out[n.ID] = NormalizeData(n.Data)
	}
	return out
}

package dag

import (
	"encoding/json"
	"time"
)

// Dag is a named container enforcing acyclicity over its nodes and edges.
type Dag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Node represents a vertex in a Dag.
// Predecessors and Successors are derived from the edge set on every read and are never persisted.
type Node struct {
	ID           string          `json:"id"`
	DagID        string          `json:"dag_id"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	Predecessors []string        `json:"predecessors"`
	Successors   []string        `json:"successors"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Edge represents a directed connection between two nodes of the same Dag.
// The owning Dag is derived from the endpoints, not stored.
type Edge struct {
	ID         string    `json:"id"`
	FromNodeID string    `json:"from_node_id"`
	ToNodeID   string    `json:"to_node_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewNode is the input to CreateNode.
// Predecessors and Successors are existing node IDs; one edge is created per entry.
type NewNode struct {
	DagID        string
	Name         string
	Data         json.RawMessage
	Predecessors []string
	Successors   []string
}

// NodePatch carries the mutable fields of a node. Nil fields are left unchanged.
type NodePatch struct {
	Name *string
	Data json.RawMessage
}

// emptyData is stored for nodes created without a payload.
var emptyData = json.RawMessage(`{}`)

// NormalizeData returns data, or an empty JSON object when data is empty.
func NormalizeData(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return emptyData
	}
	return data
}

// AttachNeighbours fills the derived Predecessors and Successors of nodes from edges.
// Edges touching nodes outside the slice are ignored.
func AttachNeighbours(nodes []Node, edges []Edge) {
	index := make(map[string]int, len(nodes))
	for i := range nodes {
		index[nodes[i].ID] = i
		nodes[i].Predecessors = []string{}
		nodes[i].Successors = []string{}
	}
	for _, e := range edges {
		if i, ok := index[e.FromNodeID]; ok {
			nodes[i].Successors = appendUnique(nodes[i].Successors, e.ToNodeID)
		}
		if i, ok := index[e.ToNodeID]; ok {
			nodes[i].Predecessors = appendUnique(nodes[i].Predecessors, e.FromNodeID)
		}
	}
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}

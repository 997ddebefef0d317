package api

import (
	"encoding/json"
	"time"

	dag "github.com/meikuraledutech/dagstore"
)

type dagRequest struct {
	Name string `json:"name" validate:"max=255"`
}

type dagResponse struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// nodeCreateRequest lists node ids as canonical UUIDs; omitted lists mean no edges.
type nodeCreateRequest struct {
	Name         string          `json:"name" validate:"max=255"`
	Data         json.RawMessage `json:"data"`
	Dag          string          `json:"dag" validate:"required"`
	Predecessors []string        `json:"predecessors"`
	Successors   []string        `json:"successors"`
}

// nodeUpdateRequest only carries the mutable fields. dag, predecessors and
// successors are read-only and ignored if sent.
type nodeUpdateRequest struct {
	Name *string         `json:"name" validate:"omitempty,max=255"`
	Data json.RawMessage `json:"data"`
}

type nodeResponse struct {
	UUID         string          `json:"uuid"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	Dag          string          `json:"dag"`
	Predecessors []string        `json:"predecessors"`
	Successors   []string        `json:"successors"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type edgeRequest struct {
	NodeFrom string `json:"node_from" validate:"required"`
	NodeTo   string `json:"node_to" validate:"required"`
}

type edgeResponse struct {
	UUID      string    `json:"uuid"`
	NodeFrom  string    `json:"node_from"`
	NodeTo    string    `json:"node_to"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toDagResponse(d *dag.Dag) dagResponse {
	return dagResponse{UUID: dag.CanonicalID(d.ID), Name: d.Name}
}

func toNodeResponse(n *dag.Node) nodeResponse {
	return nodeResponse{
		UUID:         dag.CanonicalID(n.ID),
		Name:         n.Name,
		Data:         dag.NormalizeData(n.Data),
		Dag:          dag.CanonicalID(n.DagID),
		Predecessors: canonicalIDs(n.Predecessors),
		Successors:   canonicalIDs(n.Successors),
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}

func toEdgeResponse(e *dag.Edge) edgeResponse {
	return edgeResponse{
		UUID:      dag.CanonicalID(e.ID),
		NodeFrom:  dag.CanonicalID(e.FromNodeID),
		NodeTo:    dag.CanonicalID(e.ToNodeID),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func canonicalIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = dag.CanonicalID(id)
	}
	return out
}

// parseIDs converts wire ids to storage form.
func parseIDs(ids []string) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		parsed, err := dag.ParseID(id)
		if err != nil {
			return nil, err
		}
		out[i] = parsed
	}
	return out, nil
}

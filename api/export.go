package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v3"
	dag "github.com/meikuraledutech/dagstore"
)

// downloadDag returns the dag's adjacency mapping as a JSON attachment named
// after the dag.
func (s *Server) downloadDag(c fiber.Ctx) error {
	id, err := param(c, "uuid")
	if err != nil {
		return s.fail(c, err)
	}
	d, err := s.store.GetDag(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	adj, err := s.store.Serialize(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}

	out := make(map[string][]string, len(adj))
	for node, succ := range adj {
		out[dag.CanonicalID(node)] = canonicalIDs(succ)
	}
	c.Attachment(d.Name + "_dag.json")
	return c.JSON(out)
}

// downloadMetadata returns each node's data payload as a JSON attachment.
func (s *Server) downloadMetadata(c fiber.Ctx) error {
	id, err := param(c, "uuid")
	if err != nil {
		return s.fail(c, err)
	}
	d, err := s.store.GetDag(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	meta, err := s.store.Metadata(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}

	out := make(map[string]json.RawMessage, len(meta))
	for node, data := range meta {
		out[dag.CanonicalID(node)] = data
	}
	c.Attachment(d.Name + "_metadata.json")
	return c.JSON(out)
}

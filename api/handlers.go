package api

import (
	"github.com/gofiber/fiber/v3"
	dag "github.com/meikuraledutech/dagstore"
)

// ── Schema ────────────────────────────────────────────────────────────

func (s *Server) createSchema(c fiber.Ctx) error {
	if err := s.store.CreateSchema(c.Context()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "schema created"})
}

func (s *Server) dropSchema(c fiber.Ctx) error {
	if err := s.store.DropSchema(c.Context()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "schema dropped"})
}

// ── Dags ──────────────────────────────────────────────────────────────

func (s *Server) createDag(c fiber.Ctx) error {
	var req dagRequest
	if err := s.bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	d, err := s.store.CreateDag(c.Context(), req.Name)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toDagResponse(d))
}

func (s *Server) listDags(c fiber.Ctx) error {
	dags, err := s.store.ListDags(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	out := make([]dagResponse, len(dags))
	for i := range dags {
		out[i] = toDagResponse(&dags[i])
	}
	return c.JSON(out)
}

func (s *Server) getDag(c fiber.Ctx) error {
	id, err := param(c, "uuid")
	if err != nil {
		return s.fail(c, err)
	}
	d, err := s.store.GetDag(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(toDagResponse(d))
}

func (s *Server) updateDag(c fiber.Ctx) error {
	id, err := param(c, "uuid")
	if err != nil {
		return s.fail(c, err)
	}
	var req dagRequest
	if err := s.bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	d, err := s.store.UpdateDag(c.Context(), id, req.Name)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(toDagResponse(d))
}

func (s *Server) deleteDag(c fiber.Ctx) error {
	id, err := param(c, "uuid")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.store.DeleteDag(c.Context(), id); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ── Nodes ─────────────────────────────────────────────────────────────

func (s *Server) createNode(c fiber.Ctx) error {
	var req nodeCreateRequest
	if err := s.bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	dagID, err := dag.ParseID(req.Dag)
	if err != nil {
		return s.fail(c, err)
	}
	preds, err := parseIDs(req.Predecessors)
	if err != nil {
		return s.fail(c, err)
	}
	succs, err := parseIDs(req.Successors)
	if err != nil {
		return s.fail(c, err)
	}

	n, err := s.store.CreateNode(c.Context(), dag.NewNode{
		DagID:        dagID,
		Name:         req.Name,
		Data:         req.Data,
		Predecessors: preds,
		Successors:   succs,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toNodeResponse(n))
}

// listNodes requires a ?dag= filter; nodes are always listed per dag.
func (s *Server) listNodes(c fiber.Ctx) error {
	dagID, err := dag.ParseID(c.Query("dag"))
	if err != nil {
		return s.fail(c, err)
	}
	nodes, err := s.store.ListNodes(c.Context(), dagID)
	if err != nil {
		return s.fail(c, err)
	}
	out := make([]nodeResponse, len(nodes))
	for i := range nodes {
		out[i] = toNodeResponse(&nodes[i])
	}
	return c.JSON(out)
}

func (s *Server) getNode(c fiber.Ctx) error {
	id, err := param(c, "uuid")
	if err != nil {
		return s.fail(c, err)
	}
	n, err := s.store.GetNode(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(toNodeResponse(n))
}

func (s *Server) updateNode(c fiber.Ctx) error {
	id, err := param(c, "uuid")
	if err != nil {
		return s.fail(c, err)
	}
	var req nodeUpdateRequest
	if err := s.bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	n, err := s.store.UpdateNode(c.Context(), id, dag.NodePatch{Name: req.Name, Data: req.Data})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(toNodeResponse(n))
}

func (s *Server) deleteNode(c fiber.Ctx) error {
	id, err := param(c, "uuid")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.store.DeleteNode(c.Context(), id); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ── Edges ─────────────────────────────────────────────────────────────

func (s *Server) createEdge(c fiber.Ctx) error {
	var req edgeRequest
	if err := s.bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	ids, err := parseIDs([]string{req.NodeFrom, req.NodeTo})
	if err != nil {
		return s.fail(c, err)
	}
	e, err := s.store.CreateEdge(c.Context(), ids[0], ids[1])
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toEdgeResponse(e))
}

func (s *Server) listEdges(c fiber.Ctx) error {
	dagID, err := dag.ParseID(c.Query("dag"))
	if err != nil {
		return s.fail(c, err)
	}
	edges, err := s.store.ListEdges(c.Context(), dagID)
	if err != nil {
		return s.fail(c, err)
	}
	out := make([]edgeResponse, len(edges))
	for i := range edges {
		out[i] = toEdgeResponse(&edges[i])
	}
	return c.JSON(out)
}

func (s *Server) getEdge(c fiber.Ctx) error {
	id, err := param(c, "uuid")
	if err != nil {
		return s.fail(c, err)
	}
	e, err := s.store.GetEdge(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(toEdgeResponse(e))
}

func (s *Server) updateEdge(c fiber.Ctx) error {
	id, err := param(c, "uuid")
	if err != nil {
		return s.fail(c, err)
	}
	var req edgeRequest
	if err := s.bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	ids, err := parseIDs([]string{req.NodeFrom, req.NodeTo})
	if err != nil {
		return s.fail(c, err)
	}
	e, err := s.store.UpdateEdge(c.Context(), id, ids[0], ids[1])
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(toEdgeResponse(e))
}

func (s *Server) deleteEdge(c fiber.Ctx) error {
	id, err := param(c, "uuid")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.store.DeleteEdge(c.Context(), id); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

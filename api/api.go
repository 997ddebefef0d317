// Package api exposes a dag.Store over HTTP with fiber.
//
// Identifiers are canonical UUID strings on the wire and 32-character hex
// strings in the store; this package converts between the two.
package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	dag "github.com/meikuraledutech/dagstore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP handlers for one store.
type Server struct {
	store    dag.Store
	logger   *slog.Logger
	validate *validator.Validate
}

// New creates a Server. A nil logger uses slog.Default().
func New(store dag.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, logger: logger, validate: validator.New()}
}

// App builds a fiber app with every route registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{AppName: "dagstore"})
	app.Use(s.logRequests)
	s.Register(app)
	return app
}

// Register mounts the routes on r.
func (s *Server) Register(r fiber.Router) {
	// ── Schema ────────────────────────────────────────────────────────
	r.Post("/schema", s.createSchema)
	r.Delete("/schema", s.dropSchema)

	// ── Dags ──────────────────────────────────────────────────────────
	r.Post("/dags", s.createDag)
	r.Get("/dags", s.listDags)
	r.Get("/dags/:uuid", s.getDag)
	r.Put("/dags/:uuid", s.updateDag)
	r.Delete("/dags/:uuid", s.deleteDag)

	// ── Nodes ─────────────────────────────────────────────────────────
	r.Post("/nodes", s.createNode)
	r.Get("/nodes", s.listNodes)
	r.Get("/nodes/:uuid", s.getNode)
	r.Put("/nodes/:uuid", s.updateNode)
	r.Delete("/nodes/:uuid", s.deleteNode)

	// ── Edges ─────────────────────────────────────────────────────────
	r.Post("/edges", s.createEdge)
	r.Get("/edges", s.listEdges)
	r.Get("/edges/:uuid", s.getEdge)
	r.Put("/edges/:uuid", s.updateEdge)
	r.Delete("/edges/:uuid", s.deleteEdge)

	// ── Export ────────────────────────────────────────────────────────
	r.Get("/download_dag_json/:uuid", s.downloadDag)
	r.Get("/download_metadata_json/:uuid", s.downloadMetadata)

	r.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func (s *Server) logRequests(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Info("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"latency", time.Since(start),
	)
	return err
}

// fail maps a store error to a status code. Domain errors are client errors;
// anything else is logged and reported as 500.
func (s *Server) fail(c fiber.Ctx, err error) error {
	var br badRequest
	switch {
	case errors.As(err, &br):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": br.msg})
	case errors.Is(err, dag.ErrInvalidID), errors.Is(err, dag.ErrNameTooLong):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, dag.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, dag.ErrSelfLoop),
		errors.Is(err, dag.ErrCrossDagEdge),
		errors.Is(err, dag.ErrCycleDetected):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	default:
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

// badRequest is a malformed or invalid request body.
type badRequest struct {
	msg string
}

func (e badRequest) Error() string { return e.msg }

// bind decodes and validates a JSON body.
func (s *Server) bind(c fiber.Ctx, out any) error {
	if err := c.Bind().JSON(out); err != nil {
		return badRequest{msg: "invalid body"}
	}
	if err := s.validate.Struct(out); err != nil {
		return badRequest{msg: err.Error()}
	}
	return nil
}

// param parses a UUID path parameter into storage form.
func param(c fiber.Ctx, name string) (string, error) {
	return dag.ParseID(c.Params(name))
}

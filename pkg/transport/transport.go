// Package transport implements the thin HTTP/SSE layer described in
// spec.md §6 as a consumer of the orchestration core, not part of it:
// submit an email, list jobs, stream one job's events, and fetch a
// snapshot. No auth, no CORS, no persistence — the production transport
// (§1 Non-goals) is explicitly out of scope; this is the demo surface
// that exercises the transport-facing contract end-to-end.
package transport

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mailtriage/sentryd/pkg/bus"
	"github.com/mailtriage/sentryd/pkg/job"
	"github.com/mailtriage/sentryd/pkg/metrics"
	"github.com/mailtriage/sentryd/pkg/orchestrator"
)

// ErrEmptyEmail is the error submitHandler reports, as a 400 response body,
// when the request body is empty
// — the stand-in for "fails if parse fails" since no real parser is wired
// in (spec.md §1 excludes the email parser from scope).
var ErrEmptyEmail = errors.New("transport: email body is empty")

// Analyzers is the fixed set of analyzers every submitted job is run
// against. The demo server wires this at construction time; a production
// deployment would instead resolve it per-message from some registry.
type Analyzers []orchestrator.Analyzer

// Server wires pkg/job's Registry and pkg/orchestrator's Run function
// behind a gin.Engine.
type Server struct {
	registry  *job.Registry
	analyzers Analyzers
	engine    *gin.Engine
}

// NewServer builds a Server and registers its routes. registry and
// analyzers must already be constructed; NewServer only wires HTTP.
func NewServer(registry *job.Registry, analyzers Analyzers) *Server {
	s := &Server{
		registry:  registry,
		analyzers: analyzers,
		engine:    gin.Default(),
	}
	s.routes()
	return s
}

// Engine returns the underlying gin.Engine, e.g. for tests using
// httptest.NewServer or net/http/httptest.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run starts the HTTP server on addr. Blocks until the server stops.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) routes() {
	s.engine.GET("/health", s.healthHandler)
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.engine.Group("/api/v1")
	v1.POST("/jobs", s.submitHandler)
	v1.GET("/jobs", s.listJobsHandler)
	v1.GET("/jobs/:id", s.getJobHandler)
	v1.GET("/jobs/:id/events", s.streamJobHandler)
	v1.GET("/jobs/events", s.streamRegistryHandler)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// submitHandler handles POST /api/v1/jobs: submit(email) -> Job, per
// spec.md §6. The raw request body is the email. On success it starts
// the orchestrator run in the background and returns the job's initial
// snapshot immediately — callers are expected to follow up on
// GET /jobs/:id/events for progress.
func (s *Server) submitHandler(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrEmptyEmail.Error()})
		return
	}

	j := s.registry.AddJob(body)
	orchestrator.Run(j, j, s.analyzers)

	c.JSON(http.StatusAccepted, j.Snapshot())
}

// listJobsHandler handles GET /api/v1/jobs: every currently tracked job's
// snapshot, per JobRegistry's role in spec.md §4.5.
func (s *Server) listJobsHandler(c *gin.Context) {
	jobs := s.registry.Jobs()
	descs := make([]job.Description, 0, len(jobs))
	for _, j := range jobs {
		descs = append(descs, j.Snapshot())
	}
	c.JSON(http.StatusOK, descs)
}

// getJobHandler handles GET /api/v1/jobs/:id: Job.snapshot() -> JobDescription.
func (s *Server) getJobHandler(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}
	j, err := s.registry.Find(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, j.Snapshot())
}

// streamJobHandler handles GET /api/v1/jobs/:id/events: an SSE stream of
// the bit-exact Event JSON shapes from spec.md §6, terminating when the
// job's bus closes (Error or JobComplete).
func (s *Server) streamJobHandler(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}
	j, err := s.registry.Find(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	_, ch, cancel := j.Subscribe()
	defer cancel()

	streamEvents(c, ch)
}

// streamRegistryHandler handles GET /api/v1/jobs/events: a long-lived SSE
// stream of NewJob(JobDescription) announcements, per JobRegistry's
// subscribe_events() operation in spec.md §6.
func (s *Server) streamRegistryHandler(c *gin.Context) {
	ch, cancel := s.registry.SubscribeEvents()
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case desc, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("NewJob", desc)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func streamEvents(c *gin.Context, ch <-chan bus.Event) {
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			if ev.IsLagged() {
				// Never part of the wire contract (spec.md §6); the
				// subscriber is expected to reconcile from the job's
				// results log instead of seeing this on the stream.
				return true
			}
			c.SSEvent("message", ev)
			return !ev.IsClosing()
		case <-c.Request.Context().Done():
			return false
		case <-time.After(30 * time.Second):
			// keep the connection alive through idle proxies
			c.SSEvent("ping", nil)
			return true
		}
	})
}

func parseJobID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return 0, false
	}
	return id, true
}

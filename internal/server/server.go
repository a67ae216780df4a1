// Package server exposes the bootstrap session over HTTP: probes,
// Prometheus metrics and a JSON status view.
package server

import (
	"encoding/json"
	"errors"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/factory-agent/internal/factory"
	"github.com/p-blackswan/factory-agent/internal/lifecycle"
	"github.com/p-blackswan/factory-agent/internal/metrics"
	"github.com/p-blackswan/factory-agent/internal/session"
)

// Session is the view of the bootstrap session the server reports on.
type Session interface {
	Snapshot() lifecycle.Snapshot
	Finished() <-chan struct{}
}

// DefinitionSource returns the loaded factory without fetching it.
type DefinitionSource interface {
	Current() *factory.Definition
}

// Config holds the status server settings.
type Config struct {
	ListenAddr string
	SessionID  string
}

// Server is the status Fiber application.
type Server struct {
	app     *fiber.App
	session Session
	defs    DefinitionSource
	logger  zerolog.Logger
	config  Config
}

// New creates the status server. m and defs may be nil.
func New(cfg Config, s Session, defs DefinitionSource, m *metrics.Metrics, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "status_server").Logger()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	srv := &Server{
		app:     app,
		session: s,
		defs:    defs,
		logger:  logger,
		config:  cfg,
	}
	srv.setupMiddleware()
	srv.setupRoutes(m)
	return srv
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New(recover.Config{EnableStackTrace: true}))

	s.app.Use(func(c *fiber.Ctx) error {
		id := s.config.SessionID
		if id == "" {
			_, id = session.New(c.Context())
		}
		c.Set("X-Session-ID", id)
		c.Locals("session_id", id)
		return c.Next()
	})

	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}
		s.logger.Debug().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Msg("status request")
		return c.Next()
	})
}

func (s *Server) setupRoutes(m *metrics.Metrics) {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/readyz", s.readiness)

	if m != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	} else {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.SendString("# No metrics collector configured\n")
		})
	}

	v1 := s.app.Group("/api/v1")
	v1.Get("/status", s.status)
	v1.Get("/factory", s.definition)
}

func (s *Server) readiness(c *fiber.Ctx) error {
	select {
	case <-s.session.Finished():
		return c.JSON(fiber.Map{"status": "ready", "state": s.session.Snapshot().State})
	default:
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
			"state":  s.session.Snapshot().State,
		})
	}
}

func (s *Server) status(c *fiber.Ctx) error {
	return c.JSON(newStatusView(s.session.Snapshot()))
}

func (s *Server) definition(c *fiber.Ctx) error {
	if s.defs == nil {
		return fiber.NewError(fiber.StatusNotFound, "no factory for this session")
	}
	def := s.defs.Current()
	if def == nil {
		return fiber.NewError(fiber.StatusNotFound, "no factory for this session")
	}
	return c.JSON(def)
}

// Listen binds the configured address. The session may be told the host
// is ready once Listen returns.
func (s *Server) Listen() (net.Listener, error) {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8095"
	}
	return net.Listen("tcp", addr)
}

// Serve handles requests on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("status server starting")
	return s.app.Listener(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("status server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// Problem is the JSON error body.
type Problem struct {
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Path()).Str("method", c.Method()).Msg("unhandled error")
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(Problem{
			Title:    statusTitle(code),
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}

func statusTitle(code int) string {
	switch code {
	case fiber.StatusNotFound:
		return "Not Found"
	case fiber.StatusMethodNotAllowed:
		return "Method Not Allowed"
	case fiber.StatusInternalServerError:
		return "Internal Server Error"
	default:
		return "Error"
	}
}

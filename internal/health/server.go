package health

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/pprof"

	logx "tokenbot/pkg/logx"
)

// StatusFunc returns the payload of GET /status.
type StatusFunc func(ctx context.Context) any

// Server is the optional status HTTP endpoint.
type Server struct {
	addr    string
	app     *fiber.App
	checker *Checker
	log     logx.Logger
}

// ServerOption customizes NewServer.
type ServerOption func(*fiber.App)

// WithPprof mounts the runtime profiler under /debug/pprof. Bind the server to
// loopback when enabling it.
func WithPprof() ServerOption {
	return func(app *fiber.App) { app.Use(pprof.New()) }
}

func NewServer(addr string, checker *Checker, status StatusFunc, log logx.Logger, opts ...ServerOption) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
		AppName:               "tokenbot",
	})
	s := &Server{addr: addr, app: app, checker: checker, log: log}
	for _, opt := range opts {
		opt(app)
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		now := time.Now()
		last, lastHealthy := checker.Last()
		body := fiber.Map{
			"last_check":   last.At,
			"last_healthy": lastHealthy,
		}
		if !checker.Healthy(now) {
			body["status"] = "unhealthy"
			body["stale"] = checker.Stale(now)
			if len(last.Failures) > 0 {
				body["failures"] = last.Failures
			}
			return c.Status(fiber.StatusServiceUnavailable).JSON(body)
		}
		body["status"] = "ok"
		return c.JSON(body)
	})

	app.Get("/status", func(c *fiber.Ctx) error {
		if status == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "status not available"})
		}
		return c.JSON(status(c.UserContext()))
	})
	return s
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App { return s.app }

// Run listens until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.log.Info("status server listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listener(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := s.app.ShutdownWithContext(sctx)
	_ = ln.Close()
	<-errCh // listener errors after shutdown are expected
	if shutdownErr != nil && !errors.Is(shutdownErr, context.DeadlineExceeded) {
		return shutdownErr
	}
	return nil
}

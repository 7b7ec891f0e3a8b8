// Package ops serves the operational HTTP endpoints: health and queue
// introspection. The engine itself has no inbound business API; commands
// arrive over the message bus.
package ops

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/antech-v6-engine/internal/config"
)

// Pinger reports whether a backing connection is alive.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerStater reports circuit breaker states keyed by Lab base URL.
type BreakerStater interface {
	BreakerStates() map[string]string
}

// JobCounter reports scheduled job counts per queue.
type JobCounter interface {
	JobCounts(ctx context.Context) map[string]int
}

// Server is the operational HTTP server.
type Server struct {
	cfg      config.ServerConfig
	router   *gin.Engine
	server   *http.Server
	cache    Pinger
	bus      Pinger
	breakers BreakerStater
	jobs     JobCounter
}

// NewServer creates the operational server.
func NewServer(manager *config.Manager, cache, bus Pinger, breakers BreakerStater, jobs JobCounter) *Server {
	cfg := manager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:      cfg.Server,
		router:   router,
		cache:    cache,
		bus:      bus,
		breakers: breakers,
		jobs:     jobs,
	}
	s.setupRoutes()
	return s
}

// Start runs the server until the context is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/queues", s.handleQueues)
}

// handleHealth reports connection health and circuit breaker states. Any
// failing dependency degrades the response to 503.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}

	if err := s.cache.Ping(ctx); err != nil {
		checks["cache"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["cache"] = "ok"
	}
	if err := s.bus.Ping(ctx); err != nil {
		checks["bus"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["bus"] = "ok"
	}

	c.JSON(status, gin.H{
		"status":    httpStatusText(status),
		"timestamp": time.Now(),
		"checks":    checks,
		"breakers":  s.breakers.BreakerStates(),
	})
}

// handleQueues reports scheduled job counts per polling queue.
func (s *Server) handleQueues(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	c.JSON(http.StatusOK, gin.H{"queues": s.jobs.JobCounts(ctx)})
}

func httpStatusText(status int) string {
	if status == http.StatusOK {
		return "healthy"
	}
	return "degraded"
}

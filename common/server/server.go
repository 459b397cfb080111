package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/auditflow/automation-engine/common/logger"
)

const drainTimeout = 30 * time.Second

// Server wraps an HTTP handler with timeouts and graceful shutdown
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
	name       string
}

// New creates a server with request/response bounds suited to the
// JSON APIs
func New(name string, port int, handler http.Handler, log *logger.Logger) *Server {
	return build(name, port, handler, log, 15*time.Second, 15*time.Second, 60*time.Second)
}

// NewStreaming creates a server for long-lived connections: no read or
// write bound, since the websocket pumps manage their own deadlines
// per frame, and a generous idle window for keepalives.
func NewStreaming(name string, port int, handler http.Handler, log *logger.Logger) *Server {
	return build(name, port, handler, log, 0, 0, 120*time.Second)
}

func build(name string, port int, handler http.Handler, log *logger.Logger, read, write, idle time.Duration) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  read,
			WriteTimeout: write,
			IdleTimeout:  idle,
		},
		log:  log,
		name: name,
	}
}

// Start serves until an error or a shutdown signal, then drains
// outstanding requests before returning. Hijacked connections are not
// waited on; their owners close them when their contexts end.
func (s *Server) Start() error {
	serverErrors := make(chan error, 1)

	go func() {
		s.log.Info(fmt.Sprintf("%s starting", s.name), "addr", s.httpServer.Addr)
		serverErrors <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.log.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("graceful shutdown failed", "error", err)
			if err := s.httpServer.Close(); err != nil {
				return fmt.Errorf("could not stop server: %w", err)
			}
		}

		s.log.Info("shutdown complete")
	}

	return nil
}

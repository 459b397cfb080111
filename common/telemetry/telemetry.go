package telemetry

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/auditflow/automation-engine/common/logger"
)

// Telemetry serves the pprof debug endpoints on a localhost-only port.
// Generation workers are long-lived LLM pipelines; live profiling is
// the fastest way to see where a stuck job is spending its time.
type Telemetry struct {
	log    *logger.Logger
	server *http.Server
}

// New creates the telemetry component
func New(pprofPort int, log *logger.Logger) *Telemetry {
	return &Telemetry{
		log: log,
		server: &http.Server{
			Addr:    fmt.Sprintf("localhost:%d", pprofPort),
			Handler: http.DefaultServeMux,
		},
	}
}

// Start serves pprof in the background. Serve errors are logged, not
// returned; a dead debug port must not take the worker down.
func (t *Telemetry) Start(ctx context.Context) error {
	go func() {
		t.log.Info("pprof server starting", "addr", t.server.Addr)
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.log.Error("pprof server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the pprof server down
func (t *Telemetry) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return t.server.Shutdown(shutdownCtx)
}

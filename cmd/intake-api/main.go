package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/auditflow/automation-engine/cmd/intake-api/container"
	"github.com/auditflow/automation-engine/cmd/intake-api/routes"
	"github.com/auditflow/automation-engine/common/bootstrap"
	"github.com/auditflow/automation-engine/common/db"
	"github.com/auditflow/automation-engine/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (DB, redis, queue, logger, telemetry).
	// The intake side publishes to the stream; it never consumes, and it
	// has no use for the completion cache.
	components, err := bootstrap.Setup(ctx, "intake-api",
		bootstrap.WithoutCache(),
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return database.Migrate(ctx)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap intake-api: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, components)
	routes.RegisterJobRoutes(e, serviceContainer)

	startServer(e, components)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "intake-api",
		})
	})
}

// startServer runs the Echo handler behind the graceful-shutdown wrapper
func startServer(e *echo.Echo, components *bootstrap.Components) {
	srv := server.New("intake-api", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

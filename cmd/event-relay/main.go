package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/auditflow/automation-engine/common/bootstrap"
	"github.com/auditflow/automation-engine/common/logger"
	"github.com/auditflow/automation-engine/common/server"
	"github.com/auditflow/automation-engine/common/worker"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The relay sits behind the edge proxy, which enforces origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The relay needs redis for the subscription and nothing else
	components, err := bootstrap.Setup(ctx, "event-relay",
		bootstrap.WithoutDB(),
		bootstrap.WithoutQueue(),
		bootstrap.WithoutCache(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap event-relay: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	log := components.Logger

	h := newHub(log)
	go h.run(ctx)

	channel := components.Config.Queue.EventsChannel
	if channel == "" {
		channel = worker.EventsChannel
	}

	sub := newSubscriber(components.Redis.GetUnderlying(), h, channel, log)
	go func() {
		if err := sub.run(ctx); err != nil && ctx.Err() == nil {
			log.Error("lifecycle subscription lost", "error", err)
		}
	}()

	e := setupEcho()
	e.GET("/ws", followJob(h, log))
	e.GET("/health", healthCheck(components, h))

	srv := server.NewStreaming("event-relay", components.Config.Service.Port, e, log)
	if err := srv.Start(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	// Stop the hub and subscriber before the redis teardown in Shutdown
	cancel()
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	return e
}

// followJob upgrades the connection and registers it as a follower of
// one job's lifecycle stream. The job id comes back from the intake API
// when the job is enqueued.
func followJob(h *hub, log *logger.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		jobID, err := uuid.Parse(c.QueryParam("job_id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "valid job_id query parameter required")
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response
			log.Warn("websocket upgrade failed", "error", err)
			return nil
		}

		follower := newClient(h, conn, jobID, log)
		select {
		case h.register <- follower:
		case <-h.done:
			conn.Close()
			return nil
		}

		log.Info("follower connected", "job_id", jobID, "remote", c.RealIP())

		go follower.writePump()
		go follower.readPump()
		return nil
	}
}

func healthCheck(components *bootstrap.Components, h *hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "event-relay",
			"followers": h.connectionCount(),
			"jobs":      h.jobCount(),
		})
	}
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/wirl-lang/wirl/common/bootstrap"
	appmw "github.com/wirl-lang/wirl/common/middleware"
	"github.com/wirl-lang/wirl/common/ratelimit"
	"github.com/wirl-lang/wirl/internal/api"
	"github.com/wirl-lang/wirl/internal/checkpoint"
	"github.com/wirl-lang/wirl/internal/store"
)

// cmd/api is the control-plane HTTP service from spec.md §6: CRUD over
// workflow templates, runs, and triggers. Wiring follows
// cmd/orchestrator/main.go's setupEcho/setupMiddleware/registerRoutes
// shape, adapted to the internal/api package instead of the teacher's
// container/routes split.
func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "wirl-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap api: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	templates, err := store.NewTemplateStore(components.Config.Engine.WorkflowDefinitionsPath, components.Logger)
	if err != nil {
		components.Logger.Error("failed to load workflow templates", "error", err)
		os.Exit(1)
	}
	defer templates.Close()

	var limiter *ratelimit.RateLimiter
	if components.Redis != nil {
		limiter = ratelimit.NewRateLimiter(components.Redis, components.Logger)
	}

	handler := &api.Handler{
		Runs:        store.NewRunRepository(components.DB),
		Triggers:    store.NewTriggerRepository(components.DB),
		Templates:   templates,
		Checkpoints: checkpoint.NewPGStore(components.DB),
		Log:         components.Logger,
		RateLimiter: limiter,
	}

	e := setupEcho()
	setupMiddleware(e, limiter)
	setupHealthCheck(e)
	api.RegisterRoutes(e, handler)

	startServer(e, components)
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware mirrors cmd/orchestrator/main.go's base middleware stack
// and adds the global fixed-window Lua limiter from SPEC_FULL.md §C in
// front of every route. The
// per-template tiered limiter lives in the handler instead, since it needs
// the requested template's compiled complexity to pick a tier.
func setupMiddleware(e *echo.Echo, limiter *ratelimit.RateLimiter) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())

	if limiter != nil {
		e.Use(appmw.GlobalRateLimitMiddleware(limiter, ratelimit.DefaultGlobalConfig.Limit))
	}
}

func setupHealthCheck(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "wirl-api",
		})
	})
}

func startServer(e *echo.Echo, components *bootstrap.Components) {
	port := components.Config.Service.Port
	components.Logger.Info("starting wirl-api", "port", port)
	if err := e.Start(fmt.Sprintf(":%d", port)); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

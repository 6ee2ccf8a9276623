// Package server wires the HTTP facade: echo routes, middleware, and
// the dependency graph behind the /agents group.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sohailahmedkhan/agents/config"
	"github.com/sohailahmedkhan/agents/internal/agent"
	"github.com/sohailahmedkhan/agents/internal/cache"
	"github.com/sohailahmedkhan/agents/internal/duckdb"
	"github.com/sohailahmedkhan/agents/internal/mcp"
	"github.com/sohailahmedkhan/agents/internal/registry"
	openai_provider "github.com/sohailahmedkhan/agents/provider/openai"
)

// Run builds the dependency graph and serves until the listener fails.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	corsOrigins := cfg.Server.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	gateway, err := duckdb.New(cfg.Store.Path, cfg.Store.ReadOnly, cfg.Store.AllowWrite, cfg.Store.RowLimit)
	if err != nil {
		return err
	}
	defer gateway.Close()

	mcpLogger := log.New(log.Writer(), "[MCP] ", log.LstdFlags)
	client, err := mcp.NewClient(cfg.Transport, mcpLogger)
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("starting tool transport: %w", err)
	}
	defer client.Stop()

	cacheLogger := log.New(log.Writer(), "[CACHE] ", log.LstdFlags)
	resultCache, err := cache.New(ctx, cfg.Cache, cacheLogger)
	if err != nil {
		// Cache is best effort; run without it.
		cacheLogger.Printf("cache disabled: %v", err)
	}
	defer resultCache.Close()

	catalog := registry.NewCatalog()
	classifier := agent.NewClassifier(cfg.Classifier.Threshold)
	summarizer := openai_provider.New(cfg.LLM)

	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	orch := agent.NewOrchestrator(client, catalog, classifier, summarizer, cfg.Workflow.MaxWorkers, orchLogger)
	insights := agent.NewInsightsService(orch, resultCache)

	handler := &AgentsHandler{
		Orchestrator: orch,
		Insights:     insights,
		Client:       client,
		Gateway:      gateway,
		Catalog:      catalog,
		Logger:       baseLogger,
	}
	agents := e.Group("/agents")
	if cfg.Server.JWTSecret != "" {
		agents.Use(authMiddleware([]byte(cfg.Server.JWTSecret)))
	}
	handler.Register(agents)

	return e.Start(cfg.Server.Address)
}

// Package server assembles the orchestration service from its
// configuration and hosts the chat socket, health, and metrics
// endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/loom-ai/loom/pkg/agents"
	"github.com/loom-ai/loom/pkg/config"
	"github.com/loom-ai/loom/pkg/embedders"
	"github.com/loom-ai/loom/pkg/llms"
	"github.com/loom-ai/loom/pkg/logger"
	"github.com/loom-ai/loom/pkg/session"
	"github.com/loom-ai/loom/pkg/tools"
	"github.com/loom-ai/loom/pkg/workflow"
)

// shutdownTimeout bounds graceful drain on stop.
const shutdownTimeout = 10 * time.Second

// Server is the assembled service.
type Server struct {
	cfg     *config.Config
	gateway *llms.Gateway
	manager *session.Manager
	http    *http.Server
	logger  *slog.Logger
}

// New wires the full stack from configuration: LLM gateway, tool
// registry, agents, workflow driver, session manager, and the HTTP
// surface.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	gateway, err := llms.NewGatewayFromConfig(cfg.LLMs, cfg.DefaultLLM)
	if err != nil {
		return nil, fmt.Errorf("failed to build llm gateway: %w", err)
	}

	embedder, err := embedders.NewProviderFromConfig(&cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to build embedder: %w", err)
	}

	registry, err := tools.NewRegistryFromConfig(ctx, cfg.Tools, embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}

	agentSet, err := agents.NewAll(registry, gateway)
	if err != nil {
		return nil, fmt.Errorf("failed to build agents: %w", err)
	}

	driver := workflow.NewDriver(
		workflow.NewSupervisor(workflow.NewPlanner(gateway, registry)),
		workflow.NewConsolidator(gateway, &cfg.Consolidator),
		agentSet,
		&cfg.Workflow,
		&cfg.Router,
	)

	manager := session.NewManager(&cfg.Transport)
	chat := session.NewHandler(driver, manager, &cfg.Transport)

	s := &Server{
		cfg:     cfg,
		gateway: gateway,
		manager: manager,
		logger:  logger.GetLogger(),
	}
	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: s.routes(chat, registry),
	}
	return s, nil
}

func (s *Server) routes(chat http.Handler, registry *tools.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/ws", chat)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","tools":%d,"sessions":%d}`,
			registry.Count(), s.manager.Count())
	})

	return r
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Run serves until the context is cancelled, then drains gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.manager.StartCleanup(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("server shutting down")

		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := s.http.Shutdown(drainCtx)
		if closeErr := s.gateway.Close(); closeErr != nil {
			s.logger.Warn("failed to close llm providers", "error", closeErr)
		}
		return err
	})

	return g.Wait()
}

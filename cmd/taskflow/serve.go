package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/taskflow-agent/internal/agent"
	"github.com/MimeLyc/taskflow-agent/internal/auth"
	"github.com/MimeLyc/taskflow-agent/internal/config"
	"github.com/MimeLyc/taskflow-agent/internal/governor"
	"github.com/MimeLyc/taskflow-agent/internal/httpapi"
	"github.com/MimeLyc/taskflow-agent/internal/llm"
	"github.com/MimeLyc/taskflow-agent/internal/persistence"
	"github.com/MimeLyc/taskflow-agent/internal/service"
	"github.com/MimeLyc/taskflow-agent/internal/tools"
	"github.com/MimeLyc/taskflow-agent/pkg/log"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config.WithHTTPAddr(addr))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	return cmd
}

// app holds the components shared by the server and the one-shot commands.
type app struct {
	store    *persistence.SQLiteStore
	auth     *auth.Service
	governor *governor.Governor
	registry *tools.Registry
	todos    *service.TodoService
	agents   *service.AgentService
}

func (a *app) Close() {
	if a.governor != nil {
		_ = a.governor.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// buildApp wires storage, auth, the governor and the agent. The LLM client
// is only built when withAgent is set.
func buildApp(cfg *config.Config, withAgent bool) (*app, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{store: store}

	a.auth, err = auth.NewService(store, cfg.Auth.JWTSecret,
		auth.WithTokenExpiry(cfg.Auth.TokenExpiry),
		auth.WithBcryptCost(cfg.Auth.BcryptCost),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("auth: %w", err)
	}

	a.governor, err = governor.New(cfg.GovernorLimits())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("governor: %w", err)
	}

	a.registry = tools.NewRegistry()
	tools.RegisterTodoTools(a.registry, store)
	a.todos = service.NewTodoService(store)

	if withAgent {
		client, err := llm.NewClient(cfg.LLMClientConfig())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("llm client: %w", err)
		}
		runner := agent.New(client, a.registry,
			agent.WithMaxIterations(cfg.Agent.MaxIterations),
			agent.WithPlannerTimeout(cfg.Agent.PlannerTimeout),
			agent.WithMaxConsecutiveFailures(cfg.Agent.MaxConsecutiveFailures),
		)
		a.agents = service.NewAgentService(runner, a.governor, a.registry, cfg.Agent.MaxConcurrentRuns)
	}
	return a, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := buildApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.governor.StartJanitor(); err != nil {
		return fmt.Errorf("start governor janitor: %w", err)
	}

	srv := httpapi.NewServer(a.auth, a.todos, a.agents,
		httpapi.WithHealthCheck(a.store),
		httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

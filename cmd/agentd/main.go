// Command agentd runs the chat agent behind an HTTP API.
//
// Startup order matters: the hookshim registry is populated before the
// telemetry client initializes, the telemetry client seals it, and only then
// does the server start taking traffic. Instrumentation failures never stop
// the process; the worst case is an untraced but fully functional agent.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spangraph/spangraph/pkg/spangraph/chat"
	"github.com/spangraph/spangraph/pkg/spangraph/checkpoint"
	"github.com/spangraph/spangraph/pkg/spangraph/config"
	"github.com/spangraph/spangraph/pkg/spangraph/hookshim"
	"github.com/spangraph/spangraph/pkg/spangraph/model"
	"github.com/spangraph/spangraph/pkg/spangraph/model/anthropic"
	"github.com/spangraph/spangraph/pkg/spangraph/model/openai"
	"github.com/spangraph/spangraph/pkg/spangraph/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("agentd failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, logger)
	if err != nil {
		return err
	}

	reg := buildRegistry(cfg.APM)

	apm, err := telemetry.Init(ctx, cfg.APM, reg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apm.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	store, err := buildStore(cfg.Checkpoint, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	agent := chat.NewAgent(
		chat.WithLogger(logger),
		chat.WithModel(buildModel(cfg, logger)),
		chat.WithSnapshots(store),
	)
	handle := chat.Traced(agent)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apm.Middleware()(newMux(handle, agent, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("agentd listening", slog.String("addr", cfg.Server.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

// buildRegistry applies the instrumentation policy to the shim registry.
//
// With automatic instrumentation disabled the nethttp hook is bound to a hard
// stub, so any resolution of the hook is guaranteed inert and the telemetry
// client falls back to the manual transaction layer. Otherwise the real
// otelhttp integration is bound lazily: it loads on first request, not at
// process start.
func buildRegistry(apm config.APM) *hookshim.Registry {
	reg := hookshim.NewRegistry()
	if apm.DisableAutoInstrument {
		reg.MustRegister(hookshim.NetHTTP, hookshim.HardStub())
	} else {
		reg.MustRegister(hookshim.NetHTTP, hookshim.LazyDelegate(func() (hookshim.Provider, error) {
			return telemetry.OTelHTTP(), nil
		}))
	}
	return reg
}

// buildStore picks the snapshot backend: SQLite when a path is configured,
// in-memory otherwise.
func buildStore(cp config.Checkpoint, logger *slog.Logger) (checkpoint.Store, error) {
	if cp.Path == "" {
		return checkpoint.NewMemoryStore(), nil
	}
	store, err := checkpoint.NewSQLiteStore(cp.Path)
	if err != nil {
		return nil, err
	}
	logger.Info("snapshot store opened", slog.String("path", cp.Path))
	return store, nil
}

// buildModel selects the completion client. A missing credential is an
// expected deployment state: the agent starts anyway and replies with its
// echo fallback.
func buildModel(cfg config.Config, logger *slog.Logger) model.Client {
	if cfg.ModelKey() == "" {
		logger.Warn("no model credential configured, agent will echo",
			slog.String("provider", cfg.Model.Provider))
		return model.Disabled()
	}

	var client model.Client
	switch cfg.Model.Provider {
	case "anthropic":
		client = anthropic.New(func(o *anthropic.Options) {
			if cfg.Model.Name != "" {
				o.Model = cfg.Model.Name
			}
			o.Temperature = cfg.Model.Temperature
			o.APIKey = cfg.Model.AnthropicKey
		})
	default:
		client = openai.New(func(o *openai.Options) {
			if cfg.Model.Name != "" {
				o.Model = cfg.Model.Name
			}
			o.Temperature = cfg.Model.Temperature
			o.APIKey = cfg.Model.OpenAIKey
		})
	}
	return model.Traced(client)
}

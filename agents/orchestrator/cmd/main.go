// Command orchestrator answers composite health questions by delegating to
// the specialists served by the hospital and insurer processes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/owulveryck/nexushealth/agents/orchestrator"
	"github.com/owulveryck/nexushealth/agents/orchestrator/state"
	"github.com/owulveryck/nexushealth/internal/cli"
	"github.com/owulveryck/nexushealth/internal/config"
	"github.com/owulveryck/nexushealth/internal/llm"
	"github.com/owulveryck/nexushealth/internal/llm/backend"
	"github.com/owulveryck/nexushealth/internal/observability"
)

const serviceName = "orchestrator"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath  string
	endpoints   []string
	historyPath string
}

func main() {
	var flags globalFlags

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Nexus Health orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to a YAML configuration file")
	pf.StringSliceVarP(&flags.endpoints, "endpoint", "e", nil, "specialist endpoint, repeatable (overrides orchestrator.endpoints)")
	pf.StringVar(&flags.historyPath, "history", "", "SQLite file for run records (overrides orchestrator.history_path)")

	root.AddCommand(askCmd(&flags), replCmd(&flags), historyCmd(&flags))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		cli.NewPrinter(os.Stderr).Fail("%v", err)
		os.Exit(1)
	}
}

func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if len(f.endpoints) > 0 {
		cfg.Orchestrator.Endpoints = f.endpoints
	}
	if f.historyPath != "" {
		cfg.Orchestrator.HistoryPath = f.historyPath
	}
	return cfg, nil
}

// env is everything a subcommand needs, released by close.
type env struct {
	cfg          *config.Config
	obs          *observability.Observability
	store        state.Store
	orchestrator *orchestrator.Orchestrator
}

func openStore(cfg *config.Config) (state.Store, error) {
	if cfg.Orchestrator.HistoryPath == "" {
		return state.NewMemoryStore(), nil
	}
	return state.NewSQLiteStore(cfg.Orchestrator.HistoryPath)
}

func newEnv(ctx context.Context, flags *globalFlags) (*env, error) {
	cfg, err := flags.load()
	if err != nil {
		return nil, err
	}
	obs, err := cli.Observe(ctx, serviceName, cfg.Orchestrator.HealthPort, cfg.Service)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, obs: obs}

	if e.store, err = openStore(cfg); err != nil {
		e.close()
		return nil, err
	}
	metrics, err := observability.NewMetricsManager(obs.Meter)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	var client llm.Client
	oc := cfg.Orchestrator
	if oc.Planner == "llm" || oc.Classifier == "llm" || oc.Synthesizer == "llm" {
		if client, err = backend.New(ctx, cfg.LLM, obs.Logger); err != nil {
			e.close()
			return nil, fmt.Errorf("creating LLM client: %w", err)
		}
	}

	e.orchestrator, err = orchestrator.FromConfig(cfg, client,
		orchestrator.WithLogger(obs.Logger),
		orchestrator.WithStore(e.store),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithTraceManager(observability.NewTraceManager(serviceName)),
	)
	if err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

func (e *env) close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.obs.Logger.Error("Error closing run store", "error", err)
		}
	}
	cli.Flush(e.obs)
}

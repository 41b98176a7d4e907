// Command hospital serves the health_agent and doctor_agent capabilities.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/owulveryck/nexushealth/agents/doctor"
	"github.com/owulveryck/nexushealth/agents/health"
	"github.com/owulveryck/nexushealth/internal/cli"
	"github.com/owulveryck/nexushealth/internal/config"
	"github.com/owulveryck/nexushealth/internal/llm/backend"
	"github.com/owulveryck/nexushealth/internal/subagent"
)

const serviceName = "hospital"

func main() {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Serve the health and doctor lookup specialists",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Hospital.Addr = addr
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides hospital.addr)")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "hospital:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	obs, err := cli.Observe(ctx, serviceName, cfg.Hospital.HealthPort, cfg.Service)
	if err != nil {
		return err
	}
	defer cli.Flush(obs)
	logger := obs.Logger

	client, err := backend.New(ctx, cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("creating LLM client: %w", err)
	}

	healthAgent := health.FromConfig(client, cfg.Search, logger)
	doctorAgent := doctor.New(cfg.Doctor.DatasetURL, cfg.Doctor.Timeout, doctor.WithLogger(logger))

	agent, err := subagent.New(&subagent.Config{
		ServiceName:  serviceName,
		Description:  "Hospital specialists for health questions and doctor lookup",
		Version:      cfg.Service.Version,
		Addr:         cfg.Hospital.Addr,
		HealthPort:   cfg.Hospital.HealthPort,
		OTLPEndpoint: cfg.Service.OTLPEndpoint,
		Environment:  cfg.Service.Environment,
	}, subagent.WithLogger(logger))
	if err != nil {
		return err
	}
	agent.MustAddSkill(health.CapabilityName, health.Description, healthAgent.Handle)
	agent.MustAddSkill(doctor.CapabilityName, doctor.Description, doctorAgent.Handle)

	logger.InfoContext(ctx, "Starting hospital",
		"addr", cfg.Hospital.Addr,
		"search_backend", cfg.Search.Backend,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
	)
	return agent.Run(ctx)
}

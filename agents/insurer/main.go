// Command insurer serves the policy_agent capability over the indexed
// policy documents. Run the indexer first.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/owulveryck/nexushealth/agents/policy"
	"github.com/owulveryck/nexushealth/internal/cli"
	"github.com/owulveryck/nexushealth/internal/config"
	"github.com/owulveryck/nexushealth/internal/llm/backend"
	"github.com/owulveryck/nexushealth/internal/rag"
	"github.com/owulveryck/nexushealth/internal/subagent"
)

const serviceName = "insurer"

func main() {
	var (
		configPath string
		addr       string
		dbDir      string
		expose     bool
	)

	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Serve the policy coverage specialist",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Insurer.Addr = addr
			}
			if dbDir != "" {
				cfg.RAG.DBDir = dbDir
			}
			if cmd.Flags().Changed("expose-documents") {
				cfg.RAG.ExposeDocuments = expose
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides insurer.addr)")
	cmd.Flags().StringVar(&dbDir, "db", "", "index directory (overrides rag.db_dir)")
	cmd.Flags().BoolVar(&expose, "expose-documents", false, "also serve every document tool as its own capability")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "insurer:", err)
		if errors.Is(err, rag.ErrIndexMissing) {
			fmt.Fprintln(os.Stderr, "insurer: build the index first with the indexer command")
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	obs, err := cli.Observe(ctx, serviceName, cfg.Insurer.HealthPort, cfg.Service)
	if err != nil {
		return err
	}
	defer cli.Flush(obs)
	logger := obs.Logger

	embed, err := rag.NewEmbeddingFunc(cfg.Embedding)
	if err != nil {
		return err
	}
	client, err := backend.New(ctx, cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("creating LLM client: %w", err)
	}

	policyAgent, err := policy.Open(cfg.RAG.DBDir, embed, client,
		policy.WithRetrieval(cfg.RAG.TopK, cfg.RAG.SimilarityThreshold),
		policy.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("loading policy indexes from %s: %w", cfg.RAG.DBDir, err)
	}

	agent, err := subagent.New(&subagent.Config{
		ServiceName:  serviceName,
		Description:  "Insurance policy coverage specialist",
		Version:      cfg.Service.Version,
		Addr:         cfg.Insurer.Addr,
		HealthPort:   cfg.Insurer.HealthPort,
		OTLPEndpoint: cfg.Service.OTLPEndpoint,
		Environment:  cfg.Service.Environment,
	}, subagent.WithLogger(logger))
	if err != nil {
		return err
	}
	agent.MustAddSkill(policy.CapabilityName, policy.Description, policyAgent.Handle)
	if cfg.RAG.ExposeDocuments {
		for _, t := range policyAgent.Tools() {
			agent.MustAddSkill(t.Name(), t.Description(), policy.ToolHandler(t))
		}
	}
	agent.AddHealthCheck("policy_manifest", func(context.Context) error {
		_, err := rag.LoadManifest(cfg.RAG.DBDir)
		return err
	})

	logger.InfoContext(ctx, "Starting insurer",
		"addr", cfg.Insurer.Addr,
		"db_dir", cfg.RAG.DBDir,
		"documents", len(policyAgent.Tools()),
		"expose_documents", cfg.RAG.ExposeDocuments,
	)
	return agent.Run(ctx)
}

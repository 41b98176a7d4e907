// Command indexer builds one persisted vector index per policy document and
// the manifest the insurer loads at startup.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/spf13/cobra"

	"github.com/owulveryck/nexushealth/internal/cli"
	"github.com/owulveryck/nexushealth/internal/config"
	"github.com/owulveryck/nexushealth/internal/rag"
	"github.com/owulveryck/nexushealth/internal/tool"
)

const serviceName = "indexer"

type options struct {
	configPath   string
	sourceDir    string
	glob         string
	dbDir        string
	chunkSize    int
	chunkOverlap int
	hashDims     int
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Index policy documents for the insurer",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("source") {
				cfg.RAG.SourceDir = opts.sourceDir
			}
			if flags.Changed("glob") {
				cfg.RAG.SourceGlob = opts.glob
			}
			if flags.Changed("db") {
				cfg.RAG.DBDir = opts.dbDir
			}
			if flags.Changed("chunk-size") {
				cfg.RAG.ChunkSize = opts.chunkSize
			}
			if flags.Changed("chunk-overlap") {
				cfg.RAG.ChunkOverlap = opts.chunkOverlap
			}
			return run(cmd.Context(), cfg, opts.hashDims)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML configuration file")
	f.StringVar(&opts.sourceDir, "source", "", "directory holding the policy documents (overrides rag.source_dir)")
	f.StringVar(&opts.glob, "glob", "", "doublestar pattern selecting documents (overrides rag.source_glob)")
	f.StringVar(&opts.dbDir, "db", "", "output index directory (overrides rag.db_dir)")
	f.IntVar(&opts.chunkSize, "chunk-size", 0, "chunk size in characters")
	f.IntVar(&opts.chunkOverlap, "chunk-overlap", 0, "chunk overlap in characters")
	f.IntVar(&opts.hashDims, "hash-embeddings", 0, "use the offline hashing embedder with this many dimensions instead of the configured model")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "indexer:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, hashDims int) error {
	obs, err := cli.Observe(ctx, serviceName, "", cfg.Service)
	if err != nil {
		return err
	}
	defer cli.Flush(obs)

	var embed chromem.EmbeddingFunc
	if hashDims > 0 {
		embed = rag.NewHashEmbeddingFunc(hashDims)
	} else if embed, err = rag.NewEmbeddingFunc(cfg.Embedding); err != nil {
		return err
	}

	out := cli.NewPrinter(os.Stdout)
	out.Info("Indexing %s (%s) into %s", cfg.RAG.SourceDir, cfg.RAG.SourceGlob, cfg.RAG.DBDir)

	start := time.Now()
	indexer := rag.NewIndexer(rag.IndexerConfig{
		SourceDir:    cfg.RAG.SourceDir,
		Glob:         cfg.RAG.SourceGlob,
		DBDir:        cfg.RAG.DBDir,
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
	}, embed, obs.Logger)

	manifest, err := indexer.Run(ctx)
	if err != nil {
		out.Fail("Indexing failed: %v", err)
		return err
	}

	bindings, err := tool.BuildBindings(manifest.Documents(cfg.RAG.DBDir))
	if err != nil {
		return err
	}
	for _, b := range bindings {
		out.Success("%s -> %s", b.Name, b.Endpoint)
	}
	out.Info("Indexed %d documents in %s", manifest.Len(), time.Since(start).Round(time.Millisecond))
	return nil
}

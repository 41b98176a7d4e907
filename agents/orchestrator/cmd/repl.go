package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/owulveryck/nexushealth/agents/orchestrator"
	"github.com/owulveryck/nexushealth/internal/cli"
	"github.com/owulveryck/nexushealth/internal/observability"
	"github.com/owulveryck/nexushealth/internal/transport"
)

func replCmd(flags *globalFlags) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Ask questions interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := newEnv(ctx, flags)
			if err != nil {
				return err
			}
			defer e.close()

			if port := e.cfg.Orchestrator.HealthPort; port != "" {
				stop, err := serveHealth(ctx, e, port)
				if err != nil {
					return err
				}
				defer stop()
			}
			return repl(ctx, e.orchestrator, os.Stdin, cli.NewPrinter(os.Stdout), verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the plan and per-step outcomes")
	return cmd
}

func repl(ctx context.Context, o *orchestrator.Orchestrator, in io.Reader, out *cli.Printer, verbose bool) error {
	out.Info("=== Nexus Health ===")
	out.Plain("Type your question and press Enter. Type 'quit' to exit.")

	scanner := bufio.NewScanner(in)
	for ctx.Err() == nil {
		out.Prompt("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "quit", "exit":
			return nil
		}

		err := ask(ctx, o, out, input, verbose)
		if err != nil && !errors.Is(err, orchestrator.ErrNoSpecialists) {
			return err
		}
	}
	return nil
}

// serveHealth exposes /health, /ready and /metrics, with one readiness
// check per configured endpoint.
func serveHealth(ctx context.Context, e *env, port string) (func(), error) {
	hs := observability.NewHealthServer(port, serviceName, e.cfg.Service.Version)

	var clients []*transport.Client
	for _, endpoint := range e.cfg.Orchestrator.Endpoints {
		c, err := transport.Dial(endpoint, transport.WithLogger(e.obs.Logger))
		if err != nil {
			for _, c := range clients {
				_ = c.Close()
			}
			return nil, err
		}
		clients = append(clients, c)
		hs.AddChecker(endpoint, observability.NewGRPCHealthChecker(endpoint, c.Conn()))
	}

	go func() {
		if err := hs.Start(ctx); err != nil {
			e.obs.Logger.ErrorContext(ctx, "Health server failed", "port", port, "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			e.obs.Logger.ErrorContext(shutdownCtx, "Error during health server shutdown", "error", err)
		}
		for _, c := range clients {
			_ = c.Close()
		}
	}, nil
}

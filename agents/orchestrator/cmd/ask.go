package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/owulveryck/nexushealth/agents/orchestrator"
	"github.com/owulveryck/nexushealth/internal/cli"
)

// DemoQuery exercises all three specialists.
const DemoQuery = "I think I have the flu, what are the symptoms? Also, find me a doctor in California, " +
	"and tell me if my Gold Plan 2024 policy covers the consultation."

func askCmd(flags *globalFlags) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question; without arguments the demo question is asked",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if strings.TrimSpace(query) == "" {
				query = DemoQuery
			}

			e, err := newEnv(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer e.close()

			return ask(cmd.Context(), e.orchestrator, cli.NewPrinter(os.Stdout), query, verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the plan and per-step outcomes")
	return cmd
}

// ask runs one query and prints it. Only a missing specialist set is
// returned as an error; step failures are part of the answer.
func ask(ctx context.Context, o *orchestrator.Orchestrator, out *cli.Printer, query string, verbose bool) error {
	out.Info("Sending query to orchestrator:")
	out.Plain("'" + query + "'")

	res, err := o.Ask(ctx, query)
	if errors.Is(err, orchestrator.ErrNoSpecialists) {
		out.Fail("%s", res.Answer)
		return err
	}
	if err != nil {
		return err
	}

	renderResult(out, res, verbose)
	return nil
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/owulveryck/nexushealth/agents/orchestrator/state"
	"github.com/owulveryck/nexushealth/internal/cli"
)

func historyCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run in full",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if cfg.Orchestrator.HistoryPath == "" {
				return errors.New("run history is kept in memory only; set orchestrator.history_path or --history")
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cli.NewPrinter(os.Stdout)
			if len(args) == 1 {
				run, err := store.Get(cmd.Context(), args[0])
				if errors.Is(err, state.ErrRunNotFound) {
					return fmt.Errorf("no run with ID %s", args[0])
				}
				if err != nil {
					return err
				}
				renderRun(out, run)
				return nil
			}

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderRuns(out, runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list, 0 for all")
	return cmd
}

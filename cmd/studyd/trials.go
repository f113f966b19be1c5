package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/study-core/internal/sink"
	"github.com/GoSim-25-26J-441/study-core/internal/storage"
	"github.com/GoSim-25-26J-441/study-core/pkg/config"
	"github.com/GoSim-25-26J-441/study-core/pkg/logger"
	"github.com/GoSim-25-26J-441/study-core/pkg/models"
)

func trialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trials <study>",
		Short: "Print the trials of a study straight from the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			stateFilter, _ := cmd.Flags().GetString("state")

			cfg, err := config.LoadServerConfig(path)
			if err != nil {
				return err
			}
			var states []models.TrialState
			if stateFilter != "" {
				for _, part := range strings.Split(stateFilter, ",") {
					st, err := models.ParseTrialState(part)
					if err != nil {
						return err
					}
					states = append(states, st)
				}
			}
			return printTrials(cmd.Context(), cmd.OutOrStdout(), cfg.Store, args[0], states)
		},
	}
	cmd.Flags().StringP("config", "c", "", "path to studyd.toml")
	cmd.Flags().String("state", "", "comma-separated states to show (RUNNING, COMPLETE, FAILED)")
	return cmd
}

func printTrials(ctx context.Context, w io.Writer, cfg config.StoreConfig, name string, states []models.TrialState) error {
	store, err := storage.NewStore(cfg, logger.Discard())
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	info, err := store.GetStudy(ctx, name)
	if err != nil {
		return err
	}
	trials, err := store.ListTrials(ctx, name, states...)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "study: %s  direction: %s  trials: %d\n", info.Name, info.Direction, len(trials))
	if best, ok := models.BestTrial(trials, info.Direction); ok {
		fmt.Fprintf(w, "best: trial %d  value %g\n", best.ID, *best.Value)
	}
	fmt.Fprintln(w, sink.RenderTrials(trials))
	return nil
}

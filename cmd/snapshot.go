package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSnapshotCmd() *cobra.Command {
	var sinks []string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Loads the dataset once and saves it to the fallback stores",
		Long: `Runs the loader chain once and writes the resulting dataset to the
selected sinks (cache, csv, sql). Useful for seeding the fallbacks before the
first deployment or for exporting a CSV copy of the live data.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			ds, err := a.Loader.Refresh(cmd.Context())
			if err != nil {
				return fmt.Errorf("load dataset: %w", err)
			}

			saved := 0
			for _, sink := range a.Sinks() {
				if len(sinks) > 0 && !slices.Contains(sinks, sink.Name()) {
					continue
				}
				if err := sink.Save(cmd.Context(), ds); err != nil {
					return fmt.Errorf("save to %s: %w", sink.Name(), err)
				}
				a.Logger.Info("snapshot saved", zap.String("sink", sink.Name()), zap.String("source", ds.Source))
				saved++
			}
			if saved == 0 {
				return fmt.Errorf("no configured sink matches %v", sinks)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d cases from %s to %d sink(s)\n", len(ds.Cases), ds.Source, saved)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&sinks, "to", nil, "sinks to write (cache, csv, sql); defaults to every configured sink")
	return cmd
}

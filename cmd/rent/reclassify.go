package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-rent-must-flow/internal/cli"
)

func reclassifyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reclassify",
		Short: "Reclassify every transaction with the current rules",
		Long: `Run every transaction of the property through the mapping rules again and
rebuild the depreciation schedules of those whose classification changed.
Use --all-properties to cover every property.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			propertyID := a.property()
			if all, _ := cmd.Flags().GetBool("all-properties"); all {
				propertyID = 0
			}

			out := cmd.OutOrStdout()
			interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Reclassification")
			ctx := interrupts.HandleInterrupts(cmd.Context(), true)
			defer interrupts.Stop()

			return a.withServices(ctx, func(s *services) error {
				progress := cli.NewProgress(cmd.ErrOrStderr(), "Reclassifying transactions...")
				stats, err := s.engine.ReclassifyAll(ctx, propertyID, progress.Report)
				progress.Finish()
				if err != nil {
					if interrupts.WasInterrupted() {
						return nil
					}
					return err
				}
				return writeln(out, cli.FormatSuccess(fmt.Sprintf(
					"%d newly classified, %d reclassified, %d changed",
					stats.NewlyClassified, stats.Reclassified, stats.Changed)))
			})
		},
	}

	cmd.Flags().Bool("all-properties", false, "Reclassify the transactions of every property")
	return cmd
}

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forgets completed sections and the tree checkpoint",
		Long: `Removes scraper_progress.json and irc_data_progress.json so the next
crawl fetches every section again. Section files already written are kept.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			before := appInstance.GetTracker().Len()
			if err := appInstance.Reset(); err != nil {
				return fmt.Errorf("reset progress: %w", err)
			}
			appInstance.GetLogger().Info("Progress reset", zap.Int("sections_forgotten", before))
			fmt.Fprintf(cmd.OutOrStdout(), "Progress reset (%d completed sections forgotten).\n", before)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}

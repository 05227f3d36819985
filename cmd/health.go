package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/sift/internal/ui/styles"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the research service is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := newClient().Health(cmd.Context()); err != nil {
			return fmt.Errorf("%s: %w", cfg.Server.BaseURL, err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", styles.SuccessStyle.Render("ok"), cfg.Server.BaseURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

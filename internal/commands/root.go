package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runway-dev/runway/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "runway",
		Short:   "Recurring cash-flow rules and daily balance projection",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newForecastCommand())
	rootCmd.AddCommand(newRefreshCommand())

	return rootCmd
}

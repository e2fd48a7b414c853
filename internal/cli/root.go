package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "libload",
		Short:   "Load generator for the library service",
		Version: version,
		Long: `libload drives a library service (authors and books) with a mix of
open-model (arrival-rate) and closed-model (iteration-based) scenarios,
then prints latency percentiles, status codes, check results and
threshold verdicts.

Without --config the built-in profile is used: register_author and add_book
at a constant rate, update_book on a ramp, and three read scenarios on
fixed iteration counts.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// If no subcommand is provided, print help
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Debug logging to stderr")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command. Errors have already been printed by cobra
// when it returns.
func Execute() error {
	return RootCmd.Execute()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "libload %s\n", version)
		},
	}
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/libload/internal/library"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a load profile without sending any traffic",
		Long: `Parse the profile, apply defaults and bind every scenario to its
exec function. Every problem is reported with the field it concerns.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadTestConfig(cmd)
			if err != nil {
				return err
			}
			opts, err := library.EngineOptions(cfg, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d scenarios against %s\n", displayName(cfg), len(opts.Scenarios), cfg.Settings.BaseURL)
			for _, s := range opts.Scenarios {
				fmt.Fprintf(out, "  %s\n", s)
			}
			return nil
		},
	}

	addProfileFlags(cmd)
	return cmd
}

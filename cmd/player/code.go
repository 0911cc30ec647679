package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signage-player/webplayer/internal/identity"
)

func init() {
	codeCmd.Flags().Bool("reset", false, "Discard the stored code and generate a new one")
	rootCmd.AddCommand(codeCmd)
}

var codeCmd = &cobra.Command{
	Use:   "code",
	Short: "Print the registration code of this screen",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		rt, err := openWorkspace(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		ids := identity.NewManager(rt.repo, rt.logger)
		reset, err := cmd.Flags().GetBool("reset")
		if err != nil {
			return err
		}
		if reset {
			if err := ids.Reset(ctx); err != nil {
				return fmt.Errorf("reset registration code: %w", err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), ids.GetOrCreate(ctx))
		return nil
	},
}

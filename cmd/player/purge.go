package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signage-player/webplayer/internal/statestore"
)

func init() {
	purgeCmd.Flags().Bool("state", false, "Also forget the persisted screen assignment")
	rootCmd.AddCommand(purgeCmd)
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every cached media blob",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		rt, err := openWorkspace(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		removed, err := rt.blobs.PurgeMedia(ctx)
		if err != nil {
			return fmt.Errorf("purge media cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached media entries\n", removed)

		clearState, err := cmd.Flags().GetBool("state")
		if err != nil {
			return err
		}
		if clearState {
			if err := statestore.New(rt.repo, rt.logger).Clear(ctx); err != nil {
				return fmt.Errorf("clear playback state: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "playback state cleared")
		}
		return nil
	},
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/signage-player/webplayer/internal/identity"
	"github.com/signage-player/webplayer/internal/mediacache"
	"github.com/signage-player/webplayer/internal/model"
	"github.com/signage-player/webplayer/internal/statestore"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

type offlineStatus struct {
	Code          model.RegistrationCode `json:"code"`
	Serial        string                 `json:"serial"`
	DeviceID      string                 `json:"deviceId,omitempty"`
	Playlist      string                 `json:"playlist,omitempty"`
	Items         int                    `json:"items"`
	ScreenUpdate  bool                   `json:"screenUpdate"`
	CachedKeys    []string               `json:"cachedKeys"`
	UncachedItems []string               `json:"uncachedItems"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored identity, assignment and media cache",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		rt, err := openWorkspace(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		ids := identity.NewManager(rt.repo, rt.logger)
		keys, err := rt.blobs.ListMediaKeys(ctx)
		if err != nil {
			return fmt.Errorf("list cached media: %w", err)
		}
		out := offlineStatus{
			Code:          ids.GetOrCreate(ctx),
			Serial:        ids.Serial(ctx),
			CachedKeys:    keys,
			UncachedItems: []string{},
		}
		if assignment := statestore.New(rt.repo, rt.logger).Load(ctx); assignment != nil {
			out.DeviceID = assignment.DeviceID
			out.Playlist = assignment.Playlist.Name
			out.Items = len(assignment.Playlist.Items)
			out.ScreenUpdate = assignment.ScreenUpdate
			cached := lo.SliceToMap(keys, func(k string) (string, struct{}) { return k, struct{}{} })
			out.UncachedItems = lo.Filter(assignment.Playlist.URLs(), func(u string, _ int) bool {
				_, ok := cached[mediacache.Key(u, cfg.CacheKeyMode)]
				return !ok
			})
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

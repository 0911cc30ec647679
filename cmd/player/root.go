package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/signage-player/webplayer/internal/config"
	"github.com/signage-player/webplayer/internal/logging"
	"github.com/signage-player/webplayer/internal/mediacache"
	"github.com/signage-player/webplayer/internal/storage"
)

var cfg = config.Load()

func init() {
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Control server URL (PLAYER_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (PLAYER_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "Local HTTP listen address (PLAYER_HTTP_ADDR)")
	lo.Must0(rootCmd.MarkPersistentFlagFilename("db"))
}

var rootCmd = &cobra.Command{
	Use:          "player",
	Short:        "Signage web player with offline media cache",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd.RunE(cmd, args)
	},
}

// workspace holds the storage shared by every command.
type workspace struct {
	logger *slog.Logger
	repo   *storage.Repository
	blobs  mediacache.BlobStore
}

func openWorkspace(ctx context.Context) (*workspace, error) {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	repo, err := storage.New(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	rt := &workspace{logger: logger, repo: repo, blobs: repo}
	if cfg.CacheBackend == config.CacheBackendFS {
		fsStore, err := mediacache.NewFSStore(afero.NewOsFs(), cfg.CacheDir)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("initialize media directory: %w", err)
		}
		rt.blobs = fsStore
	}
	return rt, nil
}

func (rt *workspace) Close() error {
	return rt.repo.Close()
}

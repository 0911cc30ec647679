package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signage-player/webplayer/internal/channel"
	httpapi "github.com/signage-player/webplayer/internal/http"
	"github.com/signage-player/webplayer/internal/http/handlers"
	"github.com/signage-player/webplayer/internal/identity"
	"github.com/signage-player/webplayer/internal/mediacache"
	"github.com/signage-player/webplayer/internal/model"
	"github.com/signage-player/webplayer/internal/player"
	"github.com/signage-player/webplayer/internal/statestore"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the player and its local kiosk surface",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := openWorkspace(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()
		logger := rt.logger

		ids := identity.NewManager(rt.repo, logger)
		cache := mediacache.NewManager(
			rt.blobs,
			mediacache.NewHTTPFetcher(cfg.FetchTimeout, cfg.MaxAssetBytes),
			mediacache.Options{KeyMode: cfg.CacheKeyMode, Concurrency: cfg.FetchConcurrency},
			logger,
		)
		display := handlers.NewDisplay()
		runner := player.NewRunner(player.Deps{
			Identity: ids,
			Cache:    cache,
			State:    statestore.New(rt.repo, logger),
			Channels: func(code model.RegistrationCode) player.Channel {
				return channel.NewClient(cfg.ServerURL, code, channel.Options{MaxBackoff: cfg.ReconnectMaxBackoff}, logger)
			},
			Renderer:      display,
			SlideInterval: cfg.SlideInterval,
			Logger:        logger,
		})

		done := make(chan struct{})
		go func() {
			defer close(done)
			runner.Run(ctx)
		}()

		api := handlers.New(runner, display, ids, cache, logger)
		server := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewRouter(api))

		logger.Info("player starting",
			"addr", server.Addr,
			"server_url", cfg.ServerURL,
			"cache_backend", cfg.CacheBackend,
			"key_mode", cfg.CacheKeyMode,
		)
		err = httpapi.RunServer(ctx, server, logger)
		stop()
		<-done
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("player stopped")
		return nil
	},
}

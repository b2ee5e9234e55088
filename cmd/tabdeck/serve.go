package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/tabdeck"
	"pkt.systems/tabdeck/core"
	"pkt.systems/tabdeck/httpapi"
	"pkt.systems/tabdeck/internal/appconfig"
	"pkt.systems/tabdeck/internal/haptics"
	"pkt.systems/tabdeck/internal/persist"
	"pkt.systems/tabdeck/internal/shotstore"
	"pkt.systems/tabdeck/internal/webview"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var headful bool
	var noHTTP bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tab core against a headless browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if headful {
				cfg.Browser.Headless = false
			}
			serviceCfg, err := cfg.ServiceConfig()
			if err != nil {
				return err
			}

			tabStore, err := persist.NewStoreWithLogger(cfg.StateDir, cfg.Profile, logger)
			if err != nil {
				return err
			}
			shots, err := shotstore.Open(cfg.Screenshots.Dir, logger)
			if err != nil {
				return err
			}
			defer func() { _ = shots.Close() }()

			engine, err := webview.New(cmd.Context(), toEngineOptions(cfg))
			if err != nil {
				return err
			}
			defer engine.Shutdown()
			logger.Info("browser engine ready", "headless", cfg.Browser.Headless, "width", cfg.Device.Width, "height", cfg.Device.Height)

			serverCfg := tabdeck.ServerConfig{
				Service: serviceCfg,
				HTTP:    toHTTPConfig(cfg.HTTP),
			}
			serverDeps := tabdeck.ServerDeps{
				ServiceDeps: core.ServiceDeps{
					Engine:      engine,
					TabStore:    tabStore,
					Screenshots: shots,
					Haptics:     haptics.New(logger),
					Logger:      logger,
				},
			}
			opts := []tabdeck.ServerOption{tabdeck.WithRestore()}
			if !noHTTP {
				opts = append(opts, tabdeck.WithHTTP())
			}
			server, err := tabdeck.New(serverCfg, serverDeps, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if !noHTTP {
				logger.Info("http server listening", "addr", serverCfg.HTTP.Addr, "base_path", serverCfg.HTTP.BasePath)
			}
			if err := server.Start(ctx); err != nil {
				return err
			}
			if err := server.Wait(); err != nil {
				return err
			}
			// Wait returns on cancellation; the deferred teardown must not
			// race the final tab store flush.
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Stop(stopCtx)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&headful, "headful", false, "show the browser window")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "disable the HTTP debug surface")
	return cmd
}

func toEngineOptions(cfg appconfig.Config) webview.Options {
	opts := webview.DefaultOptions()
	opts.ExecPath = cfg.Browser.ExecPath
	opts.Headless = cfg.Browser.Headless
	opts.UserDataDir = cfg.Browser.UserDataDir
	opts.HomeURL = cfg.HomeURL
	opts.CaptureDir = cfg.Screenshots.Dir
	if cfg.Device.Width > 0 {
		opts.Width = int64(cfg.Device.Width)
	}
	if cfg.Device.Height > 0 {
		opts.Height = int64(cfg.Device.Height)
	}
	if cfg.Browser.CaptureQuality > 0 {
		opts.CaptureQuality = int64(cfg.Browser.CaptureQuality)
	}
	return opts
}

func toHTTPConfig(cfg appconfig.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		Addr:       cfg.Addr,
		BasePath:   cfg.BasePath,
		HubHistory: 1000,
	}
}

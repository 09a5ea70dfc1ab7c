package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"eTEats_web/assets"
	"eTEats_web/config"
	"eTEats_web/gateway"
	"eTEats_web/handlers"
	"eTEats_web/ingest"
	"eTEats_web/loaders"
	"eTEats_web/logger"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.Open(ctx, cfg.Gateway, logger.Component(log, "gateway"))
	if err != nil {
		return errors.Wrap(err, "failed to open gateway")
	}
	defer gw.Close()

	worker, err := newAssetWorker(ctx, cfg.Assets, logger.Component(log, "assets"))
	if err != nil {
		return err
	}

	router := handlers.NewRouter(handlers.Deps{
		Config:  *cfg,
		Log:     log,
		Loader:  loaders.New(gw.Public, logger.Component(log, "loaders")),
		Ingest:  ingest.NewService(gw.Service, cfg.Ingest.RemoteSQL, logger.Component(log, "ingest")),
		Assets:  worker,
		Version: version,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout),
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("version", version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case err, ok := <-errCh:
			if ok {
				return errors.Wrap(err, "server failed")
			}
			return nil
		case <-hup:
			upgradeAssets(ctx, worker, cfg.Assets, log)
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownTimeout))
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errors.Wrap(err, "shutdown")
			}
			return nil
		}
	}
}

// newAssetWorker builds the asset worker from config and runs its first
// install. An origin that is down at startup is logged, not fatal: requests
// still go to the network first.
func newAssetWorker(ctx context.Context, cfg config.AssetsConfig, log zerolog.Logger) (*assets.Worker, error) {
	origin, manifest, err := assetSource(cfg)
	if err != nil {
		return nil, err
	}

	worker := assets.NewWorker(cfg.Version, manifest, origin, log)
	if err := worker.Install(ctx); err != nil {
		log.Error().Err(err).Msg("asset install failed")
		return worker, nil
	}
	worker.Activate()
	log.Info().Str("cache", assets.CacheName(worker.Version())).Int("assets", len(manifest)).Msg("assets installed")
	return worker, nil
}

// upgradeAssets installs a fresh version from the current manifest.
func upgradeAssets(ctx context.Context, worker *assets.Worker, cfg config.AssetsConfig, log zerolog.Logger) {
	_, manifest, err := assetSource(cfg)
	if err != nil {
		log.Error().Err(err).Msg("rebuild asset manifest")
		return
	}
	next := assets.NewVersion()
	if err := worker.Upgrade(ctx, next, manifest); err != nil {
		log.Error().Err(err).Str("version", next).Msg("asset upgrade failed")
		return
	}
	log.Info().Str("cache", assets.CacheName(next)).Msg("assets upgraded")
}

func assetSource(cfg config.AssetsConfig) (assets.Origin, []string, error) {
	var origin assets.Origin
	if cfg.UpstreamURL != "" {
		httpOrigin, err := assets.NewHTTPOrigin(cfg.UpstreamURL, nil)
		if err != nil {
			return nil, nil, err
		}
		origin = httpOrigin
	} else {
		origin = assets.NewDirOrigin(cfg.Dir)
	}

	if len(cfg.Manifest) > 0 || cfg.UpstreamURL != "" {
		return origin, cfg.Manifest, nil
	}
	manifest, err := assets.BuildManifest(os.DirFS(cfg.Dir))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to list assets in %s", cfg.Dir)
	}
	return origin, manifest, nil
}

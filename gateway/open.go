package gateway

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"eTEats_web/config"
)

// Open builds the process-wide Gateway for the configured backend.
//
// sqlite and firestore use one store for both roles. Postgres opens the public
// DSN for reads and, when set, the service DSN for ingestion; without a
// service DSN ingestion is unavailable.
func Open(ctx context.Context, cfg config.GatewayConfig, log zerolog.Logger) (*Gateway, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		log.Info().Str("backend", cfg.Backend).Str("path", cfg.SQLitePath).Msg("gateway ready")
		return New(store, store), nil

	case config.BackendPostgres:
		public, err := OpenPostgres(ctx, cfg.PublicDSN)
		if err != nil {
			return nil, errors.Wrap(err, "public store")
		}
		var service Store
		if cfg.ServiceDSN != "" {
			privileged, err := OpenPostgres(ctx, cfg.ServiceDSN)
			if err != nil {
				public.Close()
				return nil, errors.Wrap(err, "service store")
			}
			service = privileged
		} else {
			log.Warn().Msg("no service DSN configured; ingestion is disabled")
		}
		log.Info().Str("backend", cfg.Backend).Bool("service", service != nil).Msg("gateway ready")
		return New(public, service), nil

	case config.BackendFirestore:
		store, err := OpenFirestore(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, err
		}
		log.Info().Str("backend", cfg.Backend).Str("project", cfg.FirestoreProject).Msg("gateway ready")
		return New(store, store), nil
	}
	return nil, errors.Errorf("unknown backend %q", cfg.Backend)
}

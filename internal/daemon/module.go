package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/lancera/courier/internal/bus"
	"github.com/lancera/courier/internal/config"
	"github.com/lancera/courier/internal/httpapi"
	"github.com/lancera/courier/internal/identity"
	"github.com/lancera/courier/internal/lock"
	"github.com/lancera/courier/internal/logging"
	"github.com/lancera/courier/internal/registry"
	"github.com/lancera/courier/internal/relay"
	"github.com/lancera/courier/internal/status"
	"github.com/lancera/courier/internal/store"
	"github.com/lancera/courier/internal/ws"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the startup options passed to the fx module.
type Params struct {
	ConfigPath string
}

// Module returns the fx module for courierd, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("courierd",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideMachine,
			provideLock,
			provideStore,
			provideRegistry,
			provideResolver,
			provideRouter,
			provideWSHandler,
			provideAPI,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired", zap.String("dir", cfg.DataDir))
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	dbPath := cfg.DBPath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(cfg.DataDir, dbPath)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRegistry() *registry.Registry {
	return registry.New()
}

func provideResolver(cfg *config.Config) *identity.Resolver {
	return identity.NewResolver(cfg.TokenSecret, cfg.TokenIssuer)
}

func provideRouter(db *store.DB, reg *registry.Registry, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *relay.Router {
	return relay.NewRouter(db, reg, b, logger, cfg.MaxBodyLen)
}

func provideWSHandler(resolver *identity.Resolver, reg *registry.Registry, router *relay.Router,
	cfg *config.Config, logger *zap.Logger) *ws.Handler {
	return ws.NewHandler(resolver, reg, router, logger,
		cfg.AllowedOrigins, time.Duration(cfg.JoinGrace), cfg.MaxBodyLen)
}

func provideAPI(db *store.DB, resolver *identity.Resolver, router *relay.Router,
	reg *registry.Registry, machine *status.Machine, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(db, resolver, router, reg, machine, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB,
	machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
					_ = machine.Transition(status.Error)
				}
			}()
			if err := machine.Transition(status.Ready); err != nil {
				return err
			}
			logger.Info("relay ready", zap.String("addr", srv.Addr()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = machine.Transition(status.Draining)
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("error stopping http server", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			_ = machine.Transition(status.Stopped)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("relay stopped")
			return nil
		},
	})
}

package daemon

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/matheus3301/wppq/internal/api"
	"github.com/matheus3301/wppq/internal/bus"
	"github.com/matheus3301/wppq/internal/cache"
	"github.com/matheus3301/wppq/internal/config"
	"github.com/matheus3301/wppq/internal/dispatch"
	"github.com/matheus3301/wppq/internal/journal"
	"github.com/matheus3301/wppq/internal/lock"
	"github.com/matheus3301/wppq/internal/logging"
	"github.com/matheus3301/wppq/internal/session"
	"github.com/matheus3301/wppq/internal/status"
	"github.com/matheus3301/wppq/internal/store"
	"github.com/matheus3301/wppq/internal/window"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	// ConfigPath and EnvPath default to the files under ~/.wppq.
	ConfigPath string
	EnvPath    string
	// QRWriter receives the terminal rendering of pairing codes.
	QRWriter io.Writer
	// GatewayPollInterval is the GreenAPI state poll period; zero means 30s.
	GatewayPollInterval time.Duration
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideCache,
			provideGateway,
			providePolicy,
			provideController,
			provideJournal,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

// StopTimeout returns how long the fx app should allow OnStop hooks: one
// full send timeout for the in-flight message plus room for the journal
// and the store to close.
func StopTimeout(p Params) time.Duration {
	sendTimeout := dispatch.DefaultSendTimeout
	if cfg, err := provideConfig(p); err == nil && cfg.Dispatch.SendTimeout.Duration > 0 {
		sendTimeout = cfg.Dispatch.SendTimeout.Duration
	}
	return sendTimeout + 15*time.Second
}

func provideConfig(p Params) (*config.Config, error) {
	cfgPath := p.ConfigPath
	if cfgPath == "" {
		cfgPath = session.ConfigPath()
	}
	envPath := p.EnvPath
	if envPath == "" {
		envPath = session.EnvPath()
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.ApplyEnv(envPath); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, logging.ParseLevel(cfg.LogLevel))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by two daemons.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
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

func provideCache(cfg *config.Config, logger *zap.Logger) cache.DeliveryCache {
	rc := cfg.Redis
	if rc.Addr == "" {
		return cache.Nop{}
	}
	logger.Info("delivery cache enabled", zap.String("addr", rc.Addr), zap.Int("db", rc.DB))
	return cache.NewRedisCache(redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	}), rc.TTL.Duration)
}

func provideGateway(p Params, _ *lock.Lock, cfg *config.Config, b *bus.Bus, machine *status.Machine, logger *zap.Logger) (Gateway, error) {
	return newGateway(context.Background(), p, cfg, b, machine, logger)
}

func providePolicy(cfg *config.Config, logger *zap.Logger) (window.Policy, error) {
	loc, err := cfg.Window.Location()
	if err != nil {
		return window.Policy{}, err
	}
	path := cfg.Window.HolidaysFile
	if path == "" {
		path = session.HolidaysPath()
	}
	holidays, err := window.LoadHolidays(path)
	if err != nil {
		return window.Policy{}, err
	}
	logger.Info("holiday calendar loaded", zap.String("path", path), zap.Int("days", holidays.Len()))

	p := window.Policy{
		Location:         loc,
		StartHour:        cfg.Window.StartHour,
		EndHour:          cfg.Window.EndHour,
		FridayCutoffHour: cfg.Window.FridayCutoffHour,
		DailyLimit:       cfg.Dispatch.DailyLimit,
		Calendar:         holidays,
	}
	return p, p.Validate()
}

func provideController(gw Gateway, b *bus.Bus, policy window.Policy, cfg *config.Config, logger *zap.Logger) *dispatch.Controller {
	return dispatch.NewController(gw, b, logger.Named("dispatch"), dispatch.Options{
		SendTimeout: cfg.Dispatch.SendTimeout.Duration,
		Location:    policy.Location,
	})
}

func provideJournal(db *store.DB, c cache.DeliveryCache, b *bus.Bus, logger *zap.Logger) *journal.Engine {
	return journal.NewEngine(db, c, b, logger.Named("journal"))
}

func provideHandler(ctrl *dispatch.Controller, policy window.Policy, db *store.DB, machine *status.Machine, gw Gateway, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *api.Handler {
	return api.NewHandler(api.Deps{
		Dispatch:    ctrl,
		Policy:      policy,
		Store:       db,
		Gateway:     machine,
		GatewayKind: cfg.Gateway.Kind,
		QR:          gw.QR(),
		CountryCode: cfg.Gateway.CountryCode,
		Logger:      logger.Named("api"),
		Bus:         b,
	})
}

type lifecycleParams struct {
	fx.In

	Server     *Server
	Lock       *lock.Lock
	Store      *store.DB
	Cache      cache.DeliveryCache
	Gateway    Gateway
	Controller *dispatch.Controller
	Journal    *journal.Engine
	Machine    *status.Machine
	Logger     *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, in lifecycleParams) {
	logger := in.Logger
	opened := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if rc, ok := in.Cache.(*cache.RedisCache); ok {
				if err := rc.Ping(ctx); err != nil {
					logger.Warn("delivery cache unreachable", zap.Error(err))
				}
			}

			// The journal subscribes before the controller can publish.
			in.Journal.Start(context.Background())
			in.Controller.Start(context.Background())

			go func() {
				if err := in.Server.Start(); err != nil {
					logger.Error("api server error", zap.Error(err))
				}
			}()

			go func() {
				defer close(opened)
				if err := in.Gateway.Open(context.Background()); err != nil {
					logger.Error("gateway connect failed", zap.Error(err))
					_ = in.Machine.Drive(status.Error, err.Error())
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			in.Server.Stop(ctx)
			if err := in.Controller.Shutdown(ctx); err != nil {
				logger.Warn("in-flight send did not settle before shutdown", zap.Error(err))
			}
			in.Journal.Stop()
			// Close must not overtake a connect that is still running.
			select {
			case <-opened:
			case <-ctx.Done():
				logger.Warn("gateway still connecting at shutdown")
			}
			if err := in.Gateway.Close(); err != nil {
				logger.Warn("error closing gateway", zap.Error(err))
			}
			if rc, ok := in.Cache.(*cache.RedisCache); ok {
				_ = rc.Close()
			}
			if err := in.Store.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := in.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

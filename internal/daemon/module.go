package daemon

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lucasdpb/satchel/internal/api"
	"github.com/lucasdpb/satchel/internal/bus"
	"github.com/lucasdpb/satchel/internal/cache"
	"github.com/lucasdpb/satchel/internal/config"
	"github.com/lucasdpb/satchel/internal/lifecycle"
	"github.com/lucasdpb/satchel/internal/lock"
	"github.com/lucasdpb/satchel/internal/logging"
	"github.com/lucasdpb/satchel/internal/metrics"
	"github.com/lucasdpb/satchel/internal/notify"
	"github.com/lucasdpb/satchel/internal/outbox"
	"github.com/lucasdpb/satchel/internal/prefs"
	"github.com/lucasdpb/satchel/internal/profile"
	"github.com/lucasdpb/satchel/internal/status"
	"github.com/lucasdpb/satchel/internal/store"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
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
			providePrefs,
			provideMetrics,
			provideQueue,
			provideEngine,
			provideInstaller,
			provideMonitor,
			provideDispatcher,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.LoadOrDefault(profile.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
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

func providePrefs(p Params) (*prefs.Prefs, error) {
	return prefs.Load(profile.PrefsPath(p.ProfileName))
}

func provideMetrics() *metrics.Recorder {
	return metrics.NewRecorder(nil)
}

func provideQueue(db *store.DB, b *bus.Bus, logger *zap.Logger, rec *metrics.Recorder) *outbox.Queue {
	submitter := outbox.NewHTTPSubmitter(&http.Client{Timeout: 30 * time.Second})
	return outbox.NewQueue(db, submitter, b, logger, rec)
}

func provideEngine(cfg *config.Config, db *store.DB, q *outbox.Queue, logger *zap.Logger, rec *metrics.Recorder) *cache.Engine {
	classifier := cache.NewClassifier(cfg.DynamicPrefixes)
	return cache.NewEngine(db, http.DefaultTransport, classifier, q,
		cfg.CacheVersion, cfg.OfflinePage, logger, rec)
}

func provideInstaller(cfg *config.Config, db *store.DB, b *bus.Bus, logger *zap.Logger) *lifecycle.Installer {
	client := &http.Client{Timeout: 30 * time.Second}
	return lifecycle.NewInstaller(db, client, b, logger, cfg.APIBaseURL, cfg.CacheVersion, cfg.ShellAssets)
}

func provideMonitor(cfg *config.Config, m *status.Machine, b *bus.Bus, q *outbox.Queue, db *store.DB, logger *zap.Logger) *lifecycle.Monitor {
	return lifecycle.NewMonitor(m, b, q, db, nil, logger, cfg.APIBaseURL+cfg.HealthPath, cfg.ProbeEvery())
}

func provideDispatcher(db *store.DB, b *bus.Bus, logger *zap.Logger, pr *prefs.Prefs) *notify.Dispatcher {
	return notify.NewDispatcher(db, b, logger, nil, nil, pr)
}

func provideHandler(cfg *config.Config, db *store.DB, q *outbox.Queue, d *notify.Dispatcher, pr *prefs.Prefs, m *status.Machine, ins *lifecycle.Installer, engine *cache.Engine, rec *metrics.Recorder, logger *zap.Logger) http.Handler {
	return api.NewHandler(api.Deps{
		DB:         db,
		Queue:      q,
		Dispatcher: d,
		Prefs:      pr,
		Machine:    m,
		Installer:  ins,
		Proxy:      engine,
		BaseURL:    cfg.APIBaseURL,
		Metrics:    rec,
		Logger:     logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *Server, lk *lock.Lock, ins *lifecycle.Installer, q *outbox.Queue, mon *lifecycle.Monitor, engine *cache.Engine, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Install and activate the configured cache version. A failed
			// install keeps the previous version active and degrades to
			// whatever is already cached.
			_ = machine.Transition(status.Installing)
			if err := ins.EnsureInstalled(context.Background()); err != nil {
				logger.Error("install failed, previous version stays active", zap.Error(err))
			}

			// Start the queue drain loop and the connectivity prober.
			q.Start(context.Background(), cfg.DrainEvery())
			mon.Start(context.Background())

			// Serve the control API in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			mon.Stop()
			q.Stop()
			srv.Stop(ctx)
			// Let in-flight background refreshes land before the store closes.
			engine.Wait()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

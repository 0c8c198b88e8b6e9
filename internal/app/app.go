package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	dbpkg "github.com/yungbote/avatarworld/internal/data/db"
	httpserver "github.com/yungbote/avatarworld/internal/http"
	"github.com/yungbote/avatarworld/internal/notify"
	"github.com/yungbote/avatarworld/internal/observability"
	"github.com/yungbote/avatarworld/internal/platform/logger"
	"github.com/yungbote/avatarworld/internal/scheduler"
)

const (
	TaskThreadPrune        = "thread-prune"
	TaskVideoJobs          = "video-jobs"
	TaskThreadStateRefresh = "thread-state-refresh"
)

type App struct {
	Log       *logger.Logger
	Cfg       Config
	DB        *dbpkg.Service
	Clients   Clients
	Repos     Repos
	Services  Services
	Scheduler *scheduler.Driver
	Server    *httpserver.Server

	otelShutdown func(context.Context) error

	stopNotifyWatch   context.CancelFunc
	notificationsSeen atomic.Int64
}

func New(ctx context.Context, configPath string) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return NewWithLogger(ctx, log, configPath)
}

func NewWithLogger(ctx context.Context, log *logger.Logger, configPath string) (*App, error) {
	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log, configPath)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	otelShutdown, err := observability.InitOTel(ctx, log, cfg.Otel)
	if err != nil {
		log.Warn("otel init failed (continuing without tracing)", "error", err)
	}

	store, err := openStore(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = store.Close()
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(store.DB(), log)
	serviceset := wireServices(log, cfg, reposet, clients)
	sched := scheduler.New(log)
	handlerset := wireHandlers(log, serviceset, sched)

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           store,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Scheduler:    sched,
		Server:       wireServer(log, cfg.Otel.ServiceName, handlerset),
		otelShutdown: otelShutdown,
	}, nil
}

// Migrate opens the configured store and brings the schema up to date.
func Migrate(log *logger.Logger, configPath string) error {
	cfg, err := LoadConfig(log, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := openStore(log, cfg)
	if err != nil {
		return err
	}
	return store.Close()
}

func openStore(log *logger.Logger, cfg Config) (*dbpkg.Service, error) {
	store, err := dbpkg.Open(log, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", cfg.DBDriver, err)
	}
	if err := store.AutoMigrateAll(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s automigrate: %w", cfg.DBDriver, err)
	}
	return store, nil
}

// Start registers the periodic tasks and starts the scheduler.
func (a *App) Start() error {
	if a == nil || a.Scheduler == nil {
		return fmt.Errorf("app not initialized")
	}
	tracker := a.Services.Tracker
	if err := a.Scheduler.AddTask(TaskThreadPrune, func(context.Context) error {
		tracker.Prune()
		return nil
	}, a.Cfg.Threads.CleanupInterval); err != nil {
		return err
	}
	if err := a.Scheduler.AddTask(TaskVideoJobs, func(ctx context.Context) error {
		_, err := a.Services.VideoJobs.Tick(ctx)
		return err
	}, a.Services.VideoJobs.Config().PollInterval); err != nil {
		return err
	}
	if err := a.Scheduler.AddTask(TaskThreadStateRefresh, a.Services.ThreadState.Refresh,
		a.Services.ThreadState.Config().RefreshInterval); err != nil {
		return err
	}
	a.Scheduler.Start()
	if a.Clients.Redis != nil {
		if err := a.watchNotifications(); err != nil {
			a.Log.Warn("Notification watch disabled", "error", err)
		}
	}
	return nil
}

// watchNotifications logs every message published on the notify bus, so a
// deployment can see what its bots are being sent.
func (a *App) watchNotifications() error {
	ctx, cancel := context.WithCancel(context.Background())
	log := a.Log.With("component", "NotifyWatch")
	err := notify.Subscribe(ctx, a.Clients.Redis, log, a.Cfg.RedisChannel, func(msg notify.Message) {
		a.notificationsSeen.Add(1)
		log.Info("Notification published", "destination", msg.Destination, "event", msg.Event, "sent_at", msg.SentAt)
	})
	if err != nil {
		cancel()
		return err
	}
	a.stopNotifyWatch = cancel
	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
		errCh <- a.Server.Run(a.Cfg.HTTPAddr)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops intake first, then background work, then closes clients.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Server != nil {
		errs = append(errs, a.Server.Shutdown(ctx))
	}
	if a.Scheduler != nil {
		errs = append(errs, a.Scheduler.Stop(ctx))
	}
	if a.Services.VideoJobs != nil {
		errs = append(errs, a.Services.VideoJobs.Shutdown(ctx))
	}
	if a.stopNotifyWatch != nil {
		a.stopNotifyWatch()
	}
	a.Clients.Close()
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.otelShutdown != nil {
		errs = append(errs, a.otelShutdown(ctx))
	}
	if a.Log != nil {
		a.Log.Sync()
	}
	return errors.Join(errs...)
}

package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	httpHandler "github.com/minhtran-dev/gridstore/internal/adapter/inbound/http"
	"github.com/minhtran-dev/gridstore/internal/adapter/outbound/memdoc"
	"github.com/minhtran-dev/gridstore/internal/adapter/outbound/redisdoc"
	"github.com/minhtran-dev/gridstore/internal/config"
	"github.com/minhtran-dev/gridstore/internal/port"
	"github.com/minhtran-dev/gridstore/internal/service"
	"github.com/minhtran-dev/gridstore/pkg/idgen"
	"github.com/redis/go-redis/v9"
)

type App struct {
	cfg    *config.Config
	server *httpHandler.Server
	store  port.FileStore

	reconcileStop chan struct{}
}

func New(configPath string) (*App, error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logger.InitLogger(&cfg.Logger)

	// 3. Document-store backend and ID-generator clock
	var db port.Database
	var clock idgen.Clock
	switch cfg.Backend.Kind {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		db = redisdoc.New(redisClient, true)
		clock = idgen.NewRedisClock(redisClient)
	case "memory", "":
		db = memdoc.New(true)
		clock = &idgen.SystemClock{}
	default:
		return nil, fmt.Errorf("unknown backend kind: %s", cfg.Backend.Kind)
	}

	idGen, err := idgen.New(cfg.App.NodeID, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to init id generator: %w", err)
	}

	// 4. File store (ensures the unique chunk index)
	store, err := service.New(cfg, db)
	if err != nil {
		return nil, fmt.Errorf("failed to init file store: %w", err)
	}

	// 5. HTTP Server
	httpServer := httpHandler.NewServer(cfg, store, idGen)

	return &App{
		cfg:           cfg,
		server:        httpServer,
		store:         store,
		reconcileStop: make(chan struct{}),
	}, nil
}

func (a *App) Run() error {
	a.startReconcileLoop()

	logger.Infow("gridstore starting", "addr", a.cfg.Server.Addr, "prefix", a.store.Prefix(), "backend", a.cfg.Backend.Kind)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case sig := <-stop:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-serverErrCh:
		runErr = fmt.Errorf("http server failed: %w", err)
		logger.Errorw("HTTP server exited unexpectedly", "error", err.Error())
	}

	logger.Info("Shutting down gridstore")
	close(a.reconcileStop)
	if err := a.server.Stop(); err != nil {
		logger.Errorw("HTTP shutdown error", "error", err.Error())
		if runErr == nil {
			runErr = err
		}
	}

	return runErr
}

// startReconcileLoop runs the orphan-metadata sweep on the configured
// interval. Disabled when the interval is zero.
func (a *App) startReconcileLoop() {
	interval := time.Duration(a.cfg.Store.ReconcileEveryMS) * time.Millisecond
	if interval <= 0 {
		return
	}
	grace := time.Duration(a.cfg.Store.ReconcileGraceMS) * time.Millisecond

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.reconcileStop:
				return
			case <-ticker.C:
				removed, err := a.store.Reconcile(context.Background(), grace)
				if err != nil {
					logger.Warnw("Reconcile sweep failed", "error", err.Error())
					continue
				}
				if removed > 0 {
					logger.Infow("Reconcile sweep removed orphans", "count", removed)
				}
			}
		}
	}()
}

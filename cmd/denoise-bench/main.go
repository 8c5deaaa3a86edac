package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"denoise-bench/internal/config"
	"denoise-bench/internal/handler"
	"denoise-bench/internal/logger"
	"denoise-bench/internal/opencv/conversion"
	"denoise-bench/internal/pipeline"
	"denoise-bench/internal/processing/filters"
	"denoise-bench/internal/session"
	"denoise-bench/internal/shutdown"
)

const (
	AppName    = "denoise-bench"
	AppVersion = "1.0.0"
)

var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Application owns the long-lived service components
type Application struct {
	cfg      *config.Config
	logger   logger.Logger
	store    session.Store
	janitor  *session.MemoryStore
	pipeline *pipeline.Coordinator
	server   *http.Server
	shutdown *shutdown.Manager
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	initConfig := flag.Bool("init-config", false, "write a default configuration file and exit")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		log.Fatalf("Application initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("Application execution failed: %v", err)
	}
}

// NewApplication builds the session store, pipeline and HTTP server from cfg
func NewApplication(cfg *config.Config) (*Application, error) {
	appLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	appLogger.Info("Application", "starting", map[string]interface{}{
		"version":     AppVersion,
		"build_time":  BuildTime,
		"git_commit":  GitCommit,
		"go_version":  runtime.Version(),
		"num_cpu":     runtime.NumCPU(),
		"session_ttl": cfg.Session.TTL.String(),
		"backend":     cfg.Session.Backend,
	})

	app := &Application{
		cfg:      cfg,
		logger:   appLogger,
		shutdown: shutdown.NewManager(appLogger, 10*time.Second),
	}

	if err := app.setupStore(); err != nil {
		return nil, err
	}

	coordinator, err := pipeline.NewCoordinator(pipeline.Options{
		Store:   app.store,
		Bank:    filters.DefaultBank(),
		Codec:   conversion.Codec{Grayscale: cfg.Processing.Grayscale},
		Logger:  appLogger,
		Sources: pipeline.SeededSources(cfg.Processing.Seed),
		Workers: cfg.Processing.Workers,
		PSNRCap: cfg.Metrics.PSNRCap,
	})
	if err != nil {
		return nil, err
	}
	app.pipeline = coordinator

	gin.SetMode(cfg.Server.Mode)
	router := handler.NewRouter(handler.NewHandler(coordinator, cfg.Upload, appLogger), appLogger)

	app.server = &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	app.shutdown.Register("http server", shutdown.Func(app.stopServer))

	return app, nil
}

func (app *Application) setupStore() error {
	switch app.cfg.Session.Backend {
	case "redis":
		store := session.NewRedisStore(&app.cfg.Redis, app.cfg.Session.TTL)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			store.Shutdown()
			return fmt.Errorf("redis connection failed: %w", err)
		}
		app.logger.Info("Application", "redis connected", map[string]interface{}{
			"addr": app.cfg.Redis.Addr,
		})
		app.store = store
		app.shutdown.Register("redis store", store)
	default:
		store := session.NewMemoryStore(app.cfg.Session.TTL,
			session.WithSweepInterval(app.cfg.Session.SweepInterval),
			session.WithLogger(app.logger),
		)
		app.store = store
		app.janitor = store
		app.shutdown.Register("session janitor", store)
	}
	return nil
}

// Run serves HTTP until a shutdown signal arrives
func (app *Application) Run() error {
	app.shutdown.Listen()

	if app.janitor != nil {
		go app.janitor.Run(app.shutdown.Context())
	}
	go app.monitor(app.shutdown.Context())

	app.logger.Info("Application", "server starting", map[string]interface{}{
		"addr":    app.cfg.Server.Port,
		"filters": app.pipeline.FilterNames(),
	})

	if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.shutdown.Shutdown()
		return err
	}

	app.shutdown.Wait()
	app.logger.Info("Application", "terminated", nil)
	return nil
}

func (app *Application) stopServer() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("Application", err, map[string]interface{}{
			"step": "http server shutdown",
		})
	}
}

// monitor periodically logs memory use and the in-memory session count
func (app *Application) monitor(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)

			fields := map[string]interface{}{
				"go_memory_mb":    memStats.Alloc / 1024 / 1024,
				"go_gc_runs":      memStats.NumGC,
				"goroutine_count": runtime.NumGoroutine(),
			}
			if app.janitor != nil {
				fields["sessions"] = app.janitor.Len()
			}
			app.logger.Debug("Application", "runtime stats", fields)
		case <-ctx.Done():
			return
		}
	}
}

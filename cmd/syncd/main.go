// Command syncd serves the session, ticket and real-time sync endpoints.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/localfirst/syncd/events"
	"github.com/localfirst/syncd/manage"
	"github.com/localfirst/syncd/migrate"
	"github.com/localfirst/syncd/realtime"
	"github.com/localfirst/syncd/seed"
	"github.com/localfirst/syncd/server"
	"github.com/localfirst/syncd/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	configDir := pflag.String("config-dir", "", "directory holding config.yaml and config.<env>.yaml (enables file loading)")
	envName := pflag.String("env", "", "config environment, overrides APP_ENV")
	addr := pflag.String("addr", "", "listen address, overrides http.addr")
	pflag.Parse()

	cfg, cfgErr := server.LoadAppConfig(server.LoadOptions{
		ConfigDir: *configDir,
		Env:       *envName,
		Files:     pflag.CommandLine.Changed("config-dir"),
	})
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	if cfgErr != nil {
		logger.Fatal("load config", zap.Error(cfgErr))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("env", cfg.Env),
		zap.String("addr", cfg.HTTP.Addr),
	)
	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := cfg.DatabaseDSN()
	if dsn == "" {
		logger.Fatal("missing database dsn (SYNCD_DATABASE__DSN)")
	}
	if cfg.Database.MigrateOnStart {
		if err := migrate.Run(ctx, migrate.Options{
			Driver: "postgres",
			DSN:    dsn,
			Logger: zap.NewStdLog(logger.Named("migrate")),
		}); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
	} else if err := migrate.RunFromEnv(ctx); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	users := store.NewUserStore(db)
	vaults := store.NewVaultStore(db)

	if opts := seed.OptionsFromEnv(); opts.Email != "" {
		opts.Logger = zap.NewStdLog(logger.Named("seed"))
		if _, err := seed.Run(ctx, users, opts); err != nil {
			logger.Fatal("seed", zap.Error(err))
		}
	}

	kv := openExpiringStore(cfg.Store, logger)
	defer kv.Close()

	mgr, err := manage.NewManager(cfg.TokenConfig(), kv)
	if err != nil {
		logger.Fatal("token engine", zap.Error(err))
	}
	mgr.MapLogger(logger.Named("manage"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	bus := events.NewBus()
	srv := server.NewServer(cfg.ServerConfig(), mgr, users, bus)
	srv.SetLogger(logger.Named("http"))

	rt := realtime.NewServer(cfg.SyncConfig(), srv.Tickets, vaults,
		realtime.WithLogger(logger.Named("realtime")),
		realtime.WithMetrics(realtime.NewMetrics(reg)),
	)
	translator := events.NewTranslator(logger.Named("events"))
	translator.RegisterActionCallback(rt.Hub().Dispatch)
	defer translator.Attach(bus)()

	srv.SetRealtimeHandler(rt.Path(), rt)
	srv.SetMetricsGatherer(reg)

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.NewGinEngine(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		rt.Hub().CloseAll()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}

// openExpiringStore prefers Valkey when configured and falls back to an
// in-process BuntDB store.
func openExpiringStore(cfg server.StoreConfig, logger *zap.Logger) store.ExpiringStore {
	if cfg.Driver == "valkey" {
		addr := cfg.Addr
		if addr == "" {
			addr = "127.0.0.1:6379"
		}
		vs, err := store.NewValkeyStore(addr, cfg.Prefix)
		if err == nil {
			logger.Info("using valkey expiring store", zap.String("addr", addr))
			return vs
		}
		logger.Warn("valkey not available, falling back to buntdb", zap.String("addr", addr), zap.Error(err))
	}
	bs, err := store.NewBuntStore(cfg.Path)
	if err != nil {
		logger.Fatal("open buntdb", zap.Error(err))
	}
	logger.Info("using buntdb expiring store", zap.String("path", cfg.Path))
	return bs
}

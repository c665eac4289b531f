package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	httpadp "consigned-credit/internal/adapter/http"
	"consigned-credit/internal/adapter/middleware"
	"consigned-credit/internal/adapter/repository/mysql"
	"consigned-credit/internal/config"
	"consigned-credit/internal/domain/terms"
	"consigned-credit/internal/domain/uow"
	"consigned-credit/internal/infrastructure/cache"
	"consigned-credit/internal/infrastructure/db"
	"consigned-credit/internal/infrastructure/logging"
	"consigned-credit/internal/infrastructure/notify"
	"consigned-credit/internal/usecase/simulation"
)

func main() {
	dotenvErr := config.LoadDotEnv()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if dotenvErr != nil {
		logger.Warn("ignoring .env", "err", dotenvErr)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.OpenGorm(cfg.MySQLDSN(), cfg.DBPool(), logger)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	checks := []httpadp.Check{{Name: "mysql", Ping: sqlDB.PingContext}}

	var (
		rdb      *redis.Client
		store    cache.Store = cache.NewMemoryStore()
		notifier notify.Notifier
	)
	logNotifier := notify.NewLogNotifier(logger)
	notifier = logNotifier
	if cfg.RedisEnabled {
		rdb, err = cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		store = cache.NewRedisStore(rdb, "sim:")
		notifier = notify.Multi{logNotifier, notify.NewRedisPublisher(rdb, cfg.NotifyChannel, logger)}
		checks = append(checks, httpadp.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	} else {
		logger.Warn("redis disabled: in-process simulation cache, no idempotency keys")
	}

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	engine, err := terms.NewEngine(policy)
	if err != nil {
		return err
	}

	repos := uow.Repos{
		Borrowers: mysql.NewBorrowerRepository(gdb),
		Products:  mysql.NewProductRepository(gdb),
		Contracts: mysql.NewContractRepository(gdb),
		Proposals: mysql.NewProposalRepository(gdb),
	}
	simCache := cache.NewSimulationCache(store, cfg.SimCacheTTL(), logger)
	uc := simulation.NewUsecase(repos, mysql.NewGormUoW(gdb), engine, simCache, notifier, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = httpadp.NewValidator()
	e.Use(echomw.RequestID(), echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			)
			return nil
		},
	}))

	health := httpadp.NewHandler(checks...)
	sims := httpadp.NewSimulationHandler(uc)
	proposals := httpadp.NewProposalHandler(uc)

	e.GET("/health", health.Health)
	e.POST("/simulations/new", sims.SimulateNew)
	e.POST("/simulations/refinance", sims.SimulateRefinance)
	e.POST("/simulations/portability", sims.SimulatePortability)
	if rdb != nil {
		e.POST("/proposals", proposals.CreateProposal, middleware.Idempotency(rdb, cfg.IdempTTL(), logger))
	} else {
		e.POST("/proposals", proposals.CreateProposal)
	}
	e.GET("/proposals/:proposal_id", proposals.GetProposal)

	addr := ":" + cfg.AppPort
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

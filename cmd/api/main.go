package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	httpadp "cryptoloans-backend/internal/adapter/http"
	appmw "cryptoloans-backend/internal/adapter/middleware"
	sqliterepo "cryptoloans-backend/internal/adapter/repository/sqlite"
	"cryptoloans-backend/internal/bridge"
	"cryptoloans-backend/internal/chain"
	"cryptoloans-backend/internal/config"
	"cryptoloans-backend/internal/domain/uow"
	"cryptoloans-backend/internal/infrastructure/cache"
	"cryptoloans-backend/internal/infrastructure/db"
	"cryptoloans-backend/internal/oracle"
	"cryptoloans-backend/internal/rail"
	"cryptoloans-backend/internal/risk"
	"cryptoloans-backend/internal/tasks"
	"cryptoloans-backend/internal/terms"
	"cryptoloans-backend/internal/usecase/loan"
	"cryptoloans-backend/internal/usecase/store"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	gdb, err := db.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		logger.Error("open database", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Error("migrate database", "error", err)
		os.Exit(1)
	}

	repos := uow.Repos{
		Loans:    sqliterepo.NewLoanRepository(gdb),
		Events:   sqliterepo.NewEventRepository(gdb),
		Bindings: sqliterepo.NewBindingRepository(gdb),
		Terms:    sqliterepo.NewTermsRepository(gdb),
	}
	st := store.New(sqliterepo.NewGormUoW(gdb), repos)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB, cfg.RedisDialTimeout)
		if err != nil {
			logger.Error("open redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("redis not configured, idempotency middleware and price mirror disabled")
	}

	termsText := "CryptoLoans terms of service"
	if raw, err := os.ReadFile(cfg.TermsFile); err == nil {
		termsText = string(raw)
	} else {
		logger.Warn("terms file unreadable, using builtin text", "path", cfg.TermsFile, "error", err)
	}
	verifier := terms.NewVerifier(termsText, cfg.TermsVersion, cfg.ChainID, cfg.CoordinatorAddress)

	var railClient rail.Client = rail.Unconfigured{}
	if cfg.RailBaseURL != "" {
		railClient = rail.NewHTTPClient(cfg.RailBaseURL, cfg.RailToken)
	}
	var bridgeClient bridge.Client = bridge.Unconfigured{}
	if cfg.BridgeBaseURL != "" {
		bridgeClient = bridge.NewHTTPClient(cfg.BridgeBaseURL, cfg.BridgeToken)
	}

	// The chain coordinator transport is deployment-specific; without one the
	// HTTP surface still serves reads, bindings, and terms.
	var chainClient chain.Client = chain.NewUnconfigured("avalanche")

	queue := tasks.NewQueue(cfg.QueueWorkers, cfg.QueueMaxRetries, cfg.QueueRetryBackoff, logger)
	queue.Start()

	priceOracle := oracle.New(oracle.NewHTTPSource(cfg.PriceFeedURL), rdb, cfg.PriceTTL, logger)
	monitor := risk.NewMonitor(st, priceOracle, cfg.WarnThreshold, cfg.LiquidateThresh, cfg.RiskInterval, logger)
	monitor.Start()

	handlers := chain.NewHandlers(st, queue, railClient, bridgeClient, "avalanche", logger)
	var workers []*chain.EventWorker
	if chainClient.Available() {
		for _, ev := range []string{
			chain.EventCollateralDepositRequested,
			chain.EventRepaymentRecorded,
			chain.EventLoanLiquidated,
			chain.EventCollateralReleaseRequested,
		} {
			w := chain.NewEventWorker(chainClient, ev, 0, cfg.WorkerPollEvery, handlers.ForEvent(ev), logger)
			w.Start()
			workers = append(workers, w)
		}
	} else {
		logger.Info("chain client not configured, event ingestion disabled")
	}

	loans := loan.NewUsecase(st, verifier, chainClient, railClient, logger)
	h := httpadp.NewHandler(loans, st, verifier, railClient)

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(echomw.Logger(), echomw.Recover())

	var idem echo.MiddlewareFunc
	if rdb != nil {
		idem = appmw.Idempotency(rdb, cfg.IdempTTL(), logger)
	}
	httpadp.RegisterRoutes(e, h, idem)

	go func() {
		addr := ":" + cfg.AppPort
		logger.Info("listening", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("http shutdown", "error", err)
	}

	monitor.Stop()
	for _, w := range workers {
		w.Stop()
	}
	queue.Stop()

	if !monitor.Wait(5 * time.Second) {
		logger.Warn("risk monitor did not stop in time")
	}
	for _, w := range workers {
		if !w.Wait(5 * time.Second) {
			logger.Warn("event worker did not stop in time")
		}
	}
	if !queue.Wait(10 * time.Second) {
		logger.Warn("task queue did not drain in time")
	}
}

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
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/casevault/reward-service/internal/chain"
	"github.com/casevault/reward-service/internal/config"
	"github.com/casevault/reward-service/internal/handlers"
	"github.com/casevault/reward-service/internal/logger"
	"github.com/casevault/reward-service/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if envErr != nil {
		log.Info("No .env file found, using environment variables")
	}

	ledger, err := services.NewLedger(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open opening ledger")
	}
	defer ledger.Close()

	var limiter services.RateLimiter = services.NewMemoryRateLimiter()
	if redisLedger, ok := ledger.(*services.RedisLedger); ok {
		limiter = services.NewRedisRateLimiter(redisLedger.Client())
	}

	oracle := services.NewPriceOracle(cfg.Price, log)

	var (
		reader    services.CaseSaleReader
		inventory handlers.CaseInventory
	)
	if cfg.Randomness.Strategy != config.StrategyServerMVP {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.CaseSaleAddress)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to case sale contract")
		}
		reader = client
		inventory = client
	}

	strategy, err := services.NewStrategy(cfg, ledger, oracle, reader, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to build randomness strategy")
	}

	catalog, err := services.NewCaseCatalog(services.DefaultCaseTypes())
	if err != nil {
		log.WithError(err).Fatal("Failed to build case catalog")
	}

	engine := services.NewRewardEngine(catalog, strategy, log)

	wsHandler := handlers.NewWebSocketHandler(catalog, log)
	defer wsHandler.Close()
	engine.SetBroadcaster(wsHandler)

	pruner := services.NewLedgerPruner(ledger, cfg.Ledger.Retention, cfg.Ledger.PruneSchedule, log)
	if err := pruner.Start(); err != nil {
		log.WithError(err).Fatal("Failed to schedule ledger pruning")
	}
	defer pruner.Stop()

	jwtService := services.NewJWTService(cfg.JWT)
	if !jwtService.Enabled() {
		log.Warn("JWT_SECRET not set, admin endpoints are disabled")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Config:    cfg,
		Logger:    log,
		Engine:    engine,
		Ledger:    ledger,
		Oracle:    oracle,
		Limiter:   limiter,
		JWT:       jwtService,
		Pruner:    pruner,
		WebSocket: wsHandler,
		Inventory: inventory,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":     cfg.Server.Port,
			"strategy": cfg.Randomness.Strategy,
			"ledger":   cfg.Ledger.Backend,
		}).Info("Server starting")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
}

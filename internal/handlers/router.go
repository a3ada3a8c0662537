package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/casevault/reward-service/internal/config"
	"github.com/casevault/reward-service/internal/metrics"
	"github.com/casevault/reward-service/internal/middleware"
	"github.com/casevault/reward-service/internal/services"
)

type RouterDeps struct {
	Config    *config.Config
	Logger    logrus.FieldLogger
	Engine    *services.RewardEngine
	Ledger    services.OpeningLedger
	Oracle    services.PriceOracle
	Limiter   services.RateLimiter
	JWT       *services.JWTService
	Pruner    *services.LedgerPruner
	WebSocket *WebSocketHandler
	Inventory CaseInventory
}

func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		deps.Logger.WithError(err).Error("Invalid TRUSTED_PROXIES, ignoring forwarded headers")
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(metrics.GinMiddleware())
	router.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))

	rewardHandler := NewRewardHandler(deps.Engine, deps.Logger)
	priceHandler := NewPriceHandler(deps.Oracle)
	caseHandler := NewCaseHandler(deps.Engine.Catalog(), deps.Inventory, deps.Logger)
	openingHandler := NewOpeningHandler(deps.Ledger, deps.Logger)

	router.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":   "ok",
			"strategy": deps.Engine.Source(),
			"time":     time.Now().UTC().Format(time.RFC3339),
		}
		if deps.WebSocket != nil {
			body["wsClients"] = deps.WebSocket.ClientCount()
		}
		c.JSON(http.StatusOK, body)
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	{
		api.POST("/reward",
			middleware.RateLimit(deps.Limiter, services.ActionReward, cfg.RateLimit.PerMinute, time.Minute, deps.Logger),
			rewardHandler.QuoteReward,
		)
		api.GET("/prices", priceHandler.GetPrices)

		api.GET("/cases", caseHandler.ListCases)
		api.GET("/cases/:id", caseHandler.GetCase)

		api.GET("/openings", openingHandler.ListOpenings)
		api.GET("/openings/:id", openingHandler.GetOpening)
		api.GET("/openings/:id/reward", rewardHandler.ReadOpening)
		api.POST("/verify", openingHandler.Verify)

		if deps.WebSocket != nil {
			api.GET("/ws", deps.WebSocket.HandleWebSocket)
		}

		if deps.JWT != nil && deps.JWT.Enabled() && deps.Pruner != nil {
			adminHandler := NewAdminHandler(deps.Pruner, deps.Logger)
			admin := api.Group("/admin")
			admin.Use(middleware.AdminAuth(deps.JWT))
			{
				admin.POST("/ledger/prune", adminHandler.PruneLedger)
			}
		}
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders: []string{middleware.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}

	return cfg
}

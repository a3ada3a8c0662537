package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/casevault/reward-service/internal/models"
	"github.com/casevault/reward-service/internal/services"
)

type RewardHandler struct {
	engine *services.RewardEngine
	logger logrus.FieldLogger
}

func NewRewardHandler(engine *services.RewardEngine, logger logrus.FieldLogger) *RewardHandler {
	return &RewardHandler{
		engine: engine,
		logger: logger.WithField("handler", "reward"),
	}
}

func (h *RewardHandler) QuoteReward(c *gin.Context) {
	var req models.RewardQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	quote, err := h.engine.QuoteReward(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

func (h *RewardHandler) ReadOpening(c *gin.Context) {
	quote, err := h.engine.ReadOpening(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

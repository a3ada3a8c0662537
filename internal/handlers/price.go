package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casevault/reward-service/internal/services"
)

type PriceHandler struct {
	oracle services.PriceOracle
}

func NewPriceHandler(oracle services.PriceOracle) *PriceHandler {
	return &PriceHandler{oracle: oracle}
}

func (h *PriceHandler) GetPrices(c *gin.Context) {
	c.JSON(http.StatusOK, h.oracle.Resolve(c.Request.Context()))
}

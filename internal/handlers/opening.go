package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/casevault/reward-service/internal/models"
	"github.com/casevault/reward-service/internal/services"
)

type OpeningHandler struct {
	ledger services.OpeningLedger
	logger logrus.FieldLogger
}

func NewOpeningHandler(ledger services.OpeningLedger, logger logrus.FieldLogger) *OpeningHandler {
	return &OpeningHandler{
		ledger: ledger,
		logger: logger.WithField("handler", "openings"),
	}
}

// ListOpenings returns recent ledger entries, newest first. The ledger clamps
// the limit.
func (h *OpeningHandler) ListOpenings(c *gin.Context) {
	limit := services.DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request",
				"details": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	entries, err := h.ledger.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if entries == nil {
		entries = []*models.LedgerEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"openings": entries,
		"count":    len(entries),
	})
}

func (h *OpeningHandler) GetOpening(c *gin.Context) {
	entry, err := h.ledger.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"opening":  entry,
		"verified": services.VerifyEntry(entry),
	})
}

type verifyRequest struct {
	ServerSeed string `json:"serverSeed" binding:"required"`
	ClientSeed string `json:"clientSeed" binding:"required"`
	TxHash     string `json:"txHash" binding:"required"`
	Commitment string `json:"commitment" binding:"required"`
}

// Verify lets anyone check a revealed opening without trusting the ledger.
func (h *OpeningHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	valid, computed := services.VerifyCommitment(req.ServerSeed, req.ClientSeed, req.TxHash, req.Commitment)
	c.JSON(http.StatusOK, gin.H{
		"valid":    valid,
		"computed": computed,
	})
}

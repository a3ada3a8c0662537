package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/casevault/reward-service/internal/middleware"
	"github.com/casevault/reward-service/internal/services"
)

type AdminHandler struct {
	pruner *services.LedgerPruner
	logger logrus.FieldLogger
}

func NewAdminHandler(pruner *services.LedgerPruner, logger logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{
		pruner: pruner,
		logger: logger.WithField("handler", "admin"),
	}
}

type pruneRequest struct {
	OlderThan string `json:"olderThan"`
}

// PruneLedger drops entries older than the requested age, or the configured
// retention when the body is empty.
func (h *AdminHandler) PruneLedger(c *gin.Context) {
	var req pruneRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request",
				"details": err.Error(),
			})
			return
		}
	}

	var (
		pruned int
		err    error
	)
	if req.OlderThan == "" {
		pruned, err = h.pruner.Run(c.Request.Context())
	} else {
		age, parseErr := time.ParseDuration(req.OlderThan)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request",
				"details": "olderThan must be a duration such as 720h",
			})
			return
		}
		pruned, err = h.pruner.PruneOlderThan(c.Request.Context(), age)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"subject": c.GetString(middleware.ContextSubject),
		"pruned":  pruned,
	}).Info("Manual ledger prune")

	c.JSON(http.StatusOK, gin.H{"pruned": pruned})
}

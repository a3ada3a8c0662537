package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/casevault/reward-service/internal/errs"
)

// respondError maps domain errors onto status codes. Only invalid requests
// echo the underlying message back as details.
func respondError(c *gin.Context, logger logrus.FieldLogger, err error) {
	_ = c.Error(err)

	switch {
	case errs.Is(err, errs.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
	case errs.Is(err, errs.ErrCaseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Case type not found."})
	case errs.Is(err, errs.ErrOpeningNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Opening not found."})
	case errs.Is(err, errs.ErrLedgerConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Opening could not be recorded, please retry."})
	case errs.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	case errs.Is(err, errs.ErrChainUnavailable):
		logger.WithError(err).Warn("Chain unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Chain temporarily unavailable"})
	default:
		logger.WithError(err).Error("Unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

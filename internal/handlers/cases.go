package handlers

import (
	"context"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/casevault/reward-service/internal/models"
	"github.com/casevault/reward-service/internal/services"
)

// CaseInventory reports how many cases of a type can still be sold.
type CaseInventory interface {
	AvailableCases(ctx context.Context, caseTypeID int64) (*big.Int, error)
}

type CaseHandler struct {
	catalog   *services.CaseCatalog
	inventory CaseInventory
	logger    logrus.FieldLogger
}

// NewCaseHandler accepts a nil inventory when no contract is configured.
func NewCaseHandler(catalog *services.CaseCatalog, inventory CaseInventory, logger logrus.FieldLogger) *CaseHandler {
	return &CaseHandler{
		catalog:   catalog,
		inventory: inventory,
		logger:    logger.WithField("handler", "cases"),
	}
}

type oddsView struct {
	Type              models.OddsType `json:"type"`
	Description       string          `json:"description"`
	PositiveReturnBps int             `json:"positiveReturnBps,omitempty"`
}

type caseView struct {
	ID               int64               `json:"id"`
	Name             string              `json:"name"`
	PriceUSDC        float64             `json:"priceUSDC"`
	MinRewardUSD     float64             `json:"minRewardUSD"`
	MaxRewardUSD     float64             `json:"maxRewardUSD"`
	ExpectedValueUSD float64             `json:"expectedValueUSD"`
	Media            models.CaseMedia    `json:"media"`
	Availability     models.Availability `json:"availability"`
	OddsConfig       oddsView            `json:"oddsConfig"`
	Enabled          bool                `json:"enabled"`
	Live             bool                `json:"live"`
	AvailableCases   *string             `json:"availableCases,omitempty"`
}

type economicsView struct {
	PriceUSDC         float64         `json:"priceUSDC"`
	MinRewardUSD      float64         `json:"minRewardUSD"`
	MaxRewardUSD      float64         `json:"maxRewardUSD"`
	PlatformFeeBps    int             `json:"platformFeeBps"`
	TargetRTP         float64         `json:"targetRtp"`
	Distribution      models.OddsType `json:"distribution"`
	ExpectedValueUSD  float64         `json:"expectedValueUSD"`
	PositiveReturnBps int             `json:"positiveReturnBps"`
}

func (h *CaseHandler) view(ctx context.Context, ct models.CaseType) caseView {
	v := newCaseView(ct)
	if h.inventory == nil {
		return v
	}

	available, err := h.inventory.AvailableCases(ctx, ct.ID)
	if err != nil {
		h.logger.WithError(err).WithField("case_type_id", ct.Key()).Warn("Failed to read case inventory")
		return v
	}

	count := available.String()
	v.AvailableCases = &count
	if available.Sign() == 0 {
		v.Live = false
	}
	return v
}

func newCaseView(ct models.CaseType) caseView {
	oddsType := ct.Odds.Type
	if oddsType == "" {
		oddsType = models.OddsUniform
	}

	return caseView{
		ID:               ct.ID,
		Name:             ct.Name,
		PriceUSDC:        ct.Price.InexactFloat64(),
		MinRewardUSD:     ct.MinReward.InexactFloat64(),
		MaxRewardUSD:     ct.MaxReward.InexactFloat64(),
		ExpectedValueUSD: services.ExpectedReward(ct).Round(2).InexactFloat64(),
		Media:            ct.Media,
		Availability:     ct.Availability,
		OddsConfig: oddsView{
			Type:              oddsType,
			Description:       ct.Odds.Description,
			PositiveReturnBps: ct.Odds.PositiveReturnBps,
		},
		Enabled: ct.Enabled,
		Live:    ct.IsLive(),
	}
}

func (h *CaseHandler) ListCases(c *gin.Context) {
	all := h.catalog.All()
	views := make([]caseView, 0, len(all))
	for _, ct := range all {
		views = append(views, h.view(c.Request.Context(), ct))
	}

	econ := models.DefaultEconomics
	c.JSON(http.StatusOK, gin.H{
		"cases": views,
		"economics": economicsView{
			PriceUSDC:         econ.Price.InexactFloat64(),
			MinRewardUSD:      econ.MinReward.InexactFloat64(),
			MaxRewardUSD:      econ.MaxReward.InexactFloat64(),
			PlatformFeeBps:    econ.PlatformFeeBps,
			TargetRTP:         econ.TargetRTP.InexactFloat64(),
			Distribution:      econ.Distribution,
			ExpectedValueUSD:  econ.ExpectedValue.InexactFloat64(),
			PositiveReturnBps: econ.PositiveReturnBps,
		},
	})
}

func (h *CaseHandler) GetCase(c *gin.Context) {
	ct, err := h.catalog.Lookup(canonicalCaseID(c.Param("id")))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, h.view(c.Request.Context(), ct))
}

// canonicalCaseID applies the same normalisation as a JSON request body, so
// "/api/cases/1.0" and {"caseTypeId": 1} resolve to the same case.
func canonicalCaseID(raw string) string {
	var id models.CaseTypeID
	if err := id.UnmarshalJSON([]byte(strconv.Quote(raw))); err != nil {
		return raw
	}
	return id.String()
}

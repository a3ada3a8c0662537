package services

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/models"
)

// CaseCatalog is built once at startup and never mutated.
type CaseCatalog struct {
	byKey map[string]models.CaseType
	order []string
}

func NewCaseCatalog(caseTypes []models.CaseType) (*CaseCatalog, error) {
	catalog := &CaseCatalog{
		byKey: make(map[string]models.CaseType, len(caseTypes)),
	}

	for _, ct := range caseTypes {
		if err := ct.Validate(); err != nil {
			return nil, errs.Wrap(err, "invalid case catalog")
		}
		if _, dup := catalog.byKey[ct.Key()]; dup {
			return nil, errs.Newf("duplicate case type id %d", ct.ID)
		}
		catalog.byKey[ct.Key()] = ct
		catalog.order = append(catalog.order, ct.Key())
	}

	sort.SliceStable(catalog.order, func(i, j int) bool {
		return catalog.byKey[catalog.order[i]].ID < catalog.byKey[catalog.order[j]].ID
	})

	return catalog, nil
}

// Lookup matches on the canonical string form of the id.
func (c *CaseCatalog) Lookup(id string) (models.CaseType, error) {
	ct, ok := c.byKey[id]
	if !ok {
		return models.CaseType{}, errs.Mark(errs.Newf("case type %q not found", id), errs.ErrCaseNotFound)
	}
	return ct, nil
}

func (c *CaseCatalog) All() []models.CaseType {
	out := make([]models.CaseType, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.byKey[key])
	}
	return out
}

func DefaultCaseTypes() []models.CaseType {
	econ := models.DefaultEconomics

	return []models.CaseType{
		{
			ID:        1,
			Name:      "Case",
			Price:     econ.Price,
			MinReward: econ.MinReward,
			MaxReward: econ.MaxReward,
			Media: models.CaseMedia{
				Image: "/case-placeholder.png",
				Model: "/case1.glb",
				Video: "/case1opening.mp4",
			},
			Availability: models.AvailabilityLive,
			Odds: models.OddsConfig{
				Type:              econ.Distribution,
				Description:       "Weighted distribution with rare positive returns.",
				PositiveReturnBps: econ.PositiveReturnBps,
			},
			Enabled: true,
		},
		{
			ID:        2,
			Name:      "Night Vault",
			Price:     decimal.NewFromInt(10),
			MinReward: decimal.NewFromInt(5),
			MaxReward: decimal.NewFromInt(12),
			Media: models.CaseMedia{
				Image: "/case-placeholder.png",
				Video: "/case-opening-placeholder.mp4",
			},
			Availability: models.AvailabilityComingSoon,
			Odds: models.OddsConfig{
				Type:        models.OddsUniform,
				Description: "Placeholder odds config.",
			},
			Enabled: false,
		},
	}
}

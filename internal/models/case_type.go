package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Availability string

const (
	AvailabilityLive       Availability = "live"
	AvailabilityComingSoon Availability = "coming-soon"
	AvailabilitySoldOut    Availability = "sold-out"
)

type OddsType string

const (
	OddsUniform  OddsType = "uniform"
	OddsWeighted OddsType = "weighted"
	OddsTable    OddsType = "table"
)

// OddsTier is one bucket of a table distribution.
type OddsTier struct {
	MinReward decimal.Decimal
	MaxReward decimal.Decimal
	Weight    int
}

type OddsConfig struct {
	Type        OddsType
	Description string

	// Weighted: share of openings, in basis points, drawn at or above the case price.
	PositiveReturnBps int

	Tiers []OddsTier
}

type CaseMedia struct {
	Image string `json:"image"`
	Video string `json:"video"`
	Model string `json:"model,omitempty"`
}

// CaseType is immutable once the catalog is built.
type CaseType struct {
	ID           int64
	Name         string
	Price        decimal.Decimal
	MinReward    decimal.Decimal
	MaxReward    decimal.Decimal
	Media        CaseMedia
	Availability Availability
	Odds         OddsConfig
	Enabled      bool
}

func (ct CaseType) Key() string {
	return strconv.FormatInt(ct.ID, 10)
}

func (ct CaseType) IsLive() bool {
	return ct.Enabled && ct.Availability == AvailabilityLive
}

func (ct CaseType) Validate() error {
	if ct.ID <= 0 {
		return fmt.Errorf("case type id must be positive, got %d", ct.ID)
	}
	if !ct.Price.IsPositive() {
		return fmt.Errorf("case type %d: price must be positive", ct.ID)
	}
	if ct.MinReward.IsNegative() {
		return fmt.Errorf("case type %d: min reward must not be negative", ct.ID)
	}
	if ct.MinReward.GreaterThan(ct.MaxReward) {
		return fmt.Errorf("case type %d: min reward %s exceeds max reward %s", ct.ID, ct.MinReward, ct.MaxReward)
	}

	switch ct.Odds.Type {
	case "", OddsUniform:
	case OddsWeighted:
		if ct.Odds.PositiveReturnBps < 0 || ct.Odds.PositiveReturnBps > 10000 {
			return fmt.Errorf("case type %d: positive return bps out of range: %d", ct.ID, ct.Odds.PositiveReturnBps)
		}
	case OddsTable:
		if len(ct.Odds.Tiers) == 0 {
			return fmt.Errorf("case type %d: table odds need at least one tier", ct.ID)
		}
		total := 0
		for i, tier := range ct.Odds.Tiers {
			if tier.Weight <= 0 {
				return fmt.Errorf("case type %d: tier %d weight must be positive", ct.ID, i)
			}
			if tier.MinReward.LessThan(ct.MinReward) || tier.MaxReward.GreaterThan(ct.MaxReward) ||
				tier.MinReward.GreaterThan(tier.MaxReward) {
				return fmt.Errorf("case type %d: tier %d outside reward bounds", ct.ID, i)
			}
			total += tier.Weight
		}
		if total <= 0 {
			return fmt.Errorf("case type %d: table odds total weight must be positive", ct.ID)
		}
	default:
		return fmt.Errorf("case type %d: unknown odds type %q", ct.ID, ct.Odds.Type)
	}

	return nil
}

// CaseTypeID accepts either a JSON number or a JSON string and keeps its canonical string form.
type CaseTypeID string

func (id *CaseTypeID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = CaseTypeID(canonicalID(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("case type id must be a number or string: %w", err)
	}
	*id = CaseTypeID(canonicalID(n.String()))
	return nil
}

func (id CaseTypeID) String() string {
	return string(id)
}

// maxCaseIDLen bounds the text canonicalID will parse. Ids longer than this,
// or with an exponent outside int64 range, are kept verbatim and never match.
const (
	maxCaseIDLen      = 32
	maxCaseIDExponent = 18
)

// canonicalID maps "1", " 1 ", "1.0", "1e0" and 1 onto the same key. Anything
// that is not an integral number is kept verbatim and simply never matches.
func canonicalID(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxCaseIDLen {
		return raw
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	// Truncate and String rescale to exponent 0; keep that work bounded.
	if exp := d.Exponent(); exp > maxCaseIDExponent || exp < -maxCaseIDLen {
		return raw
	}
	if !d.Equal(d.Truncate(0)) {
		return raw
	}
	return d.Truncate(0).String()
}

// Economics documents the pricing model behind the default catalog entry.
type Economics struct {
	Price             decimal.Decimal
	MinReward         decimal.Decimal
	MaxReward         decimal.Decimal
	PlatformFeeBps    int
	TargetRTP         decimal.Decimal
	Distribution      OddsType
	ExpectedValue     decimal.Decimal
	PositiveReturnBps int
}

var DefaultEconomics = Economics{
	Price:             decimal.NewFromInt(5),
	MinReward:         decimal.NewFromInt(3),
	MaxReward:         decimal.NewFromInt(8),
	PlatformFeeBps:    800,
	TargetRTP:         decimal.RequireFromString("0.8"),
	Distribution:      OddsWeighted,
	ExpectedValue:     decimal.NewFromInt(4),
	PositiveReturnBps: 100,
}

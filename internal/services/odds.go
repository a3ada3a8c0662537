package services

import (
	"github.com/shopspring/decimal"

	"github.com/casevault/reward-service/internal/models"
)

const (
	usdPlaces   = 2
	assetPlaces = 8
)

var bpsDenominator = decimal.NewFromInt(10000)

// DrawReward picks a USD amount for one opening according to the case's odds
// config. rnd must return values in [0, 1); it does not need to be
// cryptographically strong.
func DrawReward(ct models.CaseType, rnd func() float64) decimal.Decimal {
	var raw decimal.Decimal

	switch ct.Odds.Type {
	case models.OddsWeighted:
		raw = drawWeighted(ct, rnd)
	case models.OddsTable:
		raw = drawTable(ct, rnd)
	default:
		raw = uniformIn(ct.MinReward, ct.MaxReward, rnd())
	}

	return clamp(raw.Round(usdPlaces), ct.MinReward, ct.MaxReward)
}

// drawWeighted sends PositiveReturnBps of openings to [price, max] and the rest to [min, price).
func drawWeighted(ct models.CaseType, rnd func() float64) decimal.Decimal {
	if !ct.Price.GreaterThan(ct.MinReward) || !ct.Price.LessThan(ct.MaxReward) {
		return uniformIn(ct.MinReward, ct.MaxReward, rnd())
	}

	p := decimal.NewFromInt(int64(ct.Odds.PositiveReturnBps)).Div(bpsDenominator)
	if decimal.NewFromFloat(rnd()).LessThan(p) {
		return uniformIn(ct.Price, ct.MaxReward, rnd())
	}

	low := uniformIn(ct.MinReward, ct.Price, rnd())
	// Rounding to cents must not lift a losing draw onto the price.
	if low.Round(usdPlaces).GreaterThanOrEqual(ct.Price) {
		return ct.Price.Sub(decimal.New(1, -usdPlaces))
	}
	return low
}

func drawTable(ct models.CaseType, rnd func() float64) decimal.Decimal {
	total := 0
	for _, tier := range ct.Odds.Tiers {
		total += tier.Weight
	}
	if total <= 0 {
		return uniformIn(ct.MinReward, ct.MaxReward, rnd())
	}

	pick := int(rnd() * float64(total))
	for _, tier := range ct.Odds.Tiers {
		if pick < tier.Weight {
			return uniformIn(tier.MinReward, tier.MaxReward, rnd())
		}
		pick -= tier.Weight
	}

	last := ct.Odds.Tiers[len(ct.Odds.Tiers)-1]
	return uniformIn(last.MinReward, last.MaxReward, rnd())
}

func uniformIn(lo, hi decimal.Decimal, r float64) decimal.Decimal {
	return lo.Add(hi.Sub(lo).Mul(decimal.NewFromFloat(r)))
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// ConvertToAsset returns usd / price rounded to the asset's 8 decimals.
func ConvertToAsset(usd decimal.Decimal, price float64) decimal.Decimal {
	p := decimal.NewFromFloat(price)
	if !p.IsPositive() {
		return decimal.Zero
	}
	return usd.DivRound(p, assetPlaces+8).Round(assetPlaces)
}

// ExpectedReward integrates the odds config analytically. It is used to
// publish the expected value next to the catalog.
func ExpectedReward(ct models.CaseType) decimal.Decimal {
	two := decimal.NewFromInt(2)
	mid := func(lo, hi decimal.Decimal) decimal.Decimal { return lo.Add(hi).Div(two) }

	switch ct.Odds.Type {
	case models.OddsWeighted:
		if !ct.Price.GreaterThan(ct.MinReward) || !ct.Price.LessThan(ct.MaxReward) {
			return mid(ct.MinReward, ct.MaxReward)
		}
		p := decimal.NewFromInt(int64(ct.Odds.PositiveReturnBps)).Div(bpsDenominator)
		return p.Mul(mid(ct.Price, ct.MaxReward)).Add(decimal.NewFromInt(1).Sub(p).Mul(mid(ct.MinReward, ct.Price)))
	case models.OddsTable:
		total := decimal.Zero
		sum := decimal.Zero
		for _, tier := range ct.Odds.Tiers {
			w := decimal.NewFromInt(int64(tier.Weight))
			total = total.Add(w)
			sum = sum.Add(w.Mul(mid(tier.MinReward, tier.MaxReward)))
		}
		if total.IsZero() {
			return mid(ct.MinReward, ct.MaxReward)
		}
		return sum.Div(total)
	default:
		return mid(ct.MinReward, ct.MaxReward)
	}
}

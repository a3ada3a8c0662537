package services

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/casevault/reward-service/internal/config"
	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/metrics"
	"github.com/casevault/reward-service/internal/models"
)

const (
	DefaultCbBtcUsd = 60000.0

	PriceSourceMock = "mock"
	PriceSourceFeed = "feed"

	// PriceSourceContract marks a price read from the opening stored onchain.
	PriceSourceContract = "contract"

	MockPriceNote = "TODO: replace with oracle or trusted price feed."
)

// PriceOracle resolves the cbBTC/USD reference price. Implementations never
// fail: a missing or broken feed degrades to the configured constant and the
// quote is flagged untrusted.
type PriceOracle interface {
	Resolve(ctx context.Context) models.PriceQuote
}

// StaticPriceOracle reads CBBTC_USD, then NEXT_PUBLIC_CBBTC_USD, then DefaultCbBtcUsd.
type StaticPriceOracle struct {
	override string
	fallback string
}

func NewStaticPriceOracle(cfg config.PriceConfig) *StaticPriceOracle {
	return &StaticPriceOracle{override: cfg.Override, fallback: cfg.Fallback}
}

func (o *StaticPriceOracle) Resolve(_ context.Context) models.PriceQuote {
	price, ok := parsePrice(o.override)
	if !ok {
		price = o.fallbackPrice()
	}

	metrics.RecordPriceResolution(PriceSourceMock)
	return models.PriceQuote{
		CbBtcUsd: price,
		Source:   PriceSourceMock,
		Note:     MockPriceNote,
		Trusted:  false,
	}
}

func (o *StaticPriceOracle) fallbackPrice() float64 {
	if price, ok := parsePrice(o.fallback); ok {
		return price
	}
	return DefaultCbBtcUsd
}

func parsePrice(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

// FeedPriceOracle polls an HTTP price feed and caches the answer for a TTL.
// Any failure falls through to the static resolution.
type FeedPriceOracle struct {
	client *resty.Client
	url    string
	path   string
	ttl    time.Duration
	static *StaticPriceOracle
	logger logrus.FieldLogger

	fetches singleflight.Group

	mu       sync.Mutex
	cached   float64
	cachedAt time.Time
	lastErr  error
	failedAt time.Time
	now      func() time.Time
}

func NewFeedPriceOracle(cfg config.PriceConfig, logger logrus.FieldLogger) *FeedPriceOracle {
	client := resty.New().
		SetTimeout(cfg.FeedTimeout).
		SetHeader("Accept", "application/json")

	path := cfg.FeedPath
	if path == "" {
		path = "price"
	}

	return &FeedPriceOracle{
		client: client,
		url:    cfg.FeedURL,
		path:   path,
		ttl:    cfg.FeedTTL,
		static: NewStaticPriceOracle(cfg),
		logger: logger.WithField("component", "price_feed"),
		now:    time.Now,
	}
}

func (o *FeedPriceOracle) Resolve(ctx context.Context) models.PriceQuote {
	price, err := o.feedPrice(ctx)
	if err != nil {
		o.logger.WithError(err).Warn("Price feed unavailable, using static price")
		return o.static.Resolve(ctx)
	}

	metrics.RecordPriceResolution(PriceSourceFeed)
	return models.PriceQuote{
		CbBtcUsd: price,
		Source:   PriceSourceFeed,
		Trusted:  true,
	}
}

// feedPrice serves the cached answer, or the cached failure, while it is
// fresh. Concurrent misses share one fetch and the lock is never held across it.
func (o *FeedPriceOracle) feedPrice(ctx context.Context) (float64, error) {
	if price, ok, err := o.fromCache(); ok {
		return price, err
	}

	ch := o.fetches.DoChan("price", func() (any, error) {
		// The fetch outlives a caller that gives up; the client timeout bounds it.
		price, err := o.fetch(context.WithoutCancel(ctx))
		o.store(price, err)
		return price, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(float64), nil
	case <-ctx.Done():
		return 0, errs.Wrap(ctx.Err(), "wait for price feed")
	}
}

func (o *FeedPriceOracle) fromCache() (float64, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	if o.cached > 0 && now.Sub(o.cachedAt) < o.ttl {
		return o.cached, true, nil
	}
	if o.lastErr != nil && now.Sub(o.failedAt) < o.ttl {
		return 0, true, o.lastErr
	}
	return 0, false, nil
}

func (o *FeedPriceOracle) store(price float64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		o.lastErr = err
		o.failedAt = o.now()
		return
	}
	o.cached = price
	o.cachedAt = o.now()
	o.lastErr = nil
}

func (o *FeedPriceOracle) fetch(ctx context.Context) (float64, error) {
	resp, err := o.client.R().SetContext(ctx).Get(o.url)
	if err != nil {
		return 0, errs.Wrap(err, "fetch price feed")
	}
	if resp.IsError() {
		return 0, errs.Newf("price feed returned status %d", resp.StatusCode())
	}

	result := gjson.GetBytes(resp.Body(), o.path)
	if !result.Exists() {
		return 0, errs.Newf("price feed response has no value at %q", o.path)
	}

	price, ok := parsePrice(result.String())
	if !ok {
		return 0, errs.Newf("price feed value at %q is not a positive number: %s", o.path, result.Raw)
	}
	return price, nil
}

// NewPriceOracle returns the feed oracle when a feed URL is configured.
func NewPriceOracle(cfg config.PriceConfig, logger logrus.FieldLogger) PriceOracle {
	if cfg.FeedURL == "" {
		return NewStaticPriceOracle(cfg)
	}
	return NewFeedPriceOracle(cfg, logger)
}

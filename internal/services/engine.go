package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/casevault/reward-service/internal/chain"
	"github.com/casevault/reward-service/internal/config"
	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/metrics"
	"github.com/casevault/reward-service/internal/models"
)

// RewardStrategy is one randomness source. Every strategy returns the same
// quote shape; pending onchain openings come back with Rewarded false.
type RewardStrategy interface {
	Source() models.RandomnessSource
	QuoteReward(ctx context.Context, req *models.RewardQuoteRequest, ct models.CaseType) (*models.RewardQuote, error)
	ReadOpening(ctx context.Context, openingID string) (*models.RewardQuote, error)
}

type RewardEngine struct {
	catalog  *CaseCatalog
	strategy RewardStrategy
	logger   logrus.FieldLogger

	mu          sync.RWMutex
	broadcaster Broadcaster
}

func NewRewardEngine(catalog *CaseCatalog, strategy RewardStrategy, logger logrus.FieldLogger) *RewardEngine {
	return &RewardEngine{
		catalog:  catalog,
		strategy: strategy,
		logger:   logger.WithField("component", "reward_engine"),
	}
}

func (e *RewardEngine) SetBroadcaster(b Broadcaster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcaster = b
}

func (e *RewardEngine) Source() models.RandomnessSource {
	return e.strategy.Source()
}

func (e *RewardEngine) Catalog() *CaseCatalog {
	return e.catalog
}

// QuoteReward validates the request, resolves the case and delegates to the
// configured strategy. An unknown case fails before any ledger write.
func (e *RewardEngine) QuoteReward(ctx context.Context, req *models.RewardQuoteRequest) (*models.RewardQuote, error) {
	start := time.Now()
	source := string(e.strategy.Source())

	if err := req.Validate(); err != nil {
		metrics.RecordQuote(source, "invalid", time.Since(start))
		return nil, errs.Mark(err, errs.ErrInvalidRequest)
	}

	ct, err := e.catalog.Lookup(req.CaseTypeID.String())
	if err != nil {
		metrics.RecordQuote(source, "case_not_found", time.Since(start))
		return nil, err
	}

	log := e.logger.WithFields(logrus.Fields{
		"case_type_id": ct.Key(),
		"source":       source,
	})
	if !ct.IsLive() {
		log.Warn("Quoting reward for a case that is not live")
	}

	quote, err := e.strategy.QuoteReward(ctx, req, ct)
	if err != nil {
		metrics.RecordQuote(source, "error", time.Since(start))
		log.WithError(err).Error("Failed to quote reward")
		return nil, err
	}

	outcome := "rewarded"
	if !quote.Rewarded {
		outcome = "pending"
	}
	metrics.RecordQuote(source, outcome, time.Since(start))

	log.WithFields(logrus.Fields{
		"opening_id": quote.OpeningID,
		"reward_usd": quote.RewardUsd,
		"rewarded":   quote.Rewarded,
	}).Info("Reward quoted")

	if quote.Rewarded {
		e.mu.RLock()
		b := e.broadcaster
		e.mu.RUnlock()
		if b != nil {
			b.BroadcastOpening(ct.Key(), quote)
		}
	}

	return quote, nil
}

func (e *RewardEngine) ReadOpening(ctx context.Context, openingID string) (*models.RewardQuote, error) {
	if openingID == "" {
		return nil, errs.Mark(errs.New("opening id is required"), errs.ErrInvalidRequest)
	}
	return e.strategy.ReadOpening(ctx, openingID)
}

// NewStrategy builds the strategy named by RANDOMNESS_STRATEGY. The chain
// reader is only needed for the onchain strategies.
func NewStrategy(cfg *config.Config, ledger OpeningLedger, oracle PriceOracle, reader CaseSaleReader, logger logrus.FieldLogger) (RewardStrategy, error) {
	switch cfg.Randomness.Strategy {
	case config.StrategyServerMVP:
		return NewServerMVPStrategy(ledger, oracle, logger), nil
	case config.StrategyOnchainEntropy:
		if reader == nil {
			return nil, errs.New("onchain-entropy strategy requires a chain reader")
		}
		return NewOnchainEntropyStrategy(reader, ledger, oracle, logger), nil
	case config.StrategyChainlinkVRF:
		if reader == nil {
			return nil, errs.New("chainlink-vrf strategy requires a chain reader")
		}
		return NewChainlinkVRFStrategy(reader, ledger, oracle, logger), nil
	default:
		return nil, errs.Newf("unknown randomness strategy: %s", cfg.Randomness.Strategy)
	}
}

var _ CaseSaleReader = (*chain.CaseSaleClient)(nil)

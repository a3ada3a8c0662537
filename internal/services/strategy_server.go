package services

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/models"
)

const maxRecordAttempts = 3

// ServerMVPStrategy commits to a fresh server seed, draws the reward and
// reveals the seed in the same response.
type ServerMVPStrategy struct {
	ledger OpeningLedger
	oracle PriceOracle
	logger logrus.FieldLogger

	// Injectable for tests. rnd drives the reward draw only; the server seed
	// always comes from crypto/rand.
	rnd     func() float64
	now     func() time.Time
	newID   func() string
	newSeed func() (string, error)
}

func NewServerMVPStrategy(ledger OpeningLedger, oracle PriceOracle, logger logrus.FieldLogger) *ServerMVPStrategy {
	return &ServerMVPStrategy{
		ledger:  ledger,
		oracle:  oracle,
		logger:  logger.WithField("source", models.SourceServerMVP),
		rnd:     rand.Float64,
		now:     time.Now,
		newID:   models.GenerateOpeningID,
		newSeed: models.GenerateServerSeed,
	}
}

func (s *ServerMVPStrategy) Source() models.RandomnessSource {
	return models.SourceServerMVP
}

func (s *ServerMVPStrategy) QuoteReward(ctx context.Context, req *models.RewardQuoteRequest, ct models.CaseType) (*models.RewardQuote, error) {
	serverSeed, err := s.newSeed()
	if err != nil {
		return nil, errs.Wrap(err, "generate server seed")
	}

	commitment := ComputeCommitment(serverSeed, req.ClientSeed, req.TxHash)

	rewardUsd := DrawReward(ct, s.rnd)
	price := s.oracle.Resolve(ctx)
	rewardAsset := ConvertToAsset(rewardUsd, price.CbBtcUsd)

	entry := &models.LedgerEntry{
		ServerSeed:    serverSeed,
		Commitment:    commitment,
		Source:        models.SourceServerMVP,
		CaseTypeID:    ct.Key(),
		ClientSeed:    req.ClientSeed,
		TxHash:        req.TxHash,
		RewardUsd:     rewardUsd.InexactFloat64(),
		RewardCbBtc:   rewardAsset.InexactFloat64(),
		CbBtcUsdPrice: price.CbBtcUsd,
		PriceSource:   price.Source,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.record(ctx, entry); err != nil {
		return nil, err
	}

	return serverQuote(entry), nil
}

// record retries with a fresh opening id when the ledger reports a collision.
func (s *ServerMVPStrategy) record(ctx context.Context, entry *models.LedgerEntry) error {
	var err error
	for attempt := 1; attempt <= maxRecordAttempts; attempt++ {
		entry.OpeningID = s.newID()

		err = s.ledger.Record(ctx, entry)
		if err == nil {
			return nil
		}
		if !errs.Is(err, errs.ErrLedgerConflict) {
			return errs.Wrap(err, "record opening")
		}

		s.logger.WithFields(logrus.Fields{
			"opening_id": entry.OpeningID,
			"attempt":    attempt,
		}).Warn("Opening id collision, retrying with a new id")
	}
	return errs.Wrapf(err, "record opening after %d attempts", maxRecordAttempts)
}

// ReadOpening rebuilds the quote from the ledger; the seed was already revealed.
func (s *ServerMVPStrategy) ReadOpening(ctx context.Context, openingID string) (*models.RewardQuote, error) {
	entry, err := s.ledger.Lookup(ctx, openingID)
	if err != nil {
		return nil, err
	}
	return serverQuote(entry), nil
}

func serverQuote(entry *models.LedgerEntry) *models.RewardQuote {
	return &models.RewardQuote{
		OpeningID:     entry.OpeningID,
		RewardUsd:     entry.RewardUsd,
		RewardCbBtc:   entry.RewardCbBtc,
		CbBtcUsdPrice: entry.CbBtcUsdPrice,
		Rewarded:      true,
		Randomness: models.RandomnessMetadata{
			Source:              models.SourceServerMVP,
			Commitment:          models.WithHexPrefix(entry.Commitment),
			ServerSeed:          models.WithHexPrefix(entry.ServerSeed),
			ClientSeed:          entry.ClientSeed,
			RevealedImmediately: true,
		},
	}
}

// VerifyEntry recomputes the commitment stored with a ledger entry.
func VerifyEntry(entry *models.LedgerEntry) bool {
	if entry.ServerSeed == "" {
		return false
	}
	ok, _ := VerifyCommitment(entry.ServerSeed, entry.ClientSeed, entry.TxHash, entry.Commitment)
	return ok
}

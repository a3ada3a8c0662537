package services

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/models"
)

// cbBTC carries 8 decimals onchain.
const rewardAssetDecimals = 8

// CaseSaleReader is the read side of the case sale contract.
type CaseSaleReader interface {
	OpeningIDByTx(ctx context.Context, txHash string) (*big.Int, error)
	GetOpening(ctx context.Context, openingID *big.Int) (*models.OnchainOpening, error)
	PriceDecimals(ctx context.Context) (uint8, error)
}

// OnchainStrategy reads rewards the contract already computed. The same
// reader serves block-entropy and VRF deployments; source selects which
// metadata is surfaced.
type OnchainStrategy struct {
	source models.RandomnessSource
	reader CaseSaleReader
	ledger OpeningLedger
	oracle PriceOracle
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewOnchainEntropyStrategy(reader CaseSaleReader, ledger OpeningLedger, oracle PriceOracle, logger logrus.FieldLogger) *OnchainStrategy {
	return newOnchainStrategy(models.SourceOnchainEntropy, reader, ledger, oracle, logger)
}

func NewChainlinkVRFStrategy(reader CaseSaleReader, ledger OpeningLedger, oracle PriceOracle, logger logrus.FieldLogger) *OnchainStrategy {
	return newOnchainStrategy(models.SourceChainlinkVRF, reader, ledger, oracle, logger)
}

func newOnchainStrategy(source models.RandomnessSource, reader CaseSaleReader, ledger OpeningLedger, oracle PriceOracle, logger logrus.FieldLogger) *OnchainStrategy {
	return &OnchainStrategy{
		source: source,
		reader: reader,
		ledger: ledger,
		oracle: oracle,
		logger: logger.WithField("source", source),
		now:    time.Now,
	}
}

func (s *OnchainStrategy) Source() models.RandomnessSource {
	return s.source
}

// QuoteReward resolves the opening created by the purchase transaction and
// reports whatever the contract holds. A VRF opening that has not been
// fulfilled yet is returned with Rewarded false.
func (s *OnchainStrategy) QuoteReward(ctx context.Context, req *models.RewardQuoteRequest, ct models.CaseType) (*models.RewardQuote, error) {
	openingID, err := s.reader.OpeningIDByTx(ctx, req.TxHash)
	if err != nil {
		return nil, err
	}

	opening, err := s.reader.GetOpening(ctx, openingID)
	if err != nil {
		return nil, err
	}

	if opening.CaseTypeID != nil && opening.CaseTypeID.Cmp(big.NewInt(ct.ID)) != 0 {
		return nil, errs.Mark(
			errs.Newf("purchase %s opened case type %s, not %s", req.TxHash, opening.CaseTypeID, ct.Key()),
			errs.ErrInvalidRequest,
		)
	}

	quote, priceSource, err := s.buildQuote(ctx, opening, req.TxHash, req.ClientSeed)
	if err != nil {
		return nil, err
	}

	if err := s.record(ctx, quote, priceSource, ct, req); err != nil {
		return nil, err
	}

	return quote, nil
}

// record keeps the purchase metadata, including the VRF request id, the first
// time a purchase is quoted. Later quotes of the same opening leave it as is.
func (s *OnchainStrategy) record(ctx context.Context, quote *models.RewardQuote, priceSource string, ct models.CaseType, req *models.RewardQuoteRequest) error {
	if s.ledger == nil {
		return nil
	}

	entry := &models.LedgerEntry{
		OpeningID:     quote.OpeningID,
		Commitment:    models.TrimHexPrefix(quote.Randomness.Commitment),
		Source:        s.source,
		CaseTypeID:    ct.Key(),
		ClientSeed:    req.ClientSeed,
		TxHash:        req.TxHash,
		RewardUsd:     quote.RewardUsd,
		RewardCbBtc:   quote.RewardCbBtc,
		CbBtcUsdPrice: quote.CbBtcUsdPrice,
		PriceSource:   priceSource,
		RequestID:     quote.Randomness.RequestID,
		CreatedAt:     s.now().UTC(),
	}

	err := s.ledger.Record(ctx, entry)
	if errs.Is(err, errs.ErrLedgerConflict) {
		s.logger.WithField("opening_id", entry.OpeningID).Debug("Opening already recorded")
		return nil
	}
	if err != nil {
		return errs.Wrap(err, "record onchain opening")
	}
	return nil
}

// ReadOpening takes the decimal onchain opening id.
func (s *OnchainStrategy) ReadOpening(ctx context.Context, openingID string) (*models.RewardQuote, error) {
	id, ok := new(big.Int).SetString(openingID, 10)
	if !ok || id.Sign() < 0 {
		return nil, errs.Mark(errs.Newf("onchain opening id must be a decimal integer, got %q", openingID), errs.ErrInvalidRequest)
	}

	opening, err := s.reader.GetOpening(ctx, id)
	if err != nil {
		return nil, err
	}

	quote, _, err := s.buildQuote(ctx, opening, "", "")
	return quote, err
}

func (s *OnchainStrategy) buildQuote(ctx context.Context, opening *models.OnchainOpening, txHash, clientSeed string) (*models.RewardQuote, string, error) {
	price, priceSource, err := s.referencePrice(ctx, opening)
	if err != nil {
		return nil, "", err
	}

	quote := &models.RewardQuote{
		OpeningID:     opening.OpeningID.String(),
		CbBtcUsdPrice: price.InexactFloat64(),
		Rewarded:      opening.Rewarded,
		Randomness: models.RandomnessMetadata{
			Source:     s.source,
			ClientSeed: clientSeed,
		},
	}

	if opening.Rewarded && opening.RewardAmount != nil {
		asset := decimal.NewFromBigInt(opening.RewardAmount, -rewardAssetDecimals)
		quote.RewardCbBtc = asset.InexactFloat64()
		quote.RewardUsd = asset.Mul(price).Round(usdPlaces).InexactFloat64()
	}

	switch s.source {
	case models.SourceOnchainEntropy:
		// Reward and entropy land in the purchase transaction itself.
		quote.Randomness.Commitment = txHash
		quote.Randomness.RevealedImmediately = true
		quote.Randomness.Caveat = models.OnchainEntropyCaveat
	case models.SourceChainlinkVRF:
		fulfilled := opening.Rewarded
		quote.Randomness.FulfilledOnchain = &fulfilled
		if opening.RequestID != nil && opening.RequestID.Sign() > 0 {
			quote.Randomness.RequestID = opening.RequestID.String()
			quote.Randomness.Commitment = fmt.Sprintf("0x%064x", opening.RequestID)
		}
	}

	if !opening.Rewarded {
		s.logger.WithField("opening_id", quote.OpeningID).Debug("Opening not yet rewarded onchain")
	}

	return quote, priceSource, nil
}

// referencePrice prefers the price the contract stored with the opening and
// falls back to the oracle when the contract recorded none. The second result
// names where the price came from.
func (s *OnchainStrategy) referencePrice(ctx context.Context, opening *models.OnchainOpening) (decimal.Decimal, string, error) {
	if opening.BtcUsdPrice != nil && opening.BtcUsdPrice.Sign() > 0 {
		decimals, err := s.reader.PriceDecimals(ctx)
		if err != nil {
			return decimal.Zero, "", err
		}
		return decimal.NewFromBigInt(opening.BtcUsdPrice, -int32(decimals)), PriceSourceContract, nil
	}

	price := s.oracle.Resolve(ctx)
	return decimal.NewFromFloat(price.CbBtcUsd), price.Source, nil
}

package services_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casevault/reward-service/internal/config"
	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/logger"
	"github.com/casevault/reward-service/internal/models"
	"github.com/casevault/reward-service/internal/services"
)

const purchaseTx = "0xabababababababababababababababababababababababababababababababab"

type fakeReader struct {
	openings map[string]*models.OnchainOpening
	byTx     map[string]*big.Int
	decimals uint8
}

func (f *fakeReader) OpeningIDByTx(_ context.Context, txHash string) (*big.Int, error) {
	id, ok := f.byTx[txHash]
	if !ok {
		return nil, errs.Mark(errs.Newf("tx %s not found", txHash), errs.ErrOpeningNotFound)
	}
	return id, nil
}

func (f *fakeReader) GetOpening(_ context.Context, openingID *big.Int) (*models.OnchainOpening, error) {
	opening, ok := f.openings[openingID.String()]
	if !ok {
		return nil, errs.Mark(errs.Newf("opening %s not found", openingID), errs.ErrOpeningNotFound)
	}
	return opening, nil
}

func (f *fakeReader) PriceDecimals(context.Context) (uint8, error) {
	return f.decimals, nil
}

func newFakeReader(opening *models.OnchainOpening) *fakeReader {
	return &fakeReader{
		openings: map[string]*models.OnchainOpening{opening.OpeningID.String(): opening},
		byTx:     map[string]*big.Int{purchaseTx: opening.OpeningID},
		decimals: 8,
	}
}

func caseOne(t *testing.T) models.CaseType {
	catalog, err := services.NewCaseCatalog(services.DefaultCaseTypes())
	require.NoError(t, err)
	ct, err := catalog.Lookup("1")
	require.NoError(t, err)
	return ct
}

func rewardedOpening() *models.OnchainOpening {
	return &models.OnchainOpening{
		OpeningID:      big.NewInt(42),
		Buyer:          "0x1111111111111111111111111111111111111111",
		CaseTypeID:     big.NewInt(1),
		RewardAmount:   big.NewInt(7800),
		ReservedAmount: big.NewInt(13400),
		BtcUsdPrice:    big.NewInt(6_000_000_000_000),
		Rewarded:       true,
		RequestID:      big.NewInt(0),
	}
}

func TestOnchainEntropyQuote(t *testing.T) {
	reader := newFakeReader(rewardedOpening())
	oracle := services.NewStaticPriceOracle(config.PriceConfig{})
	strategy := services.NewOnchainEntropyStrategy(reader, services.NewMemoryLedger(), oracle, logger.Discard())

	quote, err := strategy.QuoteReward(context.Background(), &models.RewardQuoteRequest{
		CaseTypeID: "1",
		TxHash:     purchaseTx,
		ClientSeed: "0xabc",
	}, caseOne(t))
	require.NoError(t, err)

	assert.Equal(t, "42", quote.OpeningID)
	assert.True(t, quote.Rewarded)
	assert.InDelta(t, 0.000078, quote.RewardCbBtc, 1e-12)
	assert.Equal(t, 60000.0, quote.CbBtcUsdPrice)
	assert.InDelta(t, 4.68, quote.RewardUsd, 1e-9)

	assert.Equal(t, models.SourceOnchainEntropy, quote.Randomness.Source)
	assert.Equal(t, purchaseTx, quote.Randomness.Commitment)
	assert.Equal(t, models.OnchainEntropyCaveat, quote.Randomness.Caveat)
	assert.True(t, quote.Randomness.RevealedImmediately)
	assert.Nil(t, quote.Randomness.FulfilledOnchain)
	assert.Empty(t, quote.Randomness.ServerSeed)
}

func TestChainlinkVRFPendingOpening(t *testing.T) {
	opening := rewardedOpening()
	opening.Rewarded = false
	opening.RewardAmount = big.NewInt(0)
	opening.RequestID = big.NewInt(99)

	strategy := services.NewChainlinkVRFStrategy(newFakeReader(opening), services.NewMemoryLedger(), services.NewStaticPriceOracle(config.PriceConfig{}), logger.Discard())

	quote, err := strategy.QuoteReward(context.Background(), &models.RewardQuoteRequest{
		CaseTypeID: "1",
		TxHash:     purchaseTx,
		ClientSeed: "seed",
	}, caseOne(t))
	require.NoError(t, err)

	assert.False(t, quote.Rewarded)
	assert.Zero(t, quote.RewardUsd)
	assert.Zero(t, quote.RewardCbBtc)
	require.NotNil(t, quote.Randomness.FulfilledOnchain)
	assert.False(t, *quote.Randomness.FulfilledOnchain)
	assert.Equal(t, "99", quote.Randomness.RequestID)
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000063", quote.Randomness.Commitment)
	assert.False(t, quote.Randomness.RevealedImmediately)
	assert.Empty(t, quote.Randomness.Caveat)
}

func TestChainlinkVRFReadOpening(t *testing.T) {
	opening := rewardedOpening()
	opening.RequestID = big.NewInt(99)
	opening.BtcUsdPrice = big.NewInt(0)

	oracle := services.NewStaticPriceOracle(config.PriceConfig{Override: "65000"})
	strategy := services.NewChainlinkVRFStrategy(newFakeReader(opening), services.NewMemoryLedger(), oracle, logger.Discard())

	quote, err := strategy.ReadOpening(context.Background(), "42")
	require.NoError(t, err)

	assert.True(t, quote.Rewarded)
	assert.True(t, *quote.Randomness.FulfilledOnchain)
	assert.Equal(t, 65000.0, quote.CbBtcUsdPrice, "zero contract price falls back to the oracle")
	assert.InDelta(t, 5.07, quote.RewardUsd, 1e-9)

	_, err = strategy.ReadOpening(context.Background(), "op_123")
	assert.True(t, errs.Is(err, errs.ErrInvalidRequest))

	_, err = strategy.ReadOpening(context.Background(), "7")
	assert.True(t, errs.Is(err, errs.ErrOpeningNotFound))
}

func TestOnchainQuoteRejectsOtherCaseType(t *testing.T) {
	opening := rewardedOpening()
	opening.CaseTypeID = big.NewInt(2)

	strategy := services.NewOnchainEntropyStrategy(newFakeReader(opening), services.NewMemoryLedger(), services.NewStaticPriceOracle(config.PriceConfig{}), logger.Discard())

	_, err := strategy.QuoteReward(context.Background(), &models.RewardQuoteRequest{
		CaseTypeID: "1",
		TxHash:     purchaseTx,
		ClientSeed: "seed",
	}, caseOne(t))
	assert.True(t, errs.Is(err, errs.ErrInvalidRequest))

	_, err = strategy.QuoteReward(context.Background(), &models.RewardQuoteRequest{
		CaseTypeID: "1",
		TxHash:     "0xdeadbeef",
		ClientSeed: "seed",
	}, caseOne(t))
	assert.True(t, errs.Is(err, errs.ErrOpeningNotFound))
}

func TestChainlinkVRFRecordsRequestID(t *testing.T) {
	opening := rewardedOpening()
	opening.Rewarded = false
	opening.RewardAmount = big.NewInt(0)
	opening.RequestID = big.NewInt(777)

	ledger := services.NewMemoryLedger()
	cfg := config.NewTestConfig()
	cfg.Randomness.Strategy = config.StrategyChainlinkVRF

	strategy, err := services.NewStrategy(cfg, ledger, services.NewStaticPriceOracle(config.PriceConfig{}), newFakeReader(opening), logger.Discard())
	require.NoError(t, err)

	req := &models.RewardQuoteRequest{
		CaseTypeID: "1",
		TxHash:     purchaseTx,
		ClientSeed: "seed",
	}
	_, err = strategy.QuoteReward(context.Background(), req, caseOne(t))
	require.NoError(t, err)
	require.Equal(t, 1, ledger.Len())

	entry, err := ledger.Lookup(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "777", entry.RequestID)
	assert.Equal(t, models.SourceChainlinkVRF, entry.Source)
	assert.Equal(t, "1", entry.CaseTypeID)
	assert.Equal(t, purchaseTx, entry.TxHash)
	assert.Equal(t, "seed", entry.ClientSeed)
	assert.Equal(t, "0000000000000000000000000000000000000000000000000000000000000309", entry.Commitment)
	assert.Equal(t, services.PriceSourceContract, entry.PriceSource)
	assert.Empty(t, entry.ServerSeed)
	assert.False(t, entry.CreatedAt.IsZero())

	// The opening is fulfilled later; quoting it again keeps the first record.
	opening.Rewarded = true
	opening.RewardAmount = big.NewInt(7800)
	quote, err := strategy.QuoteReward(context.Background(), req, caseOne(t))
	require.NoError(t, err)
	assert.True(t, quote.Rewarded)
	assert.Equal(t, 1, ledger.Len())

	entry, err = ledger.Lookup(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "777", entry.RequestID)
}

func TestOnchainEntropyRecordsPurchase(t *testing.T) {
	opening := rewardedOpening()
	opening.BtcUsdPrice = big.NewInt(0)

	ledger := services.NewMemoryLedger()
	strategy := services.NewOnchainEntropyStrategy(newFakeReader(opening), ledger, services.NewStaticPriceOracle(config.PriceConfig{}), logger.Discard())

	_, err := strategy.QuoteReward(context.Background(), &models.RewardQuoteRequest{
		CaseTypeID: "1",
		TxHash:     purchaseTx,
		ClientSeed: "0xabc",
	}, caseOne(t))
	require.NoError(t, err)

	entries, err := ledger.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, "42", entry.OpeningID)
	assert.Equal(t, models.SourceOnchainEntropy, entry.Source)
	assert.Equal(t, models.TrimHexPrefix(purchaseTx), entry.Commitment)
	assert.Equal(t, services.PriceSourceMock, entry.PriceSource)
	assert.InDelta(t, 4.68, entry.RewardUsd, 1e-9)
	assert.Empty(t, entry.RequestID)

	_, err = strategy.ReadOpening(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.Len(), "reads never record")
}

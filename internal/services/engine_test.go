package services_test

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casevault/reward-service/internal/config"
	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/logger"
	"github.com/casevault/reward-service/internal/models"
	"github.com/casevault/reward-service/internal/services"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	quotes []*models.RewardQuote
}

func (b *recordingBroadcaster) BroadcastOpening(_ string, quote *models.RewardQuote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes = append(b.quotes, quote)
}

func newTestEngine(t *testing.T) (*services.RewardEngine, *services.MemoryLedger) {
	t.Helper()

	catalog, err := services.NewCaseCatalog(services.DefaultCaseTypes())
	require.NoError(t, err)

	ledger := services.NewMemoryLedger()
	oracle := services.NewStaticPriceOracle(config.PriceConfig{Override: "60000"})
	strategy := services.NewServerMVPStrategy(ledger, oracle, logger.Discard())

	return services.NewRewardEngine(catalog, strategy, logger.Discard()), ledger
}

func round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}

func TestRewardEngine(t *testing.T) {
	engine, ledger := newTestEngine(t)
	ctx := context.Background()

	req := &models.RewardQuoteRequest{CaseTypeID: "1", TxHash: "0xdeadbeef", ClientSeed: "0xabc"}

	quote, err := engine.QuoteReward(ctx, req)
	if err != nil {
		t.Fatalf("Failed to quote reward: %v", err)
	}

	if !strings.HasPrefix(quote.OpeningID, "op_") {
		t.Errorf("Opening id should carry the op_ prefix, got %s", quote.OpeningID)
	}

	if quote.RewardUsd < 3.0 || quote.RewardUsd > 8.0 {
		t.Errorf("Reward should be between 3.00 and 8.00, got %.2f", quote.RewardUsd)
	}

	if quote.RewardCbBtc < 0.00005 || quote.RewardCbBtc > 0.000134 {
		t.Errorf("Reward in cbBTC out of range: %.8f", quote.RewardCbBtc)
	}

	assert.Equal(t, 60000.0, quote.CbBtcUsdPrice)
	assert.InDelta(t, round8(quote.RewardUsd/quote.CbBtcUsdPrice), quote.RewardCbBtc, 1e-12)
	assert.Equal(t, math.Round(quote.RewardUsd*100)/100, quote.RewardUsd)
	assert.True(t, quote.Rewarded)

	rnd := quote.Randomness
	assert.Equal(t, models.SourceServerMVP, rnd.Source)
	assert.True(t, rnd.RevealedImmediately)
	assert.Equal(t, "0xabc", rnd.ClientSeed)
	assert.True(t, strings.HasPrefix(rnd.Commitment, "0x"))
	assert.True(t, strings.HasPrefix(rnd.ServerSeed, "0x"))
	assert.Len(t, rnd.ServerSeed, 2+64)
	assert.Nil(t, rnd.FulfilledOnchain)
	assert.Empty(t, rnd.Caveat)

	valid, computed := services.VerifyCommitment(rnd.ServerSeed, rnd.ClientSeed, req.TxHash, rnd.Commitment)
	if !valid {
		t.Errorf("Verification mismatch: expected %s, got %s", rnd.Commitment, computed)
	}

	entry, err := ledger.Lookup(ctx, quote.OpeningID)
	require.NoError(t, err)
	assert.Equal(t, models.TrimHexPrefix(rnd.ServerSeed), entry.ServerSeed)
	assert.Equal(t, models.TrimHexPrefix(rnd.Commitment), entry.Commitment)
	assert.Equal(t, "1", entry.CaseTypeID)
	assert.Equal(t, services.PriceSourceMock, entry.PriceSource)
	assert.True(t, services.VerifyEntry(entry))

	readBack, err := engine.ReadOpening(ctx, quote.OpeningID)
	require.NoError(t, err)
	assert.Equal(t, quote, readBack)
}

func TestRewardEngineUnknownCase(t *testing.T) {
	engine, ledger := newTestEngine(t)

	_, err := engine.QuoteReward(context.Background(), &models.RewardQuoteRequest{
		CaseTypeID: "999",
		TxHash:     "0xdeadbeef",
		ClientSeed: "0xabc",
	})

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrCaseNotFound))
	assert.Equal(t, 0, ledger.Len(), "unknown case must not touch the ledger")
}

func TestRewardEngineInvalidRequest(t *testing.T) {
	engine, ledger := newTestEngine(t)

	_, err := engine.QuoteReward(context.Background(), &models.RewardQuoteRequest{CaseTypeID: "1"})

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrInvalidRequest))
	assert.Contains(t, err.Error(), "txHash")
	assert.Equal(t, 0, ledger.Len())
}

func TestRewardEngineNotLiveCaseStillQuotes(t *testing.T) {
	engine, _ := newTestEngine(t)

	quote, err := engine.QuoteReward(context.Background(), &models.RewardQuoteRequest{
		CaseTypeID: "2",
		TxHash:     "0xfeed",
		ClientSeed: "seed",
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, quote.RewardUsd, 5.0)
	assert.LessOrEqual(t, quote.RewardUsd, 12.0)
}

func TestRewardEngineConcurrentOpeningsAreUnique(t *testing.T) {
	engine, ledger := newTestEngine(t)
	ctx := context.Background()

	const n = 50
	ids := make([]string, n)
	errCh := make(chan error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			quote, err := engine.QuoteReward(ctx, &models.RewardQuoteRequest{
				CaseTypeID: "1",
				TxHash:     "0xdeadbeef",
				ClientSeed: "0xabc",
			})
			if err != nil {
				errCh <- err
				return
			}
			ids[i] = quote.OpeningID
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Fatalf("Concurrent quote failed: %v", err)
	}

	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate opening id %s", id)
		seen[id] = struct{}{}
	}
	assert.Equal(t, n, ledger.Len())
}

func TestRewardEngineLookupIsIdempotent(t *testing.T) {
	engine, ledger := newTestEngine(t)
	ctx := context.Background()

	quote, err := engine.QuoteReward(ctx, &models.RewardQuoteRequest{CaseTypeID: "1", TxHash: "0x01", ClientSeed: "c"})
	require.NoError(t, err)

	first, err := ledger.Lookup(ctx, quote.OpeningID)
	require.NoError(t, err)
	second, err := ledger.Lookup(ctx, quote.OpeningID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRewardEngineBroadcastsRewardedOpenings(t *testing.T) {
	engine, _ := newTestEngine(t)
	b := &recordingBroadcaster{}
	engine.SetBroadcaster(b)

	quote, err := engine.QuoteReward(context.Background(), &models.RewardQuoteRequest{CaseTypeID: "1", TxHash: "0x02", ClientSeed: "c"})
	require.NoError(t, err)

	require.Len(t, b.quotes, 1)
	assert.Equal(t, quote.OpeningID, b.quotes[0].OpeningID)
}

func TestNewStrategy(t *testing.T) {
	cfg := config.NewTestConfig()
	ledger := services.NewMemoryLedger()
	oracle := services.NewStaticPriceOracle(cfg.Price)

	strategy, err := services.NewStrategy(cfg, ledger, oracle, nil, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, models.SourceServerMVP, strategy.Source())

	cfg.Randomness.Strategy = config.StrategyChainlinkVRF
	_, err = services.NewStrategy(cfg, ledger, oracle, nil, logger.Discard())
	assert.Error(t, err, "onchain strategies need a chain reader")

	strategy, err = services.NewStrategy(cfg, ledger, oracle, &fakeReader{}, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, models.SourceChainlinkVRF, strategy.Source())

	cfg.Randomness.Strategy = "dice"
	_, err = services.NewStrategy(cfg, ledger, oracle, nil, logger.Discard())
	assert.Error(t, err)
}

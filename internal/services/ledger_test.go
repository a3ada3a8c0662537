package services_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/models"
	"github.com/casevault/reward-service/internal/services"
)

// Entries are dated far in the past so pruning in a shared store only touches them.
var ledgerEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

func testEntry(id string, offset time.Duration) *models.LedgerEntry {
	return &models.LedgerEntry{
		OpeningID:     id,
		ServerSeed:    "11",
		Commitment:    services.ComputeCommitment("11", "c", "0x01"),
		Source:        models.SourceServerMVP,
		CaseTypeID:    "1",
		ClientSeed:    "c",
		TxHash:        "0x01",
		RewardUsd:     4.2,
		RewardCbBtc:   0.00007,
		CbBtcUsdPrice: 60000,
		PriceSource:   services.PriceSourceMock,
		CreatedAt:     ledgerEpoch.Add(offset),
	}
}

// exerciseLedger runs the behaviour every backend must share.
func exerciseLedger(t *testing.T, ledger services.OpeningLedger, prefix string) {
	ctx := context.Background()

	first := testEntry(prefix+"first", 0)
	second := testEntry(prefix+"second", time.Minute)
	third := testEntry(prefix+"third", 2*time.Minute)

	for _, e := range []*models.LedgerEntry{first, second, third} {
		require.NoError(t, ledger.Record(ctx, e))
	}

	got, err := ledger.Lookup(ctx, first.OpeningID)
	require.NoError(t, err)
	assert.Equal(t, first.ServerSeed, got.ServerSeed)
	assert.Equal(t, first.Commitment, got.Commitment)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, services.VerifyEntry(got))

	again, err := ledger.Lookup(ctx, first.OpeningID)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	overwrite := testEntry(first.OpeningID, time.Hour)
	overwrite.ServerSeed = "22"
	err = ledger.Record(ctx, overwrite)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrLedgerConflict))

	got, err = ledger.Lookup(ctx, first.OpeningID)
	require.NoError(t, err)
	assert.Equal(t, "11", got.ServerSeed, "conflicting record must not overwrite")

	_, err = ledger.Lookup(ctx, prefix+"missing")
	assert.True(t, errs.Is(err, errs.ErrOpeningNotFound))

	err = ledger.Record(ctx, &models.LedgerEntry{})
	assert.True(t, errs.Is(err, errs.ErrInvalidRequest))

	recent, err := ledger.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, third.OpeningID, recent[0].OpeningID)
	assert.Equal(t, second.OpeningID, recent[1].OpeningID)

	pruned, err := ledger.Prune(ctx, ledgerEpoch.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	_, err = ledger.Lookup(ctx, first.OpeningID)
	assert.True(t, errs.Is(err, errs.ErrOpeningNotFound))
	_, err = ledger.Lookup(ctx, third.OpeningID)
	assert.NoError(t, err)

	pruned, err = ledger.Prune(ctx, ledgerEpoch.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
}

func TestMemoryLedger(t *testing.T) {
	t.Parallel()

	ledger := services.NewMemoryLedger()
	defer ledger.Close()

	exerciseLedger(t, ledger, "op_mem_")
	assert.Equal(t, 0, ledger.Len())
}

func TestBoltLedger(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "openings.db")
	ledger, err := services.NewBoltLedger(path)
	require.NoError(t, err)
	defer ledger.Close()

	exerciseLedger(t, ledger, "op_bolt_")
}

func TestBoltLedgerSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "openings.db")
	ctx := context.Background()

	ledger, err := services.NewBoltLedger(path)
	require.NoError(t, err)
	require.NoError(t, ledger.Record(ctx, testEntry("op_durable", 0)))
	require.NoError(t, ledger.Close())

	reopened, err := services.NewBoltLedger(path)
	require.NoError(t, err)
	defer reopened.Close()

	entry, err := reopened.Lookup(ctx, "op_durable")
	require.NoError(t, err)
	assert.Equal(t, "c", entry.ClientSeed)

	err = reopened.Record(ctx, testEntry("op_durable", time.Second))
	assert.True(t, errs.Is(err, errs.ErrLedgerConflict))
}

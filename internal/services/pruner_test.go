package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/logger"
	"github.com/casevault/reward-service/internal/services"
)

func TestLedgerPruner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := services.NewMemoryLedger()

	old := testEntry("op_old", 0)
	fresh := testEntry("op_fresh", 0)
	fresh.CreatedAt = time.Now().UTC()
	require.NoError(t, ledger.Record(ctx, old))
	require.NoError(t, ledger.Record(ctx, fresh))

	pruner := services.NewLedgerPruner(ledger, 24*time.Hour, "@every 1h", logger.Discard())

	pruned, err := pruner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	assert.Equal(t, 1, ledger.Len())

	_, err = ledger.Lookup(ctx, "op_fresh")
	assert.NoError(t, err)

	_, err = pruner.PruneOlderThan(ctx, 0)
	assert.True(t, errs.Is(err, errs.ErrInvalidRequest))
}

func TestLedgerPrunerSchedule(t *testing.T) {
	t.Parallel()

	ledger := services.NewMemoryLedger()

	bad := services.NewLedgerPruner(ledger, time.Hour, "every hour please", logger.Discard())
	assert.Error(t, bad.Start())

	good := services.NewLedgerPruner(ledger, time.Hour, "@every 1h", logger.Discard())
	require.NoError(t, good.Start())
	good.Stop()
}

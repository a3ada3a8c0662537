package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/casevault/reward-service/internal/config"
	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/models"
)

const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 100
)

// OpeningLedger stores one immutable entry per opening id. Record must refuse
// to overwrite an existing id and report ErrLedgerConflict instead.
type OpeningLedger interface {
	Record(ctx context.Context, entry *models.LedgerEntry) error
	Lookup(ctx context.Context, openingID string) (*models.LedgerEntry, error)
	Recent(ctx context.Context, limit int) ([]*models.LedgerEntry, error)
	Prune(ctx context.Context, olderThan time.Time) (int, error)
	Close() error
}

// NewLedger opens the backend selected by LEDGER_BACKEND.
func NewLedger(cfg *config.Config, logger logrus.FieldLogger) (OpeningLedger, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerMemory:
		logger.Warn("Using in-memory opening ledger: entries are lost on restart and not shared between instances")
		return NewMemoryLedger(), nil
	case config.LedgerRedis:
		client, err := NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisLedger(client, cfg.Ledger.Retention), nil
	case config.LedgerBolt:
		return NewBoltLedger(cfg.Ledger.BoltPath)
	default:
		return nil, errs.Newf("unknown ledger backend: %s", cfg.Ledger.Backend)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}

func ledgerConflict(openingID string) error {
	return errs.Mark(errs.Newf("opening %s already recorded", openingID), errs.ErrLedgerConflict)
}

func openingNotFound(openingID string) error {
	return errs.Mark(errs.Newf("opening %s not found", openingID), errs.ErrOpeningNotFound)
}

func validateEntry(entry *models.LedgerEntry) error {
	if entry == nil || entry.OpeningID == "" {
		return errs.Mark(errs.New("ledger entry needs an opening id"), errs.ErrInvalidRequest)
	}
	return nil
}

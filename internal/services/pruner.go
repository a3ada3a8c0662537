package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/metrics"
)

const pruneTimeout = 30 * time.Second

// LedgerPruner removes ledger entries older than the retention window.
type LedgerPruner struct {
	ledger    OpeningLedger
	retention time.Duration
	schedule  string
	logger    logrus.FieldLogger
	now       func() time.Time

	cron *cron.Cron
}

func NewLedgerPruner(ledger OpeningLedger, retention time.Duration, schedule string, logger logrus.FieldLogger) *LedgerPruner {
	return &LedgerPruner{
		ledger:    ledger,
		retention: retention,
		schedule:  schedule,
		logger:    logger.WithField("component", "ledger_pruner"),
		now:       time.Now,
	}
}

// Run prunes with the configured retention.
func (p *LedgerPruner) Run(ctx context.Context) (int, error) {
	return p.PruneOlderThan(ctx, p.retention)
}

func (p *LedgerPruner) PruneOlderThan(ctx context.Context, age time.Duration) (int, error) {
	if age <= 0 {
		return 0, errs.Mark(errs.Newf("prune age must be positive, got %s", age), errs.ErrInvalidRequest)
	}

	cutoff := p.now().Add(-age)
	pruned, err := p.ledger.Prune(ctx, cutoff)
	if err != nil {
		return 0, errs.Wrap(err, "prune ledger")
	}

	metrics.RecordPruned(pruned)
	p.logger.WithFields(logrus.Fields{
		"cutoff": cutoff.UTC().Format(time.RFC3339),
		"pruned": pruned,
	}).Info("Ledger pruned")

	return pruned, nil
}

// Start schedules Run on the cron spec, e.g. "@every 1h" or "0 3 * * *".
func (p *LedgerPruner) Start() error {
	c := cron.New()

	_, err := c.AddFunc(p.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
		defer cancel()

		if _, err := p.Run(ctx); err != nil {
			p.logger.WithError(err).Error("Scheduled ledger prune failed")
		}
	})
	if err != nil {
		return errs.Wrapf(err, "invalid prune schedule %q", p.schedule)
	}

	c.Start()
	p.cron = c
	return nil
}

// Stop waits for a running prune to finish.
func (p *LedgerPruner) Stop() {
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
}

package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/casevault/reward-service/internal/models"
)

// MemoryLedger is process-local: it does not survive restarts and is not
// shared between instances.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]models.LedgerEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]models.LedgerEntry)}
}

func (l *MemoryLedger) Record(_ context.Context, entry *models.LedgerEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.entries[entry.OpeningID]; exists {
		return ledgerConflict(entry.OpeningID)
	}
	l.entries[entry.OpeningID] = *entry
	return nil
}

func (l *MemoryLedger) Lookup(_ context.Context, openingID string) (*models.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[openingID]
	if !ok {
		return nil, openingNotFound(openingID)
	}
	return &entry, nil
}

func (l *MemoryLedger) Recent(_ context.Context, limit int) ([]*models.LedgerEntry, error) {
	limit = clampLimit(limit)

	l.mu.RLock()
	out := make([]*models.LedgerEntry, 0, len(l.entries))
	for _, entry := range l.entries {
		e := entry
		out = append(out, &e)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OpeningID > out[j].OpeningID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) Prune(_ context.Context, olderThan time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pruned := 0
	for id, entry := range l.entries {
		if entry.CreatedAt.Before(olderThan) {
			delete(l.entries, id)
			pruned++
		}
	}
	return pruned, nil
}

func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *MemoryLedger) Close() error {
	return nil
}

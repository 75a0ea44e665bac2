package changelog

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/mechbank/internal/mechanism"
	"github.com/roach88/mechbank/internal/store"
)

// Ledger reads the changelog held by a store.
type Ledger struct {
	store *store.Store
}

// New creates a Ledger over s.
func New(s *store.Store) *Ledger {
	return &Ledger{store: s}
}

// History returns the entries of one record in ledger order.
// An unknown id yields an empty history, not an error.
func (l *Ledger) History(ctx context.Context, id string) ([]mechanism.ChangelogEntry, error) {
	return l.store.ReadHistory(ctx, id)
}

// Export returns every entry ordered by timestamp. Entries with equal
// timestamps keep ledger order.
func (l *Ledger) Export(ctx context.Context) ([]mechanism.ChangelogEntry, error) {
	entries, err := l.store.ReadAllEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("export changelog: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// VerifyRecord checks one stored record against its history.
func (l *Ledger) VerifyRecord(ctx context.Context, r mechanism.Record) (*mechanism.ConsistencyError, error) {
	entries, err := l.store.ReadHistory(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", r.ID, err)
	}
	return Check(r, entries), nil
}

// Verify checks every stored record, retired ones included, and returns the
// inconsistencies found in insertion order. It never repairs anything.
func (l *Ledger) Verify(ctx context.Context) ([]mechanism.ConsistencyError, error) {
	records, err := l.store.AllRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify changelog: %w", err)
	}
	entries, err := l.store.ReadAllEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify changelog: %w", err)
	}

	byID := make(map[string][]mechanism.ChangelogEntry, len(records))
	for _, e := range entries {
		byID[e.MechanismID] = append(byID[e.MechanismID], e)
	}

	found := []mechanism.ConsistencyError{}
	for _, r := range records {
		if ce := Check(r, byID[r.ID]); ce != nil {
			found = append(found, *ce)
		}
	}
	return found, nil
}

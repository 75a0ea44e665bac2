package changelog

import (
	"fmt"

	"github.com/roach88/mechbank/internal/mechanism"
)

// Replay folds a single record's entries, in ledger order, into the version
// they describe. Each entry must start where the previous one ended and its
// to_version must be the result of applying its bump kind.
//
// An empty history replays to 0.0.
func Replay(entries []mechanism.ChangelogEntry) (mechanism.Version, error) {
	v := mechanism.Zero
	for i, e := range entries {
		if e.FromVersion != v {
			return v, fmt.Errorf("entry %d (seq %d): from_version %s does not continue from %s",
				i, e.Seq, e.FromVersion, v)
		}
		next, err := e.BumpKind.Apply(v)
		if err != nil {
			return v, fmt.Errorf("entry %d (seq %d): %w", i, e.Seq, err)
		}
		if e.ToVersion != next {
			return v, fmt.Errorf("entry %d (seq %d): %s bump from %s gives %s, entry says %s",
				i, e.Seq, e.BumpKind, v, next, e.ToVersion)
		}
		v = next
	}
	return v, nil
}

// Check verifies that replaying entries reproduces the record's stored
// version. It returns nil when consistent.
func Check(r mechanism.Record, entries []mechanism.ChangelogEntry) *mechanism.ConsistencyError {
	for _, e := range entries {
		if e.MechanismID != r.ID {
			return &mechanism.ConsistencyError{
				ID:     r.ID,
				Stored: r.Version,
				Reason: fmt.Sprintf("history contains entry %d for %q", e.Seq, e.MechanismID),
			}
		}
	}

	replayed, err := Replay(entries)
	if err != nil {
		return &mechanism.ConsistencyError{
			ID:       r.ID,
			Stored:   r.Version,
			Replayed: replayed,
			Reason:   err.Error(),
		}
	}
	if replayed != r.Version {
		return &mechanism.ConsistencyError{
			ID:       r.ID,
			Stored:   r.Version,
			Replayed: replayed,
			Reason:   "stored version does not match replayed changelog",
		}
	}
	return nil
}

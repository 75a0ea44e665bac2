package mechanism

import (
	"fmt"
	"time"
)

// BumpKind classifies a version transition.
type BumpKind string

const (
	// BumpInitial is the creation commit (0.0 -> 1.0).
	BumpInitial BumpKind = "INITIAL"
	// BumpMajor means the conclusion changed; dependents must be re-evaluated.
	BumpMajor BumpKind = "MAJOR"
	// BumpMinor means the same conclusion with refined evidence.
	BumpMinor BumpKind = "MINOR"
)

// Apply returns the version reached by applying the bump to v.
func (k BumpKind) Apply(v Version) (Version, error) {
	switch k {
	case BumpInitial:
		if !v.IsZero() {
			return Version{}, fmt.Errorf("initial bump applied to %s", v)
		}
		return Initial, nil
	case BumpMajor:
		return v.NextMajor(), nil
	case BumpMinor:
		return v.NextMinor(), nil
	default:
		return Version{}, fmt.Errorf("unknown bump kind %q", k)
	}
}

// ChangelogEntry records one committed version transition. Entries are
// append-only: never mutated, never deleted.
type ChangelogEntry struct {
	Seq         int64     `json:"seq" yaml:"seq"` // Ledger order
	MechanismID string    `json:"mechanism_id" yaml:"mechanism_id"`
	FromVersion Version   `json:"from_version" yaml:"from_version"`
	ToVersion   Version   `json:"to_version" yaml:"to_version"`
	BumpKind    BumpKind  `json:"bump_kind" yaml:"bump_kind"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Summary     string    `json:"summary" yaml:"summary"`
}

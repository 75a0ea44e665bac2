package versioning

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/mechbank/internal/mechanism"
)

// Default classifier thresholds.
const (
	// DefaultMajorThreshold is the relative point-estimate change above which
	// an edit is MAJOR (strictly greater than).
	DefaultMajorThreshold = 0.20

	// DefaultZeroEpsilon is the magnitude below which a previous point
	// estimate counts as zero. Relative change is undefined there, so any
	// absolute change larger than the epsilon is MAJOR.
	DefaultZeroEpsilon = 1e-9

	// floatTolerance decides whether two stored floats differ at all.
	floatTolerance = 1e-12
)

// Kind is the outcome of a classification.
type Kind string

const (
	KindInitial Kind = "INITIAL"
	KindMajor   Kind = "MAJOR"
	KindMinor   Kind = "MINOR"
	KindNoOp    Kind = "NOOP"
)

// BumpKind maps a committable decision onto the changelog bump kind.
// It returns false for NoOp.
func (k Kind) BumpKind() (mechanism.BumpKind, bool) {
	switch k {
	case KindInitial:
		return mechanism.BumpInitial, true
	case KindMajor:
		return mechanism.BumpMajor, true
	case KindMinor:
		return mechanism.BumpMinor, true
	}
	return "", false
}

// Decision is the classifier's verdict for one edit.
type Decision struct {
	Kind    Kind
	Version mechanism.Version // Version the record will carry after commit
	Delta   float64           // Relative point-estimate change (0 for Initial)
	Flipped bool              // Direction of association flipped
	Changed []string          // Version-relevant fields that changed, in schema order
}

// Summary renders a one-line changelog summary.
func (d Decision) Summary() string {
	switch d.Kind {
	case KindInitial:
		return "initial version"
	case KindNoOp:
		return "no version-relevant change"
	}
	var reasons []string
	if d.Flipped {
		reasons = append(reasons, "direction of association flipped")
	}
	if !math.IsInf(d.Delta, 0) && d.Delta > 0 {
		reasons = append(reasons, fmt.Sprintf("point estimate changed %.1f%%", d.Delta*100))
	} else if math.IsInf(d.Delta, 1) {
		reasons = append(reasons, "point estimate moved away from zero")
	}
	if len(d.Changed) > 0 {
		reasons = append(reasons, "changed: "+strings.Join(d.Changed, ", "))
	}
	return strings.ToLower(string(d.Kind)) + ": " + strings.Join(reasons, "; ")
}

// Classifier computes version decisions. The zero value is not usable;
// construct with New.
type Classifier struct {
	majorThreshold float64
	zeroEpsilon    float64
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithMajorThreshold overrides DefaultMajorThreshold.
func WithMajorThreshold(t float64) Option {
	return func(c *Classifier) {
		if t > 0 {
			c.majorThreshold = t
		}
	}
}

// WithZeroEpsilon overrides DefaultZeroEpsilon.
func WithZeroEpsilon(eps float64) Option {
	return func(c *Classifier) {
		if eps > 0 {
			c.zeroEpsilon = eps
		}
	}
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		majorThreshold: DefaultMajorThreshold,
		zeroEpsilon:    DefaultZeroEpsilon,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify compares the stored record (nil for a new proposal) with the
// proposed one.
func (c *Classifier) Classify(old *mechanism.Record, next mechanism.Record) Decision {
	if old == nil {
		return Decision{Kind: KindInitial, Version: mechanism.Initial}
	}

	changed := ChangedFields(*old, next)
	oldPE, newPE := old.EffectSize.PointEstimate, next.EffectSize.PointEstimate
	d := Decision{
		Changed: changed,
		Delta:   c.relativeChange(oldPE, newPE),
		Flipped: directionFlipped(old.EffectSize.Measure, oldPE, next.EffectSize.Measure, newPE),
	}

	switch {
	case d.Flipped, d.Delta > c.majorThreshold, old.EffectSize.Measure != next.EffectSize.Measure:
		d.Kind = KindMajor
		d.Version = old.Version.NextMajor()
	case len(changed) > 0:
		d.Kind = KindMinor
		d.Version = old.Version.NextMinor()
	default:
		d.Kind = KindNoOp
		d.Version = old.Version
	}
	return d
}

// relativeChange returns |new-old| / |old|, or +Inf when old is zero and new is not.
func (c *Classifier) relativeChange(oldPE, newPE float64) float64 {
	diff := math.Abs(newPE - oldPE)
	if math.Abs(oldPE) < c.zeroEpsilon {
		if diff > c.zeroEpsilon {
			return math.Inf(1)
		}
		return 0
	}
	if diff <= floatTolerance {
		return 0
	}
	return diff / math.Abs(oldPE)
}

// direction returns -1, 0 or 1 relative to the measure's null value.
func direction(m mechanism.Measure, pe float64) int {
	null := m.NullValue()
	switch {
	case pe > null+floatTolerance:
		return 1
	case pe < null-floatTolerance:
		return -1
	}
	return 0
}

// directionFlipped reports a change between two non-null, opposite directions.
func directionFlipped(oldM mechanism.Measure, oldPE float64, newM mechanism.Measure, newPE float64) bool {
	od, nd := direction(oldM, oldPE), direction(newM, newPE)
	return od != 0 && nd != 0 && od != nd
}

// ChangedFields lists the version-relevant fields that differ between a and b.
// Store-owned fields (id, version, last_updated, retired) are ignored.
func ChangedFields(a, b mechanism.Record) []string {
	var out []string
	add := func(changed bool, field string) {
		if changed {
			out = append(out, field)
		}
	}

	add(a.Name != b.Name, "name")
	add(a.Category != b.Category, "category")
	add(a.MechanismType != b.MechanismType, "mechanism_type")
	add(a.EffectSize.Measure != b.EffectSize.Measure, "effect_size.measure")
	add(floatChanged(a.EffectSize.PointEstimate, b.EffectSize.PointEstimate), "effect_size.point_estimate")
	add(floatChanged(a.EffectSize.Low(), b.EffectSize.Low()) || floatChanged(a.EffectSize.High(), b.EffectSize.High()),
		"effect_size.confidence_interval")
	add(a.EffectSize.Unit != b.EffectSize.Unit, "effect_size.unit")
	add(a.Evidence.QualityRating != b.Evidence.QualityRating, "evidence.quality_rating")
	add(a.Evidence.NStudies != b.Evidence.NStudies, "evidence.n_studies")
	add(a.Evidence.Citation != b.Evidence.Citation, "evidence.citation")
	add(a.Description != b.Description, "description")
	add(!sameSet(a.Assumptions, b.Assumptions), "assumptions")
	add(!sameSet(a.Limitations, b.Limitations), "limitations")
	add(!slices.Equal(a.Moderators, b.Moderators), "moderators")
	add(!slices.Equal(a.ValidatedBy, b.ValidatedBy), "validated_by")
	add(a.PeerReviewed != b.PeerReviewed, "peer_reviewed")

	return out
}

func floatChanged(a, b float64) bool {
	return math.Abs(a-b) > floatTolerance
}

// sameSet compares string slices as sets: order and duplicates are ignored.
func sameSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, s := range a {
		as[s] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, s := range b {
		bs[s] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for s := range as {
		if _, ok := bs[s]; !ok {
			return false
		}
	}
	return true
}

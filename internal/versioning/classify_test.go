package versioning

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mechbank/internal/mechanism"
	"github.com/roach88/mechbank/internal/testutil"
)

func stored() *mechanism.Record {
	r := testutil.SampleRecordWithID("mech-1")
	r.Version = mechanism.Version{Major: 1, Minor: 2}
	return &r
}

func withEstimate(r mechanism.Record, pe, low, high float64) mechanism.Record {
	r.EffectSize.PointEstimate = pe
	r.EffectSize.ConfidenceInterval = [2]float64{low, high}
	return r
}

func TestClassify_Initial(t *testing.T) {
	d := New().Classify(nil, testutil.SampleRecord())

	assert.Equal(t, KindInitial, d.Kind)
	assert.Equal(t, mechanism.Initial, d.Version)
	assert.Equal(t, "initial version", d.Summary())
}

func TestClassify_LargeChangeIsMajor(t *testing.T) {
	old := stored()
	next := withEstimate(old.Clone(), 1.75, 1.40, 2.10)

	d := New().Classify(old, next)

	assert.Equal(t, KindMajor, d.Kind)
	assert.Equal(t, mechanism.Version{Major: 2, Minor: 0}, d.Version)
	assert.InDelta(t, 0.2069, d.Delta, 1e-4)
	assert.False(t, d.Flipped)
	assert.Equal(t, []string{"effect_size.point_estimate", "effect_size.confidence_interval"}, d.Changed)
	assert.Equal(t, "major: point estimate changed 20.7%; changed: effect_size.point_estimate, effect_size.confidence_interval", d.Summary())
}

func TestClassify_SmallChangeIsMinor(t *testing.T) {
	old := stored()
	next := old.Clone()
	next.EffectSize.PointEstimate = 1.55
	next.Moderators = append(next.Moderators, mechanism.Moderator{
		Name: "Park quality", Direction: mechanism.DirectionPositive, Strength: mechanism.StrengthWeak,
	})

	d := New().Classify(old, next)

	assert.Equal(t, KindMinor, d.Kind)
	assert.Equal(t, mechanism.Version{Major: 1, Minor: 3}, d.Version)
	assert.Equal(t, []string{"effect_size.point_estimate", "moderators"}, d.Changed)
	assert.Equal(t, "minor: point estimate changed 6.9%; changed: effect_size.point_estimate, moderators", d.Summary())
}

func TestClassify_ThresholdIsExclusive(t *testing.T) {
	old := withEstimate(*stored(), 1.25, 1.0, 1.5)
	next := withEstimate(old, 1.5, 1.0, 1.8)

	d := New().Classify(&old, next)

	assert.Equal(t, KindMinor, d.Kind)
	assert.InDelta(t, 0.20, d.Delta, 1e-12)
}

func TestClassify_TextOnlyChangeIsMinor(t *testing.T) {
	old := stored()
	next := old.Clone()
	next.Description = "Revised description."

	d := New().Classify(old, next)

	assert.Equal(t, KindMinor, d.Kind)
	assert.Zero(t, d.Delta)
	assert.Equal(t, []string{"description"}, d.Changed)
	assert.Equal(t, "minor: changed: description", d.Summary())
}

func TestClassify_DirectionFlipIsMajor(t *testing.T) {
	old := withEstimate(*stored(), 1.05, 0.95, 1.15)
	next := withEstimate(old, 0.98, 0.90, 1.06)

	d := New().Classify(&old, next)

	assert.Equal(t, KindMajor, d.Kind)
	assert.True(t, d.Flipped)
	assert.Less(t, d.Delta, DefaultMajorThreshold)
	assert.Contains(t, d.Summary(), "direction of association flipped")
}

func TestClassify_NullEstimateIsNotAFlip(t *testing.T) {
	old := withEstimate(*stored(), 1.0, 0.9, 1.1)
	next := withEstimate(old, 0.95, 0.85, 1.05)

	d := New().Classify(&old, next)

	assert.False(t, d.Flipped)
	assert.Equal(t, KindMinor, d.Kind)
}

func TestClassify_ZeroBaseline(t *testing.T) {
	old := *stored()
	old.EffectSize.Measure = mechanism.MeasureMeanDifference
	old = withEstimate(old, 0, -0.2, 0.2)
	next := withEstimate(old, 0.1, -0.1, 0.3)

	d := New().Classify(&old, next)

	require.Equal(t, KindMajor, d.Kind)
	assert.True(t, math.IsInf(d.Delta, 1))
	assert.False(t, d.Flipped)
	assert.Equal(t, "major: point estimate moved away from zero; changed: effect_size.point_estimate, effect_size.confidence_interval", d.Summary())
}

func TestClassify_ZeroToZeroIsNoChange(t *testing.T) {
	old := *stored()
	old.EffectSize.Measure = mechanism.MeasureMeanDifference
	old = withEstimate(old, 0, -0.2, 0.2)

	d := New().Classify(&old, old.Clone())

	assert.Equal(t, KindNoOp, d.Kind)
	assert.Zero(t, d.Delta)
}

func TestClassify_MeasureChangeIsMajor(t *testing.T) {
	old := stored()
	next := old.Clone()
	next.EffectSize.Measure = mechanism.MeasureRiskRatio

	d := New().Classify(old, next)

	assert.Equal(t, KindMajor, d.Kind)
	assert.Equal(t, []string{"effect_size.measure"}, d.Changed)
}

func TestClassify_NoOp(t *testing.T) {
	old := stored()
	next := old.Clone()
	next.Assumptions = []string{old.Assumptions[1], old.Assumptions[0]}
	next.LastUpdated = testutil.Epoch
	next.Version = mechanism.Version{Major: 9}

	d := New().Classify(old, next)

	assert.Equal(t, KindNoOp, d.Kind)
	assert.Equal(t, old.Version, d.Version)
	assert.Empty(t, d.Changed)
	assert.Equal(t, "no version-relevant change", d.Summary())
}

func TestWithMajorThreshold(t *testing.T) {
	old := stored()
	next := withEstimate(old.Clone(), 1.75, 1.40, 2.10)

	assert.Equal(t, KindMinor, New(WithMajorThreshold(0.5)).Classify(old, next).Kind)
	assert.Equal(t, KindMajor, New(WithMajorThreshold(-1)).Classify(old, next).Kind, "non-positive threshold keeps the default")
}

func TestWithZeroEpsilon(t *testing.T) {
	old := *stored()
	old.EffectSize.Measure = mechanism.MeasureMeanDifference
	old = withEstimate(old, 0.001, -0.1, 0.1)
	next := withEstimate(old, 0.02, -0.1, 0.1)

	d := New().Classify(&old, next)
	assert.Equal(t, KindMajor, d.Kind)
	assert.InDelta(t, 19.0, d.Delta, 1e-9)

	d = New(WithZeroEpsilon(0.01)).Classify(&old, next)
	assert.Equal(t, KindMajor, d.Kind)
	assert.True(t, math.IsInf(d.Delta, 1))
}

func TestChangedFields_ValidatedByOrderMatters(t *testing.T) {
	a := testutil.SampleRecord()
	b := a.Clone()
	b.ValidatedBy = []string{"FP", "RM"}

	assert.Equal(t, []string{"validated_by"}, ChangedFields(a, b))
}

func TestKind_BumpKind(t *testing.T) {
	tests := []struct {
		kind Kind
		want mechanism.BumpKind
		ok   bool
	}{
		{KindInitial, mechanism.BumpInitial, true},
		{KindMajor, mechanism.BumpMajor, true},
		{KindMinor, mechanism.BumpMinor, true},
		{KindNoOp, "", false},
	}

	for _, tt := range tests {
		got, ok := tt.kind.BumpKind()
		assert.Equal(t, tt.want, got, tt.kind)
		assert.Equal(t, tt.ok, ok, tt.kind)
	}
}

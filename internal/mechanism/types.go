package mechanism

import "time"

// Category is the structural domain a mechanism belongs to.
type Category string

// Built-in categories. The set can be extended through configuration.
const (
	CategoryBuiltEnvironment  Category = "built_environment"
	CategorySocialEnvironment Category = "social_environment"
	CategoryEconomic          Category = "economic"
	CategoryPolitical         Category = "political"
	CategoryBiological        Category = "biological"
	CategoryPsychological     Category = "psychological"
	CategoryBehavioral        Category = "behavioral"
	CategoryHealthcareAccess  Category = "healthcare_access"
)

// DefaultCategories lists the built-in categories in display order.
var DefaultCategories = []Category{
	CategoryBuiltEnvironment,
	CategorySocialEnvironment,
	CategoryEconomic,
	CategoryPolitical,
	CategoryBiological,
	CategoryPsychological,
	CategoryBehavioral,
	CategoryHealthcareAccess,
}

// MechanismType classifies the causal channel of a mechanism.
type MechanismType string

const (
	TypeBiological    MechanismType = "biological"
	TypePsychological MechanismType = "psychological"
	TypeSocial        MechanismType = "social"
	TypeEnvironmental MechanismType = "environmental"
)

// Measure is the statistic an effect size is reported in.
type Measure string

const (
	MeasureOddsRatio                  Measure = "odds_ratio"
	MeasureRiskRatio                  Measure = "risk_ratio"
	MeasureHazardRatio                Measure = "hazard_ratio"
	MeasureMeanDifference             Measure = "mean_difference"
	MeasureStandardizedMeanDifference Measure = "standardized_mean_difference"
	MeasureCorrelation                Measure = "correlation"
	MeasureRegressionCoefficient      Measure = "regression_coefficient"
	MeasurePercentChange              Measure = "percent_change"
)

// IsRatio reports whether the measure is multiplicative, i.e. its null value is 1.
func (m Measure) IsRatio() bool {
	switch m {
	case MeasureOddsRatio, MeasureRiskRatio, MeasureHazardRatio:
		return true
	}
	return false
}

// NullValue returns the value of the measure that means "no association".
func (m Measure) NullValue() float64 {
	if m.IsRatio() {
		return 1
	}
	return 0
}

// Grade is the evidence-quality rating.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
)

// Grades lists the valid grades from strongest to weakest.
var Grades = []Grade{GradeA, GradeB, GradeC}

// Direction is the sign of a moderator's influence.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
)

// Strength is the magnitude of a moderator's influence.
type Strength string

const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

// EffectSize is the quantitative effect of a mechanism.
type EffectSize struct {
	Measure            Measure    `json:"measure" yaml:"measure" validate:"required,oneof=odds_ratio risk_ratio hazard_ratio mean_difference standardized_mean_difference correlation regression_coefficient percent_change"`
	PointEstimate      float64    `json:"point_estimate" yaml:"point_estimate"`
	ConfidenceInterval [2]float64 `json:"confidence_interval" yaml:"confidence_interval"`
	Unit               string     `json:"unit" yaml:"unit" validate:"required"`
}

// Low returns the lower confidence bound.
func (e EffectSize) Low() float64 { return e.ConfidenceInterval[0] }

// High returns the upper confidence bound.
func (e EffectSize) High() float64 { return e.ConfidenceInterval[1] }

// Evidence describes the research supporting a mechanism.
type Evidence struct {
	QualityRating Grade  `json:"quality_rating" yaml:"quality_rating" validate:"required,oneof=A B C"`
	NStudies      int    `json:"n_studies" yaml:"n_studies" validate:"gte=0"`
	Citation      string `json:"citation" yaml:"citation" validate:"required"`
}

// Moderator is a contextual variable that strengthens or weakens the effect.
type Moderator struct {
	Name      string    `json:"name" yaml:"name" validate:"required"`
	Direction Direction `json:"direction" yaml:"direction" validate:"required,oneof=positive negative"`
	Strength  Strength  `json:"strength" yaml:"strength" validate:"required,oneof=weak moderate strong"`
}

// Record is a single mechanism: a causal pathway from a structural
// intervention to a health outcome.
type Record struct {
	ID            string        `json:"id" yaml:"id"`
	Name          string        `json:"name" yaml:"name" validate:"required"`
	Category      Category      `json:"category" yaml:"category" validate:"required"`
	MechanismType MechanismType `json:"mechanism_type" yaml:"mechanism_type" validate:"required,oneof=biological psychological social environmental"`
	EffectSize    EffectSize    `json:"effect_size" yaml:"effect_size"`
	Evidence      Evidence      `json:"evidence" yaml:"evidence"`
	Description   string        `json:"description" yaml:"description" validate:"required"`
	Assumptions   []string      `json:"assumptions" yaml:"assumptions" validate:"dive,required"`
	Limitations   []string      `json:"limitations" yaml:"limitations" validate:"dive,required"`
	Moderators    []Moderator   `json:"moderators" yaml:"moderators" validate:"dive"`
	ValidatedBy   []string      `json:"validated_by" yaml:"validated_by" validate:"dive,initials"`
	PeerReviewed  bool          `json:"peer_reviewed" yaml:"peer_reviewed"`
	Retired       bool          `json:"retired" yaml:"retired"`
	Version       Version       `json:"version" yaml:"version"`
	LastUpdated   time.Time     `json:"last_updated" yaml:"last_updated"`
}

// Clone returns a deep copy so callers cannot mutate stored slices.
func (r Record) Clone() Record {
	out := r
	out.Assumptions = cloneStrings(r.Assumptions)
	out.Limitations = cloneStrings(r.Limitations)
	out.ValidatedBy = cloneStrings(r.ValidatedBy)
	if r.Moderators != nil {
		out.Moderators = make([]Moderator, len(r.Moderators))
		copy(out.Moderators, r.Moderators)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

package testutil

import (
	"github.com/roach88/mechbank/internal/mechanism"
)

// ValidCitation is a citation that passes the citation checker.
const ValidCitation = `Mitchell, Richard, and Frank Popham. 2008. "Effect of Exposure to Natural Environment on Health Inequalities." *The Lancet* 372(9650): 1655-1660. https://doi.org/10.1016/S0140-6736(08)61689-X`

// MetaAnalysisCitation is a valid citation carrying a meta-analysis marker.
const MetaAnalysisCitation = `Twohig-Bennett, Caoimhe, and Andy Jones. 2018. "The Health Benefits of the Great Outdoors: A Systematic Review and Meta-Analysis of Greenspace Exposure and Health Outcomes." *Environmental Research* 166: 628-637. https://doi.org/10.1016/j.envres.2018.06.030`

// SampleRecord returns a valid green-space record with OR 1.45 [1.20, 1.75],
// grade A over 5 studies. The id is left empty.
func SampleRecord() mechanism.Record {
	return mechanism.Record{
		Name:          "Green space access → Physical activity → Cardiovascular disease",
		Category:      mechanism.CategoryBuiltEnvironment,
		MechanismType: mechanism.TypeSocial,
		EffectSize: mechanism.EffectSize{
			Measure:            mechanism.MeasureOddsRatio,
			PointEstimate:      1.45,
			ConfidenceInterval: [2]float64{1.20, 1.75},
			Unit:               "odds of meeting activity guidelines",
		},
		Evidence: mechanism.Evidence{
			QualityRating: mechanism.GradeA,
			NStudies:      5,
			Citation:      ValidCitation,
		},
		Description: "Access to parks increases leisure-time physical activity, lowering cardiovascular risk.",
		Assumptions: []string{"Parks are safe and maintained", "Residents live within 500m"},
		Limitations: []string{"Cross-sectional designs dominate"},
		Moderators: []mechanism.Moderator{
			{Name: "Neighbourhood deprivation", Direction: mechanism.DirectionPositive, Strength: mechanism.StrengthModerate},
		},
		ValidatedBy:  []string{"RM", "FP"},
		PeerReviewed: true,
	}
}

// SampleRecordWithID returns SampleRecord with the given id.
func SampleRecordWithID(id string) mechanism.Record {
	r := SampleRecord()
	r.ID = id
	return r
}

// HousingRecord returns a second valid record in another category.
func HousingRecord() mechanism.Record {
	return mechanism.Record{
		Name:          "Housing instability -> Chronic stress -> Hypertension",
		Category:      mechanism.CategoryEconomic,
		MechanismType: mechanism.TypePsychological,
		EffectSize: mechanism.EffectSize{
			Measure:            mechanism.MeasureRiskRatio,
			PointEstimate:      1.30,
			ConfidenceInterval: [2]float64{1.10, 1.52},
			Unit:               "relative risk of hypertension",
		},
		Evidence: mechanism.Evidence{
			QualityRating: mechanism.GradeB,
			NStudies:      2,
			Citation:      MetaAnalysisCitation,
		},
		Description: "Eviction threat and frequent moves sustain physiological stress responses.",
		Assumptions: []string{"Stress exposure persists for at least a year"},
		Limitations: []string{"Self-reported housing status"},
		Moderators:  []mechanism.Moderator{},
		ValidatedBy: []string{},
	}
}

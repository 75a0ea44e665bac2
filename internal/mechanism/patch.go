package mechanism

// Patch is a partial update. Nil fields are left unchanged; slice fields
// replace the stored slice wholesale when present. Id, version, retired and
// last_updated are store-owned and cannot be patched.
type Patch struct {
	Name          *string          `json:"name,omitempty" yaml:"name,omitempty"`
	Category      *Category        `json:"category,omitempty" yaml:"category,omitempty"`
	MechanismType *MechanismType   `json:"mechanism_type,omitempty" yaml:"mechanism_type,omitempty"`
	EffectSize    *EffectSizePatch `json:"effect_size,omitempty" yaml:"effect_size,omitempty"`
	Evidence      *EvidencePatch   `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	Description   *string          `json:"description,omitempty" yaml:"description,omitempty"`
	Assumptions   *[]string        `json:"assumptions,omitempty" yaml:"assumptions,omitempty"`
	Limitations   *[]string        `json:"limitations,omitempty" yaml:"limitations,omitempty"`
	Moderators    *[]Moderator     `json:"moderators,omitempty" yaml:"moderators,omitempty"`
	ValidatedBy   *[]string        `json:"validated_by,omitempty" yaml:"validated_by,omitempty"`
	PeerReviewed  *bool            `json:"peer_reviewed,omitempty" yaml:"peer_reviewed,omitempty"`
}

// EffectSizePatch is a partial effect size.
type EffectSizePatch struct {
	Measure            *Measure    `json:"measure,omitempty" yaml:"measure,omitempty"`
	PointEstimate      *float64    `json:"point_estimate,omitempty" yaml:"point_estimate,omitempty"`
	ConfidenceInterval *[2]float64 `json:"confidence_interval,omitempty" yaml:"confidence_interval,omitempty"`
	Unit               *string     `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// EvidencePatch is a partial evidence block.
type EvidencePatch struct {
	QualityRating *Grade  `json:"quality_rating,omitempty" yaml:"quality_rating,omitempty"`
	NStudies      *int    `json:"n_studies,omitempty" yaml:"n_studies,omitempty"`
	Citation      *string `json:"citation,omitempty" yaml:"citation,omitempty"`
}

// IsEmpty reports whether the patch sets no field at all.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Category == nil && p.MechanismType == nil &&
		p.EffectSize == nil && p.Evidence == nil && p.Description == nil &&
		p.Assumptions == nil && p.Limitations == nil && p.Moderators == nil &&
		p.ValidatedBy == nil && p.PeerReviewed == nil
}

// Apply merges the patch onto a copy of r and returns the result.
// r itself is not modified.
func (p Patch) Apply(r Record) Record {
	out := r.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.MechanismType != nil {
		out.MechanismType = *p.MechanismType
	}
	if es := p.EffectSize; es != nil {
		if es.Measure != nil {
			out.EffectSize.Measure = *es.Measure
		}
		if es.PointEstimate != nil {
			out.EffectSize.PointEstimate = *es.PointEstimate
		}
		if es.ConfidenceInterval != nil {
			out.EffectSize.ConfidenceInterval = *es.ConfidenceInterval
		}
		if es.Unit != nil {
			out.EffectSize.Unit = *es.Unit
		}
	}
	if ev := p.Evidence; ev != nil {
		if ev.QualityRating != nil {
			out.Evidence.QualityRating = *ev.QualityRating
		}
		if ev.NStudies != nil {
			out.Evidence.NStudies = *ev.NStudies
		}
		if ev.Citation != nil {
			out.Evidence.Citation = *ev.Citation
		}
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Assumptions != nil {
		out.Assumptions = cloneStrings(*p.Assumptions)
	}
	if p.Limitations != nil {
		out.Limitations = cloneStrings(*p.Limitations)
	}
	if p.Moderators != nil {
		mods := make([]Moderator, len(*p.Moderators))
		copy(mods, *p.Moderators)
		out.Moderators = mods
	}
	if p.ValidatedBy != nil {
		out.ValidatedBy = cloneStrings(*p.ValidatedBy)
	}
	if p.PeerReviewed != nil {
		out.PeerReviewed = *p.PeerReviewed
	}
	return out
}

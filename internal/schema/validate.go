package schema

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/mechbank/internal/mechanism"
)

// MinStudiesForHighGrade is the number of studies an A or B rating needs
// when the citation is not a meta-analysis.
const MinStudiesForHighGrade = 3

// metaAnalysisMarker recognises citations of pooled evidence.
var metaAnalysisMarker = regexp.MustCompile(`(?i)\bmeta[- ]?analy(?:sis|ses|tic)\b|\bpooled analysis\b`)

// initialsPattern matches reviewer initials such as "JS" or "MAK".
var initialsPattern = regexp.MustCompile(`^[A-Z]{2,4}$`)

// HasMetaAnalysisMarker reports whether the citation text indicates a meta-analysis.
func HasMetaAnalysisMarker(citation string) bool {
	return metaAnalysisMarker.MatchString(norm.NFC.String(citation))
}

// Validator checks records against the schema. It is safe for concurrent use.
type Validator struct {
	structs    *validator.Validate
	categories map[mechanism.Category]struct{}
}

// Option configures a Validator.
type Option func(*Validator)

// WithExtraCategories extends the closed category set.
func WithExtraCategories(extra ...string) Option {
	return func(v *Validator) {
		for _, c := range extra {
			if c = strings.TrimSpace(c); c != "" {
				v.categories[mechanism.Category(c)] = struct{}{}
			}
		}
	}
}

// New creates a Validator with the built-in categories.
func New(opts ...Option) *Validator {
	structs := validator.New(validator.WithRequiredStructEnabled())
	structs.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = structs.RegisterValidation("initials", func(fl validator.FieldLevel) bool {
		return initialsPattern.MatchString(fl.Field().String())
	})

	v := &Validator{
		structs:    structs,
		categories: make(map[mechanism.Category]struct{}, len(mechanism.DefaultCategories)),
	}
	for _, c := range mechanism.DefaultCategories {
		v.categories[c] = struct{}{}
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Categories returns the known categories sorted by name.
func (v *Validator) Categories() []mechanism.Category {
	out := make([]mechanism.Category, 0, len(v.categories))
	for c := range v.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// KnownCategory reports whether c belongs to the category set.
func (v *Validator) KnownCategory(c mechanism.Category) bool {
	_, ok := v.categories[c]
	return ok
}

// Validate returns every schema violation in r. A nil result means r is valid.
func (v *Validator) Validate(r mechanism.Record) []mechanism.FieldError {
	var errs []mechanism.FieldError

	errs = append(errs, v.validateStruct(r)...)

	// Category: closed but extensible set.
	if r.Category != "" && !v.KnownCategory(r.Category) {
		errs = append(errs, mechanism.FieldError{
			Field:   "category",
			Code:    mechanism.ErrCodeEnum,
			Message: fmt.Sprintf("unknown category %q", r.Category),
		})
	}

	// Name must describe a pathway with at least two nodes.
	if strings.TrimSpace(r.Name) != "" && len(r.Pathway()) < 2 {
		errs = append(errs, mechanism.FieldError{
			Field:   "name",
			Code:    mechanism.ErrCodeFormat,
			Message: "name must describe a pathway such as \"Intervention → Intermediate → Outcome\"",
		})
	}

	errs = append(errs, validateEffectSize(r.EffectSize)...)
	errs = append(errs, validateEvidenceGrade(r.Evidence)...)

	if r.PeerReviewed && len(r.ValidatedBy) == 0 {
		errs = append(errs, mechanism.FieldError{
			Field:   "validated_by",
			Code:    mechanism.ErrCodePeerReview,
			Message: "peer reviewed records must list at least one reviewer",
		})
	}

	return errs
}

// validateStruct evaluates the struct tags declared on the mechanism types.
func (v *Validator) validateStruct(r mechanism.Record) []mechanism.FieldError {
	err := v.structs.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []mechanism.FieldError{{
			Field:   "record",
			Code:    mechanism.ErrCodeFormat,
			Message: err.Error(),
		}}
	}

	errs := make([]mechanism.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, convertFieldError(fe))
	}
	return errs
}

// convertFieldError maps a validator error onto the bank's FieldError.
func convertFieldError(fe validator.FieldError) mechanism.FieldError {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return mechanism.FieldError{Field: field, Code: mechanism.ErrCodeRequired, Message: "is required"}
	case "oneof":
		return mechanism.FieldError{
			Field:   field,
			Code:    mechanism.ErrCodeEnum,
			Message: fmt.Sprintf("%q is not one of [%s]", fmt.Sprint(fe.Value()), fe.Param()),
		}
	case "gte":
		return mechanism.FieldError{
			Field:   field,
			Code:    mechanism.ErrCodeRange,
			Message: fmt.Sprintf("must be >= %s", fe.Param()),
		}
	case "initials":
		return mechanism.FieldError{
			Field:   field,
			Code:    mechanism.ErrCodeFormat,
			Message: fmt.Sprintf("%q is not a reviewer's initials (2-4 capital letters)", fmt.Sprint(fe.Value())),
		}
	default:
		return mechanism.FieldError{
			Field:   field,
			Code:    mechanism.ErrCodeFormat,
			Message: fmt.Sprintf("failed %q check", fe.Tag()),
		}
	}
}

// validateEffectSize checks the confidence interval ordering and bracketing.
func validateEffectSize(es mechanism.EffectSize) []mechanism.FieldError {
	pe, low, high := es.PointEstimate, es.Low(), es.High()

	if isNotFinite(pe) {
		return []mechanism.FieldError{{
			Field:   "effect_size.point_estimate",
			Code:    mechanism.ErrCodeRange,
			Message: "must be a finite number",
		}}
	}
	if isNotFinite(low) || isNotFinite(high) {
		return []mechanism.FieldError{{
			Field:   "effect_size.confidence_interval",
			Code:    mechanism.ErrCodeRange,
			Message: "bounds must be finite numbers",
		}}
	}

	var errs []mechanism.FieldError
	switch {
	case low > high:
		errs = append(errs, mechanism.FieldError{
			Field:   "effect_size.confidence_interval",
			Code:    mechanism.ErrCodeConfidence,
			Message: fmt.Sprintf("low bound %g exceeds high bound %g", low, high),
		})
	case pe < low || pe > high:
		errs = append(errs, mechanism.FieldError{
			Field:   "effect_size.confidence_interval",
			Code:    mechanism.ErrCodeConfidence,
			Message: fmt.Sprintf("[%g, %g] does not bracket point estimate %g", low, high, pe),
		})
	}

	if es.Measure.IsRatio() && pe <= 0 {
		errs = append(errs, mechanism.FieldError{
			Field:   "effect_size.point_estimate",
			Code:    mechanism.ErrCodeRange,
			Message: fmt.Sprintf("%s must be positive", es.Measure),
		})
	}
	return errs
}

// validateEvidenceGrade enforces the A/B rule: at least MinStudiesForHighGrade
// studies, or a meta-analysis citation.
func validateEvidenceGrade(ev mechanism.Evidence) []mechanism.FieldError {
	if ev.QualityRating != mechanism.GradeA && ev.QualityRating != mechanism.GradeB {
		return nil
	}
	// A negative count is already reported by the range check.
	if ev.NStudies < 0 || ev.NStudies >= MinStudiesForHighGrade {
		return nil
	}
	if HasMetaAnalysisMarker(ev.Citation) {
		return nil
	}
	return []mechanism.FieldError{{
		Field: "evidence.quality_rating",
		Code:  mechanism.ErrCodeEvidenceGrade,
		Message: fmt.Sprintf("grade %s requires at least %d studies or a meta-analysis citation (have %d)",
			ev.QualityRating, MinStudiesForHighGrade, ev.NStudies),
	}}
}

func isNotFinite(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

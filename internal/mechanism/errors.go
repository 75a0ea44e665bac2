package mechanism

import (
	"errors"
	"fmt"
	"strings"
)

// Field error codes (E100-E199).
const (
	ErrCodeRequired          = "E101" // required field missing or empty
	ErrCodeEnum              = "E102" // value outside its closed set
	ErrCodeRange             = "E103" // numeric value out of range
	ErrCodeConfidence        = "E104" // confidence interval unordered or not bracketing the estimate
	ErrCodeEvidenceGrade     = "E105" // A/B grade without enough studies or a meta-analysis
	ErrCodePeerReview        = "E106" // peer reviewed record without reviewers
	ErrCodeDuplicateID       = "E107" // id already assigned
	ErrCodeFormat            = "E108" // malformed value (e.g. reviewer initials)
	ErrCodeCitationMalformed = "E120" // citation does not match the required style
)

// FieldError is a schema violation scoped to one field. Field is the JSON
// path of the offending value, e.g. "evidence.quality_rating".
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// CitationProblem names one missing or malformed citation component.
type CitationProblem struct {
	Component string `json:"component"` // author, year, title, journal, volume, pages, locator
	Message   string `json:"message"`
}

// CitationError reports a citation that is not well-formed.
type CitationError struct {
	Text     string            `json:"text"`
	Problems []CitationProblem `json:"problems"`
}

// Error implements the error interface.
func (e *CitationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Component + ": " + p.Message
	}
	return fmt.Sprintf("[%s] malformed citation (%s)", ErrCodeCitationMalformed, strings.Join(parts, "; "))
}

// Components returns the names of the broken components in order.
func (e *CitationError) Components() []string {
	out := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		out[i] = p.Component
	}
	return out
}

// ValidationFailure aggregates every problem found with a proposed record.
// A mutation fails if the aggregate is non-empty.
type ValidationFailure struct {
	Fields   []FieldError   `json:"fields,omitempty"`
	Citation *CitationError `json:"citation,omitempty"`
}

// Empty reports whether no problem was recorded.
func (f *ValidationFailure) Empty() bool {
	return f == nil || (len(f.Fields) == 0 && f.Citation == nil)
}

// Count returns the number of individual problems.
func (f *ValidationFailure) Count() int {
	if f == nil {
		return 0
	}
	n := len(f.Fields)
	if f.Citation != nil {
		n += len(f.Citation.Problems)
	}
	return n
}

// Error implements the error interface.
func (f *ValidationFailure) Error() string {
	msgs := make([]string, 0, len(f.Fields)+1)
	for _, fe := range f.Fields {
		msgs = append(msgs, fe.Error())
	}
	if f.Citation != nil {
		msgs = append(msgs, f.Citation.Error())
	}
	return fmt.Sprintf("validation failed with %d problem(s): %s", f.Count(), strings.Join(msgs, "; "))
}

// NotFoundError is returned for an unknown mechanism id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("mechanism %q not found", e.ID)
}

// RetiredError is returned when updating a retired mechanism.
type RetiredError struct {
	ID string
}

func (e *RetiredError) Error() string {
	return fmt.Sprintf("mechanism %q is retired", e.ID)
}

// ConflictError is returned when the stored version moved underneath a commit.
type ConflictError struct {
	ID       string
	Expected Version
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("mechanism %q changed concurrently (expected version %s)", e.ID, e.Expected)
}

// ConsistencyError reports that replaying a record's changelog does not
// reproduce its stored version. It is fatal for further mutation of that
// record until reconciled manually; it never blocks reads.
type ConsistencyError struct {
	ID       string  `json:"mechanism_id"`
	Stored   Version `json:"stored_version"`
	Replayed Version `json:"replayed_version"`
	Reason   string  `json:"reason"`
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("changelog for mechanism %q is inconsistent: stored %s, replayed %s: %s",
		e.ID, e.Stored, e.Replayed, e.Reason)
}

// IsNotFound reports whether err is a NotFoundError.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is a ValidationFailure.
func IsValidation(err error) bool {
	var vf *ValidationFailure
	return errors.As(err, &vf)
}

// IsConsistency reports whether err is a ConsistencyError.
func IsConsistency(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// IsRetired reports whether err is a RetiredError.
func IsRetired(err error) bool {
	var re *RetiredError
	return errors.As(err, &re)
}

// Package schema validates mechanism records against the bank's schema.
//
// Validation is a pure function of the record. Every violation is
// collected (no fail-fast) so a reviewer can fix all issues in a single
// resubmission. Structural and enum rules are declared as struct tags on
// mechanism types and evaluated with go-playground/validator; cross-field
// rules (confidence interval bracketing, the A/B evidence rule, peer review)
// are evaluated here.
package schema

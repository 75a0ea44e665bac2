package cli

import (
	"errors"
	"fmt"

	"github.com/roach88/mechbank/internal/ingest"
	"github.com/roach88/mechbank/internal/mechanism"
)

// CLI error codes. Field-level codes (E101-E120) live in the mechanism
// package and appear in the details of an E100 response.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeInput        = "E002" // Unreadable or malformed input document
	ErrCodeDatabase     = "E003" // Store could not be opened or queried
	ErrCodeConfig       = "E004" // Invalid configuration
	ErrCodeNotFound     = "E005" // Unknown mechanism id or path
	ErrCodeRetired      = "E006" // Mutation of a retired mechanism
	ErrCodeConflict     = "E007" // Concurrent write lost
	ErrCodeInconsistent = "E008" // Changelog replay mismatch
	ErrCodeValidation   = "E100" // Record failed schema or citation checks
	ErrCodeShape        = "E130" // Document does not match mechanism.cue
)

// classify maps an error to its CLI code, exit code and response details.
func classify(err error) (code string, exit int, details any) {
	var (
		vf    *mechanism.ValidationFailure
		ce    *mechanism.ConsistencyError
		nf    *mechanism.NotFoundError
		re    *mechanism.RetiredError
		cf    *mechanism.ConflictError
		shape *ingest.ShapeError
	)
	switch {
	case errors.As(err, &vf):
		return ErrCodeValidation, ExitFailure, vf
	case errors.As(err, &ce):
		return ErrCodeInconsistent, ExitFailure, ce
	case errors.As(err, &nf):
		return ErrCodeNotFound, ExitCommandError, nil
	case errors.As(err, &re):
		return ErrCodeRetired, ExitCommandError, nil
	case errors.As(err, &cf):
		return ErrCodeConflict, ExitCommandError, nil
	case errors.As(err, &shape):
		return ErrCodeShape, ExitCommandError, shape.Problems
	default:
		return ErrCodeGeneric, ExitCommandError, nil
	}
}

// fail writes err in the configured format and returns the matching
// ExitError for the process exit code.
func fail(f *OutputFormatter, err error) error {
	code, exit, details := classify(err)
	return failWith(f, code, exit, err, details)
}

func failWith(f *OutputFormatter, code string, exit int, err error, details any) error {
	_ = f.Error(code, err.Error(), details)
	return WrapExitError(exit, code, err)
}

// inputError reports a problem reading a command's input document.
func inputError(f *OutputFormatter, err error) error {
	if ingest.IsShapeError(err) {
		return fail(f, err)
	}
	return failWith(f, ErrCodeInput, ExitCommandError, fmt.Errorf("read input: %w", err), nil)
}

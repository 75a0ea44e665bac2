package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mechbank/internal/bank"
	"github.com/roach88/mechbank/internal/ingest"
	"github.com/roach88/mechbank/internal/mechanism"
)

// DocumentReport is the validation outcome for one document.
type DocumentReport struct {
	Path     string                       `json:"path"`
	ID       string                       `json:"id,omitempty"`
	Valid    bool                         `json:"valid"`
	Problems *mechanism.ValidationFailure `json:"problems,omitempty"`
	Error    string                       `json:"error,omitempty"` // Unreadable or mis-shaped document
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool             `json:"valid"`
	Documents []DocumentReport `json:"documents"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate mechanism documents without touching the store",
		Long: `Check YAML/JSON mechanism documents against the schema and citation rules.

Directories are searched recursively for .yaml, .yml and .json files.
Nothing is written; id uniqueness is only checked by propose and import.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	s, err := loadSettings(opts, cmd)
	if err != nil {
		return err
	}
	formatter := s.out

	dec, err := ingest.NewDecoder()
	if err != nil {
		return fail(formatter, err)
	}
	docs, err := dec.LoadPaths(paths...)
	if err != nil {
		return failWith(formatter, ErrCodeNotFound, ExitCommandError, err, nil)
	}
	if len(docs) == 0 {
		return failWith(formatter, ErrCodeInput, ExitCommandError, errNoDocuments, nil)
	}
	formatter.VerboseLog("Found %d document(s)", len(docs))

	v := newValidator(s.cfg)
	result := ValidationResult{Valid: true, Documents: make([]DocumentReport, 0, len(docs))}
	for _, doc := range docs {
		report := DocumentReport{Path: doc.Path, ID: doc.Record.ID}
		switch {
		case doc.Err != nil:
			report.Error = doc.Err.Error()
		default:
			report.Problems = bank.CheckRecord(v, doc.Record)
			report.Valid = report.Problems == nil
		}
		if !report.Valid {
			result.Valid = false
		}
		result.Documents = append(result.Documents, report)
	}

	if result.Valid {
		return formatter.Emit(result, func(w io.Writer) error {
			fmt.Fprintf(w, "✓ %d document(s) valid\n", len(result.Documents))
			return nil
		})
	}
	return outputValidationErrors(formatter, result)
}

// outputValidationErrors reports invalid documents. Exit code 1.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	invalid := 0
	for _, d := range result.Documents {
		if !d.Valid {
			invalid++
		}
	}
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d document(s)", invalid))

	if formatter.Structured() {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeValidation,
				Message: exitErr.Message,
			},
		}); err != nil {
			return err
		}
		return exitErr
	}

	w := formatter.Writer
	for _, d := range result.Documents {
		if d.Valid {
			fmt.Fprintf(w, "✓ %s\n", d.Path)
			continue
		}
		fmt.Fprintf(w, "%s\n", d.Path)
		if d.Error != "" {
			fmt.Fprintf(w, "  %s\n", d.Error)
			continue
		}
		renderValidationFailure(w, d.Problems)
	}
	return exitErr
}

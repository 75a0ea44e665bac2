package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/mechbank/internal/ingest"
	"github.com/roach88/mechbank/internal/mechanism"
)

// NewProposeCommand creates the propose command.
func NewProposeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "propose <file|->",
		Short: "Add a new mechanism at version 1.0",
		Long: `Validate a mechanism document and commit it at version 1.0.

A missing id is generated. version, last_updated and retired are owned by
the bank and rejected in the document. Use - to read from stdin.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				return runPropose(ctx, s, cmd, args[0])
			})
		},
	}
}

func runPropose(ctx context.Context, s *session, cmd *cobra.Command, path string) error {
	data, source, err := readInput(cmd, path)
	if err != nil {
		return inputError(s.out, err)
	}
	dec, err := ingest.NewDecoder()
	if err != nil {
		return fail(s.out, err)
	}
	r, err := dec.Record(source, data, ingest.FormatForPath(source))
	if err != nil {
		return inputError(s.out, err)
	}

	res, err := s.bank.Propose(ctx, r)
	if err != nil {
		return mutationError(s.out, err)
	}
	return s.out.Emit(res, func(w io.Writer) error { return renderMutation(w, res) })
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <id> <patch-file|->",
		Short: "Apply a partial update and bump the version",
		Long: `Apply a partial mechanism document to an existing record.

The change is classified as MAJOR (conclusion changed) or MINOR (refined
evidence). An edit that changes nothing is reported and not recorded.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				return runUpdate(ctx, s, cmd, args[0], args[1])
			})
		},
	}
}

func runUpdate(ctx context.Context, s *session, cmd *cobra.Command, id, path string) error {
	data, source, err := readInput(cmd, path)
	if err != nil {
		return inputError(s.out, err)
	}
	dec, err := ingest.NewDecoder()
	if err != nil {
		return fail(s.out, err)
	}
	patch, err := dec.Patch(source, data, ingest.FormatForPath(source))
	if err != nil {
		return inputError(s.out, err)
	}

	res, err := s.bank.Update(ctx, id, patch)
	if err != nil {
		return mutationError(s.out, err)
	}
	return s.out.Emit(res, func(w io.Writer) error { return renderMutation(w, res) })
}

// RetireResult is the structured output of retire.
type RetireResult struct {
	ID      string `json:"id"`
	Retired bool   `json:"retired"`
}

// NewRetireCommand creates the retire command.
func NewRetireCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retire <id>",
		Short: "Hide a mechanism from listings without deleting it",
		Long: `Mark a mechanism as retired. Its history stays in the changelog and
its id is never reused. Retiring twice is harmless.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				id := args[0]
				if err := s.bank.Retire(ctx, id); err != nil {
					return fail(s.out, err)
				}
				return s.out.Emit(RetireResult{ID: id, Retired: true}, func(w io.Writer) error {
					fmt.Fprintf(w, "✓ %s retired\n", id)
					return nil
				})
			})
		},
	}
}

// readInput reads path, or stdin for "-". The returned source names the
// input in error messages and selects the decoder format.
func readInput(cmd *cobra.Command, path string) ([]byte, string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return data, "stdin.yaml", err
	}
	data, err := os.ReadFile(path)
	return data, path, err
}

// mutationError renders a rejected mutation. Validation failures are
// listed field by field in text mode.
func mutationError(f *OutputFormatter, err error) error {
	var vf *mechanism.ValidationFailure
	if !f.Structured() && errors.As(err, &vf) {
		renderValidationFailure(f.Writer, vf)
		return WrapExitError(ExitFailure, ErrCodeValidation, err)
	}
	return fail(f, err)
}

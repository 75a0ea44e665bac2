package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mechbank/internal/mechanism"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history <id>",
		Short:         "Show the changelog of one mechanism, oldest first",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				id := args[0]
				if _, err := s.query.Get(ctx, id); err != nil {
					return fail(s.out, err)
				}
				entries, err := s.bank.Ledger().History(ctx, id)
				if err != nil {
					return fail(s.out, err)
				}
				return s.out.Emit(entries, func(w io.Writer) error { return renderEntries(w, entries) })
			})
		},
	}
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full changelog for audit tooling",
		Long: `Write every changelog entry, ordered by timestamp, as a bare JSON array
(or YAML list with --format yaml). No response envelope is added.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				entries, err := s.bank.Ledger().Export(ctx)
				if err != nil {
					return fail(s.out, err)
				}

				w := s.out.Writer
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return failWith(s.out, ErrCodeInput, ExitCommandError, err, nil)
					}
					defer f.Close()
					w = f
				}
				if err := writeEntries(w, entries, rootOpts.Format); err != nil {
					return fail(s.out, err)
				}
				s.out.VerboseLog("Exported %d entries", len(entries))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	return cmd
}

func writeEntries(w io.Writer, entries []mechanism.ChangelogEntry, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(entries)
}

// VerifyResult is the structured output of verify.
type VerifyResult struct {
	Consistent   bool                         `json:"consistent"`
	Inconsistent []mechanism.ConsistencyError `json:"inconsistent"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Replay every changelog and quarantine mismatches",
		Long: `Replay each mechanism's changelog from 0.0 and compare the result with
the stored version. Mismatching records are quarantined: reads still work,
mutations are refused until 'mechbank reconcile' succeeds. Nothing is
repaired automatically.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				found, err := s.bank.Verify(ctx)
				if err != nil {
					return fail(s.out, err)
				}
				result := VerifyResult{Consistent: len(found) == 0, Inconsistent: found}

				if result.Consistent {
					return s.out.Emit(result, func(w io.Writer) error {
						fmt.Fprintln(w, "✓ All changelogs consistent")
						return nil
					})
				}

				exitErr := NewExitError(ExitFailure, fmt.Sprintf("%d inconsistent changelog(s)", len(found)))
				if s.out.Structured() {
					if err := s.out.encode(CLIResponse{
						Status: "error",
						Data:   result,
						Error:  &CLIError{Code: ErrCodeInconsistent, Message: exitErr.Message},
					}); err != nil {
						return err
					}
					return exitErr
				}
				fmt.Fprintf(s.out.Writer, "✗ %s (quarantined)\n", exitErr.Message)
				renderConsistency(s.out.Writer, found)
				return exitErr
			})
		},
	}
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <id>",
		Short: "Lift a quarantine once the changelog replays cleanly",
		Long: `Re-run the replay check for one mechanism after it was repaired by
hand. The quarantine is lifted only if the changelog now reproduces the
stored version.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				id := args[0]
				if err := s.bank.Reconcile(ctx, id); err != nil {
					return fail(s.out, err)
				}
				return s.out.Emit(map[string]any{"id": id, "reconciled": true}, func(w io.Writer) error {
					fmt.Fprintf(w, "✓ %s reconciled\n", id)
					return nil
				})
			})
		},
	}
}

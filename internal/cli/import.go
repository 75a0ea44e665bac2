package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/mechbank/internal/ingest"
	"github.com/roach88/mechbank/internal/mechanism"
)

// Import item statuses.
const (
	ImportCommitted = "committed"
	ImportRejected  = "rejected" // Failed validation or duplicate id
	ImportUnread    = "unreadable"
)

// ImportItem is the outcome for one document.
type ImportItem struct {
	Path     string                       `json:"path"`
	ID       string                       `json:"id,omitempty"`
	Status   string                       `json:"status"`
	Version  *mechanism.Version           `json:"version,omitempty"`
	Problems *mechanism.ValidationFailure `json:"problems,omitempty"`
	Error    string                       `json:"error,omitempty"`
}

// ImportResult is the structured output of import.
type ImportResult struct {
	Committed int          `json:"committed"`
	Rejected  int          `json:"rejected"`
	Items     []ImportItem `json:"items"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "import <path>...",
		Short: "Propose every mechanism document under the given paths",
		Long: `Propose each document found in the given files and directories.

Documents are proposed in parallel (--workers, default import.workers).
A rejected document does not stop the import; the command exits 1 if any
document was rejected.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				if workers <= 0 {
					workers = s.cfg.Import.Workers
				}
				return runImport(ctx, s, args, workers)
			})
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "parallel proposals (0 = import.workers)")

	return cmd
}

func runImport(ctx context.Context, s *session, paths []string, workers int) error {
	dec, err := ingest.NewDecoder()
	if err != nil {
		return fail(s.out, err)
	}
	docs, err := dec.LoadPaths(paths...)
	if err != nil {
		return failWith(s.out, ErrCodeNotFound, ExitCommandError, err, nil)
	}
	if len(docs) == 0 {
		return failWith(s.out, ErrCodeInput, ExitCommandError, errNoDocuments, nil)
	}
	s.out.VerboseLog("Importing %d document(s) with %d worker(s)", len(docs), workers)

	items := make([]ImportItem, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, doc := range docs {
		g.Go(func() error {
			item, err := importDocument(gctx, s, doc)
			items[i] = item
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fail(s.out, err)
	}

	result := ImportResult{Items: items}
	for _, it := range items {
		if it.Status == ImportCommitted {
			result.Committed++
		} else {
			result.Rejected++
		}
	}
	slog.Info("import finished", "committed", result.Committed, "rejected", result.Rejected)

	if result.Rejected == 0 {
		return s.out.Emit(result, func(w io.Writer) error { return renderImport(w, result) })
	}

	exitErr := NewExitError(ExitFailure, fmt.Sprintf("%d of %d document(s) rejected", result.Rejected, len(items)))
	if s.out.Structured() {
		if err := s.out.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: ErrCodeValidation, Message: exitErr.Message},
		}); err != nil {
			return err
		}
		return exitErr
	}
	if err := renderImport(s.out.Writer, result); err != nil {
		return err
	}
	return exitErr
}

// importDocument proposes one document. Only infrastructure failures are
// returned as errors; they abort the whole import.
func importDocument(ctx context.Context, s *session, doc ingest.Document) (ImportItem, error) {
	item := ImportItem{Path: doc.Path, ID: doc.Record.ID}
	if doc.Err != nil {
		item.Status = ImportUnread
		item.Error = doc.Err.Error()
		return item, nil
	}

	res, err := s.bank.Propose(ctx, doc.Record)
	var vf *mechanism.ValidationFailure
	switch {
	case errors.As(err, &vf):
		item.Status = ImportRejected
		item.Problems = vf
		return item, nil
	case err != nil:
		return item, fmt.Errorf("propose %s: %w", doc.Path, err)
	}

	item.Status = ImportCommitted
	item.ID = res.Record.ID
	v := res.Record.Version
	item.Version = &v
	return item, nil
}

func renderImport(w io.Writer, result ImportResult) error {
	t := newTable(w)
	t.AppendHeader(table.Row{"Document", "ID", "Status", "Detail"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 60}})
	for _, it := range result.Items {
		detail := it.Error
		switch {
		case it.Version != nil:
			detail = "version " + it.Version.String()
		case it.Problems != nil:
			detail = fmt.Sprintf("%d problem(s): %s", it.Problems.Count(), firstProblem(it.Problems))
		}
		t.AppendRow(table.Row{it.Path, it.ID, it.Status, detail})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d committed", result.Committed), fmt.Sprintf("%d rejected", result.Rejected)})
	t.Render()
	return nil
}

func firstProblem(f *mechanism.ValidationFailure) string {
	if len(f.Fields) > 0 {
		fe := f.Fields[0]
		return fe.Code + " " + fe.Field
	}
	if f.Citation != nil && len(f.Citation.Problems) > 0 {
		return mechanism.ErrCodeCitationMalformed + " citation." + f.Citation.Problems[0].Component
	}
	return ""
}

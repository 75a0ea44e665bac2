package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mechbank/internal/mechanism"
	"github.com/roach88/mechbank/internal/query"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <id>",
		Short:         "Show one mechanism, retired or not",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				r, err := s.query.Get(ctx, args[0])
				if err != nil {
					return fail(s.out, err)
				}
				return s.out.Emit(r, func(w io.Writer) error { return renderRecord(w, r) })
			})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var opts query.ListOptions
	var category string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List mechanisms in insertion order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Category = mechanism.Category(category)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				page, err := s.query.List(ctx, opts)
				if err != nil {
					return failWith(s.out, ErrCodeInput, ExitCommandError, err, nil)
				}
				return s.out.Emit(page, func(w io.Writer) error { return renderPage(w, page) })
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only this category")
	cmd.Flags().IntVar(&opts.Skip, "skip", 0, "records to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size (0 = configured default)")
	cmd.Flags().BoolVar(&opts.IncludeRetired, "include-retired", false, "include retired mechanisms")

	return cmd
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	var source, target string

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find mechanisms whose pathway links a source to a target",
		Long: `Search causal pathways. A mechanism matches when a node containing
--from appears before a node containing --to. Either side may be omitted.
Matching ignores case.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if source == "" && target == "" {
				return errors.New("search needs --from, --to or both")
			}
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				records, err := s.query.SearchPathways(ctx, source, target)
				if err != nil {
					return fail(s.out, err)
				}
				return s.out.Emit(records, func(w io.Writer) error {
					if len(records) == 0 {
						fmt.Fprintln(w, "No matching mechanisms")
						return nil
					}
					return renderRecords(w, records, fmt.Sprintf("%d match(es)", len(records)))
				})
			})
		},
	}

	cmd.Flags().StringVar(&source, "from", "", "upstream node (e.g. \"housing\")")
	cmd.Flags().StringVar(&target, "to", "", "downstream node (e.g. \"hypertension\")")

	return cmd
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Summarize live mechanisms by category and evidence grade",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				stats, err := s.query.Stats(ctx)
				if err != nil {
					return fail(s.out, err)
				}
				return s.out.Emit(stats, func(w io.Writer) error { return renderStats(w, stats) })
			})
		},
	}
}

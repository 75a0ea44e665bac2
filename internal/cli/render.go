package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/roach88/mechbank/internal/bank"
	"github.com/roach88/mechbank/internal/mechanism"
	"github.com/roach88/mechbank/internal/query"
)

const dateLayout = "2006-01-02"

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func renderRecord(w io.Writer, r mechanism.Record) error {
	t := newTable(w)
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: 72}})
	t.AppendRows([]table.Row{
		{"id", r.ID},
		{"name", r.Name},
		{"version", r.Version.String()},
		{"category", r.Category},
		{"type", r.MechanismType},
		{"effect", formatEffect(r.EffectSize)},
		{"unit", r.EffectSize.Unit},
		{"evidence", fmt.Sprintf("grade %s, %d studies", r.Evidence.QualityRating, r.Evidence.NStudies)},
		{"citation", r.Evidence.Citation},
		{"description", r.Description},
	})
	if len(r.Assumptions) > 0 {
		t.AppendRow(table.Row{"assumptions", strings.Join(r.Assumptions, "\n")})
	}
	if len(r.Limitations) > 0 {
		t.AppendRow(table.Row{"limitations", strings.Join(r.Limitations, "\n")})
	}
	for _, m := range r.Moderators {
		t.AppendRow(table.Row{"moderator", fmt.Sprintf("%s (%s, %s)", m.Name, m.Direction, m.Strength)})
	}
	reviewed := "no"
	if r.PeerReviewed {
		reviewed = "yes"
	}
	if len(r.ValidatedBy) > 0 {
		reviewed += " (" + strings.Join(r.ValidatedBy, ", ") + ")"
	}
	t.AppendRow(table.Row{"peer reviewed", reviewed})
	t.AppendRow(table.Row{"last updated", r.LastUpdated.Format(dateLayout)})
	if r.Retired {
		t.AppendRow(table.Row{"status", "RETIRED"})
	}
	t.Render()
	return nil
}

func formatEffect(es mechanism.EffectSize) string {
	return fmt.Sprintf("%s %g [%g, %g]", es.Measure, es.PointEstimate, es.Low(), es.High())
}

func renderRecords(w io.Writer, records []mechanism.Record, footer string) error {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Version", "Category", "Grade", "Name"})
	for _, r := range records {
		name := r.Name
		if r.Retired {
			name += " (retired)"
		}
		t.AppendRow(table.Row{r.ID, r.Version.String(), r.Category, r.Evidence.QualityRating, name})
	}
	if footer != "" {
		t.AppendFooter(table.Row{footer})
	}
	t.Render()
	return nil
}

func renderPage(w io.Writer, p query.Page) error {
	footer := fmt.Sprintf("%d of %d", len(p.Items), p.Total)
	if p.Skip > 0 {
		footer = fmt.Sprintf("%d-%d of %d", p.Skip+1, p.Skip+len(p.Items), p.Total)
	}
	return renderRecords(w, p.Items, footer)
}

func renderEntries(w io.Writer, entries []mechanism.ChangelogEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No changelog entries")
		return nil
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Seq", "Mechanism", "From", "To", "Bump", "Timestamp", "Summary"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 7, WidthMax: 60}})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.Seq, e.MechanismID, e.FromVersion.String(), e.ToVersion.String(),
			e.BumpKind, e.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), e.Summary,
		})
	}
	t.Render()
	return nil
}

func renderMutation(w io.Writer, res bank.Result) error {
	if res.Outcome == bank.OutcomeNoOp {
		fmt.Fprintf(w, "No change: %s stays at version %s\n", res.Record.ID, res.Record.Version)
		return nil
	}
	if res.Entry != nil {
		fmt.Fprintf(w, "✓ %s %s -> %s (%s)\n", res.Record.ID, res.Entry.FromVersion, res.Entry.ToVersion, res.Entry.BumpKind)
		fmt.Fprintf(w, "  %s\n", res.Entry.Summary)
	}
	return nil
}

func renderStats(w io.Writer, s query.Stats) error {
	categories := make([]string, 0, len(s.ByCategory))
	for c := range s.ByCategory {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)

	t := newTable(w)
	t.AppendHeader(table.Row{"Category", "Mechanisms", "Weighted evidence"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	for _, c := range categories {
		cat := mechanism.Category(c)
		t.AppendRow(table.Row{c, s.ByCategory[cat], fmt.Sprintf("%.2f", s.Weighted[cat])})
	}
	t.AppendFooter(table.Row{"total", s.Total, ""})
	t.Render()

	grades := newTable(w)
	grades.AppendHeader(table.Row{"Grade", "Mechanisms", "Weight"})
	for _, g := range mechanism.Grades {
		grades.AppendRow(table.Row{g, s.ByGrade[g], fmt.Sprintf("%.2f", s.Weights[g])})
	}
	grades.Render()

	fmt.Fprintf(w, "%d retired\n", s.Retired)
	return nil
}

func renderConsistency(w io.Writer, found []mechanism.ConsistencyError) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Mechanism", "Stored", "Replayed", "Reason"})
	for _, ce := range found {
		t.AppendRow(table.Row{ce.ID, ce.Stored.String(), ce.Replayed.String(), ce.Reason})
	}
	t.Render()
}

func renderValidationFailure(w io.Writer, f *mechanism.ValidationFailure) {
	fmt.Fprintln(w, "✗ Validation failed")
	for _, fe := range f.Fields {
		fmt.Fprintf(w, "  %s %s: %s\n", fe.Code, fe.Field, fe.Message)
	}
	if f.Citation != nil {
		for _, p := range f.Citation.Problems {
			fmt.Fprintf(w, "  %s citation.%s: %s\n", mechanism.ErrCodeCitationMalformed, p.Component, p.Message)
		}
	}
}

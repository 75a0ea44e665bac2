package citation

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/mechbank/internal/mechanism"
)

// Component names reported in CitationProblem.Component.
const (
	ComponentAuthor  = "author"
	ComponentYear    = "year"
	ComponentTitle   = "title"
	ComponentJournal = "journal"
	ComponentVolume  = "volume"
	ComponentPages   = "pages"
	ComponentLocator = "locator"
)

var (
	// ". 2019. " or ". 2019a. " following the author list.
	yearPattern = regexp.MustCompile(`\.\s+(\d{4})[a-z]?\.(?:\s+|$)`)
	// Author list must open with "Last, First".
	authorPattern = regexp.MustCompile(`^\p{Lu}[\p{L}'\-]*(?:\s+[\p{L}'\-]+)*,\s+\p{L}`)
	// "Title." with straight or curly quotes; the title itself ends the sentence.
	titlePattern = regexp.MustCompile(`^\s*"([^"]+?)[.?!]"`)
	// *Journal* in markdown italics.
	journalPattern = regexp.MustCompile(`^\s*\*([^*]+)\*`)
	// Volume with optional (Issue).
	volumePattern = regexp.MustCompile(`^\s*(\d+)(?:\s*\((\d+(?:[-–]\d+)?)\))?`)
	// ": 123-145." or ": e0123."
	pagesPattern = regexp.MustCompile(`^\s*:\s*([A-Za-z]?\d+(?:\s*[-–]\s*[A-Za-z]?\d+)?)\.`)
	// DOI or URL at the end.
	locatorPattern = regexp.MustCompile(`^\s*(?:https?://\S+|doi:\s*10\.\d{4,9}/\S+|10\.\d{4,9}/\S+)\s*$`)
)

var quoteReplacer = strings.NewReplacer("“", `"`, "”", `"`, "„", `"`)

// Check verifies the citation text. It returns nil when the citation is
// well-formed and a *mechanism.CitationError listing every broken component
// otherwise.
func Check(text string) *mechanism.CitationError {
	s := quoteReplacer.Replace(norm.NFC.String(strings.TrimSpace(text)))

	var problems []mechanism.CitationProblem
	report := func(component, message string) {
		problems = append(problems, mechanism.CitationProblem{Component: component, Message: message})
	}

	if s == "" {
		for _, c := range []string{ComponentAuthor, ComponentYear, ComponentTitle, ComponentJournal, ComponentVolume, ComponentPages, ComponentLocator} {
			report(c, "missing")
		}
		return &mechanism.CitationError{Text: text, Problems: problems}
	}

	// Author list and year: the author list is everything before the year.
	rest := s
	if loc := yearPattern.FindStringSubmatchIndex(s); loc != nil {
		if !authorPattern.MatchString(s[:loc[0]]) {
			report(ComponentAuthor, `expected "Last, First" before the year`)
		}
		rest = s[loc[1]:]
	} else {
		report(ComponentYear, `expected ". YYYY." after the author list`)
		// Without a year the title quote is the next anchor.
		if i := strings.Index(s, `"`); i > 0 {
			if !authorPattern.MatchString(s[:i]) {
				report(ComponentAuthor, `expected "Last, First" before the title`)
			}
			rest = s[i:]
		} else if !authorPattern.MatchString(s) {
			report(ComponentAuthor, `expected "Last, First"`)
		}
	}

	rest = consume(rest, titlePattern, ComponentTitle, `expected a quoted title ending in a period, e.g. "Title."`, report)
	rest = consume(rest, journalPattern, ComponentJournal, "expected the journal name in *italics*", report)
	rest = consume(rest, volumePattern, ComponentVolume, "expected a volume number, optionally with (issue)", report)
	rest = consume(rest, pagesPattern, ComponentPages, `expected ": pages." after the volume`, report)

	if !locatorPattern.MatchString(rest) {
		report(ComponentLocator, "expected a DOI or URL at the end")
	}

	if len(problems) == 0 {
		return nil
	}
	return &mechanism.CitationError{Text: text, Problems: problems}
}

// consume matches pattern at the start of s. On a match it returns the
// remainder after the match; otherwise it reports the component and tries to
// resynchronise on the next anchor so later components are still checked.
func consume(s string, pattern *regexp.Regexp, component, message string, report func(string, string)) string {
	if loc := pattern.FindStringIndex(s); loc != nil {
		return s[loc[1]:]
	}
	report(component, message)
	return resync(s, component)
}

// resync skips to where the component after the missing one should begin.
func resync(s, component string) string {
	var anchor string
	switch component {
	case ComponentTitle:
		anchor = "*"
	case ComponentJournal:
		// Volume follows the closing italics marker; fall back to the first digit.
		if i := strings.LastIndex(s, "*"); i >= 0 {
			return s[i+1:]
		}
		if i := strings.IndexAny(s, "0123456789"); i >= 0 {
			return s[i:]
		}
		return s
	case ComponentVolume:
		anchor = ":"
	case ComponentPages:
		// Locator is the last whitespace-separated token.
		if i := strings.LastIndexAny(s, " \t"); i >= 0 {
			return s[i+1:]
		}
		return s
	default:
		return s
	}
	if i := strings.Index(s, anchor); i >= 0 {
		return s[i:]
	}
	return s
}

package mechanism

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Pathway separators accepted in Record.Name, in precedence order.
var pathwaySeparators = []string{"→", "->"}

// Pathway splits the record name into its node labels, e.g.
// "Green space → Physical activity → CVD" yields three nodes.
// Labels are NFC-normalized and trimmed; empty labels are dropped.
func (r Record) Pathway() []string {
	return ParsePathway(r.Name)
}

// ParsePathway splits a pathway string into node labels.
func ParsePathway(name string) []string {
	s := norm.NFC.String(name)
	for _, sep := range pathwaySeparators[1:] {
		s = strings.ReplaceAll(s, sep, pathwaySeparators[0])
	}
	raw := strings.Split(s, pathwaySeparators[0])
	nodes := make([]string, 0, len(raw))
	for _, n := range raw {
		if n = strings.TrimSpace(n); n != "" {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// NodeKey folds a node label for comparison: NFC, lower case, single spaces.
func NodeKey(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(label))), " ")
}

package mechanism

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/unicode/norm"
)

func TestParsePathway(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"arrows", "Green space → Physical activity → CVD", []string{"Green space", "Physical activity", "CVD"}},
		{"ascii", "Housing instability -> Chronic stress -> Hypertension", []string{"Housing instability", "Chronic stress", "Hypertension"}},
		{"mixed", "A -> B → C", []string{"A", "B", "C"}},
		{"empty nodes dropped", "A →  → B", []string{"A", "B"}},
		{"single node", "Green space", []string{"Green space"}},
		{"blank", "  ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePathway(tt.in))
		})
	}
}

func TestParsePathway_NormalizesNFC(t *testing.T) {
	decomposed := norm.NFD.String("Café density → Social cohesion")
	nodes := ParsePathway(decomposed)
	assert.Equal(t, "Café density", nodes[0])
}

func TestNodeKey(t *testing.T) {
	assert.Equal(t, "chronic stress", NodeKey("  Chronic   Stress "))
	assert.Equal(t, NodeKey("Café"), NodeKey(norm.NFD.String("CAFÉ")))
}

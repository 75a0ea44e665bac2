package query

import (
	"context"
	"fmt"

	"github.com/roach88/mechbank/internal/mechanism"
	"github.com/roach88/mechbank/internal/store"
)

// Stats summarizes the live (non-retired) records.
type Stats struct {
	Total      int                            `json:"total"`
	Retired    int                            `json:"retired"`
	ByCategory map[mechanism.Category]int     `json:"by_category"`
	ByGrade    map[mechanism.Grade]int        `json:"by_grade"`
	Weighted   map[mechanism.Category]float64 `json:"weighted_by_category"` // Sum of grade weights
	Weights    map[mechanism.Grade]float64    `json:"grade_weights"`
}

// Stats aggregates counts by category and grade, and the grade-weighted
// evidence total per category.
func (f *Facade) Stats(ctx context.Context) (Stats, error) {
	counts, err := f.store.CountByCategoryAndGrade(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	_, all, err := f.store.ListRecords(ctx, store.ListFilter{IncludeRetired: true, Limit: 1})
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	s := Stats{
		ByCategory: map[mechanism.Category]int{},
		ByGrade:    map[mechanism.Grade]int{},
		Weighted:   map[mechanism.Category]float64{},
		Weights:    make(map[mechanism.Grade]float64, len(f.weights)),
	}
	for g, w := range f.weights {
		s.Weights[g] = w
	}
	for _, c := range counts {
		s.Total += c.Count
		s.ByCategory[c.Category] += c.Count
		s.ByGrade[c.Grade] += c.Count
		s.Weighted[c.Category] += float64(c.Count) * f.weights[c.Grade]
	}
	s.Retired = all - s.Total
	return s, nil
}

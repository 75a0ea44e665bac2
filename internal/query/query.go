package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/mechbank/internal/mechanism"
	"github.com/roach88/mechbank/internal/store"
)

// Paging defaults.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// DefaultGradeWeights is the evidence-grade weight table used by Stats.
var DefaultGradeWeights = map[mechanism.Grade]float64{
	mechanism.GradeA: 1.0,
	mechanism.GradeB: 0.6,
	mechanism.GradeC: 0.3,
}

// Facade answers read queries.
type Facade struct {
	store        *store.Store
	defaultLimit int
	maxLimit     int
	weights      map[mechanism.Grade]float64
}

// Option configures a Facade.
type Option func(*Facade)

// WithLimits overrides the default and maximum page size. Non-positive
// values keep the defaults.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(f *Facade) {
		if maxLimit > 0 {
			f.maxLimit = maxLimit
		}
		if defaultLimit > 0 {
			f.defaultLimit = defaultLimit
		}
		if f.defaultLimit > f.maxLimit {
			f.defaultLimit = f.maxLimit
		}
	}
}

// WithGradeWeights overrides individual grade weights.
func WithGradeWeights(w map[mechanism.Grade]float64) Option {
	return func(f *Facade) {
		for g, v := range w {
			f.weights[g] = v
		}
	}
}

// New creates a Facade over s.
func New(s *store.Store, opts ...Option) *Facade {
	f := &Facade{
		store:        s,
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
		weights:      make(map[mechanism.Grade]float64, len(DefaultGradeWeights)),
	}
	for g, v := range DefaultGradeWeights {
		f.weights[g] = v
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ListOptions filters and pages List.
type ListOptions struct {
	Category       mechanism.Category
	Skip           int
	Limit          int // 0 means the default limit
	IncludeRetired bool
}

// Page is one page of records plus the total number matching the filter.
type Page struct {
	Items []mechanism.Record `json:"items"`
	Total int                `json:"total"`
	Skip  int                `json:"skip"`
	Limit int                `json:"limit"`
}

// List returns records in insertion order. Retired records are hidden
// unless opts.IncludeRetired is set. Limit is clamped to the maximum.
func (f *Facade) List(ctx context.Context, opts ListOptions) (Page, error) {
	if opts.Skip < 0 {
		return Page{}, fmt.Errorf("skip must be >= 0, got %d", opts.Skip)
	}
	if opts.Limit < 0 {
		return Page{}, fmt.Errorf("limit must be >= 0, got %d", opts.Limit)
	}
	limit := opts.Limit
	if limit == 0 {
		limit = f.defaultLimit
	}
	if limit > f.maxLimit {
		limit = f.maxLimit
	}

	items, total, err := f.store.ListRecords(ctx, store.ListFilter{
		Category:       opts.Category,
		IncludeRetired: opts.IncludeRetired,
		Offset:         opts.Skip,
		Limit:          limit,
	})
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total, Skip: opts.Skip, Limit: limit}, nil
}

// Get returns one record, retired included.
// Returns a *mechanism.NotFoundError if the id is unknown.
func (f *Facade) Get(ctx context.Context, id string) (mechanism.Record, error) {
	return f.store.ReadRecord(ctx, id)
}

// SearchPathways returns live records whose pathway passes through a node
// matching source and, later in the pathway, a node matching target.
// Matching is a case-insensitive substring match on normalized labels.
// An empty source or target matches any node.
func (f *Facade) SearchPathways(ctx context.Context, source, target string) ([]mechanism.Record, error) {
	records, _, err := f.store.ListRecords(ctx, store.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("search pathways: %w", err)
	}

	src, dst := mechanism.NodeKey(source), mechanism.NodeKey(target)
	out := []mechanism.Record{}
	for _, r := range records {
		if pathwayMatches(r.Pathway(), src, dst) {
			out = append(out, r)
		}
	}
	return out, nil
}

// pathwayMatches reports whether some node i matches src and some node
// j > i matches dst. With one side empty only the other must match.
func pathwayMatches(nodes []string, src, dst string) bool {
	switch {
	case src == "" && dst == "":
		return true
	case src == "":
		return anyNode(nodes, dst)
	case dst == "":
		return anyNode(nodes, src)
	}
	for i, n := range nodes {
		if !strings.Contains(mechanism.NodeKey(n), src) {
			continue
		}
		if anyNode(nodes[i+1:], dst) {
			return true
		}
	}
	return false
}

func anyNode(nodes []string, key string) bool {
	for _, n := range nodes {
		if strings.Contains(mechanism.NodeKey(n), key) {
			return true
		}
	}
	return false
}

package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mechbank/internal/bank"
	"github.com/roach88/mechbank/internal/mechanism"
	"github.com/roach88/mechbank/internal/store"
	"github.com/roach88/mechbank/internal/testutil"
)

// seedBank stores three live records and one retired one:
//
//	gs-0001 green space (built_environment, A)
//	gs-0002 housing (economic, B)
//	gs-0003 transit (built_environment, C)
//	gs-0004 retired green space copy
func seedBank(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	b := bank.New(s,
		bank.WithClock(testutil.NewStepClock()),
		bank.WithIDGenerator(testutil.NewSequentialIDs("gs")),
	)
	ctx := context.Background()

	transit := testutil.SampleRecord()
	transit.Name = "Transit investment -> Active commuting -> Obesity"
	transit.Evidence.QualityRating = mechanism.GradeC
	transit.Evidence.NStudies = 1

	for _, r := range []mechanism.Record{testutil.SampleRecord(), testutil.HousingRecord(), transit, testutil.SampleRecord()} {
		_, err := b.Propose(ctx, r)
		require.NoError(t, err)
	}
	require.NoError(t, b.Retire(ctx, "gs-0004"))
	return s
}

func ids(records []mechanism.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestList(t *testing.T) {
	f := New(seedBank(t), WithLimits(2, 3))
	ctx := context.Background()

	tests := []struct {
		name      string
		opts      ListOptions
		wantIDs   []string
		wantTotal int
		wantLimit int
	}{
		{"default limit", ListOptions{}, []string{"gs-0001", "gs-0002"}, 3, 2},
		{"second page", ListOptions{Skip: 2}, []string{"gs-0003"}, 3, 2},
		{"limit capped", ListOptions{Limit: 100, IncludeRetired: true}, []string{"gs-0001", "gs-0002", "gs-0003"}, 4, 3},
		{"category", ListOptions{Category: mechanism.CategoryBuiltEnvironment}, []string{"gs-0001", "gs-0003"}, 2, 2},
		{"category with retired", ListOptions{Category: mechanism.CategoryBuiltEnvironment, Skip: 2, IncludeRetired: true}, []string{"gs-0004"}, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.List(ctx, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, ids(page.Items))
			assert.Equal(t, tt.wantTotal, page.Total)
			assert.Equal(t, tt.wantLimit, page.Limit)
			assert.Equal(t, tt.opts.Skip, page.Skip)
		})
	}
}

func TestList_RejectsNegativePaging(t *testing.T) {
	f := New(seedBank(t))

	_, err := f.List(context.Background(), ListOptions{Skip: -1})
	assert.Error(t, err)
	_, err = f.List(context.Background(), ListOptions{Limit: -5})
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	f := New(seedBank(t))
	ctx := context.Background()

	r, err := f.Get(ctx, "gs-0004")
	require.NoError(t, err)
	assert.True(t, r.Retired, "retired records stay readable by id")

	_, err = f.Get(ctx, "nope")
	assert.True(t, mechanism.IsNotFound(err))
}

func TestSearchPathways(t *testing.T) {
	f := New(seedBank(t))
	ctx := context.Background()

	tests := []struct {
		name           string
		source, target string
		want           []string
	}{
		{"both endpoints", "green space", "cardiovascular", []string{"gs-0001"}},
		{"case and spacing folded", "GREEN   SPACE", "CARDIOVASCULAR DISEASE", []string{"gs-0001"}},
		{"intermediate node as source", "chronic stress", "hypertension", []string{"gs-0002"}},
		{"order matters", "cardiovascular", "green space", []string{}},
		{"source only", "housing", "", []string{"gs-0002"}},
		{"target only", "", "obesity", []string{"gs-0003"}},
		{"shared intermediate", "", "activity", []string{"gs-0001"}},
		{"everything", "", "", []string{"gs-0001", "gs-0002", "gs-0003"}},
		{"no match", "tariffs", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.SearchPathways(ctx, tt.source, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestStats(t *testing.T) {
	f := New(seedBank(t))

	s, err := f.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Retired)
	assert.Equal(t, map[mechanism.Category]int{
		mechanism.CategoryBuiltEnvironment: 2,
		mechanism.CategoryEconomic:         1,
	}, s.ByCategory)
	assert.Equal(t, map[mechanism.Grade]int{
		mechanism.GradeA: 1,
		mechanism.GradeB: 1,
		mechanism.GradeC: 1,
	}, s.ByGrade)
	assert.InDelta(t, 1.3, s.Weighted[mechanism.CategoryBuiltEnvironment], 1e-9)
	assert.InDelta(t, 0.6, s.Weighted[mechanism.CategoryEconomic], 1e-9)
}

func TestStats_CustomWeights(t *testing.T) {
	f := New(seedBank(t), WithGradeWeights(map[mechanism.Grade]float64{mechanism.GradeC: 0}))

	s, err := f.Stats(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s.Weighted[mechanism.CategoryBuiltEnvironment], 1e-9)
	assert.Equal(t, 0.6, s.Weights[mechanism.GradeB])
}

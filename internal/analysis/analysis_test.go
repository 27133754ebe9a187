package analysis

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/citegraph/internal/paper"
	"github.com/matsen/citegraph/internal/storage"
)

func TestClusterCount(t *testing.T) {
	tests := []struct {
		papers, want int
	}{
		{3, 2},
		{6, 2},
		{9, 3},
		{24, 8},
		{100, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clusterCount(tt.papers), "papers=%d", tt.papers)
	}
}

func TestKMeans_SeparatesGroups(t *testing.T) {
	ids := []string{"a1", "b1", "a2", "b2", "a3", "b3"}
	points := [][]float32{
		{1, 0}, {0, 1},
		{0.9, 0.1}, {0.1, 0.9},
		{0.95, 0.05}, {0.05, 0.95},
	}

	clusters := kmeans(ids, points, 2)
	require.Len(t, clusters, 2)

	groups := map[string]int{}
	for _, c := range clusters {
		for _, id := range c.PaperIDs {
			groups[id] = c.ID
		}
	}
	assert.Equal(t, groups["a1"], groups["a2"])
	assert.Equal(t, groups["a1"], groups["a3"])
	assert.Equal(t, groups["b1"], groups["b2"])
	assert.Equal(t, groups["b1"], groups["b3"])
	assert.NotEqual(t, groups["a1"], groups["b1"])

	assert.Equal(t, clusters, kmeans(ids, points, 2), "same input clusters the same way")
}

func TestKMeans_DuplicatePointsDropEmptyClusters(t *testing.T) {
	ids := []string{"x", "y", "z"}
	points := [][]float32{{1, 1}, {1, 1}, {1, 1}}

	clusters := kmeans(ids, points, 2)
	require.Len(t, clusters, 1)
	assert.ElementsMatch(t, ids, clusters[0].PaperIDs)
}

func TestComputeMetrics(t *testing.T) {
	papers := []paper.Paper{
		{ID: "p1", Year: 2010, Venue: "Nature"},
		{ID: "p2", Year: 2021, Venue: "Nature"},
		{ID: "p3", Venue: " Science "},
		{ID: "p4", Year: 2022},
	}
	vectors := map[string][]float32{"p1": {0, 0}, "p2": {3, 4}}
	clusters := []Cluster{{ID: 0, PaperIDs: []string{"p1"}}, {ID: 1, PaperIDs: []string{"p2"}}}

	m := computeMetrics(papers, clusters, vectors)

	assert.Equal(t, 4, m.TotalPapers)
	assert.Equal(t, 2, m.Clusters)
	assert.InDelta(t, 2.0, m.Coverage, 1e-9)
	assert.InDelta(t, 1/(5+noveltySmoothing), m.Novelty, 1e-9)
	assert.Equal(t, 3, m.YearsKnown)
	assert.InDelta(t, 2.0/3, m.TrajectoryGrowth, 1e-9)
	assert.Equal(t, 3, m.VenuesKnown)
	assert.InDelta(t, 2.0/3, m.MethodDiversity, 1e-9)
}

func TestComputeMetrics_NoClusters(t *testing.T) {
	m := computeMetrics([]paper.Paper{{ID: "p", Year: 2021}}, nil, nil)
	assert.Equal(t, Metrics{TotalPapers: 1}, m)
}

// quiet holds every metric on the side of its threshold that yields no insight.
var quiet = Metrics{Coverage: 2, Novelty: 0.5, TrajectoryGrowth: 0.3, MethodDiversity: 0.5, YearsKnown: 1, VenuesKnown: 1}

func TestBuildInsights_Thresholds(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Metrics)
		want   []string
	}{
		{"all at threshold", func(*Metrics) {}, nil},
		{"low coverage", func(m *Metrics) { m.Coverage = 1.9 }, []string{MetricCoverage}},
		{"high novelty", func(m *Metrics) { m.Novelty = 0.51 }, []string{MetricNovelty}},
		{"low trajectory", func(m *Metrics) { m.TrajectoryGrowth = 0.29 }, []string{MetricTrajectoryGrowth}},
		{"trajectory without years", func(m *Metrics) { m.TrajectoryGrowth, m.YearsKnown = 0, 0 }, nil},
		{"low diversity", func(m *Metrics) { m.MethodDiversity = 0.49 }, []string{MetricMethodDiversity}},
		{"diversity without venues", func(m *Metrics) { m.MethodDiversity, m.VenuesKnown = 0, 0 }, nil},
		{"all fire, ordered by score", func(m *Metrics) {
			*m = Metrics{Coverage: 1, Novelty: 1, TrajectoryGrowth: 0, MethodDiversity: 0, YearsKnown: 2, VenuesKnown: 2}
		}, []string{MetricCoverage, MetricNovelty, MetricTrajectoryGrowth, MetricMethodDiversity}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := quiet
			tt.modify(&m)

			var got []string
			for _, in := range buildInsights(m) {
				got = append(got, in.Evidence.Metric)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildInsights_Content(t *testing.T) {
	m := quiet
	m.Coverage, m.Clusters = 1.5, 2
	m.TrajectoryGrowth = 0.25

	insights := buildInsights(m)
	require.Len(t, insights, 2)

	assert.Equal(t, 0.8, insights[0].Score)
	assert.Contains(t, insights[0].Text, "only 1.5 papers per research cluster")
	assert.Equal(t, Evidence{Metric: MetricCoverage, Value: 1.5, Clusters: 2}, insights[0].Evidence)

	assert.Equal(t, 0.6, insights[1].Score)
	assert.Contains(t, insights[1].Text, "only 25.0% of papers are from 2020 or later")
	assert.LessOrEqual(t, len(insights), MaxInsights)
}

type fixture struct {
	db     *storage.DB
	collID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "analysis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	coll := &paper.Collection{Title: "gaps"}
	require.NoError(t, db.Update(context.Background(), func(tx *storage.Tx) error {
		return tx.CreateCollection(context.Background(), coll)
	}))
	return &fixture{db: db, collID: coll.ID}
}

// add stores a paper and, for a non-nil vector, its abstract embedding.
func (f *fixture) add(t *testing.T, title string, year int, venue string, vector []float32) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.db.Update(ctx, func(tx *storage.Tx) error {
		p, _, err := tx.CreatePaper(ctx, &paper.Paper{
			CollectionID: f.collID, Title: title, Year: year, Venue: venue, Abstract: title,
			Source: paper.SourceManual, Provenance: paper.ProvenanceUpload,
		})
		if err != nil || vector == nil {
			return err
		}
		_, _, err = tx.CreateChunk(ctx, &paper.Chunk{PaperID: p.ID, Section: paper.SectionAbstract, Text: title}, "m", vector)
		return err
	}))
}

func (f *fixture) run(t *testing.T) (*Report, error) {
	t.Helper()
	var report *Report
	err := f.db.Update(context.Background(), func(tx *storage.Tx) error {
		var err error
		report, err = New(tx, 2).Run(context.Background(), f.collID)
		return err
	})
	return report, err
}

func (f *fixture) stored(t *testing.T) []storage.GapInsight {
	t.Helper()
	var out []storage.GapInsight
	require.NoError(t, f.db.View(context.Background(), func(tx *storage.Tx) error {
		var err error
		out, err = tx.ListGapInsights(context.Background(), f.collID)
		return err
	}))
	return out
}

func TestAnalyzer_Run(t *testing.T) {
	f := newFixture(t)
	f.add(t, "Old one", 2010, "J", []float32{1, 0})
	f.add(t, "Old two", 2012, "J", []float32{0, 1})
	f.add(t, "New one", 2021, "K", []float32{1, 1})

	report, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, 3, report.PapersAnalyzed)
	assert.Len(t, report.Clusters, 2)
	assert.InDelta(t, 1.5, report.Metrics.Coverage, 1e-9)
	assert.Greater(t, report.Metrics.Novelty, highNovelty)
	assert.InDelta(t, 1.0/3, report.Metrics.TrajectoryGrowth, 1e-9)
	assert.InDelta(t, 2.0/3, report.Metrics.MethodDiversity, 1e-9)

	require.Len(t, report.Insights, 2)
	assert.Equal(t, MetricCoverage, report.Insights[0].Evidence.Metric)
	assert.Equal(t, MetricNovelty, report.Insights[1].Evidence.Metric)

	stored := f.stored(t)
	require.Len(t, stored, 2)
	assert.Equal(t, report.Insights[0].Text, stored[0].Insight)
	var ev Evidence
	require.NoError(t, json.Unmarshal(stored[0].Evidence, &ev))
	assert.Equal(t, report.Insights[0].Evidence, ev)
}

func TestAnalyzer_Run_ReplacesStoredInsights(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", 2010, "J", []float32{1, 0})
	f.add(t, "B", 2012, "J", []float32{0, 1})
	f.add(t, "C", 2021, "K", []float32{1, 1})

	_, err := f.run(t)
	require.NoError(t, err)
	_, err = f.run(t)
	require.NoError(t, err)

	assert.Len(t, f.stored(t), 2, "a rerun does not accumulate insights")
}

func TestAnalyzer_Run_TooFewEmbeddedPapers(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", 2010, "J", []float32{1, 0})
	f.add(t, "B", 2011, "J", []float32{0, 1})
	f.add(t, "No embedding", 2012, "J", nil)
	f.add(t, "Failed embedding", 2013, "J", []float32{0, 0})

	report, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, 2, report.PapersAnalyzed)
	assert.Empty(t, report.Insights)
	assert.Empty(t, report.Clusters)
	assert.Empty(t, f.stored(t))
}

func TestAnalyzer_Analyze_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.db.View(ctx, func(tx *storage.Tx) error {
		_, err := New(tx, 2).Analyze(ctx, "missing")
		return err
	})
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)

	err = f.db.View(ctx, func(tx *storage.Tx) error {
		_, err := New(tx, 2).Analyze(ctx, f.collID)
		return err
	})
	assert.ErrorIs(t, err, ErrEmptyCollection)
}

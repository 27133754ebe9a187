package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/matsen/citegraph/internal/paper"
)

const (
	// MaxInsights caps the findings of one analysis.
	MaxInsights = 5
	// RecentYear is the first year counted as recent activity.
	RecentYear = 2020
)

// Insight thresholds and scores.
const (
	lowCoverage      = 2.0
	highNovelty      = 0.5
	lowTrajectory    = 0.3
	lowDiversity     = 0.5
	coverageScore    = 0.8
	noveltyScore     = 0.7
	trajectoryScore  = 0.6
	diversityScore   = 0.5
	noveltySmoothing = 1e-6
)

// Metric names used in insight evidence.
const (
	MetricCoverage         = "coverage"
	MetricNovelty          = "novelty"
	MetricTrajectoryGrowth = "trajectory_growth"
	MetricMethodDiversity  = "method_diversity"
)

// Metrics summarizes a collection for gap detection.
type Metrics struct {
	TotalPapers int `json:"total_papers"`
	Clusters    int `json:"clusters"`
	// Coverage is papers per cluster.
	Coverage float64 `json:"coverage"`
	// Novelty is the inverse of the mean pairwise embedding distance.
	Novelty float64 `json:"novelty"`
	// TrajectoryGrowth is the share of dated papers from RecentYear on.
	TrajectoryGrowth float64 `json:"trajectory_growth"`
	// MethodDiversity is distinct venues over papers with a venue.
	MethodDiversity float64 `json:"method_diversity"`
	YearsKnown      int     `json:"years_known"`
	VenuesKnown     int     `json:"venues_known"`
}

// Evidence records which metric produced an insight.
type Evidence struct {
	Metric   string  `json:"metric"`
	Value    float64 `json:"value"`
	Clusters int     `json:"clusters,omitempty"`
}

// Insight is one scored research-gap finding.
type Insight struct {
	Text     string   `json:"insight"`
	Score    float64  `json:"score"`
	Evidence Evidence `json:"evidence"`
}

// computeMetrics derives the gap metrics from all papers of a collection,
// the clusters of the embedded ones and their vectors.
func computeMetrics(papers []paper.Paper, clusters []Cluster, vectors map[string][]float32) Metrics {
	m := Metrics{TotalPapers: len(papers), Clusters: len(clusters)}
	if len(papers) == 0 || len(clusters) == 0 {
		return m
	}

	m.Coverage = float64(len(papers)) / float64(len(clusters))

	var clustered [][]float32
	for _, c := range clusters {
		for _, id := range c.PaperIDs {
			clustered = append(clustered, vectors[id])
		}
	}
	if mean, ok := meanPairwiseDistance(clustered); ok {
		m.Novelty = 1 / (mean + noveltySmoothing)
	}

	recent := 0
	venues := make(map[string]struct{})
	for _, p := range papers {
		if p.Year != 0 {
			m.YearsKnown++
			if p.Year >= RecentYear {
				recent++
			}
		}
		if v := strings.TrimSpace(p.Venue); v != "" {
			m.VenuesKnown++
			venues[v] = struct{}{}
		}
	}
	if m.YearsKnown > 0 {
		m.TrajectoryGrowth = float64(recent) / float64(m.YearsKnown)
	}
	if m.VenuesKnown > 0 {
		m.MethodDiversity = float64(len(venues)) / float64(m.VenuesKnown)
	}
	return m
}

func meanPairwiseDistance(vectors [][]float32) (float64, bool) {
	var sum float64
	pairs := 0
	for i := range vectors {
		for j := i + 1; j < len(vectors); j++ {
			var sq float64
			for d := range vectors[i] {
				diff := float64(vectors[i][d]) - float64(vectors[j][d])
				sq += diff * diff
			}
			sum += math.Sqrt(sq)
			pairs++
		}
	}
	if pairs == 0 {
		return 0, false
	}
	return sum / float64(pairs), true
}

// buildInsights applies the fixed thresholds to m and returns at most
// MaxInsights findings, highest score first. The year and venue findings
// need at least one paper carrying that field.
func buildInsights(m Metrics) []Insight {
	var out []Insight
	if m.Coverage < lowCoverage {
		out = append(out, Insight{
			Text: fmt.Sprintf("Low coverage detected: only %.1f papers per research cluster. "+
				"Consider expanding literature in underrepresented areas.", m.Coverage),
			Score:    coverageScore,
			Evidence: Evidence{Metric: MetricCoverage, Value: m.Coverage, Clusters: m.Clusters},
		})
	}
	if m.Novelty > highNovelty {
		out = append(out, Insight{
			Text: fmt.Sprintf("High novelty potential detected (score: %.2f). "+
				"Research areas show significant conceptual gaps that could be explored.", m.Novelty),
			Score:    noveltyScore,
			Evidence: Evidence{Metric: MetricNovelty, Value: m.Novelty},
		})
	}
	if m.YearsKnown > 0 && m.TrajectoryGrowth < lowTrajectory {
		out = append(out, Insight{
			Text: fmt.Sprintf("Limited recent research activity: only %.1f%% of papers are from %d or later. "+
				"Recent developments may be underrepresented.", m.TrajectoryGrowth*100, RecentYear),
			Score:    trajectoryScore,
			Evidence: Evidence{Metric: MetricTrajectoryGrowth, Value: m.TrajectoryGrowth},
		})
	}
	if m.VenuesKnown > 0 && m.MethodDiversity < lowDiversity {
		out = append(out, Insight{
			Text: fmt.Sprintf("Low methodological diversity: only %.1f%% unique venues. "+
				"Consider exploring interdisciplinary approaches.", m.MethodDiversity*100),
			Score:    diversityScore,
			Evidence: Evidence{Metric: MetricMethodDiversity, Value: m.MethodDiversity},
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > MaxInsights {
		out = out[:MaxInsights]
	}
	return out
}

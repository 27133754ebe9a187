package analysis

import (
	"math"
	"math/rand/v2"
)

// Clustering defaults.
const (
	maxClusters   = 8
	maxIterations = 100
	clusterSeed   = 42
)

// Cluster is a group of papers with nearby embeddings.
type Cluster struct {
	ID       int       `json:"id"`
	PaperIDs []string  `json:"paper_ids"`
	Centroid []float32 `json:"-"`
}

// clusterCount picks k for n papers: one cluster per three papers, at
// least two and at most maxClusters.
func clusterCount(n int) int {
	return min(max(2, n/3), maxClusters)
}

// kmeans partitions points into at most k clusters with k-means++ seeding
// and Lloyd iterations. The seed is fixed so equal input gives equal
// output. Empty clusters are dropped.
func kmeans(ids []string, points [][]float32, k int) []Cluster {
	n := len(points)
	if n == 0 || k <= 0 {
		return nil
	}
	k = min(k, n)
	rng := rand.New(rand.NewPCG(clusterSeed, clusterSeed))

	centroids := seedCentroids(points, k, rng)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, p := range points {
			best := nearest(p, centroids)
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		centroids = recompute(points, labels, centroids)
	}

	clusters := make([]Cluster, 0, k)
	for c := range centroids {
		var members []string
		for i, l := range labels {
			if l == c {
				members = append(members, ids[i])
			}
		}
		if len(members) > 0 {
			clusters = append(clusters, Cluster{ID: c, PaperIDs: members, Centroid: toFloat32(centroids[c])})
		}
	}
	return clusters
}

// seedCentroids picks k starting centroids, each after the first chosen
// with probability proportional to its squared distance to the nearest
// centroid so far.
func seedCentroids(points [][]float32, k int, rng *rand.Rand) [][]float64 {
	centroids := [][]float64{toFloat64(points[rng.IntN(len(points))])}
	dist := make([]float64, len(points))

	for len(centroids) < k {
		var total float64
		for i, p := range points {
			dist[i] = sqDist(p, centroids[nearest(p, centroids)])
			total += dist[i]
		}
		if total == 0 {
			// Every point sits on a centroid already.
			centroids = append(centroids, toFloat64(points[rng.IntN(len(points))]))
			continue
		}
		target := rng.Float64() * total
		chosen := len(points) - 1
		for i, d := range dist {
			target -= d
			if target <= 0 {
				chosen = i
				break
			}
		}
		centroids = append(centroids, toFloat64(points[chosen]))
	}
	return centroids
}

// recompute moves each centroid to the mean of its members. A centroid
// with no members stays where it was.
func recompute(points [][]float32, labels []int, old [][]float64) [][]float64 {
	dims := len(old[0])
	sums := make([][]float64, len(old))
	counts := make([]int, len(old))
	for c := range sums {
		sums[c] = make([]float64, dims)
	}
	for i, p := range points {
		c := labels[i]
		counts[c]++
		for d, f := range p {
			sums[c][d] += float64(f)
		}
	}
	for c := range sums {
		if counts[c] == 0 {
			sums[c] = old[c]
			continue
		}
		for d := range sums[c] {
			sums[c][d] /= float64(counts[c])
		}
	}
	return sums
}

func nearest(p []float32, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func sqDist(p []float32, c []float64) float64 {
	var sum float64
	for i, f := range p {
		d := float64(f) - c[i]
		sum += d * d
	}
	return sum
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// Package vector provides similarity metrics, vector indices, and the index manager.
package vector

import (
	"fmt"
	"math"
	"strings"
)

// Metric selects how two vectors are compared. Higher scores are always more similar.
type Metric string

const (
	// MetricCosine is dot(a,b)/(|a||b|), in [-1, 1].
	MetricCosine Metric = "cosine"
	// MetricEuclidean is 1/(1+L2 distance), in (0, 1].
	MetricEuclidean Metric = "euclidean"
	// MetricDotProduct is the raw inner product (unbounded).
	MetricDotProduct Metric = "dotProduct"
	// MetricManhattan is 1/(1+L1 distance), in (0, 1].
	MetricManhattan Metric = "manhattan"
)

// ParseMetric parses a metric name. Matching is case-insensitive; "dot_product" and "dot" are accepted.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "":
		return MetricCosine, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	case "dotproduct", "dot_product", "dot", "inner_product":
		return MetricDotProduct, nil
	case "manhattan", "l1":
		return MetricManhattan, nil
	default:
		return "", fmt.Errorf("unknown metric: %s (supported: cosine, euclidean, dotProduct, manhattan)", s)
	}
}

// Calculate returns the similarity of a and b under metric.
// Vectors of different or zero length score 0; it never panics.
func Calculate(a, b []float32, metric Metric) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	switch metric {
	case MetricEuclidean:
		return 1 / (1 + EuclideanDistance(a, b))
	case MetricDotProduct:
		return InnerProduct(a, b)
	case MetricManhattan:
		return 1 / (1 + ManhattanDistance(a, b))
	default:
		return CosineSimilarity(a, b)
	}
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when either norm is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Rounding can push identical vectors marginally past 1.
	return math.Max(-1, math.Min(1, sim))
}

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// EuclideanDistance returns the L2 distance between a and b.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ManhattanDistance returns the L1 distance between a and b.
func ManhattanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

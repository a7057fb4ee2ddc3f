// Package matching resolves a probe descriptor to the nearest enrolled identity.
package matching

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/rollcall/internal/domain/model"
)

// Metric names accepted by MetricByName.
const (
	MetricEuclidean = "euclidean"
	MetricCosine    = "cosine"
)

// maxCosineDistance is returned for zero-norm or mismatched vectors.
const maxCosineDistance = 2.0

// Metric computes a non-negative distance between two descriptors of equal length.
// Distance(a, a) is 0. One deployment uses exactly one metric.
type Metric interface {
	Name() string
	Distance(a, b model.Descriptor) float64
}

type euclidean struct{}

func (euclidean) Name() string { return MetricEuclidean }

func (euclidean) Distance(a, b model.Descriptor) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

type cosine struct{}

func (cosine) Name() string { return MetricCosine }

// Distance is 1 - cosine similarity, in [0, 2].
func (cosine) Distance(a, b model.Descriptor) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return maxCosineDistance
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return maxCosineDistance
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// clamp float drift
	sim = math.Max(-1, math.Min(1, sim))
	d := 1 - sim
	if d < 0 {
		return 0
	}
	return d
}

// Euclidean is the L2 metric used by face-api style embeddings.
var Euclidean Metric = euclidean{}

// Cosine is the angular metric for normalized embeddings.
var Cosine Metric = cosine{}

// MetricByName returns the metric registered under name (case-insensitive).
func MetricByName(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", MetricEuclidean:
		return Euclidean, nil
	case MetricCosine:
		return Cosine, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
}

// Confidence maps a distance to (0, 1]: 1 at distance 0, strictly decreasing.
func Confidence(distance float64) float64 {
	if distance < 0 || math.IsNaN(distance) {
		return 0
	}
	return 1 / (1 + distance)
}

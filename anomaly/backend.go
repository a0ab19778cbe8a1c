package anomaly

import "math"

// BackendCutoff is the fixed normalized-score threshold above which a
// backend flags a point.
const BackendCutoff = 0.7

// Backend is a secondary unsupervised scorer. Score returns one normalized
// score in [0,1] per input point, higher meaning more anomalous, or nil when
// the backend is unavailable (the detector then degrades to zero backend
// flags, never an error).
type Backend interface {
	Score(series []Point) []float64
	Name() string
}

// NoopBackend is the always-unavailable backend, selected when no secondary
// method is configured.
type NoopBackend struct{}

func (NoopBackend) Score([]Point) []float64 { return nil }
func (NoopBackend) Name() string            { return "noop" }

// MADBackend scores points by their absolute deviation from the series
// median, scaled by the median absolute deviation and squashed into [0,1].
type MADBackend struct{}

func (MADBackend) Name() string { return "mad" }

// Score returns normalized deviation scores. A series whose median absolute
// deviation is zero scores everything zero.
func (MADBackend) Score(series []Point) []float64 {
	if len(series) == 0 {
		return nil
	}

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}
	med := median(values)

	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - med)
	}
	mad := median(deviations)

	scores := make([]float64, len(values))
	if mad == 0 {
		return scores
	}
	for i, d := range deviations {
		// 1 - exp(-d/(2*MAD)) maps deviation to [0,1); the 0.7 cutoff
		// falls at roughly 2.4 MADs, past the usual outlier boundary.
		scores[i] = 1 - math.Exp(-d/(2*mad))
	}
	return scores
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Ensure backends implement Backend
var (
	_ Backend = NoopBackend{}
	_ Backend = MADBackend{}
)

package anomaly

import (
	"math"
	"time"
)

// Method names recorded on flagged points.
const (
	MethodZScore  = "zscore"
	MethodBackend = "backend"
)

// Point is one dated observation in a cost series.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Flagged is a point at least one detection method fired on. Methods lists
// the methods that flagged it, in detector order.
type Flagged struct {
	Point
	ZScore  float64  `json:"zscore"`
	Score   float64  `json:"score,omitempty"` // normalized backend score, when present
	Methods []string `json:"methods"`
}

// Config configures a Detector.
type Config struct {
	// ZThreshold is the z-score magnitude at which a point is flagged.
	// Default: 3.0
	ZThreshold float64

	// MinPoints is the minimum series length scored at all. Default: 14
	MinPoints int

	// Method selects which detection methods run: zscore, backend, or
	// both. Default: both
	Method string

	// Backend is the optional secondary scorer. Nil degrades to zero
	// backend flags.
	Backend Backend
}

// Detector flags anomalous points in a dated numeric series.
type Detector struct {
	config Config
}

// NewDetector creates a detector with the given config.
func NewDetector(config Config) *Detector {
	if config.ZThreshold <= 0 {
		config.ZThreshold = 3.0
	}
	if config.MinPoints <= 0 {
		config.MinPoints = 14
	}
	if config.Method == "" {
		config.Method = "both"
	}
	return &Detector{config: config}
}

// Detect scores the series and returns the flagged points in series order.
// A series shorter than the minimum length returns nothing. A point flagged
// by both methods appears once with both methods recorded.
func (d *Detector) Detect(series []Point) []Flagged {
	if len(series) < d.config.MinPoints {
		return nil
	}

	zscores := zScores(series)

	backendScores := map[int]float64{}
	if d.config.Method == "backend" || d.config.Method == "both" {
		backendScores = d.backendScores(series)
	}

	var flagged []Flagged
	for i, point := range series {
		var methods []string
		if d.config.Method == MethodZScore || d.config.Method == "both" {
			if math.Abs(zscores[i]) >= d.config.ZThreshold {
				methods = append(methods, MethodZScore)
			}
		}
		score, scored := backendScores[i]
		if scored && score >= BackendCutoff {
			methods = append(methods, MethodBackend)
		}
		if len(methods) == 0 {
			continue
		}
		flagged = append(flagged, Flagged{
			Point:   point,
			ZScore:  zscores[i],
			Score:   score,
			Methods: methods,
		})
	}
	return flagged
}

func (d *Detector) backendScores(series []Point) map[int]float64 {
	if d.config.Backend == nil {
		return map[int]float64{}
	}
	scores := d.config.Backend.Score(series)
	if scores == nil {
		return map[int]float64{}
	}
	byIndex := make(map[int]float64, len(scores))
	for i, s := range scores {
		if i < len(series) {
			byIndex[i] = s
		}
	}
	return byIndex
}

// zScores computes each point's population z-score. A constant series has
// zero standard deviation and scores everything zero.
func zScores(series []Point) []float64 {
	n := float64(len(series))

	var sum float64
	for _, p := range series {
		sum += p.Value
	}
	mean := sum / n

	var variance float64
	for _, p := range series {
		diff := p.Value - mean
		variance += diff * diff
	}
	stdev := math.Sqrt(variance / n)

	scores := make([]float64, len(series))
	if stdev == 0 {
		return scores
	}
	for i, p := range series {
		scores[i] = (p.Value - mean) / stdev
	}
	return scores
}

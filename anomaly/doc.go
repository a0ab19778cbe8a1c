// Package anomaly flags unusual points in daily cost series.
//
// The primary method is a population z-score test with a configurable
// threshold. An optional secondary Backend contributes flags from normalized
// [0,1] scores against a fixed cutoff, degrading to zero flags when
// unavailable. A point's flags record which methods fired.
package anomaly

// Package billing retrieves and aggregates AWS cost data.
//
// The Analyzer issues management-account queries: cost and usage, daily
// cost series, Cost Anomaly Detection results, purchase recommendations,
// and tag compliance scans. The Aggregator enumerates organization
// accounts, assumes the member role in each, fans out per-account billing
// queries, and merges them into a consolidated summary. Every outbound call
// runs through the shared resilience envelope, results are cached per data
// domain, and per-account failures are logged and skipped rather than
// failing the whole aggregation.
package billing

// Package health runs side-effect-free AWS permission probes and aggregates
// them into an overall readiness status.
//
// Each probe exercises one capability the dashboard depends on (Cost
// Explorer, Organizations, Resource Groups Tagging) with a minimal read-only
// call. Cost Explorer is required; the others degrade gracefully when
// missing.
package health

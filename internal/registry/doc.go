// Package registry implements the Subscription Registry: the authoritative
// set of symbols any consumer cares about, deduplicated by per-symbol
// interest counts. Changes that require wire traffic are published on a
// channel consumed by the Connection Manager.
package registry

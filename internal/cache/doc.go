// Package cache implements the two-tier quote cache.
//
// The in-memory tier is updated synchronously on every inbound quote and
// survives only for the life of the process. The persisted tier (Redis)
// stores each quote with a TTL so fresh consumers can hydrate across short
// process or connection gaps; expired entries read as misses.
package cache

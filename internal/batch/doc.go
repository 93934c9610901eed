// Package batch implements the Update Batcher: it absorbs inbound ticks at
// arbitrary arrival rate and flushes a merged snapshot to consumers on a
// fixed cadence, bounding delivery frequency regardless of market velocity.
package batch

// Package stream provides the per-consumer handle onto the shared feed
// connection. A handle attaches to the process-wide Connection Manager,
// registers symbol interest, and receives rate-limited quote deliveries.
package stream

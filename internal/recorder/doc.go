// Package recorder persists flushed quote batches to PostgreSQL.
//
// The recorder is optional and config-gated. It subscribes to the update
// batcher like any other consumer, transforms quotes to rows, and writes
// them append-only with ON CONFLICT DO NOTHING for dedup on
// (symbol, exchange_ts, trade_id).
package recorder

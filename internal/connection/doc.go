// Package connection implements the shared Connection Manager.
//
// The Connection Manager:
//   - Owns exactly one live WebSocket connection per process
//   - Reference-counts consumer attach/detach; last detach closes cleanly
//   - Resubscribes the full registry set after every (re)connect
//   - Emits an application-level ping on a fixed interval while open
//   - Reconnects after unclean closes with exponential backoff
//   - Dispatches inbound messages to the quote cache and update batcher
package connection

package connection

import (
	"errors"
	"time"

	"github.com/rickgao/quotestream/internal/config"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrNoConsumers   = errors.New("no attached consumers")
)

// State is the connection lifecycle state. Exactly one State value exists
// per process at any instant.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// TimestampedMessage wraps raw message data with a receive timestamp.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// Command is a client-to-server wire message.
type Command struct {
	Action  string   `json:"action"` // "subscribe", "unsubscribe", "ping"
	Symbols []string `json:"symbols,omitempty"`
}

// envelope is used for server message dispatch. Quote updates carry no
// "type" field; they are recognized by the presence of "symbol".
type envelope struct {
	Type    string   `json:"type"`
	Symbol  string   `json:"symbol"`
	Symbols []string `json:"symbols"`
	Message string   `json:"message"`
}

// EventType identifies a connection lifecycle event.
type EventType string

const (
	EventOpened EventType = "opened"
	EventClosed EventType = "closed"
	EventError  EventType = "error"
)

// Event is a typed lifecycle notification delivered to consumers.
type Event struct {
	Type EventType
	Err  error // set for EventError, nil otherwise
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string
	HandshakeTimeout time.Duration // Dial deadline
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Feed               config.FeedConfig // Endpoint the URL is built from
	HeartbeatInterval  time.Duration     // Ping cadence while open
	ReconnectBaseDelay time.Duration     // Backoff floor
	ReconnectMaxDelay  time.Duration     // Cap applied to each scheduled delay
	BackoffFactor      float64           // Growth per failed attempt
	WriteTimeout       time.Duration
	BufferSize         int
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HeartbeatInterval:  30 * time.Second,
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		BackoffFactor:      1.5,
		WriteTimeout:       5 * time.Second,
		BufferSize:         1000,
	}
}

// ManagerConfigFrom builds a ManagerConfig from the loaded stream config.
func ManagerConfigFrom(cfg *config.StreamConfig) ManagerConfig {
	return ManagerConfig{
		Feed:               cfg.Feed,
		HeartbeatInterval:  cfg.Connection.HeartbeatInterval,
		ReconnectBaseDelay: cfg.Connection.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Connection.ReconnectMaxDelay,
		BackoffFactor:      cfg.Connection.BackoffFactor,
		WriteTimeout:       cfg.Connection.WriteTimeout,
		BufferSize:         cfg.Connection.BufferSize,
	}
}

// ManagerStats provides a snapshot of manager state for health reporting.
type ManagerStats struct {
	State              State
	Consumers          int
	ReconnectScheduled bool
}

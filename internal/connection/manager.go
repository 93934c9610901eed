package connection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quotestream/internal/auth"
	"github.com/rickgao/quotestream/internal/batch"
	"github.com/rickgao/quotestream/internal/cache"
	"github.com/rickgao/quotestream/internal/feed"
	"github.com/rickgao/quotestream/internal/model"
	"github.com/rickgao/quotestream/internal/registry"
)

// Manager owns the single live feed connection for the process. Consumers
// share it through Attach/Detach reference counting; the connection is
// dialed lazily on first attach and torn down on last detach.
type Manager struct {
	cfg     ManagerConfig
	tokens  auth.TokenProvider
	reg     *registry.Registry
	cache   *cache.Tiered
	batcher *batch.Batcher
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu                 sync.Mutex
	state              State
	refs               int
	client             Client
	epoch              int64
	epochDone          chan struct{}
	backoff            time.Duration
	reconnectTimer     *time.Timer
	reconnectScheduled bool
	lastErr            error
	lastPongAt         time.Time

	subsMu  sync.Mutex
	subs    map[int64]chan Event
	nextSub int64
}

// NewManager creates a Connection Manager. The connection itself is not
// dialed until the first Attach.
func NewManager(
	cfg ManagerConfig,
	tokens auth.TokenProvider,
	reg *registry.Registry,
	quoteCache *cache.Tiered,
	batcher *batch.Batcher,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:     cfg,
		tokens:  tokens,
		reg:     reg,
		cache:   quoteCache,
		batcher: batcher,
		logger:  logger,
		state:   StateClosed,
		backoff: cfg.ReconnectBaseDelay,
		subs:    make(map[int64]chan Event),
	}
}

// Start begins listening for registry changes. It does not dial.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.changeLoop()

	m.logger.Debug("connection manager started")
	return nil
}

// Stop cancels all work and closes any live connection.
func (m *Manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	m.mu.Lock()
	m.teardownLocked()
	m.refs = 0
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("connection manager stop timed out")
	}

	m.logger.Info("connection manager stopped")
	return nil
}

// Attach registers a consumer with the shared connection, dialing it if no
// connection exists. An existing connection in the connecting or open state
// is joined as-is.
func (m *Manager) Attach() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refs++

	if m.client != nil && (m.state == StateOpen || m.state == StateConnecting) {
		m.logger.Debug("consumer joined shared connection",
			"consumers", m.refs,
			"state", m.state,
		)
		return
	}
	if m.reconnectScheduled {
		// A retry is already pending; the new consumer rides along.
		return
	}

	m.connectLocked()
}

// Detach deregisters a consumer. When the last consumer detaches the
// connection is closed cleanly and no reconnect is scheduled.
func (m *Manager) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refs == 0 {
		m.logger.Warn("detach with no attached consumers")
		return
	}
	m.refs--
	if m.refs > 0 {
		return
	}

	m.logger.Debug("last consumer detached, closing connection")
	m.state = StateClosing
	m.teardownLocked()
}

// Reconnect force-closes the current connection and dials again
// immediately, resetting backoff. No-op when no consumer is attached.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refs == 0 {
		return ErrNoConsumers
	}

	m.teardownLocked()
	m.backoff = m.cfg.ReconnectBaseDelay
	m.connectLocked()
	return nil
}

// Send marshals and writes a command on the live connection. Messages sent
// while the connection is not open are dropped with a warning; queuing for
// pre-open sends is the registry's resubscription concern, not this layer's.
func (m *Manager) Send(cmd Command) {
	m.mu.Lock()
	state := m.state
	client := m.client
	m.mu.Unlock()

	if state != StateOpen || client == nil {
		m.logger.Warn("send while not open, dropping message",
			"action", cmd.Action,
			"state", state,
		)
		return
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		m.logger.Warn("marshal command failed", "action", cmd.Action, "error", err)
		return
	}
	if err := client.Send(data); err != nil {
		m.logger.Warn("send failed", "action", cmd.Action, "error", err)
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the connection is open.
func (m *Manager) IsConnected() bool {
	return m.State() == StateOpen
}

// LastError returns the most recent transport or feed error, cleared on a
// successful open.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Stats returns a snapshot for health reporting.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStats{
		State:              m.state,
		Consumers:          m.refs,
		ReconnectScheduled: m.reconnectScheduled,
	}
}

// SubscribeEvents registers a channel for lifecycle events.
func (m *Manager) SubscribeEvents() (int64, <-chan Event) {
	ch := make(chan Event, 16)

	m.subsMu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = ch
	m.subsMu.Unlock()

	return id, ch
}

// UnsubscribeEvents removes an event channel. Closing happens under the
// same lock that serializes emit, so no send can hit a closed channel.
func (m *Manager) UnsubscribeEvents(id int64) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	if ch, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(ch)
	}
}

// emit fans an event out to subscribers. Sends never block and stay under
// the lock; see UnsubscribeEvents.
func (m *Manager) emit(ev Event) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// connectLocked dials a new connection epoch. Caller holds m.mu.
func (m *Manager) connectLocked() {
	if m.ctx == nil || m.ctx.Err() != nil {
		return
	}

	m.state = StateConnecting
	m.epoch++
	epoch := m.epoch
	m.epochDone = make(chan struct{})
	done := m.epochDone

	url, err := feed.BuildURL(m.ctx, m.cfg.Feed, m.tokens)
	if err != nil {
		// Treated like a failed dial: schedule a retry.
		m.logger.Warn("build feed url failed", "error", err)
		m.lastErr = err
		m.state = StateClosed
		m.scheduleReconnectLocked()
		return
	}

	client := NewClient(ClientConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.BufferSize,
	}, m.logger.With("epoch", epoch))
	m.client = client

	m.wg.Add(1)
	go m.run(epoch, client, done)
}

// run dials and, on success, pumps a single connection epoch.
func (m *Manager) run(epoch int64, client Client, done chan struct{}) {
	defer m.wg.Done()

	if err := client.Connect(m.ctx); err != nil {
		m.logger.Warn("connect failed", "error", err)
		m.handleDisconnect(epoch, err)
		return
	}

	if !m.onOpen(epoch, client) {
		return
	}

	m.wg.Add(1)
	go m.heartbeatLoop(epoch, done)

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-done:
			return
		case err := <-client.Errors():
			m.logger.Warn("connection error", "error", err)
			m.handleDisconnect(epoch, err)
			return
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			m.dispatch(msg.Data)
		}
	}
}

// onOpen transitions to open and resubscribes the full interest set.
// Resubscription is mandatory on every (re)connect: the server keeps no
// subscription state across connections. Returns false if the epoch went
// stale while dialing.
func (m *Manager) onOpen(epoch int64, client Client) bool {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		client.Close()
		return false
	}
	m.state = StateOpen
	m.backoff = m.cfg.ReconnectBaseDelay
	m.lastErr = nil
	m.reconnectScheduled = false
	m.mu.Unlock()

	symbols := m.reg.Symbols()
	if len(symbols) > 0 {
		m.Send(Command{Action: "subscribe", Symbols: symbols})
	}

	m.logger.Info("feed connection open", "symbols", len(symbols))
	m.emit(Event{Type: EventOpened})
	return true
}

// handleDisconnect records an unclean close for the given epoch and
// schedules a reconnect while consumers remain attached.
func (m *Manager) handleDisconnect(epoch int64, err error) {
	m.mu.Lock()
	if epoch != m.epoch {
		// A newer epoch superseded this one; nothing to do.
		m.mu.Unlock()
		return
	}

	m.closeEpochLocked()
	m.state = StateClosed
	if err != nil {
		m.lastErr = err
	}
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	if err != nil {
		m.emit(Event{Type: EventError, Err: err})
	}
	m.emit(Event{Type: EventClosed})
}

// scheduleReconnectLocked arms the backoff timer. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if m.refs == 0 || m.ctx == nil || m.ctx.Err() != nil || m.reconnectScheduled {
		return
	}

	delay := m.backoff
	if delay > m.cfg.ReconnectMaxDelay {
		delay = m.cfg.ReconnectMaxDelay
	}
	m.backoff = nextBackoff(m.backoff, m.cfg.BackoffFactor, m.cfg.ReconnectBaseDelay)

	m.reconnectScheduled = true
	m.reconnectTimer = time.AfterFunc(delay, m.reconnectFired)

	m.logger.Info("reconnect scheduled", "delay", delay)
}

func (m *Manager) reconnectFired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reconnectScheduled = false
	if m.refs == 0 || m.state != StateClosed {
		return
	}
	m.connectLocked()
}

// nextBackoff grows the stored backoff by factor, clamped below at floor.
func nextBackoff(cur time.Duration, factor float64, floor time.Duration) time.Duration {
	next := time.Duration(float64(cur) * factor)
	if next < floor {
		next = floor
	}
	return next
}

// closeEpochLocked stops the current epoch's goroutines and closes the
// transport. Caller holds m.mu.
func (m *Manager) closeEpochLocked() {
	if m.epochDone != nil {
		close(m.epochDone)
		m.epochDone = nil
	}
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	// Invalidate in-flight dials for this epoch.
	m.epoch++
}

// teardownLocked performs a clean shutdown: timers cancelled, transport
// closed, no reconnect. Caller holds m.mu.
func (m *Manager) teardownLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectScheduled = false
	m.closeEpochLocked()
	m.state = StateClosed
	m.backoff = m.cfg.ReconnectBaseDelay
}

// heartbeatLoop emits an application-level ping while the epoch is open.
func (m *Manager) heartbeatLoop(epoch int64, done chan struct{}) {
	defer m.wg.Done()

	interval := m.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultManagerConfig().HeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			m.Send(Command{Action: "ping"})
		}
	}
}

// changeLoop applies registry interest transitions to the wire. Additions
// made while the connection is down are covered by the full resubscribe in
// onOpen, so only the open-state sends happen here.
func (m *Manager) changeLoop() {
	defer m.wg.Done()

	changes := m.reg.Changes()
	for {
		select {
		case <-m.ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			m.applyChange(change)
		}
	}
}

func (m *Manager) applyChange(change registry.Change) {
	switch change.Type {
	case registry.ChangeSubscribe:
		if m.IsConnected() {
			m.Send(Command{Action: "subscribe", Symbols: change.Symbols})
		}
	case registry.ChangeUnsubscribe:
		// Evicted symbols disappear from the consumer-visible view even
		// when the connection is down.
		m.batcher.Evict(change.Symbols)
		if m.IsConnected() {
			m.Send(Command{Action: "unsubscribe", Symbols: change.Symbols})
		}
	}
}

// dispatch parses an inbound message and routes it by its discriminant
// field. Malformed payloads are logged and dropped, never propagated.
func (m *Manager) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		m.logger.Warn("malformed feed message, dropping", "error", err)
		return
	}

	switch env.Type {
	case "subscribed", "unsubscribed":
		m.logger.Debug("subscription acknowledged",
			"type", env.Type,
			"symbols", env.Symbols,
		)

	case "pong":
		// Heartbeat acknowledgment. A missed pong is not treated as a
		// dead connection; see manager docs.
		m.mu.Lock()
		m.lastPongAt = time.Now()
		m.mu.Unlock()

	case "error":
		err := errors.New(env.Message)
		m.logger.Warn("feed reported error", "message", env.Message)
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		m.emit(Event{Type: EventError, Err: err})

	default:
		if env.Symbol == "" {
			m.logger.Debug("skipping message type", "type", env.Type)
			return
		}
		m.handleQuote(data)
	}
}

// handleQuote updates the cache synchronously and hands the tick to the
// batcher for rate-limited delivery.
func (m *Manager) handleQuote(data []byte) {
	var q model.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		m.logger.Warn("malformed quote payload, dropping", "error", err)
		return
	}
	q.Symbol = model.NormalizeSymbol(q.Symbol)
	if q.Symbol == "" {
		return
	}

	m.cache.Put(m.ctx, q)
	m.batcher.Add(q)
}

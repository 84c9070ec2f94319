// Package client is the Go SDK for the Darasa realtime hub: one logical
// connection per authenticated session, credential rotation, presence
// mirroring and room-scoped messaging over a single websocket.
package client

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/chat"
)

type Options struct {
	Transport Transport
	Policy    SendPolicy
	Logger    core.Logger
}

// Manager owns at most one live connection at any time. It is reactive to
// credential changes only: every SetCredential runs exactly one
// teardown-then-optionally-reconnect cycle, and events read from a superseded
// connection never reach the subscriber bus.
type Manager struct {
	transport Transport
	policy    SendPolicy
	logger    core.Logger
	bus       *bus

	mu        sync.Mutex
	writeMu   sync.Mutex // gorilla conns allow one concurrent writer
	gen       int        // bumped on every teardown; stale loops check it and exit
	conn      Conn
	cancel    context.CancelFunc
	connected bool
	rooms     map[string]struct{} // memberships to replay after reconnect
	presence  map[string]struct{} // hub-pushed mirror, authoritative overwrite
	queue     []chat.Envelope     // QueueWhenOffline backlog
}

func NewManager(opts *Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Manager{
		transport: opts.Transport,
		policy:    opts.Policy,
		logger:    logger,
		bus:       newBus(),
		rooms:     make(map[string]struct{}),
		presence:  make(map[string]struct{}),
	}
}

// SetCredential rotates the credential: any live connection is fully closed
// first, then a new one is dialed iff credential is non-empty. An empty
// credential leaves the manager disconnected.
func (m *Manager) SetCredential(credential string) {
	m.mu.Lock()
	m.teardownLocked()
	if credential == "" {
		m.mu.Unlock()
		return
	}
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(ctx, gen, credential)
}

// Disconnect closes any live connection and clears cached presence and room
// state.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	m.rooms = make(map[string]struct{})
	m.queue = nil
	m.mu.Unlock()
}

// teardownLocked invalidates the current generation and closes the live
// connection, if any. Stale read loops notice the generation bump and exit
// without emitting.
func (m *Manager) teardownLocked() {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.connected = false
	m.presence = make(map[string]struct{})
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// On subscribes cb to a named event. Callbacks run in registration order.
// Subscriptions outlive connections: a reconnect re-attaches transparently.
func (m *Manager) On(event string, cb Handler) { m.bus.on(event, cb) }

// Off removes cb for event, or all callbacks for event when cb is omitted.
func (m *Manager) Off(event string, cb ...Handler) { m.bus.off(event, cb...) }

// Presence returns the cached set of online user identifiers, sorted.
func (m *Manager) Presence() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.presence))
	for id := range m.presence {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Join requests membership of roomID. Dropped silently while disconnected;
// once joined, the membership is replayed automatically after a reconnect.
func (m *Manager) Join(roomID string) {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return
	}
	m.rooms[roomID] = struct{}{}
	conn := m.conn
	m.mu.Unlock()

	_ = m.write(conn, newEnvelope(chat.EventConversationJoin, chat.RoomPayload{RoomID: roomID}))
}

// Leave drops membership of roomID, including from the reconnect replay set.
func (m *Manager) Leave(roomID string) {
	m.mu.Lock()
	delete(m.rooms, roomID)
	conn, connected := m.conn, m.connected
	m.mu.Unlock()

	if connected {
		_ = m.write(conn, newEnvelope(chat.EventConversationLeave, chat.RoomPayload{RoomID: roomID}))
	}
}

// Send emits a message into a joined room, fire-and-forget. While
// disconnected the configured SendPolicy applies.
func (m *Manager) Send(p chat.SendPayload) error {
	return m.deliver(newEnvelope(chat.EventMessageSend, p), true)
}

// MarkRead emits a read receipt for the given messages.
func (m *Manager) MarkRead(conversationID string, messageIDs ...string) error {
	p := chat.ReadPayload{ConversationID: conversationID, MessageIDs: messageIDs}
	return m.deliver(newEnvelope(chat.EventMessageRead, p), true)
}

// StartTyping and StopTyping are never queued: a typing signal delivered
// after a reconnect would be stale, dropped beats wrong.
func (m *Manager) StartTyping(roomID string) {
	_ = m.deliver(newEnvelope(chat.EventTypingStart, chat.RoomPayload{RoomID: roomID}), false)
}

func (m *Manager) StopTyping(roomID string) {
	_ = m.deliver(newEnvelope(chat.EventTypingStop, chat.RoomPayload{RoomID: roomID}), false)
}

func (m *Manager) deliver(env chat.Envelope, queueable bool) error {
	m.mu.Lock()
	if m.connected {
		conn := m.conn
		m.mu.Unlock()
		return m.write(conn, env)
	}
	defer m.mu.Unlock()

	switch m.policy {
	case QueueWhenOffline:
		if queueable {
			m.queue = append(m.queue, env)
		}
		return nil
	case ErrWhenOffline:
		return ErrNotConnected
	default: // DropWhenOffline
		return nil
	}
}

// run is the per-credential connection loop: dial, replay memberships, flush
// backlog, pump reads; on a drop, dial again (the transport owns backoff).
// Exits when superseded by a newer generation or the transport gives up.
func (m *Manager) run(ctx context.Context, gen int, credential string) {
	for {
		conn, err := m.transport.Dial(ctx, credential)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn("connect failed: " + err.Error())
				m.emitError(gen, err)
			}
			return
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			_ = conn.Close()
			return
		}
		m.conn = conn
		m.connected = true
		rooms := make([]string, 0, len(m.rooms))
		for roomID := range m.rooms {
			rooms = append(rooms, roomID)
		}
		sort.Strings(rooms)
		backlog := m.queue
		m.queue = nil
		m.mu.Unlock()

		for _, roomID := range rooms {
			_ = m.write(conn, newEnvelope(chat.EventConversationJoin, chat.RoomPayload{RoomID: roomID}))
		}
		for _, env := range backlog {
			_ = m.write(conn, env)
		}

		m.readLoop(conn, gen)

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.connected = false
		m.conn = nil
		m.presence = make(map[string]struct{})
		m.mu.Unlock()
	}
}

func (m *Manager) readLoop(conn Conn, gen int) {
	for {
		var env chat.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}

		m.mu.Lock()
		stale := gen != m.gen
		if !stale {
			m.applyLocked(env)
		}
		m.mu.Unlock()
		if stale {
			return
		}

		m.bus.emit(env.Event, env.Data)
	}
}

// applyLocked maintains the presence mirror. Hub-pushed state is
// authoritative: snapshots overwrite, they never merge.
func (m *Manager) applyLocked(env chat.Envelope) {
	switch env.Event {
	case chat.EventUserOnline:
		var ids []string
		if err := json.Unmarshal(env.Data, &ids); err != nil {
			return
		}
		m.presence = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			m.presence[id] = struct{}{}
		}
	case chat.EventUserOffline:
		var id string
		if err := json.Unmarshal(env.Data, &id); err != nil {
			return
		}
		delete(m.presence, id)
	}
}

func (m *Manager) emitError(gen int, err error) {
	m.mu.Lock()
	stale := gen != m.gen
	m.mu.Unlock()
	if !stale {
		raw, _ := json.Marshal(chat.ErrorPayload{Message: err.Error()})
		m.bus.emit(chat.EventError, raw)
	}
}

func (m *Manager) write(conn Conn, env chat.Envelope) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(env)
}

func newEnvelope(event string, data interface{}) chat.Envelope {
	env, _ := chat.NewEnvelope(event, data) // payload types are ours, cannot fail
	return env
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

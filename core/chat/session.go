package chat

import "github.com/google/uuid"

// Session is one registered realtime connection, mirroring a single browser
// session. The hub owns its room/typing sets; all access to them happens under
// the hub lock. The transport layer drains Outbox into the socket.
type Session struct {
	id   string
	user User
	send chan Envelope

	// hub-owned, guarded by Hub.mu
	rooms  map[string]struct{}
	typing map[string]struct{}
	closed bool
}

func newSession(usr User, buffer int) *Session {
	return &Session{
		id:     uuid.New().String(),
		user:   usr,
		send:   make(chan Envelope, buffer),
		rooms:  make(map[string]struct{}),
		typing: make(map[string]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) User() User { return s.user }

// Outbox delivers hub events destined for this connection, in hub-processing
// order. It is closed when the session is disconnected.
func (s *Session) Outbox() <-chan Envelope { return s.send }

// trySend enqueues without blocking; a false return marks a consumer too slow
// to keep up. Caller must hold the hub lock and have checked s.closed.
func (s *Session) trySend(env Envelope) bool {
	select {
	case s.send <- env:
		return true
	default:
		return false
	}
}

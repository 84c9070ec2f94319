package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/darasahq/darasa/core"
)

// Hub owns the authoritative user->connections and room->connections
// registries and fans events out to the right recipients. A single lock
// guards both registries so a join and a concurrent disconnect of the same
// session linearize.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[*Session]struct{}
	rooms map[string]map[*Session]struct{}

	svc      *Service
	validate *validator.Validate
	logger   core.Logger
	buffer   int
}

func NewHub(svc *Service, validate *validator.Validate, logger core.Logger, conf *core.Config) *Hub {
	buffer := conf.Server.SendBuffer
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{
		users:    make(map[string]map[*Session]struct{}),
		rooms:    make(map[string]map[*Session]struct{}),
		svc:      svc,
		validate: validate,
		logger:   logger,
		buffer:   buffer,
	}
}

// Connect registers a new session for usr and returns it. The new session
// always receives a full user:online snapshot that includes usr itself; if
// this is the user's first connection the snapshot is broadcast to everyone.
func (h *Hub) Connect(usr User) *Session {
	s := newSession(usr, h.buffer)

	h.mu.Lock()
	conns := h.users[usr.ID]
	first := len(conns) == 0
	if conns == nil {
		conns = make(map[*Session]struct{})
		h.users[usr.ID] = conns
	}
	conns[s] = struct{}{}

	env := mustEnvelope(EventUserOnline, h.onlineIDsLocked())
	var dropped []*Session
	if first {
		dropped = h.enqueueAllLocked(env)
	} else {
		s.trySend(env) // fresh buffered outbox, cannot be full
	}
	h.mu.Unlock()

	h.reap(dropped)
	h.logger.Debug(fmt.Sprintf("session %s connected (user %s)", s.id, usr.ID))
	return s
}

// Disconnect atomically tears a session down: stale typing signals are
// stopped, every room membership is dropped, and presence is reevaluated
// exactly once. Safe to call more than once.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	if s.closed {
		h.mu.Unlock()
		return
	}
	s.closed = true

	var dropped []*Session
	for roomID := range s.typing {
		env := mustEnvelope(EventTypingStop, TypingPayload{ConversationID: roomID, UserID: s.user.ID})
		dropped = append(dropped, h.enqueueRoomLocked(roomID, env, s)...)
	}
	for roomID := range s.rooms {
		if members, ok := h.rooms[roomID]; ok {
			delete(members, s)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}

	conns := h.users[s.user.ID]
	delete(conns, s)
	if len(conns) == 0 {
		delete(h.users, s.user.ID)
		env := mustEnvelope(EventUserOffline, s.user.ID)
		dropped = append(dropped, h.enqueueAllLocked(env)...)
	}

	close(s.send)
	h.mu.Unlock()

	h.reap(dropped)
	h.logger.Debug(fmt.Sprintf("session %s disconnected (user %s)", s.id, s.user.ID))
}

// Dispatch routes a client event to its handler. Failures are per-session:
// the offending session gets a scoped error event, nothing else is touched.
func (h *Hub) Dispatch(ctx context.Context, s *Session, env Envelope) {
	switch env.Event {
	case EventConversationJoin:
		h.handleJoin(ctx, s, env.Data)
	case EventConversationLeave:
		h.handleLeave(s, env.Data)
	case EventMessageSend:
		h.handleSend(ctx, s, env.Data)
	case EventMessageRead:
		h.handleRead(ctx, s, env.Data)
	case EventTypingStart:
		h.handleTyping(s, env.Data, true)
	case EventTypingStop:
		h.handleTyping(s, env.Data, false)
	default:
		h.sendError(s, "unknown event: "+env.Event)
	}
}

func (h *Hub) handleJoin(ctx context.Context, s *Session, data json.RawMessage) {
	var p RoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		h.sendError(s, "invalid join payload")
		return
	}

	ok, err := h.svc.IsMember(ctx, p.RoomID, s.user.ID)
	if err != nil {
		h.logger.Error(fmt.Sprintf("join %s: checking membership: %v", p.RoomID, err), err)
		h.sendError(s, "could not join conversation")
		return
	}
	if !ok {
		h.sendError(s, "not a member of this conversation")
		return
	}

	h.mu.Lock()
	if !s.closed {
		members := h.rooms[p.RoomID]
		if members == nil {
			members = make(map[*Session]struct{})
			h.rooms[p.RoomID] = members
		}
		members[s] = struct{}{} // idempotent
		s.rooms[p.RoomID] = struct{}{}
	}
	h.mu.Unlock()
}

func (h *Hub) handleLeave(s *Session, data json.RawMessage) {
	var p RoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		return
	}

	h.mu.Lock()
	if members, ok := h.rooms[p.RoomID]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, p.RoomID)
		}
	}
	delete(s.rooms, p.RoomID)
	delete(s.typing, p.RoomID)
	h.mu.Unlock()
}

func (h *Hub) handleSend(ctx context.Context, s *Session, data json.RawMessage) {
	var p SendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(s, "invalid message payload")
		return
	}
	p.Content = core.CleanString(p.Content)
	if p.Kind == "" {
		p.Kind = KindText
	}
	if err := h.validate.Struct(p); err != nil {
		h.sendError(s, err.Error())
		return
	}
	if !h.inRoom(s, p.RoomID) {
		h.sendError(s, "not a member of this conversation")
		return
	}

	msg, err := h.svc.SaveMessage(ctx, p, s.user)
	if err != nil {
		h.logger.Error(fmt.Sprintf("send to %s: saving message: %v", p.RoomID, err), err, s.user)
		h.sendError(s, "could not send message")
		return
	}

	// fan out to the full member set, the sender's session included:
	// its other devices need the message, and echoing to the origin keeps
	// delivery uniform.
	env := mustEnvelope(EventMessageNew, MessageNewPayload{Message: msg, ConversationID: p.RoomID})
	h.mu.Lock()
	dropped := h.enqueueRoomLocked(p.RoomID, env, nil)
	h.mu.Unlock()
	h.reap(dropped)

	h.svc.NotifyOffline(ctx, msg, h.IsOnline)
}

func (h *Hub) handleRead(ctx context.Context, s *Session, data json.RawMessage) {
	var p ReadPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(s, "invalid read payload")
		return
	}
	if err := h.validate.Struct(p); err != nil {
		h.sendError(s, err.Error())
		return
	}
	if !h.inRoom(s, p.ConversationID) {
		h.sendError(s, "not a member of this conversation")
		return
	}

	if err := h.svc.MarkRead(ctx, p.ConversationID, p.MessageIDs, s.user.ID); err != nil {
		h.logger.Error(fmt.Sprintf("read in %s: %v", p.ConversationID, err), err, s.user)
		h.sendError(s, "could not mark messages read")
		return
	}

	p.UserID = s.user.ID
	env := mustEnvelope(EventMessageRead, p)
	h.mu.Lock()
	dropped := h.enqueueRoomLocked(p.ConversationID, env, s)
	h.mu.Unlock()
	h.reap(dropped)
}

// handleTyping relays typing signals to other room members. Nothing is
// persisted; the hub only remembers active signals per session so it can
// emit the implicit typing:stop on disconnect.
func (h *Hub) handleTyping(s *Session, data json.RawMessage, start bool) {
	var p RoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		return
	}

	event := EventTypingStop
	if start {
		event = EventTypingStart
	}
	env := mustEnvelope(event, TypingPayload{ConversationID: p.RoomID, UserID: s.user.ID})

	h.mu.Lock()
	if _, ok := s.rooms[p.RoomID]; !ok {
		h.mu.Unlock()
		return
	}
	if start {
		s.typing[p.RoomID] = struct{}{}
	} else {
		delete(s.typing, p.RoomID)
	}
	dropped := h.enqueueRoomLocked(p.RoomID, env, s)
	h.mu.Unlock()
	h.reap(dropped)
}

// OnlineUserIDs returns the identifiers of all users with >=1 live session.
func (h *Hub) OnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onlineIDsLocked()
}

// IsOnline reports whether userID has at least one live session.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// RoomMembers returns the distinct user identifiers currently joined to roomID.
func (h *Hub) RoomMembers(roomID string) []string {
	h.mu.RLock()
	seen := make(map[string]struct{})
	for s := range h.rooms[roomID] {
		seen[s.user.ID] = struct{}{}
	}
	h.mu.RUnlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) onlineIDsLocked() []string {
	ids := make([]string, 0, len(h.users))
	for id := range h.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) inRoom(s *Session, roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

// enqueueRoomLocked fans env out to every member of roomID except `except`,
// in one critical section so every member observes the same per-room order.
// Returns sessions whose outbox was full; callers must reap them after
// releasing the lock.
func (h *Hub) enqueueRoomLocked(roomID string, env Envelope, except *Session) (dropped []*Session) {
	for s := range h.rooms[roomID] {
		if s == except || s.closed {
			continue
		}
		if !s.trySend(env) {
			dropped = append(dropped, s)
		}
	}
	return dropped
}

func (h *Hub) enqueueAllLocked(env Envelope) (dropped []*Session) {
	for _, conns := range h.users {
		for s := range conns {
			if s.closed {
				continue
			}
			if !s.trySend(env) {
				dropped = append(dropped, s)
			}
		}
	}
	return dropped
}

func (h *Hub) sendError(s *Session, msg string) {
	env := mustEnvelope(EventError, ErrorPayload{Message: msg})
	h.mu.RLock()
	ok := s.closed || s.trySend(env)
	h.mu.RUnlock()
	if !ok {
		h.Disconnect(s)
	}
}

// reap disconnects sessions that could not keep up with fan-out. Dropping a
// slow consumer beats blocking a whole room behind it.
func (h *Hub) reap(dropped []*Session) {
	for _, s := range dropped {
		h.logger.Warn(fmt.Sprintf("session %s too slow, dropping (user %s)", s.id, s.user.ID))
		h.Disconnect(s)
	}
}

package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/darasahq/darasa/core/chat"
)

// MessageStore is an in-memory chat.MessageStore for tests and DEV mode.
type MessageStore struct {
	mu       sync.Mutex
	messages map[string]chat.Message
}

var _ chat.MessageStore = (*MessageStore)(nil)

func NewMessageStore() *MessageStore {
	return &MessageStore{messages: make(map[string]chat.Message)}
}

func (store *MessageStore) CreateMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.messages[msg.ID] = msg
	return msg, nil
}

func (store *MessageStore) MarkRead(_ context.Context, conversationID string, messageIDs []string, userID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, id := range messageIDs {
		msg, ok := store.messages[id]
		if !ok || msg.ConversationID != conversationID {
			continue
		}
		if contains(msg.ReadBy, userID) {
			continue
		}
		msg.ReadBy = append(append([]string(nil), msg.ReadBy...), userID)
		msg.UpdatedAt = time.Now().UTC()
		store.messages[id] = msg
	}
	return nil
}

func (store *MessageStore) GetMessage(_ context.Context, id string) (chat.Message, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	msg, ok := store.messages[id]
	if !ok {
		return chat.Message{}, chat.ErrMessageNotFound
	}
	return msg, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

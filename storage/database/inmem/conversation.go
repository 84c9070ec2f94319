package inmem

import (
	"context"
	"sync"

	"github.com/darasahq/darasa/core/chat"
)

// ConversationStore is an in-memory chat.ConversationStore for tests and DEV mode.
type ConversationStore struct {
	mu      sync.Mutex
	members map[string][]chat.Member
}

var _ chat.ConversationStore = (*ConversationStore)(nil)

func NewConversationStore() *ConversationStore {
	return &ConversationStore{members: make(map[string][]chat.Member)}
}

// AddConversation seeds a conversation with its members.
func (store *ConversationStore) AddConversation(conversationID string, members ...chat.Member) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.members[conversationID] = append(store.members[conversationID], members...)
}

func (store *ConversationStore) IsMember(_ context.Context, conversationID, userID string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, m := range store.members[conversationID] {
		if m.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (store *ConversationStore) Members(_ context.Context, conversationID string) ([]chat.Member, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	members := store.members[conversationID]
	if members == nil {
		return nil, chat.ErrConversationNotFound
	}
	return append([]chat.Member(nil), members...), nil
}

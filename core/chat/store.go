package chat

import (
	"context"
	"errors"
)

var (
	ErrMessageNotFound      = errors.New("message not found")
	ErrConversationNotFound = errors.New("conversation not found")
)

type (
	// MessageStore persists messages. Persistence is owned by the platform's
	// CRUD side; the realtime layer only reaches it through this interface.
	MessageStore interface {
		CreateMessage(ctx context.Context, msg Message) (Message, error)
		// MarkRead adds userID to the reader set of each given message.
		// Implementations must apply a set union so concurrent calls on
		// disjoint message sets lose no update.
		MarkRead(ctx context.Context, conversationID string, messageIDs []string, userID string) error
		GetMessage(ctx context.Context, id string) (Message, error)
	}

	// ConversationStore answers membership questions for conversations.
	ConversationStore interface {
		IsMember(ctx context.Context, conversationID, userID string) (bool, error)
		Members(ctx context.Context, conversationID string) ([]Member, error)
	}
)

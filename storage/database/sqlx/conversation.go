package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core/chat"
)

type conversationStore struct {
	db *sqlx.DB
}

var _ chat.ConversationStore = (*conversationStore)(nil)

func NewConversationStore(db *sqlx.DB) *conversationStore {
	return &conversationStore{db: db}
}

func (store conversationStore) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	const q = `
SELECT EXISTS (
	SELECT 1 FROM conversation_member
	WHERE conversation_id = $1 AND user_id = $2
)`
	var ok bool
	err := store.db.GetContext(ctx, &ok, q, conversationID, userID)
	return ok, errors.Wrap(err, "querying membership")
}

func (store conversationStore) Members(ctx context.Context, conversationID string) ([]chat.Member, error) {
	const q = `
SELECT u.id, u.name, u.email
FROM conversation_member cm
JOIN app_user u ON u.id = cm.user_id
WHERE cm.conversation_id = $1`

	var rows []struct {
		ID    string      `db:"id"`
		Name  null.String `db:"name"`
		Email null.String `db:"email"`
	}
	if err := store.db.SelectContext(ctx, &rows, q, conversationID); err != nil {
		return nil, errors.Wrap(err, "querying members")
	}

	members := make([]chat.Member, 0, len(rows))
	for _, r := range rows {
		members = append(members, chat.Member{ID: r.ID, Name: r.Name.String, Email: r.Email.String})
	}
	return members, nil
}

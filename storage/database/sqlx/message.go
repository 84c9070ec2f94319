package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core/chat"
)

type messageStore struct {
	db *sqlx.DB
}

var _ chat.MessageStore = (*messageStore)(nil)

func NewMessageStore(db *sqlx.DB) *messageStore {
	return &messageStore{db: db}
}

type messageRow struct {
	ID             string         `db:"id"`
	ConversationID string         `db:"conversation_id"`
	SenderID       string         `db:"sender_id"`
	SenderName     null.String    `db:"sender_name"`
	Content        string         `db:"content"`
	Kind           string         `db:"kind"`
	Attachments    []byte         `db:"attachments"`
	ReadBy         pq.StringArray `db:"read_by"`
	CreatedAt      null.Time      `db:"created_at"`
	UpdatedAt      null.Time      `db:"updated_at"`
}

func (r messageRow) toMessage() (chat.Message, error) {
	msg := chat.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		SenderName:     r.SenderName.String,
		Content:        r.Content,
		Kind:           chat.MessageKind(r.Kind),
		ReadBy:         r.ReadBy,
		CreatedAt:      r.CreatedAt.Time,
		UpdatedAt:      r.UpdatedAt.Time,
	}
	if len(r.Attachments) > 0 {
		if err := json.Unmarshal(r.Attachments, &msg.Attachments); err != nil {
			return chat.Message{}, errors.Wrap(err, "decoding attachments")
		}
	}
	return msg, nil
}

func (store messageStore) CreateMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return chat.Message{}, errors.Wrap(err, "encoding attachments")
	}

	const q = `
INSERT INTO chat_message (id, conversation_id, sender_id, sender_name, content, kind, attachments, read_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = store.db.ExecContext(ctx, q,
		msg.ID, msg.ConversationID, msg.SenderID, null.StringFrom(msg.SenderName),
		msg.Content, string(msg.Kind), attachments, pq.StringArray(msg.ReadBy),
		msg.CreatedAt, msg.UpdatedAt,
	)
	return msg, errors.Wrap(err, "inserting message")
}

// MarkRead unions userID into read_by database-side, so concurrent calls on
// disjoint message sets cannot overwrite each other.
func (store messageStore) MarkRead(ctx context.Context, conversationID string, messageIDs []string, userID string) error {
	const q = `
UPDATE chat_message
SET read_by = (SELECT COALESCE(array_agg(DISTINCT r), '{}') FROM unnest(read_by || $1) AS r),
    updated_at = now()
WHERE conversation_id = $2 AND id = ANY($3)`
	_, err := store.db.ExecContext(ctx, q, pq.StringArray{userID}, conversationID, pq.StringArray(messageIDs))
	return errors.Wrap(err, "updating read state")
}

func (store messageStore) GetMessage(ctx context.Context, id string) (chat.Message, error) {
	const q = `
SELECT id, conversation_id, sender_id, sender_name, content, kind, attachments, read_by, created_at, updated_at
FROM chat_message WHERE id = $1`
	var row messageRow
	if err := store.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return chat.Message{}, chat.ErrMessageNotFound
		}
		return chat.Message{}, errors.Wrap(err, "querying message")
	}
	return row.toMessage()
}

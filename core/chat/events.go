package chat

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Wire event names. One JSON envelope per websocket frame.
const (
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventMessageSend       = "message:send"
	EventMessageNew        = "message:new"
	EventMessageRead       = "message:read"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
	EventUserOnline        = "user:online"
	EventUserOffline       = "user:offline"
	EventError             = "error"
)

// Envelope frames every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an Envelope for the given event.
func NewEnvelope(event string, data interface{}) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "marshalling %s payload", event)
	}
	return Envelope{Event: event, Data: raw}, nil
}

func mustEnvelope(event string, data interface{}) Envelope {
	env, err := NewEnvelope(event, data)
	if err != nil {
		panic(err) // payload types are ours; marshalling them cannot fail
	}
	return env
}

type (
	// RoomPayload is the client->hub payload of conversation:join,
	// conversation:leave, typing:start and typing:stop.
	RoomPayload struct {
		RoomID string `json:"roomId" validate:"required"`
	}

	// SendPayload is the client->hub payload of message:send.
	SendPayload struct {
		RoomID      string       `json:"roomId" validate:"required"`
		Content     string       `json:"content" validate:"required_without=Attachments"`
		Kind        MessageKind  `json:"kind,omitempty" validate:"omitempty,oneof=text image file"`
		Attachments []Attachment `json:"attachments,omitempty"`
	}

	// MessageNewPayload is the hub->client payload of message:new.
	MessageNewPayload struct {
		Message        Message `json:"message"`
		ConversationID string  `json:"conversationId"`
	}

	// ReadPayload travels both ways for message:read; the hub fills UserID on fan-out.
	ReadPayload struct {
		ConversationID string   `json:"conversationId" validate:"required"`
		MessageIDs     []string `json:"messageIds" validate:"required,min=1"`
		UserID         string   `json:"userId,omitempty"`
	}

	// TypingPayload is the hub->client payload of typing:start and typing:stop.
	TypingPayload struct {
		ConversationID string `json:"conversationId"`
		UserID         string `json:"userId"`
	}

	ErrorPayload struct {
		Message string `json:"message"`
	}
)

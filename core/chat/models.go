package chat

import "time"

// MessageKind discriminates message bodies.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindFile  MessageKind = "file"
)

type (
	// User is the authenticated identity attached to a realtime connection.
	// Credential validation happens upstream; by the time a User exists here it is trusted.
	User struct {
		ID        string `json:"id"`
		Username  string `json:"username"`
		Email     string `json:"email,omitempty"`
		IsStudent bool   `json:"is_student,omitempty"`
		IsTeacher bool   `json:"is_teacher,omitempty"`
		IsAdmin   bool   `json:"is_admin,omitempty"`
	}

	Attachment struct {
		Name        string `json:"name"`
		URL         string `json:"url"`
		ContentType string `json:"contentType,omitempty"`
	}

	// Message is a persisted conversation message. The hub transports it;
	// a MessageStore owns it.
	Message struct {
		ID             string       `json:"id"`
		ConversationID string       `json:"conversationId"`
		SenderID       string       `json:"senderId"`
		SenderName     string       `json:"senderName,omitempty"`
		Content        string       `json:"content"`
		Kind           MessageKind  `json:"kind"`
		Attachments    []Attachment `json:"attachments,omitempty"`
		ReadBy         []string     `json:"readBy,omitempty"`
		CreatedAt      time.Time    `json:"createdAt"`
		UpdatedAt      time.Time    `json:"updatedAt"`
	}

	// Member is a conversation participant as known to the conversation store.
	Member struct {
		ID    string
		Name  string
		Email string
	}
)

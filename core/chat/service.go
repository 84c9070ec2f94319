package chat

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
)

// Service coordinates the hub's external collaborators: message persistence,
// conversation membership and offline notification.
type Service struct {
	messages MessageStore
	convs    ConversationStore
	mailSvc  core.EmailService
	logger   core.Logger
	conf     *core.Config
}

func NewService(messages MessageStore, convs ConversationStore, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		messages: messages,
		convs:    convs,
		mailSvc:  mailSvc,
		logger:   logger,
		conf:     conf,
	}
}

func (svc *Service) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	ok, err := svc.convs.IsMember(ctx, conversationID, userID)
	return ok, errors.Wrap(err, "checking conversation membership")
}

// SaveMessage builds and persists a message from a validated send payload.
func (svc *Service) SaveMessage(ctx context.Context, p SendPayload, sender User) (Message, error) {
	now := time.Now().UTC()
	msg := Message{
		ID:             uuid.New().String(),
		ConversationID: p.RoomID,
		SenderID:       sender.ID,
		SenderName:     sender.Username,
		Content:        p.Content,
		Kind:           p.Kind,
		Attachments:    p.Attachments,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	msg, err := svc.messages.CreateMessage(ctx, msg)
	return msg, errors.Wrap(err, "creating message")
}

func (svc *Service) MarkRead(ctx context.Context, conversationID string, messageIDs []string, userID string) error {
	return errors.Wrap(
		svc.messages.MarkRead(ctx, conversationID, messageIDs, userID),
		"marking messages read",
	)
}

// NotifyOffline emails conversation members that have no live connection
// about msg. Best effort: lookup failures are logged and swallowed so a
// notification problem never fails a send.
func (svc *Service) NotifyOffline(ctx context.Context, msg Message, online func(userID string) bool) {
	members, err := svc.convs.Members(ctx, msg.ConversationID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("notifying conversation %s: listing members: %v", msg.ConversationID, err), err)
		return
	}

	var emails []*core.EmailMessage
	for _, m := range members {
		if m.ID == msg.SenderID || m.Email == "" || online(m.ID) {
			continue
		}
		emails = append(emails, &core.EmailMessage{
			To:      []mail.Address{{Name: m.Name, Address: m.Email}},
			Subject: fmt.Sprintf("New message from %s", msg.SenderName),
			Body: fmt.Sprintf(
				"%s sent you a message while you were away.\n\nOpen %s/conversations/%s to read it.",
				msg.SenderName, svc.conf.FrontendBaseURL, msg.ConversationID,
			),
		})
	}
	if len(emails) > 0 {
		svc.mailSvc.SendMessages(emails...)
	}
}

package chat_test

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/darasahq/darasa/core/chat"
	emailsvc "github.com/darasahq/darasa/services/email"
	logsvc "github.com/darasahq/darasa/services/logger"
	"github.com/darasahq/darasa/storage/database/inmem"
)

func newTestService(t *testing.T) (*chat.Service, *inmem.ConversationStore, *inmem.MessageStore) {
	t.Helper()
	conf := testConfig()
	convs := inmem.NewConversationStore()
	messages := inmem.NewMessageStore()
	svc := chat.NewService(messages, convs, emailsvc.NewConsoleServiceMock(conf), logsvc.NewQuietLogger(), conf)
	return svc, convs, messages
}

func TestServiceSaveMessage(t *testing.T) {
	svc, _, messages := newTestService(t)
	ctx := context.Background()

	msg, err := svc.SaveMessage(ctx, chat.SendPayload{RoomID: "r1", Content: "jambo", Kind: chat.KindText}, alice)
	if err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}
	if msg.ID == "" {
		t.Error("message id not assigned")
	}
	if msg.SenderID != alice.ID || msg.SenderName != alice.Username {
		t.Errorf("sender = %s/%s; want %s/%s", msg.SenderID, msg.SenderName, alice.ID, alice.Username)
	}
	if msg.CreatedAt.IsZero() || !msg.CreatedAt.Equal(msg.UpdatedAt) {
		t.Errorf("timestamps = %v/%v", msg.CreatedAt, msg.UpdatedAt)
	}

	if _, err = messages.GetMessage(ctx, msg.ID); err != nil {
		t.Errorf("GetMessage() error = %v", err)
	}
}

func TestServiceMarkReadUnion(t *testing.T) {
	svc, _, messages := newTestService(t)
	ctx := context.Background()

	msg, err := svc.SaveMessage(ctx, chat.SendPayload{RoomID: "r1", Content: "x", Kind: chat.KindText}, alice)
	if err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	// repeated marks by the same reader stay a set, distinct readers accrue
	for _, userID := range []string{bob.ID, bob.ID, carol.ID} {
		if err = svc.MarkRead(ctx, "r1", []string{msg.ID}, userID); err != nil {
			t.Fatalf("MarkRead(%s) error = %v", userID, err)
		}
	}

	stored, err := messages.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	got := append([]string(nil), stored.ReadBy...)
	sort.Strings(got)
	if want := []string{bob.ID, carol.ID}; !reflect.DeepEqual(got, want) {
		t.Errorf("readBy = %v; want %v", got, want)
	}
}

func TestServiceMarkReadScopedToConversation(t *testing.T) {
	svc, _, messages := newTestService(t)
	ctx := context.Background()

	msg, err := svc.SaveMessage(ctx, chat.SendPayload{RoomID: "r1", Content: "x", Kind: chat.KindText}, alice)
	if err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	// a receipt addressed to the wrong conversation must not touch the message
	if err = svc.MarkRead(ctx, "r2", []string{msg.ID}, bob.ID); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	stored, _ := messages.GetMessage(ctx, msg.ID)
	if len(stored.ReadBy) != 0 {
		t.Errorf("readBy = %v; want empty", stored.ReadBy)
	}
}

func TestServiceNotifyOffline(t *testing.T) {
	svc, convs, _ := newTestService(t)
	emailsvc.ResetSentMessages()
	defer emailsvc.ResetSentMessages()

	noEmail := chat.Member{ID: "u-ghost", Name: "ghost"}
	convs.AddConversation("r1", member(alice), member(bob), member(carol), noEmail)

	msg := chat.Message{
		ID:             "m1",
		ConversationID: "r1",
		SenderID:       alice.ID,
		SenderName:     alice.Username,
		Content:        "habari",
	}
	online := func(userID string) bool { return userID == carol.ID }
	svc.NotifyOffline(context.Background(), msg, online)

	// only bob qualifies: alice sent it, carol is online, ghost has no address
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("sent %d emails; want 1", len(emailsvc.SentMessages))
	}
	sent := emailsvc.SentMessages[0]
	if len(sent.To) != 1 || sent.To[0].Address != bob.Email {
		t.Errorf("recipient = %v; want %s", sent.To, bob.Email)
	}
	if !strings.Contains(sent.Subject, alice.Username) {
		t.Errorf("subject = %q; want sender name in it", sent.Subject)
	}
	if !strings.Contains(sent.Body, "/conversations/r1") {
		t.Errorf("body = %q; want a conversation link", sent.Body)
	}
}

func TestServiceNotifyOfflineUnknownConversation(t *testing.T) {
	svc, _, _ := newTestService(t)
	emailsvc.ResetSentMessages()
	defer emailsvc.ResetSentMessages()

	// a lookup failure is swallowed, nothing goes out
	svc.NotifyOffline(context.Background(), chat.Message{ConversationID: "nope"}, func(string) bool { return false })
	if len(emailsvc.SentMessages) != 0 {
		t.Errorf("sent %d emails; want 0", len(emailsvc.SentMessages))
	}
}

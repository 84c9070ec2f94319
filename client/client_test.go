package client

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/darasahq/darasa/core/chat"
)

// fakeConn is an in-memory Conn: the test plays the hub side by pushing
// envelopes into in and draining client writes from out.
type fakeConn struct {
	in     chan chat.Envelope
	out    chan chat.Envelope
	closed chan struct{}
	once   sync.Once

	// when set, Close does not unblock ReadJSON; lets a test hold a read
	// loop hostage across a teardown
	ignoreClose bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan chat.Envelope, 16),
		out:    make(chan chat.Envelope, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadJSON(v interface{}) error {
	if c.ignoreClose {
		env := <-c.in
		*v.(*chat.Envelope) = env
		return nil
	}
	select {
	case env := <-c.in:
		*v.(*chat.Envelope) = env
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.out <- v.(chat.Envelope)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// push sends a hub-side envelope to the client.
func (c *fakeConn) push(t *testing.T, event string, data interface{}) {
	t.Helper()
	env, err := chat.NewEnvelope(event, data)
	if err != nil {
		t.Fatalf("building %s envelope: %v", event, err)
	}
	c.in <- env
}

// fakeTransport hands out pre-queued conns and records dial attempts.
type fakeTransport struct {
	mu    sync.Mutex
	conns chan *fakeConn
	dials []string
}

func newFakeTransport(conns ...*fakeConn) *fakeTransport {
	t := &fakeTransport{conns: make(chan *fakeConn, 8)}
	for _, c := range conns {
		t.conns <- c
	}
	return t
}

func (t *fakeTransport) Dial(ctx context.Context, credential string) (Conn, error) {
	t.mu.Lock()
	t.dials = append(t.dials, credential)
	t.mu.Unlock()

	if credential == "bad-credential" {
		return nil, ErrUnauthorized
	}
	select {
	case c := <-t.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dials)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func recvFrame(t *testing.T, c *fakeConn, event string) chat.Envelope {
	t.Helper()
	select {
	case env := <-c.out:
		if env.Event != event {
			t.Fatalf("got %s frame; want %s", env.Event, event)
		}
		return env
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s frame", event)
	}
	return chat.Envelope{}
}

func assertNoFrame(t *testing.T, c *fakeConn) {
	t.Helper()
	select {
	case env := <-c.out:
		t.Fatalf("unexpected %s frame", env.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManagerConnectAndRejoin(t *testing.T) {
	c1, c2 := newFakeConn(), newFakeConn()
	m := NewManager(&Options{Transport: newFakeTransport(c1, c2)})
	defer m.Disconnect()

	m.SetCredential("credential-1")
	waitFor(t, "connect", m.IsConnected)

	m.Join("r1")
	var p chat.RoomPayload
	mustDecode(t, recvFrame(t, c1, chat.EventConversationJoin).Data, &p)
	if p.RoomID != "r1" {
		t.Errorf("joined %q; want r1", p.RoomID)
	}

	// connection drops: the manager redials and replays the membership
	c1.Close()
	mustDecode(t, recvFrame(t, c2, chat.EventConversationJoin).Data, &p)
	if p.RoomID != "r1" {
		t.Errorf("replayed %q; want r1", p.RoomID)
	}
	waitFor(t, "reconnect", m.IsConnected)
}

func TestManagerLeaveRemovesReplay(t *testing.T) {
	c1, c2 := newFakeConn(), newFakeConn()
	m := NewManager(&Options{Transport: newFakeTransport(c1, c2)})
	defer m.Disconnect()

	m.SetCredential("credential-1")
	waitFor(t, "connect", m.IsConnected)

	m.Join("r1")
	m.Join("r2")
	m.Leave("r1")
	recvFrame(t, c1, chat.EventConversationJoin)
	recvFrame(t, c1, chat.EventConversationJoin)
	recvFrame(t, c1, chat.EventConversationLeave)

	c1.Close()
	var p chat.RoomPayload
	mustDecode(t, recvFrame(t, c2, chat.EventConversationJoin).Data, &p)
	if p.RoomID != "r2" {
		t.Errorf("replayed %q; want r2", p.RoomID)
	}
	assertNoFrame(t, c2)
}

func TestManagerBusSurvivesReconnect(t *testing.T) {
	c1, c2 := newFakeConn(), newFakeConn()
	m := NewManager(&Options{Transport: newFakeTransport(c1, c2)})
	defer m.Disconnect()

	received := make(chan string, 4)
	m.On(chat.EventMessageNew, func(data json.RawMessage) {
		var p chat.MessageNewPayload
		_ = json.Unmarshal(data, &p)
		received <- p.Message.Content
	})

	m.SetCredential("credential-1")
	waitFor(t, "connect", m.IsConnected)

	c1.push(t, chat.EventMessageNew, chat.MessageNewPayload{
		Message: chat.Message{Content: "before drop"}, ConversationID: "r1",
	})
	if got := <-received; got != "before drop" {
		t.Fatalf("got %q; want %q", got, "before drop")
	}

	c1.Close()
	waitFor(t, "reconnect", m.IsConnected)

	// no re-registration needed after the reconnect
	c2.push(t, chat.EventMessageNew, chat.MessageNewPayload{
		Message: chat.Message{Content: "after drop"}, ConversationID: "r1",
	})
	if got := <-received; got != "after drop" {
		t.Fatalf("got %q; want %q", got, "after drop")
	}
}

func TestManagerStaleConnectionNeverEmits(t *testing.T) {
	c1 := newFakeConn()
	c1.ignoreClose = true
	m := NewManager(&Options{Transport: newFakeTransport(c1)})

	fired := make(chan struct{}, 1)
	m.On(chat.EventMessageNew, func(json.RawMessage) { fired <- struct{}{} })

	m.SetCredential("credential-1")
	waitFor(t, "connect", m.IsConnected)

	// the read loop is parked on c1; invalidate the connection, then let a
	// late event arrive on it
	m.Disconnect()
	c1.push(t, chat.EventMessageNew, chat.MessageNewPayload{ConversationID: "r1"})

	select {
	case <-fired:
		t.Fatal("event from a superseded connection reached the bus")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestManagerSendPolicies(t *testing.T) {
	payload := chat.SendPayload{RoomID: "r1", Content: "hello"}

	t.Run("drop when offline", func(t *testing.T) {
		c := newFakeConn()
		m := NewManager(&Options{Transport: newFakeTransport(c), Policy: DropWhenOffline})
		defer m.Disconnect()

		if err := m.Send(payload); err != nil {
			t.Fatalf("Send() error = %v; want nil", err)
		}
		m.SetCredential("credential-1")
		waitFor(t, "connect", m.IsConnected)
		assertNoFrame(t, c)
	})

	t.Run("err when offline", func(t *testing.T) {
		m := NewManager(&Options{Transport: newFakeTransport(), Policy: ErrWhenOffline})
		if err := m.Send(payload); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("Send() error = %v; want ErrNotConnected", err)
		}
		if err := m.MarkRead("r1", "m1"); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("MarkRead() error = %v; want ErrNotConnected", err)
		}
	})

	t.Run("queue when offline", func(t *testing.T) {
		c := newFakeConn()
		m := NewManager(&Options{Transport: newFakeTransport(c), Policy: QueueWhenOffline})
		defer m.Disconnect()

		if err := m.Send(payload); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if err := m.MarkRead("r1", "m1"); err != nil {
			t.Fatalf("MarkRead() error = %v", err)
		}
		m.StartTyping("r1") // typing is never queued

		m.SetCredential("credential-1")
		waitFor(t, "connect", m.IsConnected)

		// backlog flushes FIFO, no typing frame among it
		var p chat.SendPayload
		mustDecode(t, recvFrame(t, c, chat.EventMessageSend).Data, &p)
		if p.Content != "hello" {
			t.Errorf("flushed content = %q; want hello", p.Content)
		}
		recvFrame(t, c, chat.EventMessageRead)
		assertNoFrame(t, c)
	})
}

func TestManagerPresenceMirror(t *testing.T) {
	c := newFakeConn()
	m := NewManager(&Options{Transport: newFakeTransport(c)})
	defer m.Disconnect()

	m.SetCredential("credential-1")
	waitFor(t, "connect", m.IsConnected)

	c.push(t, chat.EventUserOnline, []string{"u-b", "u-a"})
	waitFor(t, "snapshot", func() bool {
		return reflect.DeepEqual(m.Presence(), []string{"u-a", "u-b"})
	})

	c.push(t, chat.EventUserOffline, "u-a")
	waitFor(t, "offline delta", func() bool {
		return reflect.DeepEqual(m.Presence(), []string{"u-b"})
	})

	// a fresh snapshot replaces the mirror, it never merges
	c.push(t, chat.EventUserOnline, []string{"u-c"})
	waitFor(t, "replacement snapshot", func() bool {
		return reflect.DeepEqual(m.Presence(), []string{"u-c"})
	})

	m.Disconnect()
	if got := m.Presence(); len(got) != 0 {
		t.Errorf("Presence() after disconnect = %v; want empty", got)
	}
}

func TestManagerCredentialRotation(t *testing.T) {
	tr := newFakeTransport()
	m := NewManager(&Options{Transport: tr})
	defer m.Disconnect()

	// empty credential: stay put, no dial
	m.SetCredential("")
	time.Sleep(50 * time.Millisecond)
	if m.IsConnected() {
		t.Fatal("connected with an empty credential")
	}
	if n := tr.dialCount(); n != 0 {
		t.Fatalf("dials = %d; want 0", n)
	}

	// rejected credential: one dial, an error event, no retry loop
	errs := make(chan string, 1)
	m.On(chat.EventError, func(data json.RawMessage) {
		var p chat.ErrorPayload
		_ = json.Unmarshal(data, &p)
		errs <- p.Message
	})
	m.SetCredential("bad-credential")
	select {
	case <-errs:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the error event")
	}
	if m.IsConnected() {
		t.Fatal("connected with a rejected credential")
	}
	if n := tr.dialCount(); n != 1 {
		t.Fatalf("dials = %d; want 1", n)
	}
}

func mustDecode(t *testing.T, data json.RawMessage, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
}

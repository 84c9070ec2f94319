package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ErrUnauthorized marks a credential the hub rejected. Terminal until the
// credential changes; the transport must not keep retrying with it.
var ErrUnauthorized = errors.New("credential rejected")

type (
	// Conn is one live bidirectional connection. *websocket.Conn satisfies it.
	Conn interface {
		ReadJSON(v interface{}) error
		WriteJSON(v interface{}) error
		Close() error
	}

	// Transport establishes connections. Retry and backoff for transient
	// failures live here, not in the Manager: Dial blocks until the hub
	// accepts, the credential is rejected, or ctx is cancelled.
	Transport interface {
		Dial(ctx context.Context, credential string) (Conn, error)
	}
)

// WebsocketTransport dials a hub websocket endpoint with exponential backoff.
type WebsocketTransport struct {
	URL        string
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

var _ Transport = (*WebsocketTransport)(nil)

func NewWebsocketTransport(url string) *WebsocketTransport {
	return &WebsocketTransport{
		URL:        url,
		Dialer:     websocket.DefaultDialer,
		MinBackoff: 250 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
	}
}

func (t *WebsocketTransport) Dial(ctx context.Context, credential string) (Conn, error) {
	header := http.Header{"Authorization": {"Bearer " + credential}}
	backoff := t.MinBackoff

	for {
		conn, resp, err := t.Dialer.DialContext(ctx, t.URL, header)
		if err == nil {
			return conn, nil
		}
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > t.MaxBackoff {
			backoff = t.MaxBackoff
		}
	}
}

package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // browsers send the credential, not cookies; origin adds nothing here
	},
}

func registerChatAPI(app *echo.Echo, deps ServerDeps) {
	app.GET("/ws", wsHandler(deps))
}

// wsHandler authenticates the upgrade request, registers the session with the
// hub and runs the read/write pumps until the connection dies. The credential
// is presented exactly once, at connect time; invalid ones are rejected
// before any presence is registered.
func wsHandler(deps ServerDeps) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := ValidateCredential(credentialFromRequest(ctx.Request()), deps.Conf)
		if err != nil {
			return err
		}

		conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
		if err != nil {
			return err // Upgrade already replied
		}

		sess := deps.Hub.Connect(claims.User())
		go writePump(conn, sess, deps)
		readPump(ctx, conn, sess, deps)
		return nil
	}
}

// credentialFromRequest reads the bearer token, falling back to the `token`
// query param for browser websocket clients that cannot set headers.
func credentialFromRequest(r *http.Request) string {
	if auth := r.Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// readPump relays client events into the hub. It owns the session teardown:
// whatever kills the read side (client close, network drop, slow-consumer
// reap) ends with exactly one hub disconnect.
func readPump(ctx echo.Context, conn *websocket.Conn, sess *chat.Session, deps ServerDeps) {
	defer func() {
		deps.Hub.Disconnect(sess)
		_ = conn.Close()
	}()

	pongTimeout := pongTimeoutOrDefault(deps.Conf)
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		var env chat.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				deps.Logger.Debug("websocket read: " + err.Error())
			}
			return
		}
		deps.Hub.Dispatch(ctx.Request().Context(), sess, env)
	}
}

// writePump drains the session outbox into the socket and keeps the
// connection alive with pings. Exits when the hub closes the outbox or a
// write fails; the read side notices and finishes the teardown.
func writePump(conn *websocket.Conn, sess *chat.Session, deps ServerDeps) {
	writeTimeout := writeTimeoutOrDefault(deps.Conf)
	ticker := time.NewTicker(pingIntervalOrDefault(deps.Conf))
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case env, ok := <-sess.Outbox():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeTimeoutOrDefault(conf *core.Config) time.Duration {
	if conf.Server.WriteTimeout > 0 {
		return conf.Server.WriteTimeout
	}
	return 10 * time.Second
}

func pingIntervalOrDefault(conf *core.Config) time.Duration {
	if conf.Server.PingInterval > 0 {
		return conf.Server.PingInterval
	}
	return 54 * time.Second
}

func pongTimeoutOrDefault(conf *core.Config) time.Duration {
	if conf.Server.PongTimeout > 0 {
		return conf.Server.PongTimeout
	}
	return 60 * time.Second
}

package realtime

import (
	"context"

	gorillawebsocket "github.com/gorilla/websocket"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn against a fully formed endpoint URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// gorillaDialer is the production Dialer.
type gorillaDialer struct{}

func (gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := gorillawebsocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &gorillaConnAdapter{conn}, nil
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy the Conn interface.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}

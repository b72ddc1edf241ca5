package client

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Dialer returns the default WebSocket transport for a session URL.
func Dialer(url string) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return &gorillaConn{c: c}, nil
	}
}

type gorillaConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (g *gorillaConn) ReadMessage() ([]byte, error) {
	_, data, err := g.c.ReadMessage()
	return data, err
}

func (g *gorillaConn) WriteMessage(data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return g.c.WriteMessage(websocket.TextMessage, data)
}

func (g *gorillaConn) Close() error { return g.c.Close() }

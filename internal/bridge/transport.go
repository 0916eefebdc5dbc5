package bridge

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport carries JSON frames to and from one browser.
// *websocket.Conn satisfies it.
type Transport interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// WSTransport adds deadlines and keepalive pings to a websocket connection.
type WSTransport struct {
	c    *websocket.Conn
	mu   sync.Mutex
	stop chan struct{}
	once sync.Once
}

func NewWSTransport(c *websocket.Conn) *WSTransport {
	t := &WSTransport{c: c, stop: make(chan struct{})}
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})
	go t.pinger()
	return t
}

func (t *WSTransport) pinger() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			err := t.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			t.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (t *WSTransport) ReadJSON(v any) error {
	if err := t.c.ReadJSON(v); err != nil {
		return err
	}
	return t.c.SetReadDeadline(time.Now().Add(pongWait))
}

func (t *WSTransport) WriteJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.c.SetWriteDeadline(time.Now().Add(writeWait))
	return t.c.WriteJSON(v)
}

func (t *WSTransport) Close() error {
	t.once.Do(func() { close(t.stop) })
	t.mu.Lock()
	_ = t.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	t.mu.Unlock()
	return t.c.Close()
}

package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// Conn wraps a WebSocket connection as a registry session. gorilla/websocket
// allows only one concurrent writer, so every write goes through the mutex.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	closers sync.Once
}

func newConn(wsc *websocket.Conn) *Conn {
	return &Conn{ws: wsc}
}

// Deliver pushes one event to the client.
func (c *Conn) Deliver(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// Close tears down the transport. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closers.Do(func() {
		err = c.ws.Close()
	})
	return err
}

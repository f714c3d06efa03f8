// internal/realtime/conn.go
package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/markb/linglite/internal/log"
)

const (
	// Send buffer size for outbound messages
	sendBufferSize = 256

	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message
	pongWait = 30 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = 25 * time.Second

	// Maximum inbound message size; SDP offers stay well under this
	maxMessageSize = 64 * 1024
)

// Conn adapts a WebSocket to the Sender interface and feeds inbound frames
// to the dispatcher. One logical task per connection: the read pump
// processes events in arrival order, the write pump drains the send queue.
type Conn struct {
	id         string
	ws         *websocket.Conn
	dispatcher *Dispatcher
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

// newConn registers a connection for the given socket and returns it with
// its pumps not yet started.
func newConn(ws *websocket.Conn, d *Dispatcher, expectedUserID string) *Conn {
	c := &Conn{
		ws:         ws,
		dispatcher: d,
		send:       make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
	}
	c.id = d.Connect(c, expectedUserID)
	return c
}

// ID returns the connection id.
func (c *Conn) ID() string {
	return c.id
}

// Send queues a message for delivery. A full buffer drops the message
// rather than blocking a state mutation on a slow client.
func (c *Conn) Send(msg *Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return nil // connection closed
	default:
		log.Warn("realtime: send buffer full, dropping message", "conn_id", c.id)
		return nil
	}
}

// Close closes the socket. Cleanup of registry, presence, rooms and calls
// happens in the read pump's exit path so it runs exactly once, whether the
// close came from the client or from a failed write.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// ReadPump reads events from the socket and hands them to the dispatcher
// in arrival order. On exit the connection is fully unwound.
func (c *Conn) ReadPump() {
	defer func() {
		c.Close()
		c.dispatcher.Disconnect(c.id)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug("realtime: read error", "conn_id", c.id, "error", err.Error())
			}
			return
		}
		c.dispatcher.Handle(c.id, data)
	}
}

// WritePump writes queued messages to the socket and keeps the connection
// alive with pings.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"shopme/internal/app/presence"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = int64(4 << 10)
	sendBuffer     = 16
)

var (
	errSlowConsumer = errors.New("realtime: client send buffer full")
	errClosed       = errors.New("realtime: connection closed")
)

// client is one websocket connection. Writes go through a buffered
// channel drained by writePump so concurrent senders never touch the
// socket directly.
type client struct {
	id             string
	userID         string
	conversationID string
	conn           *websocket.Conn
	send           chan presence.Event

	closeOnce sync.Once
	done      chan struct{}
}

func (c *client) ID() string { return c.id }

// Send queues an event for the connection. A full buffer or a closed
// connection surfaces as an error so callers can fall back to push.
func (c *client) Send(ev presence.Event) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	select {
	case c.send <- ev:
		return nil
	case <-c.done:
		return errClosed
	default:
		return errSlowConsumer
	}
}

func (c *client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	return nil
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

var _ presence.Conn = (*client)(nil)

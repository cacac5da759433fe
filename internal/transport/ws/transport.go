package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"formroom/pkg/platform/sentinel"
)

const writeWait = 10 * time.Second

// transport adapts a gorilla connection to the registry's Transport
// contract. Writes go through a buffered channel drained by a single pump
// goroutine, so concurrent broadcasters never interleave frames and a slow
// client surfaces as a full queue instead of a blocked caller.
type transport struct {
	conn *websocket.Conn
	send chan any
	done chan struct{}
	once sync.Once
}

func newTransport(conn *websocket.Conn, queueSize int) *transport {
	return &transport{
		conn: conn,
		send: make(chan any, queueSize),
		done: make(chan struct{}),
	}
}

func (t *transport) WriteJSON(v any) error {
	select {
	case <-t.done:
		return sentinel.ErrConnectionGone
	default:
	}
	select {
	case t.send <- v:
		return nil
	default:
		return sentinel.ErrQueueFull
	}
}

func (t *transport) Close() error {
	t.once.Do(func() { close(t.done) })
	return t.conn.Close()
}

// writePump serializes all frames onto the socket. It exits when the
// transport closes or a write fails; the read loop observes the broken
// socket and tears the connection down.
func (t *transport) writePump() {
	for {
		select {
		case <-t.done:
			return
		case v := <-t.send:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteJSON(v); err != nil {
				return
			}
		}
	}
}

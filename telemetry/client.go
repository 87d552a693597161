package telemetry

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lixenwraith/virtuaplant/core"
)

// client is one websocket subscriber
// Only writePump writes to conn; readPump only reads
type client struct {
	id   uint64
	addr string
	conn *websocket.Conn
	send chan []byte

	closeCh   chan struct{}
	closeOnce sync.Once
}

func newClient(id uint64, conn *websocket.Conn, queue int) *client {
	return &client{
		id:      id,
		addr:    conn.RemoteAddr().String(),
		conn:    conn,
		send:    make(chan []byte, queue),
		closeCh: make(chan struct{}),
	}
}

// offer queues msg without blocking, false when the client is behind
func (c *client) offer(msg []byte) bool {
	select {
	case <-c.closeCh:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close ends the client once
func (c *client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.conn.Close()
	})
}

// run starts the pumps; onDone fires once both have exited
func (c *client) run(cfg *Config, onDone func()) {
	var wg sync.WaitGroup
	wg.Add(2)
	core.Go(func() {
		defer wg.Done()
		c.writePump(cfg)
	})
	core.Go(func() {
		defer wg.Done()
		c.readPump(cfg)
	})
	core.Go(func() {
		wg.Wait()
		onDone()
	})
}

// readPump discards client messages and keeps the read deadline alive on pong
func (c *client) readPump(cfg *Config) {
	defer c.Close()

	c.conn.SetReadLimit(1 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends queued frames and pings
func (c *client) writePump(cfg *Config) {
	defer c.Close()

	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

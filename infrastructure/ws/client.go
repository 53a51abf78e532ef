package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// UserClient is one websocket connection. A user with several tabs open has
// several clients.
type UserClient struct {
	Id     string
	UserId string
	hub    IHub
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(userId string, hub IHub, conn *websocket.Conn) *UserClient {
	return &UserClient{
		Id:     uuid.NewString(),
		UserId: userId,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
	}
}

// Send queues a frame for this client only. It reports false when the
// client's buffer is full.
func (c *UserClient) Send(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *UserClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump hands every inbound frame to handle and unregisters the client
// when the connection drops.
func (c *UserClient) ReadPump(handle func(data []byte)) {
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				zap.L().Warn("ws_read_failed", zap.String("user_id", c.UserId), zap.Error(err))
			}
			return
		}
		handle(data)
	}
}

func (c *UserClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

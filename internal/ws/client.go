package ws

import (
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sujalbistaa/classhub/internal/auth"
	"github.com/sujalbistaa/classhub/internal/identity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one WebSocket connection. claims is nil for anonymous
// connections; identity is always populated (fingerprint at minimum).
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	claims   *auth.Claims
	identity identity.Resolved
}

func newClient(hub *Hub, conn *websocket.Conn, claims *auth.Claims, id identity.Resolved) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 32),
		claims:   claims,
		identity: id,
	}
}

// deliver queues a message for this client only, dropping it when the
// client's buffer is full.
func (c *Client) deliver(event string, data any) {
	raw, ok := marshal(event, data)
	if !ok {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func (c *Client) readPump(g *Gateway) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}
		g.dispatch(c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
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

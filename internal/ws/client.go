package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time between keepalive pings
	pingPeriod = 30 * time.Second

	// Pongs must arrive within this window or the read fails
	pongWait = 60 * time.Second

	// Per-message size cap; the library closes the socket on oversize frames
	maxMessageSize = 100 * 1024

	// Buffer size for outgoing messages
	sendBufferSize = 256
)

// Client is one live WebSocket connection. The connection id is minted for
// logs only; identity arrives later via setOnline.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	hub    *Hub
	logger *slog.Logger

	closeReason string
}

func newClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		hub:    hub,
		logger: logger.With(slog.String("conn_id", id)),
	}
}

// Send marshals the frame and enqueues it. A full buffer or closed client
// drops the frame; per-recipient failures never propagate to the sender's
// handler.
func (c *Client) Send(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("failed to marshal frame", slog.String("error", err.Error()))
		return
	}
	select {
	case <-c.done:
		c.logger.Warn("frame dropped - client closed")
	case c.send <- data:
	default:
		c.logger.Warn("frame dropped - client buffer full")
	}
}

// close stops the write pump, optionally with a close reason sent to the
// peer. Safe to call more than once.
func (c *Client) close(reason string) {
	c.once.Do(func() {
		c.closeReason = reason
		close(c.done)
	})
}

// readPump reads frames off the socket and routes them in arrival order.
// It exits on any read error, triggering teardown.
func (c *Client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("read error", slog.String("error", err.Error()))
			}
			return
		}
		c.hub.route(c, data)
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("write error", slog.String("error", err.Error()))
				return
			}
		case <-c.done:
			// Drain anything already queued before saying goodbye
			for {
				select {
				case data := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.closeReason))
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

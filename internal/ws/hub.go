// Package ws is the realtime surface of the engine: the session manager,
// the message router, and the broadcast fan-out over gorilla websockets.
package ws

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/playrival/rival-server/internal/cache"
	"github.com/playrival/rival-server/internal/dependencies/clock"
	"github.com/playrival/rival-server/internal/services/challenge"
	"github.com/playrival/rival-server/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Identity is asserted by setOnline; origin checks are the proxy's job
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub owns every live connection. It accepts sockets, routes their frames,
// binds them to user ids on setOnline, and tears them down on close.
type Hub struct {
	storage     storage.Storage
	cache       *cache.Manager
	controller  *challenge.Controller
	broadcaster *Broadcaster
	clock       clock.Clock
	logger      *slog.Logger

	mu      sync.Mutex
	clients map[*Client]bool
	closed  bool
}

// NewHub creates a Hub wired to the given storage, cache, and controller
func NewHub(
	store storage.Storage,
	cacheManager *cache.Manager,
	controller *challenge.Controller,
	clk clock.Clock,
	logger *slog.Logger,
) *Hub {
	return &Hub{
		storage:     store,
		cache:       cacheManager,
		controller:  controller,
		broadcaster: NewBroadcaster(cacheManager, logger),
		clock:       clk,
		logger:      logger.With(slog.String("component", "ws")),
		clients:     make(map[*Client]bool),
	}
}

// ServeWS upgrades an HTTP request and starts the connection's pumps
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	count := len(h.clients)
	h.mu.Unlock()

	if count >= cache.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := newClient(h, conn, h.logger)

	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	client.logger.Info("connection opened",
		slog.String("remote_addr", r.RemoteAddr),
		slog.Int("total_connections", total))

	go client.writePump()
	go client.readPump()
}

// unregister tears a connection down: it leaves the client set, loses its
// presence binding, and the fresh roster goes out to everyone left.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	_, known := h.clients[client]
	delete(h.clients, client)
	total := len(h.clients)
	h.mu.Unlock()

	if !known {
		return
	}
	client.close("")

	client.logger.Info("connection closed", slog.Int("total_connections", total))

	// A connection replaced by a newer setOnline no longer holds a binding,
	// so its close does not disturb the roster
	if entry, had := h.cache.RemoveByConn(client); had {
		h.logger.Info("user offline",
			slog.String("user_id", string(entry.UserID)),
			slog.Duration("session_duration", h.clock.Since(entry.ConnectedAt)))
		h.broadcaster.ToAll(newOnlineUsersFrame(h.cache.OnlineUsers()))
	}
}

// Shutdown stops accepting connections and closes every open socket with a
// normal-closure frame
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	open := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		open = append(open, client)
	}
	h.mu.Unlock()

	h.logger.Info("closing connections", slog.Int("count", len(open)))
	for _, client := range open {
		client.close("Server shutting down")
	}
}

// Package ws pushes live cycle updates to connected dashboard clients over
// websockets.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

// Message is the envelope for every frame pushed to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// cyclePayload is the JSON shape of a poll cycle summary.
type cyclePayload struct {
	Repositories int          `json:"repositories"`
	Errors       int          `json:"errors"`
	Runs         []runPayload `json:"runs"`
}

type runPayload struct {
	Repository string `json:"repository"`
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	Outcome    string `json:"outcome"`
	Branch     string `json:"branch"`
	StartedAt  string `json:"started_at"`
}

// Hub maintains the set of connected clients and fans broadcast frames out
// to them. It implements the driven Broadcaster port; a Hub that is not
// running simply drops frames once its buffer fills.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan Message
	clients    map[*client]bool
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

var _ driven.Broadcaster = (*Hub)(nil)

// NewHub creates a Hub. Call Run before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Message, 64),
		clients:    make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// Run owns the client set until the context is canceled, at which point all
// connections are closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.logger.Info("websocket hub stopped")
			return
		case c := <-h.register:
			h.clients[c] = true
			h.logger.Info("websocket client connected", "clients", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.logger.Info("websocket client disconnected", "clients", len(h.clients))
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// A client that cannot keep up is dropped rather than
					// allowed to stall the hub.
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// BroadcastCycle pushes a poll cycle summary to all connected clients.
func (h *Hub) BroadcastCycle(event model.CycleEvent) {
	runs := make([]runPayload, 0, len(event.Runs))
	for _, run := range event.Runs {
		runs = append(runs, runPayload{
			Repository: run.RepositoryFullName,
			RunID:      run.RunID,
			Status:     string(run.Status),
			Outcome:    string(run.Outcome),
			Branch:     run.Branch,
			StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
		})
	}

	msg := Message{
		Type: "cycle",
		Data: cyclePayload{
			Repositories: event.Repositories,
			Errors:       event.Errors,
			Runs:         runs,
		},
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast buffer full, dropping cycle update")
	}
}

// ServeHTTP upgrades the connection and hands it to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn)
	h.register <- c
	c.start()
}

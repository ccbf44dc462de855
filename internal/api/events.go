package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/medagg/cardiovoice/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards and monitoring tools connect cross-origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventHub fans transcript entries out to per-call websocket subscribers.
type eventHub struct {
	mu   sync.RWMutex
	subs map[string]map[*websocket.Conn]bool
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[string]map[*websocket.Conn]bool)}
}

// Publish delivers one transcript entry to every subscriber of the call.
// Dead connections are dropped on write failure.
func (h *eventHub) Publish(callID string, entry models.TranscriptEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.subs[callID] {
		if err := conn.WriteJSON(entry); err != nil {
			slog.Debug("eventHub.Publish: dropping dead subscriber", "callID", callID, "error", err)
			conn.Close()
			delete(h.subs[callID], conn)
		}
	}
}

// attach replays the backlog and registers the subscriber under one hold of
// the hub lock, so no entry published in between is lost to the new feed.
func (h *eventHub) attach(callID string, conn *websocket.Conn, backlog []models.TranscriptEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, entry := range backlog {
		if err := conn.WriteJSON(entry); err != nil {
			return err
		}
	}
	if h.subs[callID] == nil {
		h.subs[callID] = make(map[*websocket.Conn]bool)
	}
	h.subs[callID][conn] = true
	return nil
}

func (h *eventHub) unsubscribe(callID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[callID], conn)
	if len(h.subs[callID]) == 0 {
		delete(h.subs, callID)
	}
}

// callEventsHandler handles GET /calls/{id}/events. It upgrades to a
// websocket, replays the transcript so far, then streams new entries live.
func (s *Server) callEventsHandler(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	call, err := s.st.GetCall(r.Context(), callID)
	if err != nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Call not found"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Server.callEventsHandler: websocket upgrade failed", "error", err, "callID", callID)
		return
	}

	if err := s.events.attach(callID, conn, call.Transcript); err != nil {
		conn.Close()
		return
	}
	slog.Debug("Server.callEventsHandler: subscriber attached", "callID", callID)

	// Block reading until the client goes away; we never expect inbound
	// frames on this feed.
	go func() {
		defer func() {
			s.events.unsubscribe(callID, conn)
			conn.Close()
			slog.Debug("Server.callEventsHandler: subscriber detached", "callID", callID)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

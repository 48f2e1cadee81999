package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/wethinkt/go-tailt/internal/tuilog"
)

// clientMessage is what a client sends over the socket to manage its
// watch set.
type clientMessage struct {
	Type      string `json:"type"` // "watch" or "unwatch"
	SessionID string `json:"session_id"`
}

// handleWS upgrades to WebSocket and streams change events. Every
// client hears changed signals for all sessions; sessions the client
// watches arrive as full entry batches.
// Auth: either Authorization header (handled by bearerAuth middleware)
// or ?ticket= query param.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if ticket := r.URL.Query().Get("ticket"); ticket != "" {
		if !s.tickets.Redeem(ticket) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired ticket")
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		tuilog.Log.Error("WebSocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, unsub := s.pubsub.Subscribe()
	defer unsub()

	wsConnectionsActive.Inc()
	defer wsConnectionsActive.Dec()
	tuilog.Log.Info("WebSocket client connected", "remote", r.RemoteAddr)

	go s.readClientMessages(ctx, conn, sub, cancel)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		case ev, ok := <-sub.Events():
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "subscription closed")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				tuilog.Log.Debug("WS write failed", "error", err)
				return
			}
			wsEventsTotal.WithLabelValues(ev.Type).Inc()
		}
	}
}

// readClientMessages consumes watch/unwatch messages until the client
// hangs up, then cancels the write loop.
func (s *Server) readClientMessages(ctx context.Context, conn *websocket.Conn, sub *Subscriber, cancel context.CancelFunc) {
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			tuilog.Log.Debug("WS bad client message", "error", err)
			continue
		}
		switch msg.Type {
		case "watch":
			if msg.SessionID != "" {
				sub.Watch(msg.SessionID)
			}
		case "unwatch":
			sub.Unwatch(msg.SessionID)
		default:
			tuilog.Log.Debug("WS unknown message type", "type", msg.Type)
		}
	}
}

// handleIssueTicket issues a WebSocket auth ticket.
// @Summary Issue a WebSocket ticket
// @Description Exchanges the caller's credentials for a short-lived single-use ticket to pass as ?ticket= on the ws dial
// @Tags ws
// @Produce json
// @Success 200 {object} TicketResponse
// @Failure 401 {object} ErrorResponse "Unauthorized - invalid or missing token"
// @Router /ws/ticket [post]
// @Security BearerAuth
func (s *Server) handleIssueTicket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TicketResponse{Ticket: s.tickets.Issue()})
}

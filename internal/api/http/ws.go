package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"chemsource/searchservice/internal/domain"
)

const socketWriteWait = 10 * time.Second

// upgrader skips the origin check. Extension background pages send either
// no Origin header or an extension scheme that cannot be allowlisted.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// socketMessage is the wire frame for /search/ws. Type selects which of
// the optional fields is set: product, supplier, done or error.
type socketMessage struct {
	Type     string                 `json:"type"`
	Product  *domain.Product        `json:"product,omitempty"`
	Supplier *domain.SupplierStatus `json:"supplier,omitempty"`
	Summary  *domain.SearchResponse `json:"summary,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func (s *Server) handleSearchSocket(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/ws" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	request, err := parseSearchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.logger.Warn("websocket upgrade failed",
			slog.String("clientIP", clientIP(r)),
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client sends nothing after the handshake. The read loop exists
	// to notice the close frame so the search is cancelled promptly.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	events, err := s.search.SearchStream(ctx, request)
	if err != nil {
		_ = s.writeSocket(conn, socketMessage{Type: "error", Error: err.Error()})
		return
	}

	finalSent := false
	for event := range events {
		if ctx.Err() != nil {
			return
		}
		var message socketMessage
		switch {
		case event.Error != "":
			message = socketMessage{Type: "error", Error: event.Error}
		case event.Product != nil:
			message = socketMessage{Type: "product", Product: event.Product}
		case event.Supplier != nil:
			message = socketMessage{Type: "supplier", Supplier: event.Supplier}
		case event.Final != nil:
			finalSent = true
			message = socketMessage{Type: "done", Summary: event.Final}
		default:
			continue
		}
		if err := s.writeSocket(conn, message); err != nil {
			return // Client disconnected
		}
	}

	if !finalSent {
		_ = s.writeSocket(conn, socketMessage{Type: "done"})
	}
	deadline := time.Now().Add(socketWriteWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

func (s *Server) writeSocket(conn *websocket.Conn, message socketMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return conn.WriteJSON(message)
}

package wsstream

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/durable-go/durable"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server exposes a single durable.DurableStream to any number of
// wsstream Clients. It is deliberately simple: every connected client
// sees the same backing stream, so Server is meant for a single
// workflow's remote store, not multi-tenant fan-out.
type Server struct {
	stream   durable.DurableStream
	upgrader websocket.Upgrader
}

// NewServer wraps stream for WebSocket access.
func NewServer(stream durable.DurableStream) *Server {
	return &Server{
		stream: stream,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and serves requests until the
// client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("wsstream: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Each connection gets its own session id purely for log
	// correlation; the backing stream itself has no notion of
	// per-client identity.
	sessionID := uuid.New()
	log.Printf("wsstream: session %s connected", sessionID)
	defer log.Printf("wsstream: session %s disconnected", sessionID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		resp := s.handle(raw)
		encoded, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
			return
		}
	}
}

func (s *Server) handle(raw []byte) response {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return response{Error: "bad request: " + err.Error()}
	}

	switch req.Type {
	case "append":
		if req.Event == nil {
			return response{ID: req.ID, Error: "append requires an event"}
		}
		offset, err := s.stream.Append(*req.Event)
		if err != nil {
			return response{ID: req.ID, Error: err.Error()}
		}
		return response{ID: req.ID, Offset: offset}

	case "read":
		entries, err := s.stream.Read(req.FromOffset)
		if err != nil {
			return response{ID: req.ID, Error: err.Error()}
		}
		return response{ID: req.ID, Entries: entries}

	case "length":
		return response{ID: req.ID, Length: s.stream.Length()}

	case "closed":
		return response{ID: req.ID, Closed: s.stream.Closed()}

	case "close":
		if err := s.stream.Close(); err != nil {
			return response{ID: req.ID, Error: err.Error()}
		}
		return response{ID: req.ID}

	default:
		return response{ID: req.ID, Error: "unknown request type: " + req.Type}
	}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/olahol/melody"

	"wallet/internal/ledger"
	"wallet/internal/log"
)

// ChangeMessage is pushed to every websocket client. The first message on a
// connection is a "hello" carrying the current revision, every later one a
// "change" after the ledger committed.
type ChangeMessage struct {
	Type     string            `json:"type"`
	Kind     ledger.ChangeKind `json:"kind,omitempty"`
	Revision uint64            `json:"revision"`
	Count    int               `json:"count"`
}

// Hub fans ledger changes out to websocket clients so views can refetch.
type Hub struct {
	m      *melody.Melody
	store  *ledger.Store
	logger *log.Logger
	detach func()
}

// NewHub registers on store; Close unregisters.
func NewHub(store *ledger.Store, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Discard()
	}
	m := melody.New()
	m.Config.MaxMessageSize = 512
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	h := &Hub{m: m, store: store, logger: logger.WithComponent(log.ComponentHub)}

	m.HandleConnect(func(s *melody.Session) {
		msg, _ := json.Marshal(helloMessage(store))
		if err := s.Write(msg); err != nil {
			h.logger.Debug("Hello not delivered", log.FieldError, err)
		}
		h.logger.Debug("Client connected", log.FieldClientIP, s.Request.RemoteAddr, log.FieldCount, m.Len())
	})
	m.HandleDisconnect(func(s *melody.Session) {
		h.logger.Debug("Client disconnected", log.FieldClientIP, s.Request.RemoteAddr)
	})
	m.HandleError(func(s *melody.Session, err error) {
		h.logger.Warn("WebSocket error", log.FieldError, err)
	})

	h.detach = store.OnChange(func(_ context.Context, c ledger.Change) {
		h.Broadcast(c)
	})
	return h
}

// helloMessage describes the ledger as of one revision.
func helloMessage(store *ledger.Store) ChangeMessage {
	list, rev := store.Snapshot()
	return ChangeMessage{Type: "hello", Revision: rev, Count: len(list)}
}

// ServeHTTP upgrades the request.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.m.HandleRequest(w, r); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to upgrade websocket", log.FieldError, err)
	}
}

// Broadcast sends c to every connected client.
func (h *Hub) Broadcast(c ledger.Change) {
	msg, err := json.Marshal(ChangeMessage{Type: "change", Kind: c.Kind, Revision: c.Revision, Count: c.Count})
	if err != nil {
		return
	}
	if err := h.m.Broadcast(msg); err != nil && !errors.Is(err, melody.ErrClosed) {
		h.logger.Warn("Broadcast failed", log.FieldRevision, c.Revision, log.FieldError, err)
	}
}

// Len is the number of connected clients.
func (h *Hub) Len() int {
	return h.m.Len()
}

func (h *Hub) Close() error {
	h.detach()
	if h.m.IsClosed() {
		return nil
	}
	return h.m.Close()
}

// Package events broadcasts TokenState's four event types to connected
// websocket clients: a connection registry and upgrader wired to a single
// fan-out hub.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"

	"yieldcore/core/token"
)

// Message is the JSON envelope sent to every subscriber.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	TypeIndexUpdated   = "IndexUpdated"
	TypeStartedEarning = "StartedEarning"
	TypeStoppedEarning = "StoppedEarning"
	TypeTransfer       = "Transfer"
)

// Hub fans out token events to every connected websocket client. Slow
// clients are dropped rather than allowed to back-pressure the sender.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte

	server *http.Server
	addr   string

	wg sync.WaitGroup
}

// NewHub creates a Hub listening on addr.
func NewHub(addr string) *Hub {
	h := &Hub{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan []byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", h.handleWebSocket)
	h.server = &http.Server{Addr: addr, Handler: mux}
	return h
}

// Start serves the websocket endpoint in the background.
func (h *Hub) Start() error {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		log.Info("starting event hub", "addr", h.addr)
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("event hub server error", "err", err)
		}
	}()
	return nil
}

// Stop closes all client connections and shuts the server down.
func (h *Hub) Stop() {
	h.server.Close()
	h.mu.Lock()
	for conn, ch := range h.clients {
		close(ch)
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]chan []byte)
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("event hub: upgrade failed", "err", err)
		return
	}

	outbox := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[conn] = outbox
	h.mu.Unlock()

	go func() {
		for msg := range outbox {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
		conn.Close()
	}()

	// Drain and discard inbound traffic; this hub is publish-only.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.mu.Lock()
			if ch, ok := h.clients[conn]; ok {
				close(ch)
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) broadcast(msgType string, data any) {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		log.Error("event hub: failed to marshal event", "type", msgType, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- payload:
		default:
			log.Warn("event hub: dropping slow client")
			close(ch)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// Attach wires this hub to tok's event callbacks, replacing any handlers
// already set.
func (h *Hub) Attach(tok *token.TokenState) {
	tok.SetHandlers(token.Handlers{
		OnIndexUpdated: func(e token.IndexUpdatedEvent) {
			h.broadcast(TypeIndexUpdated, e)
		},
		OnStartedEarning: func(e token.StartedEarningEvent) {
			h.broadcast(TypeStartedEarning, e)
		},
		OnStoppedEarning: func(e token.StoppedEarningEvent) {
			h.broadcast(TypeStoppedEarning, e)
		},
		OnTransfer: func(e token.TransferEvent) {
			h.broadcast(TypeTransfer, e)
		},
	})
}

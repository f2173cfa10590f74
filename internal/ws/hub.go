package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"taxfolio/internal/log"
	"taxfolio/internal/storage"
)

// Hub fans export job updates out to connected browsers. The review
// and export pages subscribe so job rows flip to completed without a
// manual refresh.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *log.Logger
	mu         sync.Mutex
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.WithComponent(log.ComponentWS),
	}
}

// Start runs the hub loop until Stop is called.
func (h *Hub) Start() {
	go func() {
		for {
			select {
			case <-h.done:
				h.mu.Lock()
				for conn := range h.clients {
					conn.Close()
					delete(h.clients, conn)
				}
				h.mu.Unlock()
				return
			case conn := <-h.register:
				h.mu.Lock()
				h.clients[conn] = true
				total := len(h.clients)
				h.mu.Unlock()
				h.logger.Debug("websocket client connected", "clients", total)
			case conn := <-h.unregister:
				h.mu.Lock()
				if _, ok := h.clients[conn]; ok {
					delete(h.clients, conn)
					conn.Close()
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.logger.Debug("websocket client disconnected", "clients", total)
			case message := <-h.broadcast:
				h.mu.Lock()
				for conn := range h.clients {
					if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
						h.logger.Warn("websocket write failed", "error", err)
						conn.Close()
						delete(h.clients, conn)
					}
				}
				h.mu.Unlock()
			}
		}
	}()
}

func (h *Hub) Stop() {
	close(h.done)
}

// BroadcastJobUpdate pushes the current state of an export job to
// every connected client.
func (h *Hub) BroadcastJobUpdate(job *storage.ExportJob) {
	update := map[string]any{
		"type":   "export_job",
		"job_id": job.ID,
		"format": job.Format,
		"status": job.Status,
	}
	if job.Status == storage.JobCompleted {
		update["file"] = job.FilePath
	}
	if job.Status == storage.JobFailed && job.Error != "" {
		update["error"] = job.Error
	}

	data, err := json.Marshal(update)
	if err != nil {
		h.logger.Error("marshal job update", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// ServeHTTP upgrades the request and parks the connection in the hub.
// Clients only listen; inbound messages are drained and discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	// The hub loop stops consuming register once Stop is called, so a
	// late connection must not block the handler forever.
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
				conn.Close()
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"route-aggregator/internal/services"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 54 * time.Second
)

// StatusFeed is the report source behind the operator stream.
type StatusFeed interface {
	StatusReporter
	Subscribe(id string) <-chan services.StatusReport
	Unsubscribe(id string)
}

// WebSocketHandler streams status reports to operators
type WebSocketHandler struct {
	feed     StatusFeed
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(feed StatusFeed) *WebSocketHandler {
	return &WebSocketHandler{
		feed: feed,
		upgrader: websocket.Upgrader{
			// admin routes are already behind IP allowlist and JWT
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type streamMessage struct {
	Type      string                 `json:"type"`
	ClientID  string                 `json:"client_id,omitempty"`
	Report    *services.StatusReport `json:"report,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// HandleStream GET /api/v1/admin/stream
func (h *WebSocketHandler) HandleStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()
	reports := h.feed.Subscribe(clientID)
	defer h.feed.Unsubscribe(clientID)

	log.Printf("📡 Status stream client connected: %s (admin: %s)", clientID, c.GetString("admin_username"))

	initial := h.feed.Report()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(streamMessage{Type: "connected", ClientID: clientID, Report: &initial, Timestamp: time.Now()}); err != nil {
		log.Printf("❌ [WebSocket] Initial write failed for client %s: %v", clientID, err)
		return
	}

	pongChan := make(chan streamMessage, 4)
	readDone := make(chan struct{})
	go h.readLoop(conn, clientID, pongChan, readDone)

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	// single writer: reports, pongs and protocol pings all go through this loop
	for {
		select {
		case report, ok := <-reports:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(streamMessage{Type: "status", Report: &report, Timestamp: report.GeneratedAt}); err != nil {
				log.Printf("❌ [WebSocket] Write error for client %s: %v", clientID, err)
				return
			}
		case pong := <-pongChan:
			conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			if err := conn.WriteJSON(pong); err != nil {
				log.Printf("❌ [WebSocket] Pong write error for client %s: %v", clientID, err)
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Printf("❌ [WebSocket] Ping failed for client %s: %v", clientID, err)
				return
			}
		case <-readDone:
			log.Printf("🔌 Status stream client disconnected: %s", clientID)
			return
		}
	}
}

// readLoop answers JSON pings and detects disconnects. Other client messages are ignored.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn, clientID string, pongChan chan<- streamMessage, readDone chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [WebSocket] PANIC recovered in read goroutine for client %s: %v", clientID, r)
		}
		close(readDone)
	}()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("⚠️ [WebSocket] Read error for client %s: %v", clientID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if messageType != websocket.TextMessage {
			continue
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "ping" {
			continue
		}
		select {
		case pongChan <- streamMessage{Type: "pong", Timestamp: time.Now()}:
		default:
			log.Printf("⚠️ [WebSocket] Pong channel full for client %s, dropping pong", clientID)
		}
	}
}

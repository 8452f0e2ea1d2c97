package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Krimson/ecg-monitory/analyzer/internal/session"
	"github.com/gorilla/websocket"
)

const (
	// Время на запись одного сообщения клиенту
	writeWait = 10 * time.Second

	// Размер буфера исходящих сообщений клиента
	sendBuffer = 256
)

// Hub управляет WebSocket соединениями
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Канал для регистрации клиентов
	register chan *Client

	// Канал для отмены регистрации клиентов
	unregister chan *Client

	// Канал сообщений для рассылки
	broadcast chan envelope

	// Мютекс для безопасной работы с картой клиентов
	mu sync.RWMutex

	stop chan struct{}
}

// Client представляет WebSocket клиента
type Client struct {
	hub *Hub

	// WebSocket соединение
	conn *websocket.Conn

	// Буферизованный канал исходящих сообщений
	send chan []byte

	// ID сессии для фильтрации данных; пустой получает все сессии
	sessionID string
}

// envelope сообщение с адресатом
type envelope struct {
	sessionID string
	payload   []byte
}

// BeatsMessage новые удары сессии
type BeatsMessage struct {
	Type      string               `json:"type"`
	SessionID string               `json:"session_id"`
	Beats     []session.BeatRecord `json:"beats"`
}

// AnalysisMessage итог коррекции RR после остановки сессии
type AnalysisMessage struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id"`
	Analysis  *session.Analysis `json:"analysis"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене следует проверять домен
		return true
	},
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan envelope, 256),
		stop:       make(chan struct{}),
	}
}

// Run запускает Hub; возвращается после Stop
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[WEBSOCKET] Client registered: %p, session: %q", client, client.sessionID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("[WEBSOCKET] Client unregistered: %p", client)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.sessionID != "" && client.sessionID != msg.sessionID {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// медленный клиент
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop останавливает Hub и закрывает всех клиентов
func (h *Hub) Stop() {
	close(h.stop)
}

// ClientCount количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastBeats рассылает новые удары подписчикам сессии (реализует session.BeatBroadcaster)
func (h *Hub) BroadcastBeats(sessionID string, beats []session.BeatRecord) {
	if len(beats) == 0 {
		return
	}
	h.send(sessionID, &BeatsMessage{Type: "beats", SessionID: sessionID, Beats: beats})
}

// ObserveCorrection рассылает итог коррекции RR (реализует session.CorrectionObserver)
func (h *Hub) ObserveCorrection(analysis *session.Analysis) {
	h.send(analysis.SessionID, &AnalysisMessage{Type: "rr_analysis", SessionID: analysis.SessionID, Analysis: analysis})
}

func (h *Hub) send(sessionID string, data interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		log.Printf("[ERROR] Failed to marshal websocket message: %v", err)
		return
	}

	select {
	case h.broadcast <- envelope{sessionID: sessionID, payload: message}:
	default:
		log.Printf("[WARN] Broadcast channel full, dropping message for session %s", sessionID)
	}
}

// HandleWebSocket обрабатывает WebSocket соединения; ?session_id= ограничивает поток одной сессией
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ERROR] Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		sessionID: r.URL.Query().Get("session_id"),
	}

	select {
	case client.hub.register <- client:
	case <-h.stop:
		conn.Close()
		return
	}

	// Запускаем горутины для клиента
	go client.writePump()
	go client.readPump()
}

// readPump читает входящие сообщения до закрытия соединения
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ERROR] WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump отправляет сообщения клиенту
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("[ERROR] Failed to write message: %v", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

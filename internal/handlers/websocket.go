package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/casevault/reward-service/internal/models"
	"github.com/casevault/reward-service/internal/services"
)

const (
	MessageConnected       = "CONNECTED"
	MessagePing            = "PING"
	MessagePong            = "PONG"
	MessageSubscribeCase   = "SUBSCRIBE_CASE"
	MessageUnsubscribeCase = "UNSUBSCRIBE_CASE"
	MessageOpeningRevealed = "OPENING_REVEALED"

	writeWait      = 10 * time.Second
	clientSendSize = 32

	maxClientSubscriptions = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub     *WebSocketHub
	catalog *services.CaseCatalog
	logger  logrus.FieldLogger
}

type WebSocketHub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	events     chan hubEvent
	done       chan struct{}
	closeOnce  sync.Once
	logger     logrus.FieldLogger
}

// Client only receives openings for the cases it subscribed to, or all of
// them when it has no subscriptions.
type Client struct {
	ID   string
	Conn *websocket.Conn
	send chan *Message

	mu    sync.RWMutex
	cases map[string]struct{}
}

type hubEvent struct {
	msg    *Message
	target *Client
	count  chan int
}

type Message struct {
	Type       string      `json:"type"`
	CaseTypeID string      `json:"caseTypeId,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Timestamp  int64       `json:"timestamp"`
}

// NewWebSocketHandler only lets clients subscribe to case types in catalog.
func NewWebSocketHandler(catalog *services.CaseCatalog, logger logrus.FieldLogger) *WebSocketHandler {
	logger = logger.WithField("handler", "websocket")
	hub := &WebSocketHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan hubEvent, 100),
		done:       make(chan struct{}),
		logger:     logger,
	}

	go hub.run()

	return &WebSocketHandler{
		hub:     hub,
		catalog: catalog,
		logger:  logger,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade to WebSocket")
		return
	}

	client := &Client{
		ID:    uuid.NewString(),
		Conn:  conn,
		send:  make(chan *Message, clientSendSize),
		cases: make(map[string]struct{}),
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()

	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.done:
		}
		conn.Close()
	}()

	h.hub.sendTo(client, &Message{
		Type:      MessageConnected,
		Data:      gin.H{"clientId": client.ID},
		Timestamp: time.Now().Unix(),
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Warn("WebSocket read error")
			}
			return
		}

		h.handleMessage(client, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case MessagePing:
		h.hub.sendTo(client, &Message{Type: MessagePong, Timestamp: time.Now().Unix()})
	case MessageSubscribeCase:
		id := canonicalCaseID(msg.CaseTypeID)
		if _, err := h.catalog.Lookup(id); err != nil {
			h.logger.WithField("client_id", client.ID).Debug("Ignoring subscription to unknown case type")
			return
		}
		if !client.subscribe(id) {
			h.logger.WithField("client_id", client.ID).Warn("Subscription limit reached")
		}
	case MessageUnsubscribeCase:
		if msg.CaseTypeID != "" {
			client.unsubscribe(canonicalCaseID(msg.CaseTypeID))
		}
	}
}

// BroadcastOpening never blocks the caller; a full hub queue drops the event.
func (h *WebSocketHandler) BroadcastOpening(caseTypeID string, quote *models.RewardQuote) {
	msg := &Message{
		Type:       MessageOpeningRevealed,
		CaseTypeID: caseTypeID,
		Data:       quote,
		Timestamp:  time.Now().Unix(),
	}

	select {
	case h.hub.events <- hubEvent{msg: msg}:
	default:
		h.logger.WithField("opening_id", quote.OpeningID).Warn("Broadcast queue full, dropping event")
	}
}

func (h *WebSocketHandler) ClientCount() int {
	reply := make(chan int, 1)
	select {
	case h.hub.events <- hubEvent{count: reply}:
	case <-h.hub.done:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-h.hub.done:
		return 0
	}
}

func (h *WebSocketHandler) Close() {
	h.hub.closeOnce.Do(func() {
		close(h.hub.done)
	})
}

func (hub *WebSocketHub) sendTo(client *Client, msg *Message) {
	select {
	case hub.events <- hubEvent{msg: msg, target: client}:
	case <-hub.done:
	}
}

// run owns the client map and every client's send channel.
func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			hub.clients[client.ID] = client
			hub.logger.WithField("client_id", client.ID).Debug("Client registered")

		case client := <-hub.unregister:
			if _, ok := hub.clients[client.ID]; ok {
				delete(hub.clients, client.ID)
				close(client.send)
				hub.logger.WithField("client_id", client.ID).Debug("Client unregistered")
			}

		case ev := <-hub.events:
			switch {
			case ev.count != nil:
				ev.count <- len(hub.clients)
			case ev.target != nil:
				if _, ok := hub.clients[ev.target.ID]; ok {
					ev.target.enqueue(ev.msg)
				}
			default:
				hub.broadcastMessage(ev.msg)
			}

		case <-hub.done:
			for id, client := range hub.clients {
				delete(hub.clients, id)
				close(client.send)
			}
			return
		}
	}
}

func (hub *WebSocketHub) broadcastMessage(message *Message) {
	for _, client := range hub.clients {
		if client.wants(message.CaseTypeID) {
			client.enqueue(message)
		}
	}
}

// enqueue drops the message when the client is not keeping up.
func (c *Client) enqueue(msg *Message) {
	select {
	case c.send <- msg:
	default:
	}
}

// writePump is the only goroutine writing to the connection.
func (c *Client) writePump() {
	for msg := range c.send {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Conn.WriteJSON(msg); err != nil {
			c.Conn.Close()
			return
		}
	}
	_ = c.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (c *Client) subscribe(caseTypeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cases[caseTypeID]; !ok && len(c.cases) >= maxClientSubscriptions {
		return false
	}
	c.cases[caseTypeID] = struct{}{}
	return true
}

func (c *Client) subscriptions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cases)
}

func (c *Client) unsubscribe(caseTypeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cases, caseTypeID)
}

func (c *Client) wants(caseTypeID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.cases) == 0 || caseTypeID == "" {
		return true
	}
	_, ok := c.cases[caseTypeID]
	return ok
}

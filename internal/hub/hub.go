// Package hub is the server side of the push channel: one WebSocket
// connection per client session, with room subscriptions scoping which
// order events each identity receives.
package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quickbite/backend/internal/model"
)

const (
	EventOrderStatusUpdate = "order_status_update"
	EventOrderCompleted    = "order_completed"
	EventJoinRoom          = "join-room"
)

// Envelope is the wire frame for every push-channel message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type JoinRoomData struct {
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
}

type OrderStatusUpdateData struct {
	OrderID   string `json:"orderId"`
	NewStatus string `json:"newStatus"`
	Version   int    `json:"version"`
}

type OrderCompletedData struct {
	OrderID string `json:"orderId"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	rooms   map[string]map[uuid.UUID]*client
	logger  *log.Logger
}

func New(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients: make(map[uuid.UUID]*client),
		rooms:   make(map[string]map[uuid.UUID]*client),
		logger:  logger,
	}
}

// HandleWS upgrades the request and runs the client's read/write pumps.
// Authentication happens in middleware before this is reached.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Printf("ws upgrade failed: %v", err)
		return
	}

	cl := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[cl.id] = cl
	h.mu.Unlock()

	go h.readPump(cl)
	go h.writePump(cl)
}

func (h *Hub) readPump(cl *client) {
	defer func() {
		h.removeClient(cl)
		close(cl.done)
		cl.conn.Close()
	}()

	for {
		_, message, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleMessage(cl, message)
	}
}

func (h *Hub) writePump(cl *client) {
	for {
		select {
		case message := <-cl.send:
			if err := cl.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-cl.done:
			return
		}
	}
}

func (h *Hub) handleMessage(cl *client, message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		h.logger.Printf("ws: dropping malformed message: %v", err)
		return
	}

	switch env.Type {
	case EventJoinRoom:
		var data JoinRoomData
		if err := json.Unmarshal(env.Data, &data); err != nil || data.UserID == "" {
			return
		}
		h.join(roomKey(data.UserType, data.UserID), cl)
	default:
		h.logger.Printf("ws: ignoring message type %q", env.Type)
	}
}

// join is idempotent: re-joining an already joined room is a no-op.
func (h *Hub) join(room string, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]*client)
		h.rooms[room] = members
	}
	members[cl.id] = cl
}

func (h *Hub) removeClient(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, cl.id)
	for room, members := range h.rooms {
		delete(members, cl.id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// PublishOrderUpdate delivers an order event to the customer room and,
// when an agent is assigned, the agent room. Terminal completion is sent
// as its own event type.
func (h *Hub) PublishOrderUpdate(order *model.Order) {
	var env Envelope
	if order.Status == model.StatusCompleted {
		data, _ := json.Marshal(OrderCompletedData{OrderID: order.ID})
		env = Envelope{Type: EventOrderCompleted, Data: data}
	} else {
		data, _ := json.Marshal(OrderStatusUpdateData{
			OrderID:   order.ID,
			NewStatus: order.Status,
			Version:   order.Version,
		})
		env = Envelope{Type: EventOrderStatusUpdate, Data: data}
	}

	payload, err := json.Marshal(env)
	if err != nil {
		h.logger.Printf("ws: marshal order update: %v", err)
		return
	}

	rooms := []string{roomKey(model.UserTypeCustomer, order.CustomerID)}
	if order.AssignedAgentID != nil {
		rooms = append(rooms, roomKey(model.UserTypeAgent, *order.AssignedAgentID))
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, room := range rooms {
		for _, cl := range h.rooms[room] {
			select {
			case cl.send <- payload:
			default:
				// Slow consumer: drop rather than block the publisher.
			}
		}
	}
}

func roomKey(userType, userID string) string {
	return userType + ":" + userID
}

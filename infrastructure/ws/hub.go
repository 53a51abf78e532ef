package ws

import (
	"sync"

	"go.uber.org/zap"
)

type Hub struct {
	clients    map[string]*UserClient
	broadcast  chan []byte
	Register   chan *UserClient
	Unregister chan *UserClient
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*UserClient),
		broadcast:  make(chan []byte, 256),
		Register:   make(chan *UserClient),
		Unregister: make(chan *UserClient),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client.Id] = client
			h.mu.Unlock()
			zap.L().Info("ws_client_connected", zap.String("user_id", client.UserId), zap.String("client_id", client.Id))

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.Id]; ok {
				delete(h.clients, client.Id)
				client.closeSend()
				zap.L().Info("ws_client_disconnected", zap.String("user_id", client.UserId), zap.String("client_id", client.Id))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.broadcastLocal(message)
		}
	}
}

// broadcastLocal drops clients whose buffers are full.
func (h *Hub) broadcastLocal(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		if !client.Send(message) {
			client.closeSend()
			delete(h.clients, id)
			zap.L().Warn("ws_client_dropped", zap.String("user_id", client.UserId), zap.String("client_id", client.Id))
		}
	}
}

func (h *Hub) Broadcast(message []byte) {
	h.broadcast <- message
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RegisterClient(client *UserClient) {
	h.Register <- client
}

func (h *Hub) UnregisterClient(client *UserClient) {
	h.Unregister <- client
}

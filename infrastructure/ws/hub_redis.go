package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const broadcastChannel = "messages:broadcast"

// RedisHub serves local connections like Hub and relays broadcasts to the
// other servers through Redis pub/sub.
type RedisHub struct {
	// Local connections
	clients map[string]*UserClient
	mu      sync.RWMutex

	redisClient *redis.Client
	pubsub      *redis.PubSub
	serverID    string

	Register   chan *UserClient
	Unregister chan *UserClient
	broadcast  chan []byte
}

type RedisMessage struct {
	FromServerID string `json:"fromServerId"`
	Payload      []byte `json:"payload"`
}

func NewRedisHub(redisAddr string, serverID string) *RedisHub {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	hub := &RedisHub{
		clients:     make(map[string]*UserClient),
		redisClient: rdb,
		serverID:    serverID,
		Register:    make(chan *UserClient),
		Unregister:  make(chan *UserClient),
		broadcast:   make(chan []byte, 256),
	}

	hub.pubsub = rdb.Subscribe(context.Background(), broadcastChannel)

	return hub
}

func (h *RedisHub) Run() {
	go h.subscribeRedis()

	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client.Id] = client
			h.mu.Unlock()
			zap.L().Info("ws_client_connected",
				zap.String("server_id", h.serverID),
				zap.String("user_id", client.UserId),
				zap.String("client_id", client.Id))

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.Id]; ok {
				delete(h.clients, client.Id)
				client.closeSend()
				zap.L().Info("ws_client_disconnected",
					zap.String("server_id", h.serverID),
					zap.String("user_id", client.UserId),
					zap.String("client_id", client.Id))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.broadcastLocal(message)
			h.publishToRedis(message)
		}
	}
}

// subscribeRedis delivers broadcasts published by other servers to the
// clients connected here.
func (h *RedisHub) subscribeRedis() {
	ch := h.pubsub.Channel()

	zap.L().Info("redis_subscriber_started", zap.String("server_id", h.serverID))

	for msg := range ch {
		var redisMsg RedisMessage
		if err := json.Unmarshal([]byte(msg.Payload), &redisMsg); err != nil {
			zap.L().Error("redis_message_unmarshal_failed", zap.Error(err))
			continue
		}

		// Don't process messages we sent ourselves
		if redisMsg.FromServerID == h.serverID {
			continue
		}

		h.broadcastLocal(redisMsg.Payload)
	}
}

func (h *RedisHub) publishToRedis(message []byte) {
	ctx := context.Background()

	msgBytes, err := json.Marshal(RedisMessage{
		FromServerID: h.serverID,
		Payload:      message,
	})
	if err != nil {
		zap.L().Error("redis_message_marshal_failed", zap.Error(err))
		return
	}

	if err := h.redisClient.Publish(ctx, broadcastChannel, msgBytes).Err(); err != nil {
		zap.L().Error("redis_publish_failed", zap.String("server_id", h.serverID), zap.Error(err))
	}
}

func (h *RedisHub) broadcastLocal(message []byte) {
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

func (h *RedisHub) Broadcast(message []byte) {
	h.broadcast <- message
}

func (h *RedisHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *RedisHub) RegisterClient(client *UserClient) {
	h.Register <- client
}

func (h *RedisHub) UnregisterClient(client *UserClient) {
	h.Unregister <- client
}

func (h *RedisHub) Close() error {
	if err := h.pubsub.Close(); err != nil {
		return err
	}
	return h.redisClient.Close()
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"chatapp/infrastructure/ws"
	"chatapp/internal/entity"
	"chatapp/internal/store"
	"chatapp/internal/usecase"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type TokenValidator interface {
	ValidateAccessToken(token string) (*entity.TokenClaims, error)
}

// PostLimiter is the per-author limit shared with the HTTP post routes.
type PostLimiter interface {
	Allow(userId uuid.UUID) (bool, time.Duration, error)
}

const msgRateLimited = "too many messages, slow down"

type WebsocketHandler struct {
	hub       ws.IHub
	tokens    TokenValidator
	limiter   PostLimiter
	messageUc usecase.MessageUsecase
	log       *zap.Logger
}

// NewWebsocketHandler builds the socket endpoint. A nil limiter accepts every post.
func NewWebsocketHandler(hub ws.IHub, tokens TokenValidator, limiter PostLimiter, messageUc usecase.MessageUsecase, log *zap.Logger) *WebsocketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebsocketHandler{
		hub:       hub,
		tokens:    tokens,
		limiter:   limiter,
		messageUc: messageUc,
		log:       log,
	}
}

// HandleWebSocket authenticates with the token query parameter, since
// browsers cannot set headers on the upgrade request.
func (h *WebsocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws_upgrade_failed", zap.Error(err))
		return
	}

	client := ws.NewClient(claims.UserId.String(), h.hub, conn)
	h.hub.RegisterClient(client)

	ctx := r.Context()
	go client.WritePump()
	client.ReadPump(func(data []byte) {
		h.handleMessage(ctx, client, claims, data)
	})
}

func (h *WebsocketHandler) handleMessage(ctx context.Context, client *ws.UserClient, claims *entity.TokenClaims, data []byte) {
	var message IncomingMessage
	if err := json.Unmarshal(data, &message); err != nil {
		h.sendError(client, "invalid message frame")
		return
	}

	if h.limiter != nil {
		allowed, retryAfter, err := h.limiter.Allow(claims.UserId)
		if err != nil {
			h.log.Error("ws_rate_limit_failed", zap.String("user_id", client.UserId), zap.Error(err))
			h.sendError(client, "internal server error")
			return
		}
		if !allowed {
			h.log.Info("ws_post_rate_limited", zap.String("user_id", client.UserId), zap.Duration("retry_after", retryAfter))
			h.sendError(client, msgRateLimited)
			return
		}
	}

	if _, err := h.messageUc.PostMessage(ctx, claims.UserId, message.toRequest()); err != nil {
		h.log.Info("ws_post_rejected", zap.String("user_id", client.UserId), zap.Error(err))
		h.sendError(client, errorMessage(err))
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, usecase.ErrInvalidRequest):
		return err.Error()
	case errors.Is(err, usecase.ErrParentNotFound):
		return "parent message not found"
	case errors.Is(err, usecase.ErrConversationMismatch):
		return "reply conversation does not match parent"
	case errors.Is(err, store.ErrPersistenceWrite):
		return "message could not be stored"
	default:
		return "internal server error"
	}
}

func (h *WebsocketHandler) sendError(client *ws.UserClient, message string) {
	payload, err := json.Marshal(OutgoingError{
		Type: EventError,
		Data: ErrorData{Message: message},
	})
	if err != nil {
		h.log.Error("ws_marshal_failed", zap.Error(err))
		return
	}
	client.Send(payload)
}

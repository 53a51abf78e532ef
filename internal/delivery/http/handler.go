package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"chatapp/internal/entity"
	"chatapp/internal/store"
	"chatapp/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClientCounter reports connected websocket clients.
type ClientCounter interface {
	GetClientCount() int
}

type MessageHandler struct {
	messageUc usecase.MessageUsecase
	clients   ClientCounter
	log       *zap.Logger
}

func NewMessageHandler(messageUc usecase.MessageUsecase, clients ClientCounter, log *zap.Logger) *MessageHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageHandler{
		messageUc: messageUc,
		clients:   clients,
		log:       log,
	}
}

type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeResponse(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Message: message, Data: data})
}

// statusFor maps usecase and store errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, usecase.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, usecase.ErrMessageNotFound):
		return http.StatusNotFound, "message not found"
	case errors.Is(err, usecase.ErrParentNotFound):
		return http.StatusNotFound, "parent message not found"
	case errors.Is(err, usecase.ErrConversationMismatch):
		return http.StatusUnprocessableEntity, "reply conversation does not match parent"
	case errors.Is(err, store.ErrDuplicateMessage):
		return http.StatusConflict, "message already exists"
	case errors.Is(err, store.ErrPersistenceWrite):
		return http.StatusServiceUnavailable, "message could not be stored"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (h *MessageHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request_failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeResponse(w, status, message, nil)
}

func uuidParam(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

// Method Get /healthz
func (h *MessageHandler) Health(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if h.clients != nil {
		clients = h.clients.GetClientCount()
	}
	writeResponse(w, http.StatusOK, "ok", map[string]int{
		"count":   h.messageUc.Count(),
		"clients": clients,
	})
}

// Method Get /messages
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, "success", h.messageUc.All())
}

// Method Get /messages/count
func (h *MessageHandler) CountMessages(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, "success", map[string]int{"count": h.messageUc.Count()})
}

// Method Get /messages/{id}
func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeResponse(w, http.StatusBadRequest, "invalid message id", nil)
		return
	}

	message, err := h.messageUc.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeResponse(w, http.StatusOK, "success", message)
}

// Method Get /messages/{id}/replies
func (h *MessageHandler) GetReplies(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeResponse(w, http.StatusBadRequest, "invalid message id", nil)
		return
	}

	replies, err := h.messageUc.Replies(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeResponse(w, http.StatusOK, "success", replies)
}

// Method Get /conversations/{id}/messages
func (h *MessageHandler) GetConversationMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeResponse(w, http.StatusBadRequest, "invalid conversation id", nil)
		return
	}
	writeResponse(w, http.StatusOK, "success", h.messageUc.ConversationMessages(id))
}

// Method Get /authors/{id}/messages
func (h *MessageHandler) GetAuthorMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeResponse(w, http.StatusBadRequest, "invalid author id", nil)
		return
	}
	writeResponse(w, http.StatusOK, "success", h.messageUc.AuthorMessages(id))
}

// Method Post /messages
func (h *MessageHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req entity.PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	h.post(w, r, req)
}

// Method Post /messages/{id}/replies
func (h *MessageHandler) PostReply(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeResponse(w, http.StatusBadRequest, "invalid message id", nil)
		return
	}

	var req entity.PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	req.ParentMessageId = id.String()
	h.post(w, r, req)
}

func (h *MessageHandler) post(w http.ResponseWriter, r *http.Request, req entity.PostMessageRequest) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeResponse(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	message, err := h.messageUc.PostMessage(r.Context(), claims.UserId, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeResponse(w, http.StatusCreated, "message created", message)
}

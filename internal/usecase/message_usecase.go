package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatapp/internal/entity"
	"chatapp/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrMessageNotFound      = errors.New("message not found")
	ErrParentNotFound       = errors.New("parent message not found")
	ErrConversationMismatch = errors.New("reply conversation does not match parent")
)

const EventMessageCreated = "message.created"

var validate = validator.New()

// Publisher fans events out to connected clients.
type Publisher interface {
	Broadcast(message []byte)
}

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type MessageUsecase interface {
	PostMessage(ctx context.Context, authorId uuid.UUID, req entity.PostMessageRequest) (entity.Message, error)
	Get(id uuid.UUID) (entity.Message, error)
	ConversationMessages(conversationId uuid.UUID) []entity.Message
	Replies(messageId uuid.UUID) ([]entity.Message, error)
	AuthorMessages(authorId uuid.UUID) []entity.Message
	All() []entity.Message
	Count() int
}

type messageUsecase struct {
	store     *store.MessageStore
	publisher Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewMessageUsecase(messageStore *store.MessageStore, publisher Publisher, log *zap.Logger) MessageUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &messageUsecase{
		store:     messageStore,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (u *messageUsecase) PostMessage(ctx context.Context, authorId uuid.UUID, req entity.PostMessageRequest) (entity.Message, error) {
	if authorId == uuid.Nil {
		return entity.Message{}, fmt.Errorf("%w: missing author", ErrInvalidRequest)
	}
	if err := validate.Struct(req); err != nil {
		return entity.Message{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var conversationId uuid.UUID
	if req.ConversationId != "" {
		conversationId = uuid.MustParse(req.ConversationId)
	}

	placement := entity.TopLevel()
	if req.ParentMessageId != "" {
		parentId := uuid.MustParse(req.ParentMessageId)
		parent, ok := u.store.Get(parentId)
		if !ok {
			return entity.Message{}, fmt.Errorf("%w: %s", ErrParentNotFound, parentId)
		}
		switch {
		case conversationId == uuid.Nil:
			conversationId = parent.ConversationId()
		case conversationId != parent.ConversationId():
			return entity.Message{}, fmt.Errorf("%w: parent %s is in %s", ErrConversationMismatch, parentId, parent.ConversationId())
		}
		placement = entity.ReplyTo(parentId)
	}

	if conversationId == uuid.Nil {
		return entity.Message{}, fmt.Errorf("%w: conversationId is required", ErrInvalidRequest)
	}

	message := entity.NewMessage(uuid.New(), conversationId, authorId, req.Content, u.now(), placement)
	if err := u.store.Add(ctx, message); err != nil {
		return entity.Message{}, err
	}

	u.publish(Event{Type: EventMessageCreated, Data: message})
	return message, nil
}

func (u *messageUsecase) publish(event Event) {
	if u.publisher == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		u.log.Error("event_marshal_failed", zap.String("type", event.Type), zap.Error(err))
		return
	}
	u.publisher.Broadcast(payload)
}

func (u *messageUsecase) Get(id uuid.UUID) (entity.Message, error) {
	message, ok := u.store.Get(id)
	if !ok {
		return entity.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	return message, nil
}

func (u *messageUsecase) ConversationMessages(conversationId uuid.UUID) []entity.Message {
	return u.store.ByConversation(conversationId)
}

// Replies returns the direct replies to an existing message.
func (u *messageUsecase) Replies(messageId uuid.UUID) ([]entity.Message, error) {
	if _, ok := u.store.Get(messageId); !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageId)
	}
	return u.store.RepliesTo(messageId), nil
}

func (u *messageUsecase) AuthorMessages(authorId uuid.UUID) []entity.Message {
	return u.store.ByAuthor(authorId)
}

func (u *messageUsecase) All() []entity.Message {
	return u.store.All()
}

func (u *messageUsecase) Count() int {
	return u.store.Count()
}

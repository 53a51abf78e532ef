package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"chatapp/internal/entity"
	"chatapp/internal/repository"
	"chatapp/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	frames [][]byte
}

func (p *recordingPublisher) Broadcast(message []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, message)
}

func (p *recordingPublisher) events(t *testing.T) []map[string]any {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]map[string]any, 0, len(p.frames))
	for _, frame := range p.frames {
		var event map[string]any
		require.NoError(t, json.Unmarshal(frame, &event))
		out = append(out, event)
	}
	return out
}

type failingGateway struct{}

func (failingGateway) WriteThrough(context.Context, entity.Message) error {
	return errors.New("disk full")
}

func (failingGateway) LoadAll(context.Context) ([]entity.Message, error) {
	return nil, nil
}

func newUsecase(t *testing.T) (MessageUsecase, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	s := store.NewMessageStore(repository.NewMemoryGateway())
	return NewMessageUsecase(s, pub, nil), pub
}

func TestPostTopLevelMessage(t *testing.T) {
	uc, pub := newUsecase(t)
	author := uuid.New()
	conversation := uuid.New()

	msg, err := uc.PostMessage(context.Background(), author, entity.PostMessageRequest{
		ConversationId: conversation.String(),
		Content:        "hello",
	})
	require.NoError(t, err)

	assert.False(t, msg.IsReply())
	assert.Equal(t, author, msg.AuthorId())
	assert.Equal(t, conversation, msg.ConversationId())
	assert.Equal(t, []entity.Message{msg}, uc.ConversationMessages(conversation))
	assert.Equal(t, []entity.Message{msg}, uc.AuthorMessages(author))
	assert.Equal(t, 1, uc.Count())

	events := pub.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, EventMessageCreated, events[0]["type"])
	data := events[0]["data"].(map[string]any)
	assert.Equal(t, msg.Id().String(), data["id"])
}

func TestPostReplyInheritsConversation(t *testing.T) {
	uc, _ := newUsecase(t)
	conversation := uuid.New()

	parent, err := uc.PostMessage(context.Background(), uuid.New(), entity.PostMessageRequest{
		ConversationId: conversation.String(),
		Content:        "parent",
	})
	require.NoError(t, err)

	reply, err := uc.PostMessage(context.Background(), uuid.New(), entity.PostMessageRequest{
		ParentMessageId: parent.Id().String(),
		Content:         "reply",
	})
	require.NoError(t, err)

	parentId, ok := reply.ParentMessageId()
	require.True(t, ok)
	assert.Equal(t, parent.Id(), parentId)
	assert.Equal(t, conversation, reply.ConversationId())

	replies, err := uc.Replies(parent.Id())
	require.NoError(t, err)
	assert.Equal(t, []entity.Message{reply}, replies)
	assert.Equal(t, []entity.Message{parent}, uc.ConversationMessages(conversation))
}

func TestPostReplyErrors(t *testing.T) {
	uc, pub := newUsecase(t)

	parent, err := uc.PostMessage(context.Background(), uuid.New(), entity.PostMessageRequest{
		ConversationId: uuid.NewString(),
		Content:        "parent",
	})
	require.NoError(t, err)

	_, err = uc.PostMessage(context.Background(), uuid.New(), entity.PostMessageRequest{
		ParentMessageId: uuid.NewString(),
		Content:         "orphan",
	})
	assert.ErrorIs(t, err, ErrParentNotFound)

	_, err = uc.PostMessage(context.Background(), uuid.New(), entity.PostMessageRequest{
		ConversationId:  uuid.NewString(),
		ParentMessageId: parent.Id().String(),
		Content:         "elsewhere",
	})
	assert.ErrorIs(t, err, ErrConversationMismatch)

	assert.Equal(t, 1, uc.Count())
	assert.Len(t, pub.events(t), 1)
}

func TestPostValidation(t *testing.T) {
	uc, _ := newUsecase(t)
	author := uuid.New()

	cases := map[string]entity.PostMessageRequest{
		"empty content":        {ConversationId: uuid.NewString()},
		"content too long":     {ConversationId: uuid.NewString(), Content: strings.Repeat("x", 4097)},
		"missing conversation": {Content: "hi"},
		"bad conversation id":  {ConversationId: "nope", Content: "hi"},
		"bad parent id":        {ParentMessageId: "nope", Content: "hi"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := uc.PostMessage(context.Background(), author, req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	_, err := uc.PostMessage(context.Background(), uuid.Nil, entity.PostMessageRequest{
		ConversationId: uuid.NewString(),
		Content:        "hi",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, uc.Count())
}

func TestPostPersistenceFailureDoesNotPublish(t *testing.T) {
	pub := &recordingPublisher{}
	uc := NewMessageUsecase(store.NewMessageStore(failingGateway{}), pub, nil)

	_, err := uc.PostMessage(context.Background(), uuid.New(), entity.PostMessageRequest{
		ConversationId: uuid.NewString(),
		Content:        "hi",
	})
	assert.ErrorIs(t, err, store.ErrPersistenceWrite)
	assert.Empty(t, pub.events(t))
	assert.Zero(t, uc.Count())
}

func TestGetAndRepliesOfUnknownMessage(t *testing.T) {
	uc, _ := newUsecase(t)

	_, err := uc.Get(uuid.New())
	assert.ErrorIs(t, err, ErrMessageNotFound)

	_, err = uc.Replies(uuid.New())
	assert.ErrorIs(t, err, ErrMessageNotFound)

	assert.Empty(t, uc.All())
}

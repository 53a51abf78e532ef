package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidComparison = errors.New("message being compared is nil")

// Placement says where a message lives: directly in a conversation, or
// under another message as a reply.
type Placement struct {
	parent uuid.UUID
	reply  bool
}

func TopLevel() Placement {
	return Placement{}
}

func ReplyTo(parentId uuid.UUID) Placement {
	return Placement{parent: parentId, reply: true}
}

func (p Placement) IsReply() bool {
	return p.reply
}

// Parent returns the parent message id for replies.
func (p Placement) Parent() (uuid.UUID, bool) {
	return p.parent, p.reply
}

// Message is a post made by a user in a conversation. All fields are fixed
// at construction.
type Message struct {
	id             uuid.UUID
	conversationId uuid.UUID
	authorId       uuid.UUID
	content        string
	createdAt      time.Time
	placement      Placement
}

func NewMessage(id, conversationId, authorId uuid.UUID, content string, createdAt time.Time, placement Placement) Message {
	return Message{
		id:             id,
		conversationId: conversationId,
		authorId:       authorId,
		content:        content,
		createdAt:      createdAt,
		placement:      placement,
	}
}

func (m Message) Id() uuid.UUID {
	return m.id
}

func (m Message) ConversationId() uuid.UUID {
	return m.conversationId
}

func (m Message) AuthorId() uuid.UUID {
	return m.authorId
}

func (m Message) Content() string {
	return m.content
}

func (m Message) CreatedAt() time.Time {
	return m.createdAt
}

func (m Message) Placement() Placement {
	return m.placement
}

func (m Message) IsReply() bool {
	return m.placement.IsReply()
}

func (m Message) ParentMessageId() (uuid.UUID, bool) {
	return m.placement.Parent()
}

// Compare orders messages by creation time, then by id.
func (m Message) Compare(other *Message) (int, error) {
	if other == nil {
		return 0, ErrInvalidComparison
	}
	return compareMessages(m, *other), nil
}

func compareMessages(a, b Message) int {
	if !a.createdAt.Equal(b.createdAt) {
		if a.createdAt.Before(b.createdAt) {
			return -1
		}
		return 1
	}
	return bytes.Compare(a.id[:], b.id[:])
}

// SortMessages sorts in place by (createdAt, id), keeping equal elements in
// their original order.
func SortMessages(messages []Message) {
	slices.SortStableFunc(messages, compareMessages)
}

type messageJSON struct {
	Id              uuid.UUID  `json:"id"`
	ConversationId  uuid.UUID  `json:"conversationId"`
	AuthorId        uuid.UUID  `json:"authorId"`
	Content         string     `json:"content"`
	CreatedAt       time.Time  `json:"createdAt"`
	ParentMessageId *uuid.UUID `json:"parentMessageId,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{
		Id:             m.id,
		ConversationId: m.conversationId,
		AuthorId:       m.authorId,
		Content:        m.content,
		CreatedAt:      m.createdAt,
	}
	if parent, ok := m.placement.Parent(); ok {
		out.ParentMessageId = &parent
	}
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var in messageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	placement := TopLevel()
	if in.ParentMessageId != nil {
		placement = ReplyTo(*in.ParentMessageId)
	}
	*m = NewMessage(in.Id, in.ConversationId, in.AuthorId, in.Content, in.CreatedAt, placement)
	return nil
}

type PostMessageRequest struct {
	ConversationId  string `json:"conversationId" validate:"omitempty,uuid"`
	ParentMessageId string `json:"parentMessageId" validate:"omitempty,uuid"`
	Content         string `json:"content" validate:"required,max=4096"`
}

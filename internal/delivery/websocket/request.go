package websocket

import "chatapp/internal/entity"

// IncomingMessage is a post sent over the socket.
type IncomingMessage struct {
	ConversationId  string `json:"conversationId"`
	ParentMessageId string `json:"parentMessageId"`
	Content         string `json:"content"`
}

func (m IncomingMessage) toRequest() entity.PostMessageRequest {
	return entity.PostMessageRequest{
		ConversationId:  m.ConversationId,
		ParentMessageId: m.ParentMessageId,
		Content:         m.Content,
	}
}

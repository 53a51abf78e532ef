package repository

import (
	"context"
	"errors"
	"time"

	"chatapp/internal/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrInvalidRecord = errors.New("invalid message record")

const messagesCollection = "messages"

// MessageGateway is the durable side of the message store. WriteThrough must
// accept the same message twice; LoadAll returns messages in creation order.
type MessageGateway interface {
	WriteThrough(ctx context.Context, message entity.Message) error
	LoadAll(ctx context.Context) ([]entity.Message, error)
}

type messageDocument struct {
	Id              string    `bson:"_id"`
	ConversationId  string    `bson:"conversationId"`
	AuthorId        string    `bson:"authorId"`
	Content         string    `bson:"content"`
	CreatedAt       time.Time `bson:"createdAt"`
	ParentMessageId string    `bson:"parentMessageId,omitempty"`
}

func toDocument(message entity.Message) messageDocument {
	doc := messageDocument{
		Id:             message.Id().String(),
		ConversationId: message.ConversationId().String(),
		AuthorId:       message.AuthorId().String(),
		Content:        message.Content(),
		CreatedAt:      message.CreatedAt(),
	}
	if parent, ok := message.ParentMessageId(); ok {
		doc.ParentMessageId = parent.String()
	}
	return doc
}

// toMessage parses the string ids shared by the mongo and sqlite layouts.
func toMessage(id, conversationId, authorId, content string, createdAt time.Time, parentMessageId string) (entity.Message, error) {
	msgId, err := uuid.Parse(id)
	if err != nil {
		return entity.Message{}, errors.Join(ErrInvalidRecord, err)
	}
	convId, err := uuid.Parse(conversationId)
	if err != nil {
		return entity.Message{}, errors.Join(ErrInvalidRecord, err)
	}
	author, err := uuid.Parse(authorId)
	if err != nil {
		return entity.Message{}, errors.Join(ErrInvalidRecord, err)
	}

	placement := entity.TopLevel()
	if parentMessageId != "" {
		parent, err := uuid.Parse(parentMessageId)
		if err != nil {
			return entity.Message{}, errors.Join(ErrInvalidRecord, err)
		}
		placement = entity.ReplyTo(parent)
	}

	return entity.NewMessage(msgId, convId, author, content, createdAt, placement), nil
}

type mongoGateway struct {
	db mongo.Database
}

func NewMessageRepository(db mongo.Database) MessageGateway {
	return &mongoGateway{
		db: db,
	}
}

func (r *mongoGateway) WriteThrough(ctx context.Context, message entity.Message) error {
	collection := r.db.Collection(messagesCollection)
	doc := toDocument(message)
	filter := bson.M{"_id": doc.Id}

	_, err := collection.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}

func (r *mongoGateway) LoadAll(ctx context.Context) ([]entity.Message, error) {
	collection := r.db.Collection(messagesCollection)

	opts := options.Find()
	opts.SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []messageDocument
	err = cursor.All(ctx, &docs)
	if err != nil {
		return nil, err
	}

	messages := make([]entity.Message, 0, len(docs))
	for _, doc := range docs {
		message, err := toMessage(doc.Id, doc.ConversationId, doc.AuthorId, doc.Content, doc.CreatedAt, doc.ParentMessageId)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	return messages, nil
}

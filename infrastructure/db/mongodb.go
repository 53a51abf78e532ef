package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const MessagesCollection = "messages"

type MongoStore struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// NewMongoStore connects, pings and makes sure the message indexes exist.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri required")
	}
	if dbName == "" {
		return nil, errors.New("mongo database name required")
	}

	clientOpts := options.Client().ApplyURI(uri).
		SetMaxPoolSize(100)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	store := &MongoStore{
		Client: client,
		DB:     client.Database(dbName),
	}
	if err := store.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

// ensureIndexes backs the creation-order scan used on startup.
func (m *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := m.DB.Collection(MessagesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "conversationId", Value: 1}}},
		{Keys: bson.D{{Key: "authorId", Value: 1}}},
	})
	return err
}

func (m *MongoStore) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}
	disconnectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.Client.Disconnect(disconnectCtx)
}

func (m *MongoStore) Ping(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return errors.New("mongo client is nil")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.Client.Ping(pingCtx, nil)
}

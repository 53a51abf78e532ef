// Package store holds every known message in memory, indexed by conversation,
// author and parent message, and writes new messages through to a
// repository.MessageGateway before they become visible.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"chatapp/internal/entity"
	"chatapp/internal/metrics"
	"chatapp/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultWriteTimeout = 5 * time.Second

var (
	ErrPersistenceWrite = errors.New("persistence write failed")
	ErrDuplicateMessage = errors.New("message already exists")
)

// PersistenceWriteError reports a failed or timed out durable write. The
// store is left unchanged when it is returned.
type PersistenceWriteError struct {
	MessageId uuid.UUID
	Err       error
}

func (e *PersistenceWriteError) Error() string {
	return fmt.Sprintf("persistence write failed for message %s: %v", e.MessageId, e.Err)
}

func (e *PersistenceWriteError) Unwrap() error {
	return e.Err
}

func (e *PersistenceWriteError) Is(target error) bool {
	return target == ErrPersistenceWrite
}

type Option func(*MessageStore)

func WithLogger(log *zap.Logger) Option {
	return func(s *MessageStore) {
		s.log = log
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *MessageStore) {
		s.writeTimeout = d
	}
}

func WithMetrics(m *metrics.StoreMetrics) Option {
	return func(s *MessageStore) {
		s.metrics = m
	}
}

type MessageStore struct {
	gateway      repository.MessageGateway
	writeTimeout time.Duration
	log          *zap.Logger
	metrics      *metrics.StoreMetrics

	// writeMu serializes Add and BulkLoad so the primary collection keeps
	// the order in which writes reached the gateway.
	writeMu sync.Mutex

	mu             sync.RWMutex
	messages       []entity.Message
	byId           map[uuid.UUID]entity.Message
	byAuthor       map[uuid.UUID][]entity.Message
	byConversation map[uuid.UUID][]entity.Message // top-level messages only
	byParent       map[uuid.UUID][]entity.Message
}

func NewMessageStore(gateway repository.MessageGateway, opts ...Option) *MessageStore {
	s := &MessageStore{
		gateway:      gateway,
		writeTimeout: DefaultWriteTimeout,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reset(nil)
	return s
}

// reset replaces all state with records. Callers hold mu for writing, or own s
// exclusively.
func (s *MessageStore) reset(records []entity.Message) {
	s.messages = make([]entity.Message, 0, len(records))
	s.byId = make(map[uuid.UUID]entity.Message, len(records))
	s.byAuthor = make(map[uuid.UUID][]entity.Message)
	s.byConversation = make(map[uuid.UUID][]entity.Message)
	s.byParent = make(map[uuid.UUID][]entity.Message)
	for _, message := range records {
		s.insert(message)
	}
}

func (s *MessageStore) insert(message entity.Message) {
	s.messages = append(s.messages, message)
	if _, ok := s.byId[message.Id()]; !ok {
		s.byId[message.Id()] = message
	}
	s.byAuthor[message.AuthorId()] = append(s.byAuthor[message.AuthorId()], message)

	if parent, ok := message.ParentMessageId(); ok {
		s.byParent[parent] = append(s.byParent[parent], message)
		return
	}
	s.byConversation[message.ConversationId()] = append(s.byConversation[message.ConversationId()], message)
}

// BulkLoad replaces the store contents with records, in the given order.
func (s *MessageStore) BulkLoad(records []entity.Message) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.reset(records)
	n := len(s.messages)
	s.mu.Unlock()

	s.metrics.SetMessages(n)
	s.log.Info("message_store_loaded", zap.Int("count", n))
}

// Load seeds the store from the gateway, ordered by creation time then id.
func (s *MessageStore) Load(ctx context.Context) error {
	records, err := s.gateway.LoadAll(ctx)
	if err != nil {
		s.log.Error("message_store_load_failed", zap.Error(err))
		return fmt.Errorf("load messages: %w", err)
	}
	entity.SortMessages(records)
	s.BulkLoad(records)
	return nil
}

// Add writes message through to the gateway and, only once that succeeds,
// makes it visible in every index.
func (s *MessageStore) Add(ctx context.Context, message entity.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, exists := s.Get(message.Id()); exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMessage, message.Id())
	}

	started := time.Now()
	err := s.writeThrough(ctx, message)
	s.metrics.ObserveWrite(started, err)
	if err != nil {
		s.log.Error("message_write_failed",
			zap.String("message_id", message.Id().String()),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return &PersistenceWriteError{MessageId: message.Id(), Err: err}
	}

	s.mu.Lock()
	s.insert(message)
	n := len(s.messages)
	s.mu.Unlock()

	s.metrics.SetMessages(n)
	s.log.Debug("message_added",
		zap.String("message_id", message.Id().String()),
		zap.String("conversation_id", message.ConversationId().String()),
		zap.String("author_id", message.AuthorId().String()))
	return nil
}

// writeThrough bounds the gateway call by the write timeout even when the
// gateway itself ignores ctx.
func (s *MessageStore) writeThrough(ctx context.Context, message entity.Message) error {
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- s.gateway.WriteThrough(ctx, message)
	}()

	return awaitWrite(ctx, done)
}

// awaitWrite prefers a finished write over an expired ctx when both are ready.
func awaitWrite(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	select {
	case err := <-done:
		return err
	default:
		return ctx.Err()
	}
}

func (s *MessageStore) All() []entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.messages)
}

// ByAuthor returns the author's messages in insertion order; empty when the
// author never posted.
func (s *MessageStore) ByAuthor(authorId uuid.UUID) []entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.byAuthor[authorId])
}

// ByConversation returns the top-level messages of a conversation. Replies
// are reached through RepliesTo.
func (s *MessageStore) ByConversation(conversationId uuid.UUID) []entity.Message {
	if conversationId == uuid.Nil {
		return []entity.Message{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.byConversation[conversationId])
}

func (s *MessageStore) RepliesTo(messageId uuid.UUID) []entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.byParent[messageId])
}

func (s *MessageStore) Get(id uuid.UUID) (entity.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	message, ok := s.byId[id]
	return message, ok
}

func (s *MessageStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func clone(messages []entity.Message) []entity.Message {
	if len(messages) == 0 {
		return []entity.Message{}
	}
	return slices.Clone(messages)
}

package repository

import (
	"context"
	"slices"
	"sync"

	"chatapp/internal/entity"

	"github.com/google/uuid"
)

// MemoryGateway keeps messages in process memory. Nothing survives a
// restart; it backs PERSISTENCE_BACKEND=memory and tests.
type MemoryGateway struct {
	mu       sync.Mutex
	messages []entity.Message
	seen     map[uuid.UUID]struct{}
}

func NewMemoryGateway(seed ...entity.Message) *MemoryGateway {
	g := &MemoryGateway{
		seen: make(map[uuid.UUID]struct{}),
	}
	for _, message := range seed {
		g.put(message)
	}
	return g
}

func (g *MemoryGateway) WriteThrough(ctx context.Context, message entity.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.put(message)
	return nil
}

func (g *MemoryGateway) LoadAll(ctx context.Context) ([]entity.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	out := slices.Clone(g.messages)
	g.mu.Unlock()

	entity.SortMessages(out)
	return out, nil
}

func (g *MemoryGateway) put(message entity.Message) {
	if _, ok := g.seen[message.Id()]; ok {
		return
	}
	g.seen[message.Id()] = struct{}{}
	g.messages = append(g.messages, message)
}

var _ MessageGateway = (*MemoryGateway)(nil)

package repository

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"chatapp/internal/entity"

	"github.com/cockroachdb/pebble"
)

const messageKeyPrefix = "msg:"

type pebbleGateway struct {
	db *pebble.DB
}

// NewPebbleMessageRepository stores each message under
// msg:<created at, 12 sortable bytes><id> so that key order is creation order.
func NewPebbleMessageRepository(db *pebble.DB) MessageGateway {
	return &pebbleGateway{
		db: db,
	}
}

// messageKey encodes seconds with the sign bit flipped, then nanoseconds, both
// big-endian, so bytewise order matches time order on either side of 1970.
func messageKey(message entity.Message) []byte {
	createdAt := message.CreatedAt()
	id := message.Id().String()

	key := make([]byte, 0, len(messageKeyPrefix)+12+len(id))
	key = append(key, messageKeyPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(createdAt.Unix())^(1<<63))
	key = binary.BigEndian.AppendUint32(key, uint32(createdAt.Nanosecond()))
	return append(key, id...)
}

func (r *pebbleGateway) WriteThrough(ctx context.Context, message entity.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := r.db.Set(messageKey(message), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (r *pebbleGateway) LoadAll(ctx context.Context) ([]entity.Message, error) {
	prefix := []byte(messageKeyPrefix)
	iter, err := r.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var messages []entity.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var message entity.Message
		if err := json.Unmarshal(iter.Value(), &message); err != nil {
			return nil, fmt.Errorf("%w: key %x: %v", ErrInvalidRecord, iter.Key(), err)
		}
		messages = append(messages, message)
	}

	return messages, iter.Error()
}

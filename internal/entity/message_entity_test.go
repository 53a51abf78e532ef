package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestMessage(id uuid.UUID, at time.Time) Message {
	return NewMessage(id, uuid.New(), uuid.New(), "hello", at, TopLevel())
}

func TestCompareUsesTimestampFirst(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")

	earlier := newTestMessage(high, base)
	later := newTestMessage(low, base.Add(time.Millisecond))

	got, err := earlier.Compare(&later)
	require.NoError(t, err)
	assert.Equal(t, -1, got)

	got, err = later.Compare(&earlier)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestCompareFallsBackToId(t *testing.T) {
	low := uuid.MustParse("10000000-0000-0000-0000-000000000000")
	high := uuid.MustParse("20000000-0000-0000-0000-000000000000")

	a := newTestMessage(low, base)
	b := newTestMessage(high, base)

	got, err := a.Compare(&b)
	require.NoError(t, err)
	assert.Equal(t, -1, got)

	got, err = b.Compare(&a)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	same := newTestMessage(low, base)
	got, err = a.Compare(&same)
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestCompareNil(t *testing.T) {
	m := newTestMessage(uuid.New(), base)
	_, err := m.Compare(nil)
	assert.ErrorIs(t, err, ErrInvalidComparison)
}

func TestSortMessages(t *testing.T) {
	idA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	idB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	idC := uuid.MustParse("00000000-0000-0000-0000-00000000000c")

	a := newTestMessage(idA, base.Add(time.Second))
	b := newTestMessage(idB, base)
	c := newTestMessage(idC, base.Add(time.Second))

	messages := []Message{c, a, b}
	SortMessages(messages)

	assert.Equal(t, []uuid.UUID{idB, idA, idC}, []uuid.UUID{messages[0].Id(), messages[1].Id(), messages[2].Id()})
}

func TestPlacement(t *testing.T) {
	top := TopLevel()
	assert.False(t, top.IsReply())
	_, ok := top.Parent()
	assert.False(t, ok)

	parent := uuid.New()
	reply := ReplyTo(parent)
	assert.True(t, reply.IsReply())
	got, ok := reply.Parent()
	assert.True(t, ok)
	assert.Equal(t, parent, got)
}

func TestMessageJSON(t *testing.T) {
	parent := uuid.New()
	m := NewMessage(uuid.New(), uuid.New(), uuid.New(), "a reply", base, ReplyTo(parent))

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"parentMessageId":"`+parent.String()+`"`)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, m.Id(), decoded.Id())
	assert.Equal(t, m.ConversationId(), decoded.ConversationId())
	assert.Equal(t, m.AuthorId(), decoded.AuthorId())
	assert.Equal(t, "a reply", decoded.Content())
	assert.True(t, m.CreatedAt().Equal(decoded.CreatedAt()))
	gotParent, ok := decoded.ParentMessageId()
	assert.True(t, ok)
	assert.Equal(t, parent, gotParent)

	top := newTestMessage(uuid.New(), base)
	data, err = json.Marshal(top)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "parentMessageId")
}

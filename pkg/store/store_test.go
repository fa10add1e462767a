package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/minhyannv/function-call-go/pkg/chat"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConversation(t *testing.T, id string) *chat.Conversation {
	t.Helper()
	conv, err := chat.Restore(id, []chat.Message{
		chat.System("You are a helpful assistant."),
		chat.User("What's the weather like in Boston?"),
		chat.Assistant("", chat.ToolCall{ID: "call_1", Name: "get_current_weather", Arguments: `{"location":"Boston, MA"}`}),
	})
	require.NoError(t, err)
	require.NoError(t, conv.AppendToolResults([]chat.ToolResult{{
		CallID:  "call_1",
		Payload: json.RawMessage(`{"ok":true,"tool":"get_current_weather","data":{"temperature":"72"}}`),
	}}))
	require.NoError(t, conv.Append(chat.Assistant("It is 72 degrees in Boston.")))
	return conv
}

func runContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("save and load", func(t *testing.T) {
		conv := sampleConversation(t, "conv-a")
		require.NoError(t, s.Save(ctx, conv))

		loaded, err := s.Load(ctx, "conv-a")
		require.NoError(t, err)
		assert.Equal(t, "conv-a", loaded.ID)
		assert.Equal(t, conv.Messages(), loaded.Messages())
		assert.False(t, loaded.AwaitingResults())
	})

	t.Run("load missing", func(t *testing.T) {
		_, err := s.Load(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save replaces", func(t *testing.T) {
		conv := sampleConversation(t, "conv-b")
		require.NoError(t, s.Save(ctx, conv))
		require.NoError(t, conv.Append(chat.User("thanks")))
		require.NoError(t, s.Save(ctx, conv))

		loaded, err := s.Load(ctx, "conv-b")
		require.NoError(t, err)
		assert.Equal(t, conv.Len(), loaded.Len())
	})

	t.Run("list and delete", func(t *testing.T) {
		ids, err := s.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, "conv-a")
		assert.Contains(t, ids, "conv-b")

		require.NoError(t, s.Delete(ctx, "conv-a"))
		_, err = s.Load(ctx, "conv-a")
		assert.ErrorIs(t, err, ErrNotFound)

		ids, err = s.List(ctx)
		require.NoError(t, err)
		assert.NotContains(t, ids, "conv-a")
	})

	t.Run("pending tool calls survive", func(t *testing.T) {
		conv, err := chat.NewConversation(chat.User("hi"))
		require.NoError(t, err)
		require.NoError(t, conv.Append(chat.Assistant("", chat.ToolCall{ID: "call_9", Name: "noop"})))
		require.NoError(t, s.Save(ctx, conv))

		loaded, err := s.Load(ctx, conv.ID)
		require.NoError(t, err)
		assert.True(t, loaded.AwaitingResults())
	})
}

func TestMemoryStore(t *testing.T) {
	runContract(t, NewMemory())
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	_, client := newMiniredis(t)
	s := NewRedisFromClient(client)
	require.NoError(t, s.Ping(context.Background()))
	runContract(t, s)
}

func TestRedisStoreTTL(t *testing.T) {
	mr, client := newMiniredis(t)
	s := NewRedisFromClient(client, WithTTL(time.Minute), WithPrefix("test:"))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleConversation(t, "conv-ttl")))
	assert.True(t, mr.Exists("test:conv-ttl"))
	assert.Equal(t, time.Minute, mr.TTL("test:conv-ttl"))

	mr.FastForward(2 * time.Minute)
	_, err := s.Load(ctx, "conv-ttl")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreRejectsCorruptRecord(t *testing.T) {
	mr, client := newMiniredis(t)
	s := NewRedisFromClient(client)
	require.NoError(t, mr.Set(DefaultPrefix+"broken", "{not json"))

	_, err := s.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

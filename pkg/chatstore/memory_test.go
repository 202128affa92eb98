package chatstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreFetchUnknownUser(t *testing.T) {
	s := NewMemoryStore()

	turns, err := s.Fetch(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, turns)
	assert.Empty(t, turns)
}

func TestMemoryStoreAppendPreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.Append(ctx, "u1", UserTurn("I feel anxious", "", now), BotTurn("It's okay", now)))
	require.NoError(t, s.Append(ctx, "u1", UserTurn("thanks", "uploads/1-cat.png", now.Add(time.Second))))

	turns, err := s.Fetch(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, KindUser, turns[0].Kind)
	assert.Equal(t, "I feel anxious", turns[0].Text)
	assert.Equal(t, KindBot, turns[1].Kind)
	assert.Equal(t, "uploads/1-cat.png", turns[2].ImageRef)

	other, err := s.Fetch(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryStoreFetchReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Append(ctx, "u1", Turn{Kind: KindBot, Text: "hi", Metadata: map[string]interface{}{"model": "m"}}))

	turns, err := s.Fetch(ctx, "u1")
	require.NoError(t, err)
	turns[0].Text = "changed"
	turns[0].Metadata["model"] = "changed"

	again, err := s.Fetch(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "hi", again[0].Text)
	assert.Equal(t, "m", again[0].Metadata["model"])
}

func TestMemoryStoreClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Append(ctx, "u1", UserTurn("hello", "", time.Now())))

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Clear(ctx, "u1"))
		turns, err := s.Fetch(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, turns)
	}
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := fmt.Sprintf("message %d", i)
			assert.NoError(t, s.Append(ctx, "shared", UserTurn(msg, "", time.Now()), BotTurn("reply to "+msg, time.Now())))
		}(i)
	}
	wg.Wait()

	turns, err := s.Fetch(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, turns, writers*2)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, KindUser, turns[i].Kind)
		assert.Equal(t, KindBot, turns[i+1].Kind)
		assert.Equal(t, "reply to "+turns[i].Text, turns[i+1].Text, "pairs must stay contiguous")
	}
}

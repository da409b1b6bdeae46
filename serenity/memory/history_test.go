package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadUnknownIdentity(t *testing.T) {
	s := NewHistoryStore(0)
	turns := s.Read("nobody")
	assert.NotNil(t, turns)
	assert.Empty(t, turns)
	assert.Equal(t, DefaultMaxTurns, s.MaxTurns())
}

func TestAppendKeepsMostRecentInOrder(t *testing.T) {
	s := NewHistoryStore(20)
	for i := range 15 {
		s.Append("u1", fmt.Sprintf("user-%d", i), fmt.Sprintf("assistant-%d", i))
	}

	turns := s.Read("u1")
	require.Len(t, turns, 20)

	// 30 turns were written; the first 10 (pairs 0..4) are evicted.
	for i, turn := range turns {
		pair := 5 + i/2
		if i%2 == 0 {
			assert.Equal(t, Turn{Role: RoleUser, Content: fmt.Sprintf("user-%d", pair)}, turn)
		} else {
			assert.Equal(t, Turn{Role: RoleAssistant, Content: fmt.Sprintf("assistant-%d", pair)}, turn)
		}
	}
}

func TestReadReturnsCopy(t *testing.T) {
	s := NewHistoryStore(20)
	s.Append("u1", "hi", "hello")

	turns := s.Read("u1")
	turns[0].Content = "mutated"

	assert.Equal(t, "hi", s.Read("u1")[0].Content)
}

func TestIdentitiesAreIsolated(t *testing.T) {
	s := NewHistoryStore(20)
	s.Append("a", "a1", "a2")
	s.Append("b", "b1", "b2")

	assert.Equal(t, "a1", s.Read("a")[0].Content)
	assert.Equal(t, "b1", s.Read("b")[0].Content)
	assert.Equal(t, []string{"a", "b"}, s.Identities())
}

func TestConcurrentAppendNeverExceedsCap(t *testing.T) {
	s := NewHistoryStore(20)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				s.Append("shared", fmt.Sprintf("u%d-%d", g, i), "ok")
				assert.LessOrEqual(t, len(s.Read("shared")), 20)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, s.Len("shared"))
}

func TestHydrateRunsOnce(t *testing.T) {
	s := NewHistoryStore(20)
	calls := 0
	load := func(context.Context) ([]Turn, error) {
		calls++
		return []Turn{{Role: RoleUser, Content: "earlier"}, {Role: RoleAssistant, Content: "reply"}}, nil
	}

	require.NoError(t, s.Hydrate(context.Background(), "u1", load))
	require.NoError(t, s.Hydrate(context.Background(), "u1", load))
	assert.Equal(t, 1, calls)

	s.Append("u1", "now", "answer")
	turns := s.Read("u1")
	require.Len(t, turns, 4)
	assert.Equal(t, "earlier", turns[0].Content)
	assert.Equal(t, "answer", turns[3].Content)
}

func TestHydrateRetriesAfterFailure(t *testing.T) {
	s := NewHistoryStore(20)
	boom := errors.New("db down")

	err := s.Hydrate(context.Background(), "u1", func(context.Context) ([]Turn, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	err = s.Hydrate(context.Background(), "u1", func(context.Context) ([]Turn, error) {
		return []Turn{{Role: RoleUser, Content: "x"}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len("u1"))
}

func TestHydrateTruncatesToCap(t *testing.T) {
	s := NewHistoryStore(4)
	var loaded []Turn
	for i := range 10 {
		loaded = append(loaded, Turn{Role: RoleUser, Content: fmt.Sprint(i)})
	}
	require.NoError(t, s.Hydrate(context.Background(), "u1", func(context.Context) ([]Turn, error) { return loaded, nil }))

	turns := s.Read("u1")
	require.Len(t, turns, 4)
	assert.Equal(t, "6", turns[0].Content)
}

func TestLockSerializesPerIdentity(t *testing.T) {
	s := NewHistoryStore(20)

	unlockA := s.Lock("a")
	// A different identity is not blocked.
	unlockB := s.Lock("b")
	unlockB()

	acquired := make(chan struct{})
	go func() {
		unlock := s.Lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock on the same identity must wait")
	default:
	}
	unlockA()
	<-acquired
}

// Package memory holds the volatile per-identity conversation history.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// DefaultMaxTurns is the number of turns kept per identity.
const DefaultMaxTurns = 20

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LoadFunc fetches previously persisted turns, oldest first.
type LoadFunc func(ctx context.Context) ([]Turn, error)

type conversation struct {
	// turn serializes whole turns for one identity; see HistoryStore.Lock.
	turn sync.Mutex

	mu       sync.RWMutex
	turns    []Turn
	hydrated bool
}

// HistoryStore keeps the most recent turns for each identity in memory.
// Conversations are created lazily and live for the lifetime of the process.
type HistoryStore struct {
	mu       sync.Mutex
	convs    map[string]*conversation
	maxTurns int
}

// NewHistoryStore returns a store capped at maxTurns per identity.
// A non-positive maxTurns uses DefaultMaxTurns.
func NewHistoryStore(maxTurns int) *HistoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &HistoryStore{convs: make(map[string]*conversation), maxTurns: maxTurns}
}

// MaxTurns reports the per-identity cap.
func (s *HistoryStore) MaxTurns() int { return s.maxTurns }

func (s *HistoryStore) get(identity string, create bool) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[identity]
	if !ok && create {
		c = &conversation{}
		s.convs[identity] = c
	}
	return c
}

// Read returns a copy of the stored turns for identity, oldest first.
// Unknown identities yield an empty slice.
func (s *HistoryStore) Read(identity string) []Turn {
	c := s.get(identity, false)
	if c == nil {
		return []Turn{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.turns)
}

// Append adds a user turn and the assistant reply, then drops the oldest
// turns beyond the cap.
func (s *HistoryStore) Append(identity, user, assistant string) {
	c := s.get(identity, true)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns,
		Turn{Role: RoleUser, Content: user},
		Turn{Role: RoleAssistant, Content: assistant},
	)
	c.turns = s.truncate(c.turns)
}

// Hydrate seeds identity from load the first time it succeeds. Later calls are
// no-ops. Seeded turns are placed before anything already stored.
func (s *HistoryStore) Hydrate(ctx context.Context, identity string, load LoadFunc) error {
	c := s.get(identity, true)

	c.mu.RLock()
	done := c.hydrated
	c.mu.RUnlock()
	if done {
		return nil
	}

	loaded, err := load(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hydrated {
		return nil
	}
	c.turns = s.truncate(append(slices.Clone(loaded), c.turns...))
	c.hydrated = true
	return nil
}

// Lock acquires the per-identity turn lock and returns its release function.
// Holding it across read, generation and append keeps one identity's turns
// in order without blocking other identities.
func (s *HistoryStore) Lock(identity string) (unlock func()) {
	c := s.get(identity, true)
	c.turn.Lock()
	return c.turn.Unlock
}

// Len reports the number of stored turns for identity.
func (s *HistoryStore) Len(identity string) int {
	c := s.get(identity, false)
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Identities lists known identities in sorted order.
func (s *HistoryStore) Identities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *HistoryStore) truncate(turns []Turn) []Turn {
	if over := len(turns) - s.maxTurns; over > 0 {
		// copy so the evicted prefix can be collected
		return slices.Clone(turns[over:])
	}
	return turns
}

package harnessports

import (
	"context"

	"github.com/ZanzyTHEbar/serenity/serenity/memory"
)

// HistoryArchive is the durable copy of conversation history. The in-memory
// store consults it once per identity to hydrate, and hands it every
// completed exchange without waiting on the result.
type HistoryArchive interface {
	LoadRecent(ctx context.Context, identity string, limit int) ([]memory.Turn, error)
	Persist(ctx context.Context, identity string, user, assistant memory.Turn) error
}

// Escalator raises a human follow-up for a crisis message.
type Escalator interface {
	Notify(ctx context.Context, identity, message string) error
}

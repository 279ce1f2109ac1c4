// Package state persists the compact conversational state carried across
// turns: the compiled state message plus the last few turns, keyed by
// conversation id. Best-effort only; reads fall back to empty and writes
// are fire-and-forget.
package state

import (
	"context"
	"time"

	"github.com/ImMrLucky/spectyra/message"
)

// DefaultTTL is the lifetime of a conversation state entry.
const DefaultTTL = 24 * time.Hour

// Entry is the persisted conversational state.
type Entry struct {
	StateMsg message.Message   `json:"stateMsg"`
	LastTurn []message.Message `json:"lastTurn"`
}

// Store is the conversation state backend. Get returns (entry, found,
// error); missing conversations are not errors. Implementations are safe
// for concurrent use; a racing reader may see either the new entry or none.
type Store interface {
	Get(ctx context.Context, conversationID string) (Entry, bool, error)
	Set(ctx context.Context, conversationID string, e Entry, ttl time.Duration) error
	Close() error
}

// Key returns the keyspace entry for a conversation id.
func Key(conversationID string) string {
	return "state:" + conversationID
}

package cache

import (
	"fmt"
	"time"
)

// MessageGate drops messages that were already handled, e.g. an update delivered twice.
type MessageGate struct {
	seen *Cache[struct{}]
}

// NewMessageGate remembers handled messages for window.
func NewMessageGate(window time.Duration) *MessageGate {
	return &MessageGate{seen: NewCache[struct{}](window)}
}

// First reports whether msgID in chatID is seen for the first time and records it.
func (g *MessageGate) First(chatID int64, msgID int32) bool {
	return g.seen.SetIfAbsent(fmt.Sprintf("%d:%d", chatID, msgID), struct{}{})
}

// Sweep forgets entries older than the window.
func (g *MessageGate) Sweep() int {
	return g.seen.Purge()
}

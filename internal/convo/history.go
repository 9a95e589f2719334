// Package convo manages per-session conversation state: the bounded
// chat history and the reply cache keyed by normalized conversation
// fingerprints.
package convo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leochui/tifa-api/internal/store"
)

// Roles for chat messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxHistoryMessages caps how many messages are kept per session.
const MaxHistoryMessages = 12

// DefaultHistoryTTL matches the session cookie lifetime.
const DefaultHistoryTTL = 30 * 24 * time.Hour

// Message is one turn of a conversation.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// History reads and writes per-session chat history.
type History struct {
	store store.Store
	ttl   time.Duration
}

// NewHistory creates a history accessor. A zero ttl falls back to the
// session cookie lifetime.
func NewHistory(st store.Store, ttl time.Duration) *History {
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &History{store: st, ttl: ttl}
}

// Load returns the session's history, oldest first. A missing or
// unreadable record yields an empty history.
func (h *History) Load(ctx context.Context, sessionID string) ([]Message, error) {
	data, err := h.store.Get(ctx, "chat:"+sessionID)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("history read: %w", err)
	}

	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, nil
	}
	return msgs, nil
}

// Save overwrites the session's history, keeping only the most recent
// MaxHistoryMessages entries. Last write wins; concurrent turns from
// the same session may lose an append, which is acceptable for
// human-speed conversations.
func (h *History) Save(ctx context.Context, sessionID string, msgs []Message) error {
	if len(msgs) > MaxHistoryMessages {
		msgs = msgs[len(msgs)-MaxHistoryMessages:]
	}

	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("history marshal: %w", err)
	}
	if err := h.store.Put(ctx, "chat:"+sessionID, data, h.ttl); err != nil {
		return fmt.Errorf("history write: %w", err)
	}
	return nil
}

// Signature folds the recent history into a deterministic string so the
// same question asked in a different conversational context never hits
// a stale cached answer.
func Signature(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	if len(msgs) > MaxHistoryMessages {
		msgs = msgs[len(msgs)-MaxHistoryMessages:]
	}

	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Role+":"+NormalizeText(m.Text))
	}
	return strings.Join(parts, "|")
}

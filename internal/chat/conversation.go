package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agentdash/internal/storage"
)

// DefaultMaxMessages bounds the persisted conversation log.
const DefaultMaxMessages = 100

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation log.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	AssetID   string    `json:"asset_id,omitempty"`
}

// Conversation is the append-only message log. Only the newest maxMessages
// entries are retained.
type Conversation struct {
	mu       sync.RWMutex
	backend  storage.Backend
	logger   zerolog.Logger
	max      int
	now      func() time.Time
	messages []Message
}

// LoadConversation restores the log from the conversation slot.
func LoadConversation(ctx context.Context, backend storage.Backend, maxMessages int, logger zerolog.Logger) (*Conversation, error) {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	c := &Conversation{
		backend: backend,
		logger:  logger.With().Str("component", "conversation").Logger(),
		max:     maxMessages,
		now:     time.Now,
	}

	messages, err := storage.Get(ctx, backend, storage.KeyConversation, []Message{})
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			return nil, err
		}
		c.logger.Warn().Err(err).Msg("conversation slot unreadable; starting empty")
	}
	c.messages = trimNewest(messages, c.max)
	return c, nil
}

// Append adds a message and persists the log before returning.
func (c *Conversation) Append(ctx context.Context, role Role, content, assetID string) (Message, error) {
	msg := Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		Timestamp: c.now().UTC(),
		AssetID:   assetID,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]Message, 0, len(c.messages)+1)
	next = append(next, c.messages...)
	next = trimNewest(append(next, msg), c.max)
	if err := storage.Set(ctx, c.backend, storage.KeyConversation, next); err != nil {
		return Message{}, err
	}
	c.messages = next
	return msg, nil
}

// Recent returns up to n of the newest messages, oldest first.
func (c *Conversation) Recent(n int) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	return cloneMessages(trimNewest(c.messages, n))
}

// Messages returns a copy of the whole log.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneMessages(c.messages)
}

// Len reports the number of retained messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Clear empties the log.
func (c *Conversation) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := storage.Set(ctx, c.backend, storage.KeyConversation, []Message{}); err != nil {
		return err
	}
	c.messages = nil
	return nil
}

func trimNewest(messages []Message, n int) []Message {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

func cloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}

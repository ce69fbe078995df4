package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps conversation history in process memory. Suitable for
// development and tests; data is lost on restart.
type MemoryStore struct {
	mu            sync.RWMutex
	messages      map[string]*Message
	conversations map[string][]string
	closed        bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:      make(map[string]*Message),
		conversations: make(map[string][]string),
	}
}

func (s *MemoryStore) SaveMessage(_ context.Context, msg *Message) error {
	if msg == nil || msg.ConversationID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	if _, seen := s.messages[msg.ID]; !seen {
		s.conversations[msg.ConversationID] = append(s.conversations[msg.ConversationID], msg.ID)
	}
	stored := *msg
	s.messages[msg.ID] = &stored

	return nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	msg, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	cp := *msg
	return &cp, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID, cursor string, limit int) ([]*Message, string, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, "", ErrStoreClosed
	}

	ids := s.conversations[conversationID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}

	result := make([]*Message, 0, limit)
	for _, id := range ids[min(start, len(ids)):] {
		msg, ok := s.messages[id]
		if !ok {
			continue
		}
		cp := *msg
		result = append(result, &cp)
		if len(result) >= limit {
			break
		}
	}

	nextCursor := ""
	if len(result) == limit {
		nextCursor = result[len(result)-1].ID
	}
	return result, nextCursor, nil
}

func (s *MemoryStore) CountMessages(_ context.Context, conversationID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	return int64(len(s.conversations[conversationID])), nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

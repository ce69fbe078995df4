// Package conversation persists the message history that delegation and
// transfer actions append to. Every delegation writes exactly one message,
// success or failure, so downstream consumers see a uniform record
// independent of internal-vs-external routing.
//
// Supported backends:
// - Memory: for development and testing (default)
// - Redis: for distributed deployments
// - MongoDB: for deployments that keep history long-term
package conversation

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound     = errors.New("conversation: message not found")
	ErrInvalidInput = errors.New("conversation: invalid message")
	ErrStoreClosed  = errors.New("conversation: store is closed")
)

// MessageStatus records whether the exchange behind a message succeeded.
type MessageStatus string

const (
	// MessageStatusCompleted indicates the exchange produced a result.
	MessageStatusCompleted MessageStatus = "completed"

	// MessageStatusFailed indicates the exchange failed; Error carries why.
	MessageStatusFailed MessageStatus = "failed"
)

// Message is one entry in a conversation's history.
type Message struct {
	// ID is the unique identifier for the message.
	ID string `json:"id" bson:"_id"`

	// ConversationID is the conversation the message belongs to.
	ConversationID string `json:"conversation_id" bson:"conversation_id"`

	// FromAgentID is the agent that produced the message.
	FromAgentID string `json:"from_agent_id,omitempty" bson:"from_agent_id,omitempty"`

	// ToAgentID is the agent the message was addressed to, if any.
	ToAgentID string `json:"to_agent_id,omitempty" bson:"to_agent_id,omitempty"`

	// Kind tags what produced the message (transfer, delegate, ...).
	Kind string `json:"kind,omitempty" bson:"kind,omitempty"`

	// Content is the message payload as text.
	Content string `json:"content" bson:"content"`

	// Status records the outcome of the exchange.
	Status MessageStatus `json:"status" bson:"status"`

	// Error is the failure detail when Status is failed.
	Error string `json:"error,omitempty" bson:"error,omitempty"`

	// Metadata carries backend-agnostic annotations.
	Metadata map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`

	// CreatedAt is when the message was recorded.
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Failed reports whether the message records a failed exchange.
func (m *Message) Failed() bool {
	return m.Status == MessageStatusFailed
}

// Store persists conversation messages. Implementations fill in a missing
// ID and CreatedAt on save; saving the same ID twice replaces the record.
type Store interface {
	// SaveMessage persists a single message.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ListMessages retrieves a conversation's messages in creation order.
	// The cursor is backend-opaque: pass "" for the first page and the
	// returned cursor for the next; an empty returned cursor means the
	// listing is exhausted.
	ListMessages(ctx context.Context, conversationID, cursor string, limit int) ([]*Message, string, error)

	// CountMessages returns the number of messages in a conversation.
	CountMessages(ctx context.Context, conversationID string) (int64, error)

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}

// DefaultListLimit bounds a single ListMessages page when the caller does
// not supply a positive limit.
const DefaultListLimit = 100

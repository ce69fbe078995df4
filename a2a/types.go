// Package a2a implements the agent-to-agent wire protocol: card discovery
// at the well-known path and synchronous message exchange over HTTP.
package a2a

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind tags what a message carries.
type MessageKind string

const (
	// MessageKindTask is a request for the remote agent to do something.
	MessageKindTask MessageKind = "task"
	// MessageKindResult carries the outcome of a task.
	MessageKindResult MessageKind = "result"
	// MessageKindError reports a failure while handling a task.
	MessageKindError MessageKind = "error"
)

// IsValid checks whether the kind is a known message kind.
func (k MessageKind) IsValid() bool {
	switch k {
	case MessageKindTask, MessageKindResult, MessageKindError:
		return true
	default:
		return false
	}
}

// Message is one agent-to-agent exchange unit.
type Message struct {
	// ID is the unique identifier for this message.
	ID string `json:"id"`
	// Kind is the message kind (task, result, error).
	Kind MessageKind `json:"kind"`
	// From identifies the sending agent.
	From string `json:"from"`
	// To identifies the receiving agent.
	To string `json:"to"`
	// ConversationID ties the exchange to a conversation, if any.
	ConversationID string `json:"conversation_id,omitempty"`
	// Payload carries the message data.
	Payload any `json:"payload"`
	// Timestamp is when the message was created.
	Timestamp time.Time `json:"timestamp"`
	// ReplyTo is the ID of the message this one answers, if any.
	ReplyTo string `json:"reply_to,omitempty"`
}

// NewTaskMessage creates a task request with a generated ID and current
// timestamp.
func NewTaskMessage(from, to string, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Kind:      MessageKindTask,
		From:      from,
		To:        to,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// NewResultMessage creates a result answering a task.
func NewResultMessage(from, to string, payload any, replyTo string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Kind:      MessageKindResult,
		From:      from,
		To:        to,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		ReplyTo:   replyTo,
	}
}

// Validate checks that the message has all required fields.
func (m *Message) Validate() error {
	if !m.Kind.IsValid() {
		return ErrMessageInvalidKind
	}
	if m.From == "" {
		return ErrMessageMissingFrom
	}
	if m.To == "" {
		return ErrMessageMissingTo
	}
	return nil
}

// AgentCard describes a remote agent: where to reach it and what it can
// do. Served by the agent at /.well-known/agent.json.
type AgentCard struct {
	// Name is the unique identifier for this agent.
	Name string `json:"name"`
	// Description is a human-readable account of the agent's purpose.
	Description string `json:"description,omitempty"`
	// URL is the base endpoint where the agent accepts messages.
	URL string `json:"url"`
	// Version is the agent's version.
	Version string `json:"version"`
	// Capabilities names what the agent offers.
	Capabilities []string `json:"capabilities,omitempty"`
	// Metadata holds additional key-value pairs for extensibility.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks that the card has all required fields.
func (c *AgentCard) Validate() error {
	if c.Name == "" {
		return ErrMissingName
	}
	if c.URL == "" {
		return ErrMissingURL
	}
	if c.Version == "" {
		return ErrMissingVersion
	}
	return nil
}

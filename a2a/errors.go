package a2a

import "errors"

// Agent card validation errors.
var (
	// ErrMissingName indicates the agent card lacks a name.
	ErrMissingName = errors.New("agent card: missing name")
	// ErrMissingURL indicates the agent card lacks a url.
	ErrMissingURL = errors.New("agent card: missing url")
	// ErrMissingVersion indicates the agent card lacks a version.
	ErrMissingVersion = errors.New("agent card: missing version")
)

// Protocol errors.
var (
	// ErrRemoteUnavailable indicates the remote agent could not be reached
	// or answered with an error status.
	ErrRemoteUnavailable = errors.New("a2a: remote agent unavailable")
	// ErrInvalidMessage indicates a malformed message on either side of
	// the exchange.
	ErrInvalidMessage = errors.New("a2a: invalid message format")
	// ErrClientClosed indicates an operation on a closed client.
	ErrClientClosed = errors.New("a2a: client is closed")
)

// Message validation errors.
var (
	// ErrMessageInvalidKind indicates an unknown message kind.
	ErrMessageInvalidKind = errors.New("a2a message: invalid kind")
	// ErrMessageMissingFrom indicates the message lacks a sender.
	ErrMessageMissingFrom = errors.New("a2a message: missing from")
	// ErrMessageMissingTo indicates the message lacks a recipient.
	ErrMessageMissingTo = errors.New("a2a message: missing to")
)

package health

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/weaverun/weave/types"
)

// Kind classifies the failure of a health probe.
type Kind int

const (
	// KindConnection covers transport, protocol, and unclassifiable failures.
	KindConnection Kind = iota
	// KindAuth covers authentication and authorization rejections.
	KindAuth
	// KindTimeout covers deadline expirations.
	KindTimeout
)

// String returns the kind's log label.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindTimeout:
		return "timeout"
	default:
		return "connection"
	}
}

// Classifier decides what a failed probe means for the server's recorded
// status. Auth-kind failures become needs_auth; everything else becomes
// unhealthy.
type Classifier interface {
	Classify(err error) Kind
}

// HeuristicClassifier is the default classifier. Typed error codes win;
// the HTTP status and the message text are fallbacks for errors that
// arrive untyped from transports or remote servers.
type HeuristicClassifier struct{}

var _ Classifier = HeuristicClassifier{}

// authNeedles mark an error message as an authentication failure when no
// typed code or status is available.
var authNeedles = []string{
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"authentication",
	"invalid token",
	"api key",
	"oauth",
}

// Classify maps an error onto a failure kind. It never panics; anything
// it cannot place is a connection failure.
func (HeuristicClassifier) Classify(err error) (kind Kind) {
	defer func() {
		if recover() != nil {
			kind = KindConnection
		}
	}()

	if err == nil {
		return KindConnection
	}

	if typed, ok := types.AsError(err); ok {
		switch typed.Code {
		case types.ErrAuthRequired:
			return KindAuth
		case types.ErrTimeout:
			return KindTimeout
		}
		if typed.HTTPStatus == http.StatusUnauthorized || typed.HTTPStatus == http.StatusForbidden {
			return KindAuth
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range authNeedles {
		if strings.Contains(msg, needle) {
			return KindAuth
		}
	}
	return KindConnection
}

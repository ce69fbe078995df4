package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrConnection, "dial failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithDestination("srv-1")

	if GetErrorCode(err) != ErrConnection {
		t.Fatalf("expected code %s, got %s", ErrConnection, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_CodeSurvivesWrapping(t *testing.T) {
	t.Parallel()

	inner := NewTimeoutError("connect")
	wrapped := fmt.Errorf("check server: %w", inner)

	if !IsErrorCode(wrapped, ErrTimeout) {
		t.Fatalf("expected ErrTimeout through wrap chain, got %s", GetErrorCode(wrapped))
	}
	if !IsRetryable(wrapped) {
		t.Fatalf("expected retryable through wrap chain")
	}
}

func TestError_UntypedErrors(t *testing.T) {
	t.Parallel()

	plain := errors.New("plain")
	if GetErrorCode(plain) != "" {
		t.Fatalf("expected empty code for untyped error")
	}
	if IsRetryable(plain) {
		t.Fatalf("untyped errors are not retryable")
	}
}

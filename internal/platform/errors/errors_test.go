package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := New(CodeSessionExpired, "session expired")
	target := New(CodeSessionExpired, "different message")
	if !errors.Is(err, target) {
		t.Fatal("expected errors with the same code to match")
	}
	other := New(CodeSessionNotFound, "session not found")
	if errors.Is(err, other) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeUnknown, "store session", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be found in chain")
	}
}

func TestCodeOf(t *testing.T) {
	err := New(CodeSessionAlreadyCompleted, "completed")
	wrapped := fmt.Errorf("complete session: %w", err)
	if got := CodeOf(wrapped); got != CodeSessionAlreadyCompleted {
		t.Fatalf("expected code %q, got %q", CodeSessionAlreadyCompleted, got)
	}
	if got := CodeOf(errors.New("plain")); got != CodeUnknown {
		t.Fatalf("expected CodeUnknown for plain error, got %q", got)
	}
	if got := CodeOf(nil); got != CodeUnknown {
		t.Fatalf("expected CodeUnknown for nil error, got %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeSessionNotFound, http.StatusNotFound},
		{CodeSessionAlreadyCompleted, http.StatusConflict},
		{CodeSessionExpired, http.StatusGone},
		{CodeSessionOwnerSignature, http.StatusUnauthorized},
		{CodeSessionInvalidDevice, http.StatusBadRequest},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Errorf("%s: expected status %d, got %d", tc.code, tc.want, got)
		}
	}
}

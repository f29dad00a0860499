package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"app error", NewAppError("op", KindNotFound, "missing", nil), KindNotFound},
		{"wrapped app error", fmt.Errorf("outer: %w", NewAppError("op", KindCapacityExceeded, "busy", nil)), KindCapacityExceeded},
		{"plain error", errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("%s: expected kind %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestAppErrorMessage(t *testing.T) {
	inner := errors.New("disk gone")
	err := NewAppError("session.Submit", KindInternal, "allocate workspace", inner)

	if got := err.Error(); got != "session.Submit: allocate workspace: disk gone" {
		t.Fatalf("unexpected message: %q", got)
	}
	if !errors.Is(err, inner) {
		t.Fatalf("expected wrapped error to unwrap")
	}
}

func TestAppErrorWithoutCause(t *testing.T) {
	err := NewAppError("api.Status", KindNotFound, "unknown session", nil)
	if got := err.Error(); got != "api.Status: unknown session" {
		t.Fatalf("unexpected message: %q", got)
	}
}

package confirm

import (
	"errors"
	"testing"
)

func TestParseResult(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"approved", "allow_once", "denied"} {
		got, err := ParseResult(s)
		if err != nil {
			t.Fatalf("ParseResult(%q): unexpected error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseResult(%q): got %q", s, got)
		}
	}
}

func TestParseResult_EmptyDefaultsToAllowOnce(t *testing.T) {
	t.Parallel()

	got, err := ParseResult("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ResultAllowOnce {
		t.Errorf("got %q, want %q", got, ResultAllowOnce)
	}
}

func TestParseResult_Unknown(t *testing.T) {
	t.Parallel()

	_, err := ParseResult("maybe")
	if !errors.Is(err, ErrUnknownResult) {
		t.Fatalf("expected ErrUnknownResult, got %v", err)
	}
}

func TestResult_Allowed(t *testing.T) {
	t.Parallel()

	if !ResultApproved.Allowed() {
		t.Error("approved should allow")
	}
	if !ResultAllowOnce.Allowed() {
		t.Error("allow_once should allow")
	}
	if ResultDenied.Allowed() {
		t.Error("denied should not allow")
	}
}

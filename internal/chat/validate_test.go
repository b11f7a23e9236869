package chat

import (
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		username string
		want     error
	}{
		{"ab", ErrUsernameInvalid},
		{"abc", nil},
		{"validUser1", nil},
		{strings.Repeat("a", 20), nil},
		{strings.Repeat("a", 21), ErrUsernameInvalid},
		{"bad name", ErrUsernameInvalid},
		{"under_score", ErrUsernameInvalid},
		{"", ErrUsernameInvalid},
	}
	for _, tt := range tests {
		if got := ValidateUsername(tt.username); got != tt.want {
			t.Errorf("ValidateUsername(%q) = %v, want %v", tt.username, got, tt.want)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		want     error
	}{
		{"short1", ErrPasswordInvalid},
		{"longenough1", nil},
		{"Passw0rd", nil},
		{"allletters", ErrPasswordInvalid},
		{"12345678", ErrPasswordInvalid},
		{"with space 1", nil},
		{strings.Repeat("a", 71) + "1", nil},
		{strings.Repeat("a", 72) + "1", ErrPasswordInvalid},
	}
	for _, tt := range tests {
		if got := ValidatePassword(tt.password); got != tt.want {
			t.Errorf("ValidatePassword(%q) = %v, want %v", tt.password, got, tt.want)
		}
	}
}

func TestSession_StateTransitions(t *testing.T) {
	s := NewSession(nil, 4)
	if s.State() != StateConnecting || s.Username() != "" {
		t.Fatalf("new session in %s with username %q", s.State(), s.Username())
	}
	if err := s.authenticate("alice"); err != ErrInvalidTransition {
		t.Fatalf("authenticate before beginAuth: expected ErrInvalidTransition, got %v", err)
	}
	if err := s.beginAuth(); err != nil {
		t.Fatal(err)
	}
	if err := s.authenticate(""); err != ErrInvalidTransition {
		t.Fatalf("empty username: expected ErrInvalidTransition, got %v", err)
	}
	if err := s.authenticate("alice"); err != nil {
		t.Fatal(err)
	}
	if err := s.authenticate("mallory"); err != ErrInvalidTransition {
		t.Fatalf("re-authenticate: expected ErrInvalidTransition, got %v", err)
	}
	if s.Username() != "alice" {
		t.Fatalf("username changed to %q", s.Username())
	}

	if !s.terminate() {
		t.Fatal("terminate should report the session had authenticated")
	}
	if s.State() != StateTerminated || s.Authenticated() {
		t.Fatalf("expected terminated, got %s", s.State())
	}
	if s.Send("late") {
		t.Fatal("Send after terminate should drop")
	}
	// second terminate must not panic on the closed queue
	s.terminate()
}

package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndVerify(t *testing.T) {
	s, err := NewSessions(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("new sessions: %v", err)
	}
	token, err := s.Issue("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	id, err := s.Authenticate("Bearer " + token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id != "user-1" {
		t.Fatalf("subject: got %q, want user-1", id)
	}
}

func TestVerifyRejects(t *testing.T) {
	s, _ := NewSessions(testSecret, time.Hour)
	other, _ := NewSessions("ffffffffffffffffffffffffffffffff", time.Hour)
	foreign, _ := other.Issue("user-1")

	expiredIssuer, _ := NewSessions(testSecret, time.Minute)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _ := expiredIssuer.Issue("user-1")

	tests := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"empty bearer":   "Bearer   ",
		"garbage":        "Bearer not.a.token",
		"wrong secret":   "Bearer " + foreign,
		"expired":        "Bearer " + expired,
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Authenticate(header); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestNewSessionsValidation(t *testing.T) {
	if _, err := NewSessions("short", time.Hour); err == nil {
		t.Fatalf("expected error for short secret")
	}
	if _, err := NewSessions(testSecret, 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

func TestUserContext(t *testing.T) {
	if _, ok := UserFrom(context.Background()); ok {
		t.Fatalf("empty context should have no user")
	}
	id, ok := UserFrom(WithUser(context.Background(), "user-9"))
	if !ok || id != "user-9" {
		t.Fatalf("got %q, %v", id, ok)
	}
}

package sharetoken

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	secret := []byte("secret")
	now := time.Now()
	issued, claims, err := Issue(secret, "doc-1", "user-1", time.Hour, now)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	parsed, err := Parse(secret, issued, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed != claims {
		t.Fatalf("claims mismatch: got %+v want %+v", parsed, claims)
	}
	if parsed.DocumentID != "doc-1" || parsed.OwnerID != "user-1" {
		t.Fatalf("unexpected claims: %+v", parsed)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	now := time.Now()
	issued, _, err := Issue(secret, "doc-1", "user-1", time.Minute, now)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := Parse(secret, issued, now.Add(2*time.Minute)); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseRejectsTampering(t *testing.T) {
	secret := []byte("secret")
	now := time.Now()
	issued, _, err := Issue(secret, "doc-1", "user-1", time.Hour, now)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	cases := map[string]string{
		"wrong secret": issued,
		"no signature": "abc",
		"extra part":   issued + ".x",
		"flipped":      "x" + issued[1:],
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			key := secret
			if name == "wrong secret" {
				key = []byte("other")
			}
			if _, err := Parse(key, token, now); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

package auth

import (
	"context"
	"testing"
	"time"
)

func newTestIssuer(audience string, clock func() time.Time) *TokenIssuer {
	return NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "stumper-auth",
		Audience:      audience,
		TokenTTL:      15 * time.Minute,
		Clock:         clock,
	})
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	clock := func() time.Time { return time.Unix(1700000000, 0).UTC() }
	issuer := newTestIssuer("stumper-api", clock)

	token, expiresIn, err := issuer.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry %d", expiresIn)
	}

	subject, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("unexpected subject %q", subject)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	issueClock := func() time.Time { return time.Unix(1700000000, 0).UTC() }
	issuer := newTestIssuer("stumper-api", issueClock)

	token, _, err := issuer.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lateClock := func() time.Time { return time.Unix(1700000000, 0).UTC().Add(16 * time.Minute) }
	late := newTestIssuer("stumper-api", lateClock)
	if _, err := late.Validate(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateRejectsWrongAudience(t *testing.T) {
	clock := func() time.Time { return time.Unix(1700000000, 0).UTC() }
	userIssuer := newTestIssuer("stumper-api", clock)
	guestIssuer := newTestIssuer("stumper-guest", clock)

	token, _, err := guestIssuer.Issue(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := userIssuer.Validate(token); err == nil {
		t.Fatalf("guest handoff tokens must not pass as user tokens")
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	clock := func() time.Time { return time.Unix(1700000000, 0).UTC() }
	issuer := newTestIssuer("stumper-api", clock)
	if _, _, err := issuer.Issue(context.Background(), ""); err == nil {
		t.Fatalf("expected missing subject to be rejected")
	}
}

func TestIssueRequiresSecret(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{Issuer: "stumper-auth", Audience: "stumper-api"})
	if _, _, err := issuer.Issue(context.Background(), "user-1"); err == nil {
		t.Fatalf("expected missing secret to be rejected")
	}
}

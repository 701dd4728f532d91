package auth

import (
	"context"
	"testing"
	"time"
)

func testIssuer(clock func() time.Time) *TokenIssuer {
	return NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "printhaus-auth",
		Audience:      "printhaus-api",
		TokenTTL:      15 * time.Minute,
		Clock:         clock,
	})
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	issuer := testIssuer(nil)
	actor := Actor{UserID: "user-1", TenantID: "tenant-1", Role: RoleManager}

	token, expiresIn, err := issuer.IssueToken(context.Background(), actor)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if expiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry: %d", expiresIn)
	}

	parsed, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected validate error: %v", err)
	}
	if parsed != actor {
		t.Fatalf("round trip mismatch: %#v", parsed)
	}
}

func TestIssueTokenRejectsIncompleteActor(t *testing.T) {
	issuer := testIssuer(nil)

	tests := []struct {
		name  string
		actor Actor
	}{
		{name: "missing-user", actor: Actor{TenantID: "tenant-1", Role: RoleCustomer}},
		{name: "missing-tenant", actor: Actor{UserID: "user-1", Role: RoleCustomer}},
		{name: "unknown-role", actor: Actor{UserID: "user-1", TenantID: "tenant-1", Role: "superuser"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := issuer.IssueToken(context.Background(), tt.actor); err == nil {
				t.Fatalf("expected error for %#v", tt.actor)
			}
		})
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	issued := time.Unix(1700000000, 0)
	issuer := testIssuer(func() time.Time { return issued })

	token, _, err := issuer.IssueToken(context.Background(), Actor{
		UserID: "user-1", TenantID: "tenant-1", Role: RoleCustomer,
	})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	late := testIssuer(func() time.Time { return issued.Add(16 * time.Minute) })
	if _, err := late.ValidateToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseRoleIsTotalOverDeclaredRoles(t *testing.T) {
	for _, role := range Roles() {
		parsed, err := ParseRole(role.String())
		if err != nil {
			t.Fatalf("declared role %q failed to parse: %v", role, err)
		}
		if parsed != role {
			t.Fatalf("parse mismatch: %q != %q", parsed, role)
		}
	}

	if _, err := ParseRole("auditor"); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
}

package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vovakirdan/wiremsg/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) (*Service, *sqlite.SQLiteStore) {
	t.Helper()

	st, err := sqlite.New(filepath.Join(t.TempDir(), "auth.db"), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return NewService(st, jwtConfig), st
}

func TestRegister_RejectsInvalidUsername(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, RegisterInput{Username: "ab", Password: "password123"}); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}

	// Should be validated after trimming whitespace.
	if _, _, err := svc.Register(ctx, RegisterInput{Username: " ab ", Password: "password123"}); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
}

func TestRegister_RejectsInvalidPasswordAndEmail(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, RegisterInput{Username: "abc", Password: "12345"}); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	if _, _, err := svc.Register(ctx, RegisterInput{Username: "abc", Password: "123456", Email: "nope"}); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestRegister_TrimsUsernameAndCreatesUser(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	token, user, err := svc.Register(ctx, RegisterInput{Username: " alice ", Password: "password123", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}
	if user.Username != "alice" {
		t.Fatalf("expected trimmed username, got %q", user.Username)
	}

	// Should collide because the stored username is trimmed.
	if _, _, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "password123"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLogin_CarriesGroupsInToken(t *testing.T) {
	svc, st := newTestAuthService(t)
	ctx := context.Background()

	_, user, err := svc.Register(ctx, RegisterInput{Username: "mod", Password: "password123"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := st.AddUserToGroup(ctx, user.ID, "moderator"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if _, err := svc.Login(ctx, "mod", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "ghost", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	token, err := svc.Login(ctx, "mod", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	id := claims.Identity()
	if id.UserID != user.ID || id.Username != "mod" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if !id.IsElevated([]string{"moderator", "admin"}) {
		t.Fatalf("expected moderator to be elevated, groups=%v", id.Groups)
	}
}

func TestValidateToken_RejectsForeignTokens(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("secret-one"), Issuer: "a", TTL: time.Hour}
	token, err := GenerateToken(cfg, Identity{UserID: 1, Username: "x"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := ValidateToken(&JWTConfig{Secret: []byte("secret-two"), Issuer: "a"}, token); err == nil {
		t.Fatalf("expected signature error")
	}
	if _, err := ValidateToken(&JWTConfig{Secret: []byte("secret-one"), Issuer: "b"}, token); err == nil {
		t.Fatalf("expected issuer error")
	}

	expired, err := GenerateToken(&JWTConfig{Secret: []byte("secret-one"), TTL: -time.Minute}, Identity{UserID: 1})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateToken(cfg, expired); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestIdentityIsElevated(t *testing.T) {
	elevated := []string{"moderator", "admin"}
	cases := []struct {
		name string
		id   Identity
		want bool
	}{
		{"anonymous", Anonymous, false},
		{"anonymous with staff flag", Identity{IsStaff: true}, false},
		{"plain user", Identity{UserID: 1, Groups: []string{"readers"}}, false},
		{"staff", Identity{UserID: 1, IsStaff: true}, true},
		{"superuser", Identity{UserID: 1, IsSuperuser: true}, true},
		{"moderator", Identity{UserID: 1, Groups: []string{"moderator"}}, true},
		{"admin group", Identity{UserID: 1, Groups: []string{"x", "admin"}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.id.IsElevated(elevated); got != tc.want {
				t.Fatalf("IsElevated() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAuthenticate_ResolvesLiveUser(t *testing.T) {
	svc, st := newTestAuthService(t)
	ctx := context.Background()

	token, user, err := svc.Register(ctx, RegisterInput{Username: "mod", Password: "password123"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// Groups granted after the token was issued apply right away.
	if err := st.AddUserToGroup(ctx, user.ID, "moderator"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	id, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.UserID != user.ID || !id.IsElevated([]string{"moderator"}) {
		t.Fatalf("unexpected identity %+v", id)
	}

	if _, err := svc.Authenticate(ctx, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	if err := st.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	id, err = svc.Authenticate(ctx, token)
	if !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
	if id.Authenticated() {
		t.Fatalf("deleted user must resolve to anonymous, got %+v", id)
	}
}

package authn

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"modqueue/api/internal/config"
)

func adminWithUser(t *testing.T, username, password string) config.AdminConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt hash: %v", err)
	}
	return config.AdminConfig{
		Users: []config.AdminUser{{Username: username, PasswordHash: string(hash)}},
	}
}

func TestPasswordSignIn(t *testing.T) {
	svc := NewService(adminWithUser(t, "alice", "s3cret"), "", nil)
	ctx := context.Background()

	identity, err := svc.PasswordSignIn(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("PasswordSignIn failed: %v", err)
	}
	if identity.Name != "alice" || identity.Method != "password" {
		t.Errorf("identity = %+v", identity)
	}

	if _, err := svc.PasswordSignIn(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, err := svc.PasswordSignIn(ctx, "mallory", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: got %v", err)
	}
}

func TestGitHubSignIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		switch r.Header.Get("Authorization") {
		case "token good-token":
			w.Write([]byte(`{"login":"octocat"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	svc := NewService(config.AdminConfig{}, srv.URL, srv.Client())
	ctx := context.Background()

	identity, err := svc.GitHubSignIn(ctx, "good-token")
	if err != nil {
		t.Fatalf("GitHubSignIn failed: %v", err)
	}
	if identity.Name != "octocat" || identity.Method != "github" {
		t.Errorf("identity = %+v", identity)
	}

	if _, err := svc.GitHubSignIn(ctx, "bad-token"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("bad token: got %v", err)
	}
	if _, err := svc.GitHubSignIn(ctx, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("empty token: got %v", err)
	}
}

func googleToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestGoogleSignIn(t *testing.T) {
	admin := config.AdminConfig{AllowedEmails: []string{"Mod@Example.com"}}
	svc := NewService(admin, "", nil)
	ctx := context.Background()

	identity, err := svc.GoogleSignIn(ctx, googleToken(t, jwt.MapClaims{"email": "mod@example.com"}))
	if err != nil {
		t.Fatalf("GoogleSignIn failed: %v", err)
	}
	if identity.Name != "mod@example.com" || identity.Method != "google" {
		t.Errorf("identity = %+v", identity)
	}

	if _, err := svc.GoogleSignIn(ctx, googleToken(t, jwt.MapClaims{"email": "other@example.com"})); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unlisted email: got %v", err)
	}
	if _, err := svc.GoogleSignIn(ctx, "not-a-jwt"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("malformed token: got %v", err)
	}
	if _, err := svc.GoogleSignIn(ctx, googleToken(t, jwt.MapClaims{"sub": "123"})); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("missing email claim: got %v", err)
	}

	empty := NewService(config.AdminConfig{}, "", nil)
	if _, err := empty.GoogleSignIn(ctx, googleToken(t, jwt.MapClaims{"email": "mod@example.com"})); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("empty allow-list: got %v", err)
	}
}

func TestCredentialStore(t *testing.T) {
	creds := NewCredentialStore("")
	if creds.HasToken() {
		t.Fatal("empty store reports a token")
	}
	creds.SetToken("ghp_abc")
	if creds.Token() != "ghp_abc" || !creds.HasToken() {
		t.Fatal("token not stored")
	}
	creds.Clear()
	if creds.HasToken() {
		t.Fatal("token survived Clear")
	}
}

// Package authn verifies moderator credentials. Three methods are
// supported: local password accounts, GitHub personal access tokens and
// Google ID tokens checked against an email allow-list.
package authn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"modqueue/api/internal/config"
)

// ErrInvalidCredentials is returned for any credential that does not
// verify. Callers must not leak which part of the check failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Identity describes a signed-in moderator.
type Identity struct {
	Name   string
	Method string
}

// Service verifies credentials against the admin config.
type Service struct {
	admin     config.AdminConfig
	githubAPI string
	client    *http.Client
}

func NewService(admin config.AdminConfig, githubAPI string, client *http.Client) *Service {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if githubAPI == "" {
		githubAPI = "https://api.github.com"
	}
	return &Service{admin: admin, githubAPI: githubAPI, client: client}
}

// PasswordSignIn checks a username and password against the configured
// local accounts.
func (s *Service) PasswordSignIn(_ context.Context, username, password string) (Identity, error) {
	for _, user := range s.admin.Users {
		if user.Username != username {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{Name: username, Method: "password"}, nil
	}
	return Identity{}, ErrInvalidCredentials
}

// GitHubSignIn validates a personal access token by asking the GitHub
// API who it belongs to. The token doubles as the write credential for
// the content store, so a valid sign-in also proves write access.
func (s *Service) GitHubSignIn(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidCredentials
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.githubAPI+"/user", nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build github request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Authorization", "token "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("verify github token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Identity{}, ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("verify github token: status %d", resp.StatusCode)
	}

	var user struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return Identity{}, fmt.Errorf("decode github user: %w", err)
	}
	if user.Login == "" {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{Name: user.Login, Method: "github"}, nil
}

// GoogleSignIn accepts a Google ID token and checks the email claim
// against the allow-list. The token arrives fresh from Google's sign-in
// widget over TLS, so only the claims are inspected here.
func (s *Service) GoogleSignIn(_ context.Context, idToken string) (Identity, error) {
	if idToken == "" || len(s.admin.AllowedEmails) == 0 {
		return Identity{}, ErrInvalidCredentials
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	email, _ := claims["email"].(string)
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Identity{}, ErrInvalidCredentials
	}
	for _, allowed := range s.admin.AllowedEmails {
		if strings.ToLower(strings.TrimSpace(allowed)) == email {
			return Identity{Name: email, Method: "google"}, nil
		}
	}
	return Identity{}, ErrInvalidCredentials
}

// CredentialStore holds the GitHub token used for content writes. It is
// set at sign-in and cleared on demand, never read from ambient state.
type CredentialStore struct {
	mu    sync.RWMutex
	token string
}

func NewCredentialStore(token string) *CredentialStore {
	return &CredentialStore{token: token}
}

// Token implements contents.CredentialSource.
func (c *CredentialStore) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *CredentialStore) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *CredentialStore) Clear() {
	c.SetToken("")
}

func (c *CredentialStore) HasToken() bool {
	return c.Token() != ""
}

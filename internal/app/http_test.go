package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"modqueue/api/internal/authn"
	"modqueue/api/internal/contents"
	"modqueue/api/internal/session"
)

func newTestServer(t *testing.T, store *fakeContentStore) (*httptest.Server, *Service) {
	t.Helper()
	signIn := &fakeSignIn{
		passwordFn: func(username, password string) (authn.Identity, error) {
			if username == "alice" && password == "pw" {
				return authn.Identity{Name: "alice", Method: "password"}, nil
			}
			return authn.Identity{}, authn.ErrInvalidCredentials
		},
	}
	svc := New(testConfig(), store, session.NewMemoryStore(), signIn, authn.NewCredentialStore(""))
	svc.Bootstrap(context.Background())
	srv := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(srv.Close)
	return srv, svc
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func login(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/session/login", "", map[string]string{
		"username": "alice",
		"password": "pw",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}
	return token
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testStore(true))
	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["ok"] != true {
		t.Errorf("payload = %v", payload)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("cors header = %q", got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestPreflightHasNoBody(t *testing.T) {
	srv, _ := newTestServer(t, testStore(true))

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/messages", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("preflight body = %q", body)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing cors header on preflight")
	}
}

func TestMessagesRequireSession(t *testing.T) {
	srv, _ := newTestServer(t, testStore(true))
	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/messages", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["code"] != "UNAUTHORIZED" {
		t.Errorf("payload = %v", payload)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv, _ := newTestServer(t, testStore(true))
	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/session/login", "", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["code"] != "INVALID_CREDENTIALS" {
		t.Errorf("payload = %v", payload)
	}
}

func TestApproveOverHTTP(t *testing.T) {
	store := testStore(true)
	srv, svc := newTestServer(t, store)
	token := login(t, srv)

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/messages/abc123/approve", token, map[string]any{
		"tags": []string{"news", " update "},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, payload = %v", resp.StatusCode, payload)
	}
	msg := payload["message"].(map[string]any)
	if msg["status"] != "approved" {
		t.Errorf("message = %v", msg)
	}
	tags := msg["tags"].([]any)
	if len(tags) != 2 || tags[0] != "news" || tags[1] != "update" {
		t.Errorf("tags = %v", tags)
	}
	if _, ok := svc.Snapshot().Find(contents.CollectionApproved, "abc123"); !ok {
		t.Error("message not in approved snapshot")
	}
}

func TestApproveWithoutCredentialOverHTTP(t *testing.T) {
	store := testStore(false)
	srv, _ := newTestServer(t, store)
	token := login(t, srv)

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/messages/abc123/approve", token, map[string]any{})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["code"] != "UNAUTHORIZED" {
		t.Errorf("payload = %v", payload)
	}
	if len(store.writes) != 0 {
		t.Errorf("writes issued: %d", len(store.writes))
	}
}

func TestPartialWriteSurfacesOverHTTP(t *testing.T) {
	store := testStore(true)
	store.writeFn = func(collection string, _ contents.Document) error {
		if collection == contents.CollectionApproved {
			return contents.ErrTransport
		}
		return nil
	}
	srv, _ := newTestServer(t, store)
	token := login(t, srv)

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/messages/abc123/approve", token, map[string]any{})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["code"] != "PARTIAL_WRITE" {
		t.Errorf("payload = %v", payload)
	}
	details := payload["details"].(map[string]any)
	if details["collection"] != contents.CollectionApproved {
		t.Errorf("details = %v", details)
	}
}

func TestConflictMapsTo409(t *testing.T) {
	store := testStore(true)
	store.writeFn = func(collection string, _ contents.Document) error {
		return contents.ErrConflict
	}
	srv, _ := newTestServer(t, store)
	token := login(t, srv)

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/messages/abc123/reject", token, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["code"] != "CONFLICT" {
		t.Errorf("payload = %v", payload)
	}
}

func TestSyncEndpoint(t *testing.T) {
	store := testStore(true)
	srv, _ := newTestServer(t, store)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/sync", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("sync request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/api/sync", nil)
	req.Header.Set("x-modqueue-sync-token", "sync-secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("sync request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status = %d", resp.StatusCode)
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode sync payload: %v", err)
	}
	if payload["ok"] != true {
		t.Errorf("payload = %v", payload)
	}
}

func TestSyncStatus(t *testing.T) {
	srv, _ := newTestServer(t, testStore(true))

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/sync", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", resp.StatusCode)
	}

	token := login(t, srv)
	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/sync", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["active"] != true || payload["canWrite"] != true {
		t.Errorf("payload = %v", payload)
	}

	readOnly, _ := newTestServer(t, testStore(false))
	roToken := login(t, readOnly)
	resp, payload = doJSON(t, http.MethodGet, readOnly.URL+"/api/sync", roToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read-only status = %d", resp.StatusCode)
	}
	if payload["active"] != false || payload["canWrite"] != false {
		t.Errorf("read-only payload = %v", payload)
	}
}

func TestSessionEndpointReportsState(t *testing.T) {
	srv, _ := newTestServer(t, testStore(true))

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/session", "", nil)
	if resp.StatusCode != http.StatusOK || payload["authenticated"] != false {
		t.Fatalf("anonymous session: status = %d, payload = %v", resp.StatusCode, payload)
	}

	token := login(t, srv)
	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/api/session", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["authenticated"] != true || payload["name"] != "alice" || payload["canWrite"] != true {
		t.Errorf("payload = %v", payload)
	}
}

func TestGetRejectedBucketOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, testStore(true))
	token := login(t, srv)

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/messages/rejected", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	msgs := payload["messages"].([]any)
	if len(msgs) != 1 {
		t.Errorf("rejected messages = %v", msgs)
	}
}

package contents

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GitHub talks to the hosted contents API: GET returns the document as
// a base64 blob plus its sha, PUT replaces it given that sha.
type GitHub struct {
	apiBase  string
	owner    string
	repo     string
	dataPath string
	creds    CredentialSource
	client   *http.Client
}

func NewGitHub(apiBase, owner, repo, dataPath string, creds CredentialSource, client *http.Client) *GitHub {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &GitHub{
		apiBase:  strings.TrimRight(apiBase, "/"),
		owner:    owner,
		repo:     repo,
		dataPath: strings.Trim(dataPath, "/"),
		creds:    creds,
		client:   client,
	}
}

func (g *GitHub) Authorized() bool {
	return g.creds != nil && g.creds.Token() != ""
}

func (g *GitHub) contentURL(collection string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s/%s", g.apiBase, g.owner, g.repo, g.dataPath, FileName(collection))
}

type contentsResponse struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

func (g *GitHub) Read(ctx context.Context, collection string) (Document, Revision, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.contentURL(collection), nil)
	if err != nil {
		return Document{}, "", fmt.Errorf("build read request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return Document{}, "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return Document{}, "", err
	}

	var payload contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Document{}, "", fmt.Errorf("decode contents response: %w", err)
	}

	raw, err := decodeBlob(payload.Content)
	if err != nil {
		return Document{}, "", fmt.Errorf("decode %s blob: %w", collection, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, "", fmt.Errorf("parse %s document: %w", collection, err)
	}
	return doc, Revision(payload.SHA), nil
}

func (g *GitHub) Put(ctx context.Context, collection string, doc Document, rev Revision) (Revision, error) {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s document: %w", collection, err)
	}

	body := map[string]any{
		"message": "Admin: Update " + FileName(collection),
		"content": base64.StdEncoding.EncodeToString(raw),
	}
	if rev != "" {
		body["sha"] = string(rev)
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal put body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.contentURL(collection), bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build put request: %w", err)
	}
	g.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return "", err
	}

	var payload struct {
		Content contentsResponse `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode put response: %w", err)
	}
	return Revision(payload.Content.SHA), nil
}

func (g *GitHub) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if token := g.creds.Token(); token != "" {
		req.Header.Set("Authorization", "token "+token)
	}
}

// decodeBlob handles the store's line-wrapped base64 and reproduces the
// original UTF-8 bytes exactly, multi-byte text included.
func decodeBlob(blob string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, blob)
	return base64.StdEncoding.DecodeString(cleaned)
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: status %d", ErrConflict, resp.StatusCode)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
}

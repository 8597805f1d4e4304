package contents

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Static fetches collection documents anonymously from the published
// site, with no credential and no revision token. Requests are
// cache-busted so a stale CDN copy never masks a fresh write.
type Static struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewStatic(baseURL string, client *http.Client) *Static {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Static{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		now:     time.Now,
	}
}

func (s *Static) Fetch(ctx context.Context, collection string) (Document, error) {
	url := fmt.Sprintf("%s/%s?t=%d", s.baseURL, FileName(collection), s.now().UnixMilli())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Document{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("parse %s document: %w", collection, err)
	}
	return doc, nil
}

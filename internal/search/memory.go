package search

import (
	"strings"

	"modqueue/api/internal/contents"
)

// Snapshot lists the messages currently mirrored for a bucket.
type Snapshot interface {
	Messages(bucket string) []contents.Message
}

// Memory is the fallback searcher. It scans the in-memory snapshot with
// a case-insensitive substring match over content and tags, so search
// keeps working when Meilisearch is down.
type Memory struct {
	snapshot Snapshot
	buckets  []string
}

func NewMemory(snapshot Snapshot, buckets []string) *Memory {
	return &Memory{snapshot: snapshot, buckets: buckets}
}

func (m *Memory) Healthy() bool { return true }

func (m *Memory) Search(q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return []Result{}, 0, nil
	}

	limit := q.Limit
	if limit == 0 {
		limit = 20
	}

	var matches []Result
	for _, bucket := range m.buckets {
		if q.Bucket != "" && q.Bucket != bucket {
			continue
		}
		for _, msg := range m.snapshot.Messages(bucket) {
			if !matchesMessage(msg, needle) {
				continue
			}
			matches = append(matches, Result{
				ID:        msg.ID,
				Bucket:    bucket,
				Snippet:   snippet(msg.Content, needle),
				Tags:      msg.Tags,
				Timestamp: msg.Timestamp,
			})
		}
	}

	total := len(matches)
	if q.Offset >= total {
		return []Result{}, total, nil
	}
	matches = matches[q.Offset:]
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, total, nil
}

func matchesMessage(msg contents.Message, needle string) bool {
	if strings.Contains(strings.ToLower(msg.Content), needle) {
		return true
	}
	for _, tag := range msg.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// snippet trims long content to a window around the first match.
func snippet(content, needle string) string {
	const window = 80
	if len(content) <= 2*window {
		return content
	}
	at := strings.Index(strings.ToLower(content), needle)
	if at < 0 {
		return content[:2*window]
	}
	start := at - window
	if start < 0 {
		start = 0
	}
	end := at + len(needle) + window
	if end > len(content) {
		end = len(content)
	}
	return content[start:end]
}

// Package search answers moderator queries over the message buckets,
// preferring Meilisearch and degrading to an in-memory scan.
package search

import (
	"log"

	"modqueue/api/internal/contents"
)

// Service is the facade that tries Meilisearch first and falls back to
// scanning the in-memory snapshot.
type Service struct {
	meili  *Meili
	memory *Memory
}

// NewService creates a search service. meili may be nil if Meilisearch
// is not configured.
func NewService(meili *Meili, memory *Memory) *Service {
	return &Service{meili: meili, memory: memory}
}

// Search tries Meilisearch if healthy, otherwise scans the snapshot.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to snapshot: %v", err)
	}

	results, total, err := s.memory.Search(q)
	if err != nil {
		log.Printf("search: snapshot scan error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexMessage indexes a message (fire-and-forget to Meilisearch).
func (s *Service) IndexMessage(msg contents.Message, bucket string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := toRecord(msg, bucket)
	go func() {
		if err := s.meili.IndexMessage(record); err != nil {
			log.Printf("search: index message %s: %v", record.ID, err)
		}
	}()
}

// ReindexAll pushes every mirrored bucket into Meilisearch. Called
// after a reload when Meilisearch is healthy.
func (s *Service) ReindexAll(buckets []string) {
	if s.meili == nil || !s.meili.Healthy() || s.memory == nil {
		return
	}
	var records []MessageRecord
	for _, bucket := range buckets {
		for _, msg := range s.memory.snapshot.Messages(bucket) {
			records = append(records, toRecord(msg, bucket))
		}
	}
	if err := s.meili.IndexMessages(records); err != nil {
		log.Printf("search: reindex messages: %v", err)
	}
}

func toRecord(msg contents.Message, bucket string) MessageRecord {
	return MessageRecord{
		ID:        msg.ID,
		Content:   msg.Content,
		Tags:      msg.Tags,
		Bucket:    bucket,
		Timestamp: msg.Timestamp,
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

package search

import (
	"testing"

	"modqueue/api/internal/contents"
)

type fakeSnapshot map[string][]contents.Message

func (f fakeSnapshot) Messages(bucket string) []contents.Message { return f[bucket] }

func testMemory() *Memory {
	return NewMemory(fakeSnapshot{
		"pending": {
			{ID: "p1", Content: "Server outage in region west", Timestamp: "2026-01-01T00:00:00Z"},
			{ID: "p2", Content: "Happy birthday everyone", Tags: []string{"social"}},
		},
		"approved": {
			{ID: "a1", Content: "Outage resolved", Tags: []string{"status", "outage"}},
		},
	}, []string{"pending", "approved"})
}

func TestMemorySearchContent(t *testing.T) {
	results, total, err := testMemory().Search(Query{Text: "OUTAGE"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if results[0].ID != "p1" || results[0].Bucket != "pending" {
		t.Errorf("first result = %+v", results[0])
	}
	if results[1].ID != "a1" || results[1].Bucket != "approved" {
		t.Errorf("second result = %+v", results[1])
	}
}

func TestMemorySearchTags(t *testing.T) {
	results, total, err := testMemory().Search(Query{Text: "social"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 1 || results[0].ID != "p2" {
		t.Fatalf("results = %+v, total = %d", results, total)
	}
}

func TestMemorySearchBucketFilter(t *testing.T) {
	results, total, err := testMemory().Search(Query{Text: "outage", Bucket: "approved"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 1 || results[0].ID != "a1" {
		t.Fatalf("results = %+v, total = %d", results, total)
	}
}

func TestMemorySearchEmptyQuery(t *testing.T) {
	results, total, err := testMemory().Search(Query{Text: "   "})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 0 || len(results) != 0 {
		t.Fatalf("blank query returned results: %+v", results)
	}
}

func TestMemorySearchPaging(t *testing.T) {
	m := testMemory()
	results, total, err := m.Search(Query{Text: "outage", Limit: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 2 || len(results) != 1 {
		t.Fatalf("page 1: results = %+v, total = %d", results, total)
	}

	results, total, err = m.Search(Query{Text: "outage", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 2 || len(results) != 1 || results[0].ID != "a1" {
		t.Fatalf("page 2: results = %+v, total = %d", results, total)
	}

	results, total, err = m.Search(Query{Text: "outage", Offset: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 2 || len(results) != 0 {
		t.Fatalf("past end: results = %+v, total = %d", results, total)
	}
}

func TestServiceFallsBackWithoutMeili(t *testing.T) {
	svc := NewService(nil, testMemory())
	resp := svc.Search(Query{Text: "birthday"})
	if resp.Total != 1 || len(resp.Results) != 1 || resp.Results[0].ID != "p2" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Query != "birthday" {
		t.Errorf("query echo = %q", resp.Query)
	}
}

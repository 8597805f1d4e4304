// Package repo holds the session-scoped in-memory mirror of the
// message collections. It is rebuilt wholesale on every load and only
// advanced after a successful persist.
package repo

import (
	"context"
	"sync"

	"modqueue/api/internal/contents"
)

// Buckets visible in the console. Rejected is an accumulating log that
// is re-read from the store on demand, never mirrored here.
var Buckets = []string{
	contents.CollectionPending,
	contents.CollectionApproved,
	contents.CollectionPublished,
}

// Store is the read side of the content store adapter.
type Store interface {
	Read(ctx context.Context, collection string) (contents.Document, contents.Revision)
}

type Repository struct {
	mu      sync.RWMutex
	buckets map[string][]contents.Message
}

func New() *Repository {
	buckets := make(map[string][]contents.Message, len(Buckets))
	for _, bucket := range Buckets {
		buckets[bucket] = []contents.Message{}
	}
	return &Repository{buckets: buckets}
}

// LoadAll reads the three visible collections concurrently and replaces
// the snapshot. Individual read failures have already degraded to empty
// documents inside the adapter, so the snapshot always materialises.
func (r *Repository) LoadAll(ctx context.Context, store Store) {
	docs := make([]contents.Document, len(Buckets))
	var wg sync.WaitGroup
	for i, bucket := range Buckets {
		wg.Add(1)
		go func(i int, bucket string) {
			defer wg.Done()
			docs[i], _ = store.Read(ctx, bucket)
		}(i, bucket)
	}
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, bucket := range Buckets {
		r.buckets[bucket] = copyMessages(docs[i].Messages)
	}
}

// Messages returns a copy of a bucket in display order.
func (r *Repository) Messages(bucket string) []contents.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyMessages(r.buckets[bucket])
}

func (r *Repository) Find(bucket, id string) (contents.Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, msg := range r.buckets[bucket] {
		if msg.ID == id {
			return msg, true
		}
	}
	return contents.Message{}, false
}

func (r *Repository) Counts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int, len(r.buckets))
	for bucket, msgs := range r.buckets {
		counts[bucket] = len(msgs)
	}
	return counts
}

// StageApprove computes the post-approve pending and approved buckets
// without touching the snapshot. The message keeps its identity, takes
// status approved and the supplied tags, and is appended to the end of
// approved.
func (r *Repository) StageApprove(id string, tags []string) (pending, approved []contents.Message, msg contents.Message, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending, msg, ok = remove(r.buckets[contents.CollectionPending], id)
	if !ok {
		return nil, nil, contents.Message{}, false
	}
	msg.Status = "approved"
	msg.Tags = append([]string(nil), tags...)
	approved = append(copyMessages(r.buckets[contents.CollectionApproved]), msg)
	return pending, approved, msg, true
}

// StageReject computes the post-reject pending bucket and appends the
// message to the supplied rejected document, which the caller must have
// read freshly from the store.
func (r *Repository) StageReject(id string, rejected contents.Document) (pending []contents.Message, rejectedOut contents.Document, msg contents.Message, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending, msg, ok = remove(r.buckets[contents.CollectionPending], id)
	if !ok {
		return nil, contents.Document{}, contents.Message{}, false
	}
	msg.Status = "rejected"
	rejectedOut = rejected
	rejectedOut.Messages = append(copyMessages(rejected.Messages), msg)
	return pending, rejectedOut, msg, true
}

// CommitApprove advances the snapshot after both writes succeeded.
func (r *Repository) CommitApprove(pending, approved []contents.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets[contents.CollectionPending] = copyMessages(pending)
	r.buckets[contents.CollectionApproved] = copyMessages(approved)
}

// CommitReject advances the snapshot after both writes succeeded.
func (r *Repository) CommitReject(pending []contents.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets[contents.CollectionPending] = copyMessages(pending)
}

func remove(msgs []contents.Message, id string) ([]contents.Message, contents.Message, bool) {
	for i, msg := range msgs {
		if msg.ID == id {
			remaining := make([]contents.Message, 0, len(msgs)-1)
			remaining = append(remaining, msgs[:i]...)
			remaining = append(remaining, msgs[i+1:]...)
			return remaining, msg, true
		}
	}
	return nil, contents.Message{}, false
}

func copyMessages(msgs []contents.Message) []contents.Message {
	if msgs == nil {
		return []contents.Message{}
	}
	return append([]contents.Message(nil), msgs...)
}

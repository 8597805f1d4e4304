// Package contents wraps read/write access to the message collection
// documents kept in the backing content store. Reads degrade, writes
// are guarded by a fresh revision token.
package contents

import (
	"context"
	"errors"
	"log"
	"time"
)

const (
	CollectionPending   = "pending"
	CollectionApproved  = "approved"
	CollectionPublished = "published"
	CollectionRejected  = "rejected"
)

// SchemaVersion is the collection document schema tag.
const SchemaVersion = "1.0"

var (
	ErrUnauthorized = errors.New("write credential missing or rejected")
	ErrNotFound     = errors.New("document not found")
	ErrConflict     = errors.New("document revision conflict")
	ErrTransport    = errors.New("content store unreachable")
)

// Revision is the opaque token proving which version of a document was
// last read. An empty revision on write means "create new".
type Revision string

type Image struct {
	Filename string `json:"filename"`
}

type Message struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Timestamp string   `json:"timestamp"`
	Status    string   `json:"status"`
	Tags      []string `json:"tags,omitempty"`
	Images    []Image  `json:"images,omitempty"`
}

// Document is one lifecycle bucket, read and written wholesale.
type Document struct {
	Messages    []Message `json:"messages"`
	LastUpdated string    `json:"lastUpdated,omitempty"`
	Version     string    `json:"version,omitempty"`
}

func EmptyDocument() Document {
	return Document{Messages: []Message{}}
}

// FileName maps a collection key to its document file name.
func FileName(collection string) string {
	return collection + "-messages.json"
}

// CredentialSource supplies the current write credential. An empty
// token means the store is read-only for this session.
type CredentialSource interface {
	Token() string
}

// Backend is an authenticated revisioned-document store.
type Backend interface {
	// Authorized reports whether a write credential is configured.
	Authorized() bool
	// Read returns the document and its current revision.
	Read(ctx context.Context, collection string) (Document, Revision, error)
	// Put replaces the document. rev must match the store's current
	// revision; empty rev creates the document.
	Put(ctx context.Context, collection string, doc Document, rev Revision) (Revision, error)
}

// Fetcher is the anonymous read-only fallback path.
type Fetcher interface {
	Fetch(ctx context.Context, collection string) (Document, error)
}

// Adapter combines the authenticated backend with the anonymous
// fallback. Reads never fail; writes never retry.
type Adapter struct {
	backend  Backend
	fallback Fetcher
	now      func() time.Time
}

func NewAdapter(backend Backend, fallback Fetcher) *Adapter {
	return &Adapter{backend: backend, fallback: fallback, now: time.Now}
}

// CanWrite reports whether a write credential is present.
func (a *Adapter) CanWrite() bool {
	return a.backend != nil && a.backend.Authorized()
}

// Read fetches a collection document. The authenticated backend is
// tried first when a credential is configured; on any failure the
// anonymous fetch is tried; if both fail the caller gets an empty
// document. This is a degradation policy, not a success signal.
func (a *Adapter) Read(ctx context.Context, collection string) (Document, Revision) {
	if a.CanWrite() {
		doc, rev, err := a.backend.Read(ctx, collection)
		if err == nil {
			return normalized(doc), rev
		}
		log.Printf("contents: authenticated read of %s failed, trying fallback: %v", collection, err)
	}
	if a.fallback != nil {
		doc, err := a.fallback.Fetch(ctx, collection)
		if err == nil {
			return normalized(doc), ""
		}
		log.Printf("contents: fallback read of %s failed: %v", collection, err)
	}
	return EmptyDocument(), ""
}

// Write persists a collection document. The current revision is
// re-read immediately before the put so the store can reject a write
// against a document that changed since it was last seen.
func (a *Adapter) Write(ctx context.Context, collection string, doc Document) (Revision, error) {
	if !a.CanWrite() {
		return "", ErrUnauthorized
	}

	rev := Revision("")
	if _, current, err := a.backend.Read(ctx, collection); err == nil {
		rev = current
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	doc = normalized(doc)
	doc.LastUpdated = a.now().UTC().Format(time.RFC3339)
	doc.Version = SchemaVersion
	return a.backend.Put(ctx, collection, doc, rev)
}

func normalized(doc Document) Document {
	if doc.Messages == nil {
		doc.Messages = []Message{}
	}
	if doc.Version == "" {
		doc.Version = SchemaVersion
	}
	return doc
}

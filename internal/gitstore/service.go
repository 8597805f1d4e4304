// Package gitstore implements the revisioned-document contract against
// a local git repository, for development and offline moderation.
package gitstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"modqueue/api/internal/contents"
)

// Service keeps the collection documents under data/ in a single
// repository on the main branch. The blob hash of a document file is
// its revision token.
type Service struct {
	dir    string
	author string
	mu     sync.Mutex
}

func New(dir, author string) *Service {
	if strings.TrimSpace(author) == "" {
		author = "modqueue"
	}
	return &Service{dir: dir, author: author}
}

// Authorized is always true: a local repository needs no sync key.
func (s *Service) Authorized() bool { return true }

// Ensure initialises the repository with empty collection documents if
// it does not exist yet.
func (s *Service) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := git.PlainOpen(s.dir); err == nil {
		return nil
	} else if !errors.Is(err, git.ErrRepositoryNotExists) {
		return fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(s.dir, "data"), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	repo, err := git.PlainInit(s.dir, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	collections := []string{
		contents.CollectionPending,
		contents.CollectionApproved,
		contents.CollectionPublished,
		contents.CollectionRejected,
	}
	for _, collection := range collections {
		if err := s.writeFile(collection, contents.EmptyDocument()); err != nil {
			return err
		}
		if _, err := worktree.Add(relPath(collection)); err != nil {
			return fmt.Errorf("git add %s: %w", collection, err)
		}
	}

	hash, err := worktree.Commit("Initialize message collections", &git.CommitOptions{
		Author: s.signature(),
	})
	if err != nil {
		return fmt.Errorf("commit initial collections: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

func (s *Service) Read(_ context.Context, collection string) (contents.Document, contents.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	commit, err := s.headCommit()
	if err != nil {
		return contents.Document{}, "", err
	}

	file, err := commit.File(relPath(collection))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return contents.Document{}, "", contents.ErrNotFound
		}
		return contents.Document{}, "", fmt.Errorf("load %s from commit: %w", collection, err)
	}

	doc, err := decodeFile(file)
	if err != nil {
		return contents.Document{}, "", err
	}
	return doc, contents.Revision(file.Hash.String()), nil
}

func (s *Service) Put(_ context.Context, collection string, doc contents.Document, rev contents.Revision) (contents.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}

	commit, err := s.headCommit()
	if err != nil {
		return "", err
	}

	current, err := commit.File(relPath(collection))
	switch {
	case err == nil:
		if string(rev) != current.Hash.String() {
			return "", fmt.Errorf("%w: document changed since revision %s", contents.ErrConflict, rev)
		}
	case errors.Is(err, object.ErrFileNotFound):
		if rev != "" {
			return "", fmt.Errorf("%w: revision %s supplied for missing document", contents.ErrConflict, rev)
		}
	default:
		return "", fmt.Errorf("load %s from commit: %w", collection, err)
	}

	if err := s.writeFile(collection, doc); err != nil {
		return "", err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	if _, err := worktree.Add(relPath(collection)); err != nil {
		return "", fmt.Errorf("git add %s: %w", collection, err)
	}
	hash, err := worktree.Commit("Admin: Update "+contents.FileName(collection), &git.CommitOptions{
		Author: s.signature(),
	})
	if err != nil {
		return "", fmt.Errorf("commit %s: %w", collection, err)
	}

	committed, err := repo.CommitObject(hash)
	if err != nil {
		return "", fmt.Errorf("read commit object: %w", err)
	}
	written, err := committed.File(relPath(collection))
	if err != nil {
		return "", fmt.Errorf("read committed %s: %w", collection, err)
	}
	return contents.Revision(written.Hash.String()), nil
}

// History returns the most recent commits touching the store, newest
// first. The commit log doubles as the moderation audit trail.
func (s *Service) History(limit int) ([]CommitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commit *object.Commit) error {
		items = append(items, CommitInfo{
			Hash:      commit.Hash.String()[:7],
			Message:   strings.TrimSpace(commit.Message),
			Author:    commit.Author.Name,
			CreatedAt: commit.Author.When,
		})
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Service) headCommit() (*object.Commit, error) {
	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	return commit, nil
}

func (s *Service) writeFile(collection string, doc contents.Document) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s document: %w", collection, err)
	}
	path := filepath.Join(s.dir, "data", contents.FileName(collection))
	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", collection, err)
	}
	return nil
}

func (s *Service) signature() *object.Signature {
	return &object.Signature{
		Name:  s.author,
		Email: s.author + "@local.modqueue.dev",
		When:  time.Now(),
	}
}

func relPath(collection string) string {
	return "data/" + contents.FileName(collection)
}

func decodeFile(file *object.File) (contents.Document, error) {
	reader, err := file.Reader()
	if err != nil {
		return contents.Document{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return contents.Document{}, fmt.Errorf("read content bytes: %w", err)
	}

	var doc contents.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return contents.Document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

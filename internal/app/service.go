package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"modqueue/api/internal/auth"
	"modqueue/api/internal/authn"
	"modqueue/api/internal/config"
	"modqueue/api/internal/contents"
	"modqueue/api/internal/export"
	"modqueue/api/internal/gitstore"
	"modqueue/api/internal/metrics"
	"modqueue/api/internal/repo"
	"modqueue/api/internal/search"
	"modqueue/api/internal/session"
	"modqueue/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	Name         string
	Method       string
	JTI          string
	ExpiresAt    time.Time
}

type contentStore interface {
	CanWrite() bool
	Read(ctx context.Context, collection string) (contents.Document, contents.Revision)
	Write(ctx context.Context, collection string, doc contents.Document) (contents.Revision, error)
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, identity session.Identity, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (session.Identity, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
}

type signInService interface {
	PasswordSignIn(ctx context.Context, username, password string) (authn.Identity, error)
	GitHubSignIn(ctx context.Context, token string) (authn.Identity, error)
	GoogleSignIn(ctx context.Context, idToken string) (authn.Identity, error)
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexMessage(msg contents.Message, bucket string)
	ReindexAll(buckets []string)
}

type digestService interface {
	Digest(ctx context.Context, bucket string) (*export.Result, error)
}

type mediaResolver interface {
	ImageURLs(ctx context.Context, msg contents.Message) []string
}

type historian interface {
	History(limit int) ([]gitstore.CommitInfo, error)
}

type Service struct {
	cfg     config.Config
	store   contentStore
	repo    *repo.Repository
	signIn  signInService
	session sessionStore
	creds   *authn.CredentialStore
	search  searchService
	digest  digestService
	media   mediaResolver
	history historian
}

func New(cfg config.Config, store contentStore, sessions sessionStore, signIn signInService, creds *authn.CredentialStore) *Service {
	return &Service{
		cfg:     cfg,
		store:   store,
		repo:    repo.New(),
		signIn:  signIn,
		session: sessions,
		creds:   creds,
	}
}

// WithSearch attaches the optional search facade.
func (s *Service) WithSearch(search searchService) *Service {
	s.search = search
	return s
}

// WithDigest attaches the optional digest exporter.
func (s *Service) WithDigest(digest digestService) *Service {
	s.digest = digest
	return s
}

// WithMedia attaches the optional image URL resolver.
func (s *Service) WithMedia(media mediaResolver) *Service {
	s.media = media
	return s
}

// WithHistory attaches commit history when the local content backend is
// in use.
func (s *Service) WithHistory(history historian) *Service {
	s.history = history
	return s
}

// Snapshot exposes the in-memory mirror for the search fallback and the
// digest exporter.
func (s *Service) Snapshot() *repo.Repository {
	return s.repo
}

// Bootstrap loads the initial snapshot. Reads degrade rather than fail,
// so the console always starts.
func (s *Service) Bootstrap(ctx context.Context) {
	s.repo.LoadAll(ctx, s.store)
	if s.search != nil {
		s.search.ReindexAll(repo.Buckets)
	}
}

// Reload discards the snapshot and re-reads every visible bucket.
func (s *Service) Reload(ctx context.Context) map[string]any {
	s.repo.LoadAll(ctx, s.store)
	if s.search != nil {
		s.search.ReindexAll(repo.Buckets)
	}
	return map[string]any{
		"ok":     true,
		"counts": s.repo.Counts(),
	}
}

func (s *Service) PasswordLogin(ctx context.Context, username, password string) (Session, error) {
	identity, err := s.signIn.PasswordSignIn(ctx, username, password)
	if err != nil {
		metrics.LoginFailure.WithLabelValues("password").Inc()
		return Session{}, err
	}
	metrics.LoginSuccess.WithLabelValues("password").Inc()
	return s.issueSession(ctx, session.Identity{Name: identity.Name, Method: identity.Method})
}

// GitHubLogin verifies a personal access token and keeps it as the
// write credential for the content store.
func (s *Service) GitHubLogin(ctx context.Context, token string) (Session, error) {
	identity, err := s.signIn.GitHubSignIn(ctx, token)
	if err != nil {
		metrics.LoginFailure.WithLabelValues("github").Inc()
		return Session{}, err
	}
	s.creds.SetToken(token)
	metrics.LoginSuccess.WithLabelValues("github").Inc()
	return s.issueSession(ctx, session.Identity{Name: identity.Name, Method: identity.Method})
}

func (s *Service) GoogleLogin(ctx context.Context, idToken string) (Session, error) {
	identity, err := s.signIn.GoogleSignIn(ctx, idToken)
	if err != nil {
		metrics.LoginFailure.WithLabelValues("google").Inc()
		return Session{}, err
	}
	metrics.LoginSuccess.WithLabelValues("google").Inc()
	return s.issueSession(ctx, session.Identity{Name: identity.Name, Method: identity.Method})
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	identity, err := s.session.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.session.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, identity)
}

func (s *Service) issueSession(ctx context.Context, identity session.Identity) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:    identity.Name,
		Name:   identity.Name,
		Method: identity.Method,
		JTI:    jti,
		Exp:    expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.session.SaveRefreshSession(ctx, auth.HashToken(refresh), identity, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		Name:         identity.Name,
		Method:       identity.Method,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.session.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		Name:      claims.Name,
		Method:    claims.Method,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes both tokens. The GitHub write credential is left in
// place so a password re-login can still publish moderation decisions.
func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		_ = s.session.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.session.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// CanWrite reports whether moderation decisions can be persisted.
func (s *Service) CanWrite() bool {
	return s.store.CanWrite()
}

// ListMessages returns one bucket. Rejected is not mirrored, so it is
// read from the store on demand.
func (s *Service) ListMessages(ctx context.Context, bucket string) (map[string]any, error) {
	if !validBucket(bucket) {
		return nil, domainError(404, "NOT_FOUND", "Unknown bucket", nil)
	}

	var msgs []contents.Message
	if bucket == contents.CollectionRejected {
		doc, _ := s.store.Read(ctx, contents.CollectionRejected)
		msgs = doc.Messages
		if msgs == nil {
			msgs = []contents.Message{}
		}
	} else {
		msgs = s.repo.Messages(bucket)
	}

	return map[string]any{
		"bucket":   bucket,
		"messages": msgs,
		"canWrite": s.store.CanWrite(),
	}, nil
}

// Overview returns every visible bucket plus the counts the console
// header shows.
func (s *Service) Overview(context.Context) map[string]any {
	payload := map[string]any{
		"counts":   s.repo.Counts(),
		"canWrite": s.store.CanWrite(),
	}
	for _, bucket := range repo.Buckets {
		payload[bucket] = s.repo.Messages(bucket)
	}
	return payload
}

func (s *Service) GetMessage(ctx context.Context, bucket, id string) (map[string]any, error) {
	if !validBucket(bucket) || bucket == contents.CollectionRejected {
		return nil, domainError(404, "NOT_FOUND", "Unknown bucket", nil)
	}
	msg, ok := s.repo.Find(bucket, id)
	if !ok {
		return nil, domainError(404, "NOT_FOUND", "Message not found", nil)
	}

	payload := map[string]any{
		"bucket":  bucket,
		"message": msg,
	}
	if s.media != nil && len(msg.Images) > 0 {
		payload["imageUrls"] = s.media.ImageURLs(ctx, msg)
	}
	return payload, nil
}

// Approve moves a pending message to approved. The updated pending
// document is written first; only when both writes land does the
// snapshot advance. A failure on the second write is surfaced as a
// partial write and the snapshot stays put.
func (s *Service) Approve(ctx context.Context, id string, tags []string) (map[string]any, error) {
	if !s.store.CanWrite() {
		return nil, contents.ErrUnauthorized
	}

	pending, approved, msg, ok := s.repo.StageApprove(id, normalizeTags(tags))
	if !ok {
		return nil, domainError(404, "NOT_FOUND", "Message not found in pending", nil)
	}

	if _, err := s.store.Write(ctx, contents.CollectionPending, contents.Document{Messages: pending}); err != nil {
		return nil, countConflict(err)
	}
	if _, err := s.store.Write(ctx, contents.CollectionApproved, contents.Document{Messages: approved}); err != nil {
		metrics.PartialWrites.Inc()
		return nil, &PartialWriteError{Collection: contents.CollectionApproved, Err: countConflict(err)}
	}

	s.repo.CommitApprove(pending, approved)
	metrics.MessagesApproved.Inc()
	if s.search != nil {
		s.search.IndexMessage(msg, contents.CollectionApproved)
	}

	return map[string]any{
		"ok":      true,
		"message": msg,
		"counts":  s.repo.Counts(),
	}, nil
}

// Reject moves a pending message onto the rejected log. The log is
// freshly re-read so entries written by other sessions survive.
func (s *Service) Reject(ctx context.Context, id string) (map[string]any, error) {
	if !s.store.CanWrite() {
		return nil, contents.ErrUnauthorized
	}

	rejectedDoc, _ := s.store.Read(ctx, contents.CollectionRejected)
	pending, rejected, msg, ok := s.repo.StageReject(id, rejectedDoc)
	if !ok {
		return nil, domainError(404, "NOT_FOUND", "Message not found in pending", nil)
	}

	if _, err := s.store.Write(ctx, contents.CollectionPending, contents.Document{Messages: pending}); err != nil {
		return nil, countConflict(err)
	}
	if _, err := s.store.Write(ctx, contents.CollectionRejected, rejected); err != nil {
		metrics.PartialWrites.Inc()
		return nil, &PartialWriteError{Collection: contents.CollectionRejected, Err: countConflict(err)}
	}

	s.repo.CommitReject(pending)
	metrics.MessagesRejected.Inc()
	if s.search != nil {
		s.search.IndexMessage(msg, contents.CollectionRejected)
	}

	return map[string]any{
		"ok":      true,
		"message": msg,
		"counts":  s.repo.Counts(),
	}, nil
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) ExportDigest(ctx context.Context, bucket string) (*export.Result, error) {
	if s.digest == nil {
		return nil, domainError(503, "EXPORT_UNAVAILABLE", "Export not configured", nil)
	}
	if !validBucket(bucket) || bucket == contents.CollectionRejected {
		return nil, domainError(404, "NOT_FOUND", "Unknown bucket", nil)
	}
	result, err := s.digest.Digest(ctx, bucket)
	if err != nil {
		if errors.Is(err, export.ErrEmptyDigest) {
			return nil, domainError(404, "NOT_FOUND", "Bucket has no messages", nil)
		}
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(503, "EXPORT_UNAVAILABLE", "PDF renderer not installed", nil)
		}
		return nil, err
	}
	return result, nil
}

// History lists recent content commits when the local backend is used.
func (s *Service) History(limit int) (map[string]any, error) {
	if s.history == nil {
		return nil, domainError(404, "NOT_FOUND", "History not available for this content backend", nil)
	}
	commits, err := s.history.History(limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"commits": commits}, nil
}

func (s *Service) SyncToken() string {
	return s.cfg.SyncToken
}

func (s *Service) Ping(ctx context.Context) error {
	return s.session.Ping(ctx)
}

func validBucket(bucket string) bool {
	switch bucket {
	case contents.CollectionPending, contents.CollectionApproved,
		contents.CollectionPublished, contents.CollectionRejected:
		return true
	}
	return false
}

// normalizeTags trims whitespace and drops empty entries, preserving
// order.
func normalizeTags(tags []string) []string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		cleaned = append(cleaned, tag)
	}
	return cleaned
}

func countConflict(err error) error {
	if errors.Is(err, contents.ErrConflict) {
		metrics.WriteConflicts.Inc()
	}
	return err
}

package export

import (
	"context"
	"time"

	"modqueue/api/internal/contents"
)

// Snapshot lists the messages currently mirrored for a bucket.
type Snapshot interface {
	Messages(bucket string) []contents.Message
}

// MediaResolver turns image attachments into fetchable URLs.
type MediaResolver interface {
	ImageURLs(ctx context.Context, msg contents.Message) []string
}

// Service renders a bucket of messages as a PDF digest.
type Service struct {
	snapshot Snapshot
	media    MediaResolver
	now      func() time.Time
}

func NewService(snapshot Snapshot, media MediaResolver) *Service {
	return &Service{snapshot: snapshot, media: media, now: time.Now}
}

// Digest exports all messages of one bucket in display order.
func (s *Service) Digest(ctx context.Context, bucket string) (*Result, error) {
	msgs := s.snapshot.Messages(bucket)
	if len(msgs) == 0 {
		return nil, ErrEmptyDigest
	}

	data := TemplateData{
		Title:       "Message digest: " + bucket,
		Bucket:      bucket,
		GeneratedAt: s.now().UTC(),
		Messages:    make([]TemplateMessage, 0, len(msgs)),
	}
	for _, msg := range msgs {
		tm := TemplateMessage{
			ID:        msg.ID,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
			Tags:      msg.Tags,
		}
		if s.media != nil {
			tm.ImageURLs = s.media.ImageURLs(ctx, msg)
		}
		data.Messages = append(data.Messages, tm)
	}

	html, err := RenderDigestHTML(data)
	if err != nil {
		return nil, err
	}
	return exportPDF(html, data.Title)
}

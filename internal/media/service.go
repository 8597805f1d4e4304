// Package media resolves message image attachments to fetchable URLs.
// When an object store is configured the URLs are short-lived presigned
// links; otherwise they point at the public raw content host.
package media

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"modqueue/api/internal/contents"
)

const presignTTL = 15 * time.Minute

type Service struct {
	client     *minio.Client
	bucket     string
	rawBaseURL string
}

// NewService creates a media resolver. Endpoint may be empty, in which
// case every image resolves through rawBaseURL.
func NewService(endpoint, accessKey, secretKey, bucket, rawBaseURL string, useSSL bool) (*Service, error) {
	s := &Service{bucket: bucket, rawBaseURL: strings.TrimRight(rawBaseURL, "/")}
	if endpoint == "" {
		return s, nil
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	s.client = client
	return s, nil
}

// ImageURL returns a URL for one attachment filename.
func (s *Service) ImageURL(ctx context.Context, filename string) string {
	if filename == "" {
		return ""
	}
	if s.client != nil {
		presigned, err := s.client.PresignedGetObject(ctx, s.bucket, filename, presignTTL, url.Values{})
		if err == nil {
			return presigned.String()
		}
		log.Printf("media: presign %s: %v", filename, err)
	}
	if s.rawBaseURL == "" {
		return ""
	}
	return s.rawBaseURL + "/images/" + url.PathEscape(filename)
}

// ImageURLs resolves all attachments of a message in order.
func (s *Service) ImageURLs(ctx context.Context, msg contents.Message) []string {
	if len(msg.Images) == 0 {
		return nil
	}
	urls := make([]string, 0, len(msg.Images))
	for _, img := range msg.Images {
		urls = append(urls, s.ImageURL(ctx, img.Filename))
	}
	return urls
}

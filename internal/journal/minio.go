package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"nexus/internal/config"
	"nexus/internal/turn"
)

type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIOSink keeps one NDJSON object per session and re-uploads it after each
// event. Only the current session is buffered.
type MinIOSink struct {
	client objectPutter
	bucket string
	prefix string

	mu      sync.Mutex
	session string
	content []byte
}

// NewMinIOSink connects to the configured endpoint and creates the bucket when
// it does not exist yet.
func NewMinIOSink(ctx context.Context, cfg config.MinIOConfig) (*MinIOSink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket %s: %w", cfg.Bucket, err)
		}
	}
	return newMinIOSink(client, cfg.Bucket, cfg.Prefix), nil
}

func newMinIOSink(client objectPutter, bucket, prefix string) *MinIOSink {
	return &MinIOSink{client: client, bucket: bucket, prefix: prefix}
}

func (s *MinIOSink) Name() string { return "minio" }

func (s *MinIOSink) objectName(session string) string {
	return path.Join(s.prefix, session, "journal.ndjson")
}

func (s *MinIOSink) Write(ctx context.Context, ev turn.Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	s.mu.Lock()
	if ev.Session != s.session {
		s.session = ev.Session
		s.content = nil
	}
	s.content = append(s.content, line...)
	s.content = append(s.content, '\n')
	body := bytes.Clone(s.content)
	s.mu.Unlock()

	objectName := s.objectName(ev.Session)
	_, err = s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/x-ndjson"})
	if err != nil {
		return fmt.Errorf("failed to upload journal to %s: %w", objectName, err)
	}
	return nil
}

func (s *MinIOSink) Close() error { return nil }

package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3MirrorUploadTimeout = 10 * time.Second

// S3ClientConfig controls how NewS3ClientFromEnv resolves credentials for
// the mirror's S3 client. Leaving AccessKeyID empty defers entirely to the
// default credential chain (environment, shared config, instance role).
type S3ClientConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// NewS3ClientFromEnv resolves an *s3.Client using the standard AWS default
// credential chain, or static credentials when cfg supplies them directly
// (e.g. from a cache plugin's own configuration rather than the host's
// environment).
func NewS3ClientFromEnv(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg), nil
}

// S3Mirror wraps a FileBackend with an optional durable off-box copy of
// entries in S3. Local reads and writes are unaffected by S3 latency: a
// local miss falls through to S3 and repopulates the local file, and a
// local write mirrors to S3 in the background.
type S3Mirror struct {
	*FileBackend

	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Mirror wraps local with a durable S3 copy under bucket/prefix.
func NewS3Mirror(local *FileBackend, client *s3.Client, bucket, prefix string, logger *slog.Logger) *S3Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Mirror{FileBackend: local, client: client, bucket: bucket, prefix: prefix, logger: logger}
}

func (m *S3Mirror) objectKey(key string) string {
	filename, _ := m.pathFor(key)
	if m.prefix == "" {
		return filename
	}
	return m.prefix + "/" + filename
}

// Get tries the local file backend first, falling back to S3 and
// repopulating the local copy on a remote hit.
func (m *S3Mirror) Get(ctx context.Context, key string) (*Entry, bool, error) {
	entry, ok, err := m.FileBackend.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return entry, true, nil
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.objectKey(key)),
	})
	if err != nil {
		return nil, false, nil
	}
	defer out.Body.Close()

	var rec fileRecord
	if err := gob.NewDecoder(out.Body).Decode(&rec); err != nil {
		return nil, false, fmt.Errorf("decode s3 mirror entry: %w", err)
	}

	remote := &Entry{Status: rec.Status, Header: rec.Header, Body: rec.Body, CreatedAt: rec.CreatedAt, TTL: rec.TTL}
	if remote.Expired(time.Now()) {
		return nil, false, nil
	}

	if err := m.FileBackend.Put(ctx, key, remote); err != nil {
		m.logger.Warn("failed to repopulate local cache from s3 mirror", "key", key, "error", err)
	}

	return remote, true, nil
}

// Put writes locally, then mirrors to S3 in the background.
func (m *S3Mirror) Put(ctx context.Context, key string, entry *Entry) error {
	if err := m.FileBackend.Put(ctx, key, entry); err != nil {
		return err
	}

	go func() {
		var buf bytes.Buffer
		rec := fileRecord{Status: entry.Status, Header: entry.Header, Body: entry.Body, CreatedAt: entry.CreatedAt, TTL: entry.TTL}
		if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
			m.logger.Warn("failed to encode s3 mirror entry", "key", key, "error", err)
			return
		}

		uploadCtx, cancel := context.WithTimeout(context.Background(), s3MirrorUploadTimeout)
		defer cancel()

		_, err := m.client.PutObject(uploadCtx, &s3.PutObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(m.objectKey(key)),
			Body:   bytes.NewReader(buf.Bytes()),
		})
		if err != nil {
			m.logger.Warn("failed to mirror cache entry to s3", "key", key, "error", err)
		}
	}()

	return nil
}

// Remove deletes locally and mirrors the deletion to S3 in the background.
func (m *S3Mirror) Remove(ctx context.Context, key string) error {
	if err := m.FileBackend.Remove(ctx, key); err != nil {
		return err
	}

	go func() {
		deleteCtx, cancel := context.WithTimeout(context.Background(), s3MirrorUploadTimeout)
		defer cancel()
		_, err := m.client.DeleteObject(deleteCtx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(m.objectKey(key)),
		})
		if err != nil {
			m.logger.Warn("failed to mirror cache removal to s3", "key", key, "error", err)
		}
	}()

	return nil
}

var _ Backend = (*S3Mirror)(nil)

package publish

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/deusflow/aidigest/internal/config"
	"github.com/deusflow/aidigest/internal/logger"
)

// S3Uploader copies published files to an S3-compatible bucket.
type S3Uploader struct {
	s3     *s3.Client
	bucket string
	prefix string
	log    *slog.Logger
}

// NewS3Uploader builds a client for cfg. Static credentials are used when
// both keys are set, otherwise the default AWS credential chain applies.
// A custom endpoint switches to path-style addressing.
func NewS3Uploader(ctx context.Context, cfg config.S3Config, log *slog.Logger) (*S3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("publish: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{
		s3:     client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    logger.Component(log, "upload"),
	}, nil
}

// Upload puts every file under its path relative to dir and returns how
// many objects were written. It stops at the first failure.
func (u *S3Uploader) Upload(ctx context.Context, dir string, files []string) (int, error) {
	uploaded := 0
	for _, file := range files {
		key, err := u.objectKey(dir, file)
		if err != nil {
			return uploaded, err
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return uploaded, fmt.Errorf("publish: read %s: %w", file, err)
		}

		_, err = u.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType(file)),
		})
		if err != nil {
			return uploaded, fmt.Errorf("publish: upload %s: %w", key, err)
		}
		uploaded++
		u.log.Debug("object uploaded", "key", key, "size", len(data))
	}
	u.log.Info("upload finished", "bucket", u.bucket, "count", uploaded)
	return uploaded, nil
}

func (u *S3Uploader) objectKey(dir, file string) (string, error) {
	rel, err := filepath.Rel(dir, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("publish: %s is outside %s", file, dir)
	}
	rel = filepath.ToSlash(rel)
	if u.prefix == "" {
		return rel, nil
	}
	return path.Join(u.prefix, rel), nil
}

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".xml":
		return "application/rss+xml; charset=utf-8"
	case ".atom":
		return "application/atom+xml; charset=utf-8"
	case ".json":
		return "application/feed+json; charset=utf-8"
	case ".html":
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Package storage moves aged call logs out of the hot store before the
// retention worker deletes them.
package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"idgate/internal/config"
)

// LogArchiver persists a batch of serialized call logs under a key.
type LogArchiver interface {
	Archive(ctx context.Context, key string, content []byte) error
}

// S3Archiver writes archives to an S3 bucket as JSON objects.
type S3Archiver struct {
	uploader *s3manager.Uploader
	bucket   string
}

func NewS3Archiver(cfg *config.Config) *S3Archiver {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.AWSRegion),
		S3ForcePathStyle: aws.Bool(true),
	}
	if cfg.AWSAccessKey != "" && cfg.AWSSecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AWSAccessKey, cfg.AWSSecretKey, "")
	}
	if cfg.AWSEndpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.AWSEndpoint)
	}

	sess := session.Must(session.NewSession(awsConfig))

	return &S3Archiver{
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.LogArchiveBucket,
	}
}

func (a *S3Archiver) Archive(ctx context.Context, key string, content []byte) error {
	_, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}

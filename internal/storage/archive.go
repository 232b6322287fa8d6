// Package storage keeps verified webhook payloads in S3-compatible object
// storage so deliveries can be audited and replayed.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
)

// Archiver stores raw webhook bodies.
type Archiver interface {
	ArchiveWebhook(ctx context.Context, webhookID, eventType string, receivedAt time.Time, payload []byte) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes payloads to webhooks/YYYY/MM/DD/<webhook-id>.json.
type S3Archiver struct {
	client objectPutter
	bucket string
}

func NewS3Archiver(client objectPutter, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket}
}

// NewS3Client builds an S3 client from the archive settings. A custom
// endpoint switches to path-style addressing for S3-compatible services.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ArchiveRegion),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	}
	if cfg.ArchiveAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ArchiveS3URL != "" {
			o.BaseEndpoint = aws.String(cfg.ArchiveS3URL)
			o.UsePathStyle = true
		}
	}), nil
}

// WebhookKey returns the object key for a delivery.
func WebhookKey(webhookID string, receivedAt time.Time) string {
	if webhookID == "" {
		webhookID = fmt.Sprintf("unknown-%d", receivedAt.UnixNano())
	}
	return path.Join("webhooks", receivedAt.UTC().Format("2006/01/02"), webhookID+".json")
}

func (a *S3Archiver) ArchiveWebhook(ctx context.Context, webhookID, eventType string, receivedAt time.Time, payload []byte) (string, error) {
	key := WebhookKey(webhookID, receivedAt)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"event-type":  eventType,
			"received-at": receivedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("uploading webhook %s to s3://%s/%s: %w", webhookID, a.bucket, key, err)
	}
	return key, nil
}

// NopArchiver discards payloads.
type NopArchiver struct{}

func (NopArchiver) ArchiveWebhook(context.Context, string, string, time.Time, []byte) (string, error) {
	return "", nil
}

// removeDisableGzip is a workaround for S3 signature errors with some S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}

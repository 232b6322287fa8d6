package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestWebhookKey(t *testing.T) {
	at := time.Date(2026, 4, 9, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))
	assert.Equal(t, "webhooks/2026/04/10/msg_1.json", WebhookKey("msg_1", at))
	assert.Contains(t, WebhookKey("", at), "webhooks/2026/04/10/unknown-")
}

func TestS3ArchiverUploadsPayload(t *testing.T) {
	putter := &fakePutter{}
	a := NewS3Archiver(putter, "webhook-archive")
	at := time.Date(2026, 4, 9, 8, 0, 0, 0, time.UTC)

	key, err := a.ArchiveWebhook(context.Background(), "msg_1", "payment.succeeded", at, []byte(`{"type":"payment.succeeded"}`))
	require.NoError(t, err)
	assert.Equal(t, "webhooks/2026/04/09/msg_1.json", key)
	assert.Equal(t, "webhook-archive", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "payment.succeeded", putter.input.Metadata["event-type"])
	assert.JSONEq(t, `{"type":"payment.succeeded"}`, string(putter.body))
}

func TestS3ArchiverWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := NewS3Archiver(&fakePutter{err: boom}, "b")
	_, err := a.ArchiveWebhook(context.Background(), "msg_1", "x", time.Now(), nil)
	assert.ErrorIs(t, err, boom)
}

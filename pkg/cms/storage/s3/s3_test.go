package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

func TestS3Backend_BasicConfiguration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(context.Background(), Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("Defaults", func(t *testing.T) {
		backend, err := New(context.Background(), Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", backend.cfg.Region)
		assert.Equal(t, time.Hour, backend.cfg.PresignTTL)
	})

	t.Run("CustomPresignTTL", func(t *testing.T) {
		backend, err := New(context.Background(), Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
			PresignTTL:      2 * time.Hour,
		})
		require.NoError(t, err)
		assert.Equal(t, 2*time.Hour, backend.cfg.PresignTTL)
	})
}

func TestPutObjectInput(t *testing.T) {
	t.Run("RejectsUnknownEncryption", func(t *testing.T) {
		_, err := New(context.Background(), Config{Bucket: "media", ServerSideEncryption: "rot13"})
		assert.Error(t, err)
	})

	t.Run("EncryptionAndCaching", func(t *testing.T) {
		backend, err := New(context.Background(), Config{
			Bucket:               "media",
			AccessKeyID:          "test-key",
			SecretAccessKey:      "test-secret",
			ServerSideEncryption: "aws:kms",
			KMSKeyID:             "key-1",
			CacheControl:         "public, max-age=31536000",
		})
		require.NoError(t, err)

		input := backend.putObjectInput(cms.UploadParams{ObjectKey: "uploads/a.png", MimeType: "image/png"}, strings.NewReader("x"))
		assert.Equal(t, "media", *input.Bucket)
		assert.Equal(t, "uploads/a.png", *input.Key)
		assert.Equal(t, "image/png", *input.ContentType)
		assert.Equal(t, "public, max-age=31536000", *input.CacheControl)
		assert.Equal(t, types.ServerSideEncryptionAwsKms, input.ServerSideEncryption)
		assert.Equal(t, "key-1", *input.SSEKMSKeyId)
	})

	t.Run("PlainUpload", func(t *testing.T) {
		backend, err := New(context.Background(), Config{Bucket: "media", AccessKeyID: "k", SecretAccessKey: "s"})
		require.NoError(t, err)

		input := backend.putObjectInput(cms.UploadParams{ObjectKey: "pdfs/p.pdf"}, strings.NewReader("x"))
		assert.Nil(t, input.ContentType)
		assert.Nil(t, input.CacheControl)
		assert.Empty(t, input.ServerSideEncryption)
	})
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		key  string
		want string
	}{
		{
			name: "aws virtual hosted",
			cfg:  Config{Bucket: "media", Region: "eu-west-1"},
			key:  "uploads/a b.png",
			want: "https://media.s3.eu-west-1.amazonaws.com/uploads/a%20b.png",
		},
		{
			name: "public base url",
			cfg:  Config{Bucket: "media", PublicBaseURL: "https://cdn.example.com/"},
			key:  "imageasset/uploads/a.png",
			want: "https://cdn.example.com/imageasset/uploads/a.png",
		},
		{
			name: "path style endpoint",
			cfg:  Config{Bucket: "media", Endpoint: "http://localhost:9000", UsePathStyle: true},
			key:  "pdfs/r.pdf",
			want: "http://localhost:9000/media/pdfs/r.pdf",
		},
		{
			name: "virtual hosted endpoint",
			cfg:  Config{Bucket: "media", Endpoint: "https://nyc3.digitaloceanspaces.com"},
			key:  "pdfs/r.pdf",
			want: "https://media.nyc3.digitaloceanspaces.com/pdfs/r.pdf",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PublicURL(tt.cfg, tt.key))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &types.NotFound{})))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}

// TestS3Backend_Integration requires a running MinIO instance or S3 credentials
func TestS3Backend_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	endpoint := os.Getenv("AWS_S3_ENDPOINT")
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	bucket := os.Getenv("AWS_S3_BUCKET")
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		t.Skip("Skipping integration test: S3/MinIO environment variables not set")
	}

	ctx := context.Background()
	backend, err := New(ctx, Config{
		Bucket:          bucket,
		Region:          "us-east-1",
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		Endpoint:        endpoint,
		UsePathStyle:    true,
		EnsureBucket:    true,
	})
	require.NoError(t, err)

	objectKey := fmt.Sprintf("test/integration/%d/file.txt", time.Now().UnixNano())
	testData := []byte("Hello from S3 integration test!")

	t.Run("UploadAndDownload", func(t *testing.T) {
		err := backend.UploadWithParams(ctx, bytes.NewReader(testData), cms.UploadParams{ObjectKey: objectKey, MimeType: "text/plain"})
		require.NoError(t, err)

		reader, err := backend.Download(ctx, objectKey)
		require.NoError(t, err)
		defer reader.Close()

		downloaded, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, testData, downloaded)
	})

	t.Run("GetObjectMeta", func(t *testing.T) {
		meta, err := backend.GetObjectMeta(ctx, objectKey)
		require.NoError(t, err)
		assert.Equal(t, int64(len(testData)), meta.Size)
		assert.Equal(t, "text/plain", meta.ContentType)
		assert.NotEmpty(t, meta.ETag)
	})

	t.Run("GetObjectMeta_NonExistent", func(t *testing.T) {
		_, err := backend.GetObjectMeta(ctx, "nonexistent/object.txt")
		assert.ErrorIs(t, err, cms.ErrObjectNotFound)
	})

	t.Run("GetDownloadURL", func(t *testing.T) {
		u, err := backend.GetDownloadURL(ctx, objectKey, "file.txt")
		require.NoError(t, err)
		assert.True(t, strings.Contains(u, "X-Amz"), "expected a presigned URL")
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, objectKey))
		_, err := backend.Download(ctx, objectKey)
		assert.ErrorIs(t, err, cms.ErrObjectNotFound)
	})
}

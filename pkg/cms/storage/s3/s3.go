package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

// Config describes the bucket media is written to. Endpoint and
// UsePathStyle target MinIO and other S3-compatible servers; static
// credentials are optional and fall back to the default AWS chain.
type Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool

	// PresignTTL bounds download links. Zero means one hour.
	PresignTTL time.Duration

	// PublicBaseURL is prepended to object keys for durable public URLs,
	// e.g. a CDN domain in front of the bucket. When empty the bucket's
	// own URL is used.
	PublicBaseURL string

	// ServerSideEncryption is "", "AES256" or "aws:kms". KMSKeyID selects
	// the key for aws:kms and may be empty to use the bucket default.
	ServerSideEncryption string
	KMSKeyID             string

	// CacheControl is stored on every uploaded object. Unique object keys
	// never change content, so media can be cached for a long time.
	CacheControl string

	// EnsureBucket creates the bucket on startup when it is missing.
	EnsureBucket bool
}

const defaultRegion = "us-east-1"

// Backend stores media objects in one S3 bucket.
type Backend struct {
	cfg      Config
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
}

// New connects to the bucket described by cfg.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}
	switch types.ServerSideEncryption(cfg.ServerSideEncryption) {
	case "", types.ServerSideEncryptionAes256, types.ServerSideEncryptionAwsKms:
	default:
		return nil, fmt.Errorf("s3: unsupported server-side encryption %q", cfg.ServerSideEncryption)
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		}
	})

	b := &Backend{
		cfg:      cfg,
		client:   client,
		presign:  s3.NewPresignClient(client),
		uploader: manager.NewUploader(client),
	}
	if cfg.EnsureBucket {
		if err := b.ensureBucket(ctx); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Backend) bucket() *string { return aws.String(b.cfg.Bucket) }

var _ cms.BlobStore = (*Backend)(nil)

// isNotFound matches the typed and the generic API errors S3 and MinIO
// return for missing buckets and keys.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}

func (b *Backend) ensureBucket(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: b.bucket()})
	if err == nil {
		return nil
	}
	if !isNotFound(err) && !strings.Contains(err.Error(), "BadRequest") {
		return fmt.Errorf("s3: head bucket %s: %w", b.cfg.Bucket, err)
	}

	in := &s3.CreateBucketInput{Bucket: b.bucket()}
	if b.cfg.Region != defaultRegion {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.cfg.Region),
		}
	}
	if _, err := b.client.CreateBucket(ctx, in); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
				return nil
			}
		}
		return fmt.Errorf("s3: create bucket %s: %w", b.cfg.Bucket, err)
	}
	return nil
}

// GetObjectMeta issues a HEAD for key.
func (b *Backend) GetObjectMeta(ctx context.Context, key string) (*cms.ObjectMeta, error) {
	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: b.bucket(), Key: aws.String(key)})
	if err != nil {
		return nil, b.wrap("head", key, err)
	}

	ctype := aws.ToString(head.ContentType)
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	meta := map[string]string{"content_type": ctype}
	for k, v := range head.Metadata {
		if k != "content_type" {
			meta[k] = v
		}
	}

	return &cms.ObjectMeta{
		Key:         key,
		Size:        aws.ToInt64(head.ContentLength),
		ContentType: ctype,
		UpdatedAt:   aws.ToTime(head.LastModified),
		ETag:        strings.Trim(aws.ToString(head.ETag), `"`),
		Metadata:    meta,
	}, nil
}

func (b *Backend) wrap(op, key string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s: %w", key, cms.ErrObjectNotFound)
	}
	return fmt.Errorf("s3: %s %s: %w", op, key, err)
}

func (b *Backend) putObjectInput(params cms.UploadParams, body io.Reader) *s3.PutObjectInput {
	in := &s3.PutObjectInput{Bucket: b.bucket(), Key: aws.String(params.ObjectKey), Body: body}
	if params.MimeType != "" {
		in.ContentType = aws.String(params.MimeType)
	}
	if b.cfg.CacheControl != "" {
		in.CacheControl = aws.String(b.cfg.CacheControl)
	}
	if sse := types.ServerSideEncryption(b.cfg.ServerSideEncryption); sse != "" {
		in.ServerSideEncryption = sse
		if sse == types.ServerSideEncryptionAwsKms && b.cfg.KMSKeyID != "" {
			in.SSEKMSKeyId = aws.String(b.cfg.KMSKeyID)
		}
	}
	return in
}

// Upload stores r under key without a content type.
func (b *Backend) Upload(ctx context.Context, key string, r io.Reader) error {
	return b.UploadWithParams(ctx, r, cms.UploadParams{ObjectKey: key})
}

// UploadWithParams streams r through the multipart uploader, so bodies of
// unknown length are accepted.
func (b *Backend) UploadWithParams(ctx context.Context, r io.Reader, params cms.UploadParams) error {
	if params.ObjectKey == "" {
		return errors.New("s3: object key is required")
	}
	if _, err := b.uploader.Upload(ctx, b.putObjectInput(params, r)); err != nil {
		return fmt.Errorf("s3: put %s: %w", params.ObjectKey, err)
	}
	return nil
}

// GetPublicURL returns a durable URL for objectKey. It does not sign the
// URL, so the bucket or the CDN in front of it must allow public reads.
func (b *Backend) GetPublicURL(ctx context.Context, objectKey string) (string, error) {
	return PublicURL(b.cfg, objectKey), nil
}

// PublicURL builds the unsigned URL for key under cfg.
func PublicURL(cfg Config, key string) string {
	escaped := escapeKey(key)
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/") + "/" + escaped
	}
	if cfg.Endpoint != "" {
		endpoint := strings.TrimRight(cfg.Endpoint, "/")
		if cfg.UsePathStyle {
			return endpoint + "/" + cfg.Bucket + "/" + escaped
		}
		if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
			u.Host = cfg.Bucket + "." + u.Host
			return u.String() + "/" + escaped
		}
		return endpoint + "/" + cfg.Bucket + "/" + escaped
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.Bucket, region, escaped)
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// GetDownloadURL presigns a GET for key valid for Config.PresignTTL. A
// non-empty filename makes the response an attachment.
func (b *Backend) GetDownloadURL(ctx context.Context, key string, filename string) (string, error) {
	in := &s3.GetObjectInput{Bucket: b.bucket(), Key: aws.String(key)}
	if filename != "" {
		in.ResponseContentDisposition = aws.String(mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}
	req, err := b.presign.PresignGetObject(ctx, in, s3.WithPresignExpires(b.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("s3: presign %s: %w", key, err)
	}
	return req.URL, nil
}

func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: b.bucket(), Key: aws.String(key)})
	if err != nil {
		return nil, b.wrap("get", key, err)
	}
	return out.Body, nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: b.bucket(), Key: aws.String(key)})
	if err != nil {
		return fmt.Errorf("s3: delete %s: %w", key, err)
	}
	return nil
}

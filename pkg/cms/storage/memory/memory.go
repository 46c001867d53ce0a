package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

// DefaultBaseURL prefixes public URLs when none is configured.
const DefaultBaseURL = "https://blob.local"

type object struct {
	data      []byte
	mimeType  string
	updatedAt time.Time
}

// Backend is an in-memory implementation of the cms.BlobStore interface.
// It stands in for a remote blob host in tests and local runs.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
}

// New creates a new in-memory storage backend. Public URLs are built from
// baseURL, or DefaultBaseURL when empty.
func New(baseURL string) *Backend {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Backend{
		objects: make(map[string]object),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

var _ cms.BlobStore = (*Backend)(nil)

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*cms.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, fmt.Errorf("%s: %w", objectKey, cms.ErrObjectNotFound)
	}

	return &cms.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(obj.data)),
		ContentType: obj.mimeType,
		UpdatedAt:   obj.updatedAt,
		Metadata:    map[string]string{"mime_type": obj.mimeType},
	}, nil
}

// Upload uploads content directly
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	return b.UploadWithParams(ctx, reader, cms.UploadParams{ObjectKey: objectKey})
}

// UploadWithParams uploads content with parameters
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params cms.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[params.ObjectKey] = object{data: data, mimeType: mimeType, updatedAt: time.Now().UTC()}
	return nil
}

// GetDownloadURL returns the public URL; the filename hint is carried as a
// query parameter.
func (b *Backend) GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error) {
	u, err := b.GetPublicURL(ctx, objectKey)
	if err != nil || downloadFilename == "" {
		return u, err
	}
	return u + "?filename=" + url.QueryEscape(downloadFilename), nil
}

// GetPublicURL returns baseURL/objectKey
func (b *Backend) GetPublicURL(ctx context.Context, objectKey string) (string, error) {
	return b.baseURL + "/" + strings.TrimLeft(objectKey, "/"), nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, fmt.Errorf("%s: %w", objectKey, cms.ErrObjectNotFound)
	}

	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return fmt.Errorf("%s: %w", objectKey, cms.ErrObjectNotFound)
	}

	delete(b.objects, objectKey)
	return nil
}

// Keys returns the stored object keys.
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	return keys
}

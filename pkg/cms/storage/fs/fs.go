// Package fs keeps media under a local directory, the MEDIA_ROOT layout
// served at MEDIA_URL.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

// ErrInvalidKey is returned for keys that would resolve outside the root.
var ErrInvalidKey = errors.New("invalid object key")

type Config struct {
	BaseDir   string // MEDIA_ROOT
	URLPrefix string // MEDIA_URL
}

// Backend stores each object as a file named by its key.
type Backend struct {
	root   string
	prefix string
}

var _ cms.BlobStore = (*Backend)(nil)

// New creates cfg.BaseDir if needed.
func New(cfg Config) (*Backend, error) {
	if cfg.BaseDir == "" {
		return nil, errors.New("fs: base directory is required")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("fs: create %s: %w", cfg.BaseDir, err)
	}

	prefix := cfg.URLPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Backend{root: filepath.Clean(cfg.BaseDir), prefix: prefix}, nil
}

func (b *Backend) resolve(key string) (string, error) {
	rel := filepath.FromSlash(strings.TrimLeft(key, "/"))
	if rel == "" {
		return "", ErrInvalidKey
	}
	p := filepath.Join(b.root, rel)
	if !strings.HasPrefix(p, b.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return p, nil
}

func missing(key string) error {
	return fmt.Errorf("%s: %w", key, cms.ErrObjectNotFound)
}

// GetObjectMeta stats the file. The content type comes from the extension
// and falls back to sniffing the first bytes.
func (b *Backend) GetObjectMeta(ctx context.Context, key string) (*cms.ObjectMeta, error) {
	p, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, missing(key)
	case err != nil:
		return nil, fmt.Errorf("fs: stat %s: %w", key, err)
	case info.IsDir():
		return nil, missing(key)
	}

	ctype := mime.TypeByExtension(filepath.Ext(p))
	if ctype == "" {
		ctype = sniff(p)
	}
	return &cms.ObjectMeta{
		Key:         key,
		Size:        info.Size(),
		ContentType: ctype,
		UpdatedAt:   info.ModTime(),
		Metadata:    map[string]string{"content_type": ctype},
	}, nil
}

func sniff(p string) string {
	f, err := os.Open(p)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()
	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	return http.DetectContentType(head[:n])
}

// Upload writes through a temp file in the target directory and renames it
// into place, so a reader never sees a partial object.
func (b *Backend) Upload(ctx context.Context, key string, r io.Reader) error {
	p, err := b.resolve(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fs: mkdir for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("fs: write %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("fs: write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("fs: write %s: %w", key, err)
	}
	return nil
}

// UploadWithParams ignores the MIME type; it is derived again on read.
func (b *Backend) UploadWithParams(ctx context.Context, r io.Reader, params cms.UploadParams) error {
	return b.Upload(ctx, params.ObjectKey, r)
}

func (b *Backend) GetPublicURL(ctx context.Context, key string) (string, error) {
	if b.prefix == "" {
		return "", errors.New("fs: no URL prefix configured")
	}
	return b.prefix + strings.TrimLeft(key, "/"), nil
}

// GetDownloadURL is the public URL, with the suggested filename as a query
// parameter when one is given.
func (b *Backend) GetDownloadURL(ctx context.Context, key string, filename string) (string, error) {
	u, err := b.GetPublicURL(ctx, key)
	if err != nil || filename == "" {
		return u, err
	}
	return u + "?" + url.Values{"filename": {filename}}.Encode(), nil
}

func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, missing(key)
	}
	if err != nil {
		return nil, fmt.Errorf("fs: open %s: %w", key, err)
	}
	if info, err := f.Stat(); err == nil && info.IsDir() {
		f.Close()
		return nil, missing(key)
	}
	return f, nil
}

// Delete removes the file and prunes directories it leaves empty.
func (b *Backend) Delete(ctx context.Context, key string) error {
	p, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return missing(key)
		}
		return fmt.Errorf("fs: delete %s: %w", key, err)
	}

	for dir := filepath.Dir(p); dir != b.root && strings.HasPrefix(dir, b.root); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

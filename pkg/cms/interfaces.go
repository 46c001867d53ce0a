package cms

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the interface for storage backends
type BlobStore interface {
	// Upload uploads content directly
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams uploads content with additional parameters
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// GetDownloadURL returns a URL for downloading content, possibly short-lived
	GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error)

	// GetPublicURL returns a durable URL for the object
	GetPublicURL(ctx context.Context, objectKey string) (string, error)

	// Download downloads content directly
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete deletes content
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// BlogRepository persists blogs.
type BlogRepository interface {
	CreateBlog(ctx context.Context, blog *Blog) error
	GetBlog(ctx context.Context, id int64) (*Blog, error)
	GetBlogBySlug(ctx context.Context, slug string) (*Blog, error)
	UpdateBlog(ctx context.Context, blog *Blog) error
	DeleteBlog(ctx context.Context, id int64) error
	ListBlogs(ctx context.Context, q ListQuery) ([]*Blog, error)
	BlogSlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)
}

// ResearchRepository persists research items.
type ResearchRepository interface {
	CreateResearch(ctx context.Context, research *Research) error
	GetResearch(ctx context.Context, id int64) (*Research, error)
	GetResearchBySlug(ctx context.Context, slug string) (*Research, error)
	UpdateResearch(ctx context.Context, research *Research) error
	DeleteResearch(ctx context.Context, id int64) error
	ListResearch(ctx context.Context, q ListQuery) ([]*Research, error)
	ResearchSlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)
}

// ImageRepository persists both image tables; Image.Kind selects the table.
type ImageRepository interface {
	CreateImage(ctx context.Context, image *Image) error
	GetImage(ctx context.Context, kind ImageKind, id int64) (*Image, error)
	UpdateImage(ctx context.Context, image *Image) error
	// DeleteImage removes the image. Blogs and research referencing a
	// deleted asset keep existing with their featured image cleared.
	DeleteImage(ctx context.Context, kind ImageKind, id int64) error
	ListImages(ctx context.Context, kind ImageKind, q ImageQuery) ([]*Image, error)
}

// UserRepository persists user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// MediaRepository exposes file reference columns to batch jobs.
type MediaRepository interface {
	// ListMediaRefs returns up to limit non-empty refs with id > afterID, ordered by id.
	ListMediaRefs(ctx context.Context, field MediaField, afterID int64, limit int) ([]MediaRef, error)
	SetMediaRef(ctx context.Context, field MediaField, id int64, ref FileRef) error
}

// Repository defines the interface for content persistence
type Repository interface {
	BlogRepository
	ResearchRepository
	ImageRepository
	UserRepository
	MediaRepository

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// EventSink defines the interface for event handling
type EventSink interface {
	// BlogSaved is fired after a blog is created or updated
	BlogSaved(ctx context.Context, blog *Blog, created bool) error

	// ResearchSaved is fired after a research item is created or updated
	ResearchSaved(ctx context.Context, research *Research, created bool) error

	// ImageSaved is fired after an image is created or updated
	ImageSaved(ctx context.Context, image *Image, created bool) error

	// Deleted is fired after any entity is deleted
	Deleted(ctx context.Context, entity string, id int64) error
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
}

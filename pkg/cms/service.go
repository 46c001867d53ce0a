package cms

import (
	"context"
)

// Service defines the main interface for the content backend.
//
// Read operations take the caller's Role: callers below staff only see
// published blogs and research. Write operations assume the caller has
// already been authorized as staff.
type Service interface {
	// Blog operations
	CreateBlog(ctx context.Context, req CreateBlogRequest) (*Blog, error)
	GetBlog(ctx context.Context, role Role, id int64) (*Blog, error)
	GetBlogBySlug(ctx context.Context, role Role, slug string) (*Blog, error)
	UpdateBlog(ctx context.Context, req UpdateBlogRequest) (*Blog, error)
	DeleteBlog(ctx context.Context, id int64) error
	ListBlogs(ctx context.Context, q ListQuery) ([]*Blog, error)

	// Research operations
	CreateResearch(ctx context.Context, req CreateResearchRequest) (*Research, error)
	GetResearch(ctx context.Context, role Role, id int64) (*Research, error)
	GetResearchBySlug(ctx context.Context, role Role, slug string) (*Research, error)
	UpdateResearch(ctx context.Context, req UpdateResearchRequest) (*Research, error)
	DeleteResearch(ctx context.Context, id int64) error
	ListResearch(ctx context.Context, q ListQuery) ([]*Research, error)
	AttachResearchFile(ctx context.Context, req AttachResearchFileRequest) (*Research, error)

	// Image operations, for both image tables
	CreateImage(ctx context.Context, req CreateImageRequest) (*Image, error)
	GetImage(ctx context.Context, kind ImageKind, id int64) (*Image, error)
	UpdateImage(ctx context.Context, req UpdateImageRequest) (*Image, error)
	DeleteImage(ctx context.Context, kind ImageKind, id int64) error
	ListImages(ctx context.Context, kind ImageKind, q ImageQuery) ([]*Image, error)
}

package cms

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/imaging"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/objectkey"
)

// service implements the Service interface
type service struct {
	repository Repository
	uploads    BlobStore
	uploadName string
	// uploadsRemote stores the durable URL instead of the object key.
	uploadsRemote bool
	keys          objectkey.Generator
	eventSink     EventSink
	logger        *slog.Logger
	now           func() time.Time
	body          *BodyValidator
	image         imaging.Options
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithUploadStore sets the blob store new uploads are written to. When
// remote is true the stored reference is the store's public URL.
func WithUploadStore(name string, store BlobStore, remote bool) Option {
	return func(s *service) {
		s.uploadName = name
		s.uploads = store
		s.uploadsRemote = remote
	}
}

// WithKeyGenerator sets how upload object keys are built
func WithKeyGenerator(gen objectkey.Generator) Option {
	return func(s *service) {
		s.keys = gen
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithStrictBlocks requires every body block to be an object with a "type"
func WithStrictBlocks(strict bool) Option {
	return func(s *service) {
		s.body = NewBodyValidator(strict)
	}
}

// WithImageOptions controls validation and downscaling of uploaded images
func WithImageOptions(opts imaging.Options) Option {
	return func(s *service) {
		s.image = opts
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		keys:      objectkey.NewUniqueGenerator(),
		eventSink: noopEvents{},
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		body:      NewBodyValidator(false),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}

	return s, nil
}

// persistWithSlug assigns a slug when current is empty and runs persist.
// A unique-constraint conflict at commit re-derives the slug and retries
// exactly once.
func (s *service) persistWithSlug(ctx context.Context, kind Kind, title, current string, exists SlugExistsFunc, persist func(slug string) error) error {
	for attempt := 0; ; attempt++ {
		candidate, err := AssignSlug(ctx, title, exists, current)
		if err != nil {
			return err
		}
		err = persist(candidate)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrSlugConflict) {
			return err
		}
		if attempt >= 1 || current != "" {
			return &ConflictError{Kind: kind, Slug: candidate, Err: err}
		}
		s.logger.WarnContext(ctx, "slug taken at commit, retrying", "kind", kind, "slug", candidate)
	}
}

func (s *service) fireBlogSaved(ctx context.Context, blog *Blog, created bool) {
	if err := s.eventSink.BlogSaved(ctx, blog, created); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "blog_saved", "id", blog.ID, "error", err)
	}
}

func (s *service) fireResearchSaved(ctx context.Context, research *Research, created bool) {
	if err := s.eventSink.ResearchSaved(ctx, research, created); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "research_saved", "id", research.ID, "error", err)
	}
}

func (s *service) fireImageSaved(ctx context.Context, image *Image, created bool) {
	if err := s.eventSink.ImageSaved(ctx, image, created); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "image_saved", "id", image.ID, "error", err)
	}
}

func (s *service) fireDeleted(ctx context.Context, entity string, id int64) {
	if err := s.eventSink.Deleted(ctx, entity, id); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "deleted", "entity", entity, "id", id, "error", err)
	}
}

// checkFeaturedImage verifies a featured image id refers to an image asset.
func (s *service) checkFeaturedImage(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	if _, err := s.repository.GetImage(ctx, ImageKindAsset, *id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &RelatedNotFoundError{Field: "featured_image_id", ID: *id}
		}
		return err
	}
	return nil
}

// Blog operations

func (s *service) CreateBlog(ctx context.Context, req CreateBlogRequest) (*Blog, error) {
	if !req.Input.Title.Set {
		return nil, &ValidationError{Fields: validation.Errors{"title": errRequired}}
	}

	now := s.now()
	blog := &Blog{
		Status:    StatusDraft,
		Body:      normalizeBody(nil),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.applyBlogInput(ctx, blog, req.Input, now); err != nil {
		return nil, err
	}

	err := s.persistWithSlug(ctx, KindBlog, blog.Title, "",
		func(ctx context.Context, candidate string) (bool, error) {
			return s.repository.BlogSlugExists(ctx, candidate, 0)
		},
		func(slug string) error {
			blog.Slug = slug
			return s.repository.CreateBlog(ctx, blog)
		})
	if err != nil {
		return nil, s.writeError(ctx, KindBlog, blog.ID, "create", blog.AuthorID, blog.FeaturedImageID, err)
	}

	saved, err := s.repository.GetBlog(ctx, blog.ID)
	if err != nil {
		return nil, &ContentError{Kind: KindBlog, ID: blog.ID, Op: "reload", Err: err}
	}
	s.fireBlogSaved(ctx, saved, true)
	return saved, nil
}

func (s *service) UpdateBlog(ctx context.Context, req UpdateBlogRequest) (*Blog, error) {
	existing, err := s.repository.GetBlog(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if !req.Partial && !req.Input.Title.Set {
		return nil, &ValidationError{Fields: validation.Errors{"title": errRequired}}
	}

	now := s.now()
	blog := *existing
	blog.UpdatedAt = now
	if err := s.applyBlogInput(ctx, &blog, req.Input, now); err != nil {
		return nil, err
	}

	err = s.persistWithSlug(ctx, KindBlog, blog.Title, existing.Slug,
		func(ctx context.Context, candidate string) (bool, error) {
			return s.repository.BlogSlugExists(ctx, candidate, blog.ID)
		},
		func(slug string) error {
			blog.Slug = slug
			return s.repository.UpdateBlog(ctx, &blog)
		})
	if err != nil {
		return nil, s.writeError(ctx, KindBlog, blog.ID, "update", blog.AuthorID, blog.FeaturedImageID, err)
	}

	saved, err := s.repository.GetBlog(ctx, blog.ID)
	if err != nil {
		return nil, &ContentError{Kind: KindBlog, ID: blog.ID, Op: "reload", Err: err}
	}
	s.fireBlogSaved(ctx, saved, false)
	return saved, nil
}

// applyBlogInput copies the set fields of in onto blog, resolves the
// publication timestamp and validates the result.
func (s *service) applyBlogInput(ctx context.Context, blog *Blog, in BlogInput, now time.Time) error {
	extra := validation.Errors{}
	previous := blog.Status

	if in.Title.Set {
		if in.Title.Null {
			extra["title"] = errNotNull
		}
		blog.Title = strings.TrimSpace(in.Title.Value)
	}
	if in.Summary.Set {
		blog.Summary = in.Summary.Value
	}
	if in.Body.Set {
		if in.Body.Null {
			extra["body"] = errNotNull
		} else {
			blog.Body = in.Body.Value
		}
	}
	if in.Status.Set {
		if in.Status.Null {
			extra["status"] = errNotNull
		} else {
			blog.Status = in.Status.Value
		}
	}
	if in.Author.Set {
		blog.AuthorID = in.Author.Ptr()
	}
	if in.FeaturedImageID.Set {
		blog.FeaturedImageID = in.FeaturedImageID.Ptr()
	}

	existing := blog.PublishedAt
	if in.PublishedAt.Set {
		existing = in.PublishedAt.Ptr()
		if existing != nil {
			utc := existing.UTC()
			existing = &utc
		}
	}
	blog.PublishedAt = ResolvePublish(blog.Status, previous, existing, now)

	if err := mergeFieldErrors(s.validateBlog(blog), extra); err != nil {
		return err
	}
	blog.Body = normalizeBody(blog.Body)

	if in.Author.Set && blog.AuthorID != nil {
		if _, err := s.repository.GetUser(ctx, *blog.AuthorID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return &RelatedNotFoundError{Field: "author", ID: *blog.AuthorID}
			}
			return err
		}
	}
	if in.FeaturedImageID.Set {
		if err := s.checkFeaturedImage(ctx, blog.FeaturedImageID); err != nil {
			return err
		}
	}
	return nil
}

// writeError maps a repository write failure. A foreign key firing at
// commit means a related row vanished after it was checked; the author is
// looked up again to tell which one.
func (s *service) writeError(ctx context.Context, kind Kind, id int64, op string, author, featured *int64, err error) error {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict
	}
	if errors.Is(err, ErrRelatedMissing) {
		if author != nil {
			if _, uerr := s.repository.GetUser(ctx, *author); errors.Is(uerr, ErrNotFound) {
				return &RelatedNotFoundError{Field: "author", ID: *author}
			}
		}
		if featured != nil {
			return &RelatedNotFoundError{Field: "featured_image_id", ID: *featured}
		}
	}
	return &ContentError{Kind: kind, ID: id, Op: op, Err: err}
}

func (s *service) GetBlog(ctx context.Context, role Role, id int64) (*Blog, error) {
	blog, err := s.repository.GetBlog(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Visible(role, blog.Status) {
		return nil, ErrBlogNotFound
	}
	return blog, nil
}

func (s *service) GetBlogBySlug(ctx context.Context, role Role, slug string) (*Blog, error) {
	blog, err := s.repository.GetBlogBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !Visible(role, blog.Status) {
		return nil, ErrBlogNotFound
	}
	return blog, nil
}

func (s *service) DeleteBlog(ctx context.Context, id int64) error {
	if err := s.repository.DeleteBlog(ctx, id); err != nil {
		return err
	}
	s.fireDeleted(ctx, string(KindBlog), id)
	return nil
}

func (s *service) ListBlogs(ctx context.Context, q ListQuery) ([]*Blog, error) {
	resolved, ok := q.Resolve(KindBlog)
	if !ok {
		return []*Blog{}, nil
	}
	blogs, err := s.repository.ListBlogs(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("list blogs: %w", err)
	}
	return blogs, nil
}

// Research operations

func (s *service) CreateResearch(ctx context.Context, req CreateResearchRequest) (*Research, error) {
	if !req.Input.Title.Set {
		return nil, &ValidationError{Fields: validation.Errors{"title": errRequired}}
	}

	now := s.now()
	research := &Research{
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.applyResearchInput(ctx, research, req.Input); err != nil {
		return nil, err
	}

	err := s.persistWithSlug(ctx, KindResearch, research.Title, "",
		func(ctx context.Context, candidate string) (bool, error) {
			return s.repository.ResearchSlugExists(ctx, candidate, 0)
		},
		func(slug string) error {
			research.Slug = slug
			return s.repository.CreateResearch(ctx, research)
		})
	if err != nil {
		return nil, s.writeError(ctx, KindResearch, research.ID, "create", nil, research.FeaturedImageID, err)
	}

	saved, err := s.repository.GetResearch(ctx, research.ID)
	if err != nil {
		return nil, &ContentError{Kind: KindResearch, ID: research.ID, Op: "reload", Err: err}
	}
	s.fireResearchSaved(ctx, saved, true)
	return saved, nil
}

func (s *service) UpdateResearch(ctx context.Context, req UpdateResearchRequest) (*Research, error) {
	existing, err := s.repository.GetResearch(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if !req.Partial && !req.Input.Title.Set {
		return nil, &ValidationError{Fields: validation.Errors{"title": errRequired}}
	}

	research := *existing
	research.UpdatedAt = s.now()
	if err := s.applyResearchInput(ctx, &research, req.Input); err != nil {
		return nil, err
	}

	err = s.persistWithSlug(ctx, KindResearch, research.Title, existing.Slug,
		func(ctx context.Context, candidate string) (bool, error) {
			return s.repository.ResearchSlugExists(ctx, candidate, research.ID)
		},
		func(slug string) error {
			research.Slug = slug
			return s.repository.UpdateResearch(ctx, &research)
		})
	if err != nil {
		return nil, s.writeError(ctx, KindResearch, research.ID, "update", nil, research.FeaturedImageID, err)
	}

	saved, err := s.repository.GetResearch(ctx, research.ID)
	if err != nil {
		return nil, &ContentError{Kind: KindResearch, ID: research.ID, Op: "reload", Err: err}
	}
	s.fireResearchSaved(ctx, saved, false)
	return saved, nil
}

func (s *service) applyResearchInput(ctx context.Context, research *Research, in ResearchInput) error {
	extra := validation.Errors{}

	if in.Title.Set {
		if in.Title.Null {
			extra["title"] = errNotNull
		}
		research.Title = strings.TrimSpace(in.Title.Value)
	}
	if in.Description.Set {
		research.Description = in.Description.Value
	}
	if in.Status.Set {
		if in.Status.Null {
			extra["status"] = errNotNull
		} else {
			research.Status = in.Status.Value
		}
	}
	if in.FeaturedImageID.Set {
		research.FeaturedImageID = in.FeaturedImageID.Ptr()
	}

	if err := mergeFieldErrors(validateResearch(research), extra); err != nil {
		return err
	}
	if in.FeaturedImageID.Set {
		if err := s.checkFeaturedImage(ctx, research.FeaturedImageID); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) GetResearch(ctx context.Context, role Role, id int64) (*Research, error) {
	research, err := s.repository.GetResearch(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Visible(role, research.Status) {
		return nil, ErrResearchNotFound
	}
	return research, nil
}

func (s *service) GetResearchBySlug(ctx context.Context, role Role, slug string) (*Research, error) {
	research, err := s.repository.GetResearchBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !Visible(role, research.Status) {
		return nil, ErrResearchNotFound
	}
	return research, nil
}

func (s *service) DeleteResearch(ctx context.Context, id int64) error {
	research, err := s.repository.GetResearch(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repository.DeleteResearch(ctx, id); err != nil {
		return err
	}
	s.discard(ctx, research.File)
	s.fireDeleted(ctx, string(KindResearch), id)
	return nil
}

func (s *service) ListResearch(ctx context.Context, q ListQuery) ([]*Research, error) {
	resolved, ok := q.Resolve(KindResearch)
	if !ok {
		return []*Research{}, nil
	}
	items, err := s.repository.ListResearch(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("list research: %w", err)
	}
	return items, nil
}

func (s *service) AttachResearchFile(ctx context.Context, req AttachResearchFileRequest) (*Research, error) {
	research, err := s.repository.GetResearch(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if req.File == nil || req.File.Reader == nil {
		return nil, &ValidationError{Fields: validation.Errors{"file": errNoFile}}
	}

	reader := bufio.NewReader(req.File.Reader)
	mimeType := req.File.ContentType
	if mimeType == "" || mimeType == "application/octet-stream" {
		head, _ := reader.Peek(512)
		mimeType = http.DetectContentType(head)
	}

	ref, err := s.storeUpload(ctx, objectkey.KindResearchFile, req.File.FileName, reader, mimeType)
	if err != nil {
		return nil, err
	}

	previous := research.File
	research.File = ref
	research.UpdatedAt = s.now()
	if err := s.repository.UpdateResearch(ctx, research); err != nil {
		s.discard(ctx, ref)
		return nil, &ContentError{Kind: KindResearch, ID: research.ID, Op: "attach_file", Err: err}
	}
	s.discard(ctx, previous)

	saved, err := s.repository.GetResearch(ctx, research.ID)
	if err != nil {
		return nil, &ContentError{Kind: KindResearch, ID: research.ID, Op: "reload", Err: err}
	}
	s.fireResearchSaved(ctx, saved, false)
	return saved, nil
}

// Image operations

func imageKeyKind(kind ImageKind) objectkey.Kind {
	if kind == ImageKindContent {
		return objectkey.KindContentImage
	}
	return objectkey.KindImageAsset
}

func (s *service) CreateImage(ctx context.Context, req CreateImageRequest) (*Image, error) {
	if req.File == nil || req.File.Reader == nil {
		return nil, &ValidationError{Fields: validation.Errors{"file": errNoFile}}
	}

	now := s.now()
	img := &Image{
		Kind:      req.Kind,
		AltText:   req.AltText,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := validateImage(img); err != nil {
		return nil, err
	}

	ref, err := s.uploadImage(ctx, req.Kind, req.File)
	if err != nil {
		return nil, err
	}
	img.File = ref

	if err := s.repository.CreateImage(ctx, img); err != nil {
		s.discard(ctx, ref)
		return nil, fmt.Errorf("create image: %w", err)
	}
	s.fireImageSaved(ctx, img, true)
	return img, nil
}

func (s *service) UpdateImage(ctx context.Context, req UpdateImageRequest) (*Image, error) {
	existing, err := s.repository.GetImage(ctx, req.Kind, req.ID)
	if err != nil {
		return nil, err
	}
	if !req.Partial && req.File == nil {
		return nil, &ValidationError{Fields: validation.Errors{"file": errNoFile}}
	}

	img := *existing
	if req.AltText.Set && !req.AltText.Null {
		img.AltText = req.AltText.Value
	}
	if err := validateImage(&img); err != nil {
		return nil, err
	}

	if req.File != nil {
		ref, err := s.uploadImage(ctx, req.Kind, req.File)
		if err != nil {
			return nil, err
		}
		img.File = ref
	}
	img.UpdatedAt = s.now()

	if err := s.repository.UpdateImage(ctx, &img); err != nil {
		if img.File != existing.File {
			s.discard(ctx, img.File)
		}
		return nil, fmt.Errorf("update image %d: %w", img.ID, err)
	}
	if img.File != existing.File {
		s.discard(ctx, existing.File)
	}
	s.fireImageSaved(ctx, &img, false)
	return &img, nil
}

func (s *service) uploadImage(ctx context.Context, kind ImageKind, upload *Upload) (FileRef, error) {
	processed, err := imaging.Process(upload.Reader, upload.FileName, s.image)
	if err != nil {
		switch {
		case errors.Is(err, imaging.ErrNotImage):
			return "", &ValidationError{Fields: validation.Errors{"file": err}}
		case errors.Is(err, imaging.ErrTooLarge):
			msg := fmt.Sprintf("Ensure the file is at most %d bytes.", s.image.MaxBytes)
			return "", &ValidationError{Fields: validation.Errors{"file": validation.NewError("max_bytes", msg)}}
		}
		return "", err
	}
	if processed.Resized {
		s.logger.DebugContext(ctx, "image downscaled", "file", upload.FileName, "width", processed.Width, "height", processed.Height)
	}
	return s.storeUpload(ctx, imageKeyKind(kind), processed.FileName, bytes.NewReader(processed.Data), processed.MimeType)
}

// storeUpload writes r to the upload store under a key chosen by kind.
func (s *service) storeUpload(ctx context.Context, kind objectkey.Kind, fileName string, r io.Reader, mimeType string) (FileRef, error) {
	if s.uploads == nil {
		return "", fmt.Errorf("no upload store configured")
	}
	key := s.keys.GenerateKey(kind, fileName)
	if err := s.uploads.UploadWithParams(ctx, r, UploadParams{ObjectKey: key, MimeType: mimeType}); err != nil {
		return "", &StorageError{Backend: s.uploadName, Key: key, Op: "upload", Err: err}
	}
	if !s.uploadsRemote {
		return FileRef(key), nil
	}
	url, err := s.uploads.GetPublicURL(ctx, key)
	if err != nil {
		return "", &StorageError{Backend: s.uploadName, Key: key, Op: "public_url", Err: err}
	}
	return FileRef(url), nil
}

// discard removes an upload no row references any more. The rows are
// already correct, so a failure is only logged.
func (s *service) discard(ctx context.Context, ref FileRef) {
	key, ok := s.uploadKey(ctx, ref)
	if !ok {
		return
	}
	err := s.uploads.Delete(ctx, key)
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
		s.logger.WarnContext(ctx, "orphaned upload not removed", "backend", s.uploadName, "key", key, "error", err)
	}
}

// uploadKey maps ref back to its key in the upload store. Refs written by
// another store, such as media migrated elsewhere, do not map.
func (s *service) uploadKey(ctx context.Context, ref FileRef) (string, bool) {
	if ref.IsZero() || s.uploads == nil {
		return "", false
	}
	if !s.uploadsRemote {
		return string(ref), !ref.IsRemote()
	}
	if !ref.IsRemote() {
		return "", false
	}
	base, err := s.uploads.GetPublicURL(ctx, "")
	if err != nil || base == "" || !strings.HasPrefix(string(ref), base) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(string(ref), base))
	return key, err == nil && key != ""
}

func (s *service) GetImage(ctx context.Context, kind ImageKind, id int64) (*Image, error) {
	return s.repository.GetImage(ctx, kind, id)
}

func (s *service) DeleteImage(ctx context.Context, kind ImageKind, id int64) error {
	img, err := s.repository.GetImage(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := s.repository.DeleteImage(ctx, kind, id); err != nil {
		return err
	}
	s.discard(ctx, img.File)
	s.fireDeleted(ctx, string(kind), id)
	return nil
}

func (s *service) ListImages(ctx context.Context, kind ImageKind, q ImageQuery) ([]*Image, error) {
	images, err := s.repository.ListImages(ctx, kind, q)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

package cms_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/imaging"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/repo/memory"
	memorystorage "github.com/MohamadKamardin1/zrcp-backend/pkg/cms/storage/memory"
)

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	svc   cms.Service
	repo  *memory.Repository
	blobs *memorystorage.Backend
	sink  *recordingSink
}

func setupServiceTest(t *testing.T, extra ...cms.Option) *testEnv {
	t.Helper()
	repo := memory.New()
	blobs := memorystorage.New("")
	sink := &recordingSink{}

	opts := []cms.Option{
		cms.WithRepository(repo),
		cms.WithUploadStore("memory", blobs, false),
		cms.WithEventSink(sink),
		cms.WithClock(func() time.Time { return fixedNow }),
	}
	svc, err := cms.New(append(opts, extra...)...)
	require.NoError(t, err)
	return &testEnv{svc: svc, repo: repo, blobs: blobs, sink: sink}
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) record(e string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) BlogSaved(ctx context.Context, blog *cms.Blog, created bool) error {
	if created {
		return r.record("blog.created:" + blog.Slug)
	}
	return r.record("blog.updated:" + blog.Slug)
}

func (r *recordingSink) ResearchSaved(ctx context.Context, research *cms.Research, created bool) error {
	return r.record("research.saved:" + research.Slug)
}

func (r *recordingSink) ImageSaved(ctx context.Context, image *cms.Image, created bool) error {
	return r.record("image.saved:" + string(image.Kind))
}

func (r *recordingSink) Deleted(ctx context.Context, entity string, id int64) error {
	return r.record("deleted:" + entity)
}

func blogInput(title string) cms.BlogInput {
	return cms.BlogInput{Title: cms.Some(title)}
}

func pngUpload(t *testing.T, name string, w, h int) *cms.Upload {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &cms.Upload{FileName: name, ContentType: "image/png", Reader: &buf}
}

func TestServiceCreation(t *testing.T) {
	_, err := cms.New()
	assert.Error(t, err)

	svc, err := cms.New(cms.WithRepository(memory.New()))
	assert.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestService_CreateBlog(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	t.Run("AssignsSlugAndDefaults", func(t *testing.T) {
		blog, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: blogInput("Hello World")})
		require.NoError(t, err)

		assert.Equal(t, "hello-world", blog.Slug)
		assert.Equal(t, cms.StatusDraft, blog.Status)
		assert.Nil(t, blog.PublishedAt)
		assert.JSONEq(t, `[]`, string(blog.Body))
		assert.Equal(t, fixedNow, blog.CreatedAt)
	})

	t.Run("SameTitleGetsSuffix", func(t *testing.T) {
		second, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: blogInput("Hello World")})
		require.NoError(t, err)
		assert.Equal(t, "hello-world-2", second.Slug)

		third, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: blogInput("Hello, World!")})
		require.NoError(t, err)
		assert.Equal(t, "hello-world-3", third.Slug)
	})

	t.Run("MissingTitle", func(t *testing.T) {
		_, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{})
		var verr *cms.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"This field is required."}, verr.FieldMessages()["title"])
	})

	t.Run("BlankTitle", func(t *testing.T) {
		_, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: blogInput("   ")})
		var verr *cms.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.FieldMessages(), "title")
	})

	t.Run("TitleTooLong", func(t *testing.T) {
		_, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: blogInput(strings.Repeat("x", cms.MaxTitleLength+1))})
		var verr *cms.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.FieldMessages(), "title")
	})

	t.Run("InReviewIsNotABlogStatus", func(t *testing.T) {
		in := blogInput("Review me")
		in.Status = cms.Some(cms.StatusInReview)
		_, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: in})
		var verr *cms.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.FieldMessages(), "status")
	})

	t.Run("BodyMustBeList", func(t *testing.T) {
		in := blogInput("Bad body")
		in.Body = cms.Some(json.RawMessage(`{"type":"paragraph"}`))
		_, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: in})
		var verr *cms.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{cms.ErrBodyNotList.Error()}, verr.FieldMessages()["body"])
	})

	t.Run("PublishStampsNow", func(t *testing.T) {
		in := blogInput("Launch")
		in.Status = cms.Some(cms.StatusPublished)
		blog, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: in})
		require.NoError(t, err)
		require.NotNil(t, blog.PublishedAt)
		assert.Equal(t, fixedNow, *blog.PublishedAt)
	})

	t.Run("ExplicitPublishedAtKept", func(t *testing.T) {
		when := fixedNow.Add(-72 * time.Hour)
		in := blogInput("Backdated")
		in.Status = cms.Some(cms.StatusPublished)
		in.PublishedAt = cms.Some(when)
		blog, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: in})
		require.NoError(t, err)
		assert.Equal(t, when, *blog.PublishedAt)
	})

	t.Run("MissingAuthor", func(t *testing.T) {
		in := blogInput("Ghost")
		in.Author = cms.Some(int64(404))
		_, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: in})

		var rel *cms.RelatedNotFoundError
		require.ErrorAs(t, err, &rel)
		assert.Equal(t, "author", rel.Field)
		assert.ErrorIs(t, err, cms.ErrNotFound)
	})

	t.Run("MissingFeaturedImage", func(t *testing.T) {
		in := blogInput("No image")
		in.FeaturedImageID = cms.Some(int64(7))
		_, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: in})

		var rel *cms.RelatedNotFoundError
		require.ErrorAs(t, err, &rel)
		assert.Equal(t, "featured_image_id", rel.Field)
		assert.Equal(t, `invalid pk "7" - object does not exist`, rel.Error())
	})

	t.Run("AuthorNameHydrated", func(t *testing.T) {
		user := &cms.User{Username: "ada", FirstName: "Ada", LastName: "Lovelace", IsActive: true}
		require.NoError(t, env.repo.CreateUser(ctx, user))

		in := blogInput("By Ada")
		in.Author = cms.Some(user.ID)
		blog, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: in})
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", blog.AuthorName)
	})

	assert.Contains(t, env.sink.events, "blog.created:hello-world")
}

func TestService_UpdateBlog(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	blog, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: blogInput("Original Title")})
	require.NoError(t, err)

	t.Run("SlugIsImmutable", func(t *testing.T) {
		updated, err := env.svc.UpdateBlog(ctx, cms.UpdateBlogRequest{
			ID:      blog.ID,
			Input:   blogInput("Completely Different"),
			Partial: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "Completely Different", updated.Title)
		assert.Equal(t, "original-title", updated.Slug)
	})

	t.Run("PublishThenDemote", func(t *testing.T) {
		updated, err := env.svc.UpdateBlog(ctx, cms.UpdateBlogRequest{
			ID:      blog.ID,
			Input:   cms.BlogInput{Status: cms.Some(cms.StatusPublished)},
			Partial: true,
		})
		require.NoError(t, err)
		require.NotNil(t, updated.PublishedAt)
		stamped := *updated.PublishedAt

		demoted, err := env.svc.UpdateBlog(ctx, cms.UpdateBlogRequest{
			ID:      blog.ID,
			Input:   cms.BlogInput{Status: cms.Some(cms.StatusDraft)},
			Partial: true,
		})
		require.NoError(t, err)
		require.NotNil(t, demoted.PublishedAt)
		assert.Equal(t, stamped, *demoted.PublishedAt)
	})

	t.Run("FullUpdateRequiresTitle", func(t *testing.T) {
		_, err := env.svc.UpdateBlog(ctx, cms.UpdateBlogRequest{
			ID:    blog.ID,
			Input: cms.BlogInput{Summary: cms.Some("only summary")},
		})
		var verr *cms.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.FieldMessages(), "title")
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := env.svc.UpdateBlog(ctx, cms.UpdateBlogRequest{ID: 999, Input: blogInput("x"), Partial: true})
		assert.ErrorIs(t, err, cms.ErrNotFound)
	})
}

func TestService_BlogVisibility(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	draft, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: blogInput("Secret")})
	require.NoError(t, err)

	in := blogInput("Public")
	in.Status = cms.Some(cms.StatusPublished)
	public, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: in})
	require.NoError(t, err)

	_, err = env.svc.GetBlog(ctx, cms.RolePublic, draft.ID)
	assert.ErrorIs(t, err, cms.ErrNotFound)

	_, err = env.svc.GetBlogBySlug(ctx, cms.RolePublic, draft.Slug)
	assert.ErrorIs(t, err, cms.ErrNotFound)

	got, err := env.svc.GetBlog(ctx, cms.RoleStaff, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, got.ID)

	got, err = env.svc.GetBlogBySlug(ctx, cms.RolePublic, "public")
	require.NoError(t, err)
	assert.Equal(t, public.ID, got.ID)

	list, err := env.svc.ListBlogs(ctx, cms.ListQuery{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, public.ID, list[0].ID)

	drafts := cms.StatusDraft
	list, err = env.svc.ListBlogs(ctx, cms.ListQuery{Status: &drafts})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = env.svc.ListBlogs(ctx, cms.ListQuery{Role: cms.RoleStaff})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

// racingRepo reports every slug as free, so the store's unique check is the
// only thing that catches collisions.
type racingRepo struct {
	*memory.Repository
	mu     sync.Mutex
	lies   int
	checks int
}

func (r *racingRepo) BlogSlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	r.mu.Lock()
	r.checks++
	lie := r.lies != 0
	if r.lies > 0 {
		r.lies--
	}
	r.mu.Unlock()
	if lie {
		return false, nil
	}
	return r.Repository.BlogSlugExists(ctx, slug, excludeID)
}

func TestService_SlugConflictRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("RetriesOnce", func(t *testing.T) {
		repo := &racingRepo{Repository: memory.New(), lies: 1}
		svc, err := cms.New(cms.WithRepository(repo))
		require.NoError(t, err)

		require.NoError(t, repo.CreateBlog(ctx, &cms.Blog{Title: "Race", Slug: "race", Status: cms.StatusDraft}))

		blog, err := svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: blogInput("Race")})
		require.NoError(t, err)
		assert.Equal(t, "race-2", blog.Slug)
	})

	t.Run("SecondConflictSurfaces", func(t *testing.T) {
		repo := &racingRepo{Repository: memory.New(), lies: -1}
		svc, err := cms.New(cms.WithRepository(repo))
		require.NoError(t, err)

		require.NoError(t, repo.CreateBlog(ctx, &cms.Blog{Title: "Race", Slug: "race", Status: cms.StatusDraft}))

		_, err = svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: blogInput("Race")})
		var conflict *cms.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "race", conflict.Slug)
		assert.ErrorIs(t, err, cms.ErrSlugConflict)
		assert.Equal(t, 2, repo.checks)
	})
}

// vanishingAuthorRepo finds the author when the service checks it, then
// loses it before the insert commits.
type vanishingAuthorRepo struct {
	*memory.Repository
	mu    sync.Mutex
	looks int
}

func (r *vanishingAuthorRepo) GetUser(ctx context.Context, id int64) (*cms.User, error) {
	r.mu.Lock()
	r.looks++
	first := r.looks == 1
	r.mu.Unlock()
	if first {
		return &cms.User{ID: id, Username: "gone", IsActive: true}, nil
	}
	return r.Repository.GetUser(ctx, id)
}

func TestService_AuthorRemovedBeforeCommit(t *testing.T) {
	ctx := context.Background()
	repo := &vanishingAuthorRepo{Repository: memory.New()}
	svc, err := cms.New(cms.WithRepository(repo))
	require.NoError(t, err)

	in := blogInput("Orphaned")
	in.Author = cms.Some(int64(12))
	_, err = svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: in})

	var rel *cms.RelatedNotFoundError
	require.ErrorAs(t, err, &rel)
	assert.Equal(t, "author", rel.Field)
	assert.Equal(t, int64(12), rel.ID)
	assert.Equal(t, 2, repo.looks)
}

func TestService_Research(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	t.Run("CreateAllowsInReview", func(t *testing.T) {
		research, err := env.svc.CreateResearch(ctx, cms.CreateResearchRequest{Input: cms.ResearchInput{
			Title:       cms.Some("Market Study"),
			Description: cms.Some("Q2 numbers"),
			Status:      cms.Some(cms.StatusInReview),
		}})
		require.NoError(t, err)
		assert.Equal(t, "market-study", research.Slug)
		assert.Equal(t, cms.StatusInReview, research.Status)

		_, err = env.svc.GetResearch(ctx, cms.RolePublic, research.ID)
		assert.ErrorIs(t, err, cms.ErrNotFound)
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		_, err := env.svc.CreateResearch(ctx, cms.CreateResearchRequest{Input: cms.ResearchInput{
			Title:  cms.Some("Bad"),
			Status: cms.Some(cms.Status("archived")),
		}})
		var verr *cms.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.FieldMessages(), "status")
	})

	t.Run("AttachFile", func(t *testing.T) {
		research, err := env.svc.GetResearchBySlug(ctx, cms.RoleStaff, "market-study")
		require.NoError(t, err)

		updated, err := env.svc.AttachResearchFile(ctx, cms.AttachResearchFileRequest{
			ID:   research.ID,
			File: &cms.Upload{FileName: "study.pdf", Reader: strings.NewReader("%PDF-1.4\n%test")},
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(updated.File.String(), "pdfs/"), updated.File)
		assert.True(t, strings.HasSuffix(updated.File.String(), "_study.pdf"), updated.File)

		meta, err := env.blobs.GetObjectMeta(ctx, updated.File.String())
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", meta.ContentType)
	})

	t.Run("AttachWithoutFile", func(t *testing.T) {
		research, err := env.svc.GetResearchBySlug(ctx, cms.RoleStaff, "market-study")
		require.NoError(t, err)

		_, err = env.svc.AttachResearchFile(ctx, cms.AttachResearchFileRequest{ID: research.ID})
		var verr *cms.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.FieldMessages(), "file")
	})

	t.Run("Delete", func(t *testing.T) {
		research, err := env.svc.GetResearchBySlug(ctx, cms.RoleStaff, "market-study")
		require.NoError(t, err)
		require.NoError(t, env.svc.DeleteResearch(ctx, research.ID))
		assert.ErrorIs(t, env.svc.DeleteResearch(ctx, research.ID), cms.ErrNotFound)
	})
}

func TestService_Images(t *testing.T) {
	env := setupServiceTest(t, cms.WithImageOptions(imaging.Options{MaxWidth: 100}))
	ctx := context.Background()

	t.Run("CreateStoresUnderKindPrefix", func(t *testing.T) {
		img, err := env.svc.CreateImage(ctx, cms.CreateImageRequest{
			Kind:    cms.ImageKindAsset,
			File:    pngUpload(t, "cover.png", 20, 10),
			AltText: "cover",
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(img.File.String(), "uploads/"), img.File)

		inline, err := env.svc.CreateImage(ctx, cms.CreateImageRequest{
			Kind: cms.ImageKindContent,
			File: pngUpload(t, "inline.png", 20, 10),
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(inline.File.String(), "content_images/"), inline.File)
	})

	t.Run("RejectsNonImage", func(t *testing.T) {
		_, err := env.svc.CreateImage(ctx, cms.CreateImageRequest{
			Kind: cms.ImageKindAsset,
			File: &cms.Upload{FileName: "notes.txt", Reader: strings.NewReader("plain text")},
		})
		var verr *cms.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.FieldMessages(), "file")
	})

	t.Run("RequiresFile", func(t *testing.T) {
		_, err := env.svc.CreateImage(ctx, cms.CreateImageRequest{Kind: cms.ImageKindAsset})
		var verr *cms.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"No file was submitted."}, verr.FieldMessages()["file"])
	})

	t.Run("AltTextTooLong", func(t *testing.T) {
		_, err := env.svc.CreateImage(ctx, cms.CreateImageRequest{
			Kind:    cms.ImageKindAsset,
			File:    pngUpload(t, "a.png", 4, 4),
			AltText: strings.Repeat("a", cms.MaxAltTextLength+1),
		})
		var verr *cms.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.FieldMessages(), "alt_text")
	})

	t.Run("WideImageDownscaled", func(t *testing.T) {
		img, err := env.svc.CreateImage(ctx, cms.CreateImageRequest{
			Kind: cms.ImageKindAsset,
			File: pngUpload(t, "wide.png", 400, 100),
		})
		require.NoError(t, err)

		rc, err := env.blobs.Download(ctx, img.File.String())
		require.NoError(t, err)
		defer rc.Close()
		cfg, _, err := image.DecodeConfig(rc)
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.Width)
		assert.Equal(t, 25, cfg.Height)
	})

	t.Run("UpdateAltText", func(t *testing.T) {
		img, err := env.svc.CreateImage(ctx, cms.CreateImageRequest{Kind: cms.ImageKindAsset, File: pngUpload(t, "b.png", 4, 4)})
		require.NoError(t, err)

		updated, err := env.svc.UpdateImage(ctx, cms.UpdateImageRequest{
			Kind:    cms.ImageKindAsset,
			ID:      img.ID,
			AltText: cms.Some("new alt"),
			Partial: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "new alt", updated.AltText)
		assert.Equal(t, img.File, updated.File)
	})

	t.Run("DeleteClearsFeaturedImage", func(t *testing.T) {
		img, err := env.svc.CreateImage(ctx, cms.CreateImageRequest{Kind: cms.ImageKindAsset, File: pngUpload(t, "c.png", 4, 4)})
		require.NoError(t, err)

		in := blogInput("Illustrated")
		in.FeaturedImageID = cms.Some(img.ID)
		blog, err := env.svc.CreateBlog(ctx, cms.CreateBlogRequest{Input: in})
		require.NoError(t, err)
		require.NotNil(t, blog.FeaturedImage)

		require.NoError(t, env.svc.DeleteImage(ctx, cms.ImageKindAsset, img.ID))

		got, err := env.svc.GetBlog(ctx, cms.RoleStaff, blog.ID)
		require.NoError(t, err)
		assert.Nil(t, got.FeaturedImageID)
		assert.Nil(t, got.FeaturedImage)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := env.svc.GetImage(ctx, cms.ImageKindContent, 12345)
		assert.ErrorIs(t, err, cms.ErrNotFound)
	})
}

func TestService_RemoteUploadStore(t *testing.T) {
	repo := memory.New()
	blobs := memorystorage.New("https://cdn.example.com")
	svc, err := cms.New(cms.WithRepository(repo), cms.WithUploadStore("s3", blobs, true))
	require.NoError(t, err)

	img, err := svc.CreateImage(context.Background(), cms.CreateImageRequest{
		Kind: cms.ImageKindAsset,
		File: pngUpload(t, "remote.png", 4, 4),
	})
	require.NoError(t, err)
	assert.True(t, img.File.IsRemote())
	assert.True(t, strings.HasPrefix(img.File.String(), "https://cdn.example.com/uploads/"), img.File)
}

// failingImageRepo rejects every image insert.
type failingImageRepo struct {
	*memory.Repository
}

func (failingImageRepo) CreateImage(ctx context.Context, img *cms.Image) error {
	return errors.New("disk full")
}

func TestService_UploadCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("ReplacedImageFileRemoved", func(t *testing.T) {
		env := setupServiceTest(t)
		img, err := env.svc.CreateImage(ctx, cms.CreateImageRequest{Kind: cms.ImageKindAsset, File: pngUpload(t, "old.png", 4, 4)})
		require.NoError(t, err)

		updated, err := env.svc.UpdateImage(ctx, cms.UpdateImageRequest{
			Kind: cms.ImageKindAsset,
			ID:   img.ID,
			File: pngUpload(t, "new.png", 4, 4),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{updated.File.String()}, env.blobs.Keys())
	})

	t.Run("DeletedImageFileRemoved", func(t *testing.T) {
		env := setupServiceTest(t)
		img, err := env.svc.CreateImage(ctx, cms.CreateImageRequest{Kind: cms.ImageKindContent, File: pngUpload(t, "a.png", 4, 4)})
		require.NoError(t, err)
		require.Len(t, env.blobs.Keys(), 1)

		require.NoError(t, env.svc.DeleteImage(ctx, cms.ImageKindContent, img.ID))
		assert.Empty(t, env.blobs.Keys())
		assert.ErrorIs(t, env.svc.DeleteImage(ctx, cms.ImageKindContent, img.ID), cms.ErrNotFound)
	})

	t.Run("FailedInsertRemovesUpload", func(t *testing.T) {
		blobs := memorystorage.New("")
		svc, err := cms.New(
			cms.WithRepository(failingImageRepo{memory.New()}),
			cms.WithUploadStore("memory", blobs, false),
		)
		require.NoError(t, err)

		_, err = svc.CreateImage(ctx, cms.CreateImageRequest{Kind: cms.ImageKindAsset, File: pngUpload(t, "a.png", 4, 4)})
		require.Error(t, err)
		assert.Empty(t, blobs.Keys())
	})

	t.Run("ResearchFileReplacedAndDeleted", func(t *testing.T) {
		env := setupServiceTest(t)
		research, err := env.svc.CreateResearch(ctx, cms.CreateResearchRequest{Input: cms.ResearchInput{Title: cms.Some("Paper")}})
		require.NoError(t, err)

		attach := func(name string) *cms.Research {
			r, err := env.svc.AttachResearchFile(ctx, cms.AttachResearchFileRequest{
				ID:   research.ID,
				File: &cms.Upload{FileName: name, Reader: strings.NewReader("%PDF-1.4\n")},
			})
			require.NoError(t, err)
			return r
		}
		attach("v1.pdf")
		second := attach("v2.pdf")
		assert.Equal(t, []string{second.File.String()}, env.blobs.Keys())

		require.NoError(t, env.svc.DeleteResearch(ctx, research.ID))
		assert.Empty(t, env.blobs.Keys())
	})

	t.Run("RemoteRefsMapBackToKeys", func(t *testing.T) {
		blobs := memorystorage.New("https://cdn.example.com")
		svc, err := cms.New(cms.WithRepository(memory.New()), cms.WithUploadStore("s3", blobs, true))
		require.NoError(t, err)

		img, err := svc.CreateImage(ctx, cms.CreateImageRequest{Kind: cms.ImageKindAsset, File: pngUpload(t, "remote file.png", 4, 4)})
		require.NoError(t, err)
		require.Len(t, blobs.Keys(), 1)

		require.NoError(t, svc.DeleteImage(ctx, cms.ImageKindAsset, img.ID))
		assert.Empty(t, blobs.Keys())
	})
}

func TestService_UploadWithoutStore(t *testing.T) {
	svc, err := cms.New(cms.WithRepository(memory.New()))
	require.NoError(t, err)

	_, err = svc.CreateImage(context.Background(), cms.CreateImageRequest{
		Kind: cms.ImageKindAsset,
		File: pngUpload(t, "x.png", 4, 4),
	})
	require.Error(t, err)
	var verr *cms.ValidationError
	assert.False(t, errors.As(err, &verr))
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/auth"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/repo/memory"
	memorystorage "github.com/MohamadKamardin1/zrcp-backend/pkg/cms/storage/memory"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type apiFixture struct {
	handler     http.Handler
	repo        *memory.Repository
	store       *memorystorage.Backend
	staffToken  string
	readerToken string
	refresh     string
}

// setupAPITest creates a router backed by in-memory stores, a staff user
// and a non-staff user.
func setupAPITest(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo := memory.New()
	store := memorystorage.New("")

	service, err := cms.New(
		cms.WithRepository(repo),
		cms.WithUploadStore("memory", store, false),
		cms.WithClock(func() time.Time { return fixedNow }),
		cms.WithLogger(logger),
	)
	require.NoError(t, err)

	authService, err := auth.New(repo, "test-secret", auth.WithLogger(logger))
	require.NoError(t, err)

	_, err = authService.CreateUser(ctx, auth.CreateUserRequest{Username: "staff", Password: "staff-password", IsStaff: true})
	require.NoError(t, err)
	_, err = authService.CreateUser(ctx, auth.CreateUserRequest{Username: "reader", Password: "reader-password"})
	require.NoError(t, err)

	staff, err := authService.Obtain(ctx, "staff", "staff-password")
	require.NoError(t, err)
	reader, err := authService.Obtain(ctx, "reader", "reader-password")
	require.NoError(t, err)

	srv, err := New(service, authService,
		WithMediaStore(store),
		WithPinger(repo),
		WithLogger(logger),
	)
	require.NoError(t, err)

	return &apiFixture{
		handler:     srv.Routes(),
		repo:        repo,
		store:       store,
		staffToken:  staff.Access,
		readerToken: reader.Access,
		refresh:     staff.Refresh,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) doJSON(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	return f.do(t, method, path, token, reader, "application/json")
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartBody(t *testing.T, fileName string, data []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if data != nil {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestBlogs_SlugsAndPublishing(t *testing.T) {
	f := setupAPITest(t)

	first := f.doJSON(t, http.MethodPost, "/api/blogs/", f.staffToken, map[string]any{"title": "Hello World"})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := f.doJSON(t, http.MethodPost, "/api/blogs", f.staffToken, map[string]any{"title": "Hello World"})
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())

	b1 := decode[BlogResponse](t, first)
	b2 := decode[BlogResponse](t, second)
	assert.Equal(t, "hello-world", b1.Slug)
	assert.Equal(t, "hello-world-2", b2.Slug)
	assert.Equal(t, cms.StatusDraft, b1.Status)
	assert.Nil(t, b1.PublishedAt)
	assert.JSONEq(t, `[]`, string(b1.Body))

	patched := f.doJSON(t, http.MethodPatch, "/api/blogs/1/", f.staffToken, map[string]any{"status": "published"})
	require.Equal(t, http.StatusOK, patched.Code, patched.Body.String())
	published := decode[BlogResponse](t, patched)
	require.NotNil(t, published.PublishedAt)
	assert.True(t, fixedNow.Equal(*published.PublishedAt))
	assert.Equal(t, "hello-world", published.Slug)

	t.Run("PublicListSeesPublishedOnly", func(t *testing.T) {
		w := f.doJSON(t, http.MethodGet, "/api/blogs/", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := decode[[]BlogResponse](t, w)
		require.Len(t, list, 1)
		assert.Equal(t, "hello-world", list[0].Slug)
	})

	t.Run("StaffListSeesAll", func(t *testing.T) {
		w := f.doJSON(t, http.MethodGet, "/api/blogs/", f.staffToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]BlogResponse](t, w), 2)
	})

	t.Run("NonStaffCannotSeeDraft", func(t *testing.T) {
		w := f.doJSON(t, http.MethodGet, "/api/blogs/2/", f.readerToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = f.doJSON(t, http.MethodGet, "/api/blogs/slug/hello-world-2", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = f.doJSON(t, http.MethodGet, "/api/blogs/slug/hello-world", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("SlugSurvivesTitleChange", func(t *testing.T) {
		w := f.doJSON(t, http.MethodPut, "/api/blogs/1/", f.staffToken, map[string]any{"title": "Renamed", "status": "published"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		blog := decode[BlogResponse](t, w)
		assert.Equal(t, "hello-world", blog.Slug)
		assert.Equal(t, "Renamed", blog.Title)
	})

	t.Run("Delete", func(t *testing.T) {
		w := f.doJSON(t, http.MethodDelete, "/api/blogs/2/", f.staffToken, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		w = f.doJSON(t, http.MethodDelete, "/api/blogs/2/", f.staffToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestBlogs_WriteAccess(t *testing.T) {
	f := setupAPITest(t)
	body := map[string]any{"title": "Nope"}

	w := f.doJSON(t, http.MethodPost, "/api/blogs/", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.doJSON(t, http.MethodPost, "/api/blogs/", f.readerToken, body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "You do not have permission to perform this action.", decode[map[string]any](t, w)["detail"])

	w = f.doJSON(t, http.MethodGet, "/api/blogs/", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.doJSON(t, http.MethodGet, "/api/blogs/", f.refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBlogs_ValidationErrors(t *testing.T) {
	f := setupAPITest(t)

	t.Run("MissingTitle", func(t *testing.T) {
		w := f.doJSON(t, http.MethodPost, "/api/blogs/", f.staffToken, map[string]any{"summary": "x"})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[map[string][]string](t, w), "title")
	})

	t.Run("WrongType", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/blogs/", f.staffToken, strings.NewReader(`{"title": 42}`), "application/json")
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[map[string][]string](t, w), "title")
	})

	t.Run("BodyMustBeList", func(t *testing.T) {
		w := f.doJSON(t, http.MethodPost, "/api/blogs/", f.staffToken, map[string]any{"title": "T", "body": map[string]any{"a": 1}})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[map[string][]string](t, w), "body")
	})

	t.Run("UnknownFeaturedImage", func(t *testing.T) {
		w := f.doJSON(t, http.MethodPost, "/api/blogs/", f.staffToken, map[string]any{"title": "T", "featured_image_id": 999})
		require.Equal(t, http.StatusBadRequest, w.Code)
		msgs := decode[map[string][]string](t, w)
		require.Contains(t, msgs, "featured_image_id")
		assert.Equal(t, `Invalid pk "999" - object does not exist.`, msgs["featured_image_id"][0])
	})

	t.Run("OrderingNotAllowed", func(t *testing.T) {
		w := f.doJSON(t, http.MethodGet, "/api/blogs/?ordering=title", "", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[map[string][]string](t, w), "ordering")
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/blogs/", f.staffToken, strings.NewReader(`{"title":`), "application/json")
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[map[string]string](t, w)["detail"], "JSON parse error")
	})
}

func TestResearch_CRUDAndFile(t *testing.T) {
	f := setupAPITest(t)

	w := f.doJSON(t, http.MethodPost, "/api/research/", f.staffToken, map[string]any{"title": "Soil Study", "status": "in_review"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[ResearchResponse](t, w)
	assert.Equal(t, "soil-study", created.Slug)
	assert.Nil(t, created.File)

	body, ct := multipartBody(t, "paper.pdf", []byte("%PDF-1.4 test"), nil)
	w = f.do(t, http.MethodPost, "/api/research/1/file/", f.staffToken, body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	attached := decode[ResearchResponse](t, w)
	require.NotNil(t, attached.File)
	assert.True(t, strings.HasPrefix(*attached.File, "/media/pdfs/"), *attached.File)

	w = f.doJSON(t, http.MethodGet, "/api/research/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]ResearchResponse](t, w))

	w = f.doJSON(t, http.MethodGet, "/api/research/?ordering=-updated_at", f.staffToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]ResearchResponse](t, w), 1)

	w = f.doJSON(t, http.MethodGet, "/api/research/?ordering=published_at", f.staffToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImages_UploadServeAndDelete(t *testing.T) {
	f := setupAPITest(t)

	body, ct := multipartBody(t, "pic.png", pngBytes(t), map[string]string{"alt_text": "A red line"})
	w := f.do(t, http.MethodPost, "/api/images/", f.staffToken, body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	img := decode[ImageResponse](t, w)
	require.NotNil(t, img.File)
	assert.True(t, strings.HasPrefix(*img.File, "/media/uploads/"), *img.File)
	assert.Equal(t, "A red line", img.AltText)

	t.Run("MediaIsServed", func(t *testing.T) {
		w := f.doJSON(t, http.MethodGet, *img.File, "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.NotEmpty(t, w.Body.Bytes())

		w = f.doJSON(t, http.MethodGet, "/media/uploads/missing.png", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("AltTextOnlyUpdate", func(t *testing.T) {
		w := f.doJSON(t, http.MethodPatch, "/api/images/1/", f.staffToken, map[string]any{"alt_text": "Updated"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "Updated", decode[ImageResponse](t, w).AltText)
	})

	t.Run("PutRequiresFile", func(t *testing.T) {
		w := f.doJSON(t, http.MethodPut, "/api/images/1/", f.staffToken, map[string]any{"alt_text": "x"})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[map[string][]string](t, w), "file")
	})

	t.Run("NotAnImage", func(t *testing.T) {
		body, ct := multipartBody(t, "notes.txt", []byte("plain text"), nil)
		w := f.do(t, http.MethodPost, "/api/images/", f.staffToken, body, ct)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[map[string][]string](t, w), "file")
	})

	t.Run("DeleteClearsFeaturedImage", func(t *testing.T) {
		w := f.doJSON(t, http.MethodPost, "/api/blogs/", f.staffToken, map[string]any{"title": "Pictured", "featured_image_id": img.ID})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		blog := decode[BlogResponse](t, w)
		require.NotNil(t, blog.FeaturedImage)
		assert.Equal(t, img.ID, blog.FeaturedImage.ID)

		w = f.doJSON(t, http.MethodDelete, "/api/images/1/", f.staffToken, nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = f.doJSON(t, http.MethodGet, "/api/blogs/1/", f.staffToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, decode[BlogResponse](t, w).FeaturedImage)
	})

	t.Run("ContentImagesAreSeparate", func(t *testing.T) {
		body, ct := multipartBody(t, "inline.png", pngBytes(t), nil)
		w := f.do(t, http.MethodPost, "/api/content-images/", f.staffToken, body, ct)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		inline := decode[ImageResponse](t, w)
		assert.True(t, strings.HasPrefix(*inline.File, "/media/content_images/"), *inline.File)

		w = f.doJSON(t, http.MethodGet, "/api/images/", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decode[[]ImageResponse](t, w))
	})
}

func TestAuth_TokenEndpoints(t *testing.T) {
	f := setupAPITest(t)

	w := f.doJSON(t, http.MethodPost, "/api/auth/token/", "", map[string]string{"username": "staff", "password": "staff-password"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pair := decode[auth.TokenPair](t, w)
	assert.NotEmpty(t, pair.Access)
	assert.NotEmpty(t, pair.Refresh)

	w = f.doJSON(t, http.MethodPost, "/api/auth/token/", "", map[string]string{"username": "staff", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "No active account found with the given credentials", decode[map[string]string](t, w)["detail"])

	w = f.doJSON(t, http.MethodPost, "/api/auth/token/", "", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	msgs := decode[map[string][]string](t, w)
	assert.Contains(t, msgs, "username")
	assert.Contains(t, msgs, "password")

	w = f.doJSON(t, http.MethodPost, "/api/auth/token/refresh/", "", map[string]string{"refresh": pair.Refresh})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	access := decode[map[string]string](t, w)["access"]
	require.NotEmpty(t, access)

	w = f.doJSON(t, http.MethodPost, "/api/blogs/", access, map[string]any{"title": "With refreshed token"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.doJSON(t, http.MethodPost, "/api/auth/token/refresh/", "", map[string]string{"refresh": pair.Access})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealth(t *testing.T) {
	f := setupAPITest(t)

	w := f.doJSON(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.doJSON(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

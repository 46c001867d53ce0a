package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

// Repository implements cms.Repository using in-memory storage
type Repository struct {
	mu       sync.RWMutex
	blogs    map[int64]*cms.Blog
	research map[int64]*cms.Research
	images   map[cms.ImageKind]map[int64]*cms.Image
	users    map[int64]*cms.User

	nextID map[string]int64
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		blogs:    make(map[int64]*cms.Blog),
		research: make(map[int64]*cms.Research),
		images: map[cms.ImageKind]map[int64]*cms.Image{
			cms.ImageKindAsset:   make(map[int64]*cms.Image),
			cms.ImageKindContent: make(map[int64]*cms.Image),
		},
		users:  make(map[int64]*cms.User),
		nextID: make(map[string]int64),
	}
}

var _ cms.Repository = (*Repository)(nil)

func (r *Repository) allocID(table string) int64 {
	r.nextID[table]++
	return r.nextID[table]
}

func (r *Repository) Ping(ctx context.Context) error {
	return nil
}

// checkRefs emulates the foreign keys on blogs and research.
func (r *Repository) checkRefs(authorID, featuredImageID *int64) error {
	if authorID != nil {
		if _, ok := r.users[*authorID]; !ok {
			return fmt.Errorf("author %d: %w", *authorID, cms.ErrRelatedMissing)
		}
	}
	if featuredImageID != nil {
		if _, ok := r.images[cms.ImageKindAsset][*featuredImageID]; !ok {
			return fmt.Errorf("featured image %d: %w", *featuredImageID, cms.ErrRelatedMissing)
		}
	}
	return nil
}

func copyBlog(b *cms.Blog) *cms.Blog {
	c := *b
	if b.Body != nil {
		c.Body = append(json.RawMessage(nil), b.Body...)
	}
	c.AuthorName = ""
	c.FeaturedImage = nil
	return &c
}

// hydrate fills the read-only relation fields of a stored blog copy.
func (r *Repository) hydrateBlog(b *cms.Blog) *cms.Blog {
	c := copyBlog(b)
	if c.AuthorID != nil {
		if u, ok := r.users[*c.AuthorID]; ok {
			c.AuthorName = u.FullName()
		}
	}
	c.FeaturedImage = r.featured(c.FeaturedImageID)
	return c
}

func (r *Repository) hydrateResearch(res *cms.Research) *cms.Research {
	c := *res
	c.FeaturedImage = r.featured(c.FeaturedImageID)
	return &c
}

func (r *Repository) featured(id *int64) *cms.Image {
	if id == nil {
		return nil
	}
	img, ok := r.images[cms.ImageKindAsset][*id]
	if !ok {
		return nil
	}
	c := *img
	return &c
}

// Blog operations

func (r *Repository) CreateBlog(ctx context.Context, blog *cms.Blog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.blogSlugTaken(blog.Slug, 0) {
		return fmt.Errorf("blog slug %q: %w", blog.Slug, cms.ErrSlugConflict)
	}
	if err := r.checkRefs(blog.AuthorID, blog.FeaturedImageID); err != nil {
		return err
	}

	blog.ID = r.allocID("blogs")
	r.blogs[blog.ID] = copyBlog(blog)
	return nil
}

func (r *Repository) GetBlog(ctx context.Context, id int64) (*cms.Blog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	blog, exists := r.blogs[id]
	if !exists {
		return nil, cms.ErrBlogNotFound
	}
	return r.hydrateBlog(blog), nil
}

func (r *Repository) GetBlogBySlug(ctx context.Context, slug string) (*cms.Blog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, blog := range r.blogs {
		if blog.Slug == slug {
			return r.hydrateBlog(blog), nil
		}
	}
	return nil, cms.ErrBlogNotFound
}

func (r *Repository) UpdateBlog(ctx context.Context, blog *cms.Blog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.blogs[blog.ID]; !exists {
		return cms.ErrBlogNotFound
	}
	if r.blogSlugTaken(blog.Slug, blog.ID) {
		return fmt.Errorf("blog slug %q: %w", blog.Slug, cms.ErrSlugConflict)
	}
	if err := r.checkRefs(blog.AuthorID, blog.FeaturedImageID); err != nil {
		return err
	}

	r.blogs[blog.ID] = copyBlog(blog)
	return nil
}

func (r *Repository) DeleteBlog(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.blogs[id]; !exists {
		return cms.ErrBlogNotFound
	}
	delete(r.blogs, id)
	return nil
}

func (r *Repository) ListBlogs(ctx context.Context, q cms.ListQuery) ([]*cms.Blog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	terms := lowerTerms(q.SearchTerms())
	var result []*cms.Blog
	for _, blog := range r.blogs {
		if q.Status != nil && blog.Status != *q.Status {
			continue
		}
		if q.AuthorID != nil && (blog.AuthorID == nil || *blog.AuthorID != *q.AuthorID) {
			continue
		}
		if !inRange(&blog.CreatedAt, q.CreatedAfter, q.CreatedBefore) ||
			!inRange(blog.PublishedAt, q.PublishedAfter, q.PublishedBefore) {
			continue
		}
		if !matchesAll(terms, blog.Title, blog.Summary, blog.Slug) {
			continue
		}
		result = append(result, r.hydrateBlog(blog))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return less(q.Ordering, blogColumns(result[i]), blogColumns(result[j]), result[i].ID, result[j].ID)
	})
	return page(result, q.Limit, q.Offset), nil
}

func (r *Repository) BlogSlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.blogSlugTaken(slug, excludeID), nil
}

func (r *Repository) blogSlugTaken(slug string, excludeID int64) bool {
	for id, blog := range r.blogs {
		if id != excludeID && blog.Slug == slug {
			return true
		}
	}
	return false
}

// Research operations

func (r *Repository) CreateResearch(ctx context.Context, research *cms.Research) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.researchSlugTaken(research.Slug, 0) {
		return fmt.Errorf("research slug %q: %w", research.Slug, cms.ErrSlugConflict)
	}
	if err := r.checkRefs(nil, research.FeaturedImageID); err != nil {
		return err
	}

	research.ID = r.allocID("research")
	c := *research
	c.FeaturedImage = nil
	r.research[research.ID] = &c
	return nil
}

func (r *Repository) GetResearch(ctx context.Context, id int64) (*cms.Research, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	research, exists := r.research[id]
	if !exists {
		return nil, cms.ErrResearchNotFound
	}
	return r.hydrateResearch(research), nil
}

func (r *Repository) GetResearchBySlug(ctx context.Context, slug string) (*cms.Research, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, research := range r.research {
		if research.Slug == slug {
			return r.hydrateResearch(research), nil
		}
	}
	return nil, cms.ErrResearchNotFound
}

func (r *Repository) UpdateResearch(ctx context.Context, research *cms.Research) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.research[research.ID]; !exists {
		return cms.ErrResearchNotFound
	}
	if r.researchSlugTaken(research.Slug, research.ID) {
		return fmt.Errorf("research slug %q: %w", research.Slug, cms.ErrSlugConflict)
	}
	if err := r.checkRefs(nil, research.FeaturedImageID); err != nil {
		return err
	}

	c := *research
	c.FeaturedImage = nil
	r.research[research.ID] = &c
	return nil
}

func (r *Repository) DeleteResearch(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.research[id]; !exists {
		return cms.ErrResearchNotFound
	}
	delete(r.research, id)
	return nil
}

func (r *Repository) ListResearch(ctx context.Context, q cms.ListQuery) ([]*cms.Research, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	terms := lowerTerms(q.SearchTerms())
	var result []*cms.Research
	for _, research := range r.research {
		if q.Status != nil && research.Status != *q.Status {
			continue
		}
		if !inRange(&research.CreatedAt, q.CreatedAfter, q.CreatedBefore) {
			continue
		}
		if !matchesAll(terms, research.Title, research.Description, research.Slug) {
			continue
		}
		result = append(result, r.hydrateResearch(research))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return less(q.Ordering, researchColumns(result[i]), researchColumns(result[j]), result[i].ID, result[j].ID)
	})
	return page(result, q.Limit, q.Offset), nil
}

func (r *Repository) ResearchSlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.researchSlugTaken(slug, excludeID), nil
}

func (r *Repository) researchSlugTaken(slug string, excludeID int64) bool {
	for id, research := range r.research {
		if id != excludeID && research.Slug == slug {
			return true
		}
	}
	return false
}

// Image operations

func (r *Repository) table(kind cms.ImageKind) (map[int64]*cms.Image, error) {
	t, ok := r.images[kind]
	if !ok {
		return nil, fmt.Errorf("unknown image kind %q", kind)
	}
	return t, nil
}

func (r *Repository) CreateImage(ctx context.Context, image *cms.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.table(image.Kind)
	if err != nil {
		return err
	}
	image.ID = r.allocID(string(image.Kind))
	c := *image
	t[image.ID] = &c
	return nil
}

func (r *Repository) GetImage(ctx context.Context, kind cms.ImageKind, id int64) (*cms.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, err := r.table(kind)
	if err != nil {
		return nil, err
	}
	img, exists := t[id]
	if !exists {
		return nil, cms.ErrImageNotFound
	}
	c := *img
	return &c, nil
}

func (r *Repository) UpdateImage(ctx context.Context, image *cms.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.table(image.Kind)
	if err != nil {
		return err
	}
	if _, exists := t[image.ID]; !exists {
		return cms.ErrImageNotFound
	}
	c := *image
	t[image.ID] = &c
	return nil
}

func (r *Repository) DeleteImage(ctx context.Context, kind cms.ImageKind, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.table(kind)
	if err != nil {
		return err
	}
	if _, exists := t[id]; !exists {
		return cms.ErrImageNotFound
	}
	delete(t, id)

	if kind != cms.ImageKindAsset {
		return nil
	}
	// ON DELETE SET NULL
	for _, blog := range r.blogs {
		if blog.FeaturedImageID != nil && *blog.FeaturedImageID == id {
			blog.FeaturedImageID = nil
		}
	}
	for _, research := range r.research {
		if research.FeaturedImageID != nil && *research.FeaturedImageID == id {
			research.FeaturedImageID = nil
		}
	}
	return nil
}

func (r *Repository) ListImages(ctx context.Context, kind cms.ImageKind, q cms.ImageQuery) ([]*cms.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, err := r.table(kind)
	if err != nil {
		return nil, err
	}
	result := make([]*cms.Image, 0, len(t))
	for _, img := range t {
		c := *img
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return page(result, q.Limit, q.Offset), nil
}

// User operations

func (r *Repository) CreateUser(ctx context.Context, user *cms.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username {
			return cms.ErrUsernameTaken
		}
	}
	user.ID = r.allocID("users")
	c := *user
	r.users[user.ID] = &c
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*cms.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, exists := r.users[id]
	if !exists {
		return nil, cms.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*cms.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, cms.ErrUserNotFound
}

// Media reference operations

func (r *Repository) ListMediaRefs(ctx context.Context, field cms.MediaField, afterID int64, limit int) ([]cms.MediaRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var refs []cms.MediaRef
	switch field {
	case cms.MediaFieldImageAssetFile, cms.MediaFieldContentImageFile:
		kind := cms.ImageKindAsset
		if field == cms.MediaFieldContentImageFile {
			kind = cms.ImageKindContent
		}
		for id, img := range r.images[kind] {
			if id > afterID && !img.File.IsZero() {
				refs = append(refs, cms.MediaRef{Field: field, ID: id, Ref: img.File})
			}
		}
	case cms.MediaFieldResearchFile:
		for id, res := range r.research {
			if id > afterID && !res.File.IsZero() {
				refs = append(refs, cms.MediaRef{Field: field, ID: id, Ref: res.File})
			}
		}
	default:
		return nil, fmt.Errorf("unknown media field %q", field)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (r *Repository) SetMediaRef(ctx context.Context, field cms.MediaField, id int64, ref cms.FileRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch field {
	case cms.MediaFieldImageAssetFile, cms.MediaFieldContentImageFile:
		kind := cms.ImageKindAsset
		if field == cms.MediaFieldContentImageFile {
			kind = cms.ImageKindContent
		}
		img, ok := r.images[kind][id]
		if !ok {
			return cms.ErrImageNotFound
		}
		img.File = ref
	case cms.MediaFieldResearchFile:
		res, ok := r.research[id]
		if !ok {
			return cms.ErrResearchNotFound
		}
		res.File = ref
	default:
		return fmt.Errorf("unknown media field %q", field)
	}
	return nil
}

// Filtering and ordering helpers

func lowerTerms(terms []string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = strings.ToLower(t)
	}
	return out
}

// matchesAll reports whether every term occurs in at least one field.
func matchesAll(terms []string, fields ...string) bool {
	for _, term := range terms {
		found := false
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// inRange applies inclusive bounds. A nil value never matches a bound.
func inRange(v, after, before *time.Time) bool {
	if after == nil && before == nil {
		return true
	}
	if v == nil {
		return false
	}
	if after != nil && v.Before(*after) {
		return false
	}
	if before != nil && v.After(*before) {
		return false
	}
	return true
}

func blogColumns(b *cms.Blog) map[string]*time.Time {
	return map[string]*time.Time{
		cms.FieldPublishedAt: b.PublishedAt,
		cms.FieldCreatedAt:   &b.CreatedAt,
		cms.FieldUpdatedAt:   &b.UpdatedAt,
	}
}

func researchColumns(r *cms.Research) map[string]*time.Time {
	return map[string]*time.Time{
		cms.FieldCreatedAt: &r.CreatedAt,
		cms.FieldUpdatedAt: &r.UpdatedAt,
	}
}

// less orders by each term in turn with nulls last, then by id descending.
func less(ordering []cms.OrderField, a, b map[string]*time.Time, aID, bID int64) bool {
	for _, of := range ordering {
		av, bv := a[of.Field], b[of.Field]
		switch {
		case av == nil && bv == nil:
			continue
		case av == nil:
			return false
		case bv == nil:
			return true
		case av.Equal(*bv):
			continue
		case of.Desc:
			return av.After(*bv)
		default:
			return av.Before(*bv)
		}
	}
	return aID > bID
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

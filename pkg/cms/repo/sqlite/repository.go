package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/repo/sqlfilter"
)

// Repository implements cms.Repository on SQLite.
type Repository struct {
	db *sql.DB
}

// New wraps an already configured and migrated database.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ cms.Repository = (*Repository)(nil)

// DB returns the underlying database handle.
func (r *Repository) DB() *sql.DB { return r.db }

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// mapError translates SQLite constraint failures into domain errors.
func mapError(operation string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, ".slug"):
		return fmt.Errorf("%s: %w", operation, cms.ErrSlugConflict)
	case strings.Contains(msg, "UNIQUE constraint failed: users.username"):
		return fmt.Errorf("%s: %w", operation, cms.ErrUsernameTaken)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%s: %w", operation, cms.ErrRelatedMissing)
	case strings.Contains(msg, "no such table"):
		return fmt.Errorf("%s: table does not exist - database migration required", operation)
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func formatTime(t time.Time) string { return sqlfilter.FormatTime(t) }

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return sqlfilter.FormatTime(*t)
}

func parseTime(s string) time.Time {
	t, err := sqlfilter.ParseTime(s)
	if err != nil {
		// Rows written by hand may use SQLite's datetime() format.
		t, _ = time.Parse("2006-01-02 15:04:05", s)
	}
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func rowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// featuredScan holds the nullable columns of a LEFT JOINed image.
type featuredScan struct {
	file      sql.NullString
	altText   sql.NullString
	createdAt sql.NullString
	updatedAt sql.NullString
}

func (f *featuredScan) image(id *int64) *cms.Image {
	if id == nil || !f.file.Valid {
		return nil
	}
	img := &cms.Image{ID: *id, Kind: cms.ImageKindAsset, File: cms.FileRef(f.file.String), AltText: f.altText.String}
	if f.createdAt.Valid {
		img.CreatedAt = parseTime(f.createdAt.String)
	}
	if f.updatedAt.Valid {
		img.UpdatedAt = parseTime(f.updatedAt.String)
	}
	return img
}

// Blog operations

const blogSelect = `
	SELECT b.id, b.title, b.slug, b.author_id,
	       COALESCE(TRIM(u.first_name || ' ' || u.last_name), ''),
	       b.featured_image_id, i.file, i.alt_text, i.created_at, i.updated_at,
	       b.summary, b.body, b.status, b.published_at, b.created_at, b.updated_at
	FROM blogs b
	LEFT JOIN users u ON u.id = b.author_id
	LEFT JOIN image_assets i ON i.id = b.featured_image_id`

var blogColumns = sqlfilter.Columns{
	Status:      "b.status",
	Author:      "b.author_id",
	CreatedAt:   "b.created_at",
	UpdatedAt:   "b.updated_at",
	PublishedAt: "b.published_at",
	ID:          "b.id",
	Search:      []string{"b.title", "b.summary", "b.slug"},
}

func scanBlog(row scanner) (*cms.Blog, error) {
	var blog cms.Blog
	var feat featuredScan
	var authorID, featuredID sql.NullInt64
	var body, status, createdAt, updatedAt string
	var publishedAt sql.NullString
	err := row.Scan(
		&blog.ID, &blog.Title, &blog.Slug, &authorID, &blog.AuthorName,
		&featuredID, &feat.file, &feat.altText, &feat.createdAt, &feat.updatedAt,
		&blog.Summary, &body, &status, &publishedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	blog.AuthorID = nullInt(authorID)
	blog.FeaturedImageID = nullInt(featuredID)
	blog.Body = json.RawMessage(body)
	blog.Status = cms.Status(status)
	blog.PublishedAt = parseNullTime(publishedAt)
	blog.CreatedAt = parseTime(createdAt)
	blog.UpdatedAt = parseTime(updatedAt)
	blog.FeaturedImage = feat.image(blog.FeaturedImageID)
	return &blog, nil
}

func (r *Repository) CreateBlog(ctx context.Context, blog *cms.Blog) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO blogs (
			title, slug, author_id, featured_image_id, summary, body,
			status, published_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		blog.Title, blog.Slug, blog.AuthorID, blog.FeaturedImageID, blog.Summary, string(blog.Body),
		string(blog.Status), formatNullTime(blog.PublishedAt), formatTime(blog.CreatedAt), formatTime(blog.UpdatedAt))
	if err != nil {
		return mapError("create blog", err)
	}
	blog.ID, err = res.LastInsertId()
	return err
}

func (r *Repository) getBlog(ctx context.Context, where string, arg any) (*cms.Blog, error) {
	blog, err := scanBlog(r.db.QueryRowContext(ctx, blogSelect+" WHERE "+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cms.ErrBlogNotFound
		}
		return nil, mapError("get blog", err)
	}
	return blog, nil
}

func (r *Repository) GetBlog(ctx context.Context, id int64) (*cms.Blog, error) {
	return r.getBlog(ctx, "b.id = ?", id)
}

func (r *Repository) GetBlogBySlug(ctx context.Context, slug string) (*cms.Blog, error) {
	return r.getBlog(ctx, "b.slug = ?", slug)
}

func (r *Repository) UpdateBlog(ctx context.Context, blog *cms.Blog) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE blogs SET
			title = ?, slug = ?, author_id = ?, featured_image_id = ?,
			summary = ?, body = ?, status = ?, published_at = ?, updated_at = ?
		WHERE id = ?`,
		blog.Title, blog.Slug, blog.AuthorID, blog.FeaturedImageID,
		blog.Summary, string(blog.Body), string(blog.Status), formatNullTime(blog.PublishedAt),
		formatTime(blog.UpdatedAt), blog.ID)
	if err != nil {
		return mapError("update blog", err)
	}
	return rowsAffected(res, cms.ErrBlogNotFound)
}

func (r *Repository) DeleteBlog(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM blogs WHERE id = ?`, id)
	if err != nil {
		return mapError("delete blog", err)
	}
	return rowsAffected(res, cms.ErrBlogNotFound)
}

func (r *Repository) ListBlogs(ctx context.Context, q cms.ListQuery) ([]*cms.Blog, error) {
	b := sqlfilter.NewBuilder(sqlfilter.SQLite)
	b.ApplyList(blogColumns, q)
	order, err := sqlfilter.OrderBy(blogColumns, q.Ordering)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, blogSelect+b.WhereClause()+order+b.Page(q.Limit, q.Offset), b.Args()...)
	if err != nil {
		return nil, mapError("list blogs", err)
	}
	defer rows.Close()

	result := []*cms.Blog{}
	for rows.Next() {
		blog, err := scanBlog(rows)
		if err != nil {
			return nil, mapError("scan blog", err)
		}
		result = append(result, blog)
	}
	return result, rows.Err()
}

func (r *Repository) BlogSlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM blogs WHERE slug = ? AND id <> ? LIMIT 1`, slug, excludeID)
}

func (r *Repository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError("exists", err)
	}
	return true, nil
}

// Research operations

const researchSelect = `
	SELECT r.id, r.title, r.slug, r.featured_image_id,
	       i.file, i.alt_text, i.created_at, i.updated_at,
	       r.description, r.status, r.file, r.created_at, r.updated_at
	FROM research r
	LEFT JOIN image_assets i ON i.id = r.featured_image_id`

var researchColumns = sqlfilter.Columns{
	Status:    "r.status",
	CreatedAt: "r.created_at",
	UpdatedAt: "r.updated_at",
	ID:        "r.id",
	Search:    []string{"r.title", "r.description", "r.slug"},
}

func scanResearch(row scanner) (*cms.Research, error) {
	var res cms.Research
	var feat featuredScan
	var featuredID sql.NullInt64
	var status, file, createdAt, updatedAt string
	err := row.Scan(
		&res.ID, &res.Title, &res.Slug, &featuredID,
		&feat.file, &feat.altText, &feat.createdAt, &feat.updatedAt,
		&res.Description, &status, &file, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	res.FeaturedImageID = nullInt(featuredID)
	res.Status = cms.Status(status)
	res.File = cms.FileRef(file)
	res.CreatedAt = parseTime(createdAt)
	res.UpdatedAt = parseTime(updatedAt)
	res.FeaturedImage = feat.image(res.FeaturedImageID)
	return &res, nil
}

func (r *Repository) CreateResearch(ctx context.Context, research *cms.Research) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO research (
			title, slug, featured_image_id, description, status, file, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		research.Title, research.Slug, research.FeaturedImageID, research.Description,
		string(research.Status), string(research.File), formatTime(research.CreatedAt), formatTime(research.UpdatedAt))
	if err != nil {
		return mapError("create research", err)
	}
	research.ID, err = res.LastInsertId()
	return err
}

func (r *Repository) getResearch(ctx context.Context, where string, arg any) (*cms.Research, error) {
	res, err := scanResearch(r.db.QueryRowContext(ctx, researchSelect+" WHERE "+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cms.ErrResearchNotFound
		}
		return nil, mapError("get research", err)
	}
	return res, nil
}

func (r *Repository) GetResearch(ctx context.Context, id int64) (*cms.Research, error) {
	return r.getResearch(ctx, "r.id = ?", id)
}

func (r *Repository) GetResearchBySlug(ctx context.Context, slug string) (*cms.Research, error) {
	return r.getResearch(ctx, "r.slug = ?", slug)
}

func (r *Repository) UpdateResearch(ctx context.Context, research *cms.Research) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE research SET
			title = ?, slug = ?, featured_image_id = ?, description = ?,
			status = ?, file = ?, updated_at = ?
		WHERE id = ?`,
		research.Title, research.Slug, research.FeaturedImageID, research.Description,
		string(research.Status), string(research.File), formatTime(research.UpdatedAt), research.ID)
	if err != nil {
		return mapError("update research", err)
	}
	return rowsAffected(res, cms.ErrResearchNotFound)
}

func (r *Repository) DeleteResearch(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM research WHERE id = ?`, id)
	if err != nil {
		return mapError("delete research", err)
	}
	return rowsAffected(res, cms.ErrResearchNotFound)
}

func (r *Repository) ListResearch(ctx context.Context, q cms.ListQuery) ([]*cms.Research, error) {
	b := sqlfilter.NewBuilder(sqlfilter.SQLite)
	b.ApplyList(researchColumns, q)
	order, err := sqlfilter.OrderBy(researchColumns, q.Ordering)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, researchSelect+b.WhereClause()+order+b.Page(q.Limit, q.Offset), b.Args()...)
	if err != nil {
		return nil, mapError("list research", err)
	}
	defer rows.Close()

	result := []*cms.Research{}
	for rows.Next() {
		res, err := scanResearch(rows)
		if err != nil {
			return nil, mapError("scan research", err)
		}
		result = append(result, res)
	}
	return result, rows.Err()
}

func (r *Repository) ResearchSlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM research WHERE slug = ? AND id <> ? LIMIT 1`, slug, excludeID)
}

// Image operations

func imageTable(kind cms.ImageKind) (string, error) {
	switch kind {
	case cms.ImageKindAsset:
		return "image_assets", nil
	case cms.ImageKindContent:
		return "content_images", nil
	}
	return "", fmt.Errorf("unknown image kind %q", kind)
}

func scanImage(row scanner, kind cms.ImageKind) (*cms.Image, error) {
	img := &cms.Image{Kind: kind}
	var file, createdAt, updatedAt string
	if err := row.Scan(&img.ID, &file, &img.AltText, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	img.File = cms.FileRef(file)
	img.CreatedAt = parseTime(createdAt)
	img.UpdatedAt = parseTime(updatedAt)
	return img, nil
}

func (r *Repository) CreateImage(ctx context.Context, image *cms.Image) error {
	table, err := imageTable(image.Kind)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO `+table+` (file, alt_text, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		string(image.File), image.AltText, formatTime(image.CreatedAt), formatTime(image.UpdatedAt))
	if err != nil {
		return mapError("create image", err)
	}
	image.ID, err = res.LastInsertId()
	return err
}

func (r *Repository) GetImage(ctx context.Context, kind cms.ImageKind, id int64) (*cms.Image, error) {
	table, err := imageTable(kind)
	if err != nil {
		return nil, err
	}
	img, err := scanImage(r.db.QueryRowContext(ctx,
		`SELECT id, file, alt_text, created_at, updated_at FROM `+table+` WHERE id = ?`, id), kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cms.ErrImageNotFound
		}
		return nil, mapError("get image", err)
	}
	return img, nil
}

func (r *Repository) UpdateImage(ctx context.Context, image *cms.Image) error {
	table, err := imageTable(image.Kind)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE `+table+` SET file = ?, alt_text = ?, updated_at = ? WHERE id = ?`,
		string(image.File), image.AltText, formatTime(image.UpdatedAt), image.ID)
	if err != nil {
		return mapError("update image", err)
	}
	return rowsAffected(res, cms.ErrImageNotFound)
}

// DeleteImage relies on ON DELETE SET NULL, which needs foreign_keys = ON.
func (r *Repository) DeleteImage(ctx context.Context, kind cms.ImageKind, id int64) error {
	table, err := imageTable(kind)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return mapError("delete image", err)
	}
	return rowsAffected(res, cms.ErrImageNotFound)
}

func (r *Repository) ListImages(ctx context.Context, kind cms.ImageKind, q cms.ImageQuery) ([]*cms.Image, error) {
	table, err := imageTable(kind)
	if err != nil {
		return nil, err
	}
	b := sqlfilter.NewBuilder(sqlfilter.SQLite)
	query := `SELECT id, file, alt_text, created_at, updated_at FROM ` + table +
		` ORDER BY created_at DESC, id DESC` + b.Page(q.Limit, q.Offset)

	rows, err := r.db.QueryContext(ctx, query, b.Args()...)
	if err != nil {
		return nil, mapError("list images", err)
	}
	defer rows.Close()

	result := []*cms.Image{}
	for rows.Next() {
		img, err := scanImage(rows, kind)
		if err != nil {
			return nil, mapError("scan image", err)
		}
		result = append(result, img)
	}
	return result, rows.Err()
}

// User operations

const userSelect = `SELECT id, username, password_hash, first_name, last_name, email,
	is_staff, is_active, created_at FROM users`

func scanUser(row scanner) (*cms.User, error) {
	var u cms.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Email,
		&u.IsStaff, &u.IsActive, &createdAt)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *cms.User) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, first_name, last_name, email, is_staff, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username, user.PasswordHash, user.FirstName, user.LastName, user.Email,
		user.IsStaff, user.IsActive, formatTime(user.CreatedAt))
	if err != nil {
		return mapError("create user", err)
	}
	user.ID, err = res.LastInsertId()
	return err
}

func (r *Repository) getUser(ctx context.Context, where string, arg any) (*cms.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, userSelect+" WHERE "+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cms.ErrUserNotFound
		}
		return nil, mapError("get user", err)
	}
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*cms.User, error) {
	return r.getUser(ctx, "id = ?", id)
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*cms.User, error) {
	return r.getUser(ctx, "username = ?", username)
}

// Media reference operations

func mediaTable(field cms.MediaField) (string, error) {
	switch field {
	case cms.MediaFieldImageAssetFile:
		return "image_assets", nil
	case cms.MediaFieldContentImageFile:
		return "content_images", nil
	case cms.MediaFieldResearchFile:
		return "research", nil
	}
	return "", fmt.Errorf("unknown media field %q", field)
}

func (r *Repository) ListMediaRefs(ctx context.Context, field cms.MediaField, afterID int64, limit int) ([]cms.MediaRef, error) {
	table, err := mediaTable(field)
	if err != nil {
		return nil, err
	}
	b := sqlfilter.NewBuilder(sqlfilter.SQLite, afterID)
	query := `SELECT id, file FROM ` + table + ` WHERE id > ?1 AND file <> '' ORDER BY id` + b.Page(limit, 0)

	rows, err := r.db.QueryContext(ctx, query, b.Args()...)
	if err != nil {
		return nil, mapError("list media refs", err)
	}
	defer rows.Close()

	var refs []cms.MediaRef
	for rows.Next() {
		ref := cms.MediaRef{Field: field}
		var file string
		if err := rows.Scan(&ref.ID, &file); err != nil {
			return nil, mapError("scan media ref", err)
		}
		ref.Ref = cms.FileRef(file)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *Repository) SetMediaRef(ctx context.Context, field cms.MediaField, id int64, ref cms.FileRef) error {
	table, err := mediaTable(field)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE `+table+` SET file = ? WHERE id = ?`, string(ref), id)
	if err != nil {
		return mapError("set media ref", err)
	}
	return rowsAffected(res, fmt.Errorf("%s row %d: %w", table, id, cms.ErrNotFound))
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/repo/sqlfilter"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements cms.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

var _ cms.Repository = (*Repository)(nil)

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "slug") {
				return fmt.Errorf("%s: %w", operation, cms.ErrSlugConflict)
			}
			if strings.Contains(pgErr.ConstraintName, "username") {
				return fmt.Errorf("%s: %w", operation, cms.ErrUsernameTaken)
			}
			return fmt.Errorf("%s: duplicate entry (%s)", operation, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %s: %w", operation, pgErr.ConstraintName, cms.ErrRelatedMissing)
		case "23502": // not_null_violation
			return fmt.Errorf("%s: required field %s is missing", operation, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - database migration required", operation)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) Ping(ctx context.Context) error {
	var one int
	return r.db.QueryRow(ctx, "SELECT 1").Scan(&one)
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

// featuredScan holds the nullable columns of a LEFT JOINed image.
type featuredScan struct {
	file      *string
	altText   *string
	createdAt *time.Time
	updatedAt *time.Time
}

func (f *featuredScan) image(id *int64) *cms.Image {
	if id == nil || f.file == nil {
		return nil
	}
	img := &cms.Image{ID: *id, Kind: cms.ImageKindAsset, File: cms.FileRef(*f.file)}
	if f.altText != nil {
		img.AltText = *f.altText
	}
	if f.createdAt != nil {
		img.CreatedAt = *f.createdAt
	}
	if f.updatedAt != nil {
		img.UpdatedAt = *f.updatedAt
	}
	return img
}

func scanBlog(row pgx.Row) (*cms.Blog, error) {
	var blog cms.Blog
	var feat featuredScan
	var body []byte
	var status string
	err := row.Scan(
		&blog.ID, &blog.Title, &blog.Slug, &blog.AuthorID, &blog.AuthorName,
		&blog.FeaturedImageID, &feat.file, &feat.altText, &feat.createdAt, &feat.updatedAt,
		&blog.Summary, &body, &status, &blog.PublishedAt, &blog.CreatedAt, &blog.UpdatedAt)
	if err != nil {
		return nil, err
	}
	blog.Body = json.RawMessage(body)
	blog.Status = cms.Status(status)
	blog.FeaturedImage = feat.image(blog.FeaturedImageID)
	return &blog, nil
}

func (r *Repository) CreateBlog(ctx context.Context, blog *cms.Blog) error {
	query := `
		INSERT INTO blogs (
			title, slug, author_id, featured_image_id, summary, body,
			status, published_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		blog.Title, blog.Slug, blog.AuthorID, blog.FeaturedImageID, blog.Summary, []byte(blog.Body),
		string(blog.Status), blog.PublishedAt, blog.CreatedAt, blog.UpdatedAt,
	).Scan(&blog.ID)
	if err != nil {
		return r.handlePostgresError("create blog", err)
	}
	return nil
}

func (r *Repository) GetBlog(ctx context.Context, id int64) (*cms.Blog, error) {
	blog, err := scanBlog(r.db.QueryRow(ctx, blogSelect+" WHERE b.id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cms.ErrBlogNotFound
		}
		return nil, r.handlePostgresError("get blog", err)
	}
	return blog, nil
}

func (r *Repository) GetBlogBySlug(ctx context.Context, slug string) (*cms.Blog, error) {
	blog, err := scanBlog(r.db.QueryRow(ctx, blogSelect+" WHERE b.slug = $1", slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cms.ErrBlogNotFound
		}
		return nil, r.handlePostgresError("get blog by slug", err)
	}
	return blog, nil
}

func (r *Repository) UpdateBlog(ctx context.Context, blog *cms.Blog) error {
	query := `
		UPDATE blogs SET
			title = $2, slug = $3, author_id = $4, featured_image_id = $5,
			summary = $6, body = $7, status = $8, published_at = $9, updated_at = $10
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		blog.ID, blog.Title, blog.Slug, blog.AuthorID, blog.FeaturedImageID,
		blog.Summary, []byte(blog.Body), string(blog.Status), blog.PublishedAt, blog.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update blog", err)
	}
	if tag.RowsAffected() == 0 {
		return cms.ErrBlogNotFound
	}
	return nil
}

func (r *Repository) DeleteBlog(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM blogs WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete blog", err)
	}
	if tag.RowsAffected() == 0 {
		return cms.ErrBlogNotFound
	}
	return nil
}

func (r *Repository) ListBlogs(ctx context.Context, q cms.ListQuery) ([]*cms.Blog, error) {
	b := sqlfilter.NewBuilder(sqlfilter.Postgres)
	b.ApplyList(blogColumns, q)
	order, err := sqlfilter.OrderBy(blogColumns, q.Ordering)
	if err != nil {
		return nil, err
	}
	query := blogSelect + b.WhereClause() + order + b.Page(q.Limit, q.Offset)

	rows, err := r.db.Query(ctx, query, b.Args()...)
	if err != nil {
		return nil, r.handlePostgresError("list blogs", err)
	}
	defer rows.Close()

	result := []*cms.Blog{}
	for rows.Next() {
		blog, err := scanBlog(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan blog", err)
		}
		result = append(result, blog)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list blogs", err)
	}
	return result, nil
}

func (r *Repository) BlogSlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM blogs WHERE slug = $1 AND id <> $2)`, slug, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, r.handlePostgresError("check blog slug", err)
	}
	return exists, nil
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

func scanResearch(row pgx.Row) (*cms.Research, error) {
	var res cms.Research
	var feat featuredScan
	var status, file string
	err := row.Scan(
		&res.ID, &res.Title, &res.Slug, &res.FeaturedImageID,
		&feat.file, &feat.altText, &feat.createdAt, &feat.updatedAt,
		&res.Description, &status, &file, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	res.Status = cms.Status(status)
	res.File = cms.FileRef(file)
	res.FeaturedImage = feat.image(res.FeaturedImageID)
	return &res, nil
}

func (r *Repository) CreateResearch(ctx context.Context, research *cms.Research) error {
	query := `
		INSERT INTO research (
			title, slug, featured_image_id, description, status, file, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		research.Title, research.Slug, research.FeaturedImageID, research.Description,
		string(research.Status), string(research.File), research.CreatedAt, research.UpdatedAt,
	).Scan(&research.ID)
	if err != nil {
		return r.handlePostgresError("create research", err)
	}
	return nil
}

func (r *Repository) GetResearch(ctx context.Context, id int64) (*cms.Research, error) {
	res, err := scanResearch(r.db.QueryRow(ctx, researchSelect+" WHERE r.id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cms.ErrResearchNotFound
		}
		return nil, r.handlePostgresError("get research", err)
	}
	return res, nil
}

func (r *Repository) GetResearchBySlug(ctx context.Context, slug string) (*cms.Research, error) {
	res, err := scanResearch(r.db.QueryRow(ctx, researchSelect+" WHERE r.slug = $1", slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cms.ErrResearchNotFound
		}
		return nil, r.handlePostgresError("get research by slug", err)
	}
	return res, nil
}

func (r *Repository) UpdateResearch(ctx context.Context, research *cms.Research) error {
	query := `
		UPDATE research SET
			title = $2, slug = $3, featured_image_id = $4, description = $5,
			status = $6, file = $7, updated_at = $8
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		research.ID, research.Title, research.Slug, research.FeaturedImageID,
		research.Description, string(research.Status), string(research.File), research.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update research", err)
	}
	if tag.RowsAffected() == 0 {
		return cms.ErrResearchNotFound
	}
	return nil
}

func (r *Repository) DeleteResearch(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM research WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete research", err)
	}
	if tag.RowsAffected() == 0 {
		return cms.ErrResearchNotFound
	}
	return nil
}

func (r *Repository) ListResearch(ctx context.Context, q cms.ListQuery) ([]*cms.Research, error) {
	b := sqlfilter.NewBuilder(sqlfilter.Postgres)
	b.ApplyList(researchColumns, q)
	order, err := sqlfilter.OrderBy(researchColumns, q.Ordering)
	if err != nil {
		return nil, err
	}
	query := researchSelect + b.WhereClause() + order + b.Page(q.Limit, q.Offset)

	rows, err := r.db.Query(ctx, query, b.Args()...)
	if err != nil {
		return nil, r.handlePostgresError("list research", err)
	}
	defer rows.Close()

	result := []*cms.Research{}
	for rows.Next() {
		res, err := scanResearch(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan research", err)
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list research", err)
	}
	return result, nil
}

func (r *Repository) ResearchSlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM research WHERE slug = $1 AND id <> $2)`, slug, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, r.handlePostgresError("check research slug", err)
	}
	return exists, nil
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

func (r *Repository) CreateImage(ctx context.Context, image *cms.Image) error {
	table, err := imageTable(image.Kind)
	if err != nil {
		return err
	}
	query := `INSERT INTO ` + table + ` (file, alt_text, created_at, updated_at)
		VALUES ($1, $2, $3, $4) RETURNING id`
	err = r.db.QueryRow(ctx, query, string(image.File), image.AltText, image.CreatedAt, image.UpdatedAt).Scan(&image.ID)
	if err != nil {
		return r.handlePostgresError("create image", err)
	}
	return nil
}

func (r *Repository) GetImage(ctx context.Context, kind cms.ImageKind, id int64) (*cms.Image, error) {
	table, err := imageTable(kind)
	if err != nil {
		return nil, err
	}
	img := &cms.Image{Kind: kind}
	var file string
	err = r.db.QueryRow(ctx,
		`SELECT id, file, alt_text, created_at, updated_at FROM `+table+` WHERE id = $1`, id,
	).Scan(&img.ID, &file, &img.AltText, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cms.ErrImageNotFound
		}
		return nil, r.handlePostgresError("get image", err)
	}
	img.File = cms.FileRef(file)
	return img, nil
}

func (r *Repository) UpdateImage(ctx context.Context, image *cms.Image) error {
	table, err := imageTable(image.Kind)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE `+table+` SET file = $2, alt_text = $3, updated_at = $4 WHERE id = $1`,
		image.ID, string(image.File), image.AltText, image.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update image", err)
	}
	if tag.RowsAffected() == 0 {
		return cms.ErrImageNotFound
	}
	return nil
}

// DeleteImage relies on ON DELETE SET NULL for blogs and research.
func (r *Repository) DeleteImage(ctx context.Context, kind cms.ImageKind, id int64) error {
	table, err := imageTable(kind)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete image", err)
	}
	if tag.RowsAffected() == 0 {
		return cms.ErrImageNotFound
	}
	return nil
}

func (r *Repository) ListImages(ctx context.Context, kind cms.ImageKind, q cms.ImageQuery) ([]*cms.Image, error) {
	table, err := imageTable(kind)
	if err != nil {
		return nil, err
	}
	b := sqlfilter.NewBuilder(sqlfilter.Postgres)
	query := `SELECT id, file, alt_text, created_at, updated_at FROM ` + table +
		` ORDER BY created_at DESC, id DESC` + b.Page(q.Limit, q.Offset)

	rows, err := r.db.Query(ctx, query, b.Args()...)
	if err != nil {
		return nil, r.handlePostgresError("list images", err)
	}
	defer rows.Close()

	result := []*cms.Image{}
	for rows.Next() {
		img := &cms.Image{Kind: kind}
		var file string
		if err := rows.Scan(&img.ID, &file, &img.AltText, &img.CreatedAt, &img.UpdatedAt); err != nil {
			return nil, r.handlePostgresError("scan image", err)
		}
		img.File = cms.FileRef(file)
		result = append(result, img)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list images", err)
	}
	return result, nil
}

// User operations

const userSelect = `SELECT id, username, password_hash, first_name, last_name, email,
	is_staff, is_active, created_at FROM users`

func scanUser(row pgx.Row) (*cms.User, error) {
	var u cms.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Email,
		&u.IsStaff, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *cms.User) error {
	query := `
		INSERT INTO users (username, password_hash, first_name, last_name, email, is_staff, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := r.db.QueryRow(ctx, query,
		user.Username, user.PasswordHash, user.FirstName, user.LastName, user.Email,
		user.IsStaff, user.IsActive, user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		return r.handlePostgresError("create user", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*cms.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, userSelect+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cms.ErrUserNotFound
		}
		return nil, r.handlePostgresError("get user", err)
	}
	return u, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*cms.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, userSelect+" WHERE username = $1", username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cms.ErrUserNotFound
		}
		return nil, r.handlePostgresError("get user by username", err)
	}
	return u, nil
}

// Media reference operations

func mediaColumn(field cms.MediaField) (table string, err error) {
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
	table, err := mediaColumn(field)
	if err != nil {
		return nil, err
	}
	b := sqlfilter.NewBuilder(sqlfilter.Postgres, afterID)
	query := `SELECT id, file FROM ` + table + ` WHERE id > $1 AND file <> '' ORDER BY id` + b.Page(limit, 0)

	rows, err := r.db.Query(ctx, query, b.Args()...)
	if err != nil {
		return nil, r.handlePostgresError("list media refs", err)
	}
	defer rows.Close()

	var refs []cms.MediaRef
	for rows.Next() {
		ref := cms.MediaRef{Field: field}
		var file string
		if err := rows.Scan(&ref.ID, &file); err != nil {
			return nil, r.handlePostgresError("scan media ref", err)
		}
		ref.Ref = cms.FileRef(file)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list media refs", err)
	}
	return refs, nil
}

func (r *Repository) SetMediaRef(ctx context.Context, field cms.MediaField, id int64, ref cms.FileRef) error {
	table, err := mediaColumn(field)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE `+table+` SET file = $2 WHERE id = $1`, id, string(ref))
	if err != nil {
		return r.handlePostgresError("set media ref", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s row %d: %w", table, id, cms.ErrNotFound)
	}
	return nil
}

package cms

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the publication state of a blog post or research item.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusInReview  Status = "in_review"
	StatusPublished Status = "published"
)

// Field limits shared by every store backend.
const (
	MaxTitleLength    = 220
	MaxSlugLength     = 250
	MaxSlugBaseLength = 200
	MaxAltTextLength  = 255
	MaxUsernameLength = 150
)

// Kind names a content entity type. Slugs are unique per kind.
type Kind string

const (
	KindBlog     Kind = "blog"
	KindResearch Kind = "research"
)

// ImageKind selects which image table an Image belongs to.
type ImageKind string

const (
	// ImageKindAsset is a reusable image referenced by blogs and research.
	ImageKindAsset ImageKind = "image_asset"
	// ImageKindContent is an inline image referenced from blog body blocks.
	ImageKindContent ImageKind = "content_image"
)

// FileRef is a stored file reference: either an object key in the local
// media store or an absolute URL on a remote blob host.
type FileRef string

// IsZero reports whether no file is attached.
func (f FileRef) IsZero() bool { return strings.TrimSpace(string(f)) == "" }

// IsRemote reports whether the reference already points at a remote host.
func (f FileRef) IsRemote() bool { return strings.HasPrefix(string(f), "http") }

func (f FileRef) String() string { return string(f) }

// Image is an uploaded image. The same shape backs both image tables.
type Image struct {
	ID        int64     `json:"id" db:"id"`
	Kind      ImageKind `json:"-" db:"-"`
	File      FileRef   `json:"file" db:"file"`
	AltText   string    `json:"alt_text" db:"alt_text"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Blog is a blog post.
type Blog struct {
	ID              int64           `json:"id" db:"id"`
	Title           string          `json:"title" db:"title"`
	Slug            string          `json:"slug" db:"slug"`
	AuthorID        *int64          `json:"author" db:"author_id"`
	AuthorName      string          `json:"author_name" db:"-"`
	FeaturedImageID *int64          `json:"featured_image_id" db:"featured_image_id"`
	FeaturedImage   *Image          `json:"featured_image" db:"-"`
	Summary         string          `json:"summary" db:"summary"`
	Body            json.RawMessage `json:"body" db:"body"`
	Status          Status          `json:"status" db:"status"`
	PublishedAt     *time.Time      `json:"published_at" db:"published_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Research is a research document.
type Research struct {
	ID              int64     `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Slug            string    `json:"slug" db:"slug"`
	FeaturedImageID *int64    `json:"featured_image_id" db:"featured_image_id"`
	FeaturedImage   *Image    `json:"featured_image" db:"-"`
	Description     string    `json:"description" db:"description"`
	Status          Status    `json:"status" db:"status"`
	File            FileRef   `json:"file" db:"file"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// User is an account that can author blogs and authenticate against the API.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	Email        string    `json:"email" db:"email"`
	IsStaff      bool      `json:"is_staff" db:"is_staff"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// FullName returns "first last" with surrounding whitespace removed.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Role is the caller's visibility class.
type Role int

const (
	RolePublic Role = iota
	RoleStaff
)

// IsStaff reports whether the role may see and edit content in any status.
func (r Role) IsStaff() bool { return r == RoleStaff }

// MediaField identifies one table column that holds a FileRef.
type MediaField string

const (
	MediaFieldImageAssetFile   MediaField = "image_assets.file"
	MediaFieldContentImageFile MediaField = "content_images.file"
	MediaFieldResearchFile     MediaField = "research.file"
)

// AllMediaFields lists every column holding a file reference.
var AllMediaFields = []MediaField{
	MediaFieldImageAssetFile,
	MediaFieldContentImageFile,
	MediaFieldResearchFile,
}

// Model returns the lowercase model name used as a remote key prefix.
func (f MediaField) Model() string {
	switch f {
	case MediaFieldImageAssetFile:
		return "imageasset"
	case MediaFieldContentImageFile:
		return "contentimage"
	case MediaFieldResearchFile:
		return "research"
	default:
		return "unknown"
	}
}

// Valid reports whether f is a known media field.
func (f MediaField) Valid() bool {
	for _, known := range AllMediaFields {
		if f == known {
			return true
		}
	}
	return false
}

// MediaRef is one row's file reference for a MediaField.
type MediaRef struct {
	Field MediaField
	ID    int64
	Ref   FileRef
}

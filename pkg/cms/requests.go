package cms

import (
	"bytes"
	"encoding/json"
	"io"
	"time"
)

// Optional is a request field that tells apart "absent", "null" and a value.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a set, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns a set Optional holding JSON null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// Ptr returns nil when the field is absent or null.
func (o Optional[T]) Ptr() *T {
	if !o.Set || o.Null {
		return nil
	}
	v := o.Value
	return &v
}

// BlogInput holds the writable blog fields.
type BlogInput struct {
	Title           Optional[string]          `json:"title"`
	Author          Optional[int64]           `json:"author"`
	FeaturedImageID Optional[int64]           `json:"featured_image_id"`
	Summary         Optional[string]          `json:"summary"`
	Body            Optional[json.RawMessage] `json:"body"`
	Status          Optional[Status]          `json:"status"`
	PublishedAt     Optional[time.Time]       `json:"published_at"`
}

// CreateBlogRequest contains parameters for creating a blog
type CreateBlogRequest struct {
	Input BlogInput
}

// UpdateBlogRequest contains parameters for updating a blog. A non-partial
// update requires every required field to be present.
type UpdateBlogRequest struct {
	ID      int64
	Input   BlogInput
	Partial bool
}

// ResearchInput holds the writable research fields.
type ResearchInput struct {
	Title           Optional[string] `json:"title"`
	FeaturedImageID Optional[int64]  `json:"featured_image_id"`
	Description     Optional[string] `json:"description"`
	Status          Optional[Status] `json:"status"`
}

// CreateResearchRequest contains parameters for creating a research item
type CreateResearchRequest struct {
	Input ResearchInput
}

// UpdateResearchRequest contains parameters for updating a research item
type UpdateResearchRequest struct {
	ID      int64
	Input   ResearchInput
	Partial bool
}

// Upload is a file received from a client.
type Upload struct {
	FileName    string
	ContentType string
	Reader      io.Reader
}

// AttachResearchFileRequest attaches a document to a research item.
type AttachResearchFileRequest struct {
	ID   int64
	File *Upload
}

// CreateImageRequest contains parameters for uploading an image
type CreateImageRequest struct {
	Kind    ImageKind
	File    *Upload
	AltText string
}

// UpdateImageRequest contains parameters for updating an image. File is
// optional; when set the image is replaced.
type UpdateImageRequest struct {
	Kind    ImageKind
	ID      int64
	AltText Optional[string]
	File    *Upload
	Partial bool
}

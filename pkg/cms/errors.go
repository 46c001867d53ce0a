package cms

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Error types
var (
	// ErrNotFound is the root of every missing-record error.
	ErrNotFound = errors.New("not found")

	// ErrBlogNotFound indicates a blog was not found
	ErrBlogNotFound = fmt.Errorf("blog %w", ErrNotFound)

	// ErrResearchNotFound indicates a research item was not found
	ErrResearchNotFound = fmt.Errorf("research %w", ErrNotFound)

	// ErrImageNotFound indicates an image was not found
	ErrImageNotFound = fmt.Errorf("image %w", ErrNotFound)

	// ErrUserNotFound indicates a user was not found
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

	// ErrObjectNotFound indicates a blob was not found in a storage backend
	ErrObjectNotFound = fmt.Errorf("object %w", ErrNotFound)

	// ErrSlugConflict is returned by repositories when the slug unique constraint fires.
	ErrSlugConflict = errors.New("slug already exists")

	// ErrUsernameTaken is returned when creating a user with an existing username.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrRelatedMissing is returned by repositories when a foreign key constraint fires.
	ErrRelatedMissing = fmt.Errorf("referenced record %w", ErrNotFound)

	// ErrPermissionDenied indicates the caller may not perform the operation
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError carries per-field validation messages.
type ValidationError struct {
	Fields validation.Errors
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: validation.Errors{field: errors.New(message)}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// FieldMessages flattens the errors into the {"field": ["message"]} shape.
func (e *ValidationError) FieldMessages() map[string][]string {
	out := make(map[string][]string, len(e.Fields))
	for field, err := range e.Fields {
		if err == nil {
			continue
		}
		var nested validation.Errors
		if errors.As(err, &nested) {
			for sub, subErr := range nested {
				out[field+"."+sub] = append(out[field+"."+sub], subErr.Error())
			}
			continue
		}
		out[field] = append(out[field], err.Error())
	}
	return out
}

// AsValidationError converts ozzo validation output into a ValidationError.
// It returns nil when err is nil and passes other errors through unchanged.
func AsValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		if errs.Filter() == nil {
			return nil
		}
		return &ValidationError{Fields: errs}
	}
	return err
}

// RelatedNotFoundError is returned when a write names a related id that does not exist.
type RelatedNotFoundError struct {
	Field string
	ID    int64
}

func (e *RelatedNotFoundError) Error() string {
	return fmt.Sprintf("invalid pk %q - object does not exist", fmt.Sprint(e.ID))
}

func (e *RelatedNotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError is returned when a slug stays taken after the retry.
type ConflictError struct {
	Kind Kind
	Slug string
	Err  error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with slug %q already exists", e.Kind, e.Slug)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// ContentError represents an error related to content operations
type ContentError struct {
	Kind Kind
	ID   int64
	Op   string
	Err  error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("%s operation %s failed for id %d: %v", e.Kind, e.Op, e.ID, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

package cms

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Sortable columns.
const (
	FieldPublishedAt = "published_at"
	FieldCreatedAt   = "created_at"
	FieldUpdatedAt   = "updated_at"
)

// OrderField is one ordering term.
type OrderField struct {
	Field string
	Desc  bool
}

func (o OrderField) String() string {
	if o.Desc {
		return "-" + o.Field
	}
	return o.Field
}

// ListQuery narrows and orders a list of blogs or research items.
type ListQuery struct {
	Role     Role
	Status   *Status
	AuthorID *int64

	// Search is split on whitespace; every term must match at least one of
	// the kind's search fields.
	Search   string
	Ordering []OrderField

	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
	PublishedAfter  *time.Time
	PublishedBefore *time.Time

	Limit  int
	Offset int
}

// SearchTerms returns the whitespace-separated search terms.
func (q ListQuery) SearchTerms() []string {
	return strings.Fields(q.Search)
}

// ImageQuery pages through an image table.
type ImageQuery struct {
	Limit  int
	Offset int
}

var (
	blogOrderingFields     = []string{FieldPublishedAt, FieldCreatedAt}
	researchOrderingFields = []string{FieldCreatedAt, FieldUpdatedAt}

	blogDefaultOrdering = []OrderField{
		{Field: FieldPublishedAt, Desc: true},
		{Field: FieldCreatedAt, Desc: true},
	}
	researchDefaultOrdering = []OrderField{
		{Field: FieldCreatedAt, Desc: true},
	}

	// BlogSearchFields are the columns matched by a blog search.
	BlogSearchFields = []string{"title", "summary", "slug"}
	// ResearchSearchFields are the columns matched by a research search.
	ResearchSearchFields = []string{"title", "description", "slug"}
)

// OrderingFields returns the allow-listed ordering columns for kind.
func OrderingFields(kind Kind) []string {
	switch kind {
	case KindBlog:
		return append([]string(nil), blogOrderingFields...)
	case KindResearch:
		return append([]string(nil), researchOrderingFields...)
	}
	return nil
}

// DefaultOrdering returns kind's ordering when the caller chose none.
func DefaultOrdering(kind Kind) []OrderField {
	switch kind {
	case KindBlog:
		return append([]OrderField(nil), blogDefaultOrdering...)
	case KindResearch:
		return append([]OrderField(nil), researchDefaultOrdering...)
	}
	return nil
}

// ParseOrdering parses a comma-separated ordering parameter such as
// "-published_at,created_at". Fields outside kind's allow-list are rejected.
func ParseOrdering(kind Kind, raw string) ([]OrderField, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	allowed := OrderingFields(kind)

	var out []OrderField
	for _, term := range strings.Split(raw, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		of := OrderField{Field: strings.TrimPrefix(term, "-"), Desc: strings.HasPrefix(term, "-")}
		if !slices.Contains(allowed, of.Field) {
			return nil, NewValidationError("ordering", fmt.Sprintf(
				"Cannot order by %q. Allowed fields: %s.", of.Field, strings.Join(allowed, ", ")))
		}
		out = append(out, of)
	}
	return out, nil
}

// Resolve applies role narrowing and default ordering. Callers below the
// staff role only ever see published items, whatever status they ask for.
func (q ListQuery) Resolve(kind Kind) (ListQuery, bool) {
	if !q.Role.IsStaff() {
		if q.Status != nil && *q.Status != StatusPublished {
			return q, false
		}
		published := StatusPublished
		q.Status = &published
	}
	if len(q.Ordering) == 0 {
		q.Ordering = DefaultOrdering(kind)
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q, true
}

// Visible reports whether role may see an item in status.
func Visible(role Role, status Status) bool {
	return role.IsStaff() || status == StatusPublished
}

// CanWrite returns ErrPermissionDenied unless role may create, change or
// delete content.
func CanWrite(role Role) error {
	if !role.IsStaff() {
		return ErrPermissionDenied
	}
	return nil
}

package cms

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-slug"
)

// SlugExistsFunc reports whether candidate is already taken by another
// entity of the same kind.
type SlugExistsFunc func(ctx context.Context, candidate string) (bool, error)

// NormalizeSlug turns a title into a URL-safe base token: lowercase ASCII
// letters and digits separated by single hyphens, at most MaxSlugBaseLength
// characters long.
func NormalizeSlug(title string) string {
	normalized, err := slug.Normalize(title)
	if err != nil || normalized == "" {
		normalized = title
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(normalized) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	base := b.String()
	if len(base) > MaxSlugBaseLength {
		base = strings.TrimRight(base[:MaxSlugBaseLength], "-")
	}
	return base
}

// AssignSlug returns current when it is already set. Otherwise it derives a
// base from title and appends -2, -3, ... until exists reports the candidate
// free.
func AssignSlug(ctx context.Context, title string, exists SlugExistsFunc, current string) (string, error) {
	if current != "" {
		return current, nil
	}

	base := NormalizeSlug(title)
	if base == "" {
		base = "untitled"
	}

	candidate := base
	for i := 1; ; {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		i++
		candidate = fmt.Sprintf("%s-%d", base, i)
		if len(candidate) > MaxSlugLength {
			return "", fmt.Errorf("slug %q exceeds %d characters", candidate, MaxSlugLength)
		}
	}
}

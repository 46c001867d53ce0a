// Package urlstrategy turns stored file references into URLs for API
// responses.
package urlstrategy

import (
	"context"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

// URLStrategy defines the interface for media URL generation strategies.
//
// Every strategy returns remote references (absolute http(s) URLs) unchanged
// and an empty string for an empty reference.
type URLStrategy interface {
	// FileURL returns the public URL for ref
	FileURL(ctx context.Context, ref cms.FileRef) (string, error)
}

// Nullable resolves ref and returns nil when no file is attached, matching
// the JSON null the API emits for missing files.
func Nullable(ctx context.Context, s URLStrategy, ref cms.FileRef) (*string, error) {
	if ref.IsZero() {
		return nil, nil
	}
	u, err := s.FileURL(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

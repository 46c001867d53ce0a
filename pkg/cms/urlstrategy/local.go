package urlstrategy

import (
	"context"
	"strings"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

// LocalStrategy prefixes local object keys with the media URL the server
// mounts its filesystem store on.
type LocalStrategy struct {
	MediaURL string // e.g., "/media/" or "https://api.example.com/media/"
}

// NewLocalStrategy creates a new local URL strategy
func NewLocalStrategy(mediaURL string) *LocalStrategy {
	if mediaURL == "" {
		mediaURL = "/media/"
	}
	if !strings.HasSuffix(mediaURL, "/") {
		mediaURL += "/"
	}
	return &LocalStrategy{MediaURL: mediaURL}
}

func (s *LocalStrategy) FileURL(ctx context.Context, ref cms.FileRef) (string, error) {
	if ref.IsZero() {
		return "", nil
	}
	if ref.IsRemote() {
		return string(ref), nil
	}
	return s.MediaURL + strings.TrimPrefix(string(ref), "/"), nil
}

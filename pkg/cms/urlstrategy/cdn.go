package urlstrategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

// CDNStrategy generates URLs that point directly to a CDN fronting the
// media store.
type CDNStrategy struct {
	CDNBaseURL string // e.g., "https://cdn.example.com"
}

// NewCDNStrategy creates a new CDN URL strategy
func NewCDNStrategy(cdnBaseURL string) *CDNStrategy {
	return &CDNStrategy{CDNBaseURL: strings.TrimSuffix(cdnBaseURL, "/")}
}

func (s *CDNStrategy) FileURL(ctx context.Context, ref cms.FileRef) (string, error) {
	if ref.IsZero() {
		return "", nil
	}
	if ref.IsRemote() {
		return string(ref), nil
	}
	if s.CDNBaseURL == "" {
		return "", fmt.Errorf("CDN base URL not configured")
	}
	return fmt.Sprintf("%s/%s", s.CDNBaseURL, strings.TrimPrefix(string(ref), "/")), nil
}

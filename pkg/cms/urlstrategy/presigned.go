package urlstrategy

import (
	"context"
	"fmt"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

// DownloadURLer is the part of cms.BlobStore that signs short-lived links.
type DownloadURLer interface {
	GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error)
}

// PresignedStrategy renders keys as signed links, for media kept in a
// private bucket. Links expire, so responses must not be cached longer
// than the store's presign TTL.
type PresignedStrategy struct {
	Store DownloadURLer
}

func NewPresignedStrategy(store DownloadURLer) *PresignedStrategy {
	return &PresignedStrategy{Store: store}
}

func (s *PresignedStrategy) FileURL(ctx context.Context, ref cms.FileRef) (string, error) {
	if ref.IsZero() {
		return "", nil
	}
	if ref.IsRemote() {
		return string(ref), nil
	}
	if s.Store == nil {
		return "", fmt.Errorf("no blob store configured")
	}
	return s.Store.GetDownloadURL(ctx, string(ref), "")
}

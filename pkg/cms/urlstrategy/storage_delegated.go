package urlstrategy

import (
	"context"
	"fmt"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

// PublicURLer is the part of cms.BlobStore this strategy needs.
type PublicURLer interface {
	GetPublicURL(ctx context.Context, objectKey string) (string, error)
}

// StorageDelegatedStrategy delegates URL generation to the blob store that
// holds local references.
type StorageDelegatedStrategy struct {
	Store PublicURLer
}

// NewStorageDelegatedStrategy creates a new storage-delegated URL strategy
func NewStorageDelegatedStrategy(store PublicURLer) *StorageDelegatedStrategy {
	return &StorageDelegatedStrategy{Store: store}
}

func (s *StorageDelegatedStrategy) FileURL(ctx context.Context, ref cms.FileRef) (string, error) {
	if ref.IsZero() {
		return "", nil
	}
	if ref.IsRemote() {
		return string(ref), nil
	}
	if s.Store == nil {
		return "", fmt.Errorf("no blob store configured")
	}
	return s.Store.GetPublicURL(ctx, string(ref))
}

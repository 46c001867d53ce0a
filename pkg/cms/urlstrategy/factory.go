package urlstrategy

import (
	"errors"
	"fmt"
)

// Kind names a strategy as it appears in MEDIA_URL_STRATEGY.
type Kind string

const (
	KindLocal     Kind = "local"
	KindCDN       Kind = "cdn"
	KindStorage   Kind = "storage"
	KindPresigned Kind = "presigned"
)

// Config selects and parameterises a strategy. Only the fields of the
// chosen Kind are read. Store serves both storage and presigned.
type Config struct {
	Kind       Kind
	MediaURL   string
	CDNBaseURL string
	Store      PublicURLer
}

// New builds the strategy cfg.Kind names. An empty Kind is local.
func New(cfg Config) (URLStrategy, error) {
	switch cfg.Kind {
	case KindLocal, "":
		return NewLocalStrategy(cfg.MediaURL), nil
	case KindCDN:
		if cfg.CDNBaseURL == "" {
			return nil, errors.New("urlstrategy: cdn needs a base URL")
		}
		return NewCDNStrategy(cfg.CDNBaseURL), nil
	case KindStorage:
		if cfg.Store == nil {
			return nil, errors.New("urlstrategy: storage needs a blob store")
		}
		return NewStorageDelegatedStrategy(cfg.Store), nil
	case KindPresigned:
		signer, ok := cfg.Store.(DownloadURLer)
		if !ok {
			return nil, errors.New("urlstrategy: presigned needs a blob store that signs download URLs")
		}
		return NewPresignedStrategy(signer), nil
	}
	return nil, fmt.Errorf("urlstrategy: unknown kind %q", cfg.Kind)
}

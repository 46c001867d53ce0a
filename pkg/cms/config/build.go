package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/auth"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/imaging"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/objectkey"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/repo/memory"
	repopg "github.com/MohamadKamardin1/zrcp-backend/pkg/cms/repo/postgres"
	reposqlite "github.com/MohamadKamardin1/zrcp-backend/pkg/cms/repo/sqlite"
	fsstorage "github.com/MohamadKamardin1/zrcp-backend/pkg/cms/storage/fs"
	memorystorage "github.com/MohamadKamardin1/zrcp-backend/pkg/cms/storage/memory"
	s3storage "github.com/MohamadKamardin1/zrcp-backend/pkg/cms/storage/s3"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/urlstrategy"
)

// developmentSecret signs tokens when no JWT_SECRET is set in development.
const developmentSecret = "zrcp-development-secret"

// BuildRepository opens the repository selected by DatabaseURL. The returned
// function releases its connections.
func (c *ServerConfig) BuildRepository(ctx context.Context) (cms.Repository, func() error, error) {
	dbType, err := c.DatabaseType()
	if err != nil {
		return nil, nil, err
	}

	switch dbType {
	case DatabasePostgres:
		pool, err := repopg.NewPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return repopg.NewWithPool(pool), func() error { pool.Close(); return nil }, nil
	case DatabaseSQLite:
		repo, err := reposqlite.Open(c.sqlitePath())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return repo, repo.Close, nil
	default:
		return memory.New(), func() error { return nil }, nil
	}
}

// BuildBlobStore creates a blob store by backend name: "memory", "fs" or "s3".
func (c *ServerConfig) BuildBlobStore(ctx context.Context, name string) (cms.BlobStore, error) {
	switch name {
	case "memory":
		return memorystorage.New("https://memory.invalid"), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir:   c.Media.Root,
			URLPrefix: c.Media.URL,
		})

	case "s3":
		return s3storage.New(ctx, c.s3Config())

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", name)
	}
}

func (c *ServerConfig) s3Config() s3storage.Config {
	return s3storage.Config{
		Region:               c.S3.Region,
		Bucket:               c.S3.Bucket,
		AccessKeyID:          c.S3.AccessKeyID,
		SecretAccessKey:      c.S3.SecretAccessKey,
		Endpoint:             c.S3.Endpoint,
		UsePathStyle:         c.S3.UsePathStyle,
		PresignTTL:           c.S3.PresignTTL,
		PublicBaseURL:        c.S3.PublicBaseURL,
		EnsureBucket:         c.S3.CreateBucket,
		ServerSideEncryption: c.S3.SSE,
		KMSKeyID:             c.S3.SSEKMSKeyID,
		CacheControl:         c.S3.CacheControl,
	}
}

// UploadsAreRemote reports whether uploads are stored as absolute URLs
// rather than local keys. Presigned media keeps keys so every response can
// sign a fresh link.
func (c *ServerConfig) UploadsAreRemote() bool {
	return c.Media.UploadBackend == "s3" && c.Media.URLStrategy != "presigned"
}

// BuildURLStrategy creates the strategy that renders stored references.
// store is consulted by the "storage" strategy only.
func (c *ServerConfig) BuildURLStrategy(store cms.BlobStore) (urlstrategy.URLStrategy, error) {
	return urlstrategy.New(urlstrategy.Config{
		Kind:       urlstrategy.Kind(c.Media.URLStrategy),
		MediaURL:   c.Media.URL,
		CDNBaseURL: c.Media.CDNBaseURL,
		Store:      store,
	})
}

// BuildService creates the content service on top of repo and the upload
// store.
func (c *ServerConfig) BuildService(repo cms.Repository, uploads cms.BlobStore, logger *slog.Logger) (cms.Service, error) {
	keys, err := objectkey.New(c.Media.KeyLayout)
	if err != nil {
		return nil, err
	}

	options := []cms.Option{
		cms.WithRepository(repo),
		cms.WithUploadStore(c.Media.UploadBackend, uploads, c.UploadsAreRemote()),
		cms.WithKeyGenerator(keys),
		cms.WithLogger(logger),
		cms.WithStrictBlocks(c.Content.StrictBlocks),
		cms.WithImageOptions(imaging.Options{
			MaxWidth: c.Content.ImageMaxWidth,
			MaxBytes: c.Content.MaxUploadBytes,
		}),
	}
	if c.Content.EnableEventLogging {
		options = append(options, cms.WithEventSink(cms.NewLoggingEventSink(logger)))
	}

	return cms.New(options...)
}

// BuildAuthService creates the token service. Development servers without a
// JWT_SECRET fall back to a fixed secret.
func (c *ServerConfig) BuildAuthService(users cms.UserRepository, logger *slog.Logger) (*auth.Service, error) {
	secret := c.JWT.Secret
	if secret == "" && c.IsDevelopment() {
		logger.Warn("JWT_SECRET is not set, using the development secret")
		secret = developmentSecret
	}
	return auth.New(users, secret,
		auth.WithTTL(c.JWT.AccessTTL, c.JWT.RefreshTTL),
		auth.WithLogger(logger),
	)
}

// Package mediamigrate copies locally stored media files to a remote blob
// store and rewrites the stored references to the remote URLs.
//
// The batch is best-effort: a failing item is logged and recorded, and the
// run continues with the next one. References that already point at a remote
// host are skipped, so the batch can be re-run safely.
package mediamigrate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

const defaultBatchSize = 100

// Migrator moves file references from a source store to a target store.
type Migrator struct {
	repo   cms.MediaRepository
	source cms.BlobStore
	target cms.BlobStore
	logger *slog.Logger
}

// New creates a Migrator. source holds the local files named by the stored
// references; target is the remote store receiving them.
func New(repo cms.MediaRepository, source, target cms.BlobStore, logger *slog.Logger) (*Migrator, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if source == nil || target == nil {
		return nil, fmt.Errorf("source and target blob stores are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{repo: repo, source: source, target: target, logger: logger}, nil
}

// Options configures a migration run.
type Options struct {
	// Fields lists the columns to migrate (default: cms.AllMediaFields)
	Fields []cms.MediaField

	// BatchSize controls how many references are read at once (default: 100)
	BatchSize int

	// DryRun reports what would be migrated without touching either store
	DryRun bool

	// Verify re-reads the uploaded object and compares sizes before the
	// reference is rewritten
	Verify bool

	// OnProgress is called after each batch (optional)
	OnProgress func(field cms.MediaField, processed int64)
}

// FailedItem records one reference that could not be migrated.
type FailedItem struct {
	Field cms.MediaField
	ID    int64
	Ref   cms.FileRef
	Err   error
}

// Result contains statistics about a migration run. In a dry run
// TotalMigrated counts the items that would have been migrated.
type Result struct {
	TotalFound    int64
	TotalMigrated int64
	TotalSkipped  int64
	TotalFailed   int64
	Failed        []FailedItem
}

// RemoteKey returns the target object key for a local reference.
func RemoteKey(field cms.MediaField, ref cms.FileRef) string {
	return field.Model() + "/" + strings.TrimPrefix(string(ref), "/")
}

// Run migrates every local reference in the selected fields. It stops early
// only when ctx is cancelled or a batch cannot be listed.
func (m *Migrator) Run(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{}

	fields := opts.Fields
	if len(fields) == 0 {
		fields = cms.AllMediaFields
	}
	for _, f := range fields {
		if !f.Valid() {
			return result, fmt.Errorf("unknown media field %q", f)
		}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	for _, field := range fields {
		m.logger.InfoContext(ctx, "migrating media field", "field", field, "dry_run", opts.DryRun)
		if err := m.runField(ctx, field, opts, result); err != nil {
			return result, err
		}
	}

	m.logger.InfoContext(ctx, "media migration finished",
		"found", result.TotalFound,
		"migrated", result.TotalMigrated,
		"skipped", result.TotalSkipped,
		"failed", result.TotalFailed)
	return result, nil
}

func (m *Migrator) runField(ctx context.Context, field cms.MediaField, opts Options, result *Result) error {
	var afterID int64
	var processed int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		refs, err := m.repo.ListMediaRefs(ctx, field, afterID, opts.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", field, err)
		}
		if len(refs) == 0 {
			return nil
		}

		result.TotalFound += int64(len(refs))
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return err
			}
			afterID = ref.ID
			processed++

			if ref.Ref.IsRemote() {
				result.TotalSkipped++
				continue
			}

			if opts.DryRun {
				m.logger.InfoContext(ctx, "would migrate", "field", field, "id", ref.ID,
					"ref", ref.Ref, "key", RemoteKey(field, ref.Ref))
				result.TotalMigrated++
				continue
			}

			url, err := m.migrate(ctx, ref, opts.Verify)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to migrate media",
					"field", field, "id", ref.ID, "ref", ref.Ref, "err", err)
				result.TotalFailed++
				result.Failed = append(result.Failed, FailedItem{Field: field, ID: ref.ID, Ref: ref.Ref, Err: err})
				continue
			}

			m.logger.InfoContext(ctx, "migrated", "field", field, "id", ref.ID, "ref", ref.Ref, "url", url)
			result.TotalMigrated++
		}

		if opts.OnProgress != nil {
			opts.OnProgress(field, processed)
		}

		if len(refs) < opts.BatchSize {
			return nil
		}
	}
}

func (m *Migrator) migrate(ctx context.Context, ref cms.MediaRef, verify bool) (string, error) {
	key := string(ref.Ref)
	meta, err := m.source.GetObjectMeta(ctx, key)
	if err != nil {
		return "", &cms.StorageError{Backend: "source", Key: key, Op: "meta", Err: err}
	}

	rc, err := m.source.Download(ctx, key)
	if err != nil {
		return "", &cms.StorageError{Backend: "source", Key: key, Op: "download", Err: err}
	}
	defer rc.Close()

	target := RemoteKey(ref.Field, ref.Ref)
	params := cms.UploadParams{ObjectKey: target, MimeType: meta.ContentType}
	if err := m.target.UploadWithParams(ctx, rc, params); err != nil {
		return "", &cms.StorageError{Backend: "target", Key: target, Op: "upload", Err: err}
	}

	if verify {
		got, err := m.target.GetObjectMeta(ctx, target)
		if err != nil {
			return "", &cms.StorageError{Backend: "target", Key: target, Op: "verify", Err: err}
		}
		if got.Size != meta.Size {
			return "", &cms.StorageError{Backend: "target", Key: target, Op: "verify",
				Err: fmt.Errorf("size mismatch: uploaded %d bytes, source has %d", got.Size, meta.Size)}
		}
	}

	url, err := m.target.GetPublicURL(ctx, target)
	if err != nil {
		return "", &cms.StorageError{Backend: "target", Key: target, Op: "public_url", Err: err}
	}
	if err := m.repo.SetMediaRef(ctx, ref.Field, ref.ID, cms.FileRef(url)); err != nil {
		return "", fmt.Errorf("update %s %d: %w", ref.Field, ref.ID, err)
	}
	return url, nil
}

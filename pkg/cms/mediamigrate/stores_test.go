package mediamigrate_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/mediamigrate"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/repo/sqlite"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/storage/fs"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/storage/memory"
)

// TestRun_SQLiteAndFilesystem moves files from a media directory into an
// object store with references kept in a real database.
func TestRun_SQLiteAndFilesystem(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "cms.db"))
	require.NoError(t, err)
	defer repo.Close()

	mediaRoot := t.TempDir()
	source, err := fs.New(fs.Config{BaseDir: mediaRoot, URLPrefix: "/media/"})
	require.NoError(t, err)
	target := memory.New("https://blob.example.com")

	require.NoError(t, os.MkdirAll(filepath.Join(mediaRoot, "pdfs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(mediaRoot, "pdfs", "paper.pdf"), []byte("%PDF-1.4"), 0o644))

	paper := &cms.Research{Title: "Paper", Slug: "paper", Status: cms.StatusPublished, File: "pdfs/paper.pdf", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.CreateResearch(ctx, paper))
	missing := &cms.Research{Title: "Lost", Slug: "lost", Status: cms.StatusDraft, File: "pdfs/lost.pdf", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.CreateResearch(ctx, missing))

	migrator, err := mediamigrate.New(repo, source, target, discardLogger())
	require.NoError(t, err)

	result, err := migrator.Run(ctx, mediamigrate.Options{Fields: []cms.MediaField{cms.MediaFieldResearchFile}, Verify: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalFound)
	assert.Equal(t, int64(1), result.TotalMigrated)
	assert.Equal(t, int64(1), result.TotalFailed)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, missing.ID, result.Failed[0].ID)

	got, err := repo.GetResearch(ctx, paper.ID)
	require.NoError(t, err)
	assert.Equal(t, cms.FileRef("https://blob.example.com/research/pdfs/paper.pdf"), got.File)

	rc, err := target.Download(ctx, "research/pdfs/paper.pdf")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	again, err := migrator.Run(ctx, mediamigrate.Options{Fields: []cms.MediaField{cms.MediaFieldResearchFile}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.TotalSkipped)
	assert.Equal(t, int64(0), again.TotalMigrated)
}

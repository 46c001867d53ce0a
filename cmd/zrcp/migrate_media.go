package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/mediamigrate"
)

func newMigrateMediaCmd(c *cli) *cobra.Command {
	var (
		fields    []string
		source    string
		target    string
		batchSize int
		dryRun    bool
		verify    bool
	)

	cmd := &cobra.Command{
		Use:   "migrate-media",
		Short: "Copy locally stored media to object storage and rewrite references",
		Long: `Copies every file referenced by an image asset, content image or
research item from the source store to the target store and replaces the
stored reference with the target's public URL.

References that are already absolute URLs are skipped, so the command can
be re-run after a partial failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := c.logger

			repo, closeRepo, err := c.cfg.BuildRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			src, err := c.cfg.BuildBlobStore(ctx, source)
			if err != nil {
				return fmt.Errorf("failed to build source store: %w", err)
			}
			dst, err := c.cfg.BuildBlobStore(ctx, target)
			if err != nil {
				return fmt.Errorf("failed to build target store: %w", err)
			}

			migrator, err := mediamigrate.New(repo, src, dst, logger)
			if err != nil {
				return err
			}

			opts := mediamigrate.Options{
				BatchSize: batchSize,
				DryRun:    dryRun,
				Verify:    verify,
				OnProgress: func(field cms.MediaField, processed int64) {
					logger.Info("Migration progress", "field", field, "processed", processed)
				},
			}
			for _, f := range fields {
				opts.Fields = append(opts.Fields, cms.MediaField(f))
			}

			result, err := migrator.Run(ctx, opts)
			if result != nil {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "found: %d migrated: %d skipped: %d failed: %d\n",
					result.TotalFound, result.TotalMigrated, result.TotalSkipped, result.TotalFailed)
				for _, item := range result.Failed {
					fmt.Fprintf(out, "  %s #%d %s: %v\n", item.Field, item.ID, item.Ref, item.Err)
				}
			}
			if err != nil {
				return err
			}
			if result.TotalFailed > 0 {
				return fmt.Errorf("%d references failed to migrate", result.TotalFailed)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&fields, "fields", nil, "media fields to migrate (default: all)")
	cmd.Flags().StringVar(&source, "source", "fs", "store holding the local files")
	cmd.Flags().StringVar(&target, "target", "s3", "store to copy the files to")
	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "references read per batch")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be migrated without changing anything")
	cmd.Flags().BoolVar(&verify, "verify", false, "check the uploaded size before rewriting a reference")

	return cmd
}

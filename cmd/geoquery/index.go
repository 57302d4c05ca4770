package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/geoquery/internal/domain"
	logpkg "github.com/kailas-cloud/geoquery/internal/logger"
	"github.com/kailas-cloud/geoquery/internal/repository/evidence"
	"github.com/kailas-cloud/geoquery/internal/transport/wiki"
	"github.com/kailas-cloud/geoquery/internal/usecase/indexing"
)

func newIndexCmd(flags *rootFlags) *cobra.Command {
	var (
		input  string
		outDir string
		format string
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the evidence store from scraped wiki pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			if input == "" {
				input = a.cfg.Indexing.RawPath
			}
			if outDir == "" {
				outDir = a.cfg.Evidence.Dir
			}
			if format == "" {
				format = a.cfg.Evidence.Format
			}
			f := evidence.Format(format)
			if f != evidence.FormatJSONL && f != evidence.FormatParquet {
				return fmt.Errorf("--format must be jsonl or parquet, got %q", format)
			}

			pages, err := wiki.ReadJSONL(input)
			if err != nil {
				return fmt.Errorf("read raw pages: %w", err)
			}
			docs := make([]indexing.Document, len(pages))
			for i, p := range pages {
				docs[i] = indexing.Document{URL: p.URL, Title: p.Title, Text: p.Text}
			}

			writer := indexing.WriterFunc(func(_ context.Context, fp domain.EmbeddingFingerprint, s []domain.Snippet) error {
				_, err := evidence.Save(outDir, fp, f, s)
				return err
			})
			ctx := logpkg.ContextWithLogger(cmd.Context(), a.logger)
			a.connectCache(ctx)
			svc := indexing.New(a.indexEmbedder(a.baseEmbedder()), writer, indexing.Config{
				ChunkSize:    a.cfg.Indexing.ChunkSize,
				ChunkOverlap: a.cfg.Indexing.ChunkOverlap,
				MinChunk:     a.cfg.Indexing.MinChunk,
				BatchSize:    a.cfg.Indexing.BatchSize,
			})

			stats, err := svc.Build(ctx, docs)
			if err != nil {
				return err
			}
			a.logger.Info("Evidence store written",
				zap.String("dir", outDir),
				zap.String("format", format),
				zap.Int("documents", stats.Documents),
				zap.Int("snippets", stats.Chunks),
				zap.Int("tagged", stats.Tagged),
				zap.String("embedding", stats.Fingerprint.String()),
				zap.Int("tokens", stats.Tokens),
				zap.Duration("elapsed", stats.Elapsed),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "raw pages JSONL (default indexing.raw_path)")
	cmd.Flags().StringVar(&outDir, "out", "", "evidence store directory (default evidence.dir)")
	cmd.Flags().StringVar(&format, "format", "", "snippet encoding: jsonl or parquet (default evidence.format)")
	return cmd
}

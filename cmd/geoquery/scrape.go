package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/geoquery/internal/transport/wiki"
	"github.com/kailas-cloud/geoquery/internal/version"
)

func newScrapeCmd(flags *rootFlags) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "scrape [url...]",
		Short: "Fetch OSM wiki tag pages into a raw JSONL file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			urls := args
			if len(urls) == 0 {
				urls = a.cfg.Indexing.SeedURLs
			}
			if len(urls) == 0 {
				urls = wiki.DefaultSeedURLs
			}
			if out == "" {
				out = a.cfg.Indexing.RawPath
			}

			s := wiki.New(wiki.Config{
				UserAgent: version.UserAgent() + " (wiki indexer)",
				Timeout:   30 * time.Second,
				Delay:     time.Duration(a.cfg.Indexing.DelayMs) * time.Millisecond,
				Logger:    a.logger,
			})
			pages, err := s.Scrape(cmd.Context(), urls)
			if err != nil {
				return fmt.Errorf("scrape: %w", err)
			}
			if err := wiki.WriteJSONL(out, pages); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			a.logger.Info("Saved wiki pages",
				zap.String("path", out), zap.Int("pages", len(pages)), zap.Int("requested", len(urls)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output JSONL path (default indexing.raw_path)")
	return cmd
}

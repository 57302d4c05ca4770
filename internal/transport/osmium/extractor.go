// Package osmium clips a bounding box out of a large OSM file with the
// osmium command-line tool.
package osmium

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

// Config holds extractor settings.
type Config struct {
	Binary  string // path or name on $PATH
	Source  string // planet or regional .osm.pbf
	Timeout time.Duration
	Logger  *zap.Logger
}

// Extractor runs "osmium extract". Each call writes only to its own dst.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an extractor.
func New(cfg Config) *Extractor {
	if cfg.Binary == "" {
		cfg.Binary = "osmium"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Extract writes the part of the source inside bbox to dst. Every failure,
// including a timeout, wraps domain.ErrExtractionFailed.
func (e *Extractor) Extract(ctx context.Context, bbox domain.BoundingBox, dst string) error {
	if err := bbox.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrExtractionFailed, err)
	}
	if _, err := os.Stat(e.cfg.Source); err != nil {
		return fmt.Errorf("%w: source %s: %w", domain.ErrExtractionFailed, e.cfg.Source, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("%w: create output dir: %w", domain.ErrExtractionFailed, err)
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	args := []string{"extract", "--bbox", bbox.String(), e.cfg.Source, "-o", dst, "-O", "--set-bounds"}
	cmd := exec.CommandContext(ctx, e.cfg.Binary, args...) //nolint:gosec // binary and source come from config
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s after %s: %w", domain.ErrExtractionFailed, e.cfg.Binary, time.Since(start).Round(time.Millisecond), ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: %s exited with code %d: %s",
				domain.ErrExtractionFailed, e.cfg.Binary, exitErr.ExitCode(), tail(stderr.String()))
		}
		return fmt.Errorf("%w: run %s: %w", domain.ErrExtractionFailed, e.cfg.Binary, err)
	}

	info, err := os.Stat(dst)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %s finished but produced no output at %s", domain.ErrExtractionFailed, e.cfg.Binary, dst)
	}

	e.logger.Debug("osmium extract completed",
		zap.Stringer("bbox", bbox),
		zap.String("dst", dst),
		zap.Int64("bytes", info.Size()),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("stderr", tail(stderr.String())),
	)
	return nil
}

// tail keeps the end of tool output for error messages.
func tail(s string) string {
	s = strings.TrimSpace(s)
	const limit = 512
	if len(s) > limit {
		return "..." + s[len(s)-limit:]
	}
	return s
}

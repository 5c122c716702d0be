// Package evidence captures screenshots of the page a scenario ended on.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uicheck/internal/config"
)

// Shooter produces an image of the current page.
type Shooter interface {
	Screenshot(ctx context.Context, fullPage bool, quality int) ([]byte, error)
}

// Artifact is one written screenshot.
type Artifact struct {
	Scenario   string    `json:"scenario"`
	Path       string    `json:"path"`
	CapturedAt time.Time `json:"captured_at"`
	Size       int       `json:"size"`
}

// EvidenceCaptureError reports a failed capture. It never changes a scenario's outcome.
type EvidenceCaptureError struct {
	Scenario string
	Err      error
}

func (e *EvidenceCaptureError) Error() string {
	return fmt.Sprintf("evidence capture for %q failed: %v", e.Scenario, e.Err)
}

func (e *EvidenceCaptureError) Unwrap() error { return e.Err }

// seq is shared by every Collector in the process so names stay distinct even
// when two collectors write to the same directory in the same millisecond.
var seq atomic.Uint64

// Collector writes screenshots under a single directory.
type Collector struct {
	dir      string
	fullPage bool
	quality  int
	logger   *zap.Logger
	now      func() time.Time
}

// NewCollector builds a collector for cfg. A leading ~ in the directory is
// expanded to the user's home. The directory is created on first capture.
func NewCollector(cfg config.EvidenceConfig, logger *zap.Logger) (*Collector, error) {
	dir, err := homedir.Expand(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("expanding evidence dir %q: %w", cfg.Dir, err)
	}
	return &Collector{
		dir:      filepath.Clean(dir),
		fullPage: cfg.FullPage,
		quality:  cfg.Quality,
		logger:   logger.Named("evidence"),
		now:      time.Now,
	}, nil
}

// Dir returns the resolved evidence directory.
func (c *Collector) Dir() string { return c.dir }

// Capture takes a screenshot and writes it to a new, uniquely named file.
// Any failure is returned as an *EvidenceCaptureError.
func (c *Collector) Capture(ctx context.Context, shooter Shooter, scenario string) (Artifact, error) {
	fail := func(err error) (Artifact, error) {
		return Artifact{}, &EvidenceCaptureError{Scenario: scenario, Err: err}
	}

	img, err := shooter.Screenshot(ctx, c.fullPage, c.quality)
	if err != nil {
		return fail(err)
	}
	if len(img) == 0 {
		return fail(errors.New("screenshot is empty"))
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fail(fmt.Errorf("creating evidence dir: %w", err))
	}

	capturedAt := c.now()
	name := fileName(capturedAt, seq.Add(1), scenario, extensionFor(img))
	path := filepath.Join(c.dir, name)

	// O_EXCL makes an accidental name collision an error instead of an overwrite.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fail(fmt.Errorf("creating evidence file: %w", err))
	}
	if _, err := f.Write(img); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fail(fmt.Errorf("writing evidence file: %w", err))
	}
	if err := f.Close(); err != nil {
		return fail(fmt.Errorf("closing evidence file: %w", err))
	}

	c.logger.Debug("Captured evidence.", zap.String("scenario", scenario), zap.String("path", path), zap.Int("bytes", len(img)))
	return Artifact{Scenario: scenario, Path: path, CapturedAt: capturedAt, Size: len(img)}, nil
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	out := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(out) > 60 {
		out = strings.TrimRight(out[:60], "-")
	}
	if out == "" {
		return "scenario"
	}
	return out
}

func fileName(at time.Time, n uint64, scenario, ext string) string {
	return fmt.Sprintf("%d-%06d-%s%s", at.UnixMilli(), n, slug(scenario), ext)
}

func extensionFor(img []byte) string {
	if http.DetectContentType(img) == "image/jpeg" {
		return ".jpg"
	}
	return ".png"
}

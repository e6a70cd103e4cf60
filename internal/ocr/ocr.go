package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfscan/nfscan/constants"
	"github.com/nfscan/nfscan/internal/common"
)

// MinTranscriptChars is the threshold below which a first recognition pass is
// considered suspiciously short and retried with the multilingual fallback.
const MinTranscriptChars = 50

type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Magick    string // binary name or absolute path; if empty -> "magick"

	Language     string // primary recognition language, default "por"
	FallbackLang string // appended on short-transcript retry, default "eng"
	DPI          int    // rasterization DPI for PDFs, default 300
	MaxPages     int    // 0 = no limit

	// Preprocess enables mild sharpening and contrast boost before
	// recognition. Tuned for faded thermal-printer receipts.
	Preprocess bool
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Magick == "" {
		cfg.Magick = "magick"
	}
	if cfg.Language == "" {
		cfg.Language = "por"
	}
	if cfg.FallbackLang == "" {
		cfg.FallbackLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner. Tests use this to stub out the
// external binaries.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// Extract converts raw document bytes into a plain-text transcript, picking a
// strategy from the filename extension.
func (e *Extractor) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	ext := constants.NormalizeExt(filepath.Ext(filename))
	format := constants.MapExtToFormat(ext)
	if format == "" {
		e.logger.Error("unsupported document extension", "filename", filename, "ext", ext)
		return "", fmt.Errorf("%w: %q", common.ErrUnsupportedFormat, ext)
	}
	e.logger.Debug("starting text extraction", "filename", filename, "format", format, "bytes", len(data))

	tmpDir, err := os.MkdirTemp("", "nfscan-ocr-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if rerr := os.RemoveAll(tmpDir); rerr != nil {
			e.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", rerr)
		}
	}()

	src := filepath.Join(tmpDir, "doc."+ext)
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return "", err
	}

	var text string
	switch format {
	case constants.PDF:
		text, err = e.extractPDF(ctx, tmpDir, src)
	case constants.IMAGE:
		text, err = e.recognizePage(ctx, src)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

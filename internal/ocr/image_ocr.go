package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfscan/nfscan/internal/common"
)

// recognizePage runs a single tesseract pass over one image, with optional
// preprocessing, a short-transcript multilingual retry, and a bare default
// invocation as the last resort. Degraded recognition beats total failure
// here: the downstream parser tolerates noisy text.
func (e *Extractor) recognizePage(ctx context.Context, path string) (string, error) {
	input := path
	if e.cfg.Preprocess {
		if out, err := e.preprocess(ctx, path); err == nil {
			input = out
		} else {
			e.logger.Warn("preprocess failed; using original image", "path", path, "error", err)
		}
	}

	txt, err := e.tesseract(ctx, input, e.cfg.Language)
	if err != nil {
		// Default, unconfigured invocation before giving up.
		e.logger.Warn("configured recognition failed; retrying with defaults", "path", path, "error", err)
		out, errb, derr := e.runner.Run(ctx, e.cfg.Tesseract, input, "stdout")
		if derr != nil {
			e.logger.Error("default recognition failed", "path", path, "stderr", truncate(string(errb), 8<<10))
			return "", fmt.Errorf("%w: %v", common.ErrExtraction, derr)
		}
		return string(out), nil
	}

	// Numerals and symbols are sometimes mis-tagged under a single language
	// model; a suspiciously short transcript gets one multilingual retry.
	if len(strings.TrimSpace(txt)) < MinTranscriptChars && !strings.Contains(e.cfg.Language, "+") {
		lang := e.cfg.Language + "+" + e.cfg.FallbackLang
		e.logger.Debug("short transcript; retrying multilingual", "chars", len(strings.TrimSpace(txt)), "lang", lang)
		if retry, rerr := e.tesseract(ctx, input, lang); rerr == nil {
			if len(strings.TrimSpace(retry)) > len(strings.TrimSpace(txt)) {
				txt = retry
			}
		}
	}
	return txt, nil
}

func (e *Extractor) tesseract(ctx context.Context, path, lang string) (string, error) {
	// --psm 6: single uniform block of text. Full layout analysis performs
	// worse on narrow receipt formats.
	args := []string{path, "stdout", "-l", lang, "--psm", "6"}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}
	return string(out), nil
}

// preprocess applies mild sharpening and a mild contrast boost. Both are
// reversible-scale tweaks for faded thermal prints, not general cleanup.
func (e *Extractor) preprocess(ctx context.Context, path string) (string, error) {
	out := filepath.Join(filepath.Dir(path), "prep-"+strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".png")
	_, errb, err := e.runner.Run(ctx, e.cfg.Magick, path, "-sharpen", "0x1", "-brightness-contrast", "0x10", out)
	if err != nil {
		return "", fmt.Errorf("magick: %w (%s)", err, truncate(string(errb), 512))
	}
	if _, serr := os.Stat(out); serr != nil {
		return "", fmt.Errorf("preprocess produced no output: %v", serr)
	}
	return out, nil
}

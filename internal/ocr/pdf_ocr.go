package ocr

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// extractPDF rasterizes each page and recognizes them independently.
// Page transcripts are joined with a single blank line.
func (e *Extractor) extractPDF(ctx context.Context, tmpDir, path string) (string, error) {
	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		e.logger.Error("pdf rasterization failed", "path", path, "stderr", truncate(string(errb), 8<<10))
		return "", fmt.Errorf("rasterize pdf: %w", err)
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no pages rendered from %s", filepath.Base(path))
	}

	texts := make([]string, 0, len(matches))
	for _, img := range matches {
		txt, err := e.recognizePage(ctx, img)
		if err != nil {
			return "", fmt.Errorf("page %s: %w", filepath.Base(img), err)
		}
		texts = append(texts, strings.TrimSpace(txt))
	}
	e.logger.Debug("pdf recognized", "pages", len(matches))
	return strings.Join(texts, "\n\n"), nil
}

package constants

import "strings"

// Document formats handled by the text extractor.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// imageExtensions holds the raster formats we OCR directly.
var imageExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"tiff": {},
	"bmp":  {},
	"webp": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a (possibly dotted) extension to PDF or IMAGE.
// Returns "" for unsupported extensions.
func MapExtToFormat(ext string) string {
	e := NormalizeExt(ext)
	if e == "pdf" {
		return PDF
	}
	if _, ok := imageExtensions[e]; ok {
		return IMAGE
	}
	return ""
}

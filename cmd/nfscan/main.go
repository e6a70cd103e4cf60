package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nfscan/nfscan/internal/cache"
	"github.com/nfscan/nfscan/internal/common"
	"github.com/nfscan/nfscan/internal/llm"
	"github.com/nfscan/nfscan/internal/ocr"
	"github.com/nfscan/nfscan/internal/pipeline"
	"github.com/nfscan/nfscan/internal/repository"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	repo, err := repository.NewInvoiceRepository(repository.Config{
		BaseURL: cfg.Store.BaseURL,
		APIKey:  cfg.Store.APIKey,
		Table:   cfg.Store.Table,
		Timeout: cfg.Store.Timeout,
	}, logger)
	if err != nil {
		logger.Error("record store setup failed", "error", err)
		os.Exit(1)
	}

	docs, err := cache.Open(cfg.Pipeline.CacheDir)
	if err != nil {
		logger.Error("document cache setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := docs.Close(); cerr != nil {
			logger.Error("closing document cache failed", "error", cerr)
		}
	}()

	// Provider resolution waits until a command actually sends a prompt, so
	// upload/ocr/list/result/export work without an LLM credential.
	gateway := llm.NewLazyGateway(cfg.LLM, logger)

	extractor := ocr.NewExtractor(ocr.Config{
		Tesseract:  cfg.OCR.Tesseract,
		Pdftoppm:   cfg.OCR.Pdftoppm,
		Magick:     cfg.OCR.Magick,
		Language:   cfg.OCR.Language,
		DPI:        cfg.OCR.DPI,
		MaxPages:   cfg.OCR.MaxPages,
		Preprocess: cfg.OCR.Preprocess,
	}, logger)

	orch := pipeline.NewOrchestrator(repo, docs, extractor, gateway, logger,
		pipeline.WithAutoMode(cfg.Pipeline.Mode == "auto"),
		pipeline.WithProgress(printProgress),
	)

	app := newCLIApp(orch, repo, logger)
	if err := app.Run(os.Args); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// printProgress keeps the terminal informative while a chained run blocks on
// external binaries and APIs.
func printProgress(invoiceID, stage, message string) {
	fmt.Printf("[%s] %s: %s\n", invoiceID, stage, message)
}

func logLevel() slog.Level {
	if os.Getenv("LOG_DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

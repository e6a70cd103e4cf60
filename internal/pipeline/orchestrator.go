// Package pipeline drives an invoice record through the extraction state
// machine: uploaded -> ocr_done -> llm_sent, with error as a re-runnable
// failure state.
package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nfscan/nfscan/constants"
	"github.com/nfscan/nfscan/internal/cache"
	"github.com/nfscan/nfscan/internal/common"
	"github.com/nfscan/nfscan/internal/entity"
	"github.com/nfscan/nfscan/internal/llm"
	"github.com/nfscan/nfscan/internal/parse"
	"github.com/nfscan/nfscan/internal/repository"
)

// TextExtractor is stage 1: document bytes -> transcript.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, filename string) (string, error)
}

// Gateway is stage 2: prompt -> normalized envelope.
type Gateway interface {
	Send(ctx context.Context, prompt string) (*llm.Envelope, error)
}

// ProgressFunc receives per-stage progress in automatic mode.
type ProgressFunc func(invoiceID, stage, message string)

// Orchestrator is the sole writer of invoice records. Each user-triggered
// action blocks until the external call completes or times out; there is no
// internal scheduling.
type Orchestrator struct {
	logger   *slog.Logger
	repo     repository.InvoiceRepository
	cache    cache.DocumentCache
	ocr      TextExtractor
	gateway  Gateway
	auto     bool
	progress ProgressFunc

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAutoMode chains OCR and LLM immediately after upload.
func WithAutoMode(auto bool) Option {
	return func(o *Orchestrator) { o.auto = auto }
}

// WithProgress installs a per-stage progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

func NewOrchestrator(repo repository.InvoiceRepository, docs cache.DocumentCache, ocr TextExtractor, gw Gateway, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		logger:  logger,
		repo:    repo,
		cache:   docs,
		ocr:     ocr,
		gateway: gw,
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// lock serializes transitions per invoice id: at most one in-flight
// transition per record.
func (o *Orchestrator) lock(id string) func() {
	o.mu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	o.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (o *Orchestrator) report(invoiceID, stage, message string) {
	if o.progress != nil {
		o.progress(invoiceID, stage, message)
	}
}

// Upload creates the record, persists the document for later re-runs, and in
// automatic mode chains OCR and LLM. A stage failure halts the chain and
// leaves the record in error.
func (o *Orchestrator) Upload(ctx context.Context, filename string, data []byte) (*entity.Invoice, error) {
	ext := constants.NormalizeExt(filepath.Ext(filename))
	if constants.MapExtToFormat(ext) == "" {
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedFormat, ext)
	}

	rec, err := o.repo.Create(ctx, filename)
	if err != nil {
		return nil, err
	}
	o.logger.Info("invoice registered", "invoice_id", rec.ID, "filename", filename, "bytes", len(data))
	o.report(rec.ID, "upload", "registered "+filename)

	if err := o.cache.Put(ctx, rec.ID, filename, data); err != nil {
		// The base64 copy on the record still covers re-runs.
		o.logger.Warn("document cache write failed", "invoice_id", rec.ID, "error", err)
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	if _, err := o.repo.Update(ctx, rec.ID, map[string]any{
		"image_data":      encoded,
		"image_mime_type": mimeTypeFor(ext),
		"image_filename":  filename,
	}); err != nil {
		return rec, common.WrapError(err, "persist document copy")
	}

	if !o.auto {
		return rec, nil
	}

	if rec, err = o.RunOCR(ctx, rec.ID); err != nil {
		return rec, err
	}
	return o.RunLLM(ctx, rec.ID)
}

// RunOCR drives uploaded -> ocr_done. Re-runnable from error or a completed
// state; re-running overwrites the prior transcript.
func (o *Orchestrator) RunOCR(ctx context.Context, id string) (*entity.Invoice, error) {
	defer o.lock(id)()

	filename, data, err := o.loadDocument(ctx, id)
	if err != nil {
		// No stage-failure status here: a missing document is a
		// user-actionable condition, not a pipeline error.
		return nil, err
	}

	o.report(id, "ocr", "recognizing "+filename)
	text, err := o.ocr.Extract(ctx, data, filename)
	if err != nil {
		o.logger.Error("ocr stage failed", "invoice_id", id, "error", err)
		if _, uerr := o.repo.Update(ctx, id, map[string]any{
			"status": string(constants.StatusError),
			"error":  err.Error(),
		}); uerr != nil {
			return nil, errors.Join(err, uerr)
		}
		return nil, err
	}

	rec, err := o.repo.Update(ctx, id, map[string]any{
		"status":   string(constants.StatusOCRDone),
		"ocr_text": text,
		"error":    nil,
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("ocr stage ok", "invoice_id", id, "chars", len(text))
	o.report(id, "ocr", "transcript ready")
	if rec == nil {
		return o.repo.Get(ctx, id)
	}
	return rec, nil
}

// RunLLM drives ocr_done -> llm_sent. Requires a non-empty transcript.
func (o *Orchestrator) RunLLM(ctx context.Context, id string) (*entity.Invoice, error) {
	defer o.lock(id)()

	rec, err := o.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OCRText == nil || strings.TrimSpace(*rec.OCRText) == "" {
		return nil, fmt.Errorf("invoice %s has no transcript; run OCR first", id)
	}

	o.report(id, "llm", "sending transcript")
	env, err := o.gateway.Send(ctx, llm.BuildExtractionPrompt(*rec.OCRText))
	if err != nil {
		o.logger.Error("llm stage failed", "invoice_id", id, "error", err)
		if _, uerr := o.repo.Update(ctx, id, map[string]any{
			"status": string(constants.StatusError),
			"error":  err.Error(),
		}); uerr != nil {
			return nil, errors.Join(err, uerr)
		}
		return nil, err
	}

	o.validateParsed(id, env)

	envJSON, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	rec, err = o.repo.Update(ctx, id, map[string]any{
		"status":       string(constants.StatusLLMSent),
		"llm_response": json.RawMessage(envJSON),
		"error":        nil,
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("llm stage ok", "invoice_id", id, "provider", env.Provider, "model", env.Model)
	o.report(id, "llm", "envelope persisted")
	if rec == nil {
		return o.repo.Get(ctx, id)
	}
	return rec, nil
}

// Process runs both stages in sequence, independent of the configured mode.
func (o *Orchestrator) Process(ctx context.Context, id string) (*entity.Invoice, error) {
	if _, err := o.RunOCR(ctx, id); err != nil {
		return nil, err
	}
	return o.RunLLM(ctx, id)
}

// ParsedResult recomputes structured invoice data from the stored envelope.
// Idempotent: same envelope, same result.
func (o *Orchestrator) ParsedResult(ctx context.Context, id string) (map[string]any, error) {
	rec, err := o.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(rec.LLMResponse) == 0 {
		return nil, fmt.Errorf("invoice %s has no LLM response yet", id)
	}
	return parse.Parse(rec.LLMResponse), nil
}

// List returns records newest first. Store failures degrade to an empty list
// with a logged warning: read-path availability over display correctness.
// With latestOnly, only the newest record per filename is kept.
func (o *Orchestrator) List(ctx context.Context, limit int, latestOnly bool) []*entity.Invoice {
	recs, err := o.repo.List(ctx, limit)
	if err != nil {
		o.logger.Warn("listing invoices failed; showing none", "error", err)
		return nil
	}
	if !latestOnly {
		return recs
	}
	seen := make(map[string]struct{}, len(recs))
	out := recs[:0]
	for _, rec := range recs {
		if _, dup := seen[rec.Filename]; dup {
			continue
		}
		seen[rec.Filename] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// loadDocument fetches raw bytes from the local cache, falling back to the
// base64 copy persisted on the record.
func (o *Orchestrator) loadDocument(ctx context.Context, id string) (string, []byte, error) {
	filename, data, err := o.cache.Get(ctx, id)
	if err == nil {
		return filename, data, nil
	}
	if !errors.Is(err, common.ErrDocumentNotCached) {
		return "", nil, err
	}

	rec, gerr := o.repo.Get(ctx, id)
	if gerr != nil {
		return "", nil, gerr
	}
	if rec.ImageData == nil || *rec.ImageData == "" {
		return "", nil, fmt.Errorf("%w: re-upload the document to run OCR", common.ErrDocumentNotCached)
	}
	decoded, derr := base64.StdEncoding.DecodeString(*rec.ImageData)
	if derr != nil {
		return "", nil, fmt.Errorf("decode persisted document: %w", derr)
	}
	name := rec.Filename
	if rec.ImageFilename != nil && *rec.ImageFilename != "" {
		name = *rec.ImageFilename
	}
	o.logger.Debug("document restored from record store", "invoice_id", id, "bytes", len(decoded))
	return name, decoded, nil
}

// validateParsed checks the recovered invoice data against the NotaFiscal
// schema. Warn-only: the parser's contract stays total.
func (o *Orchestrator) validateParsed(id string, env *llm.Envelope) {
	parsed := parse.Parse(env)
	if parse.IsDiagnostic(parsed) {
		o.logger.Warn("llm reply yielded no invoice JSON", "invoice_id", id)
		return
	}
	doc, err := json.Marshal(parsed)
	if err != nil {
		return
	}
	if err := llm.ValidateJSONAgainstSchema(llm.BuildInvoiceJSONSchema(), doc); err != nil {
		o.logger.Warn("parsed invoice does not match schema", "invoice_id", id, "error", err)
	}
}

func mimeTypeFor(ext string) string {
	if mt := mime.TypeByExtension("." + ext); mt != "" {
		return mt
	}
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

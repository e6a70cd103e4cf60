package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nfscan/nfscan/constants"
	"github.com/nfscan/nfscan/internal/common"
	"github.com/nfscan/nfscan/internal/entity"
)

// Config holds connection settings for the PostgREST-style record store.
type Config struct {
	BaseURL string
	APIKey  string
	Table   string
	Timeout time.Duration
}

// StoreError carries the status and body of a non-success store response.
type StoreError struct {
	Op     string
	Status int
	Body   string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: status %d: %s", e.Op, e.Status, e.Body)
}

// InvoiceRepository is the persistence boundary for invoice records.
type InvoiceRepository interface {
	// Create registers a new record with status "uploaded". The store
	// assigns id and created_at.
	Create(ctx context.Context, filename string) (*entity.Invoice, error)

	// Update patches an arbitrary field subset and stamps updated_at.
	// An empty response body is a no-op, not an error (returns nil, nil).
	Update(ctx context.Context, id string, fields map[string]any) (*entity.Invoice, error)

	// Get fetches a single record by id. Returns common.ErrNotFound when
	// nothing matches.
	Get(ctx context.Context, id string) (*entity.Invoice, error)

	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]*entity.Invoice, error)
}

type restInvoiceRepository struct {
	restURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewInvoiceRepository builds the REST client. Missing credentials are a
// configuration error that blocks all store operations.
func NewInvoiceRepository(cfg Config, logger *slog.Logger) (InvoiceRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: store URL and API key are required", common.ErrConfiguration)
	}
	if cfg.Table == "" {
		cfg.Table = "invoices"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &restInvoiceRepository{
		restURL: strings.TrimRight(cfg.BaseURL, "/") + "/rest/v1/" + cfg.Table,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}, nil
}

func (r *restInvoiceRepository) Create(ctx context.Context, filename string) (*entity.Invoice, error) {
	payload := map[string]any{
		"filename": filename,
		"status":   string(constants.StatusUploaded),
	}
	raw, status, err := r.do(ctx, http.MethodPost, r.restURL, payload)
	if err != nil {
		return nil, common.WrapError(err, "create invoice")
	}
	if status/100 != 2 {
		return nil, &StoreError{Op: "create", Status: status, Body: string(raw)}
	}

	var rows []*entity.Invoice
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode create response: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("create invoice: no data returned from insert")
	}
	return rows[0], nil
}

func (r *restInvoiceRepository) Update(ctx context.Context, id string, fields map[string]any) (*entity.Invoice, error) {
	patch := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}
	patch["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	u := r.restURL + "?id=eq." + url.QueryEscape(id)
	raw, status, err := r.do(ctx, http.MethodPatch, u, patch)
	if err != nil {
		return nil, common.WrapError(err, "update invoice")
	}
	if status/100 != 2 {
		return nil, &StoreError{Op: "update", Status: status, Body: string(raw)}
	}

	var rows []*entity.Invoice
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode update response: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *restInvoiceRepository) Get(ctx context.Context, id string) (*entity.Invoice, error) {
	u := r.restURL + "?select=*&id=eq." + url.QueryEscape(id)
	raw, status, err := r.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, common.WrapError(err, "get invoice")
	}
	if status/100 != 2 {
		return nil, &StoreError{Op: "get", Status: status, Body: string(raw)}
	}

	var rows []*entity.Invoice
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode get response: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	return rows[0], nil
}

func (r *restInvoiceRepository) List(ctx context.Context, limit int) ([]*entity.Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	u := fmt.Sprintf("%s?select=*&order=created_at.desc&limit=%d", r.restURL, limit)
	raw, status, err := r.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, common.WrapError(err, "list invoices")
	}
	if status/100 != 2 {
		return nil, &StoreError{Op: "list", Status: status, Body: string(raw)}
	}

	var rows []*entity.Invoice
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return rows, nil
}

func (r *restInvoiceRepository) do(ctx context.Context, method, u string, body any) ([]byte, int, error) {
	reqID := uuid.New().String()
	start := time.Now()

	var reader io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode json: %w", err)
		}
		reader = bytes.NewReader(bs)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("store.http.send_error", "req_id", reqID, "method", method, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func(body io.ReadCloser) {
		if cerr := body.Close(); cerr != nil {
			r.logger.Warn("store.http.response_body_close_error", "req_id", reqID, "error", cerr)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)

	r.logger.Debug("store.http.response",
		"req_id", reqID,
		"method", method,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return raw, resp.StatusCode, nil
}

// Package export produces spreadsheet snapshots of the invoice list.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nfscan/nfscan/internal/entity"
	"github.com/nfscan/nfscan/internal/parse"
	"github.com/nfscan/nfscan/internal/repository"
)

// Service is a tiny façade over the invoice repository that produces XLSX
// bytes for exports.
type Service struct {
	repo   repository.InvoiceRepository
	logger *slog.Logger
}

func NewService(repo repository.InvoiceRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ExportInvoicesXLSX returns an XLSX workbook (as bytes) with one row per
// invoice record, newest first. Issuer and total come from re-parsing the
// stored envelope; records without one leave those cells empty.
func (s *Service) ExportInvoicesXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()

	recs, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defIdx, _ := f.GetSheetIndex("Sheet1"); defIdx != -1 && defIdx != activeIndex {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{"Filename", "Status", "Created At", "Updated At", "Issuer", "Total", "Error"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for row, rec := range recs {
		issuer, total := summarize(rec)
		values := []any{
			rec.Filename,
			string(rec.Status),
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.UpdatedAt.UTC().Format(time.RFC3339),
			issuer,
			total,
			deref(rec.Error),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("export ok", "rows", len(recs), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

// summarize pulls display fields out of the stored envelope, if any.
func summarize(rec *entity.Invoice) (issuer string, total any) {
	if len(rec.LLMResponse) == 0 {
		return "", ""
	}
	parsed := parse.Parse(rec.LLMResponse)
	if parse.IsDiagnostic(parsed) {
		return "", ""
	}
	if est, ok := parsed["estabelecimento"].(map[string]any); ok {
		if nome, ok := est["nome"].(string); ok {
			issuer = nome
		}
	}
	if tot, ok := parsed["totais"].(map[string]any); ok {
		if v, ok := tot["valor_total"]; ok && v != nil {
			total = v
		}
	}
	if total == nil {
		total = ""
	}
	return issuer, total
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

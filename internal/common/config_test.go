package common

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"SUPABASE_URL", "SUPABASE_API_KEY", "SUPABASE_TABLE", "STORE_TIMEOUT",
		"TESSERACT_CMD", "OCR_LANG", "OCR_DPI", "OCR_PREPROCESS",
		"LLM_PROVIDER", "LLM_MODEL", "LLM_TIMEOUT", "PIPELINE_MODE", "CACHE_DIR",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.Store.Table != "invoices" {
		t.Errorf("table = %q", cfg.Store.Table)
	}
	if cfg.Store.Timeout != 30*time.Second {
		t.Errorf("store timeout = %v", cfg.Store.Timeout)
	}
	if cfg.OCR.Language != "por" || cfg.OCR.DPI != 300 || !cfg.OCR.Preprocess {
		t.Errorf("ocr defaults = %+v", cfg.OCR)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Timeout != 60*time.Second {
		t.Errorf("llm defaults = %+v", cfg.LLM)
	}
	if cfg.Pipeline.Mode != "manual" {
		t.Errorf("mode = %q", cfg.Pipeline.Mode)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co")
	t.Setenv("SUPABASE_API_KEY", "key")
	t.Setenv("OCR_DPI", "150")
	t.Setenv("OCR_PREPROCESS", "false")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("LLM_TIMEOUT", "90s")
	t.Setenv("PIPELINE_MODE", "auto")

	cfg := LoadConfig()
	if cfg.OCR.DPI != 150 || cfg.OCR.Preprocess {
		t.Errorf("ocr = %+v", cfg.OCR)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.Timeout != 90*time.Second {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Pipeline.Mode != "auto" {
		t.Errorf("mode = %q", cfg.Pipeline.Mode)
	}
}

func TestLoadConfigIgnoresMalformedValues(t *testing.T) {
	t.Setenv("OCR_DPI", "many")
	t.Setenv("STORE_TIMEOUT", "soon")
	t.Setenv("OCR_PREPROCESS", "sim")

	cfg := LoadConfig()
	if cfg.OCR.DPI != 300 {
		t.Errorf("dpi = %d, want default on parse failure", cfg.OCR.DPI)
	}
	if cfg.Store.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Store.Timeout)
	}
	if !cfg.OCR.Preprocess {
		t.Error("preprocess should keep default on parse failure")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Store:    StoreConfig{BaseURL: "https://proj.supabase.co", APIKey: "key"},
		Pipeline: PipelineConfig{Mode: "manual"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	missing := *cfg
	missing.Store.APIKey = ""
	if err := missing.Validate(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}

	badMode := *cfg
	badMode.Pipeline.Mode = "turbo"
	if err := badMode.Validate(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration for bad mode", err)
	}
}

func TestAppErrorChain(t *testing.T) {
	err := NewAppError("OCR_ERROR", "recognition failed", ErrExtraction)
	if !errors.Is(err, ErrExtraction) {
		t.Error("cause not reachable through errors.Is")
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "OCR_ERROR" {
		t.Errorf("got %v", err)
	}
	if WrapError(nil, "noop") != nil {
		t.Error("wrapping nil must stay nil")
	}
	if wrapped := WrapError(ErrNotFound, "get invoice"); !errors.Is(wrapped, ErrNotFound) {
		t.Errorf("wrapped = %v", wrapped)
	}
}

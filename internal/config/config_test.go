package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("EXAM_ORACLE_PROVIDER", "")
	t.Setenv("EXAM_MAX_PAGES_PER_BATCH", "")
	t.Setenv("EXAM_OVERLAP_PAGES", "")
	t.Setenv("EXAM_OCR_ENABLED", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != ProviderGemini {
		t.Errorf("Provider = %q, want %q", cfg.Provider, ProviderGemini)
	}
	if cfg.GeminiModel != "gemini-2.0-flash" {
		t.Errorf("GeminiModel = %q", cfg.GeminiModel)
	}
	if cfg.MaxPagesPerBatch != 5 || cfg.OverlapPages != 1 {
		t.Errorf("batching = %d/%d, want 5/1", cfg.MaxPagesPerBatch, cfg.OverlapPages)
	}
	if !cfg.OCREnabled {
		t.Error("OCR should be enabled by default")
	}
}

func TestLoad_ProviderSelection(t *testing.T) {
	tests := []struct {
		name     string
		gemini   string
		openai   string
		provider string
		want     string
		wantErr  bool
	}{
		{"gemini key only", "g", "", "", ProviderGemini, false},
		{"openai key only", "", "o", "", ProviderOpenAI, false},
		{"both keys default to gemini", "g", "o", "", ProviderGemini, false},
		{"explicit openai", "g", "o", "OpenAI", ProviderOpenAI, false},
		{"unknown provider", "g", "", "claude", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", tt.gemini)
			t.Setenv("OPENAI_API_KEY", tt.openai)
			t.Setenv("EXAM_ORACLE_PROVIDER", tt.provider)
			t.Setenv("EXAM_MAX_PAGES_PER_BATCH", "")
			t.Setenv("EXAM_OVERLAP_PAGES", "")

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Provider != tt.want {
				t.Errorf("Provider = %q, want %q", cfg.Provider, tt.want)
			}
		})
	}
}

func TestLoad_InvalidOverlap(t *testing.T) {
	t.Setenv("EXAM_ORACLE_PROVIDER", "")
	t.Setenv("EXAM_MAX_PAGES_PER_BATCH", "3")
	t.Setenv("EXAM_OVERLAP_PAGES", "3")

	if _, err := Load(); err == nil {
		t.Error("Expected error when overlap is not smaller than batch size")
	}
}

func TestResolveDBPath_Explicit(t *testing.T) {
	cfg := &Config{DBPath: "/tmp/custom.db"}
	path, err := cfg.ResolveDBPath()
	if err != nil {
		t.Fatalf("ResolveDBPath failed: %v", err)
	}
	if path != "/tmp/custom.db" {
		t.Errorf("path = %q", path)
	}
}

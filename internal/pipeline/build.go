package pipeline

import (
	"fmt"
	"strings"

	"github.com/Epistemic-Technology/exam-mcp/internal/config"
	"github.com/Epistemic-Technology/exam-mcp/internal/extract"
	"github.com/Epistemic-Technology/exam-mcp/internal/llm"
	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/internal/oracle"
)

// NewOracle returns the oracle for a provider, falling back to the
// configured provider when name is empty. A provider without an API key
// yields a nil oracle.
func NewOracle(cfg *config.Config, name string, log logger.Logger) (llm.Oracle, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = cfg.Provider
	}
	switch name {
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, nil
		}
		return llm.NewGeminiOracle(cfg.GeminiAPIKey, cfg.GeminiModel, log), nil
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, nil
		}
		return llm.NewOpenAIOracle(cfg.OpenAIAPIKey, cfg.OpenAIModel, log), nil
	default:
		return nil, fmt.Errorf("invalid oracle provider: %s (expected '%s' or '%s')", name, config.ProviderGemini, config.ProviderOpenAI)
	}
}

// NewFromConfig wires a pipeline from the configuration: the extractor with
// Tesseract OCR when enabled, and the oracle for the given provider.
func NewFromConfig(cfg *config.Config, provider string, log logger.Logger) (*Pipeline, error) {
	var opts extract.Options
	if cfg.OCREnabled {
		opts.OCR = extract.NewTesseractEngine(strings.Split(cfg.OCRLanguage, "+")...)
	}

	o, err := NewOracle(cfg, provider, log)
	if err != nil {
		return nil, err
	}
	var adapter *oracle.Adapter
	if o != nil {
		adapter = oracle.NewAdapter(o, log)
	} else {
		log.Warn("No API key for oracle provider %q, running deterministic extraction only", provider)
	}

	return New(cfg, extract.New(opts, log), adapter, log), nil
}

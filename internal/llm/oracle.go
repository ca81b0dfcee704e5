package llm

import (
	"context"
)

// Part is one element of an oracle request: text or an inline binary blob
type Part interface {
	isPart()
}

// TextPart is an instruction, label or serialized data string
type TextPart string

// BlobPart is an inline binary such as a one-page PDF or a PNG page image
type BlobPart struct {
	MIMEType string
	Data     []byte
}

func (TextPart) isPart() {}
func (BlobPart) isPart() {}

// GenerationConfig holds the sampling settings of one request
type GenerationConfig struct {
	Temperature     float32
	TopP            float32
	MaxOutputTokens int32
	// JSON asks the provider to answer with a JSON document when it supports it
	JSON bool
}

// DefaultGenerationConfig is used for question reconstruction
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{Temperature: 0.1, TopP: 0.95, MaxOutputTokens: 65536, JSON: true}
}

// AnswerKeyGenerationConfig is used for answer-key extraction
func AnswerKeyGenerationConfig() GenerationConfig {
	return GenerationConfig{Temperature: 0.1, TopP: 0.95, MaxOutputTokens: 4096, JSON: true}
}

// Request is an ordered list of parts sent to the oracle in one call
type Request struct {
	Parts  []Part
	Config GenerationConfig
}

// EstimatedTokens approximates the request size for rate limiting
func (r Request) EstimatedTokens() int {
	tokens := 0
	for _, p := range r.Parts {
		switch v := p.(type) {
		case TextPart:
			tokens += len(v) / 4
		case BlobPart:
			tokens += EstimatedTokensPerPage
		}
	}
	return tokens
}

// Oracle is an external reasoning service that answers a request with text.
// An empty answer caused by a safety block is reported as
// models.ErrContentBlocked.
type Oracle interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiOracle calls Google Gemini through the generative-ai-go client
type GeminiOracle struct {
	apiKey string
	model  string
	log    logger.Logger
}

func NewGeminiOracle(apiKey, model string, log logger.Logger) *GeminiOracle {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiOracle{apiKey: strings.TrimSpace(apiKey), model: model, log: log}
}

func (g *GeminiOracle) Name() string { return "gemini" }

func (g *GeminiOracle) Generate(ctx context.Context, req Request) (string, error) {
	if g.apiKey == "" {
		return "", errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(g.model)
	m.SetTemperature(req.Config.Temperature)
	m.SetTopP(req.Config.TopP)
	m.SetMaxOutputTokens(req.Config.MaxOutputTokens)
	if req.Config.JSON {
		m.ResponseMIMEType = "application/json"
	}

	parts := make([]genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		switch v := p.(type) {
		case TextPart:
			parts = append(parts, genai.Text(string(v)))
		case BlobPart:
			parts = append(parts, &genai.Blob{MIMEType: v.MIMEType, Data: v.Data})
		}
	}

	g.log.Debug("Calling Gemini %s with %d parts", g.model, len(parts))
	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", fmt.Errorf("%w: %v", models.ErrContentBlocked, err)
		}
		return "", err
	}
	text := firstText(resp)
	if strings.TrimSpace(text) == "" {
		return "", models.ErrContentBlocked
	}
	return text, nil
}

// firstText concatenates the text parts of the first candidate with content
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}

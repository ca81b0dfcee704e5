package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

// DefaultOpenAIModel is used when no model is configured
const DefaultOpenAIModel = string(shared.ChatModelGPT5Mini)

// OpenAIOracle calls the OpenAI Responses API
type OpenAIOracle struct {
	apiKey string
	model  string
	log    logger.Logger
}

func NewOpenAIOracle(apiKey, model string, log logger.Logger) *OpenAIOracle {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIOracle{apiKey: strings.TrimSpace(apiKey), model: model, log: log}
}

func (o *OpenAIOracle) Name() string { return "openai" }

func (o *OpenAIOracle) Generate(ctx context.Context, req Request) (string, error) {
	if o.apiKey == "" {
		return "", errors.New("OPENAI_API_KEY is empty")
	}
	client := openai.NewClient(option.WithAPIKey(o.apiKey))

	o.log.Debug("Calling OpenAI %s with %d parts", o.model, len(req.Parts))
	response, err := client.Responses.New(ctx, responses.ResponseNewParams{
		Model: shared.ResponsesModel(o.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(openAIContent(req.Parts), "user"),
			},
		},
		MaxOutputTokens: openai.Int(int64(req.Config.MaxOutputTokens)),
	})
	if err != nil {
		return "", err
	}
	text := response.OutputText()
	if strings.TrimSpace(text) == "" {
		return "", models.ErrContentBlocked
	}
	return text, nil
}

// openAIContent converts request parts to Responses API content. PDFs go
// as input files; everything else as input images.
func openAIContent(parts []Part) responses.ResponseInputMessageContentListParam {
	content := make(responses.ResponseInputMessageContentListParam, 0, len(parts))
	fileCount := 0
	for _, p := range parts {
		switch v := p.(type) {
		case TextPart:
			content = append(content, responses.ResponseInputContentParamOfInputText(string(v)))
		case BlobPart:
			dataURL := "data:" + v.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(v.Data)
			if v.MIMEType == "application/pdf" {
				fileCount++
				content = append(content, responses.ResponseInputContentUnionParam{
					OfInputFile: &responses.ResponseInputFileParam{
						FileData: openai.String(dataURL),
						Filename: openai.String(pageFilename(fileCount)),
					},
				})
				continue
			}
			content = append(content, responses.ResponseInputContentUnionParam{
				OfInputImage: &responses.ResponseInputImageParam{
					ImageURL: openai.String(dataURL),
					Detail:   responses.ResponseInputImageDetailHigh,
				},
			})
		}
	}
	return content
}

func pageFilename(n int) string {
	return fmt.Sprintf("page-%d.pdf", n)
}

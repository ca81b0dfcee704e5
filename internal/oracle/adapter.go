package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/Epistemic-Technology/exam-mcp/internal/geometry"
	"github.com/Epistemic-Technology/exam-mcp/internal/llm"
	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/internal/segment"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

// Batch is a window of consecutive pages sent to the oracle in one call,
// together with the primitives and candidates found on those pages.
type Batch struct {
	Number        int
	TotalPages    int
	Pages         []models.PageImage
	Lines         []models.TextLine
	Images        []models.VisualElement
	Relationships []models.SpatialRelationship
	Candidates    []segment.Candidate
}

// Adapter turns batches into question units through an Oracle
type Adapter struct {
	oracle llm.Oracle
	log    logger.Logger
}

// NewAdapter creates an adapter for the given oracle
func NewAdapter(oracle llm.Oracle, log logger.Logger) *Adapter {
	return &Adapter{oracle: oracle, log: logger.WithComponent(log, "oracle")}
}

// Provider returns the name of the underlying oracle
func (a *Adapter) Provider() string {
	return a.oracle.Name()
}

type imageHint struct {
	ID         string            `json:"id"`
	Page       int               `json:"page"`
	BBox       geometry.BBox     `json:"bbox"`
	SourceKind models.SourceKind `json:"sourceKind"`
	SizeClass  models.SizeClass  `json:"sizeClass"`
}

type lineHint struct {
	ID     int           `json:"id"`
	Page   int           `json:"page"`
	Text   string        `json:"text"`
	BBox   geometry.BBox `json:"bbox"`
	Size   float64       `json:"fontSize"`
	Bold   bool          `json:"bold,omitempty"`
	Column int           `json:"column"`
	Order  int           `json:"order"`
}

type hints struct {
	Lines         []lineHint                   `json:"lines"`
	Images        []imageHint                  `json:"images"`
	Relationships []models.SpatialRelationship `json:"relationships"`
	Candidates    []segment.Candidate          `json:"candidates"`
}

func batchHints(b Batch) hints {
	h := hints{
		Lines:         make([]lineHint, 0, len(b.Lines)),
		Images:        make([]imageHint, 0, len(b.Images)),
		Relationships: b.Relationships,
		Candidates:    b.Candidates,
	}
	for _, l := range b.Lines {
		h.Lines = append(h.Lines, lineHint{
			ID: l.ID, Page: l.Page, Text: l.Text, BBox: l.BBox,
			Size: l.FontSize, Bold: l.IsBold, Column: l.Column, Order: l.ReadingOrder,
		})
	}
	for _, img := range b.Images {
		h.Images = append(h.Images, imageHint{
			ID: img.ID, Page: img.Page, BBox: img.BBox,
			SourceKind: img.SourceKind, SizeClass: img.SizeClass,
		})
	}
	return h
}

// BuildRequest assembles the ordered request parts for a batch: the
// instruction document, each labelled page, then the layout hints.
func BuildRequest(b Batch, mode models.Mode) (llm.Request, error) {
	parts := []llm.Part{llm.TextPart(PromptFor(mode))}
	for _, page := range b.Pages {
		parts = append(parts, llm.TextPart(PageLabel(page.Number, b.TotalPages)))
		parts = append(parts, llm.BlobPart{MIMEType: page.MIMEType, Data: page.Data})
	}
	if mode == models.ModeExtract {
		data, err := json.Marshal(batchHints(b))
		if err != nil {
			return llm.Request{}, fmt.Errorf("failed to serialize layout hints: %w", err)
		}
		parts = append(parts, llm.TextPart("\n--- LAYOUT HINTS ---\n"+string(data)))
	}
	return llm.Request{Parts: parts, Config: llm.DefaultGenerationConfig()}, nil
}

// Reconstruct sends one batch to the oracle and returns the questions it
// found. Every failure is returned as *models.OracleCallError.
func (a *Adapter) Reconstruct(ctx context.Context, b Batch, mode models.Mode) (*Reconstruction, error) {
	wrap := func(err error) error {
		return &models.OracleCallError{Batch: b.Number, Provider: a.oracle.Name(), Err: err}
	}

	req, err := BuildRequest(b, mode)
	if err != nil {
		return nil, wrap(err)
	}

	a.log.Info("Sending batch %d (%d pages) to %s", b.Number, len(b.Pages), a.oracle.Name())
	text, err := llm.RateLimitedCall(ctx, req.EstimatedTokens(), a.log, func(ctx context.Context) (string, error) {
		return a.oracle.Generate(ctx, req)
	})
	if err != nil {
		return nil, wrap(err)
	}

	repaired, err := RepairJSON(text)
	if err != nil {
		a.log.Debug("Unrepairable response for batch %d: %.200s", b.Number, text)
		return nil, wrap(err)
	}

	result, err := ParseReconstruction(repaired, mode)
	if err != nil {
		return nil, wrap(err)
	}

	firstPage := 0
	if len(b.Pages) > 0 {
		firstPage = b.Pages[0].Number
	}
	for i := range result.Questions {
		result.Questions[i].Page = firstPage
	}
	ResolveDiagrams(result.Questions, b.Images)

	a.log.Info("Batch %d returned %d questions", b.Number, len(result.Questions))
	return result, nil
}

// ExtractAnswerKey reads an answer key from the given pages
func (a *Adapter) ExtractAnswerKey(ctx context.Context, pages []models.PageImage) ([]models.AnswerKeyEntry, error) {
	wrap := func(err error) error {
		return &models.OracleCallError{Provider: a.oracle.Name(), Err: err}
	}
	if len(pages) == 0 {
		return nil, wrap(errors.New("no answer key pages"))
	}

	parts := []llm.Part{llm.TextPart(AnswerKeyPrompt)}
	for i, page := range pages {
		parts = append(parts, llm.TextPart(AnswerKeyPageLabel(i+1)))
		parts = append(parts, llm.BlobPart{MIMEType: page.MIMEType, Data: page.Data})
	}
	req := llm.Request{Parts: parts, Config: llm.AnswerKeyGenerationConfig()}

	text, err := llm.RateLimitedCall(ctx, req.EstimatedTokens(), a.log, func(ctx context.Context) (string, error) {
		return a.oracle.Generate(ctx, req)
	})
	if err != nil {
		return nil, wrap(err)
	}

	repaired, err := RepairJSON(text)
	if err != nil {
		return nil, wrap(err)
	}
	entries := ParseAnswerKey(repaired)
	a.log.Info("Answer key has %d entries", len(entries))
	return entries, nil
}

// ParseAnswerKey decodes {"answer_key": [...]} or a bare list of entries.
// Entries without a question number or answer are dropped.
func ParseAnswerKey(text string) []models.AnswerKeyEntry {
	doc := gjson.Parse(text)
	list := doc
	if doc.IsObject() {
		list = doc.Get("answer_key")
	}
	var entries []models.AnswerKeyEntry
	for _, item := range list.Array() {
		var entry models.AnswerKeyEntry
		if err := json.Unmarshal([]byte(item.Raw), &entry); err != nil {
			continue
		}
		if entry.QuestionNumber == "" || entry.Answer.IsEmpty() {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

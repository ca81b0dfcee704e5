package models

import (
	"github.com/Epistemic-Technology/exam-mcp/internal/geometry"
)

// ExtractionStrategy names the extractor that produced a text line
type ExtractionStrategy string

const (
	StrategyNativeText   ExtractionStrategy = "native-text"
	StrategyContentWords ExtractionStrategy = "content-words"
	StrategyOCR          ExtractionStrategy = "ocr"
)

// TextLine is one visual line of text with its position and font attributes
type TextLine struct {
	ID           int                `json:"id"`
	Page         int                `json:"page"`
	BBox         geometry.BBox      `json:"bbox"`
	Text         string             `json:"text"`
	FontSize     float64            `json:"fontSize"`
	IsBold       bool               `json:"isBold"`
	IsItalic     bool               `json:"isItalic"`
	ReadingOrder int                `json:"readingOrder"`
	Column       int                `json:"column"`
	Strategy     ExtractionStrategy `json:"strategy"`
}

// SourceKind describes how a visual element was found
type SourceKind string

const (
	SourceEmbedded       SourceKind = "embedded"
	SourceVectorGraphic  SourceKind = "vector-graphic"
	SourceEquationRegion SourceKind = "equation-region"
)

// SizeClass buckets visual elements by pixel area
type SizeClass string

const (
	SizeIcon   SizeClass = "icon"
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

// VisualElement is an image or diagram region on a page
type VisualElement struct {
	ID         string        `json:"id"`
	Page       int           `json:"page"`
	BBox       geometry.BBox `json:"bbox"`
	Data       []byte        `json:"data,omitempty"`
	Format     string        `json:"format,omitempty"`
	SourceKind SourceKind    `json:"sourceKind"`
	SizeClass  SizeClass     `json:"sizeClass"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Hash       string        `json:"hash"`
}

// PagePrimitives holds everything extracted from one page
type PagePrimitives struct {
	Number   int                `json:"page"`
	Width    float64            `json:"width"`
	Height   float64            `json:"height"`
	Lines    []TextLine         `json:"lines"`
	Images   []VisualElement    `json:"images"`
	Strategy ExtractionStrategy `json:"strategy,omitempty"`
}

// Primitives is the extractor output for a whole document
type Primitives struct {
	Pages []PagePrimitives `json:"pages"`
}

// Lines returns all lines across pages in page order
func (p *Primitives) Lines() []TextLine {
	var out []TextLine
	for _, page := range p.Pages {
		out = append(out, page.Lines...)
	}
	return out
}

// Images returns all visual elements across pages in page order
func (p *Primitives) Images() []VisualElement {
	var out []VisualElement
	for _, page := range p.Pages {
		out = append(out, page.Images...)
	}
	return out
}

// RelationKind is the direction of an image relative to a text line
type RelationKind string

const (
	RelationContained RelationKind = "contained"
	RelationAbove     RelationKind = "above"
	RelationBelow     RelationKind = "below"
	RelationLeft      RelationKind = "left"
	RelationRight     RelationKind = "right"
)

// SpatialRelationship associates an image with its nearest text line.
// It never owns either side.
type SpatialRelationship struct {
	TextLineID int          `json:"textLineId"`
	ImageID    string       `json:"imageId"`
	Kind       RelationKind `json:"kind"`
	Distance   float64      `json:"distance"`
	Confidence float64      `json:"confidence"`
}

// QuestionType is the answer format of a question
type QuestionType string

const (
	TypeSingle    QuestionType = "single"
	TypeMultiple  QuestionType = "multiple"
	TypeNumerical QuestionType = "numerical"
)

// QuestionSource records which path produced a question unit
type QuestionSource string

const (
	SourceDeterministic QuestionSource = "deterministic"
	SourceOracle        QuestionSource = "oracle"
)

// QuestionUnit is one question with its options, image and answer
type QuestionUnit struct {
	Index          int            `json:"index"`
	ID             QuestionID     `json:"id"`
	Page           int            `json:"page,omitempty"`
	Lines          []TextLine     `json:"lines,omitempty"`
	BBox           geometry.BBox  `json:"bbox"`
	Text           string         `json:"question"`
	Options        *Options       `json:"options"`
	OptionImages   *Options       `json:"optionImages,omitempty"`
	BoundImageID   string         `json:"image,omitempty"`
	NeedsAnswer    bool           `json:"needsAnswer"`
	CorrectAnswer  *Answer        `json:"correctAnswer"`
	Type           QuestionType   `json:"type"`
	Marks          float64        `json:"marks"`
	NegativeMarks  float64        `json:"negativeMarks"`
	CrossPage      bool           `json:"crossPage"`
	DiagramPage    *int           `json:"diagramPage"`
	DiagramOption  *string        `json:"diagramOption"`
	PassageContent string         `json:"passageContent,omitempty"`
	Source         QuestionSource `json:"source,omitempty"`
}

// PipelineResult is the final output of one extraction run
type PipelineResult struct {
	Title           string          `json:"title,omitempty"`
	Description     string          `json:"description,omitempty"`
	RevisionNotes   string          `json:"revision_notes,omitempty"`
	Questions       []QuestionUnit  `json:"questions"`
	CanConfirm      bool            `json:"canConfirm"`
	UnansweredCount int             `json:"unansweredCount"`
	Images          []VisualElement `json:"images,omitempty"`
}

// Summarize recomputes CanConfirm and UnansweredCount from the questions
func (r *PipelineResult) Summarize() {
	unanswered := 0
	for _, q := range r.Questions {
		if q.CorrectAnswer == nil {
			unanswered++
		}
	}
	r.UnansweredCount = unanswered
	r.CanConfirm = len(r.Questions) > 0 && unanswered == 0
}

// AnswerKeyEntry maps a question number to its correct answer
type AnswerKeyEntry struct {
	QuestionNumber QuestionID `json:"question_number"`
	Answer         Answer     `json:"answer"`
}

// Mode selects the oracle instruction document
type Mode string

const (
	ModeExtract  Mode = "extract"
	ModeGenerate Mode = "generate"
)

// InputFile is one uploaded document or page image
type InputFile struct {
	Filename    string `json:"filename,omitempty"`
	Content     []byte `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

// DocumentData holds raw document bytes with their detected type
type DocumentData struct {
	Data     []byte
	Type     string
	Filename string
}

// PageImage is a single page ready to be sent to the oracle: a one-page PDF
// or a PNG/JPEG raster.
type PageImage struct {
	Number   int
	MIMEType string
	Data     []byte
}

// SourceInfo contains information about where the document came from
type SourceInfo struct {
	ZoteroID string `json:"zotero_id,omitempty"`
	URL      string `json:"url,omitempty"`
}

// ResultInfo contains basic information about a stored extraction result
type ResultInfo struct {
	DocumentID    string     `json:"document_id"`
	RunID         string     `json:"run_id"`
	Title         string     `json:"title,omitempty"`
	Mode          Mode       `json:"mode"`
	Provider      string     `json:"provider,omitempty"`
	QuestionCount int        `json:"question_count"`
	CanConfirm    bool       `json:"can_confirm"`
	SourceInfo    SourceInfo `json:"source_info,omitempty"`
	CreatedAt     string     `json:"created_at,omitempty"`
}

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"strings"
	"testing"

	"github.com/Epistemic-Technology/exam-mcp/internal/config"
	"github.com/Epistemic-Technology/exam-mcp/internal/extract"
	"github.com/Epistemic-Technology/exam-mcp/internal/llm"
	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/internal/oracle"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

type fakeOCR struct {
	lines []extract.OCRLine
}

func (f *fakeOCR) RecognizeLines(ctx context.Context, img []byte) ([]extract.OCRLine, error) {
	return f.lines, nil
}

type fakeOracle struct {
	questions string
	answerKey string
	err       error
	calls     int
}

func (f *fakeOracle) Name() string { return "fake" }

func (f *fakeOracle) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if first, ok := req.Parts[0].(llm.TextPart); ok && string(first) == oracle.AnswerKeyPrompt {
		return f.answerKey, nil
	}
	return f.questions, nil
}

func scanPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 1200, 1600))
	for i := range img.Pix {
		img.Pix[i] = uint8(color.White.Y >> 8)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// ocrLines places each text on its own row, all with the same width so the
// page reads as one column.
func ocrLines(texts ...string) []extract.OCRLine {
	lines := make([]extract.OCRLine, 0, len(texts))
	for i, text := range texts {
		y := 100 + i*60
		lines = append(lines, extract.OCRLine{Text: text, Box: image.Rect(100, y, 700, y+30), Confidence: 90})
	}
	return lines
}

var examText = []string{
	"1. What is 2+2?",
	"A. 3",
	"B. 4",
	"2. What is the capital of France?",
	"A. Paris",
	"B. Rome",
	"3. Name a noble gas.",
}

func newTestPipeline(ocrText []string, o llm.Oracle) *Pipeline {
	log := logger.NewNoOpLogger()
	cfg := &config.Config{MaxPagesPerBatch: 5, OverlapPages: 1}
	ex := extract.New(extract.Options{OCR: &fakeOCR{lines: ocrLines(ocrText...)}}, log)
	var adapter *oracle.Adapter
	if o != nil {
		adapter = oracle.NewAdapter(o, log)
	}
	return New(cfg, ex, adapter, log)
}

func questionIDs(qs []models.QuestionUnit) []string {
	ids := make([]string, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, string(q.ID))
	}
	return ids
}

func TestPlanBatches(t *testing.T) {
	tests := []struct {
		name                 string
		total, size, overlap int
		want                 [][]int
	}{
		{"empty", 0, 5, 1, nil},
		{"single short batch", 3, 5, 1, [][]int{{1, 2, 3}}},
		{"exact fit", 5, 5, 1, [][]int{{1, 2, 3, 4, 5}}},
		{"overlap", 12, 5, 1, [][]int{{1, 2, 3, 4, 5}, {5, 6, 7, 8, 9}, {9, 10, 11, 12}}},
		{"no overlap", 7, 5, 0, [][]int{{1, 2, 3, 4, 5}, {6, 7}}},
		{"invalid overlap ignored", 4, 2, 2, [][]int{{1, 2}, {3, 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanBatches(tt.total, tt.size, tt.overlap)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PlanBatches(%d, %d, %d) = %v, want %v", tt.total, tt.size, tt.overlap, got, tt.want)
			}
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	log := logger.NewNoOpLogger()
	calls := []string{}
	strategy := func(name string, units []models.QuestionUnit, err error) Strategy {
		return Strategy{Name: name, Run: func(ctx context.Context) ([]models.QuestionUnit, error) {
			calls = append(calls, name)
			return units, err
		}}
	}

	units, name, err := FirstNonEmpty(context.Background(), log,
		strategy("broken", nil, errors.New("boom")),
		strategy("empty", nil, nil),
		strategy("good", []models.QuestionUnit{{ID: "1"}}, nil),
		strategy("unused", []models.QuestionUnit{{ID: "9"}}, nil),
	)
	if err != nil {
		t.Fatalf("FirstNonEmpty failed: %v", err)
	}
	if name != "good" || len(units) != 1 {
		t.Errorf("got %q with %d units", name, len(units))
	}
	if want := []string{"broken", "empty", "good"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}

	_, _, err = FirstNonEmpty(context.Background(), log, strategy("empty", nil, nil))
	var zero *models.ZeroQuestionsError
	if !errors.As(err, &zero) {
		t.Errorf("expected ZeroQuestionsError, got %v", err)
	}
}

func TestTopUp(t *testing.T) {
	fromOracle := []models.QuestionUnit{
		{ID: "Q1", Text: "oracle one", Source: models.SourceOracle},
		{ID: "3", Text: "oracle three", Source: models.SourceOracle},
	}
	deterministic := []models.QuestionUnit{
		{ID: "1", Text: "det one"},
		{ID: "2", Text: "det two"},
		{ID: "3", Text: "det three"},
		{ID: "4", Text: "det four"},
	}
	got := topUp(fromOracle, deterministic)
	if ids := questionIDs(got); !reflect.DeepEqual(ids, []string{"Q1", "2", "3", "4"}) {
		t.Fatalf("ids = %v", ids)
	}
	if got[0].Text != "oracle one" || got[2].Text != "oracle three" {
		t.Errorf("oracle units should be kept: %q, %q", got[0].Text, got[2].Text)
	}

	enough := []models.QuestionUnit{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}}
	if got := topUp(enough, deterministic); len(got) != 4 {
		t.Errorf("no top-up expected, got %d", len(got))
	}
}

func TestTopUp_RepeatedNumbering(t *testing.T) {
	fromOracle := []models.QuestionUnit{
		{ID: "1", Text: "oracle physics one", Source: models.SourceOracle},
		{ID: "2", Text: "oracle physics two", Source: models.SourceOracle},
	}
	deterministic := []models.QuestionUnit{
		{ID: "1", Text: "det physics one"},
		{ID: "2", Text: "det physics two"},
		{ID: "1", Text: "det chemistry one"},
		{ID: "2", Text: "det chemistry two"},
	}
	got := topUp(fromOracle, deterministic)
	var texts []string
	for i, q := range got {
		texts = append(texts, q.Text)
		if q.Index != i+1 {
			t.Errorf("question %d has index %d", i, q.Index)
		}
	}
	want := []string{"oracle physics one", "oracle physics two", "det chemistry one", "det chemistry two"}
	if !reflect.DeepEqual(texts, want) {
		t.Errorf("texts = %v, want %v", texts, want)
	}
}

// The oracle fails on every batch: deterministic candidates must still
// reach the output.
func TestRun_NonLossWhenOracleFails(t *testing.T) {
	fake := &fakeOracle{err: errors.New("service unavailable")}
	p := newTestPipeline(examText, fake)

	result, err := p.Run(context.Background(), Input{Files: []models.InputFile{{Filename: "scan.png", Content: scanPNG(t)}}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("expected one oracle call, got %d", fake.calls)
	}
	if ids := questionIDs(result.Questions); !reflect.DeepEqual(ids, []string{"1", "2", "3"}) {
		t.Fatalf("ids = %v", ids)
	}
	for _, q := range result.Questions {
		if q.Source != models.SourceDeterministic {
			t.Errorf("question %s source = %s", q.ID, q.Source)
		}
	}
	if b := result.Questions[0].Options.Get("B"); b == nil || !strings.Contains(*b, "4") {
		t.Errorf("option B of question 1 not captured")
	}
	if result.Title != defaultTitle || result.Description != "Extracted from 1 pages" {
		t.Errorf("title/description = %q / %q", result.Title, result.Description)
	}
	if result.CanConfirm || result.UnansweredCount != 3 {
		t.Errorf("summary = canConfirm %v, unanswered %d", result.CanConfirm, result.UnansweredCount)
	}
}

func TestRun_OracleToppedUp(t *testing.T) {
	fake := &fakeOracle{
		questions: `{"title": "Mock Test", "questions": [{"id": 1, "type": "single", "question": "What is 2+2?", "options": {"A": "3", "B": "4", "C": "5", "D": "6"}, "correctAnswer": "B"}]}`,
		answerKey: `{"answer_key": [{"question_number": 2, "answer": "A"}]}`,
	}
	p := newTestPipeline(examText, fake)

	result, err := p.Run(context.Background(), Input{
		Files:     []models.InputFile{{Filename: "scan.png", Content: scanPNG(t)}},
		AnswerKey: []models.InputFile{{Filename: "key.png", Content: scanPNG(t)}},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Title != "Mock Test" {
		t.Errorf("Title = %q", result.Title)
	}
	if ids := questionIDs(result.Questions); !reflect.DeepEqual(ids, []string{"1", "2", "3"}) {
		t.Fatalf("ids = %v", ids)
	}
	q1, q2, q3 := result.Questions[0], result.Questions[1], result.Questions[2]
	if q1.Source != models.SourceOracle || q1.CorrectAnswer == nil || q1.CorrectAnswer.Letter != "B" {
		t.Errorf("q1 = %+v", q1)
	}
	if q2.Source != models.SourceDeterministic || q2.CorrectAnswer == nil || q2.CorrectAnswer.Letter != "A" {
		t.Errorf("q2 should come from the segmenter with the answer key applied: %+v", q2)
	}
	if q3.CorrectAnswer != nil {
		t.Errorf("q3 should be unanswered")
	}
	if result.UnansweredCount != 1 || result.CanConfirm {
		t.Errorf("summary = canConfirm %v, unanswered %d", result.CanConfirm, result.UnansweredCount)
	}
}

// Sections that restart their numbering keep every question on the
// deterministic path.
func TestRun_RepeatedNumberingDeterministic(t *testing.T) {
	p := newTestPipeline([]string{
		"1. Physics one",
		"2. Physics two",
		"1. Chemistry one",
		"2. Chemistry two",
	}, nil)

	result, err := p.Run(context.Background(), Input{Files: []models.InputFile{{Filename: "scan.png", Content: scanPNG(t)}}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ids := questionIDs(result.Questions); !reflect.DeepEqual(ids, []string{"1", "2", "1", "2"}) {
		t.Fatalf("ids = %v", ids)
	}
	for i, q := range result.Questions {
		if q.Index != i+1 {
			t.Errorf("question %d has index %d", i, q.Index)
		}
		if q.CrossPage {
			t.Errorf("question %d marked cross-page", q.Index)
		}
		if strings.Contains(q.Text, "<br>") {
			t.Errorf("question %d has fused text %q", q.Index, q.Text)
		}
	}
	if !strings.Contains(result.Questions[2].Text, "Chemistry one") {
		t.Errorf("third question = %q", result.Questions[2].Text)
	}
}

func TestRun_ZeroQuestions(t *testing.T) {
	p := newTestPipeline([]string{"Instructions to candidates", "Answer all questions"}, nil)

	_, err := p.Run(context.Background(), Input{Files: []models.InputFile{{Filename: "scan.png", Content: scanPNG(t)}}})
	var zero *models.ZeroQuestionsError
	if !errors.As(err, &zero) {
		t.Fatalf("expected ZeroQuestionsError, got %v", err)
	}
	if zero.Batches != 0 {
		t.Errorf("no oracle configured, got %d batches", zero.Batches)
	}
}

func TestRun_NoInput(t *testing.T) {
	p := newTestPipeline(nil, nil)
	_, err := p.Run(context.Background(), Input{})
	var docErr *models.DocumentError
	if !errors.As(err, &docErr) {
		t.Fatalf("expected DocumentError, got %v", err)
	}
}

func TestNewOracle(t *testing.T) {
	log := logger.NewNoOpLogger()
	cfg := &config.Config{Provider: config.ProviderGemini, OpenAIAPIKey: "sk-test"}

	o, err := NewOracle(cfg, "", log)
	if err != nil || o != nil {
		t.Errorf("gemini without key: oracle=%v err=%v", o, err)
	}
	o, err = NewOracle(cfg, "OpenAI", log)
	if err != nil || o == nil || o.Name() != "openai" {
		t.Errorf("openai override: oracle=%v err=%v", o, err)
	}
	if _, err := NewOracle(cfg, "claude", log); err == nil {
		t.Error("expected error for unknown provider")
	}
}

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Epistemic-Technology/exam-mcp/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "exam.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult() *models.PipelineResult {
	b := "4"
	page := 2
	result := &models.PipelineResult{
		Title:       "Physics Mock",
		Description: "Extracted from 3 pages",
		Questions: []models.QuestionUnit{
			{
				Index: 1, ID: "1", Text: "What is 2+2?", Type: models.TypeSingle,
				Options:       &models.Options{B: &b},
				CorrectAnswer: models.LetterAnswer("B"),
				Marks:         4, NegativeMarks: 1,
				BoundImageID: "IMG_3",
				DiagramPage:  &page,
			},
			{
				Index: 2, ID: "Q2", Text: "Enter g", Type: models.TypeNumerical,
				CorrectAnswer: models.RangeAnswer(9.7, 9.9),
				NeedsAnswer:   false,
			},
			{
				Index: 3, ID: "3", Text: "Pick all", Type: models.TypeMultiple,
				Options:     models.EmptyOptions(),
				NeedsAnswer: true,
			},
		},
		Images: []models.VisualElement{
			{ID: "IMG_3", Page: 2, Format: "png", SourceKind: models.SourceEmbedded, Width: 40, Height: 30, Data: []byte{1, 2, 3}},
		},
	}
	result.Summarize()
	return result
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	result := sampleResult()
	source := models.SourceInfo{ZoteroID: "ABC123"}
	docID := GenerateDocumentID(source, nil)

	runID, err := store.SaveResult(ctx, docID, result, SaveOptions{Mode: models.ModeExtract, Provider: "gemini", SourceInfo: source})
	if err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	if runID == "" {
		t.Error("expected a run ID")
	}

	got, err := store.GetResult(ctx, docID)
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if got.Title != result.Title || got.UnansweredCount != 1 || got.CanConfirm {
		t.Errorf("summary mismatch: %+v", got)
	}
	if !reflect.DeepEqual(got.Questions, result.Questions) {
		t.Errorf("questions did not round trip:\n got %+v\nwant %+v", got.Questions, result.Questions)
	}
	if len(got.Images) != 1 || !reflect.DeepEqual(got.Images[0].Data, []byte{1, 2, 3}) {
		t.Errorf("images did not round trip: %+v", got.Images)
	}

	q, err := store.GetQuestion(ctx, docID, 2)
	if err != nil {
		t.Fatalf("GetQuestion failed: %v", err)
	}
	if q.ID != "Q2" || q.CorrectAnswer.Range.Max != 9.9 {
		t.Errorf("question 2 = %+v", q)
	}

	img, err := store.GetImage(ctx, docID, "IMG_3")
	if err != nil {
		t.Fatalf("GetImage failed: %v", err)
	}
	if img.Width != 40 || img.SourceKind != models.SourceEmbedded {
		t.Errorf("image = %+v", img)
	}

	info, err := store.GetResultInfo(ctx, docID)
	if err != nil {
		t.Fatalf("GetResultInfo failed: %v", err)
	}
	if info.RunID != runID || info.QuestionCount != 3 || info.Provider != "gemini" || info.SourceInfo.ZoteroID != "ABC123" {
		t.Errorf("info = %+v", info)
	}
}

func TestSQLiteStore_ReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	docID := "sha_test"

	first, err := store.SaveResult(ctx, docID, sampleResult(), SaveOptions{Mode: models.ModeExtract})
	if err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	smaller := sampleResult()
	smaller.Questions = smaller.Questions[:1]
	second, err := store.SaveResult(ctx, docID, smaller, SaveOptions{Mode: models.ModeExtract})
	if err != nil {
		t.Fatalf("second SaveResult failed: %v", err)
	}
	if first == second {
		t.Error("each save should get a new run ID")
	}

	questions, err := store.GetQuestions(ctx, docID)
	if err != nil {
		t.Fatalf("GetQuestions failed: %v", err)
	}
	if len(questions) != 1 {
		t.Errorf("expected 1 question after replace, got %d", len(questions))
	}

	list, err := store.ListResults(ctx)
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 stored result, got %d", len(list))
	}

	if err := store.DeleteResult(ctx, docID); err != nil {
		t.Fatalf("DeleteResult failed: %v", err)
	}
	exists, err := store.ResultExists(ctx, docID)
	if err != nil || exists {
		t.Errorf("result should be gone: exists=%v err=%v", exists, err)
	}
	if _, err := store.GetResult(ctx, docID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteResult(ctx, docID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestGenerateDocumentID(t *testing.T) {
	tests := []struct {
		name    string
		source  models.SourceInfo
		content []byte
		prefix  string
	}{
		{"zotero", models.SourceInfo{ZoteroID: "K1", URL: "https://x"}, nil, "zotero_K1"},
		{"url", models.SourceInfo{URL: "https://example.com/a.pdf"}, nil, "url_"},
		{"content", models.SourceInfo{}, []byte("%PDF-1.7"), "sha_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := GenerateDocumentID(tt.source, tt.content)
			if !strings.HasPrefix(id, tt.prefix) {
				t.Errorf("GenerateDocumentID() = %q, want prefix %q", id, tt.prefix)
			}
			if again := GenerateDocumentID(tt.source, tt.content); again != id {
				t.Errorf("IDs should be stable: %q vs %q", id, again)
			}
		})
	}
}

func TestDollarNumbers(t *testing.T) {
	got := dollarNumbers("SELECT a FROM t WHERE x = ? AND y = ?")
	if want := "SELECT a FROM t WHERE x = $1 AND y = $2"; got != want {
		t.Errorf("dollarNumbers() = %q, want %q", got, want)
	}
}

func TestCalculateResourcePaths(t *testing.T) {
	paths := CalculateResourcePaths("doc1", sampleResult())
	want := []string{
		"exam://doc1",
		"exam://doc1/questions",
		"exam://doc1/questions/1",
		"exam://doc1/questions/3",
		"exam://doc1/questions/{index}",
		"exam://doc1/images/{imageId}",
	}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("CalculateResourcePaths() = %v, want %v", paths, want)
	}
}

// Package pipeline runs an exam document through extraction, layout
// analysis, segmentation, image binding, the reasoning oracle and
// reconciliation, and guarantees that deterministic candidates are never
// lost when the oracle falls short.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Epistemic-Technology/exam-mcp/internal/bind"
	"github.com/Epistemic-Technology/exam-mcp/internal/config"
	"github.com/Epistemic-Technology/exam-mcp/internal/documents"
	"github.com/Epistemic-Technology/exam-mcp/internal/extract"
	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/internal/oracle"
	"github.com/Epistemic-Technology/exam-mcp/internal/reconcile"
	"github.com/Epistemic-Technology/exam-mcp/internal/segment"
	"github.com/Epistemic-Technology/exam-mcp/internal/spatial"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

// Strategy names reported in logs
const (
	StrategyOracle        = "oracle"
	StrategyDeterministic = "deterministic"
)

const defaultTitle = "Extracted Exam"

// Input is one extraction request
type Input struct {
	Files     []models.InputFile
	AnswerKey []models.InputFile
	Mode      models.Mode
}

// Pipeline holds the components of one configured extraction pipeline.
// It is safe for concurrent use; each Run keeps its own state.
type Pipeline struct {
	extractor *extract.Extractor
	adapter   *oracle.Adapter
	batchSize int
	overlap   int
	log       logger.Logger
}

// New creates a pipeline. A nil adapter runs the deterministic path only.
func New(cfg *config.Config, extractor *extract.Extractor, adapter *oracle.Adapter, log logger.Logger) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		adapter:   adapter,
		batchSize: cfg.MaxPagesPerBatch,
		overlap:   cfg.OverlapPages,
		log:       logger.WithComponent(log, "pipeline"),
	}
}

// Provider names the oracle in use, or "" when there is none
func (p *Pipeline) Provider() string {
	if p.adapter == nil {
		return ""
	}
	return p.adapter.Provider()
}

// runState collects per-run oracle metadata
type runState struct {
	title         string
	description   string
	revisionNotes string
	batches       int
	failed        int
}

// layout is everything the deterministic stages found in the input
type layout struct {
	pages     []models.PageImage
	lines     []models.TextLine
	images    []models.VisualElement
	relations []models.SpatialRelationship
	units     []models.QuestionUnit
}

// Run extracts the questions of the input documents. Unopenable input is
// returned as *models.DocumentError; when no strategy yields a question the
// error is *models.ZeroQuestionsError.
func (p *Pipeline) Run(ctx context.Context, in Input) (*models.PipelineResult, error) {
	if len(in.Files) == 0 {
		return nil, &models.DocumentError{Err: errors.New("no input files")}
	}
	mode := in.Mode
	if mode == "" {
		mode = models.ModeExtract
	}

	lay, err := p.analyze(ctx, in.Files)
	if err != nil {
		return nil, err
	}
	deterministic := renumber(lay.units)
	p.log.Info("Found %d lines, %d visual elements and %d candidate questions on %d pages",
		len(lay.lines), len(lay.images), len(deterministic), len(lay.pages))

	st := &runState{}
	var strategies []Strategy
	if p.adapter != nil {
		strategies = append(strategies, Strategy{
			Name: StrategyOracle,
			Run: func(ctx context.Context) ([]models.QuestionUnit, error) {
				units := p.reconstruct(ctx, mode, lay, st)
				if len(units) == 0 || mode == models.ModeGenerate {
					return units, nil
				}
				return topUp(units, deterministic), nil
			},
		})
	}
	if mode == models.ModeExtract {
		strategies = append(strategies, Strategy{
			Name: StrategyDeterministic,
			Run: func(ctx context.Context) ([]models.QuestionUnit, error) {
				return deterministic, nil
			},
		})
	}

	questions, source, err := FirstNonEmpty(ctx, p.log, strategies...)
	if err != nil {
		var zero *models.ZeroQuestionsError
		if errors.As(err, &zero) {
			zero.Batches, zero.Failed = st.batches, st.failed
		}
		return nil, err
	}

	result := &models.PipelineResult{
		Title:         st.title,
		Description:   st.description,
		RevisionNotes: st.revisionNotes,
		Questions:     questions,
	}
	if result.Title == "" {
		result.Title = defaultTitle
	}
	if result.Description == "" {
		result.Description = fmt.Sprintf("Extracted from %d pages", len(lay.pages))
	}

	if len(in.AnswerKey) > 0 {
		if _, err := p.ApplyAnswerKey(ctx, result, in.AnswerKey); err != nil {
			p.log.Warn("Answer key not applied: %v", err)
		}
	}

	result.Images = referencedImages(result.Questions, lay.images)
	result.Summarize()
	p.log.Info("Extracted %d questions via %s (%d unanswered)", len(result.Questions), source, result.UnansweredCount)
	return result, nil
}

// ApplyAnswerKey reads an answer key from the given files and matches it
// onto the result's questions. It returns the number of questions matched.
func (p *Pipeline) ApplyAnswerKey(ctx context.Context, result *models.PipelineResult, files []models.InputFile) (int, error) {
	if p.adapter == nil {
		return 0, errors.New("answer key extraction requires an oracle provider")
	}
	docs := make([]models.DocumentData, 0, len(files))
	for _, f := range files {
		docs = append(docs, documents.FromInput(f))
	}
	pages, err := documents.PageImages(docs)
	if err != nil {
		return 0, err
	}
	entries, err := p.adapter.ExtractAnswerKey(ctx, pages)
	if err != nil {
		return 0, err
	}
	matched := reconcile.MatchAnswerKey(result.Questions, entries, p.log)
	result.Summarize()
	return matched, nil
}

// analyze runs the deterministic stages: extraction, reading order,
// spatial relations, segmentation and binding.
func (p *Pipeline) analyze(ctx context.Context, files []models.InputFile) (*layout, error) {
	docs := make([]models.DocumentData, 0, len(files))
	for _, f := range files {
		docs = append(docs, documents.FromInput(f))
	}

	prims, err := p.extractAll(ctx, docs)
	if err != nil {
		return nil, err
	}
	pages, err := documents.PageImages(docs)
	if err != nil {
		return nil, err
	}

	for i := range prims.Pages {
		prims.Pages[i].Lines = spatial.OrderPage(prims.Pages[i])
	}
	lay := &layout{pages: pages, lines: prims.Lines(), images: prims.Images()}
	lay.relations = spatial.RelateTextAndImages(lay.lines, lay.images)
	lay.units = segment.Segment(lay.lines)
	if unbound := bind.Bind(lay.units, lay.images); len(unbound) > 0 {
		p.log.Debug("%d visual elements left unbound: %v", len(unbound), unbound)
	}
	return lay, nil
}

// extractAll extracts every input and renumbers pages, line IDs and image
// IDs so they run across all inputs in order.
func (p *Pipeline) extractAll(ctx context.Context, docs []models.DocumentData) (*models.Primitives, error) {
	all := &models.Primitives{}
	lineID, imageNum := 0, 1
	for _, doc := range docs {
		var prims *models.Primitives
		var err error
		if doc.Type == documents.TypePDF {
			prims, err = p.extractor.Extract(ctx, doc.Data)
		} else {
			prims, err = p.extractor.ExtractRaster(ctx, doc.Data)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", doc.Filename, err)
		}

		offset := len(all.Pages)
		for _, page := range prims.Pages {
			page.Number += offset
			for i := range page.Lines {
				page.Lines[i].ID = lineID
				page.Lines[i].Page = page.Number
				lineID++
			}
			for i := range page.Images {
				page.Images[i].ID = fmt.Sprintf("IMG_%d", imageNum)
				page.Images[i].Page = page.Number
				imageNum++
			}
			all.Pages = append(all.Pages, page)
		}
	}
	return all, nil
}

// reconstruct sends every batch to the oracle and reconciles the answers.
// Failed batches are logged and skipped.
func (p *Pipeline) reconstruct(ctx context.Context, mode models.Mode, lay *layout, st *runState) []models.QuestionUnit {
	var collected []models.QuestionUnit
	for i, pageNums := range PlanBatches(len(lay.pages), p.batchSize, p.overlap) {
		if ctx.Err() != nil {
			break
		}
		st.batches++
		result, err := p.adapter.Reconstruct(ctx, lay.batch(i+1, pageNums), mode)
		if err != nil {
			st.failed++
			p.log.Error("Batch %d (pages %d-%d) failed: %v", i+1, pageNums[0], pageNums[len(pageNums)-1], err)
			continue
		}
		if st.title == "" {
			st.title = result.Title
		}
		if st.description == "" {
			st.description = result.Description
		}
		if result.RevisionNotes != "" {
			if st.revisionNotes != "" {
				st.revisionNotes += "<br>"
			}
			st.revisionNotes += result.RevisionNotes
		}
		collected = append(collected, result.Questions...)
	}
	return reconcile.Merge(collected)
}

// batch gathers the pages, primitives and candidates of one batch
func (lay *layout) batch(number int, pageNums []int) oracle.Batch {
	in := make(map[int]bool, len(pageNums))
	b := oracle.Batch{Number: number, TotalPages: len(lay.pages)}
	for _, n := range pageNums {
		in[n] = true
		if n-1 < len(lay.pages) {
			b.Pages = append(b.Pages, lay.pages[n-1])
		}
	}

	linePage := make(map[int]int, len(lay.lines))
	for _, l := range lay.lines {
		linePage[l.ID] = l.Page
		if in[l.Page] {
			b.Lines = append(b.Lines, l)
		}
	}
	for _, img := range lay.images {
		if in[img.Page] {
			b.Images = append(b.Images, img)
		}
	}
	for _, r := range lay.relations {
		if in[linePage[r.TextLineID]] {
			b.Relationships = append(b.Relationships, r)
		}
	}
	var units []models.QuestionUnit
	for _, u := range lay.units {
		if in[u.Page] {
			units = append(units, u)
		}
	}
	b.Candidates = segment.ToCandidates(units)
	return b
}

// topUp adds the deterministic units the oracle did not account for, so the
// oracle never reduces the question count. Deterministic units are matched
// to oracle units by normalized identifier, one to one, so a number that
// repeats across sections needs one oracle unit per occurrence. Unmatched
// units are placed after the output of the unit preceding them in document
// order.
func topUp(fromOracle, deterministic []models.QuestionUnit) []models.QuestionUnit {
	if len(fromOracle) >= len(deterministic) {
		return fromOracle
	}
	unused := make(map[reconcile.Key][]int)
	for i, u := range fromOracle {
		key := reconcile.NormalizeQuestionID(u.ID)
		if !key.Numeric && key.Raw == "" {
			continue
		}
		unused[key] = append(unused[key], i)
	}

	out := make([]models.QuestionUnit, 0, len(deterministic))
	next := 0
	for _, u := range deterministic {
		key := reconcile.NormalizeQuestionID(u.ID)
		if idx := unused[key]; len(idx) > 0 {
			unused[key] = idx[1:]
			if idx[0] >= next {
				out = append(out, fromOracle[next:idx[0]+1]...)
				next = idx[0] + 1
			}
			continue
		}
		out = append(out, u)
	}
	out = append(out, fromOracle[next:]...)
	return renumber(out)
}

// renumber returns a copy of units with Index assigned from 1
func renumber(units []models.QuestionUnit) []models.QuestionUnit {
	out := make([]models.QuestionUnit, len(units))
	for i, u := range units {
		u.Index = i + 1
		out[i] = u
	}
	return out
}

// referencedImages returns the visual elements named by any question
func referencedImages(questions []models.QuestionUnit, images []models.VisualElement) []models.VisualElement {
	used := make(map[string]bool)
	for _, q := range questions {
		if q.BoundImageID != "" {
			used[q.BoundImageID] = true
		}
		for _, letter := range models.OptionLetters {
			if id := q.OptionImages.Get(letter); id != nil && *id != "" {
				used[*id] = true
			}
		}
	}
	var out []models.VisualElement
	for _, img := range images {
		if used[img.ID] {
			out = append(out, img)
		}
	}
	return out
}

package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clauselens/clauselens/internal/chunk"
	"github.com/clauselens/clauselens/internal/engine"
	"github.com/clauselens/clauselens/internal/extract"
)

var (
	// ErrExtraction marks a document whose text could not be extracted.
	ErrExtraction = errors.New("document extraction failed")
	// ErrAnalysis marks a run where every chunk's completion call failed.
	ErrAnalysis = errors.New("document analysis failed")
)

// Tracker receives progress updates as the pipeline moves between
// stages. The job store satisfies this.
type Tracker interface {
	SetProgress(documentID string, progress int, step string) error
}

// Archiver persists extracted documents and completed analyses for the
// query engine and for durability across restarts. Optional. Satisfied
// by storage.Store.
type Archiver interface {
	SaveDocument(ctx context.Context, documentID, filename, text string, pages, words int, chunks []chunk.Chunk) error
	SaveAnalysis(ctx context.Context, result *Result) error
}

// Options tune the pipeline. Zero values fall back to the documented
// defaults.
type Options struct {
	ChunkSize           int
	ChunkOverlap        int
	DedupThreshold      float64
	CompletionTimeout   time.Duration
	MaxConcurrentChunks int
	// CategoryWeights overrides the built-in per-category weight table
	// for the overall score; nil keeps the defaults.
	CategoryWeights map[ClauseType]float64
}

func (o *Options) fill() {
	if o.DedupThreshold <= 0 {
		o.DedupThreshold = 0.7
	}
	if o.CompletionTimeout <= 0 {
		o.CompletionTimeout = 45 * time.Second
	}
	if o.MaxConcurrentChunks <= 0 {
		o.MaxConcurrentChunks = 3
	}
}

// Pipeline runs the staged analysis for one document: extract, chunk,
// per-chunk clause analysis, risk assessment, assembly. Progress is
// written to the tracker before each stage starts so status polls always
// name the work currently in flight.
type Pipeline struct {
	extractor  *extract.Extractor
	clauses    *ClauseExtractor
	classifier *Classifier
	tracker    Tracker
	archive    Archiver
	opts       Options
	logger     *slog.Logger
}

func NewPipeline(eng engine.Engine, tracker Tracker, archive Archiver, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	opts.fill()
	return &Pipeline{
		extractor:  extract.New(),
		clauses:    NewClauseExtractor(eng, logger),
		classifier: NewClassifier(eng),
		tracker:    tracker,
		archive:    archive,
		opts:       opts,
		logger:     logger,
	}
}

// Run analyzes one document and returns the assembled result. It does
// not touch terminal job state itself; the caller completes or fails the
// job based on the return value.
func (p *Pipeline) Run(ctx context.Context, documentID, filename string, data []byte) (*Result, error) {
	start := time.Now()

	p.tracker.SetProgress(documentID, 15, "Extracting document text")
	doc, err := p.extractor.Extract(ctx, filename, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	p.tracker.SetProgress(documentID, 25, "Splitting text into sections")
	chunks := chunk.Split(doc.Text, chunk.Options{
		MaxSize: p.opts.ChunkSize,
		Overlap: p.opts.ChunkOverlap,
	})

	p.tracker.SetProgress(documentID, 55, "Analyzing legal clauses")
	clauses, failedChunks, err := p.analyzeChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}
	clauses = Dedup(clauses, p.opts.DedupThreshold)

	p.tracker.SetProgress(documentID, 80, "Assessing risk levels")
	// Missing scores were already filled at extraction, where a nil
	// risk_score still distinguishes "omitted" from a genuine 0.
	for i := range clauses {
		clauses[i].RiskScore = clampScore(clauses[i].RiskScore)
	}
	docType := p.classifier.Classify(ctx, doc.Text)
	overall := OverallRisk(docType, clauses, p.opts.CategoryWeights)

	p.tracker.SetProgress(documentID, 100, "Compiling analysis results")
	if clauses == nil {
		clauses = []Clause{}
	}
	result := &Result{
		DocumentID:       documentID,
		DocumentType:     docType,
		OverallRiskScore: overall,
		RiskCategories:   Categorize(clauses),
		KeyClauses:       clauses,
		RedFlags:         RedFlags(clauses),
		Recommendations:  Recommendations(overall, clauses),
		Stats: Stats{
			ProcessingTimeSeconds: time.Since(start).Seconds(),
			TotalPages:            doc.Pages,
			TotalWords:            doc.Words,
			TotalChunks:           len(chunks),
			ClausesFound:          len(clauses),
			FailedChunks:          failedChunks,
		},
	}
	if result.RiskCategories == nil {
		result.RiskCategories = []RiskCategory{}
	}

	if p.archive != nil {
		if err := p.archive.SaveDocument(ctx, documentID, filename, doc.Text, doc.Pages, doc.Words, chunks); err != nil {
			p.logger.Warn("document archive failed", "id", documentID, "error", err)
		} else if err := p.archive.SaveAnalysis(ctx, result); err != nil {
			p.logger.Warn("analysis archive failed", "id", documentID, "error", err)
		}
	}
	return result, nil
}

// analyzeChunks fans chunk analysis out over a bounded worker group.
// A failing chunk degrades to keyword-scanned clauses; the run only
// fails when no chunk at all got a completion back.
func (p *Pipeline) analyzeChunks(ctx context.Context, chunks []chunk.Chunk) ([]Clause, int, error) {
	if len(chunks) == 0 {
		return []Clause{}, 0, nil
	}

	perChunk := make([][]Clause, len(chunks))
	if p.clauses.engine == nil {
		// Offline mode: keyword scanning is the analysis, not a degradation.
		for i, c := range chunks {
			perChunk[i] = p.clauses.ScanKeywords(c.Text)
		}
		var clauses []Clause
		for _, cs := range perChunk {
			clauses = append(clauses, cs...)
		}
		return clauses, 0, nil
	}

	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxConcurrentChunks)
	for i, c := range chunks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, p.opts.CompletionTimeout)
			defer cancel()

			found, err := p.clauses.ExtractChunk(cctx, c.Text)
			if err != nil {
				p.logger.Warn("chunk analysis degraded to keyword scan",
					"chunk", c.Index, "error", err)
				found = p.clauses.ScanKeywords(c.Text)
				mu.Lock()
				failed++
				mu.Unlock()
			}
			perChunk[i] = found
			return nil
		})
	}
	g.Wait()

	if failed == len(chunks) {
		return nil, failed, fmt.Errorf("%w: all %d sections failed analysis", ErrAnalysis, len(chunks))
	}

	var clauses []Clause
	for _, cs := range perChunk {
		clauses = append(clauses, cs...)
	}
	return clauses, failed, nil
}

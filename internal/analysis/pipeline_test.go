package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/clauselens/clauselens/internal/engine"
)

type progressRecord struct {
	progress int
	step     string
}

type recordingTracker struct {
	mu      sync.Mutex
	records []progressRecord
}

func (r *recordingTracker) SetProgress(documentID string, progress int, step string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, progressRecord{progress, step})
	return nil
}

const leaseText = `RESIDENTIAL LEASE AGREEMENT

This lease agreement is made between the landlord and the tenant for the premises at 12 Main Street.

Rent of $1,500 is due on the first day of each month. A late fee of $100 per day applies to overdue rent.

Either party may terminate this lease with thirty days written notice. The security deposit is non-refundable if the tenant vacates early.`

func clauseResponder(t *testing.T) func(ctx context.Context, messages []engine.Message, schema *engine.Schema) (string, error) {
	t.Helper()
	return func(ctx context.Context, messages []engine.Message, schema *engine.Schema) (string, error) {
		return `{"clauses":[{"type":"payment_terms","original_text":"A late fee of $100 per day applies to overdue rent.","simplified_text":"You pay $100 for every day rent is late.","risk_score":8.5,"explanation":"Uncapped daily fees escalate quickly.","recommendations":["Negotiate a cap on late fees"]}]}`, nil
	}
}

func TestPipelineRunHappyPath(t *testing.T) {
	tracker := &recordingTracker{}
	eng := &mockEngine{chatFn: clauseResponder(t)}
	p := NewPipeline(eng, tracker, nil, Options{ChunkSize: 2000, ChunkOverlap: 200}, nil)

	result, err := p.Run(context.Background(), "doc-1", "lease.txt", []byte(leaseText))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.DocumentID != "doc-1" {
		t.Errorf("DocumentID = %q", result.DocumentID)
	}
	if result.DocumentType != TypeRentalAgreement {
		t.Errorf("DocumentType = %q, want rental_agreement", result.DocumentType)
	}
	if len(result.KeyClauses) == 0 {
		t.Fatal("no clauses in result")
	}
	if result.OverallRiskScore <= 0 || result.OverallRiskScore > 10 {
		t.Errorf("OverallRiskScore = %.1f out of range", result.OverallRiskScore)
	}
	if result.Stats.TotalChunks == 0 || result.Stats.ClausesFound != len(result.KeyClauses) {
		t.Errorf("stats = %+v", result.Stats)
	}
	if result.Stats.FailedChunks != 0 {
		t.Errorf("FailedChunks = %d, want 0", result.Stats.FailedChunks)
	}

	// A clause at 8.5 must surface as a red flag quoting the source text.
	found := false
	for _, f := range result.RedFlags {
		if strings.Contains(f, "late fee") || strings.Contains(f, "Late fee") {
			found = true
		}
	}
	if !found {
		t.Errorf("red flags %v missing the late-fee clause", result.RedFlags)
	}
	if result.RiskCategories == nil || result.RedFlags == nil || result.Recommendations == nil {
		t.Error("result slices must never be nil")
	}
}

func TestPipelineProgressSequence(t *testing.T) {
	tracker := &recordingTracker{}
	eng := &mockEngine{chatFn: clauseResponder(t)}
	p := NewPipeline(eng, tracker, nil, Options{}, nil)

	if _, err := p.Run(context.Background(), "doc-1", "lease.txt", []byte(leaseText)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []progressRecord{
		{15, "Extracting document text"},
		{25, "Splitting text into sections"},
		{55, "Analyzing legal clauses"},
		{80, "Assessing risk levels"},
		{100, "Compiling analysis results"},
	}
	if len(tracker.records) != len(want) {
		t.Fatalf("got %d progress updates, want %d: %+v", len(tracker.records), len(want), tracker.records)
	}
	for i, w := range want {
		if tracker.records[i] != w {
			t.Errorf("update %d = %+v, want %+v", i, tracker.records[i], w)
		}
	}
}

func TestPipelineKeepsModelAssignedZeroScore(t *testing.T) {
	// The model may legitimately rate a clause 0; only an omitted
	// risk_score falls back to the keyword scorer.
	eng := &mockEngine{chatFn: func(ctx context.Context, messages []engine.Message, schema *engine.Schema) (string, error) {
		return `{"clauses":[{"type":"payment_terms","original_text":"A late fee of $100 per day applies to overdue rent.","simplified_text":"Daily late fee.","risk_score":0,"explanation":"Rated harmless by the model."}]}`, nil
	}}
	p := NewPipeline(eng, &recordingTracker{}, nil, Options{}, nil)

	result, err := p.Run(context.Background(), "doc-1", "lease.txt", []byte(leaseText))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.KeyClauses) == 0 {
		t.Fatal("no clauses in result")
	}
	// The clause text is keyword-heavy; a rescore would push it well
	// above zero.
	if got := result.KeyClauses[0].RiskScore; got != 0 {
		t.Errorf("RiskScore = %.1f, want the model's 0 kept", got)
	}
}

func TestPipelineExtractionFailure(t *testing.T) {
	tracker := &recordingTracker{}
	p := NewPipeline(&mockEngine{}, tracker, nil, Options{}, nil)

	_, err := p.Run(context.Background(), "doc-1", "scan.xlsx", []byte("data"))
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestPipelineDegradesOnPartialFailure(t *testing.T) {
	// Two chunks: first completion fails, second succeeds. The failed
	// chunk must contribute keyword-scanned clauses instead.
	var calls int
	var mu sync.Mutex
	eng := &mockEngine{
		chatFn: func(ctx context.Context, messages []engine.Message, schema *engine.Schema) (string, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				return "", errors.New("model unavailable")
			}
			return `{"clauses":[{"type":"termination","original_text":"Thirty days notice to terminate.","risk_score":3}]}`, nil
		},
	}

	long := strings.Repeat("A late fee of $100 per day applies to overdue rent payments. ", 40)
	tracker := &recordingTracker{}
	p := NewPipeline(eng, tracker, nil, Options{ChunkSize: 1200, ChunkOverlap: 100, MaxConcurrentChunks: 1}, nil)

	result, err := p.Run(context.Background(), "doc-1", "doc.txt", []byte(long))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stats.FailedChunks != 1 {
		t.Errorf("FailedChunks = %d, want 1", result.Stats.FailedChunks)
	}
	if len(result.KeyClauses) == 0 {
		t.Error("degraded run produced no clauses")
	}
}

func TestPipelineFailsWhenAllChunksFail(t *testing.T) {
	eng := &mockEngine{
		chatFn: func(ctx context.Context, messages []engine.Message, schema *engine.Schema) (string, error) {
			return "", errors.New("model unavailable")
		},
	}
	tracker := &recordingTracker{}
	p := NewPipeline(eng, tracker, nil, Options{}, nil)

	_, err := p.Run(context.Background(), "doc-1", "lease.txt", []byte(leaseText))
	if !errors.Is(err, ErrAnalysis) {
		t.Fatalf("err = %v, want ErrAnalysis", err)
	}
}

func TestPipelineOfflineMode(t *testing.T) {
	tracker := &recordingTracker{}
	p := NewPipeline(nil, tracker, nil, Options{}, nil)

	result, err := p.Run(context.Background(), "doc-1", "lease.txt", []byte(leaseText))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stats.FailedChunks != 0 {
		t.Errorf("FailedChunks = %d, keyword-only mode is not a failure", result.Stats.FailedChunks)
	}
	if len(result.KeyClauses) == 0 {
		t.Error("keyword scan found no clauses in a lease")
	}
}

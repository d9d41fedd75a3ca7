package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/clauselens/clauselens/internal/analysis"
	"github.com/clauselens/clauselens/internal/chunk"
	"github.com/clauselens/clauselens/internal/jobs"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	text := "Rent is due monthly.\n\nThirty days notice to terminate."
	chunks := chunk.Split(text, chunk.Options{MaxSize: 30, Overlap: 5})
	if err := s.SaveDocument(ctx, "doc-1", "lease.txt", text, 1, 9, chunks); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	doc, err := s.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Filename != "lease.txt" || doc.Text != text {
		t.Errorf("document = %+v", doc)
	}
	if doc.Pages != 1 || doc.Words != 9 {
		t.Errorf("pages/words = %d/%d", doc.Pages, doc.Words)
	}

	got, err := s.GetChunks(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if len(got) != len(chunks) {
		t.Fatalf("got %d chunks, want %d", len(got), len(chunks))
	}
	if chunk.Reassemble(got) != text {
		t.Error("archived chunks do not reassemble to the original text")
	}
}

func TestSaveDocumentReplacesChunks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.SaveDocument(ctx, "doc-1", "a.txt", "first version", 1, 2, chunk.Split("first version", chunk.Options{}))
	s.SaveDocument(ctx, "doc-1", "a.txt", "second", 1, 1, chunk.Split("second", chunk.Options{}))

	got, err := s.GetChunks(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if chunk.Reassemble(got) != "second" {
		t.Errorf("chunks not replaced: %q", chunk.Reassemble(got))
	}
}

func TestAnalysisRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveDocument(ctx, "doc-1", "a.txt", "text", 1, 1, nil); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	result := &analysis.Result{
		DocumentID:       "doc-1",
		DocumentType:     analysis.TypeRentalAgreement,
		OverallRiskScore: 7.5,
		RiskCategories:   []analysis.RiskCategory{{Category: "payment_terms", Score: 8, ClauseCount: 2}},
		KeyClauses:       []analysis.Clause{{ID: "c1", Type: analysis.ClausePaymentTerms, OriginalText: "Late fee.", RiskScore: 8}},
		RedFlags:         []string{"flag"},
		Recommendations:  []string{"rec"},
	}
	if err := s.SaveAnalysis(ctx, result); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	got, err := s.GetAnalysis(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if got.OverallRiskScore != 7.5 || len(got.KeyClauses) != 1 {
		t.Errorf("result = %+v", got)
	}

	// Upsert replaces.
	result.OverallRiskScore = 4.0
	if err := s.SaveAnalysis(ctx, result); err != nil {
		t.Fatalf("SaveAnalysis upsert: %v", err)
	}
	got, _ = s.GetAnalysis(ctx, "doc-1")
	if got.OverallRiskScore != 4.0 {
		t.Errorf("OverallRiskScore = %.1f after upsert", got.OverallRiskScore)
	}
}

func TestNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetDocument(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetAnalysis(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAnalysis err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetChunks(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetChunks err = %v, want ErrNotFound", err)
	}
}

func TestMigrationsApplied(t *testing.T) {
	s := openTestStore(t)
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		t.Fatalf("schema_version: %v", err)
	}
	if count == 0 {
		t.Error("no migrations recorded")
	}
}

func TestRehydrateRestoresArchivedAnalyses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.SaveDocument(ctx, "doc-1", "lease.txt", "text", 1, 1, nil)
	result := &analysis.Result{
		DocumentID:       "doc-1",
		DocumentType:     analysis.TypeRentalAgreement,
		OverallRiskScore: 6.0,
		RiskCategories:   []analysis.RiskCategory{},
		KeyClauses:       []analysis.Clause{},
		RedFlags:         []string{},
		Recommendations:  []string{},
	}
	if err := s.SaveAnalysis(ctx, result); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	// Archived document whose analysis write never happened.
	s.SaveDocument(ctx, "doc-2", "draft.txt", "text", 1, 1, nil)

	js := jobs.NewStore()
	restored, err := s.Rehydrate(ctx, js, nil)
	if err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}
	if restored != 1 {
		t.Fatalf("restored = %d, want 1", restored)
	}

	job, err := js.Get("doc-1")
	if err != nil {
		t.Fatalf("Get after rehydrate: %v", err)
	}
	if job.Status != jobs.StatusCompleted || job.Filename != "lease.txt" {
		t.Errorf("job = %+v", job)
	}
	res, err := js.CompletedResult("doc-1")
	if err != nil {
		t.Fatalf("CompletedResult after rehydrate: %v", err)
	}
	if res.OverallRiskScore != 6.0 {
		t.Errorf("OverallRiskScore = %.1f", res.OverallRiskScore)
	}

	if _, err := js.Get("doc-2"); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("err = %v, document without analysis must not be restored", err)
	}
}

func TestRehydrateSkipsLiveJobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.SaveDocument(ctx, "doc-1", "a.txt", "text", 1, 1, nil)
	s.SaveAnalysis(ctx, &analysis.Result{DocumentID: "doc-1"})

	js := jobs.NewStore()
	js.Create("doc-1", "a.txt", false)
	js.SetProcessing("doc-1", "start")

	restored, err := s.Rehydrate(ctx, js, nil)
	if err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}
	if restored != 0 {
		t.Errorf("restored = %d, want 0", restored)
	}
	job, _ := js.Get("doc-1")
	if job.Status != jobs.StatusProcessing {
		t.Errorf("Status = %q, live job must win", job.Status)
	}
}

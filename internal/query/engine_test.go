package query

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/clauselens/clauselens/internal/analysis"
	"github.com/clauselens/clauselens/internal/chunk"
	"github.com/clauselens/clauselens/internal/engine"
	"github.com/clauselens/clauselens/internal/jobs"
)

type mockResults struct {
	result *analysis.Result
	err    error
}

func (m *mockResults) CompletedResult(documentID string) (*analysis.Result, error) {
	return m.result, m.err
}

type mockChunks struct {
	chunks []chunk.Chunk
	err    error
}

func (m *mockChunks) GetChunks(ctx context.Context, documentID string) ([]chunk.Chunk, error) {
	return m.chunks, m.err
}

type mockEngine struct {
	chatFn func(ctx context.Context, messages []engine.Message, schema *engine.Schema) (string, error)
}

func (m *mockEngine) Chat(ctx context.Context, messages []engine.Message, schema *engine.Schema) (string, error) {
	if m.chatFn != nil {
		return m.chatFn(ctx, messages, schema)
	}
	return `{"answer":"The lease requires thirty days notice.","confidence":0.8}`, nil
}

func (m *mockEngine) Ping(ctx context.Context) error { return nil }

func leaseResult() *analysis.Result {
	return &analysis.Result{
		DocumentID:       "doc-1",
		DocumentType:     analysis.TypeRentalAgreement,
		OverallRiskScore: 6.0,
		KeyClauses: []analysis.Clause{
			{
				Type:           analysis.ClausePaymentTerms,
				OriginalText:   "Rent of $1,500 is due on the first day of each month. A late fee of $100 per day applies.",
				SimplifiedText: "Pay rent monthly; late rent costs $100 per day.",
				RiskScore:      8.5,
			},
			{
				Type:           analysis.ClauseTermination,
				OriginalText:   "Either party may terminate this lease with thirty days written notice.",
				SimplifiedText: "Either side can end the lease with 30 days notice.",
				RiskScore:      3.0,
			},
		},
	}
}

func TestAnswerUnknownDocument(t *testing.T) {
	e := NewEngine(&mockResults{err: jobs.ErrNotFound}, nil, &mockEngine{}, Options{}, nil)

	_, err := e.Answer(context.Background(), "nope", "what are the payment terms?")
	if !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("err = %v, want jobs.ErrNotFound passed through", err)
	}
}

func TestAnswerRanksMatchingCategoryFirst(t *testing.T) {
	e := NewEngine(&mockResults{result: leaseResult()}, nil, &mockEngine{}, Options{}, nil)

	resp, err := e.Answer(context.Background(), "doc-1", "How do I terminate the lease early?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(resp.RelevantClauses) == 0 {
		t.Fatal("no relevant clauses")
	}
	if !strings.Contains(resp.RelevantClauses[0], "end the lease") {
		t.Errorf("top clause = %q, want the termination clause", resp.RelevantClauses[0])
	}
	if !strings.Contains(resp.Sources[0], "termination") {
		t.Errorf("top source = %q", resp.Sources[0])
	}
}

func TestAnswerDeterministic(t *testing.T) {
	e := NewEngine(&mockResults{result: leaseResult()}, &mockChunks{
		chunks: chunk.Split("Security deposit is two months of rent, refundable within 30 days of move out.", chunk.Options{}),
	}, &mockEngine{}, Options{}, nil)

	first, err := e.Answer(context.Background(), "doc-1", "what happens to my security deposit?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	second, err := e.Answer(context.Background(), "doc-1", "what happens to my security deposit?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("responses differ:\n%+v\n%+v", first, second)
	}
}

func TestAnswerIncludesArchivedChunks(t *testing.T) {
	e := NewEngine(&mockResults{result: leaseResult()}, &mockChunks{
		chunks: []chunk.Chunk{{Index: 0, Text: "Pets are allowed with a $300 pet deposit per animal."}},
	}, &mockEngine{}, Options{}, nil)

	resp, err := e.Answer(context.Background(), "doc-1", "are pets allowed in the apartment?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	found := false
	for _, s := range resp.Sources {
		if strings.HasPrefix(s, "section") {
			found = true
		}
	}
	if !found {
		t.Errorf("sources %v missing the archived section", resp.Sources)
	}
}

func TestAnswerOfflineFallback(t *testing.T) {
	eng := &mockEngine{
		chatFn: func(ctx context.Context, messages []engine.Message, schema *engine.Schema) (string, error) {
			return "", errors.New("backend down")
		},
	}
	e := NewEngine(&mockResults{result: leaseResult()}, nil, eng, Options{}, nil)

	resp, err := e.Answer(context.Background(), "doc-1", "what is the late fee for overdue rent?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.Answer == "" {
		t.Fatal("fallback produced no answer")
	}
	if !strings.Contains(resp.Answer, "late") {
		t.Errorf("fallback answer %q does not surface the matching clause", resp.Answer)
	}
	if resp.Confidence > 0.5 {
		t.Errorf("Confidence = %.2f, fallback must stay low", resp.Confidence)
	}
}

func TestAnswerNoMatchLowersConfidence(t *testing.T) {
	eng := &mockEngine{
		chatFn: func(ctx context.Context, messages []engine.Message, schema *engine.Schema) (string, error) {
			return `{"answer":"The document does not cover this.","confidence":0.5}`, nil
		},
	}
	e := NewEngine(&mockResults{result: leaseResult()}, nil, eng, Options{}, nil)

	resp, err := e.Answer(context.Background(), "doc-1", "zygomorphic cassowary philately")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(resp.RelevantClauses) != 0 {
		t.Errorf("RelevantClauses = %v, want none for an unrelated question", resp.RelevantClauses)
	}
	if resp.Confidence >= 0.5 {
		t.Errorf("Confidence = %.2f, want penalized below the model's 0.5", resp.Confidence)
	}
}

func TestRankTieBreaksByDocumentOrder(t *testing.T) {
	candidates := []candidate{
		{text: "the quick brown fox", order: 0},
		{text: "the quick brown fox", order: 1},
	}
	top := rank("quick brown fox", candidates, 5)
	if len(top) != 2 || top[0].order != 0 {
		t.Errorf("tie not broken by document order: %+v", top)
	}
}

func TestRankHighRiskBoost(t *testing.T) {
	candidates := []candidate{
		{text: "deposit is refundable", riskScore: 2, order: 0},
		{text: "deposit is refundable", riskScore: 9, order: 1},
	}
	top := rank("is the deposit refundable", candidates, 5)
	if top[0].order != 1 {
		t.Error("high-risk candidate must outrank an equal low-risk one")
	}
}

package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeJobStore records the lifecycle calls the service makes.
type fakeJobStore struct {
	mu          sync.Mutex
	created     []string
	processing  bool
	completed   *Result
	failedWith  string
	enhancement *Enhancement
}

func (f *fakeJobStore) Create(documentID, filename string, enhance bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, documentID)
	return nil
}

func (f *fakeJobStore) SetProcessing(documentID, step string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processing = true
	return nil
}

func (f *fakeJobStore) SetProgress(documentID string, progress int, step string) error {
	return nil
}

func (f *fakeJobStore) Complete(documentID string, result *Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = result
	return nil
}

func (f *fakeJobStore) Fail(documentID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedWith = message
	return nil
}

func (f *fakeJobStore) MergeEnhancement(documentID string, enh *Enhancement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enhancement = enh
	return nil
}

// inlineSubmitter runs tasks synchronously so tests need no goroutine
// coordination.
type inlineSubmitter struct {
	submitted int
	err       error
}

func (s *inlineSubmitter) Submit(id string, fn func(ctx context.Context) error) error {
	if s.err != nil {
		return s.err
	}
	s.submitted++
	return fn(context.Background())
}

type fakeEnhancer struct {
	enhanceFn func(ctx context.Context, result *Result) *Enhancement
}

func (f *fakeEnhancer) Enhance(ctx context.Context, result *Result) *Enhancement {
	if f.enhanceFn != nil {
		return f.enhanceFn(ctx, result)
	}
	return &Enhancement{Enhanced: false, AgentsUsed: []string{}}
}

func TestServiceCompletesJob(t *testing.T) {
	store := &fakeJobStore{}
	p := NewPipeline(&mockEngine{chatFn: clauseResponder(t)}, store, nil, Options{}, nil)
	svc := NewService(store, &inlineSubmitter{}, &inlineSubmitter{}, p, nil, nil)

	if err := svc.SubmitDocument("doc-1", "lease.txt", []byte(leaseText), false); err != nil {
		t.Fatalf("SubmitDocument: %v", err)
	}

	if !store.processing {
		t.Error("job never marked processing")
	}
	if store.completed == nil {
		t.Fatal("job not completed")
	}
	if store.failedWith != "" {
		t.Errorf("unexpected failure: %q", store.failedWith)
	}
	// Without enhancement the result still carries the block, marked off.
	if store.completed.Enhancement == nil {
		t.Fatal("completed result missing enhancement block")
	}
	if store.completed.Enhancement.Enhanced {
		t.Error("enhanced = true for a plain analysis")
	}
	if store.completed.Enhancement.AgentsUsed == nil || len(store.completed.Enhancement.AgentsUsed) != 0 {
		t.Errorf("agents_used = %v, want empty", store.completed.Enhancement.AgentsUsed)
	}
}

func TestServiceFailsJobWithSanitizedMessage(t *testing.T) {
	store := &fakeJobStore{}
	p := NewPipeline(&mockEngine{}, store, nil, Options{}, nil)
	svc := NewService(store, &inlineSubmitter{}, &inlineSubmitter{}, p, nil, nil)

	err := svc.SubmitDocument("doc-1", "scan.xlsx", []byte("junk"), false)
	if err == nil {
		t.Fatal("expected pipeline error to propagate")
	}
	if store.failedWith != "Unable to extract text from the document" {
		t.Errorf("failure message = %q", store.failedWith)
	}
	if store.completed != nil {
		t.Error("failed job must not complete")
	}
}

func TestServiceQueuesEnhancementAfterCompletion(t *testing.T) {
	store := &fakeJobStore{}
	enhances := &inlineSubmitter{}
	enhancer := &fakeEnhancer{
		enhanceFn: func(ctx context.Context, result *Result) *Enhancement {
			if result == nil || result.DocumentID != "doc-1" {
				t.Errorf("enhancer received %+v", result)
			}
			return &Enhancement{
				ComplianceAssessment: "No regulatory issues found.",
				Enhanced:             true,
				AgentsUsed:           []string{"compliance_expert"},
			}
		},
	}
	p := NewPipeline(&mockEngine{chatFn: clauseResponder(t)}, store, nil, Options{}, nil)
	svc := NewService(store, &inlineSubmitter{}, enhances, p, enhancer, nil)

	if err := svc.SubmitDocument("doc-1", "lease.txt", []byte(leaseText), true); err != nil {
		t.Fatalf("SubmitDocument: %v", err)
	}

	if enhances.submitted != 1 {
		t.Fatalf("enhancement submitted %d times, want 1", enhances.submitted)
	}
	if store.enhancement == nil || !store.enhancement.Enhanced {
		t.Error("enhancement not merged into store")
	}
	if store.completed == nil {
		t.Error("base result must complete before enhancement")
	}
}

func TestServiceEnhancementQueueFullIsNotFatal(t *testing.T) {
	store := &fakeJobStore{}
	enhances := &inlineSubmitter{err: errors.New("queue closed")}
	p := NewPipeline(&mockEngine{chatFn: clauseResponder(t)}, store, nil, Options{}, nil)
	svc := NewService(store, &inlineSubmitter{}, enhances, p, &fakeEnhancer{}, nil)

	if err := svc.SubmitDocument("doc-1", "lease.txt", []byte(leaseText), true); err != nil {
		t.Fatalf("SubmitDocument: %v", err)
	}
	if store.completed == nil {
		t.Error("job must stay completed when enhancement cannot queue")
	}
	if store.failedWith != "" {
		t.Errorf("job failed unexpectedly: %q", store.failedWith)
	}
}

package analysis

import (
	"context"
	"errors"
	"log/slog"
)

// JobStore is the slice of the job store the service drives. Satisfied
// by jobs.Store.
type JobStore interface {
	Create(documentID, filename string, enhance bool) error
	SetProcessing(documentID, step string) error
	Complete(documentID string, result *Result) error
	Fail(documentID, message string) error
	MergeEnhancement(documentID string, enh *Enhancement) error
}

// Submitter queues background work. Satisfied by jobs.Dispatcher.
type Submitter interface {
	Submit(id string, fn func(ctx context.Context) error) error
}

// Enhancer runs the optional second analysis phase. Satisfied by
// enhance.Enhancer.
type Enhancer interface {
	Enhance(ctx context.Context, result *Result) *Enhancement
}

// Service accepts uploaded documents and runs them through the pipeline
// in the background. Analysis and enhancement use separate queues so a
// slow enhancement never blocks fresh uploads.
type Service struct {
	store    JobStore
	analyses Submitter
	enhances Submitter
	pipeline *Pipeline
	enhancer Enhancer
	logger   *slog.Logger
}

func NewService(store JobStore, analyses, enhances Submitter, pipeline *Pipeline, enhancer Enhancer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		analyses: analyses,
		enhances: enhances,
		pipeline: pipeline,
		enhancer: enhancer,
		logger:   logger,
	}
}

// SubmitDocument registers a pending job and queues the analysis.
// It returns as soon as the job is queued; progress is observable
// through the job store immediately.
func (s *Service) SubmitDocument(documentID, filename string, data []byte, enhance bool) error {
	if err := s.store.Create(documentID, filename, enhance); err != nil {
		return err
	}
	return s.analyses.Submit(documentID, func(ctx context.Context) error {
		return s.process(ctx, documentID, filename, data, enhance)
	})
}

func (s *Service) process(ctx context.Context, documentID, filename string, data []byte, enhance bool) error {
	s.store.SetProcessing(documentID, "Starting analysis")

	result, err := s.pipeline.Run(ctx, documentID, filename, data)
	if err != nil {
		s.logger.Error("analysis failed", "id", documentID, "error", err)
		s.store.Fail(documentID, failureMessage(err))
		return err
	}

	willEnhance := enhance && s.enhancer != nil && s.enhances != nil
	if !willEnhance {
		// The projection always carries an enhancement block so clients
		// can check `enhanced` without probing for the key.
		result = result.WithEnhancement(&Enhancement{AgentsUsed: []string{}})
	}

	s.store.Complete(documentID, result)
	s.logger.Info("analysis completed", "id", documentID,
		"clauses", result.Stats.ClausesFound, "risk", result.OverallRiskScore)

	if willEnhance {
		if err := s.enhances.Submit(documentID, func(ctx context.Context) error {
			enh := s.enhancer.Enhance(ctx, result)
			s.store.MergeEnhancement(documentID, enh)
			s.logger.Info("enhancement merged", "id", documentID, "agents", len(enh.AgentsUsed))
			return nil
		}); err != nil {
			// The base analysis already completed; losing the
			// enhancement is a degradation, not a failure.
			s.logger.Warn("enhancement not queued", "id", documentID, "error", err)
		}
	}
	return nil
}

// failureMessage maps internal pipeline errors to the message stored on
// the job. Raw error chains stay in the logs only.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, ErrExtraction):
		return "Unable to extract text from the document"
	case errors.Is(err, ErrAnalysis):
		return "Analysis failed for every document section"
	default:
		return "Analysis failed"
	}
}

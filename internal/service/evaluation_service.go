package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-appgrader/internal/evaluation"
	"github.com/noah-isme/gema-appgrader/internal/models"
	"github.com/noah-isme/gema-appgrader/internal/observability"
	"github.com/noah-isme/gema-appgrader/internal/repository"
	"github.com/noah-isme/gema-appgrader/pkg/events"
)

// Evaluator grades one target.
type Evaluator interface {
	Run(ctx context.Context, target evaluation.Target) []evaluation.Outcome
}

// SubmissionSubscriber streams accepted submissions.
type SubmissionSubscriber interface {
	Subscribe(ctx context.Context, handler events.Handler) error
}

// EvaluationConfig tunes the evaluation sweep.
type EvaluationConfig struct {
	// Delay separates successive submissions in EvaluateAll.
	Delay time.Duration
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// EvaluationReport summarises one evaluation pass.
type EvaluationReport struct {
	Outcomes []evaluation.Outcome
	Stored   int
	Failed   int
}

// EvaluationService runs the check battery and records results.
type EvaluationService interface {
	Evaluate(ctx context.Context, submission models.Submission) (EvaluationReport, error)
	EvaluateAll(ctx context.Context, filter repository.SubmissionFilter) SweepSummary
	Follow(ctx context.Context, subscriber SubmissionSubscriber) error
}

type evaluationService struct {
	submissions repository.SubmissionRepository
	results     repository.ResultRepository
	evaluator   Evaluator
	cfg         EvaluationConfig
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewEvaluationService constructs the evaluation service.
func NewEvaluationService(store repository.Store, evaluator Evaluator, cfg EvaluationConfig, logger zerolog.Logger) EvaluationService {
	if cfg.Delay < 0 {
		cfg.Delay = 0
	} else if cfg.Delay == 0 {
		cfg.Delay = defaultIssueDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &evaluationService{
		submissions: store.Submissions,
		results:     store.Results,
		evaluator:   evaluator,
		cfg:         cfg,
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-appgrader/internal/service/evaluation"),
	}
}

func (s *evaluationService) Evaluate(ctx context.Context, submission models.Submission) (EvaluationReport, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.evaluate", trace.WithAttributes(
		attribute.String("task.id", submission.Task),
		attribute.Int("task.round", submission.Round),
	))
	defer span.End()

	log := s.logger.With().Str("email", maskEmailAddress(submission.Email)).Str("task", submission.Task).Int("round", submission.Round).Logger()

	outcomes := s.evaluator.Run(ctx, evaluation.Target{
		TaskID:    submission.Task,
		RepoURL:   submission.RepoURL,
		CommitSHA: submission.CommitSHA,
		PagesURL:  submission.PagesURL,
	})

	report := EvaluationReport{Outcomes: outcomes}
	evaluatedAt := s.cfg.Now().UTC()
	for _, outcome := range outcomes {
		observability.CheckScores().WithLabelValues(outcome.Name).Observe(outcome.Score)

		result := models.Result{
			Timestamp: evaluatedAt,
			Email:     submission.Email,
			Task:      submission.Task,
			Round:     submission.Round,
			RepoURL:   submission.RepoURL,
			CommitSHA: submission.CommitSHA,
			PagesURL:  submission.PagesURL,
			CheckName: outcome.Name,
			Score:     outcome.Score,
			Reason:    outcome.Reason,
			Logs:      outcome.Logs,
		}
		if err := s.results.Append(ctx, &result); err != nil {
			span.RecordError(err)
			log.Error().Err(err).Str("check", outcome.Name).Msg("failed to store result")
			report.Failed++
			continue
		}
		report.Stored++
		log.Debug().Str("check", outcome.Name).Float64("score", outcome.Score).Str("reason", outcome.Reason).Msg("check recorded")
	}

	if report.Failed > 0 {
		span.SetStatus(codes.Error, "results not stored")
		return report, fmt.Errorf("%w: %d of %d results not stored", ErrStorage, report.Failed, len(outcomes))
	}

	log.Info().Int("checks", report.Stored).Msg("submission evaluated")
	return report, nil
}

func (s *evaluationService) EvaluateAll(ctx context.Context, filter repository.SubmissionFilter) SweepSummary {
	var summary SweepSummary

	submissions, err := s.submissions.List(ctx, filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list submissions")
		summary.Errors++
		return summary
	}

	for i, submission := range submissions {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			if err := s.cfg.Sleep(ctx, s.cfg.Delay); err != nil {
				break
			}
		}

		if _, err := s.Evaluate(ctx, submission); err != nil {
			summary.record(outcomeError, "evaluate")
			continue
		}
		summary.record(outcomeProcessed, "evaluate")
	}

	s.logger.Info().
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("errors", summary.Errors).
		Msg("evaluation sweep complete")
	return summary
}

func (s *evaluationService) Follow(ctx context.Context, subscriber SubmissionSubscriber) error {
	s.logger.Info().Msg("waiting for accepted submissions")
	return subscriber.Subscribe(ctx, func(ctx context.Context, event events.SubmissionAccepted) {
		submission := models.Submission{
			Timestamp: event.AcceptedAt,
			Email:     event.Email,
			Task:      event.Task,
			Round:     event.Round,
			RepoURL:   event.RepoURL,
			CommitSHA: event.CommitSHA,
			PagesURL:  event.PagesURL,
		}
		if _, err := s.Evaluate(ctx, submission); err != nil {
			s.logger.Error().Err(err).Str("task", event.Task).Msg("follow-mode evaluation failed")
		}
	})
}

package service

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-appgrader/internal/catalog"
	"github.com/noah-isme/gema-appgrader/internal/dto"
	"github.com/noah-isme/gema-appgrader/internal/models"
	"github.com/noah-isme/gema-appgrader/internal/observability"
	"github.com/noah-isme/gema-appgrader/internal/repository"
)

const (
	defaultIssueDelay = time.Second
	defaultRetryDelay = 2 * time.Second
)

// Deliverer posts a JSON payload and reports the HTTP status the endpoint answered with.
type Deliverer interface {
	Post(ctx context.Context, endpoint string, payload interface{}) (int, error)
}

// SweepSummary counts what a batch sweep did with its items.
type SweepSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// IssuerConfig tunes the task issuer. Zero values fall back to defaults.
type IssuerConfig struct {
	EvaluationURL string
	// Delay separates successive deliveries in the issuance sweeps.
	Delay time.Duration
	// RetryDelay separates successive re-deliveries in the retry sweep.
	RetryDelay time.Duration
	Now        func() time.Time
	NewNonce   func() string
	// PickRound2 returns an index in [0, n).
	PickRound2 func(n int) int
	Sleep      func(ctx context.Context, d time.Duration) error
}

// TaskIssuer selects, persists and delivers tasks.
type TaskIssuer interface {
	IssueRound1(ctx context.Context, registrations []Registration) SweepSummary
	IssueRound2(ctx context.Context) SweepSummary
	RetryRound2(ctx context.Context) SweepSummary
}

type taskIssuer struct {
	tasks       repository.TaskRepository
	submissions repository.SubmissionRepository
	catalog     *catalog.Catalog
	deliverer   Deliverer
	cfg         IssuerConfig
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewTaskIssuer constructs the issuer.
func NewTaskIssuer(store repository.Store, cat *catalog.Catalog, deliverer Deliverer, cfg IssuerConfig, logger zerolog.Logger) TaskIssuer {
	if cfg.Delay < 0 {
		cfg.Delay = 0
	} else if cfg.Delay == 0 {
		cfg.Delay = defaultIssueDelay
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	} else if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewNonce == nil {
		cfg.NewNonce = func() string { return uuid.NewString() }
	}
	if cfg.PickRound2 == nil {
		cfg.PickRound2 = rand.Intn
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}

	return &taskIssuer{
		tasks:       store.Tasks,
		submissions: store.Submissions,
		catalog:     cat,
		deliverer:   deliverer,
		cfg:         cfg,
		logger:      logger.With().Str("component", "task_issuer").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-appgrader/internal/service/issuer"),
	}
}

func (s *taskIssuer) IssueRound1(ctx context.Context, registrations []Registration) SweepSummary {
	ctx, span := s.tracer.Start(ctx, "issuer.round1")
	defer span.End()

	var summary SweepSummary
	first := true
	for _, reg := range registrations {
		if ctx.Err() != nil {
			break
		}
		if !first {
			if err := s.cfg.Sleep(ctx, s.cfg.Delay); err != nil {
				break
			}
		}

		outcome := s.issueRound1(ctx, reg)
		summary.record(outcome, "round1")
		if outcome != outcomeSkipped {
			first = false
		}
	}

	span.SetAttributes(attribute.Int("sweep.processed", summary.Processed), attribute.Int("sweep.errors", summary.Errors))
	s.logSummary("round 1 issuance complete", summary)
	return summary
}

func (s *taskIssuer) issueRound1(ctx context.Context, reg Registration) sweepOutcome {
	email := normalizeEmail(reg.Email)
	log := s.logger.With().Str("email", maskEmailAddress(email)).Logger()

	exists, err := s.tasks.Exists(ctx, repository.TaskFilter{Email: email, Round: 1})
	if err != nil {
		log.Error().Err(err).Msg("round 1 dedup lookup failed")
		return outcomeError
	}
	if exists {
		log.Info().Msg("round 1 task already issued")
		return outcomeSkipped
	}

	family := s.catalog.SelectRound1(email, catalog.HourBucket(s.cfg.Now()))
	template := family.Round1

	task := models.Task{
		Timestamp:     s.cfg.Now().UTC(),
		Email:         email,
		Task:          catalog.TaskID(family.ID, template.Brief, template.Attachments),
		Round:         1,
		Nonce:         s.cfg.NewNonce(),
		Brief:         template.Brief,
		EvaluationURL: s.cfg.EvaluationURL,
		Endpoint:      reg.Endpoint,
		Secret:        reg.Secret,
	}
	task.SetAttachments(template.Attachments)
	task.SetChecks(template.Checks)

	return s.persistAndDeliver(ctx, &task, log)
}

func (s *taskIssuer) IssueRound2(ctx context.Context) SweepSummary {
	ctx, span := s.tracer.Start(ctx, "issuer.round2")
	defer span.End()

	var summary SweepSummary
	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{Round: 1})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list round 1 submissions failed")
		s.logger.Error().Err(err).Msg("failed to list round 1 submissions")
		summary.Errors++
		return summary
	}

	first := true
	for _, submission := range submissions {
		if ctx.Err() != nil {
			break
		}
		if !first {
			if err := s.cfg.Sleep(ctx, s.cfg.Delay); err != nil {
				break
			}
		}

		outcome := s.issueRound2(ctx, submission)
		summary.record(outcome, "round2")
		if outcome != outcomeSkipped {
			first = false
		}
	}

	s.logSummary("round 2 issuance complete", summary)
	return summary
}

func (s *taskIssuer) issueRound2(ctx context.Context, submission models.Submission) sweepOutcome {
	log := s.logger.With().Str("email", maskEmailAddress(submission.Email)).Str("task", submission.Task).Logger()

	exists, err := s.tasks.Exists(ctx, repository.TaskFilter{Email: submission.Email, Task: submission.Task, Round: 2})
	if err != nil {
		log.Error().Err(err).Msg("round 2 dedup lookup failed")
		return outcomeError
	}
	if exists {
		return outcomeSkipped
	}

	round1, err := s.findRound1Task(ctx, submission)
	if err != nil {
		log.Error().Err(err).Msg("cannot derive round 2 task")
		return outcomeError
	}

	family, err := s.catalog.TemplatesFor(catalog.FamilyFromTaskID(submission.Task))
	if err != nil {
		log.Error().Err(err).Msg("no round 2 templates for task")
		return outcomeError
	}
	template := family.Round2[s.cfg.PickRound2(len(family.Round2))]

	evaluationURL := s.cfg.EvaluationURL
	if evaluationURL == "" {
		evaluationURL = round1.EvaluationURL
	}

	task := models.Task{
		Timestamp:     s.cfg.Now().UTC(),
		Email:         submission.Email,
		Task:          submission.Task,
		Round:         2,
		Nonce:         s.cfg.NewNonce(),
		Brief:         template.Brief,
		EvaluationURL: evaluationURL,
		Endpoint:      round1.Endpoint,
		Secret:        round1.Secret,
	}
	task.SetAttachments(template.Attachments)
	task.SetChecks(template.Checks)

	return s.persistAndDeliver(ctx, &task, log)
}

func (s *taskIssuer) findRound1Task(ctx context.Context, submission models.Submission) (models.Task, error) {
	tasks, err := s.tasks.List(ctx, repository.TaskFilter{Email: submission.Email, Task: submission.Task, Round: 1})
	if err != nil {
		return models.Task{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if len(tasks) == 0 {
		return models.Task{}, ErrNoRound1Task
	}
	return tasks[0], nil
}

// persistAndDeliver stores the task before delivery so a crash mid-delivery still leaves
// the issuance on record, then records whatever status the endpoint returned.
func (s *taskIssuer) persistAndDeliver(ctx context.Context, task *models.Task, log zerolog.Logger) sweepOutcome {
	ctx, span := s.tracer.Start(ctx, "issuer.deliver", trace.WithAttributes(
		attribute.String("task.id", task.Task),
		attribute.Int("task.round", task.Round),
	))
	defer span.End()

	if err := s.tasks.Upsert(ctx, task); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist task failed")
		log.Error().Err(err).Str("task", task.Task).Msg("failed to persist task")
		return outcomeError
	}

	statusCode := s.deliver(ctx, *task, log)
	if err := s.tasks.UpdateStatusCode(ctx, task.Email, task.Task, task.Round, statusCode); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record status failed")
		log.Error().Err(err).Str("task", task.Task).Msg("failed to record delivery status")
		return outcomeError
	}

	log.Info().Str("task", task.Task).Int("round", task.Round).Str("status", statusLabel(statusCode)).Msg("task issued")
	return outcomeProcessed
}

func (s *taskIssuer) deliver(ctx context.Context, task models.Task, log zerolog.Logger) *int {
	status, err := s.deliverer.Post(ctx, task.Endpoint, dto.NewTaskPayload(task))
	round := strconv.Itoa(task.Round)
	if err != nil {
		log.Warn().Err(err).Str("task", task.Task).Msg("task delivery failed")
		observability.TasksIssued().WithLabelValues(round, "unreachable").Inc()
		return nil
	}
	if status == http.StatusOK {
		observability.TasksIssued().WithLabelValues(round, "delivered").Inc()
	} else {
		observability.TasksIssued().WithLabelValues(round, "rejected").Inc()
	}
	return &status
}

func (s *taskIssuer) RetryRound2(ctx context.Context) SweepSummary {
	ctx, span := s.tracer.Start(ctx, "issuer.round2_retry")
	defer span.End()

	var summary SweepSummary
	tasks, err := s.tasks.List(ctx, repository.TaskFilter{Round: 2})
	if err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Msg("failed to list round 2 tasks")
		summary.Errors++
		return summary
	}

	first := true
	for _, task := range tasks {
		if task.Delivered() {
			summary.Skipped++
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if !first {
			if err := s.cfg.Sleep(ctx, s.cfg.RetryDelay); err != nil {
				break
			}
		}
		first = false

		log := s.logger.With().Str("email", maskEmailAddress(task.Email)).Str("task", task.Task).Logger()
		statusCode := s.deliver(ctx, task, log)
		if err := s.tasks.UpdateStatusCode(ctx, task.Email, task.Task, task.Round, statusCode); err != nil {
			log.Error().Err(err).Msg("failed to record retried delivery status")
			summary.record(outcomeError, "round2_retry")
			continue
		}
		if statusCode != nil && *statusCode == http.StatusOK {
			summary.record(outcomeProcessed, "round2_retry")
			continue
		}
		log.Warn().Str("status", statusLabel(statusCode)).Msg("retry not acknowledged")
		summary.record(outcomeError, "round2_retry")
	}

	s.logSummary("round 2 retry complete", summary)
	return summary
}

func (s *taskIssuer) logSummary(msg string, summary SweepSummary) {
	s.logger.Info().
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("errors", summary.Errors).
		Msg(msg)
}

type sweepOutcome int

const (
	outcomeProcessed sweepOutcome = iota
	outcomeSkipped
	outcomeError
)

func (s *SweepSummary) record(outcome sweepOutcome, sweep string) {
	switch outcome {
	case outcomeProcessed:
		s.Processed++
		observability.SweepItems().WithLabelValues(sweep, "processed").Inc()
	case outcomeSkipped:
		s.Skipped++
		observability.SweepItems().WithLabelValues(sweep, "skipped").Inc()
	default:
		s.Errors++
		observability.SweepItems().WithLabelValues(sweep, "error").Inc()
	}
}

func statusLabel(statusCode *int) string {
	if statusCode == nil {
		return "none"
	}
	return strconv.Itoa(*statusCode)
}

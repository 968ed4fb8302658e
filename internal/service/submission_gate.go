package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-appgrader/internal/dto"
	"github.com/noah-isme/gema-appgrader/internal/models"
	"github.com/noah-isme/gema-appgrader/internal/observability"
	"github.com/noah-isme/gema-appgrader/internal/repository"
	"github.com/noah-isme/gema-appgrader/pkg/events"
)

// SubmissionPublisher announces accepted submissions to downstream evaluators.
type SubmissionPublisher interface {
	Publish(ctx context.Context, event events.SubmissionAccepted) error
}

// SubmissionGate accepts build-completion notifications that trace back to an issued task.
type SubmissionGate interface {
	Accept(ctx context.Context, req dto.NotifyRequest) (dto.SubmissionResponse, error)
}

type submissionGate struct {
	tasks       repository.TaskRepository
	submissions repository.SubmissionRepository
	validator   *validator.Validate
	publisher   SubmissionPublisher
	locks       *keyedMutex
	now         func() time.Time
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewSubmissionGate constructs the gate. publisher may be nil.
func NewSubmissionGate(store repository.Store, validate *validator.Validate, publisher SubmissionPublisher, logger zerolog.Logger) SubmissionGate {
	return &submissionGate{
		tasks:       store.Tasks,
		submissions: store.Submissions,
		validator:   validate,
		publisher:   publisher,
		locks:       newKeyedMutex(),
		now:         time.Now,
		logger:      logger.With().Str("component", "submission_gate").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-appgrader/internal/service/gate"),
	}
}

func (g *submissionGate) Accept(ctx context.Context, req dto.NotifyRequest) (dto.SubmissionResponse, error) {
	ctx, span := g.tracer.Start(ctx, "gate.accept")
	defer span.End()

	req.Email = normalizeEmail(req.Email)
	req.Task = strings.TrimSpace(req.Task)
	req.Nonce = strings.TrimSpace(req.Nonce)
	req.RepoURL = strings.TrimSpace(req.RepoURL)
	req.CommitSHA = strings.TrimSpace(req.CommitSHA)
	req.PagesURL = strings.TrimSpace(req.PagesURL)

	if err := g.validator.Struct(req); err != nil {
		validationErr := newValidationError(err)
		span.SetStatus(codes.Error, "validation failed")
		observability.Submissions().WithLabelValues("invalid").Inc()
		return dto.SubmissionResponse{}, validationErr
	}

	span.SetAttributes(attribute.String("task.id", req.Task), attribute.Int("task.round", req.Round))

	// Match and insert run under one lock per (email, task, round) so two racing
	// notifications for the same key are decided one after the other.
	unlock := g.locks.Lock(req.Email + "|" + req.Task + "|" + strconv.Itoa(req.Round))
	defer unlock()

	tasks, err := g.tasks.List(ctx, repository.TaskFilter{Email: req.Email, Round: req.Round})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "task lookup failed")
		observability.Submissions().WithLabelValues("error").Inc()
		return dto.SubmissionResponse{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if !matchesIssuedTask(tasks, req.Task, req.Nonce) {
		span.SetStatus(codes.Error, "no matching task")
		observability.Submissions().WithLabelValues("rejected").Inc()
		g.logger.Warn().Str("email", maskEmailAddress(req.Email)).Str("task", req.Task).Int("round", req.Round).Msg("submission rejected")
		return dto.SubmissionResponse{}, ErrTaskNotMatched
	}

	submission := models.Submission{
		Timestamp: g.now().UTC(),
		Email:     req.Email,
		Task:      req.Task,
		Round:     req.Round,
		Nonce:     req.Nonce,
		RepoURL:   req.RepoURL,
		CommitSHA: req.CommitSHA,
		PagesURL:  req.PagesURL,
	}
	if err := g.submissions.Upsert(ctx, &submission); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist submission failed")
		observability.Submissions().WithLabelValues("error").Inc()
		return dto.SubmissionResponse{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	observability.Submissions().WithLabelValues("accepted").Inc()
	g.logger.Info().Str("email", maskEmailAddress(req.Email)).Str("task", req.Task).Int("round", req.Round).Msg("submission accepted")

	if g.publisher != nil {
		event := events.SubmissionAccepted{
			Email:      submission.Email,
			Task:       submission.Task,
			Round:      submission.Round,
			RepoURL:    submission.RepoURL,
			CommitSHA:  submission.CommitSHA,
			PagesURL:   submission.PagesURL,
			AcceptedAt: submission.Timestamp,
		}
		if err := g.publisher.Publish(ctx, event); err != nil {
			span.RecordError(err)
			g.logger.Warn().Err(err).Str("task", req.Task).Msg("failed to publish submission event")
		}
	}

	span.SetStatus(codes.Ok, "accepted")
	return dto.NewSubmissionResponse(submission), nil
}

func matchesIssuedTask(tasks []models.Task, taskID, nonce string) bool {
	for _, task := range tasks {
		if task.Task == taskID && secureEqual(task.Nonce, nonce) {
			return true
		}
	}
	return false
}

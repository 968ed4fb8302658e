package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-appgrader/internal/dto"
	"github.com/noah-isme/gema-appgrader/internal/observability"
	"github.com/noah-isme/gema-appgrader/internal/ratelimit"
	"github.com/noah-isme/gema-appgrader/internal/security"
	"github.com/noah-isme/gema-appgrader/pkg/ai"
	"github.com/noah-isme/gema-appgrader/pkg/notify"
	"github.com/noah-isme/gema-appgrader/pkg/publisher"
)

var (
	// ErrPublisherUnavailable indicates the agent has no GitHub credentials.
	ErrPublisherUnavailable = errors.New("github integration not configured")
	// ErrUnsafeContent indicates generated files failed the publishing checks.
	ErrUnsafeContent = errors.New("generated files failed security validation")
	// ErrPublishFailed wraps repository publishing failures.
	ErrPublishFailed = errors.New("publishing failed")
)

// RateLimitError reports which window was exhausted and when to retry.
type RateLimitError struct {
	Window     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Too many requests per %s", e.Window)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RepositoryPublisher creates or updates a repository with the given files.
type RepositoryPublisher interface {
	Publish(ctx context.Context, repoName, description string, files []publisher.File) (publisher.Result, error)
}

// CallbackNotifier posts the build-completion callback with retries.
type CallbackNotifier interface {
	Notify(ctx context.Context, url string, payload interface{}) (notify.Report, error)
}

// BuildConfig wires the agent's collaborators. Generator and Limiter may be nil.
type BuildConfig struct {
	StudentSecret string
	Generator     ai.Generator
	Publisher     RepositoryPublisher
	Notifier      CallbackNotifier
	Limiter       ratelimit.Limiter
	Now           func() time.Time
}

// BuildService turns a delivered task into a published app and notifies the evaluator.
type BuildService interface {
	Build(ctx context.Context, req dto.BuildRequest) (dto.BuildResponse, error)
}

type buildService struct {
	cfg       BuildConfig
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewBuildService constructs the agent build workflow.
func NewBuildService(cfg BuildConfig, validate *validator.Validate, logger zerolog.Logger) BuildService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &buildService{
		cfg:       cfg,
		validator: validate,
		logger:    logger.With().Str("component", "build_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-appgrader/internal/service/build"),
	}
}

func (s *buildService) Build(ctx context.Context, req dto.BuildRequest) (dto.BuildResponse, error) {
	ctx, span := s.tracer.Start(ctx, "agent.build")
	defer span.End()

	req.Email = normalizeEmail(req.Email)
	req.Task = strings.TrimSpace(req.Task)
	req.Brief = security.SanitizeString(req.Brief, 0)

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		observability.Builds().WithLabelValues("invalid").Inc()
		return dto.BuildResponse{}, newValidationError(err)
	}
	span.SetAttributes(attribute.String("task.id", req.Task), attribute.Int("task.round", req.Round))

	if s.cfg.StudentSecret == "" || !secureEqual(req.Secret, s.cfg.StudentSecret) {
		span.SetStatus(codes.Error, "invalid secret")
		observability.Builds().WithLabelValues("unauthorized").Inc()
		return dto.BuildResponse{}, ErrInvalidSecret
	}

	if err := s.checkRateLimit(ctx, req.Email); err != nil {
		span.SetStatus(codes.Error, "rate limited")
		observability.Builds().WithLabelValues("rate_limited").Inc()
		return dto.BuildResponse{}, err
	}

	if s.cfg.Publisher == nil {
		observability.Builds().WithLabelValues("error").Inc()
		return dto.BuildResponse{}, ErrPublisherUnavailable
	}

	log := s.logger.With().Str("email", maskEmailAddress(req.Email)).Str("task", req.Task).Int("round", req.Round).Logger()

	attachmentFiles, skipped := decodeAttachments(req.Attachments)
	for _, name := range skipped {
		log.Warn().Str("attachment", name).Msg("attachment skipped")
	}
	attachmentNames := make([]string, 0, len(attachmentFiles))
	for name := range attachmentFiles {
		attachmentNames = append(attachmentNames, name)
	}
	sort.Strings(attachmentNames)

	html := s.generate(ctx, req, attachmentNames, log)
	repoName := repositoryName(req.Task, req.Email)

	files := map[string][]byte{
		"index.html": []byte(security.Redact(html)),
		"LICENSE":    []byte(mitLicense(s.cfg.Now(), "Student")),
		"README.md":  []byte(readmeFor(req.Task, req.Brief, repoName, attachmentNames)),
	}
	for name, data := range attachmentFiles {
		if _, reserved := files[name]; reserved {
			continue
		}
		files[name] = data
	}

	if err := security.ValidateFiles(files); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unsafe content")
		observability.Builds().WithLabelValues("rejected").Inc()
		return dto.BuildResponse{}, fmt.Errorf("%w: %v", ErrUnsafeContent, err)
	}

	result, err := s.cfg.Publisher.Publish(ctx, repoName, "Auto-generated app: "+req.Task, orderedFiles(files))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		observability.Builds().WithLabelValues("error").Inc()
		return dto.BuildResponse{}, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	response := dto.BuildResponse{
		RepoURL:      result.RepoURL,
		CommitSHA:    result.CommitSHA,
		PagesURL:     result.PagesURL,
		PagesEnabled: result.PagesEnabled,
	}
	response.EvaluationNotified = s.notifyEvaluator(ctx, req, response, log)

	observability.Builds().WithLabelValues("published").Inc()
	log.Info().Str("repo", result.RepoURL).Bool("evaluation_notified", response.EvaluationNotified).Msg("build published")
	span.SetStatus(codes.Ok, "published")
	return response, nil
}

func (s *buildService) checkRateLimit(ctx context.Context, email string) error {
	if s.cfg.Limiter == nil {
		return nil
	}
	decision, err := s.cfg.Limiter.Allow(ctx, email)
	if err != nil {
		s.logger.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
		return nil
	}
	if !decision.Allowed {
		return &RateLimitError{Window: decision.Window, RetryAfter: decision.RetryAfter}
	}
	return nil
}

func (s *buildService) generate(ctx context.Context, req dto.BuildRequest, attachments []string, log zerolog.Logger) string {
	if s.cfg.Generator == nil {
		return fallbackPage(req.Task, req.Brief)
	}
	app, err := s.cfg.Generator.GenerateApp(ctx, ai.AppRequest{
		Task:        req.Task,
		Round:       req.Round,
		Brief:       req.Brief,
		Checks:      req.Checks,
		Attachments: attachments,
	})
	if err != nil {
		log.Warn().Err(err).Msg("app generation failed, using fallback page")
		return fallbackPage(req.Task, req.Brief)
	}
	return app.HTML
}

func (s *buildService) notifyEvaluator(ctx context.Context, req dto.BuildRequest, built dto.BuildResponse, log zerolog.Logger) bool {
	if s.cfg.Notifier == nil {
		return false
	}
	payload := dto.NotifyRequest{
		Email:     req.Email,
		Task:      req.Task,
		Round:     req.Round,
		Nonce:     req.Nonce,
		RepoURL:   built.RepoURL,
		CommitSHA: built.CommitSHA,
		PagesURL:  built.PagesURL,
	}
	report, err := s.cfg.Notifier.Notify(ctx, req.EvaluationURL, payload)
	if err != nil {
		log.Warn().Err(err).Int("attempts", report.Attempts).Msg("evaluation callback failed")
		return false
	}
	return true
}

// orderedFiles puts index.html first so the first commit already serves a page.
func orderedFiles(files map[string][]byte) []publisher.File {
	names := make([]string, 0, len(files))
	for name := range files {
		if name != "index.html" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	ordered := make([]publisher.File, 0, len(files))
	if content, ok := files["index.html"]; ok {
		ordered = append(ordered, publisher.File{Path: "index.html", Content: content})
	}
	for _, name := range names {
		ordered = append(ordered, publisher.File{Path: name, Content: files[name]})
	}
	return ordered
}

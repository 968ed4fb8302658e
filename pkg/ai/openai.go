package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "appgrader",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of model requests",
	}, []string{"model", "operation"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "appgrader",
		Subsystem: "ai",
		Name:      "request_failures_total",
		Help:      "Number of failed model requests",
	}, []string{"model", "operation"})
)

// OpenAIConfig defines configuration options for the OpenAI client.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// OpenAIClient implements Completer and Generator against the chat completion API.
type OpenAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIClient builds a client. Transient HTTP failures are retried by the transport.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 200
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		retryClient := retryablehttp.NewClient()
		retryClient.RetryMax = 2
		retryClient.Logger = nil
		httpClient = retryClient.StandardClient()
		httpClient.Timeout = cfg.Timeout
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.HTTPClient = httpClient
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-appgrader/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "openai").Logger(),
	}, nil
}

// Model reports the configured model name.
func (c *OpenAIClient) Model() string {
	return c.cfg.Model
}

// Complete sends prompt as a single user message and returns the trimmed reply.
func (c *OpenAIClient) Complete(parent context.Context, prompt string) (string, error) {
	return c.chat(parent, "complete", openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
}

// GenerateApp asks the model for a self-contained index.html implementing the brief.
func (c *OpenAIClient) GenerateApp(parent context.Context, req AppRequest) (GeneratedApp, error) {
	content, err := c.chat(parent, "generate_app", openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   4096,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: generatorSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: buildAppPrompt(req)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return GeneratedApp{}, err
	}
	return parseGeneratedApp(content)
}

func (c *OpenAIClient) chat(parent context.Context, operation string, request openai.ChatCompletionRequest) (string, error) {
	ctx, span := c.tracer.Start(parent, "openai."+operation, trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(c.cfg.Model, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues(c.cfg.Model, operation).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("openai %s: %w", operation, err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		aiFailures.WithLabelValues(c.cfg.Model, operation).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func generatorSystemPrompt() string {
	return "You build small static web apps. Respond with a JSON object with an html field holding a complete, " +
		"self-contained index.html (inline CSS and JS) and an optional notes field."
}

func buildAppPrompt(req AppRequest) string {
	builder := strings.Builder{}
	builder.WriteString("# Task\n")
	builder.WriteString(req.Task)
	builder.WriteString(fmt.Sprintf(" (round %d)", req.Round))
	builder.WriteString("\n\n## Brief\n")
	builder.WriteString(req.Brief)
	if len(req.Checks) > 0 {
		builder.WriteString("\n\n## It will be checked for\n")
		for _, check := range req.Checks {
			builder.WriteString("- ")
			builder.WriteString(check)
			builder.WriteString("\n")
		}
	}
	if len(req.Attachments) > 0 {
		builder.WriteString("\n\n## Files published next to index.html\n")
		builder.WriteString(strings.Join(req.Attachments, ", "))
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseGeneratedApp(content string) (GeneratedApp, error) {
	var app GeneratedApp
	if err := json.Unmarshal([]byte(content), &app); err != nil {
		return GeneratedApp{}, fmt.Errorf("parse generated app json: %w", err)
	}
	if strings.TrimSpace(app.HTML) == "" {
		return GeneratedApp{}, fmt.Errorf("generated app has no html")
	}
	return app, nil
}

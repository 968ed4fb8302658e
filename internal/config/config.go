package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values shared by the API server, the grader CLI
// and the build agent.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	AgentPort   string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	NATSSubject string
	JWTSecret   string

	OpenAIAPIKey  string
	AIModel       string
	AIBaseURL     string
	EvaluationURL string
	StudentSecret string
	GitHubToken   string
	ChromePath    string
	WorkDir       string

	DeliveryTimeout   time.Duration
	ProbeTimeout      time.Duration
	BrowserTimeout    time.Duration
	CloneTimeout      time.Duration
	NotifyTimeout     time.Duration
	NotifyBaseDelay   time.Duration
	NotifyMaxAttempts int
	IssueDelay        time.Duration
	RetryDelay        time.Duration
	EvaluateDelay     time.Duration

	RateLimitPerMinute int
	RateLimitPerHour   int
	NotifyRatePerMin   int
}

// HTTPAddress returns the address the evaluation API should listen on.
func (c Config) HTTPAddress() string {
	return listenAddress(c.AppPort)
}

// AgentAddress returns the address the build agent should listen on.
func (c Config) AgentAddress() string {
	return listenAddress(c.AgentPort)
}

// OracleEnabled reports whether an OpenAI key is configured.
func (c Config) OracleEnabled() bool {
	return strings.TrimSpace(c.OpenAIAPIKey) != ""
}

func listenAddress(port string) string {
	if strings.HasPrefix(port, ":") {
		return port
	}

	return fmt.Sprintf(":%s", port)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("APPGRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "AppGrader")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "5001")
	v.SetDefault("agent.port", "5000")
	v.SetDefault("database.url", "appgrader.db")
	v.SetDefault("nats.subject", "appgrader.submissions.accepted")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("evaluation_url", "http://localhost:5001/api/notify")
	v.SetDefault("delivery.timeout", "30s")
	v.SetDefault("probe.timeout", "10s")
	v.SetDefault("browser.timeout", "30s")
	v.SetDefault("clone.timeout", "2m")
	v.SetDefault("notify.timeout", "30s")
	v.SetDefault("notify.base_delay", "1s")
	v.SetDefault("notify.max_attempts", 5)
	v.SetDefault("sweep.issue_delay", "1s")
	v.SetDefault("sweep.retry_delay", "2s")
	v.SetDefault("sweep.evaluate_delay", "1s")
	v.SetDefault("rate_limit.per_minute", 2)
	v.SetDefault("rate_limit.per_hour", 10)
	v.SetDefault("rate_limit.notify_per_minute", 60)

	durations := map[string]*time.Duration{}
	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		AgentPort:          v.GetString("agent.port"),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		NATSURL:            v.GetString("nats.url"),
		NATSSubject:        v.GetString("nats.subject"),
		JWTSecret:          v.GetString("jwt.secret"),
		OpenAIAPIKey:       v.GetString("openai_api_key"),
		AIModel:            v.GetString("ai.model"),
		AIBaseURL:          v.GetString("ai.base_url"),
		EvaluationURL:      v.GetString("evaluation_url"),
		StudentSecret:      v.GetString("student_secret"),
		GitHubToken:        v.GetString("github_token"),
		ChromePath:         v.GetString("browser.chrome_path"),
		WorkDir:            v.GetString("work_dir"),
		NotifyMaxAttempts:  v.GetInt("notify.max_attempts"),
		RateLimitPerMinute: v.GetInt("rate_limit.per_minute"),
		RateLimitPerHour:   v.GetInt("rate_limit.per_hour"),
		NotifyRatePerMin:   v.GetInt("rate_limit.notify_per_minute"),
	}

	durations["delivery.timeout"] = &cfg.DeliveryTimeout
	durations["probe.timeout"] = &cfg.ProbeTimeout
	durations["browser.timeout"] = &cfg.BrowserTimeout
	durations["clone.timeout"] = &cfg.CloneTimeout
	durations["notify.timeout"] = &cfg.NotifyTimeout
	durations["notify.base_delay"] = &cfg.NotifyBaseDelay
	durations["sweep.issue_delay"] = &cfg.IssueDelay
	durations["sweep.retry_delay"] = &cfg.RetryDelay
	durations["sweep.evaluate_delay"] = &cfg.EvaluateDelay

	for key, target := range durations {
		parsed, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed < 0 {
			return Config{}, fmt.Errorf("invalid %s: must not be negative", key)
		}
		*target = parsed
	}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.NotifyMaxAttempts <= 0 {
		cfg.NotifyMaxAttempts = 5
	}

	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 2
	}

	if cfg.RateLimitPerHour <= 0 {
		cfg.RateLimitPerHour = 10
	}

	if cfg.NotifyRatePerMin <= 0 {
		cfg.NotifyRatePerMin = 60
	}

	return cfg, nil
}

package cmds

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-appgrader/internal/database"
	"github.com/noah-isme/gema-appgrader/internal/evaluation"
	"github.com/noah-isme/gema-appgrader/internal/repository"
	"github.com/noah-isme/gema-appgrader/internal/service"
	"github.com/noah-isme/gema-appgrader/pkg/ai"
	"github.com/noah-isme/gema-appgrader/pkg/browser"
	"github.com/noah-isme/gema-appgrader/pkg/events"
	"github.com/noah-isme/gema-appgrader/pkg/gitfetch"
)

var (
	evaluateFollow bool
	evaluateFilter repository.SubmissionFilter
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run the check battery over stored submissions, or follow new ones as they arrive",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		defer env.close()

		pipeline, err := env.pipeline()
		if err != nil {
			return err
		}
		evaluator := service.NewEvaluationService(env.store, pipeline, service.EvaluationConfig{
			Delay: env.cfg.EvaluateDelay,
		}, env.logger)

		if !evaluateFollow {
			printSummary(cmd, "evaluate", evaluator.EvaluateAll(cmd.Context(), evaluateFilter))
			return nil
		}

		bus, closeBus, err := env.eventBus(cmd.Context())
		if err != nil {
			return err
		}
		defer closeBus()

		env.logger.Info().Str("subject", env.cfg.NATSSubject).Msg("following accepted submissions")
		return evaluator.Follow(cmd.Context(), bus)
	},
}

func (e *environment) pipeline() (*evaluation.Pipeline, error) {
	var oracle ai.Completer
	if e.cfg.OracleEnabled() {
		client, err := ai.NewOpenAIClient(ai.OpenAIConfig{
			APIKey:  e.cfg.OpenAIAPIKey,
			Model:   e.cfg.AIModel,
			BaseURL: e.cfg.AIBaseURL,
			Logger:  e.logger,
		})
		if err != nil {
			return nil, err
		}
		oracle = client
	} else {
		e.logger.Info().Msg("no openai key configured, quality checks use the rubric")
	}

	chrome := browser.NewChrome(browser.Config{
		ExecPath: e.cfg.ChromePath,
		Timeout:  e.cfg.BrowserTimeout,
		Logger:   e.logger,
	})

	return evaluation.NewPipeline(evaluation.PipelineConfig{
		Fetcher:      gitfetch.New(e.cfg.CloneTimeout, e.logger),
		Scorer:       evaluation.NewTextScorer(oracle),
		Reachability: evaluation.NewReachabilityCheck(evaluation.NewPagesClient(e.cfg.ProbeTimeout)),
		Dynamic:      evaluation.NewDynamicCheck(chrome, evaluation.DefaultProbes()),
		WorkDir:      e.cfg.WorkDir,
		Logger:       e.logger,
	}), nil
}

func (e *environment) eventBus(ctx context.Context) (*events.Bus, func(), error) {
	var (
		natsConn    *nats.Conn
		redisClient *redis.Client
		err         error
	)

	if e.cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(e.cfg.NATSURL, e.cfg.AppName+"-grader")
		if err != nil {
			e.logger.Warn().Err(err).Msg("nats unavailable")
		}
	}
	if natsConn == nil && e.cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, e.cfg.RedisURL)
		if err != nil {
			e.logger.Warn().Err(err).Msg("redis unavailable")
		}
	}
	if natsConn == nil && redisClient == nil {
		return nil, nil, fmt.Errorf("--follow needs APPGRADER_NATS_URL or APPGRADER_REDIS_URL: %w", events.ErrNoTransport)
	}

	closeFn := func() {
		if natsConn != nil {
			natsConn.Close()
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}
	return events.NewBus(natsConn, redisClient, e.cfg.NATSSubject, e.logger), closeFn, nil
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().BoolVar(&evaluateFollow, "follow", false, "Evaluate submissions as the API accepts them")
	evaluateCmd.Flags().StringVar(&evaluateFilter.Email, "email", "", "Only evaluate this student's submissions")
	evaluateCmd.Flags().StringVar(&evaluateFilter.Task, "task", "", "Only evaluate submissions for this task id")
	evaluateCmd.Flags().IntVar(&evaluateFilter.Round, "round", 0, "Only evaluate submissions for this round")
	evaluateCmd.MarkFlagsMutuallyExclusive("follow", "email")
	evaluateCmd.MarkFlagsMutuallyExclusive("follow", "task")
	evaluateCmd.MarkFlagsMutuallyExclusive("follow", "round")
}

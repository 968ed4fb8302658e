package evaluation

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Fetcher materialises a repository at a commit into dir.
type Fetcher interface {
	Fetch(ctx context.Context, repoURL, commit, dir string) error
}

// Target identifies what to grade.
type Target struct {
	TaskID    string
	RepoURL   string
	CommitSHA string
	PagesURL  string
}

// PipelineConfig wires the checks.
type PipelineConfig struct {
	Fetcher      Fetcher
	Scorer       TextScorer
	Reachability *ReachabilityCheck
	Dynamic      *DynamicCheck
	// WorkDir is the parent for per-run workspaces; empty uses the OS temp dir.
	WorkDir string
	Logger  zerolog.Logger
}

// Pipeline runs the ordered battery of checks for one submission.
type Pipeline struct {
	fetcher      Fetcher
	scorer       TextScorer
	reachability *ReachabilityCheck
	dynamic      *DynamicCheck
	workDir      string
	logger       zerolog.Logger
}

// NewPipeline builds a pipeline, defaulting the scorer to the rubric and the dynamic
// check to a browserless one.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Scorer == nil {
		cfg.Scorer = RubricScorer{}
	}
	if cfg.Reachability == nil {
		cfg.Reachability = NewReachabilityCheck(nil)
	}
	if cfg.Dynamic == nil {
		cfg.Dynamic = NewDynamicCheck(nil, nil)
	}
	return &Pipeline{
		fetcher:      cfg.Fetcher,
		scorer:       cfg.Scorer,
		reachability: cfg.Reachability,
		dynamic:      cfg.Dynamic,
		workDir:      cfg.WorkDir,
		logger:       cfg.Logger.With().Str("component", "evaluation_pipeline").Logger(),
	}
}

// Run grades target. Repository checks and deployment checks are dispatched
// independently; outcomes come back with repository checks first.
func (p *Pipeline) Run(ctx context.Context, target Target) []Outcome {
	var (
		group      errgroup.Group
		artifact   []Outcome
		deployment []Outcome
	)

	group.Go(func() error {
		artifact = p.runArtifactChecks(ctx, target)
		return nil
	})
	group.Go(func() error {
		deployment = p.runDeploymentChecks(ctx, target)
		return nil
	})
	_ = group.Wait()

	return append(artifact, deployment...)
}

func (p *Pipeline) runArtifactChecks(ctx context.Context, target Target) []Outcome {
	workspace, err := os.MkdirTemp(p.workDir, "appgrader-eval-*")
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to create workspace")
		return []Outcome{{Name: CheckRepoAccess, Score: 0, Reason: "Failed to prepare workspace", Logs: err.Error()}}
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			p.logger.Warn().Err(err).Str("workspace", workspace).Msg("failed to remove workspace")
		}
	}()

	if p.fetcher == nil {
		return []Outcome{{Name: CheckRepoAccess, Score: 0, Reason: "Failed to clone repository", Logs: "no fetcher configured"}}
	}

	cloned := SafeRun(CheckRepoAccess, func() Outcome {
		if err := p.fetcher.Fetch(ctx, target.RepoURL, target.CommitSHA, workspace); err != nil {
			return Outcome{Score: 0, Reason: "Failed to clone repository", Logs: err.Error()}
		}
		return Outcome{Score: 1}
	})
	if !cloned.Passed() {
		p.logger.Warn().Str("repo_url", target.RepoURL).Str("logs", cloned.Logs).Msg("repository checks skipped")
		return []Outcome{cloned}
	}

	return []Outcome{
		SafeRun(CheckLicense, func() Outcome { return CheckLicenseFile(workspace) }),
		SafeRun(CheckReadme, func() Outcome { return CheckReadmeQuality(ctx, workspace, p.scorer) }),
		SafeRun(CheckCode, func() Outcome { return CheckCodeQuality(ctx, workspace, p.scorer) }),
	}
}

func (p *Pipeline) runDeploymentChecks(ctx context.Context, target Target) []Outcome {
	reach := SafeRun(CheckReachability, func() Outcome {
		return p.reachability.Run(ctx, target.PagesURL)
	})
	if !reach.Passed() {
		return []Outcome{reach}
	}

	dynamic := SafeRun(CheckDynamic, func() Outcome {
		return p.dynamic.Run(ctx, target.PagesURL, target.TaskID)
	})
	return []Outcome{reach, dynamic}
}

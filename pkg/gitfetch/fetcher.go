package gitfetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds clone plus checkout.
const DefaultTimeout = 2 * time.Minute

var (
	// ErrClone is returned when the repository cannot be cloned.
	ErrClone = errors.New("clone repository")
	// ErrCheckout is returned when the requested commit cannot be checked out.
	ErrCheckout = errors.New("checkout commit")
)

// Fetcher clones a repository and checks out a specific commit into a directory.
type Fetcher struct {
	timeout time.Duration
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// New constructs a fetcher. A non-positive timeout falls back to DefaultTimeout.
func New(timeout time.Duration, logger zerolog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		timeout: timeout,
		tracer:  otel.Tracer("github.com/noah-isme/gema-appgrader/pkg/gitfetch"),
		logger:  logger.With().Str("component", "gitfetch").Logger(),
	}
}

// Fetch clones repoURL into dir and checks out commit. An empty commit leaves HEAD as cloned.
func (f *Fetcher) Fetch(ctx context.Context, repoURL, commit, dir string) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	ctx, span := f.tracer.Start(ctx, "gitfetch.fetch", trace.WithAttributes(
		attribute.String("repo.url", repoURL),
		attribute.String("repo.commit", commit),
	))
	defer span.End()

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: repoURL})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error cloning repo")
		return fmt.Errorf("%w: %v", ErrClone, err)
	}

	commit = strings.TrimSpace(commit)
	if commit == "" {
		span.SetStatus(codes.Ok, "")
		return nil
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(commit))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error resolving commit")
		return fmt.Errorf("%w: resolve %s: %v", ErrCheckout, commit, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error opening worktree")
		return fmt.Errorf("%w: %v", ErrCheckout, err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error checking out commit")
		return fmt.Errorf("%w: %v", ErrCheckout, err)
	}

	f.logger.Debug().Str("repo_url", repoURL).Str("commit", hash.String()).Msg("repository checked out")
	span.SetStatus(codes.Ok, "")
	return nil
}

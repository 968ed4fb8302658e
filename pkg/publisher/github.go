package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v66/github"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/noah-isme/gema-appgrader/pkg/publisher")

// ErrNotConfigured is returned when no GitHub token was supplied.
var ErrNotConfigured = errors.New("github publishing is not configured")

const defaultBranch = "main"

// File is one file to commit at the repository root or below it.
type File struct {
	Path    string
	Content []byte
}

// Result describes what was published.
type Result struct {
	RepoURL      string
	CommitSHA    string
	PagesURL     string
	PagesEnabled bool
}

// Publisher creates public repositories, commits files and turns on Pages.
type Publisher struct {
	client *github.Client
	logger zerolog.Logger
}

// New builds a publisher authenticated with token over a retrying transport.
func New(token string, logger zerolog.Logger) (*Publisher, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotConfigured
	}

	retrying := retryablehttp.NewClient()
	retrying.RetryMax = 3
	retrying.Logger = nil

	return NewWithClient(github.NewClient(retrying.StandardClient()).WithAuthToken(token), logger), nil
}

// NewWithClient wraps an existing go-github client.
func NewWithClient(client *github.Client, logger zerolog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger.With().Str("component", "github_publisher").Logger(),
	}
}

// Publish creates repoName under the authenticated user (reusing it when it already exists),
// writes files, and enables Pages on the default branch.
func (p *Publisher) Publish(ctx context.Context, repoName, description string, files []File) (Result, error) {
	ctx, span := tracer.Start(ctx, "publisher.publish")
	defer span.End()
	span.SetAttributes(attribute.String("repo.name", repoName), attribute.Int("repo.files", len(files)))

	user, _, err := p.client.Users.Get(ctx, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve user")
		return Result{}, fmt.Errorf("resolve github user: %w", err)
	}
	owner := user.GetLogin()

	repo, err := p.ensureRepository(ctx, owner, repoName, description)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create repository")
		return Result{}, err
	}

	branch := repo.GetDefaultBranch()
	if branch == "" {
		branch = defaultBranch
	}

	var commitSHA string
	for _, file := range files {
		sha, err := p.putFile(ctx, owner, repoName, branch, file)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to upload file")
			return Result{}, fmt.Errorf("upload %s: %w", file.Path, err)
		}
		if sha != "" {
			commitSHA = sha
		}
	}

	if commitSHA == "" {
		commitSHA, err = p.headCommit(ctx, owner, repoName, branch)
		if err != nil {
			span.RecordError(err)
			return Result{}, err
		}
	}

	pagesEnabled := p.enablePages(ctx, owner, repoName, branch)

	result := Result{
		RepoURL:      repo.GetHTMLURL(),
		CommitSHA:    commitSHA,
		PagesURL:     fmt.Sprintf("https://%s.github.io/%s/", strings.ToLower(owner), repoName),
		PagesEnabled: pagesEnabled,
	}
	p.logger.Info().Str("repo", repoName).Str("commit", commitSHA).Bool("pages_enabled", pagesEnabled).Msg("repository published")
	span.SetStatus(codes.Ok, "published")
	return result, nil
}

func (p *Publisher) ensureRepository(ctx context.Context, owner, name, description string) (*github.Repository, error) {
	repo, resp, err := p.client.Repositories.Create(ctx, "", &github.Repository{
		Name:        github.String(name),
		Description: github.String(description),
		Private:     github.Bool(false),
		AutoInit:    github.Bool(true),
	})
	if err == nil {
		return repo, nil
	}
	if resp == nil || resp.StatusCode != http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("create repository: %w", err)
	}

	existing, _, getErr := p.client.Repositories.Get(ctx, owner, name)
	if getErr != nil {
		return nil, fmt.Errorf("load existing repository: %w", getErr)
	}
	return existing, nil
}

func (p *Publisher) putFile(ctx context.Context, owner, repo, branch string, file File) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(fmt.Sprintf("Add %s", file.Path)),
		Content: file.Content,
		Branch:  github.String(branch),
	}

	current, _, resp, err := p.client.Repositories.GetContents(ctx, owner, repo, file.Path, &github.RepositoryContentGetOptions{Ref: branch})
	switch {
	case err == nil && current != nil:
		opts.Message = github.String(fmt.Sprintf("Update %s", file.Path))
		opts.SHA = current.SHA
		updated, _, err := p.client.Repositories.UpdateFile(ctx, owner, repo, file.Path, opts)
		if err != nil {
			return "", err
		}
		return updated.Commit.GetSHA(), nil
	case err != nil && (resp == nil || resp.StatusCode != http.StatusNotFound):
		return "", err
	}

	created, _, err := p.client.Repositories.CreateFile(ctx, owner, repo, file.Path, opts)
	if err != nil {
		return "", err
	}
	return created.Commit.GetSHA(), nil
}

func (p *Publisher) headCommit(ctx context.Context, owner, repo, branch string) (string, error) {
	ref, _, err := p.client.Git.GetRef(ctx, owner, repo, "refs/heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("resolve head commit: %w", err)
	}
	return ref.GetObject().GetSHA(), nil
}

func (p *Publisher) enablePages(ctx context.Context, owner, repo, branch string) bool {
	_, resp, err := p.client.Repositories.EnablePages(ctx, owner, repo, &github.Pages{
		Source: &github.PagesSource{Branch: github.String(branch), Path: github.String("/")},
	})
	if err == nil {
		return true
	}
	if resp != nil && resp.StatusCode == http.StatusConflict {
		return true
	}
	p.logger.Warn().Err(err).Str("repo", repo).Msg("failed to enable pages")
	return false
}

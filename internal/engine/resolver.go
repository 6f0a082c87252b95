package engine

import (
	"context"
	"errors"
	"fmt"

	"codeownerscan/internal/codeowners"
	"codeownerscan/internal/fetcher"
	"codeownerscan/internal/fetcher/providers"
	"codeownerscan/internal/history"
	"codeownerscan/internal/logging"
	"codeownerscan/internal/models"
)

// Error kinds written to the output besides the fetcher's own.
const (
	KindInvalidRepoName    = "invalid_repo_name"
	KindRepositoryNotFound = "repository_not_found"
	KindHistoryUnavailable = "history_unavailable"
)

// Contents reads current files and checks repositories.
type Contents interface {
	GetFile(ctx context.Context, owner, repo, path string) (*providers.File, error)
	RepositoryExists(ctx context.Context, owner, repo string) (bool, error)
}

// Introductions finds when a file first appeared.
type Introductions interface {
	EarliestIntroduction(ctx context.Context, owner, repo string, paths []string) (history.Introduction, bool, error)
}

// Resolver turns one repository into its output record.
type Resolver struct {
	contents Contents
	history  Introductions
	paths    []string
}

func NewResolver(contents Contents, intros Introductions, paths []string) (*Resolver, error) {
	if contents == nil || intros == nil {
		return nil, errors.New("resolver: contents and history sources are required")
	}
	if len(paths) == 0 {
		return nil, errors.New("resolver: at least one candidate path is required")
	}
	return &Resolver{contents: contents, history: intros, paths: paths}, nil
}

// Resolve produces the record for target.
//
// Per-repository problems come back as annotated records with a nil error.
// A non-nil error is fatal for the run: an authentication failure, or the
// context ending.
func (r *Resolver) Resolve(ctx context.Context, target models.RepositoryTarget) (models.OwnershipRecord, error) {
	repo := target.RepoName
	if !target.Valid() {
		return models.Failed(repo, KindInvalidRepoName, "expected owner/name"), nil
	}
	owner, name := target.Owner(), target.Name()
	logger := logging.FromContext(ctx).With("repo", repo)

	file, err := r.locate(ctx, owner, name)
	if err != nil {
		return r.failure(ctx, repo, err)
	}

	if file == nil {
		exists, err := r.contents.RepositoryExists(ctx, owner, name)
		if err != nil {
			return r.failure(ctx, repo, err)
		}
		if !exists {
			return models.Failed(repo, KindRepositoryNotFound, "repository does not exist or is not visible to the token"), nil
		}
		return models.Absent(repo), nil
	}

	owners := 0
	if file.DecodeErr != nil {
		logger.Warn("could not decode CODEOWNERS, counting no owners", "path", file.Path, "err", file.DecodeErr)
	} else {
		owners = codeowners.ExtractOwners(file.Content).Len()
	}

	intro, ok, err := r.history.EarliestIntroduction(ctx, owner, name, r.paths)
	if err != nil {
		return r.failure(ctx, repo, err)
	}
	if !ok {
		return models.Failed(repo, KindHistoryUnavailable, fmt.Sprintf("%s exists but no commit touching it was found", file.Path)), nil
	}
	if len(intro.Chain) > 1 {
		logger.Debug("followed renames", "chain", intro.Chain)
	}

	return models.Present(repo, intro.At, owners), nil
}

// locate returns the active file: the first candidate path that exists.
func (r *Resolver) locate(ctx context.Context, owner, name string) (*providers.File, error) {
	for _, p := range r.paths {
		file, err := r.contents.GetFile(ctx, owner, name, p)
		if errors.Is(err, fetcher.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return file, nil
	}
	return nil, nil
}

func (r *Resolver) failure(ctx context.Context, repo string, err error) (models.OwnershipRecord, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.OwnershipRecord{}, ctxErr
	}
	if errors.Is(err, fetcher.ErrAuth) {
		return models.OwnershipRecord{}, err
	}

	kind := fetcher.KindOf(err)
	if kind == "" {
		kind = fetcher.KindRequest
	}
	logging.FromContext(ctx).Warn("repository failed", "repo", repo, "kind", kind, "err", err)
	return models.Failed(repo, string(kind), describeFailure(err)), nil
}

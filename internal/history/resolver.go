// Package history finds when a file first appeared in a repository, following
// renames back to the path it was created under.
package history

import (
	"context"
	"fmt"
	"time"

	"codeownerscan/internal/fetcher"
	"codeownerscan/internal/fetcher/providers"
	"codeownerscan/internal/logging"
)

// MaxRenameHops bounds how far a rename chain is followed.
const MaxRenameHops = 32

// Source returns the oldest commit touching a path, or nil when the path has
// no history.
type Source interface {
	OldestCommit(ctx context.Context, owner, repo, path string) (*providers.PathCommit, error)
}

// Introduction is the earliest appearance of a file.
type Introduction struct {
	At time.Time

	// Path is where the file first appeared. Chain lists the paths walked
	// from the candidate back to Path, candidate first.
	Path  string
	Chain []string
}

type Resolver struct {
	src  Source
	memo *fetcher.Memo
}

func NewResolver(src Source) *Resolver {
	return &Resolver{src: src, memo: fetcher.NewMemo()}
}

// EarliestIntroduction returns the earliest introduction over all paths.
// ok is false when none of them was ever committed.
func (r *Resolver) EarliestIntroduction(ctx context.Context, owner, repo string, paths []string) (Introduction, bool, error) {
	var best Introduction
	found := false

	for _, p := range paths {
		intro, ok, err := r.introduction(ctx, owner, repo, p)
		if err != nil {
			return Introduction{}, false, err
		}
		if !ok {
			continue
		}
		if !found || intro.At.Before(best.At) {
			best = intro
			found = true
		}
	}
	return best, found, nil
}

// introduction follows the rename chain starting at path.
func (r *Resolver) introduction(ctx context.Context, owner, repo, path string) (Introduction, bool, error) {
	logger := logging.FromContext(ctx)

	visited := make(map[string]struct{}, 2)
	chain := make([]string, 0, 2)
	var at time.Time
	found := false
	current := path

	for hop := 0; ; hop++ {
		visited[current] = struct{}{}

		pc, err := r.oldest(ctx, owner, repo, current)
		if err != nil {
			return Introduction{}, false, err
		}
		if pc == nil {
			break
		}
		chain = append(chain, current)
		at = pc.Date
		found = true

		if !pc.Renamed() {
			break
		}
		if _, seen := visited[pc.PreviousPath]; seen {
			logger.Warn("rename cycle in history", "repo", owner+"/"+repo, "path", current, "previous", pc.PreviousPath)
			break
		}
		if hop+1 >= MaxRenameHops {
			logger.Warn("rename chain too long, stopping", "repo", owner+"/"+repo, "path", current, "hops", MaxRenameHops)
			break
		}
		current = pc.PreviousPath
	}

	if !found {
		return Introduction{}, false, nil
	}
	return Introduction{
		At:    at.UTC().Truncate(time.Second),
		Path:  chain[len(chain)-1],
		Chain: chain,
	}, true, nil
}

// oldest is the memoised Source lookup; concurrent and repeated requests for
// the same repository path share one result.
func (r *Resolver) oldest(ctx context.Context, owner, repo, path string) (*providers.PathCommit, error) {
	key := fmt.Sprintf("%s/%s:%s", owner, repo, path)
	v, err, _ := r.memo.Do(key, func() (any, error) {
		return r.src.OldestCommit(ctx, owner, repo, path)
	})
	if err != nil {
		return nil, err
	}
	pc, _ := v.(*providers.PathCommit)
	return pc, nil
}

package providers

import (
	"context"
	"errors"
	"time"

	"codeownerscan/internal/fetcher"

	"github.com/google/go-github/v81/github"
)

// Keep GitHub calls bounded: a commit touching more files than this is
// treated as not listing the path.
const (
	commitFilesPerPage   = 100
	commitFilesPageLimit = 30
)

// PathCommit is the oldest commit touching a path.
type PathCommit struct {
	SHA  string
	Date time.Time

	// Status is the path's file status in that commit (added, renamed, ...).
	// PreviousPath is set when Status is "renamed".
	Status       string
	PreviousPath string
}

// Renamed reports whether the path arrived by renaming PreviousPath.
func (p *PathCommit) Renamed() bool {
	return p != nil && p.Status == "renamed" && p.PreviousPath != ""
}

// OldestCommit returns the oldest commit on the default branch that touches
// path, or nil when the path has no history.
//
// Commits are listed newest first one per page, so the last page (from the
// Link header) holds the oldest one; this costs two list calls at most.
func (c *Client) OldestCommit(ctx context.Context, owner, repo, path string) (*PathCommit, error) {
	opts := &github.CommitsListOptions{Path: path, ListOptions: github.ListOptions{PerPage: 1}}

	commits, lastPage, err := c.listCommits(ctx, owner, repo, opts)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, nil
	}
	oldest := commits[0]

	if lastPage > 1 {
		opts.Page = lastPage
		last, _, err := c.listCommits(ctx, owner, repo, opts)
		if err != nil {
			return nil, err
		}
		if len(last) > 0 {
			oldest = last[0]
		}
	}

	pc := &PathCommit{SHA: oldest.GetSHA(), Date: commitDate(oldest)}
	if pc.SHA == "" {
		return pc, nil
	}

	file, err := c.commitFile(ctx, owner, repo, pc.SHA, path)
	if err != nil {
		return nil, err
	}
	if file != nil {
		pc.Status = file.GetStatus()
		pc.PreviousPath = file.GetPreviousFilename()
	}
	return pc, nil
}

func (c *Client) listCommits(ctx context.Context, owner, repo string, opts *github.CommitsListOptions) ([]*github.RepositoryCommit, int, error) {
	var commits []*github.RepositoryCommit
	var lastPage int
	err := c.f.Do(ctx, opListCommits, func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		commits, resp, err = c.f.Client().Client.Repositories.ListCommits(ctx, owner, repo, opts)
		if resp != nil {
			lastPage = resp.LastPage
		}
		return resp, err
	})
	// An empty repository (409) or a vanished path has no history.
	if errors.Is(err, fetcher.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return commits, lastPage, nil
}

// commitFile finds path among the files changed by sha.
func (c *Client) commitFile(ctx context.Context, owner, repo, sha, path string) (*github.CommitFile, error) {
	opts := &github.ListOptions{PerPage: commitFilesPerPage}
	for page := 1; page <= commitFilesPageLimit; page++ {
		opts.Page = page

		var commit *github.RepositoryCommit
		var nextPage int
		err := c.f.Do(ctx, opGetCommit, func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			commit, resp, err = c.f.Client().Client.Repositories.GetCommit(ctx, owner, repo, sha, opts)
			if resp != nil {
				nextPage = resp.NextPage
			}
			return resp, err
		})
		if errors.Is(err, fetcher.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		for _, f := range commit.Files {
			if f.GetFilename() == path {
				return f, nil
			}
		}
		if nextPage == 0 {
			return nil, nil
		}
	}
	return nil, nil
}

// commitDate is the author date, falling back to the committer date, in UTC.
func commitDate(rc *github.RepositoryCommit) time.Time {
	commit := rc.GetCommit()
	if d := commit.GetAuthor().GetDate(); !d.IsZero() {
		return d.UTC()
	}
	if d := commit.GetCommitter().GetDate(); !d.IsZero() {
		return d.UTC()
	}
	return time.Time{}
}

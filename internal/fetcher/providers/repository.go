package providers

import (
	"context"
	"errors"

	"codeownerscan/internal/fetcher"

	"github.com/google/go-github/v81/github"
)

// RepositoryExists reports whether owner/repo is visible to the token.
func (c *Client) RepositoryExists(ctx context.Context, owner, repo string) (bool, error) {
	err := c.f.Do(ctx, opGetRepository, func(ctx context.Context) (*github.Response, error) {
		_, resp, err := c.f.Client().Client.Repositories.Get(ctx, owner, repo)
		return resp, err
	})
	if errors.Is(err, fetcher.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

package providers

import (
	"bytes"
	"context"
	"fmt"

	"codeownerscan/internal/fetcher"

	"github.com/google/go-github/v81/github"
)

// File is the current content of a repository file on the default branch.
type File struct {
	Path    string
	SHA     string
	Size    int
	Content []byte

	// DecodeErr is set when the file exists but its content could not be
	// decoded. Content is nil then.
	DecodeErr error
}

// GetFile returns the file at path, or an error matching fetcher.ErrNotFound
// when nothing, or something other than a regular file, is there.
func (c *Client) GetFile(ctx context.Context, owner, repo, path string) (*File, error) {
	var fc *github.RepositoryContent
	var dc []*github.RepositoryContent
	err := c.f.Do(ctx, opGetContents, func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		fc, dc, resp, err = c.f.Client().Client.Repositories.GetContents(ctx, owner, repo, path, nil)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if dc != nil || fc == nil {
		return nil, fetcher.NotFound(opGetContents, fmt.Sprintf("%s is a directory", path))
	}
	if t := fc.GetType(); t != "" && t != "file" {
		return nil, fetcher.NotFound(opGetContents, fmt.Sprintf("%s is a %s, not a file", path, t))
	}

	file := &File{Path: fc.GetPath(), SHA: fc.GetSHA(), Size: fc.GetSize()}
	if file.Path == "" {
		file.Path = path
	}

	// Files over 1 MB come back without inline content.
	if fc.GetEncoding() == "none" {
		if fc.GetDownloadURL() == "" {
			file.DecodeErr = fmt.Errorf("%s: content not inlined and no download url", path)
			return file, nil
		}
		raw, err := c.download(ctx, fc.GetDownloadURL())
		if err != nil {
			return nil, err
		}
		file.Content = raw
		return file, nil
	}

	content, err := fc.GetContent()
	if err != nil {
		file.DecodeErr = fmt.Errorf("%s: %w", path, err)
		return file, nil
	}
	file.Content = []byte(content)
	return file, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	var buf bytes.Buffer
	err := c.f.Do(ctx, opDownloadContents, func(ctx context.Context) (*github.Response, error) {
		buf.Reset()
		req, err := c.f.Client().Client.NewRequest("GET", url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/vnd.github.raw")
		return c.f.Client().Client.Do(ctx, req, &buf)
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

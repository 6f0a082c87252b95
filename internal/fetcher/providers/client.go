// Package providers wraps the few GitHub REST calls the scan needs. Every call
// goes through the shared fetcher, so it is budgeted, classified and retried.
package providers

import (
	"codeownerscan/internal/fetcher"
)

const (
	opGetContents      = "get contents"
	opDownloadContents = "download contents"
	opListCommits      = "list commits"
	opGetCommit        = "get commit"
	opGetRepository    = "get repository"
)

type Client struct {
	f *fetcher.Fetcher
}

func New(f *fetcher.Fetcher) *Client {
	return &Client{f: f}
}

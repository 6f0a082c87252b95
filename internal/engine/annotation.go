package engine

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"codeownerscan/internal/fetcher"

	"github.com/google/go-github/v81/github"
)

// describeFailure renders err for the output's error column. It prefers the
// structured GitHub error so request URLs (and anything in their query) do
// not leak into the dataset.
func describeFailure(err error) string {
	if err == nil {
		return "unknown error"
	}

	var op, attempts string
	var fe *fetcher.Error
	if errors.As(err, &fe) {
		op = fe.Op
		if fe.Attempts > 1 {
			attempts = fmt.Sprintf(" after %d attempts", fe.Attempts)
		}
	}

	msg := ""
	var er *github.ErrorResponse
	var ue *url.Error
	switch {
	case errors.As(err, &er):
		text := strings.TrimSpace(er.Message)
		if text == "" {
			text = "GitHub API request failed"
		}
		if er.Response != nil {
			msg = fmt.Sprintf("%d %s: %s", er.Response.StatusCode, http.StatusText(er.Response.StatusCode), text)
		} else {
			msg = text
		}
	case errors.As(err, &ue):
		msg = ue.Err.Error()
	case fe != nil && fe.Err != nil:
		msg = scrubOrKeep(fe.Err.Error())
	default:
		msg = scrubOrKeep(err.Error())
	}

	if op != "" {
		msg = op + ": " + msg
	}
	return oneLine(msg + attempts)
}

func scrubOrKeep(s string) string {
	s = strings.TrimSpace(s)
	if scrubbed := scrubGitHubRequestFromErrorString(s); scrubbed != "" {
		return scrubbed
	}
	return s
}

func scrubGitHubRequestFromErrorString(s string) string {
	// Typical go-github error format:
	//   GET https://api.github.com/...: 403 Some message. [..]
	// We want to drop the leading "GET https://...: " part.
	methods := []string{"GET ", "POST ", "PUT ", "PATCH ", "DELETE "}
	for _, m := range methods {
		if strings.HasPrefix(s, m) {
			if i := strings.Index(s, "://"); i >= 0 {
				if j := strings.Index(s[i:], ": "); j >= 0 {
					return strings.TrimSpace(s[i+j+2:])
				}
			}
			if j := strings.Index(s, ": "); j >= 0 {
				return strings.TrimSpace(s[j+2:])
			}
			break
		}
	}
	return ""
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

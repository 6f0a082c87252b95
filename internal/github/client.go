package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com/"

const mediaType = "application/vnd.github+json"

type Client struct {
	Client *github.Client
	HTTP   *http.Client
}

type options struct {
	logger    *log.Logger
	baseURL   string
	userAgent string
	timeout   time.Duration
}

type Option func(*options)

// WithVerbose logs one debug line per request and response (with latency)
// through logger. A nil logger disables it.
func WithVerbose(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBaseURL points the client at a GitHub Enterprise Server API root such as
// https://ghe.example.com/api/v3.
func WithBaseURL(raw string) Option {
	return func(o *options) {
		o.baseURL = raw
	}
}

func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// WithTimeout bounds each HTTP request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// loggingRoundTripper wraps an underlying transport and emits one line per
// request and response (including latency).
type loggingRoundTripper struct {
	base   http.RoundTripper
	logger *log.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.logger.Debug("github api request", "method", req.Method, "url", req.URL.String())
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		t.logger.Debug("github api error", "method", req.Method, "url", req.URL.Path, "after", dur, "err", err)
		return resp, err
	}
	t.logger.Debug("github api response",
		"method", req.Method,
		"url", req.URL.Path,
		"status", resp.StatusCode,
		"remaining", resp.Header.Get("X-RateLimit-Remaining"),
		"took", dur)
	return resp, err
}

// mediaTypeRoundTripper asks for the current REST media type on JSON API
// calls. Requests that chose another Accept value are left alone.
type mediaTypeRoundTripper struct {
	base http.RoundTripper
}

func (t *mediaTypeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	accept := req.Header.Get("Accept")
	if accept == "" || accept == "application/vnd.github.v3+json" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept", mediaType)
	}
	return t.base.RoundTrip(req)
}

func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}

	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}

	var transport http.RoundTripper = &mediaTypeRoundTripper{base: http.DefaultTransport}
	if o.logger != nil {
		transport = &loggingRoundTripper{base: transport, logger: o.logger}
	}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	tc := &http.Client{Transport: transport, Timeout: o.timeout}

	client := github.NewClient(tc)
	if o.baseURL != "" {
		base, err := ParseBaseURL(o.baseURL)
		if err != nil {
			return nil, err
		}
		client.BaseURL = base
		client.UploadURL = base
	}
	if o.userAgent != "" {
		client.UserAgent = o.userAgent
	}

	return &Client{
		Client: client,
		HTTP:   tc,
	}, nil
}

// ParseBaseURL validates an API root and adds the trailing slash go-github
// requires.
func ParseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultAPIURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("github client: invalid api url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("github client: api url %q must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("github client: api url %q has no host", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// Host returns the host name the GitHub CLI knows the API root by:
// github.com for the public API, the server name for GHES.
func Host(apiURL string) string {
	u, err := ParseBaseURL(apiURL)
	if err != nil {
		return "github.com"
	}
	host := u.Hostname()
	if host == "api.github.com" {
		return "github.com"
	}
	return host
}

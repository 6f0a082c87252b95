package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gh "codeownerscan/internal/github"
	"codeownerscan/internal/logging"
	"codeownerscan/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v81/github"
)

const (
	DefaultMaxAttempts    = 3
	DefaultBackoffInitial = 2 * time.Second
	DefaultBackoffMax     = 30 * time.Second

	// GitHub asks clients to wait at least a minute after a secondary rate
	// limit that carries no Retry-After.
	DefaultSecondaryWait = time.Minute
)

// Call performs one GitHub request and returns its response, if any.
type Call func(ctx context.Context) (*github.Response, error)

// Fetcher is the transport every GitHub request goes through: it gates calls
// on the shared RequestBudget, feeds quota headers back into it, classifies
// failures and retries transient ones with exponential backoff and jitter.
type Fetcher struct {
	client  *gh.Client
	budget  *RequestBudget
	metrics *metrics.Metrics

	maxAttempts    int
	backoffInitial time.Duration
	backoffMax     time.Duration
	secondaryWait  time.Duration
}

type Option func(*Fetcher)

// WithRetry sets the attempt bound and the backoff window for transient failures.
func WithRetry(maxAttempts int, initial, max time.Duration) Option {
	return func(f *Fetcher) {
		if maxAttempts > 0 {
			f.maxAttempts = maxAttempts
		}
		if initial > 0 {
			f.backoffInitial = initial
		}
		if max > 0 {
			f.backoffMax = max
		}
	}
}

// WithSecondaryWait sets the cooldown used for secondary rate limits that do
// not say how long to wait.
func WithSecondaryWait(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.secondaryWait = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

func NewFetcher(client *gh.Client, budget *RequestBudget, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:         client,
		budget:         budget,
		maxAttempts:    DefaultMaxAttempts,
		backoffInitial: DefaultBackoffInitial,
		backoffMax:     DefaultBackoffMax,
		secondaryWait:  DefaultSecondaryWait,
	}
	for _, apply := range opts {
		if apply != nil {
			apply(f)
		}
	}
	if budget != nil && client != nil && client.Client != nil {
		budget.SetAPIBase(client.Client.BaseURL)
	}
	return f
}

func (f *Fetcher) Budget() *RequestBudget {
	return f.budget
}

func (f *Fetcher) Client() *gh.Client {
	return f.client
}

// Do runs call under the budget and retry policy.
//
// Rate-limit signals never surface: they are funnelled into the budget and
// the request is repeated once it admits calls again, without using up an
// attempt. Transient failures are retried up to the attempt bound. Every
// other failure is returned at once as an *Error.
func (f *Fetcher) Do(ctx context.Context, op string, call Call) error {
	if ctx == nil {
		return fmt.Errorf("Do: nil context")
	}
	if f == nil {
		return fmt.Errorf("Do: nil Fetcher")
	}
	if f.budget == nil {
		return fmt.Errorf("Do: nil request budget (use NewFetcher)")
	}
	if call == nil {
		return fmt.Errorf("Do: nil call")
	}

	logger := logging.FromContext(ctx)
	attempts := 0

	operation := func() error {
		for {
			if err := f.budget.Acquire(ctx, 1); err != nil {
				return backoff.Permanent(err)
			}

			resp, err := call(ctx)
			f.observeResponse(resp)
			if err == nil {
				f.metrics.ObserveRequest(op, "ok")
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}

			ferr := classify(op, resp, err)
			if ferr.Kind == KindAuth && ferr.Status == http.StatusForbidden && f.credentialsValid(ctx) {
				// The token works; only this resource is denied.
				ferr.Kind = KindRequest
			}
			f.metrics.ObserveRequest(op, string(ferr.Kind))

			if ferr.Kind == KindRateLimited {
				f.waitOut(ctx, ferr)
				continue
			}

			attempts++
			ferr.Attempts = attempts
			if ferr.Kind == KindTransient {
				return ferr
			}
			return backoff.Permanent(ferr)
		}
	}

	notify := func(err error, next time.Duration) {
		f.metrics.ObserveRetry(op)
		logger.Debug("retrying github request", "op", op, "attempt", attempts, "in", next.Round(time.Millisecond), "err", err)
	}

	return backoff.RetryNotify(operation, f.newBackOff(ctx), notify)
}

// credentialsValid reports whether the token still authenticates. It asks
// GET /rate_limit, which does not count against the quota. A 403 with working
// credentials is a per-resource denial such as SAML enforcement or an IP
// allow list on one organization.
func (f *Fetcher) credentialsValid(ctx context.Context) bool {
	if f.client == nil || f.client.Client == nil {
		return false
	}
	_, _, err := f.client.Client.RateLimit.Get(ctx)
	if err != nil {
		logging.FromContext(ctx).Debug("credential check failed", "err", err)
		return false
	}
	return true
}

func (f *Fetcher) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = f.backoffInitial
	exp.MaxInterval = f.backoffMax
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.5
	exp.MaxElapsedTime = 0

	retries := f.maxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

func (f *Fetcher) observeResponse(resp *github.Response) {
	if resp == nil || resp.Response == nil {
		f.budget.Release()
		return
	}
	f.budget.UpdateFromResponse(resp.Response)
}

// waitOut funnels a rate-limit signal into the budget; the next Acquire
// then blocks for as long as the signal asks.
func (f *Fetcher) waitOut(ctx context.Context, e *Error) {
	logger := logging.FromContext(ctx)
	switch {
	case e.RetryAfter > 0:
		f.metrics.ObserveRateLimitWait("secondary")
		logger.Warn("secondary rate limit hit, cooling down", "op", e.Op, "wait", e.RetryAfter)
		f.budget.Cooldown(e.RetryAfter)
	case !e.Reset.IsZero():
		f.metrics.ObserveRateLimitWait("primary")
		logger.Warn("primary rate limit hit", "op", e.Op, "reset", e.Reset.Format(time.RFC3339))
		f.budget.Exhausted(e.Reset)
	default:
		f.metrics.ObserveRateLimitWait("secondary")
		logger.Warn("rate limited without a reset hint, cooling down", "op", e.Op, "wait", f.secondaryWait)
		f.budget.Cooldown(f.secondaryWait)
	}
}

// classify maps a failed go-github call onto the error taxonomy.
func classify(op string, resp *github.Response, err error) *Error {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return &Error{Kind: KindRateLimited, Op: op, Status: statusOf(rle.Response), Reset: rle.Rate.Reset.Time, Err: err}
	}

	var are *github.AbuseRateLimitError
	if errors.As(err, &are) {
		return &Error{Kind: KindRateLimited, Op: op, Status: statusOf(are.Response), RetryAfter: are.GetRetryAfter(), Err: err}
	}

	status := 0
	var header http.Header
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		status = er.Response.StatusCode
		header = er.Response.Header
	} else if resp != nil && resp.Response != nil {
		status = resp.StatusCode
		header = resp.Header
	}

	e := &Error{Op: op, Status: status, Err: err}
	switch {
	case status == 0:
		// No HTTP response: connection refused/reset, timeout, DNS.
		e.Kind = KindTransient
	case status == http.StatusNotFound, status == http.StatusGone, status == http.StatusConflict:
		e.Kind = KindNotFound
	case status == http.StatusUnauthorized:
		e.Kind = KindAuth
	case status == http.StatusForbidden || status == http.StatusTooManyRequests:
		retryAfter, limited := rateLimitSignal(header)
		switch {
		case limited:
			e.Kind = KindRateLimited
			e.RetryAfter = retryAfter
			e.Reset = resetOf(header)
		case status == http.StatusTooManyRequests:
			e.Kind = KindRateLimited
		default:
			e.Kind = KindAuth
		}
	case status >= 500:
		e.Kind = KindTransient
	default:
		e.Kind = KindRequest
	}
	return e
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

// rateLimitSignal reports whether a 403/429 carries rate-limit signalling.
func rateLimitSignal(h http.Header) (time.Duration, bool) {
	if h == nil {
		return 0, false
	}
	if v := h.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second, true
		}
		return 0, true
	}
	if h.Get("X-RateLimit-Remaining") == "0" {
		return 0, true
	}
	return 0, false
}

func resetOf(h http.Header) time.Time {
	if h == nil {
		return time.Time{}
	}
	if v, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil && v > 0 {
		return time.Unix(v, 0)
	}
	return time.Time{}
}

package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeownerscan/internal/logging"

	"golang.org/x/time/rate"
)

// DefaultResetMargin is added to the server's reset time before requests
// resume after the budget ran dry.
const DefaultResetMargin = 2 * time.Second

// RequestBudget tracks the GitHub request quota shared by every worker.
//
// The server's X-RateLimit-* headers are authoritative: each response
// overwrites the locally decremented estimate. Until the first response has
// been seen the budget is unknown and admits a single probe request.
type RequestBudget struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	margin    time.Duration
	now       func() time.Time
	probed    bool
	unmetered bool
	apiBase   *url.URL
	cooldown  time.Time
	notifyCh  chan struct{}

	// waitLogged is the reset time we last logged a wait for, so a window is
	// reported once rather than once per blocked worker.
	waitLogged time.Time

	pacer *rate.Limiter
}

func NewRequestBudget() *RequestBudget {
	return &RequestBudget{
		margin:   DefaultResetMargin,
		now:      time.Now,
		notifyCh: make(chan struct{}),
		pacer:    rate.NewLimiter(rate.Inf, 1),
	}
}

// SetAPIBase restricts the unmetered inference to responses served under
// base. Raw content downloads answer without quota headers and must not turn
// gating off.
func (b *RequestBudget) SetAPIBase(base *url.URL) {
	b.mu.Lock()
	b.apiBase = base
	b.mu.Unlock()
}

// SetResetMargin changes the safety margin applied after a reset.
func (b *RequestBudget) SetResetMargin(d time.Duration) {
	if d < 0 {
		d = 0
	}
	b.mu.Lock()
	b.margin = d
	b.mu.Unlock()
}

// SetMaxRate paces requests to at most rps per second. Zero disables pacing.
func (b *RequestBudget) SetMaxRate(rps float64) {
	if rps <= 0 {
		b.pacer.SetLimit(rate.Inf)
		return
	}
	b.pacer.SetLimit(rate.Limit(rps))
}

func (b *RequestBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

func (b *RequestBudget) Reset() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reset
}

func (b *RequestBudget) Acquire(ctx context.Context, n int) error {
	if ctx == nil {
		return fmt.Errorf("Acquire: nil context")
	}
	if n <= 0 {
		return fmt.Errorf("Acquire: n must be > 0 (got %d)", n)
	}
	if b == nil {
		return fmt.Errorf("Acquire: nil RequestBudget")
	}
	if b.now == nil || b.notifyCh == nil || b.pacer == nil {
		return fmt.Errorf("Acquire: RequestBudget is not initialized (use NewRequestBudget)")
	}

	for i := 0; i < n; i++ {
		if err := b.acquireOne(ctx); err != nil {
			return err
		}
		if err := b.pacer.Wait(ctx); err != nil {
			b.Release()
			return err
		}
	}
	return nil
}

func (b *RequestBudget) acquireOne(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.mu.Lock()
		now := b.now()

		if now.Before(b.cooldown) {
			until := b.cooldown
			ch := b.notifyCh
			b.mu.Unlock()
			if err := waitUntil(ctx, ch, until.Sub(now)); err != nil {
				return err
			}
			continue
		}

		if b.unmetered {
			b.mu.Unlock()
			return nil
		}

		if b.remaining > 0 {
			b.remaining--
			b.mu.Unlock()
			return nil
		}

		resumeAt := b.reset.Add(b.margin)

		// Past the reset (or nothing known yet): one probe goes out, everyone
		// else waits for the headers it brings back.
		if !now.Before(resumeAt) {
			if !b.probed {
				b.probed = true
				b.mu.Unlock()
				return nil
			}
			ch := b.notifyCh
			b.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ch:
				continue
			}
		}

		ch := b.notifyCh
		logWait := !b.waitLogged.Equal(b.reset)
		if logWait {
			b.waitLogged = b.reset
		}
		b.mu.Unlock()

		if logWait {
			logging.FromContext(ctx).Info("rate budget exhausted, waiting for reset",
				"reset", resumeAt.Format(time.RFC3339), "wait", resumeAt.Sub(now).Round(time.Second))
		}
		if err := waitUntil(ctx, ch, resumeAt.Sub(now)); err != nil {
			return err
		}
	}
}

// waitUntil blocks for d, until ch is closed, or until ctx is done.
func waitUntil(ctx context.Context, ch <-chan struct{}, d time.Duration) error {
	if d < 0 {
		d = 0
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	case <-timer.C:
		return nil
	}
}

func (b *RequestBudget) signalLocked() {
	if b.notifyCh == nil {
		b.notifyCh = make(chan struct{})
		return
	}
	close(b.notifyCh)
	b.notifyCh = make(chan struct{})
}

// Exhausted records a rate-limit signal: nothing is left until reset.
// A reset in the past is treated as "now" so the margin still applies.
func (b *RequestBudget) Exhausted(reset time.Time) {
	if b == nil || b.now == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if now := b.now(); reset.Before(now) {
		reset = now
	}
	b.remaining = 0
	b.reset = reset
	b.unmetered = false
	b.probed = false
	b.signalLocked()
}

// Cooldown stops all requests for d (secondary rate limits).
func (b *RequestBudget) Cooldown(d time.Duration) {
	if b == nil || b.now == nil || d <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	until := b.now().Add(d)
	if until.After(b.cooldown) {
		b.cooldown = until
		b.signalLocked()
	}
}

// Release gives back an outstanding probe when the request it admitted never
// produced a response.
func (b *RequestBudget) Release() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.probed {
		b.probed = false
		b.signalLocked()
	}
}

func (b *RequestBudget) UpdateFromResponse(resp *http.Response) {
	if resp == nil {
		return
	}
	if b == nil {
		return
	}
	if b.now == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false

	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			if seconds > 0 {
				until := b.now().Add(time.Duration(seconds) * time.Second)
				if until.After(b.cooldown) {
					b.cooldown = until
					changed = true
				}
			}
		}
	}

	metered := false
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil && val >= 0 {
			metered = true
			b.remaining = val
			changed = true
		}
	}

	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if val, err := strconv.ParseInt(reset, 10, 64); err == nil {
			if val > 0 {
				newReset := time.Unix(val, 0)
				if !b.reset.Equal(newReset) {
					b.reset = newReset
					changed = true
				}
			}
		}
	}

	switch {
	case metered:
		b.unmetered = false
	case answered(resp.StatusCode) && !b.unmetered && b.fromAPILocked(resp):
		// An answer without quota headers: the server does not rate limit
		// (GHES with rate limiting disabled).
		b.unmetered = true
		changed = true
	}

	// Any response completes an outstanding probe.
	if b.probed {
		changed = true
	}

	if changed {
		b.probed = false
		b.signalLocked()
	}
}

func (b *RequestBudget) fromAPILocked(resp *http.Response) bool {
	if b.apiBase == nil || resp.Request == nil || resp.Request.URL == nil {
		return true
	}
	u := resp.Request.URL
	return strings.EqualFold(u.Host, b.apiBase.Host) && strings.HasPrefix(u.Path, b.apiBase.Path)
}

// answered reports whether status is a real answer rather than a throttle or
// a server fault.
func answered(status int) bool {
	switch {
	case status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return false
	case status >= 200 && status < 500:
		return true
	}
	return false
}

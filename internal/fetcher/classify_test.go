package fetcher

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v81/github"
)

func TestClassify(t *testing.T) {
	reset := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	errResp := func(status int, kv ...string) *github.ErrorResponse {
		h := make(http.Header)
		for i := 0; i+1 < len(kv); i += 2 {
			h.Set(kv[i], kv[i+1])
		}
		return &github.ErrorResponse{Response: &http.Response{StatusCode: status, Header: h}, Message: "x"}
	}
	retryAfter := 30 * time.Second

	tests := []struct {
		name       string
		err        error
		wantKind   Kind
		wantReset  time.Time
		wantWait   time.Duration
		wantStatus int
	}{
		{
			name:       "primary rate limit error",
			err:        &github.RateLimitError{Rate: github.Rate{Reset: github.Timestamp{Time: reset}}, Response: &http.Response{StatusCode: 403}},
			wantKind:   KindRateLimited,
			wantReset:  reset,
			wantStatus: 403,
		},
		{
			name:       "secondary rate limit error",
			err:        &github.AbuseRateLimitError{RetryAfter: &retryAfter, Response: &http.Response{StatusCode: 403}},
			wantKind:   KindRateLimited,
			wantWait:   retryAfter,
			wantStatus: 403,
		},
		{
			name:       "429 with retry-after",
			err:        errResp(429, "Retry-After", "7"),
			wantKind:   KindRateLimited,
			wantWait:   7 * time.Second,
			wantStatus: 429,
		},
		{
			name:       "bare 429",
			err:        errResp(429),
			wantKind:   KindRateLimited,
			wantStatus: 429,
		},
		{
			name:       "403 remaining zero",
			err:        errResp(403, "X-RateLimit-Remaining", "0", "X-RateLimit-Reset", "1740830400"),
			wantKind:   KindRateLimited,
			wantReset:  time.Unix(1740830400, 0),
			wantStatus: 403,
		},
		{name: "403 forbidden", err: errResp(403), wantKind: KindAuth, wantStatus: 403},
		{name: "410 gone", err: errResp(410), wantKind: KindNotFound, wantStatus: 410},
		{name: "451 unavailable", err: errResp(451), wantKind: KindRequest, wantStatus: 451},
		{name: "504", err: errResp(504), wantKind: KindTransient, wantStatus: 504},
		{name: "no response", err: errors.New("connection reset by peer"), wantKind: KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", nil, tt.err)
			if got.Kind != tt.wantKind {
				t.Fatalf("kind = %q, want %q", got.Kind, tt.wantKind)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", got.Status, tt.wantStatus)
			}
			if !got.Reset.Equal(tt.wantReset) {
				t.Errorf("reset = %v, want %v", got.Reset, tt.wantReset)
			}
			if got.RetryAfter != tt.wantWait {
				t.Errorf("retry after = %v, want %v", got.RetryAfter, tt.wantWait)
			}
			if !errors.Is(got, tt.wantKind.sentinel()) {
				t.Errorf("errors.Is(%v) should match its kind sentinel", got)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classified error should wrap the cause")
			}
		})
	}
}

package github

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestNewClient(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, "test-token")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Client == nil {
		t.Error("Expected client to be initialized with explicit token")
	}
	if got := client.Client.BaseURL.String(); got != DefaultAPIURL {
		t.Errorf("BaseURL = %q, want %q", got, DefaultAPIURL)
	}

	// No token: still usable, just unauthenticated.
	client, err = NewClient(ctx, "")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Client == nil {
		t.Error("Expected client to be initialized even without token")
	}
}

func TestNewClient_Timeout(t *testing.T) {
	client, err := NewClient(context.Background(), "", WithTimeout(30*time.Second))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.HTTP.Timeout != 30*time.Second {
		t.Errorf("HTTP timeout = %v, want 30s", client.HTTP.Timeout)
	}
}

func TestNewClient_NilContextReturnsError(t *testing.T) {
	var nilCtx context.Context
	_, err := NewClient(nilCtx, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "ctx is nil") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"ftp://example.com", "://nope", "https://"} {
		if _, err := NewClient(context.Background(), "", WithBaseURL(raw)); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestNewClient_HeadersAndVerboseLog(t *testing.T) {
	ctx := context.Background()

	var gotAuth, gotAccept, gotUA, gotVersion, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		gotVersion = r.Header.Get("X-GitHub-Api-Version")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

	c, err := NewClient(ctx, "test-token",
		WithVerbose(logger),
		WithBaseURL(server.URL+"/api/v3"),
		WithUserAgent("codeowners-scan/test"),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	req, err := c.Client.NewRequest("GET", "rate_limit", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := c.Client.Do(ctx, req, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}

	if gotPath != "/api/v3/rate_limit" {
		t.Errorf("path = %q, want /api/v3/rate_limit", gotPath)
	}
	if !strings.Contains(gotAuth, "test-token") {
		t.Errorf("expected Authorization header to contain token, got %q", gotAuth)
	}
	if gotAccept != mediaType {
		t.Errorf("Accept = %q, want %q", gotAccept, mediaType)
	}
	if gotUA != "codeowners-scan/test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotVersion == "" {
		t.Errorf("expected X-GitHub-Api-Version header")
	}
	if !strings.Contains(buf.String(), "github api request") || !strings.Contains(buf.String(), "status=200") {
		t.Errorf("expected verbose request/response log, got: %q", buf.String())
	}
}

func TestNewClient_NoTokenSendsNoAuthorization(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("{}"))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(context.Background(), "", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	req, err := c.Client.NewRequest("GET", "rate_limit", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := c.Client.Do(context.Background(), req, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("expected no Authorization header, got %q", gotAuth)
	}
}

func TestHost(t *testing.T) {
	tests := map[string]string{
		"":                               "github.com",
		"https://api.github.com":         "github.com",
		"https://ghe.example.com/api/v3": "ghe.example.com",
		"http://localhost:8080/api/v3/":  "localhost",
		"not a url at all\x7f":           "github.com",
	}
	for in, want := range tests {
		if got := Host(in); got != want {
			t.Errorf("Host(%q) = %q, want %q", in, got, want)
		}
	}
}

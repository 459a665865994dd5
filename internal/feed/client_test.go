package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/darrenwatt/truthy/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		FeedInstance:   "example.test",
		FeedUsername:   "someuser",
		PageLimit:      40,
		ProxyMode:      "direct",
		RequestTimeout: 2 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}
}

// newTestClient points a direct-mode client at the given server.
func newTestClient(srvURL string) *Client {
	c := NewClient(testConfig(), zap.NewNop())
	c.BaseURL = srvURL
	return c
}

const statusesJSON = `[
	{"id":"2","created_at":"2025-06-16T13:00:00Z","content":"<p>second</p>","account":{"username":"someuser"}},
	{"id":"1","created_at":"2025-06-16T12:00:00Z","content":"<p>first</p>","account":{"username":"someuser"}}
]`

func feedMux(statuses http.HandlerFunc, lookupHits *atomic.Int32) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/lookup", func(w http.ResponseWriter, r *http.Request) {
		if lookupHits != nil {
			lookupHits.Add(1)
		}
		w.Write([]byte(`{"id":"42","username":"someuser"}`))
	})
	mux.HandleFunc("/api/v1/accounts/42/statuses", statuses)
	return mux
}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(feedMux(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("exclude_replies") != "true" ||
			r.URL.Query().Get("exclude_reblogs") != "true" ||
			r.URL.Query().Get("limit") != "40" {
			t.Errorf("missing pagination flags in query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(statusesJSON))
	}, nil))
	defer srv.Close()

	got := newTestClient(srv.URL).Fetch(context.Background())
	if len(got) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(got))
	}
	if got[0].ID != "2" || got[1].ID != "1" {
		t.Fatalf("unexpected ids: %q, %q", got[0].ID, got[1].ID)
	}
}

func TestClient_Fetch_AccountIDCached(t *testing.T) {
	var lookupHits atomic.Int32
	srv := httptest.NewServer(feedMux(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, &lookupHits))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.Fetch(context.Background())
	c.Fetch(context.Background())

	if n := lookupHits.Load(); n != 1 {
		t.Fatalf("expected 1 lookup across cycles, got %d", n)
	}
}

func TestClient_Fetch_RetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(feedMux(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(statusesJSON))
	}, nil))
	defer srv.Close()

	got := newTestClient(srv.URL).Fetch(context.Background())
	if len(got) != 2 {
		t.Fatalf("expected statuses after retries, got %d", len(got))
	}
	if n := attempts.Load(); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestClient_Fetch_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(feedMux(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, nil))
	defer srv.Close()

	got := newTestClient(srv.URL).Fetch(context.Background())
	if got != nil {
		t.Fatalf("expected nil after exhausted retries, got %v", got)
	}
	if n := attempts.Load(); n != 3 {
		t.Fatalf("expected MaxRetries (3) attempts, got %d", n)
	}
}

func TestClient_Fetch_PermanentClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(feedMux(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, nil))
	defer srv.Close()

	got := newTestClient(srv.URL).Fetch(context.Background())
	if got != nil {
		t.Fatalf("expected nil on permanent error, got %v", got)
	}
	if n := attempts.Load(); n != 1 {
		t.Fatalf("expected a single attempt on 404, got %d", n)
	}
}

func TestClient_Fetch_MalformedCollection(t *testing.T) {
	srv := httptest.NewServer(feedMux(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"blocked"}`))
	}, nil))
	defer srv.Close()

	if got := newTestClient(srv.URL).Fetch(context.Background()); got != nil {
		t.Fatalf("expected nil for a non-collection body, got %v", got)
	}
}

func TestClient_Fetch_BrowserHeaders(t *testing.T) {
	srv := httptest.NewServer(feedMux(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != browserUserAgent {
			t.Errorf("unexpected User-Agent: %q", ua)
		}
		if accept := r.Header.Get("Accept"); accept != "application/json" {
			t.Errorf("unexpected Accept: %q", accept)
		}
		w.Write([]byte(`[]`))
	}, nil))
	defer srv.Close()

	newTestClient(srv.URL).Fetch(context.Background())
}

func TestClient_BackoffClamped(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBaseDelay = time.Second
	c := NewClient(cfg, zap.NewNop())

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{5, 16 * time.Second},
		{6, maxRetryDelay},  // 32s exceeds the cap
		{64, maxRetryDelay}, // shift wraps, clamp still holds
	}
	for _, tc := range tests {
		if got := c.backoff(tc.attempt); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestStatusError_Classification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusUnauthorized, false},
	}

	for _, tc := range tests {
		if got := statusError("get", tc.status).Retryable; got != tc.retryable {
			t.Errorf("status %d: retryable=%v, want %v", tc.status, got, tc.retryable)
		}
	}
}

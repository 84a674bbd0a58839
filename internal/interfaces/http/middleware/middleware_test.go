package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dreschagin/process-detector/pkg/logger"
)

func TestValidateRequestAuth(t *testing.T) {
	failures := 0
	cfg := AuthConfig{Enabled: true, BearerToken: "secret", OnFailure: func() { failures++ }}

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		wantErr bool
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") }, false},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer secret") }, false},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AuthCookieName, Value: "secret"}) }, false},
		{"query token", func(r *http.Request) { r.URL.RawQuery = "token=secret" }, false},
		{"wrong token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, true},
		{"missing token", func(r *http.Request) {}, true},
	}

	wantFailures := 0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/acme/trend", nil)
			tt.prepare(req)
			err := ValidateRequestAuth(req, cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateRequestAuth() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
		if tt.wantErr {
			wantFailures++
		}
	}

	if failures != wantFailures {
		t.Fatalf("expected %d failure callbacks, got %d", wantFailures, failures)
	}

	if err := ValidateRequestAuth(httptest.NewRequest(http.MethodGet, "/", nil), AuthConfig{}); err != nil {
		t.Fatalf("disabled auth must pass, got %v", err)
	}
	if err := ValidateRequestAuth(httptest.NewRequest(http.MethodGet, "/", nil), AuthConfig{Enabled: true}); err == nil {
		t.Fatal("enabled auth without token must reject")
	}
}

func TestIPRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(2, 2)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("10.0.0.1") || !limiter.Allow("10.0.0.1") {
		t.Fatal("burst of 2 must be allowed")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatal("third request within burst must be rejected")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatal("other clients have their own budget")
	}

	now = now.Add(30 * time.Second)
	if !limiter.Allow("10.0.0.1") {
		t.Fatal("one token must be refilled after 30s at 2/min")
	}

	now = now.Add(11 * time.Minute)
	if removed := limiter.Cleanup(); removed != 2 {
		t.Fatalf("expected 2 idle limiters removed, got %d", removed)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limited := 0
	h := RateLimit(NewIPRateLimiter(1, 1), func() { limited++ })(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, rec.Code)
		}
	}
	if limited != 1 {
		t.Fatalf("expected one limited callback, got %d", limited)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "10.0.0.2:1234", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.2:1234", "198.51.100.2"},
		{"remote addr", nil, "192.0.2.10:5555", "192.0.2.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Fatalf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.New("error"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestCompression(t *testing.T) {
	payload := `{"status":"ok"}`
	h := Compression(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, payload)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/acme/trend", nil)
	req.Header.Set("Accept-Encoding", "br, gzip;q=0.8")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatal("expected gzip encoding")
	}
	gz, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	body, _ := io.ReadAll(gz)
	if string(body) != payload {
		t.Fatalf("unexpected body %q", body)
	}

	plain := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	plain.Header.Set("Accept-Encoding", "gzip")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, plain)
	if rec.Header().Get("Content-Encoding") != "" || rec.Body.String() != payload {
		t.Fatal("/metrics must not be compressed by middleware")
	}
}

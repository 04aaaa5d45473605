package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func limiterLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// doRequest sends one request through wrapped from the given remote
// address and returns the recorder.
func doRequest(wrapped http.Handler, remoteAddr string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	req.RemoteAddr = remoteAddr
	for name, values := range header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_AllowUpToLimit(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute, limiterLogger())

	for i := 0; i < 5; i++ {
		if !rl.Allow("192.168.1.1") {
			t.Errorf("attempt %d should be allowed", i+1)
		}
	}
	if rl.Allow("192.168.1.1") {
		t.Error("attempt past the limit should be denied")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, limiterLogger())

	rl.Allow("192.168.1.1")
	rl.Allow("192.168.1.1")
	if rl.Allow("192.168.1.1") {
		t.Error("first key should be limited")
	}

	if !rl.Allow("192.168.1.2") || !rl.Allow("192.168.1.2") {
		t.Error("second key should have its own budget")
	}
	if rl.Allow("192.168.1.2") {
		t.Error("second key should now be limited too")
	}
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond, limiterLogger())

	rl.Allow("192.168.1.1")
	rl.Allow("192.168.1.1")
	if rl.Allow("192.168.1.1") {
		t.Error("should be limited inside the window")
	}

	time.Sleep(60 * time.Millisecond)

	if !rl.Allow("192.168.1.1") {
		t.Error("should be allowed after the window expires")
	}
}

func TestRateLimiter_RecordFailureCountsAgainstLimit(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute, limiterLogger())

	for i := 0; i < 5; i++ {
		rl.RecordFailure("192.168.1.1")
	}
	if rl.Allow("192.168.1.1") {
		t.Error("recorded failures should exhaust the budget")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, limiterLogger())

	rl.Allow("192.168.1.1")
	rl.Allow("192.168.1.1")
	if rl.Allow("192.168.1.1") {
		t.Error("should be limited before reset")
	}

	rl.Reset("192.168.1.1")

	if !rl.Allow("192.168.1.1") {
		t.Error("should be allowed after reset")
	}
}

func TestRateLimitMiddleware_BlocksAfterLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, limiterLogger())
	wrapped := NewRateLimitMiddleware(rl, limiterLogger()).Limit(okHandler())

	for i := 0; i < 3; i++ {
		rec := doRequest(wrapped, "192.168.1.1:12345", nil)
		want := http.StatusOK
		if i == 2 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Errorf("request %d: expected %d, got %d", i+1, want, rec.Code)
		}
	}
}

func TestRateLimitMiddleware_TooManyRequestsResponse(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, limiterLogger())
	wrapped := NewRateLimitMiddleware(rl, limiterLogger()).Limit(okHandler())

	doRequest(wrapped, "192.168.1.1:12345", nil)
	rec := doRequest(wrapped, "192.168.1.1:12345", nil)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header to be set")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON error body, got %q", ct)
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != "rate_limit" {
		t.Errorf("expected rate_limit code, got %q", body.Error.Code)
	}
}

func TestRateLimitMiddleware_KeysByForwardedClientIP(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, limiterLogger())
	wrapped := NewRateLimitMiddleware(rl, limiterLogger()).Limit(okHandler())

	// All requests arrive via the same proxy but carry the real client
	// in X-Forwarded-For, so the limit applies per client.
	header := http.Header{"X-Forwarded-For": []string{"203.0.113.195, 70.41.3.18"}}
	for i := 0; i < 3; i++ {
		rec := doRequest(wrapped, "10.0.0.1:12345", header)
		want := http.StatusOK
		if i == 2 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Errorf("request %d: expected %d, got %d", i+1, want, rec.Code)
		}
	}
}

func TestRateLimitMiddleware_KeysByRealIPHeader(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, limiterLogger())
	wrapped := NewRateLimitMiddleware(rl, limiterLogger()).Limit(okHandler())

	header := http.Header{"X-Real-IP": []string{"203.0.113.195"}}
	for i := 0; i < 3; i++ {
		rec := doRequest(wrapped, "10.0.0.1:12345", header)
		want := http.StatusOK
		if i == 2 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Errorf("request %d: expected %d, got %d", i+1, want, rec.Code)
		}
	}
}

func TestAuthRateLimiter_LoginLimitConfigurable(t *testing.T) {
	arl := NewAuthRateLimiter(5, 15*time.Minute, limiterLogger())
	wrapped := arl.LimitLogin(okHandler())

	for i := 0; i < 6; i++ {
		rec := doRequest(wrapped, "192.168.1.1:12345", nil)
		want := http.StatusOK
		if i == 5 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Errorf("login %d: expected %d, got %d", i+1, want, rec.Code)
		}
	}
}

func TestAuthRateLimiter_RegisterLimitFixed(t *testing.T) {
	arl := NewAuthRateLimiter(5, 15*time.Minute, limiterLogger())
	wrapped := arl.LimitRegister(okHandler())

	// Registration is fixed at 3 per hour regardless of login settings.
	for i := 0; i < 4; i++ {
		rec := doRequest(wrapped, "192.168.1.1:12345", nil)
		want := http.StatusOK
		if i == 3 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Errorf("registration %d: expected %d, got %d", i+1, want, rec.Code)
		}
	}
}

func TestAuthRateLimiter_RecordFailedLogin(t *testing.T) {
	arl := NewAuthRateLimiter(5, 15*time.Minute, limiterLogger())

	for i := 0; i < 5; i++ {
		arl.RecordFailedLogin("192.168.1.1")
	}

	rec := doRequest(arl.LimitLogin(okHandler()), "192.168.1.1:12345", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after failed logins, got %d", rec.Code)
	}
}

func TestAuthRateLimiter_ResetOnSuccess(t *testing.T) {
	arl := NewAuthRateLimiter(5, 15*time.Minute, limiterLogger())

	for i := 0; i < 3; i++ {
		arl.RecordFailedLogin("192.168.1.1")
	}
	arl.ResetLogin("192.168.1.1")

	wrapped := arl.LimitLogin(okHandler())
	for i := 0; i < 5; i++ {
		rec := doRequest(wrapped, "192.168.1.1:12345", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("login %d: expected 200 after reset, got %d", i+1, rec.Code)
		}
	}
}

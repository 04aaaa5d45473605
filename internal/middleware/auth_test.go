package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/quill-app/quill/internal/auth"
	"github.com/quill-app/quill/internal/domain"
)

// =============================================================================
// Mock UserService
// =============================================================================

// mockUserService implements service.UserService with a single known
// session token.
type mockUserService struct {
	validToken string
	user       *domain.User

	getBySessionCalls int
}

func newMockUserService() *mockUserService {
	return &mockUserService{
		validToken: "valid-token",
		user: &domain.User{
			ID:    uuid.New(),
			Email: "test@example.com",
			Name:  "Test User",
			Subscription: domain.Subscription{
				Plan:   domain.PlanFree,
				Status: domain.SubscriptionStatusInactive,
			},
		},
	}
}

func (m *mockUserService) Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
	return nil, domain.Invalid("user.register", "not implemented")
}

func (m *mockUserService) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	return nil, domain.Unauthorized("user.login", "not implemented")
}

func (m *mockUserService) Logout(ctx context.Context, token string) error {
	return nil
}

func (m *mockUserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if m.user != nil && m.user.ID == id {
		return m.user, nil
	}
	return nil, domain.NotFound("user.get", "user", id.String())
}

func (m *mockUserService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	m.getBySessionCalls++
	if token == m.validToken {
		return m.user, nil
	}
	return nil, domain.Unauthorized("user.get_by_session", "Invalid or expired session")
}

func (m *mockUserService) SyncIdentity(ctx context.Context, id uuid.UUID, email, name string) error {
	return nil
}

func (m *mockUserService) UpdateStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	return nil
}

func (m *mockUserService) DeleteExpiredSessions(ctx context.Context) error {
	return nil
}

// =============================================================================
// WithUser Tests
// =============================================================================

func TestWithUser_ValidCookie(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	us := newMockUserService()
	mw := NewAuthMiddleware(us, logger, false)

	var gotUser *domain.User
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = auth.GetUser(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-token"})
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if gotUser == nil {
		t.Fatal("expected user in context")
	}
	if gotUser.ID != us.user.ID {
		t.Errorf("expected user %s, got %s", us.user.ID, gotUser.ID)
	}
}

func TestWithUser_BearerToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	us := newMockUserService()
	mw := NewAuthMiddleware(us, logger, false)

	var gotUser *domain.User
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = auth.GetUser(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if gotUser == nil {
		t.Fatal("expected user in context from bearer token")
	}
}

func TestWithUser_CookieTakesPrecedenceOverBearer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	us := newMockUserService()
	mw := NewAuthMiddleware(us, logger, false)

	var gotUser *domain.User
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = auth.GetUser(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-token"})
	req.Header.Set("Authorization", "Bearer some-other-token")
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if gotUser == nil {
		t.Fatal("expected cookie token to authenticate the request")
	}
}

func TestWithUser_NoToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	us := newMockUserService()
	mw := NewAuthMiddleware(us, logger, false)

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		if auth.GetUser(r.Context()) != nil {
			t.Error("expected no user in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/me", nil)
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("expected request to continue without a token")
	}
	if us.getBySessionCalls != 0 {
		t.Error("expected no session lookup without a token")
	}
}

func TestWithUser_InvalidCookieClearsIt(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	us := newMockUserService()
	mw := NewAuthMiddleware(us, logger, false)

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		if auth.GetUser(r.Context()) != nil {
			t.Error("expected no user for an invalid session")
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "expired-token"})
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("expected request to continue with an invalid session")
	}

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected invalid session cookie to be cleared")
	}
}

func TestWithUser_InvalidBearerDoesNotSetCookie(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	us := newMockUserService()
	mw := NewAuthMiddleware(us, logger, false)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	// No cookie arrived, so no clearing cookie should leave either.
	if len(rec.Result().Cookies()) != 0 {
		t.Errorf("expected no Set-Cookie for bearer-only requests, got %v", rec.Result().Cookies())
	}
}

// =============================================================================
// RequireUser Tests
// =============================================================================

func TestRequireUser_Authenticated(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	us := newMockUserService()
	mw := NewAuthMiddleware(us, logger, false)

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/me", nil)
	req = req.WithContext(auth.SetUser(req.Context(), us.user))
	rec := httptest.NewRecorder()

	mw.RequireUser(handler).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("expected handler to be called for authenticated request")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireUser_Unauthenticated(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	us := newMockUserService()
	mw := NewAuthMiddleware(us, logger, false)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	req := httptest.NewRequest("GET", "/api/me", nil)
	rec := httptest.NewRecorder()

	mw.RequireUser(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON response, got %q", ct)
	}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Error.Code != "unauthorized" {
		t.Errorf("expected error code unauthorized, got %q", body.Error.Code)
	}
}

// =============================================================================
// Cookie Helper Tests
// =============================================================================

func TestSetSessionCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "abc123", true)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}

	c := cookies[0]
	if c.Name != SessionCookieName {
		t.Errorf("expected cookie name %q, got %q", SessionCookieName, c.Name)
	}
	if c.Value != "abc123" {
		t.Errorf("expected cookie value abc123, got %q", c.Value)
	}
	if !c.HttpOnly {
		t.Error("expected HttpOnly cookie")
	}
	if !c.Secure {
		t.Error("expected Secure cookie when isSecure=true")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("expected SameSite=Lax, got %v", c.SameSite)
	}
	if c.MaxAge != SessionCookieMaxAge {
		t.Errorf("expected MaxAge=%d, got %d", SessionCookieMaxAge, c.MaxAge)
	}
}

func TestClearSessionCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearSessionCookie(rec, false)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}

	c := cookies[0]
	if c.Name != SessionCookieName {
		t.Errorf("expected cookie name %q, got %q", SessionCookieName, c.Name)
	}
	if c.Value != "" {
		t.Errorf("expected empty cookie value, got %q", c.Value)
	}
	if c.MaxAge >= 0 {
		t.Errorf("expected negative MaxAge to clear cookie, got %d", c.MaxAge)
	}
}

// =============================================================================
// Stack Tests
// =============================================================================

func TestStack_Order(t *testing.T) {
	var order []string

	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
		w.WriteHeader(http.StatusOK)
	})

	stacked := Stack(tag("first"), tag("second"), tag("third"))(final)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	stacked.ServeHTTP(rec, req)

	want := "first,second,third,handler"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("expected order %s, got %s", want, got)
	}
}

func TestStack_Empty(t *testing.T) {
	handlerCalled := false
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	Stack()(final).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("expected final handler to be called with empty stack")
	}
}

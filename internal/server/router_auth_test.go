package server

import (
	contextpkg "context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/taskfolders/internal/auth"
	"github.com/MarcoPoloResearchLab/taskfolders/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newAuthTestContext(t *testing.T, handler *httpHandler, token string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	templates, err := loadTemplates()
	if err != nil {
		t.Fatalf("failed to load templates: %v", err)
	}
	recorder := httptest.NewRecorder()
	ctx, engine := gin.CreateTestContext(recorder)
	engine.SetHTMLTemplate(templates)
	request := httptest.NewRequest(http.MethodGet, "/dashboard", http.NoBody)
	if token != "" {
		request.AddCookie(&http.Cookie{Name: handler.cookieName, Value: token})
	}
	ctx.Request = request
	return ctx, recorder
}

func TestRequirePrincipalLogsExpiredSessionAtInfoLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionManager{
			resolveErr: fmt.Errorf("%w: %w", auth.ErrUnauthenticated, auth.ErrExpiredSessionToken),
		},
		cookieName: defaultCookieName,
		logger:     zap.New(core),
	}
	ctx, recorder := newAuthTestContext(t, handler, "expired-token")

	handler.requirePrincipal(ctx)

	if recorder.Code != http.StatusFound || recorder.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", recorder.Code, recorder.Header().Get("Location"))
	}
	if !ctx.IsAborted() {
		t.Fatalf("expected handler chain to be aborted")
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired session, got %s", entry.Level)
	}
	if entry.Message != "session validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), auth.ErrExpiredSessionToken) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired session error context, got %v", entry.Context)
	}
}

func TestRequirePrincipalLogsRejectedSessionAtWarnLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionManager{
			resolveErr: fmt.Errorf("%w: %w", auth.ErrUnauthenticated, auth.ErrInvalidSessionToken),
		},
		cookieName: defaultCookieName,
		logger:     zap.New(core),
	}
	ctx, recorder := newAuthTestContext(t, handler, "forged-token")

	handler.requirePrincipal(ctx)

	if recorder.Code != http.StatusFound {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusFound)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for rejected session, got %s", entries[0].Level)
	}
	cleared := false
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == defaultCookieName && cookie.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected rejected session cookie to be cleared")
	}
}

func TestRequirePrincipalRedirectsWithoutCookie(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions:   stubSessionManager{},
		cookieName: defaultCookieName,
		logger:     zap.New(core),
	}
	ctx, recorder := newAuthTestContext(t, handler, "")

	handler.requirePrincipal(ctx)

	if recorder.Code != http.StatusFound || recorder.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", recorder.Code, recorder.Header().Get("Location"))
	}
	if logs.Len() != 0 {
		t.Fatalf("expected anonymous requests not to be logged, got %d entries", logs.Len())
	}
}

func TestRequirePrincipalRendersServerErrorOnStoreFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions:   stubSessionManager{resolveErr: errors.New("database is locked")},
		cookieName: defaultCookieName,
		logger:     zap.New(core),
	}
	ctx, recorder := newAuthTestContext(t, handler, "token")

	handler.requirePrincipal(ctx)

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected server error, got %d", recorder.Code)
	}
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Fatalf("expected store failure to be logged at error level")
	}
}

func TestRequirePrincipalStoresPrincipal(t *testing.T) {
	principal := users.Principal{ID: "principal-1", Username: "ann"}
	handler := &httpHandler{
		sessions:   stubSessionManager{principal: principal},
		cookieName: defaultCookieName,
		logger:     zap.NewNop(),
	}
	ctx, _ := newAuthTestContext(t, handler, "token")

	handler.requirePrincipal(ctx)

	stored, ok := currentPrincipal(ctx)
	if !ok || stored.ID != principal.ID {
		t.Fatalf("expected principal on context, got %+v", stored)
	}
	if ctx.IsAborted() {
		t.Fatalf("expected request to continue")
	}
}

func TestCapitalizeUsername(t *testing.T) {
	cases := map[string]string{
		"":          "",
		"ann":       "Ann",
		"ANN SMITH": "Ann smith",
		"émile":     "Émile",
	}
	for input, expected := range cases {
		if actual := capitalizeUsername(input); actual != expected {
			t.Fatalf("capitalizeUsername(%q) = %q, want %q", input, actual, expected)
		}
	}
}

type stubSessionManager struct {
	principal  users.Principal
	resolveErr error
}

func (s stubSessionManager) Establish(contextpkg.Context, users.Principal) (string, time.Time, error) {
	return "", time.Time{}, errors.New("not implemented")
}

func (s stubSessionManager) Resolve(contextpkg.Context, string) (users.Principal, error) {
	if s.resolveErr != nil {
		return users.Principal{}, s.resolveErr
	}
	return s.principal, nil
}

func (s stubSessionManager) Terminate(contextpkg.Context, string) error {
	return nil
}

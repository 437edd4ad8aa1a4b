package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

const testAuthorizationCode = "code-123"

func newTokenServer(t *testing.T, extra map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Form.Get("code") != testAuthorizationCode {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		body := map[string]any{
			"access_token": "access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		for key, value := range extra {
			body[key] = value
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func testEndpoint(tokenServer *httptest.Server) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   "https://provider.example.com/authorize",
		TokenURL:  tokenServer.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

func TestStateRoundTrip(t *testing.T) {
	first, err := NewState()
	if err != nil {
		t.Fatalf("unexpected state error: %v", err)
	}
	second, err := NewState()
	if err != nil {
		t.Fatalf("unexpected state error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct states")
	}
	if err := CheckState(first, first); err != nil {
		t.Fatalf("expected matching state to pass, got %v", err)
	}
	for _, received := range []string{second, "", "  "} {
		if err := CheckState(first, received); !errors.Is(err, ErrStateMismatch) {
			t.Fatalf("expected mismatch for %q, got %v", received, err)
		}
	}
	if err := CheckState("", ""); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("expected empty states to mismatch, got %v", err)
	}
}

func TestGoogleProviderExchangesCodeForVerifiedProfile(t *testing.T) {
	jwks := newTestJWKS(t)
	idToken := jwks.sign(t, googleClaims(testGoogleClientID, time.Now().UTC()))
	tokenServer := newTokenServer(t, map[string]any{"id_token": idToken})

	verifier, err := NewGoogleVerifier(GoogleVerifierConfig{
		Audience:   testGoogleClientID,
		JWKSURL:    jwks.URL(),
		HTTPClient: jwks.server.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected verifier error: %v", err)
	}
	provider, err := NewGoogleProvider(GoogleConfig{
		ClientID:     testGoogleClientID,
		ClientSecret: "secret",
		CallbackURL:  "http://localhost:8080/auth/google/todolist",
		Verifier:     verifier,
		Endpoint:     testEndpoint(tokenServer),
	})
	if err != nil {
		t.Fatalf("unexpected provider error: %v", err)
	}

	authURL, err := url.Parse(provider.AuthCodeURL("state-abc"))
	if err != nil {
		t.Fatalf("invalid auth url: %v", err)
	}
	query := authURL.Query()
	if query.Get("state") != "state-abc" || query.Get("client_id") != testGoogleClientID {
		t.Fatalf("unexpected auth url query: %v", query)
	}
	if !strings.Contains(query.Get("scope"), "email") {
		t.Fatalf("expected email scope, got %q", query.Get("scope"))
	}

	credentials, err := provider.Exchange(context.Background(), testAuthorizationCode)
	if err != nil {
		t.Fatalf("unexpected exchange error: %v", err)
	}
	if credentials.Provider != ProviderGoogle || credentials.Subject != "google-123" {
		t.Fatalf("unexpected credentials %+v", credentials)
	}
	if credentials.DisplayName != "Ann Smith" || credentials.Email != "ann@example.com" {
		t.Fatalf("unexpected profile %+v", credentials)
	}
}

func TestGoogleProviderRequiresIDToken(t *testing.T) {
	tokenServer := newTokenServer(t, nil)
	provider, err := NewGoogleProvider(GoogleConfig{
		ClientID:     testGoogleClientID,
		ClientSecret: "secret",
		CallbackURL:  "http://localhost:8080/auth/google/todolist",
		Verifier:     &GoogleVerifier{},
		Endpoint:     testEndpoint(tokenServer),
	})
	if err != nil {
		t.Fatalf("unexpected provider error: %v", err)
	}

	if _, err := provider.Exchange(context.Background(), testAuthorizationCode); !errors.Is(err, ErrMissingIDToken) {
		t.Fatalf("expected missing id token error, got %v", err)
	}
	if _, err := provider.Exchange(context.Background(), " "); !errors.Is(err, ErrMissingCode) {
		t.Fatalf("expected missing code error, got %v", err)
	}
	if _, err := provider.Exchange(context.Background(), "wrong-code"); err == nil {
		t.Fatalf("expected rejected code to fail")
	}
}

func TestNewGoogleProviderValidatesConfig(t *testing.T) {
	if _, err := NewGoogleProvider(GoogleConfig{ClientID: "id", ClientSecret: "secret"}); !errors.Is(err, ErrInvalidProviderCfg) {
		t.Fatalf("expected invalid config for missing callback, got %v", err)
	}
	if _, err := NewGoogleProvider(GoogleConfig{ClientID: "id", ClientSecret: "secret", CallbackURL: "http://cb"}); !errors.Is(err, ErrInvalidProviderCfg) {
		t.Fatalf("expected invalid config for missing verifier, got %v", err)
	}
}

func TestFacebookProviderReadsGraphProfile(t *testing.T) {
	tokenServer := newTokenServer(t, nil)
	var requestedFields, authorization string
	graphServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me" {
			http.NotFound(w, r)
			return
		}
		requestedFields = r.URL.Query().Get("fields")
		authorization = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":         "fb-42",
			"name":       "Ann Smith",
			"first_name": "Ann",
			"last_name":  "Smith",
			"email":      "ann@example.com",
		})
	}))
	t.Cleanup(graphServer.Close)

	provider, err := NewFacebookProvider(FacebookConfig{
		AppID:       "app-id",
		AppSecret:   "app-secret",
		CallbackURL: "http://localhost:8080/auth/facebook/callback",
		GraphURL:    graphServer.URL + "/",
		Endpoint:    testEndpoint(tokenServer),
	})
	if err != nil {
		t.Fatalf("unexpected provider error: %v", err)
	}

	credentials, err := provider.Exchange(context.Background(), testAuthorizationCode)
	if err != nil {
		t.Fatalf("unexpected exchange error: %v", err)
	}
	if credentials.Provider != ProviderFacebook || credentials.Subject != "fb-42" {
		t.Fatalf("unexpected credentials %+v", credentials)
	}
	if credentials.DisplayName != "Smith Ann" {
		t.Fatalf("expected family name first, got %q", credentials.DisplayName)
	}
	if credentials.Email != "ann@example.com" {
		t.Fatalf("unexpected email %q", credentials.Email)
	}
	if requestedFields != facebookProfileFields {
		t.Fatalf("unexpected fields %q", requestedFields)
	}
	if authorization != "Bearer access-token" {
		t.Fatalf("expected bearer token on graph request, got %q", authorization)
	}
}

func TestFacebookProviderRejectsGraphFailure(t *testing.T) {
	tokenServer := newTokenServer(t, nil)
	graphServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"expired"}}`, http.StatusUnauthorized)
	}))
	t.Cleanup(graphServer.Close)

	provider, err := NewFacebookProvider(FacebookConfig{
		AppID:       "app-id",
		AppSecret:   "app-secret",
		CallbackURL: "http://localhost:8080/auth/facebook/callback",
		GraphURL:    graphServer.URL,
		Endpoint:    testEndpoint(tokenServer),
	})
	if err != nil {
		t.Fatalf("unexpected provider error: %v", err)
	}

	if _, err := provider.Exchange(context.Background(), testAuthorizationCode); err == nil {
		t.Fatalf("expected graph failure to fail the exchange")
	}
}

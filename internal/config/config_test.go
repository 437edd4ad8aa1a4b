package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("session.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
	if cfg.SessionCookieName != defaultCookieName {
		t.Fatalf("unexpected cookie name %q", cfg.SessionCookieName)
	}
	if cfg.SessionTTL != 10*time.Hour {
		t.Fatalf("unexpected session ttl %v", cfg.SessionTTL)
	}
	if cfg.SessionCookieSecure {
		t.Fatalf("expected insecure cookies by default")
	}
	if cfg.Google.Enabled() || cfg.Facebook.Enabled() {
		t.Fatalf("expected external providers to be disabled by default")
	}
	if cfg.Google.JWKSURL != defaultGoogleJWKSURL || cfg.Facebook.GraphURL != defaultFacebookGraph {
		t.Fatalf("unexpected provider defaults: %+v %+v", cfg.Google, cfg.Facebook)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("expected no cors origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	_, err := Load(NewViper())
	if err == nil || !strings.Contains(err.Error(), "session.signing_secret") {
		t.Fatalf("expected signing secret error, got %v", err)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("TASKFOLDERS_SESSION_SIGNING_SECRET", "env-secret")
	t.Setenv("TASKFOLDERS_SESSION_TTL", "30m")
	t.Setenv("TASKFOLDERS_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("TASKFOLDERS_GOOGLE_CLIENT_ID", "google-id")
	t.Setenv("TASKFOLDERS_GOOGLE_CLIENT_SECRET", "google-secret")
	t.Setenv("TASKFOLDERS_GOOGLE_CALLBACK_URL", "http://localhost:8080/auth/google/todolist")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.SessionSigningSecret != "env-secret" {
		t.Fatalf("expected secret from environment, got %q", cfg.SessionSigningSecret)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected ttl from environment, got %v", cfg.SessionTTL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if !cfg.Google.Enabled() || cfg.Google.CallbackURL == "" {
		t.Fatalf("expected google to be configured, got %+v", cfg.Google)
	}
}

func TestLoadRejectsPartialProviderConfig(t *testing.T) {
	configViper := NewViper()
	configViper.Set("session.signing_secret", "secret")
	configViper.Set("facebook.app_id", "app-id")

	_, err := Load(configViper)
	if err == nil || !strings.Contains(err.Error(), "facebook.app_secret") {
		t.Fatalf("expected facebook validation error, got %v", err)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "session:\n  signing_secret: file-secret\n  cookie_secure: true\nhttp:\n  address: 127.0.0.1:9090\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	configViper := NewViper()
	configViper.SetConfigFile(path)
	if err := configViper.ReadInConfig(); err != nil {
		t.Fatalf("failed to read config: %v", err)
	}

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9090" || !cfg.SessionCookieSecure || cfg.SessionSigningSecret != "file-secret" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

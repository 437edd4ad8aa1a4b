package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "TASKFOLDERS"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "taskfolders.db"
	defaultLogLevel      = "info"
	defaultCookieName    = "taskfolders_session"
	defaultSessionTTL    = 10 * time.Hour
	defaultGoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
	defaultFacebookGraph = "https://graph.facebook.com"
)

// AppConfig captures runtime configuration for the web server.
type AppConfig struct {
	HTTPAddress          string
	DatabasePath         string
	LogLevel             string
	SessionSigningSecret string
	SessionCookieName    string
	SessionTTL           time.Duration
	SessionCookieSecure  bool
	AllowedOrigins       []string
	Google               GoogleConfig
	Facebook             FacebookConfig
}

// GoogleConfig holds the Google OAuth client. An empty client id disables Google sign-in.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	JWKSURL      string
}

// Enabled reports whether Google sign-in is configured.
func (c GoogleConfig) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != ""
}

// FacebookConfig holds the Facebook OAuth application. An empty app id disables Facebook sign-in.
type FacebookConfig struct {
	AppID       string
	AppSecret   string
	CallbackURL string
	GraphURL    string
}

// Enabled reports whether Facebook sign-in is configured.
func (c FacebookConfig) Enabled() bool {
	return strings.TrimSpace(c.AppID) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.ttl", defaultSessionTTL)
	configViper.SetDefault("session.cookie_secure", false)
	configViper.SetDefault("cors.allowed_origins", []string{})
	configViper.SetDefault("google.jwks_url", defaultGoogleJWKSURL)
	configViper.SetDefault("facebook.graph_url", defaultFacebookGraph)

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"session.signing_secret",
		"google.client_id",
		"google.client_secret",
		"google.callback_url",
		"facebook.app_id",
		"facebook.app_secret",
		"facebook.callback_url",
	} {
		_ = configViper.BindEnv(key)
	}
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		SessionTTL:           configViper.GetDuration("session.ttl"),
		SessionCookieSecure:  configViper.GetBool("session.cookie_secure"),
		AllowedOrigins:       splitList(configViper.GetStringSlice("cors.allowed_origins")),
		Google: GoogleConfig{
			ClientID:     configViper.GetString("google.client_id"),
			ClientSecret: configViper.GetString("google.client_secret"),
			CallbackURL:  configViper.GetString("google.callback_url"),
			JWKSURL:      configViper.GetString("google.jwks_url"),
		},
		Facebook: FacebookConfig{
			AppID:       configViper.GetString("facebook.app_id"),
			AppSecret:   configViper.GetString("facebook.app_secret"),
			CallbackURL: configViper.GetString("facebook.callback_url"),
			GraphURL:    configViper.GetString("facebook.graph_url"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Google.Enabled() {
		if strings.TrimSpace(c.Google.ClientSecret) == "" || strings.TrimSpace(c.Google.CallbackURL) == "" {
			return fmt.Errorf("google.client_secret and google.callback_url are required when google.client_id is set")
		}
	}
	if c.Facebook.Enabled() {
		if strings.TrimSpace(c.Facebook.AppSecret) == "" || strings.TrimSpace(c.Facebook.CallbackURL) == "" {
			return fmt.Errorf("facebook.app_secret and facebook.callback_url are required when facebook.app_id is set")
		}
	}
	return nil
}

// splitList flattens comma separated entries, which is how list values arrive from the environment.
func splitList(values []string) []string {
	var result []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}

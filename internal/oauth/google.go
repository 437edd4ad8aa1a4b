package oauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/taskfolders/internal/users"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// IDTokenVerifier validates the id_token returned alongside the Google access token.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (GoogleIdentity, error)
}

// GoogleConfig describes the Google OAuth client.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Verifier     IDTokenVerifier
	// Endpoint overrides endpoints.Google when set.
	Endpoint oauth2.Endpoint
	Logger   *zap.Logger
}

// GoogleProvider signs users in with Google and reads their profile from the verified id_token.
type GoogleProvider struct {
	config   *oauth2.Config
	verifier IDTokenVerifier
	logger   *zap.Logger
}

// NewGoogleProvider validates the client configuration.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	callbackURL := strings.TrimSpace(cfg.CallbackURL)
	if clientID == "" || clientSecret == "" || callbackURL == "" {
		return nil, fmt.Errorf("%w: google client id, secret and callback url are required", ErrInvalidProviderCfg)
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("%w: google id token verifier is required", ErrInvalidProviderCfg)
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = endpoints.Google
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "profile", "email"},
		},
		verifier: cfg.Verifier,
		logger:   logger,
	}, nil
}

func (p *GoogleProvider) Name() string {
	return ProviderGoogle
}

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange redeems the code and maps the id_token claims onto external credentials.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (users.ExternalCredentials, error) {
	if strings.TrimSpace(code) == "" {
		return users.ExternalCredentials{}, ErrMissingCode
	}
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return users.ExternalCredentials{}, fmt.Errorf("oauth: google code exchange: %w", err)
	}
	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return users.ExternalCredentials{}, ErrMissingIDToken
	}
	identity, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return users.ExternalCredentials{}, fmt.Errorf("oauth: google id token: %w", err)
	}
	if identity.Email == "" {
		p.logger.Info("google profile without email", zap.String("subject", identity.Subject))
	}
	return users.ExternalCredentials{
		Provider:    ProviderGoogle,
		Subject:     identity.Subject,
		DisplayName: identity.Name,
		Email:       identity.Email,
	}, nil
}

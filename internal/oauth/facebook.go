package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/taskfolders/internal/users"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// DefaultFacebookGraphURL is the Graph API base used to read the signed-in profile.
const DefaultFacebookGraphURL = "https://graph.facebook.com"

const facebookProfileFields = "id,name,first_name,last_name,email"

// FacebookConfig describes the Facebook OAuth application.
type FacebookConfig struct {
	AppID       string
	AppSecret   string
	CallbackURL string
	GraphURL    string
	// Endpoint overrides endpoints.Facebook when set.
	Endpoint oauth2.Endpoint
	Logger   *zap.Logger
}

// FacebookProvider signs users in with Facebook and reads their profile from the Graph API.
type FacebookProvider struct {
	config   *oauth2.Config
	graphURL string
	logger   *zap.Logger
}

type facebookProfile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// NewFacebookProvider validates the application configuration.
func NewFacebookProvider(cfg FacebookConfig) (*FacebookProvider, error) {
	appID := strings.TrimSpace(cfg.AppID)
	appSecret := strings.TrimSpace(cfg.AppSecret)
	callbackURL := strings.TrimSpace(cfg.CallbackURL)
	if appID == "" || appSecret == "" || callbackURL == "" {
		return nil, fmt.Errorf("%w: facebook app id, secret and callback url are required", ErrInvalidProviderCfg)
	}
	graphURL := strings.TrimRight(strings.TrimSpace(cfg.GraphURL), "/")
	if graphURL == "" {
		graphURL = DefaultFacebookGraphURL
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = endpoints.Facebook
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FacebookProvider{
		config: &oauth2.Config{
			ClientID:     appID,
			ClientSecret: appSecret,
			RedirectURL:  callbackURL,
			Endpoint:     endpoint,
			Scopes:       []string{"email"},
		},
		graphURL: graphURL,
		logger:   logger,
	}, nil
}

func (p *FacebookProvider) Name() string {
	return ProviderFacebook
}

func (p *FacebookProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange redeems the code and loads the profile with the resulting access token.
func (p *FacebookProvider) Exchange(ctx context.Context, code string) (users.ExternalCredentials, error) {
	if strings.TrimSpace(code) == "" {
		return users.ExternalCredentials{}, ErrMissingCode
	}
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return users.ExternalCredentials{}, fmt.Errorf("oauth: facebook code exchange: %w", err)
	}

	profile, err := p.fetchProfile(ctx, token)
	if err != nil {
		return users.ExternalCredentials{}, err
	}
	if profile.ID == "" {
		return users.ExternalCredentials{}, ErrIncompleteProfile
	}

	// Family name first.
	displayName := strings.TrimSpace(profile.LastName + " " + profile.FirstName)
	if displayName == "" {
		displayName = strings.TrimSpace(profile.Name)
	}
	return users.ExternalCredentials{
		Provider:    ProviderFacebook,
		Subject:     profile.ID,
		DisplayName: displayName,
		Email:       profile.Email,
	}, nil
}

func (p *FacebookProvider) fetchProfile(ctx context.Context, token *oauth2.Token) (facebookProfile, error) {
	endpoint := p.graphURL + "/me?" + url.Values{"fields": {facebookProfileFields}}.Encode()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return facebookProfile{}, err
	}
	response, err := p.config.Client(ctx, token).Do(request)
	if err != nil {
		return facebookProfile{}, fmt.Errorf("oauth: facebook profile request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		p.logger.Warn("facebook profile request rejected", zap.Int("status", response.StatusCode))
		return facebookProfile{}, fmt.Errorf("oauth: facebook profile request returned status %d", response.StatusCode)
	}

	var profile facebookProfile
	if err := json.NewDecoder(response.Body).Decode(&profile); err != nil {
		return facebookProfile{}, fmt.Errorf("oauth: decode facebook profile: %w", err)
	}
	return profile, nil
}

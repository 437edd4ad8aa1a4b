package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/taskfolders/internal/users"
)

const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"

	stateEntropyBytes = 32
)

var (
	ErrMissingCode        = errors.New("oauth: authorization code missing")
	ErrStateMismatch      = errors.New("oauth: state mismatch")
	ErrMissingIDToken     = errors.New("oauth: token response missing id_token")
	ErrIncompleteProfile  = errors.New("oauth: provider profile incomplete")
	ErrInvalidProviderCfg = errors.New("oauth: invalid provider config")
)

// Provider runs one authorization-code flow and turns the callback into resolver credentials.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (users.ExternalCredentials, error)
}

// NewState returns an unguessable value for the state parameter and its cookie.
func NewState() (string, error) {
	buffer := make([]byte, stateEntropyBytes)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// CheckState compares the state echoed by the provider with the one stored before the redirect.
func CheckState(expected, received string) error {
	expected = strings.TrimSpace(expected)
	received = strings.TrimSpace(received)
	if expected == "" || received == "" {
		return ErrStateMismatch
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
		return ErrStateMismatch
	}
	return nil
}

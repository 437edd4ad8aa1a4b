package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/taskfolders/internal/users"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// DefaultSessionTTL is the absolute lifetime of a session (36,000,000 ms).
	DefaultSessionTTL    = 10 * time.Hour
	defaultSessionIssuer = "taskfolders"
)

var (
	// ErrUnauthenticated is returned by Resolve whenever no principal can be derived from the token.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	ErrMissingSessionSigningKey = errors.New("session manager: signing key required")
	ErrMissingSessionDatabase   = errors.New("session manager: database required")
	ErrMissingPrincipalLoader   = errors.New("session manager: principal loader required")
	ErrMissingSessionToken      = errors.New("session manager: token required")
	ErrInvalidSessionToken      = errors.New("session manager: invalid token")
	ErrExpiredSessionToken      = errors.New("session manager: token expired")
	ErrRevokedSessionToken      = errors.New("session manager: session revoked")
	ErrMissingSessionSubject    = errors.New("session manager: subject required")
)

// SessionClaims is the JWT payload carried by the session cookie. It never includes credential material.
type SessionClaims struct {
	PrincipalID string `json:"principal_id"`
	Username    string `json:"username"`
	jwt.RegisteredClaims
}

// PrincipalLoader reconstructs a principal from the identifier stored in a session.
type PrincipalLoader interface {
	FindPrincipalByID(ctx context.Context, principalID string) (users.Principal, error)
}

// SessionManagerConfig describes how sessions are issued and stored.
type SessionManagerConfig struct {
	Database      *gorm.DB
	Principals    PrincipalLoader
	SigningSecret []byte
	Issuer        string
	TTL           time.Duration
	IDProvider    users.IDProvider
	Clock         func() time.Time
	Logger        *zap.Logger
}

// SessionManager issues HS256 session tokens bound to rows in the sessions table.
type SessionManager struct {
	db            *gorm.DB
	principals    PrincipalLoader
	signingSecret []byte
	issuer        string
	ttl           time.Duration
	idProvider    users.IDProvider
	clock         func() time.Time
	logger        *zap.Logger
}

// NewSessionManager constructs a manager with the provided configuration.
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	if cfg.Database == nil {
		return nil, ErrMissingSessionDatabase
	}
	if cfg.Principals == nil {
		return nil, ErrMissingPrincipalLoader
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultSessionIssuer
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = users.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		db:            cfg.Database,
		principals:    cfg.Principals,
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		ttl:           ttl,
		idProvider:    idProvider,
		clock:         clock,
		logger:        logger,
	}, nil
}

// TTL returns the absolute session lifetime.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Establish records a session for the principal and returns the signed token and its expiry.
func (m *SessionManager) Establish(ctx context.Context, principal users.Principal) (string, time.Time, error) {
	if strings.TrimSpace(principal.ID) == "" {
		return "", time.Time{}, ErrMissingSessionSubject
	}

	sessionID, err := m.idProvider.NewID()
	if err != nil {
		return "", time.Time{}, err
	}

	issuedAt := m.clock().UTC()
	expiresAt := issuedAt.Add(m.ttl)

	session := Session{
		ID:          sessionID,
		PrincipalID: principal.ID,
		Username:    principal.Username,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
	}
	if err := m.db.WithContext(ctx).Create(&session).Error; err != nil {
		return "", time.Time{}, fmt.Errorf("session manager: store session: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		PrincipalID: principal.ID,
		Username:    principal.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    m.issuer,
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(m.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Resolve reconstructs the principal behind the token. Any failure to do so other than a store error
// yields an error wrapping ErrUnauthenticated.
func (m *SessionManager) Resolve(ctx context.Context, tokenString string) (users.Principal, error) {
	claims, err := m.parse(tokenString, true)
	if err != nil {
		return users.Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	var session Session
	err = m.db.WithContext(ctx).Where("id = ?", claims.ID).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return users.Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrRevokedSessionToken)
	}
	if err != nil {
		return users.Principal{}, fmt.Errorf("session manager: load session: %w", err)
	}
	if session.PrincipalID != claims.PrincipalID {
		return users.Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrInvalidSessionToken)
	}
	if !m.clock().Before(session.ExpiresAt) {
		return users.Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrExpiredSessionToken)
	}

	principal, err := m.principals.FindPrincipalByID(ctx, session.PrincipalID)
	if errors.Is(err, users.ErrPrincipalNotFound) {
		m.logger.Info("session references missing principal", zap.String("principal_id", session.PrincipalID))
		return users.Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if err != nil {
		return users.Principal{}, err
	}
	return principal, nil
}

// Terminate revokes the session behind the token. Unknown, expired or malformed tokens are ignored.
func (m *SessionManager) Terminate(ctx context.Context, tokenString string) error {
	claims, err := m.parse(tokenString, false)
	if err != nil {
		return nil
	}
	if err := m.db.WithContext(ctx).Where("id = ?", claims.ID).Delete(&Session{}).Error; err != nil {
		return fmt.Errorf("session manager: delete session: %w", err)
	}
	return nil
}

// PurgeExpired deletes sessions whose absolute expiry has passed and returns how many were removed.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	result := m.db.WithContext(ctx).Where("expires_at <= ?", m.clock().UTC()).Delete(&Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session manager: purge sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (m *SessionManager) parse(tokenString string, validateClaims bool) (SessionClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	options := []jwt.ParserOption{
		jwt.WithTimeFunc(m.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
	}
	if !validateClaims {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidSessionToken, t.Method.Alg())
			}
			return m.signingSecret, nil
		},
		options...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrExpiredSessionToken
		}
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return SessionClaims{}, ErrInvalidSessionToken
	}
	if strings.TrimSpace(claims.ID) == "" || strings.TrimSpace(claims.PrincipalID) == "" {
		return SessionClaims{}, ErrMissingSessionSubject
	}
	return *claims, nil
}

package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxUsernameCandidates = 16

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// IDProvider issues identifiers for new principals.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required for identity resolution.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Hasher     *PasswordHasher
	Logger     *zap.Logger
}

// Service resolves principals from local credentials and external provider assertions.
type Service struct {
	store      *Store
	now        func() time.Time
	idProvider IDProvider
	hasher     PasswordHasher
	dummyHash  string
	logger     *zap.Logger
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	hasher := NewPasswordHasher()
	if cfg.Hasher != nil {
		hasher = *cfg.Hasher
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	// Unknown usernames are verified against this hash so both login failures cost the same.
	dummyHash, err := hasher.Hash("unused-secret")
	if err != nil {
		return nil, newServiceError(opServiceNew, "dummy_hash_failed", err)
	}

	return &Service{
		store:      NewStore(cfg.Database),
		now:        clock,
		idProvider: cfg.IDProvider,
		hasher:     hasher,
		dummyHash:  dummyHash,
		logger:     logger,
	}, nil
}

// Register creates a principal with a local credential.
func (s *Service) Register(ctx context.Context, registration Registration) (Principal, error) {
	username := NormalizeUsername(registration.Username)
	email := normalize(registration.Email)
	switch {
	case username == "":
		return Principal{}, newValidationError("username", "username is required")
	case email == "":
		return Principal{}, newValidationError("email", "email is required")
	case strings.TrimSpace(registration.Secret) == "":
		return Principal{}, newValidationError("password", "password is required")
	}

	exists, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		s.logError(opRegister, "lookup_failed", err, zap.String("username", username))
		return Principal{}, newServiceError(opRegister, "lookup_failed", err)
	}
	if exists {
		return Principal{}, newValidationError("username", "a user with the given username is already registered")
	}

	credentialHash, err := s.hasher.Hash(registration.Secret)
	if err != nil {
		s.logError(opRegister, "hash_failed", err)
		return Principal{}, newServiceError(opRegister, "hash_failed", err)
	}

	principal, err := s.newPrincipal(username, email)
	if err != nil {
		return Principal{}, err
	}
	principal.CredentialHash = credentialHash

	if err := s.store.Create(ctx, principal); err != nil {
		if errors.Is(err, errDuplicateRecord) {
			return Principal{}, newValidationError("username", "a user with the given username is already registered")
		}
		s.logError(opRegister, "insert_failed", err, zap.String("username", username))
		return Principal{}, newServiceError(opRegister, "insert_failed", err)
	}
	return principal, nil
}

// Resolve produces exactly one principal for the supplied credentials.
func (s *Service) Resolve(ctx context.Context, credentials Credentials) (Principal, error) {
	switch typed := credentials.(type) {
	case LocalCredentials:
		return s.authenticateLocal(ctx, typed)
	case ExternalCredentials:
		return s.resolveExternal(ctx, typed)
	default:
		return Principal{}, ErrUnsupportedCredentials
	}
}

// FindPrincipalByID returns the principal with the given identifier or ErrPrincipalNotFound.
func (s *Service) FindPrincipalByID(ctx context.Context, principalID string) (Principal, error) {
	principal, err := s.store.FindByID(ctx, principalID)
	if err != nil && !errors.Is(err, ErrPrincipalNotFound) {
		s.logError(opFindPrincipal, "query_failed", err, zap.String("principal_id", principalID))
		return Principal{}, newServiceError(opFindPrincipal, "query_failed", err)
	}
	return principal, err
}

func (s *Service) authenticateLocal(ctx context.Context, credentials LocalCredentials) (Principal, error) {
	username := NormalizeUsername(credentials.Username)
	if username == "" {
		return Principal{}, newValidationError("username", "username is required")
	}
	if strings.TrimSpace(credentials.Secret) == "" {
		return Principal{}, newValidationError("password", "password is required")
	}

	principal, err := s.store.FindByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrPrincipalNotFound):
		_, _ = s.hasher.Verify(s.dummyHash, credentials.Secret)
		return Principal{}, ErrInvalidCredentials
	case err != nil:
		s.logError(opAuthenticate, "lookup_failed", err, zap.String("username", username))
		return Principal{}, newServiceError(opAuthenticate, "lookup_failed", err)
	}

	if !principal.HasLocalCredential() {
		_, _ = s.hasher.Verify(s.dummyHash, credentials.Secret)
		return Principal{}, ErrInvalidCredentials
	}

	matched, err := s.hasher.Verify(principal.CredentialHash, credentials.Secret)
	if err != nil {
		s.logError(opAuthenticate, "hash_decode_failed", err, zap.String("principal_id", principal.ID))
		return Principal{}, ErrInvalidCredentials
	}
	if !matched {
		return Principal{}, ErrInvalidCredentials
	}
	return principal, nil
}

func (s *Service) resolveExternal(ctx context.Context, credentials ExternalCredentials) (Principal, error) {
	provider := strings.ToLower(normalize(credentials.Provider))
	subject := normalize(credentials.Subject)
	if provider == "" || provider == StrategyLocal {
		return Principal{}, newValidationError("provider", "identity provider is required")
	}
	if subject == "" {
		return Principal{}, newValidationError("subject", "provider subject is required")
	}

	existing, err := s.store.FindByIdentity(ctx, provider, subject)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrPrincipalNotFound) {
		s.logError(opFindByIdentity, "query_failed", err,
			zap.String("provider", provider),
			zap.String("subject", subject))
		return Principal{}, newServiceError(opFindByIdentity, "query_failed", err)
	}

	email := normalize(credentials.Email)
	if email == "" {
		return Principal{}, newValidationError("email", "identity provider did not supply an email address")
	}
	baseUsername := NormalizeUsername(credentials.DisplayName)
	if baseUsername == "" {
		baseUsername = provider + "-user"
	}

	for attempt := 0; attempt < maxUsernameCandidates; attempt++ {
		principal, err := s.newPrincipal(usernameCandidate(baseUsername, attempt), email)
		if err != nil {
			return Principal{}, err
		}
		principal.Identities = []Identity{{
			Provider:    provider,
			Subject:     subject,
			PrincipalID: principal.ID,
			Email:       email,
			DisplayName: normalize(credentials.DisplayName),
		}}

		err = s.store.Create(ctx, principal)
		if err == nil {
			return principal, nil
		}
		if !errors.Is(err, errDuplicateRecord) {
			s.logError(opCreatePrincipal, "insert_failed", err,
				zap.String("provider", provider),
				zap.String("subject", subject))
			return Principal{}, newServiceError(opCreatePrincipal, "insert_failed", err)
		}

		// Either a concurrent callback linked the identity first or the username is taken.
		winner, lookupErr := s.store.FindByIdentity(ctx, provider, subject)
		if lookupErr == nil {
			return winner, nil
		}
		if !errors.Is(lookupErr, ErrPrincipalNotFound) {
			s.logError(opResolveExternal, "reread_failed", lookupErr,
				zap.String("provider", provider),
				zap.String("subject", subject))
			return Principal{}, newServiceError(opResolveExternal, "reread_failed", lookupErr)
		}
	}

	return Principal{}, newServiceError(opResolveExternal, "username_exhausted",
		fmt.Errorf("no free username derived from %q", baseUsername))
}

func (s *Service) newPrincipal(username, email string) (Principal, error) {
	principalID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreatePrincipal, "id_generation_failed", err)
		return Principal{}, newServiceError(opCreatePrincipal, "id_generation_failed", err)
	}
	return Principal{
		ID:        principalID,
		Username:  username,
		Email:     email,
		CreatedAt: s.now().UTC(),
	}, nil
}

func usernameCandidate(base string, attempt int) string {
	if attempt == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(attempt+1)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("users service error", attrs...)
}

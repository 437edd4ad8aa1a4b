package users

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

var errDuplicateRecord = errors.New("users: duplicate record")

// Store persists principals and their linked identities.
type Store struct {
	db *gorm.DB
}

// NewStore wraps the provided database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindByID loads a principal with its identities.
func (s *Store) FindByID(ctx context.Context, principalID string) (Principal, error) {
	var principal Principal
	err := s.db.WithContext(ctx).
		Preload("Identities").
		Where("id = ?", principalID).
		Take(&principal).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Principal{}, ErrPrincipalNotFound
	}
	if err != nil {
		return Principal{}, err
	}
	return principal, nil
}

// FindByUsername loads a principal by its normalized username.
func (s *Store) FindByUsername(ctx context.Context, username string) (Principal, error) {
	var principal Principal
	err := s.db.WithContext(ctx).
		Preload("Identities").
		Where("username = ?", username).
		Take(&principal).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Principal{}, ErrPrincipalNotFound
	}
	if err != nil {
		return Principal{}, err
	}
	return principal, nil
}

// UsernameExists reports whether the normalized username is taken.
func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Principal{}).
		Where("username = ?", username).
		Count(&count).
		Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByIdentity loads the principal linked to the provider and subject pair.
func (s *Store) FindByIdentity(ctx context.Context, provider, subject string) (Principal, error) {
	var identity Identity
	err := s.db.WithContext(ctx).
		Where("provider = ? AND subject = ?", provider, subject).
		Take(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Principal{}, ErrPrincipalNotFound
	}
	if err != nil {
		return Principal{}, err
	}
	return s.FindByID(ctx, identity.PrincipalID)
}

// Create inserts the principal and any identities it carries in one transaction.
// Unique violations on the username or the (provider, subject) key surface as errDuplicateRecord.
func (s *Store) Create(ctx context.Context, principal Principal) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		identities := principal.Identities
		principal.Identities = nil
		if err := tx.Create(&principal).Error; err != nil {
			return err
		}
		for index := range identities {
			identities[index].PrincipalID = principal.ID
			if err := tx.Create(&identities[index]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if isDuplicateKey(err) {
		return errDuplicateRecord
	}
	return err
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate key")
}

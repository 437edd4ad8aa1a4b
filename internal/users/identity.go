package users

import (
	"strings"
	"time"
)

// Principal is the persisted user record. Folders and tasks reference it by ID.
type Principal struct {
	ID             string     `gorm:"column:id;primaryKey;size:190;not null"`
	Username       string     `gorm:"column:username;size:190;not null;uniqueIndex:idx_principals_username"`
	CredentialHash string     `gorm:"column:credential_hash;size:255;not null;default:''"`
	Email          string     `gorm:"column:email;size:320;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null"`
	Identities     []Identity `gorm:"foreignKey:PrincipalID;references:ID"`
}

// TableName exposes the table backing principals.
func (Principal) TableName() string {
	return "principals"
}

// HasLocalCredential reports whether the principal registered with a username and secret.
func (p Principal) HasLocalCredential() bool {
	return p.CredentialHash != ""
}

// ExternalIdentities returns the provider to subject mapping of linked identities.
func (p Principal) ExternalIdentities() map[string]string {
	linked := make(map[string]string, len(p.Identities))
	for _, identity := range p.Identities {
		linked[identity.Provider] = identity.Subject
	}
	return linked
}

// Identity captures the mapping between a principal and a provider-specific login.
// The (provider, subject) primary key keeps each external account linked to at most one principal.
type Identity struct {
	Provider    string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	PrincipalID string    `gorm:"column:principal_id;size:190;not null;index"`
	Email       string    `gorm:"column:user_email;size:320"`
	DisplayName string    `gorm:"column:user_display_name;size:320"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

// Credentials is the closed set of inputs accepted by Resolver.Resolve.
type Credentials interface {
	strategy() string
}

// LocalCredentials authenticate a principal that registered with a username and secret.
type LocalCredentials struct {
	Username string
	Secret   string
}

func (LocalCredentials) strategy() string { return StrategyLocal }

// ExternalCredentials describe an assertion made by an external identity provider.
type ExternalCredentials struct {
	Provider    string
	Subject     string
	DisplayName string
	Email       string
}

func (c ExternalCredentials) strategy() string { return c.Provider }

// Registration carries the fields submitted on the sign-up form.
type Registration struct {
	Username string
	Secret   string
	Email    string
}

// StrategyLocal tags username and secret authentication.
const StrategyLocal = "local"

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}

// NormalizeUsername trims and lower-cases a username for storage and comparison.
func NormalizeUsername(value string) string {
	return strings.ToLower(normalize(value))
}

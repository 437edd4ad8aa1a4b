package auth

import "time"

// Session is the server-side record a session token is bound to. Deleting the row revokes the token.
type Session struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	PrincipalID string    `gorm:"column:principal_id;size:190;not null;index"`
	Username    string    `gorm:"column:username;size:190;not null"`
	IssuedAt    time.Time `gorm:"column:issued_at;not null"`
	ExpiresAt   time.Time `gorm:"column:expires_at;not null;index"`
}

// TableName exposes the table backing sessions.
func (Session) TableName() string {
	return "sessions"
}

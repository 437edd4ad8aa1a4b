package folders

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrNotFound indicates the folder or task does not exist under the owner.
	ErrNotFound = errors.New("folders: not found")
	// ErrBlankTitle indicates a folder title that is empty after trimming. No folder is created.
	ErrBlankTitle = errors.New("folders: blank folder title")
	// ErrInvalidOwner indicates the owner identifier is empty or exceeds storage bounds.
	ErrInvalidOwner = errors.New("folders: invalid owner id")
)

// Folder is a named, ordered task list owned by exactly one principal.
type Folder struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	OwnerID   string    `gorm:"column:owner_id;size:190;not null;index:idx_folders_owner_position,priority:1"`
	Title     string    `gorm:"column:title;size:512;not null"`
	Position  int64     `gorm:"column:position;not null;index:idx_folders_owner_position,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	Tasks     []Task    `gorm:"foreignKey:FolderID;references:ID"`
}

// TableName provides the explicit table binding for GORM.
func (Folder) TableName() string {
	return "folders"
}

// Task is a single item within a folder.
type Task struct {
	ID       string `gorm:"column:id;primaryKey;size:190;not null"`
	OwnerID  string `gorm:"column:owner_id;size:190;not null;index:idx_tasks_owner_folder,priority:1"`
	FolderID string `gorm:"column:folder_id;size:190;not null;index:idx_tasks_owner_folder,priority:2"`
	Name     string `gorm:"column:name;type:text;not null;default:''"`
	Position int64  `gorm:"column:position;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Task) TableName() string {
	return "tasks"
}

// OwnerID represents a validated principal identifier scoping every editor operation.
type OwnerID string

// NewOwnerID validates raw input and returns an OwnerID.
func NewOwnerID(rawInput string) (OwnerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOwner)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwner, maxIdentifierLength)
	}
	return OwnerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id OwnerID) String() string {
	return string(id)
}

// normalizeTitle trims the folder title; an empty result means the title is blank.
func normalizeTitle(title string) string {
	return strings.TrimSpace(title)
}

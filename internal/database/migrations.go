package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeUsernames  = "2024-09-01_normalize_usernames"
	migrationPurgeOrphanedTasks  = "2024-09-01_purge_orphaned_tasks"
	migrationPurgeOrphanSessions = "2024-09-01_purge_orphaned_sessions"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeUsernames, apply: normalizeUsernames},
		{name: migrationPurgeOrphanedTasks, apply: purgeOrphanedTasks},
		{name: migrationPurgeOrphanSessions, apply: purgeOrphanedSessions},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		applyErr := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if applyErr != nil {
			return applyErr
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeUsernames lower-cases stored usernames unless doing so would collide with another principal.
func normalizeUsernames(db *gorm.DB) error {
	return db.Exec(`UPDATE principals
SET username = lower(trim(username))
WHERE username <> lower(trim(username))
  AND NOT EXISTS (
    SELECT 1 FROM principals AS other
    WHERE other.id <> principals.id AND other.username = lower(trim(principals.username))
  )`).Error
}

func purgeOrphanedTasks(db *gorm.DB) error {
	return db.Exec(`DELETE FROM tasks
WHERE NOT EXISTS (
  SELECT 1 FROM folders
  WHERE folders.id = tasks.folder_id AND folders.owner_id = tasks.owner_id
)`).Error
}

func purgeOrphanedSessions(db *gorm.DB) error {
	return db.Exec(`DELETE FROM sessions
WHERE NOT EXISTS (SELECT 1 FROM principals WHERE principals.id = sessions.principal_id)`).Error
}

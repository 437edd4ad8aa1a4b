package folders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/taskfolders/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew   = "folders.service.new"
	opCreateFolder = "folders.create_folder"
	opDeleteFolder = "folders.delete_folder"
	opListFolders  = "folders.list_folders"
	opGetFolder    = "folders.get_folder"
	opCreateTask   = "folders.create_task"
	opDeleteTask   = "folders.delete_task"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider users.IDProvider
	Logger     *zap.Logger
}

// Service edits the folder and task tree of one owner at a time. Every statement is scoped by
// owner id, so ids belonging to another principal behave exactly like ids that do not exist.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider users.IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateFolder appends a folder to the owner's sequence. A blank title returns ErrBlankTitle without writing.
func (s *Service) CreateFolder(ctx context.Context, owner users.Principal, title string) (Folder, error) {
	ownerID, err := s.prepare(opCreateFolder, owner)
	if err != nil {
		return Folder{}, err
	}
	normalized := normalizeTitle(title)
	if normalized == "" {
		return Folder{}, ErrBlankTitle
	}

	folderID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateFolder, "id_generation_failed", err, zap.String("owner_id", ownerID.String()))
		return Folder{}, newServiceError(opCreateFolder, "id_generation_failed", err)
	}

	folder := Folder{
		ID:        folderID,
		OwnerID:   ownerID.String(),
		Title:     normalized,
		CreatedAt: s.clock().UTC(),
		Tasks:     []Task{},
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPosition int64
		if err := tx.Model(&Folder{}).
			Where("owner_id = ?", ownerID.String()).
			Select("COALESCE(MAX(position), 0)").
			Scan(&maxPosition).Error; err != nil {
			return err
		}
		folder.Position = maxPosition + 1
		return tx.Omit("Tasks").Create(&folder).Error
	})
	if txErr != nil {
		s.logError(opCreateFolder, "insert_failed", txErr, zap.String("owner_id", ownerID.String()))
		return Folder{}, newServiceError(opCreateFolder, "insert_failed", txErr)
	}
	return folder, nil
}

// DeleteFolder removes the folder and its tasks. Deleting an unknown id is a no-op.
func (s *Service) DeleteFolder(ctx context.Context, owner users.Principal, folderID string) error {
	ownerID, err := s.prepare(opDeleteFolder, owner)
	if err != nil {
		return err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("owner_id = ? AND folder_id = ?", ownerID.String(), folderID).
			Delete(&Task{}).Error; err != nil {
			return err
		}
		return tx.
			Where("owner_id = ? AND id = ?", ownerID.String(), folderID).
			Delete(&Folder{}).Error
	})
	if txErr != nil {
		s.logError(opDeleteFolder, "delete_failed", txErr,
			zap.String("owner_id", ownerID.String()),
			zap.String("folder_id", folderID))
		return newServiceError(opDeleteFolder, "delete_failed", txErr)
	}
	return nil
}

// ListFolders returns the owner's folders and their tasks in insertion order.
func (s *Service) ListFolders(ctx context.Context, owner users.Principal) ([]Folder, error) {
	ownerID, err := s.prepare(opListFolders, owner)
	if err != nil {
		return nil, err
	}

	var folders []Folder
	if err := s.db.WithContext(ctx).
		Preload("Tasks", s.ownedTasks(ownerID)).
		Where("owner_id = ?", ownerID.String()).
		Order("position ASC").
		Find(&folders).Error; err != nil {
		s.logError(opListFolders, "query_failed", err, zap.String("owner_id", ownerID.String()))
		return nil, newServiceError(opListFolders, "query_failed", err)
	}
	return folders, nil
}

// GetFolder returns one of the owner's folders with its tasks, or ErrNotFound.
func (s *Service) GetFolder(ctx context.Context, owner users.Principal, folderID string) (Folder, error) {
	ownerID, err := s.prepare(opGetFolder, owner)
	if err != nil {
		return Folder{}, err
	}

	var folder Folder
	err = s.db.WithContext(ctx).
		Preload("Tasks", s.ownedTasks(ownerID)).
		Where("owner_id = ? AND id = ?", ownerID.String(), folderID).
		Take(&folder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Folder{}, ErrNotFound
	}
	if err != nil {
		s.logError(opGetFolder, "query_failed", err,
			zap.String("owner_id", ownerID.String()),
			zap.String("folder_id", folderID))
		return Folder{}, newServiceError(opGetFolder, "query_failed", err)
	}
	return folder, nil
}

// CreateTask appends a task to the folder. Task names are stored as given, empty included.
func (s *Service) CreateTask(ctx context.Context, owner users.Principal, folderID string, name string) (Task, error) {
	ownerID, err := s.prepare(opCreateTask, owner)
	if err != nil {
		return Task{}, err
	}

	taskID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateTask, "id_generation_failed", err, zap.String("owner_id", ownerID.String()))
		return Task{}, newServiceError(opCreateTask, "id_generation_failed", err)
	}

	task := Task{
		ID:       taskID,
		OwnerID:  ownerID.String(),
		FolderID: folderID,
		Name:     name,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var folderCount int64
		if err := tx.Model(&Folder{}).
			Where("owner_id = ? AND id = ?", ownerID.String(), folderID).
			Count(&folderCount).Error; err != nil {
			return err
		}
		if folderCount == 0 {
			return ErrNotFound
		}

		var maxPosition int64
		if err := tx.Model(&Task{}).
			Where("owner_id = ? AND folder_id = ?", ownerID.String(), folderID).
			Select("COALESCE(MAX(position), 0)").
			Scan(&maxPosition).Error; err != nil {
			return err
		}
		task.Position = maxPosition + 1
		return tx.Create(&task).Error
	})
	if errors.Is(txErr, ErrNotFound) {
		return Task{}, ErrNotFound
	}
	if txErr != nil {
		s.logError(opCreateTask, "insert_failed", txErr,
			zap.String("owner_id", ownerID.String()),
			zap.String("folder_id", folderID))
		return Task{}, newServiceError(opCreateTask, "insert_failed", txErr)
	}
	return task, nil
}

// DeleteTask removes the task from the folder, or returns ErrNotFound when either is absent.
func (s *Service) DeleteTask(ctx context.Context, owner users.Principal, folderID string, taskID string) error {
	ownerID, err := s.prepare(opDeleteTask, owner)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Where("owner_id = ? AND folder_id = ? AND id = ?", ownerID.String(), folderID, taskID).
		Delete(&Task{})
	if result.Error != nil {
		s.logError(opDeleteTask, "delete_failed", result.Error,
			zap.String("owner_id", ownerID.String()),
			zap.String("folder_id", folderID),
			zap.String("task_id", taskID))
		return newServiceError(opDeleteTask, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) prepare(operation string, owner users.Principal) (OwnerID, error) {
	if s.db == nil {
		s.logError(operation, "missing_database", errMissingDatabase)
		return "", newServiceError(operation, "missing_database", errMissingDatabase)
	}
	ownerID, err := NewOwnerID(owner.ID)
	if err != nil {
		s.logError(operation, "invalid_owner", err)
		return "", newServiceError(operation, "invalid_owner", err)
	}
	return ownerID, nil
}

func (s *Service) ownedTasks(ownerID OwnerID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ?", ownerID.String()).Order("position ASC")
	}
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
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
	s.loggerOrDefault().Error("folders service error", attrs...)
}

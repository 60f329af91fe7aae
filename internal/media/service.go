/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/litecasthq/litecast/internal/accounts"
	"github.com/litecasthq/litecast/internal/config"
	"github.com/litecasthq/litecast/internal/events"
	"github.com/litecasthq/litecast/internal/models"
)

var (
	// ErrTypeNotAllowed is returned for file types outside the account's plan.
	ErrTypeNotAllowed = errors.New("file type not allowed")

	// ErrStorageQuota is returned when an upload would exceed the plan's
	// storage allowance.
	ErrStorageQuota = errors.New("storage quota exceeded")

	// ErrNotFound is returned for unknown or foreign media items.
	ErrNotFound = errors.New("media item not found")
)

// Storage abstracts file storage operations.
type Storage interface {
	Store(ctx context.Context, owner, filename string, file io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	// LocalPath resolves a stored path to a local filesystem path when the
	// backend has one.
	LocalPath(path string) (string, bool)
	URL(path string) string
	CheckAccess(ctx context.Context) error
}

// Publisher is the event bus surface the service needs.
type Publisher interface {
	Publish(events.EventType, events.Payload)
}

// Service manages the per-account media library: uploads, type and storage
// quota enforcement, and staging files for the encoder.
type Service struct {
	db       *gorm.DB
	accounts *accounts.Store
	storage  Storage
	bus      Publisher
	logger   zerolog.Logger
	stageDir string
}

// NewService creates a media service with filesystem or S3 storage depending
// on configuration.
func NewService(cfg *config.Config, db *gorm.DB, accountStore *accounts.Store, bus Publisher, logger zerolog.Logger) (*Service, error) {
	var storage Storage
	if cfg.S3Bucket != "" {
		s3Storage, err := NewS3Storage(context.Background(), S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize S3 storage: %w", err)
		}
		storage = s3Storage
	} else {
		storage = NewFilesystemStorage(cfg.MediaRoot, logger)
	}

	return &Service{
		db:       db,
		accounts: accountStore,
		storage:  storage,
		bus:      bus,
		logger:   logger.With().Str("component", "media").Logger(),
		stageDir: os.TempDir(),
	}, nil
}

// KindFor maps a filename to its media kind. Unknown extensions are rejected.
func KindFor(filename string) (models.MediaKind, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return models.MediaAudio, nil
	case ".jpg", ".jpeg", ".png":
		return models.MediaImage, nil
	case ".mp4", ".mov":
		return models.MediaVideo, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrTypeNotAllowed, filepath.Ext(filename))
	}
}

// List returns the owner's library ordered by upload time.
func (s *Service) List(ctx context.Context, owner string) ([]models.MediaItem, error) {
	var items []models.MediaItem
	if err := s.db.WithContext(ctx).Where("user_id = ?", owner).Order("created_at desc").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	return items, nil
}

// Get loads one item, enforcing ownership.
func (s *Service) Get(ctx context.Context, owner, id string) (*models.MediaItem, error) {
	var item models.MediaItem
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, owner).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load media: %w", err)
	}
	return &item, nil
}

// Upload validates the file against the account's plan, stores it, and
// records it in the library.
func (s *Service) Upload(ctx context.Context, user *models.User, plan *models.Plan, filename string, size int64, file io.Reader) (*models.MediaItem, error) {
	kind, err := KindFor(filename)
	if err != nil {
		return nil, err
	}
	if !plan.AllowsType(kind) {
		return nil, fmt.Errorf("%w: plan %s does not permit %s", ErrTypeNotAllowed, plan.Name, kind)
	}
	if user.StorageUsed+size > plan.MaxStorageMB*1024*1024 {
		return nil, ErrStorageQuota
	}

	id := uuid.New().String()
	storedName := id + strings.ToLower(filepath.Ext(filename))
	path, err := s.storage.Store(ctx, user.ID, storedName, file)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	item := &models.MediaItem{
		ID:       id,
		UserID:   user.ID,
		Filename: filename,
		Path:     path,
		Size:     size,
		Kind:     kind,
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		s.storage.Delete(ctx, path)
		return nil, fmt.Errorf("record upload: %w", err)
	}
	if err := s.accounts.AddStorage(ctx, user.ID, size); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("storage accounting failed")
	}

	s.bus.Publish(events.EventMediaUploaded, events.Payload{
		"user_id":  user.ID,
		"media_id": item.ID,
		"filename": filename,
		"kind":     string(kind),
		"size":     size,
	})
	s.logger.Info().Str("user_id", user.ID).Str("media_id", item.ID).Str("filename", filename).Msg("media uploaded")
	return item, nil
}

// Delete removes an item from storage and the library and releases its
// storage accounting.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	item, err := s.Get(ctx, owner, id)
	if err != nil {
		return err
	}

	if err := s.storage.Delete(ctx, item.Path); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.MediaItem{}, "id = ?", item.ID).Error; err != nil {
		return fmt.Errorf("delete media record: %w", err)
	}
	if err := s.accounts.AddStorage(ctx, owner, -item.Size); err != nil {
		s.logger.Error().Err(err).Str("user_id", owner).Msg("storage accounting failed")
	}

	s.bus.Publish(events.EventMediaDeleted, events.Payload{
		"user_id":  owner,
		"media_id": item.ID,
	})
	return nil
}

// Stage resolves an item to a local file path the encoder can open. Object
// storage backends are staged through a temp copy; temp reports whether the
// caller owns removal of the returned path.
func (s *Service) Stage(ctx context.Context, item *models.MediaItem) (path string, temp bool, err error) {
	if path, ok := s.storage.LocalPath(item.Path); ok {
		return path, false, nil
	}

	src, err := s.storage.Open(ctx, item.Path)
	if err != nil {
		return "", false, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(s.stageDir, "litecast_stage_*"+strings.ToLower(filepath.Ext(item.Path)))
	if err != nil {
		return "", false, fmt.Errorf("create staging file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", false, fmt.Errorf("stage media: %w", err)
	}
	tmp.Close()

	return tmp.Name(), true, nil
}

// URL returns the accessible URL for a stored item path.
func (s *Service) URL(path string) string {
	return s.storage.URL(path)
}

// CheckStorageAccess verifies the storage backend is reachable.
func (s *Service) CheckStorageAccess() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.storage.CheckAccess(ctx)
}

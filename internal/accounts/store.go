/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package accounts

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/litecasthq/litecast/internal/models"
	"github.com/litecasthq/litecast/internal/quota"
)

// ErrNotFound is returned when an account does not exist.
var ErrNotFound = errors.New("account not found")

// Store is the gorm-backed account repository. It implements
// quota.AccountStore and carries storage accounting for the media library.
type Store struct {
	db *gorm.DB
}

// NewStore creates a store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ByID loads a user by id.
func (s *Store) ByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// ByUsername loads a user by username.
func (s *Store) ByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// PlanFor loads the plan attached to a user.
func (s *Store) PlanFor(ctx context.Context, user *models.User) (*models.Plan, error) {
	var plan models.Plan
	err := s.db.WithContext(ctx).Where("id = ?", user.PlanID).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("plan %s: %w", user.PlanID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	return &plan, nil
}

// Create inserts a new user.
func (s *Store) Create(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Save persists user changes.
func (s *Store) Save(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// GetQuota returns the account's usage position. Admin accounts are metered
// but never enforced against.
func (s *Store) GetQuota(ctx context.Context, owner string) (quota.AccountQuota, error) {
	user, err := s.ByID(ctx, owner)
	if err != nil {
		return quota.AccountQuota{}, err
	}
	plan, err := s.PlanFor(ctx, user)
	if err != nil {
		return quota.AccountQuota{}, err
	}
	return quota.AccountQuota{
		UsageSeconds:      user.UsageSeconds,
		DailyLimitSeconds: plan.DailyLimitSeconds(),
		Unlimited:         user.Role == models.RoleAdmin,
	}, nil
}

// IncrementUsage atomically adds encoded seconds and returns the new total.
func (s *Store) IncrementUsage(ctx context.Context, owner string, seconds int64) (int64, error) {
	tx := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", owner).
		UpdateColumn("usage_seconds", gorm.Expr("usage_seconds + ?", seconds))
	if tx.Error != nil {
		return 0, fmt.Errorf("increment usage: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return 0, ErrNotFound
	}

	user, err := s.ByID(ctx, owner)
	if err != nil {
		return 0, err
	}
	return user.UsageSeconds, nil
}

// ResetIfNewDay zeroes the usage counter when the stored reset date differs
// from today. The conditional update makes concurrent resets collapse to one.
func (s *Store) ResetIfNewDay(ctx context.Context, owner string, today string) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND (last_usage_reset IS NULL OR last_usage_reset <> ?)", owner, today).
		Updates(map[string]any{
			"usage_seconds":    0,
			"last_usage_reset": today,
		})
	if tx.Error != nil {
		return false, fmt.Errorf("reset usage: %w", tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

// AddStorage adjusts the account's media storage counter by delta bytes.
func (s *Store) AddStorage(ctx context.Context, owner string, delta int64) error {
	tx := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", owner).
		UpdateColumn("storage_used", gorm.Expr("storage_used + ?", delta))
	if tx.Error != nil {
		return fmt.Errorf("adjust storage: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

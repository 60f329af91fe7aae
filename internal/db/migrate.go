/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/litecasthq/litecast/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.User{},
		&models.Plan{},
		&models.Destination{},
		&models.MediaItem{},
		&models.Setting{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Seed inserts the default plans and the bootstrap admin account when missing.
func Seed(database *gorm.DB, adminPassword string) error {
	plans := []models.Plan{
		{Name: "Free Trial", MaxStorageMB: 500, AllowedTypes: "audio", MaxActiveStreams: 1, DailyLimitHours: 5, PriceText: "Free", FeaturesText: "MP3 only, 5h/day cap, auto reconnect"},
		{Name: "Pro Radio", MaxStorageMB: 5120, AllowedTypes: "audio", MaxActiveStreams: 1, DailyLimitHours: 24, PriceText: "$10", FeaturesText: "24h non-stop, HD quality, custom cover"},
		{Name: "Station 24/7", MaxStorageMB: 10240, AllowedTypes: "audio", MaxActiveStreams: 1, DailyLimitHours: 24, PriceText: "$15", FeaturesText: "Large storage, shuffle playlist"},
		{Name: "Multistream", MaxStorageMB: 25600, AllowedTypes: "audio,video", MaxActiveStreams: 5, DailyLimitHours: 24, PriceText: "$25", FeaturesText: "Unlimited platforms, five concurrent streams"},
	}

	for i := range plans {
		var existing models.Plan
		err := database.Where("name = ?", plans[i].Name).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			plans[i].ID = uuid.New().String()
			if err := database.Create(&plans[i]).Error; err != nil {
				return fmt.Errorf("seed plan %s: %w", plans[i].Name, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("lookup plan %s: %w", plans[i].Name, err)
		}
		plans[i] = existing
	}

	var admin models.User
	err := database.Where("username = ?", "admin").First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}
		admin = models.User{
			ID:           uuid.New().String(),
			Username:     "admin",
			PasswordHash: string(hash),
			Role:         models.RoleAdmin,
			PlanID:       plans[len(plans)-1].ID,
		}
		if err := database.Create(&admin).Error; err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		return nil
	}
	return err
}

/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/litecasthq/litecast/internal/events"
	"github.com/litecasthq/litecast/internal/models"
)

func (a *API) handleListPlans(w http.ResponseWriter, r *http.Request) {
	var plans []models.Plan
	if err := a.db.WithContext(r.Context()).Order("max_storage_mb asc").Find(&plans).Error; err != nil {
		a.logger.Error().Err(err).Msg("plan list failed")
		writeError(w, http.StatusInternalServerError, "failed to list plans")
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

type planUpdateRequest struct {
	Name             *string `json:"name"`
	MaxStorageMB     *int64  `json:"max_storage_mb"`
	AllowedTypes     *string `json:"allowed_types"`
	MaxActiveStreams *int    `json:"max_active_streams"`
	DailyLimitHours  *int    `json:"daily_limit_hours"`
	PriceText        *string `json:"price"`
	FeaturesText     *string `json:"features"`
}

func (a *API) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var plan models.Plan
	err := a.db.WithContext(r.Context()).Where("id = ?", id).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "plan not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("plan lookup failed")
		writeError(w, http.StatusInternalServerError, "plan lookup failed")
		return
	}

	var req planUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		plan.Name = *req.Name
	}
	if req.MaxStorageMB != nil {
		plan.MaxStorageMB = *req.MaxStorageMB
	}
	if req.AllowedTypes != nil {
		plan.AllowedTypes = *req.AllowedTypes
	}
	if req.MaxActiveStreams != nil {
		plan.MaxActiveStreams = *req.MaxActiveStreams
	}
	if req.DailyLimitHours != nil {
		plan.DailyLimitHours = *req.DailyLimitHours
	}
	if req.PriceText != nil {
		plan.PriceText = *req.PriceText
	}
	if req.FeaturesText != nil {
		plan.FeaturesText = *req.FeaturesText
	}

	if err := a.db.WithContext(r.Context()).Save(&plan).Error; err != nil {
		a.logger.Error().Err(err).Msg("plan update failed")
		writeError(w, http.StatusInternalServerError, "failed to update plan")
		return
	}

	a.bus.Publish(events.EventPlanChanged, events.Payload{
		"plan_id": plan.ID,
		"name":    plan.Name,
	})
	writeJSON(w, http.StatusOK, plan)
}

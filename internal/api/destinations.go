/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/litecasthq/litecast/internal/auth"
	"github.com/litecasthq/litecast/internal/models"
)

type destinationRequest struct {
	Name      string `json:"name"`
	Platform  string `json:"platform"`
	RTMPURL   string `json:"rtmp_url"`
	StreamKey string `json:"stream_key"`
}

func (req *destinationRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	req.RTMPURL = strings.TrimSpace(req.RTMPURL)
	req.StreamKey = strings.TrimSpace(req.StreamKey)
	if req.Name == "" {
		return "name is required"
	}
	if !strings.HasPrefix(req.RTMPURL, "rtmp://") && !strings.HasPrefix(req.RTMPURL, "rtmps://") {
		return "rtmp_url must start with rtmp:// or rtmps://"
	}
	if req.StreamKey == "" {
		return "stream_key is required"
	}
	return ""
}

func (a *API) handleListDestinations(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	var destinations []models.Destination
	if err := a.db.WithContext(r.Context()).Where("user_id = ?", claims.UserID).Order("created_at asc").Find(&destinations).Error; err != nil {
		a.logger.Error().Err(err).Msg("destination list failed")
		writeError(w, http.StatusInternalServerError, "failed to list destinations")
		return
	}
	writeJSON(w, http.StatusOK, destinations)
}

func (a *API) handleCreateDestination(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	var req destinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	destination := models.Destination{
		ID:        uuid.New().String(),
		UserID:    claims.UserID,
		Name:      req.Name,
		Platform:  req.Platform,
		RTMPURL:   req.RTMPURL,
		StreamKey: req.StreamKey,
		IsActive:  true,
	}
	if err := a.db.WithContext(r.Context()).Create(&destination).Error; err != nil {
		a.logger.Error().Err(err).Msg("destination creation failed")
		writeError(w, http.StatusInternalServerError, "failed to create destination")
		return
	}
	writeJSON(w, http.StatusCreated, destination)
}

func (a *API) handleUpdateDestination(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	destination, ok := a.ownedDestination(w, r, claims.UserID)
	if !ok {
		return
	}

	var req destinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	destination.Name = req.Name
	destination.Platform = req.Platform
	destination.RTMPURL = req.RTMPURL
	destination.StreamKey = req.StreamKey
	if err := a.db.WithContext(r.Context()).Save(destination).Error; err != nil {
		a.logger.Error().Err(err).Msg("destination update failed")
		writeError(w, http.StatusInternalServerError, "failed to update destination")
		return
	}
	writeJSON(w, http.StatusOK, destination)
}

func (a *API) handleDeleteDestination(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	destination, ok := a.ownedDestination(w, r, claims.UserID)
	if !ok {
		return
	}

	if err := a.db.WithContext(r.Context()).Delete(&models.Destination{}, "id = ?", destination.ID).Error; err != nil {
		a.logger.Error().Err(err).Msg("destination deletion failed")
		writeError(w, http.StatusInternalServerError, "failed to delete destination")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) handleToggleDestination(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	destination, ok := a.ownedDestination(w, r, claims.UserID)
	if !ok {
		return
	}

	destination.IsActive = !destination.IsActive
	if err := a.db.WithContext(r.Context()).Save(destination).Error; err != nil {
		a.logger.Error().Err(err).Msg("destination toggle failed")
		writeError(w, http.StatusInternalServerError, "failed to toggle destination")
		return
	}
	writeJSON(w, http.StatusOK, destination)
}

func (a *API) ownedDestination(w http.ResponseWriter, r *http.Request, owner string) (*models.Destination, bool) {
	id := chi.URLParam(r, "id")

	var destination models.Destination
	err := a.db.WithContext(r.Context()).Where("id = ? AND user_id = ?", id, owner).First(&destination).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "destination not found")
		return nil, false
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("destination lookup failed")
		writeError(w, http.StatusInternalServerError, "destination lookup failed")
		return nil, false
	}
	return &destination, true
}

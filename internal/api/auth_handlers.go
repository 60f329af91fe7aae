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

	"github.com/google/uuid"

	"github.com/litecasthq/litecast/internal/accounts"
	"github.com/litecasthq/litecast/internal/auth"
	"github.com/litecasthq/litecast/internal/events"
	"github.com/litecasthq/litecast/internal/models"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string         `json:"token"`
	User  map[string]any `json:"user"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < 3 {
		writeError(w, http.StatusBadRequest, "username must be at least 3 characters")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	if _, err := a.accounts.ByUsername(r.Context(), req.Username); err == nil {
		writeError(w, http.StatusConflict, "username already taken")
		return
	} else if !errors.Is(err, accounts.ErrNotFound) {
		a.logger.Error().Err(err).Msg("username lookup failed")
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.logger.Error().Err(err).Msg("password hashing failed")
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	plan, err := a.defaultPlan(r)
	if err != nil {
		a.logger.Error().Err(err).Msg("default plan lookup failed")
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		PasswordHash: hash,
		Role:         models.RoleUser,
		PlanID:       plan.ID,
	}
	if err := a.accounts.Create(r.Context(), user); err != nil {
		a.logger.Error().Err(err).Msg("user creation failed")
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	a.bus.Publish(events.EventUserRegistered, events.Payload{
		"user_id":  user.ID,
		"username": user.Username,
	})

	token, err := a.issueToken(user)
	if err != nil {
		a.logger.Error().Err(err).Msg("token issuance failed")
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: userResponse(user, plan)})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := a.accounts.ByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	plan, err := a.accounts.PlanFor(r.Context(), user)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", user.ID).Msg("plan lookup failed")
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	token, err := a.issueToken(user)
	if err != nil {
		a.logger.Error().Err(err).Msg("token issuance failed")
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: userResponse(user, plan)})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := a.accounts.ByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	plan, err := a.accounts.PlanFor(r.Context(), user)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", user.ID).Msg("plan lookup failed")
		writeError(w, http.StatusInternalServerError, "account lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, userResponse(user, plan))
}

func (a *API) issueToken(user *models.User) (string, error) {
	return auth.Issue(a.jwtSecret, auth.Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
	}, a.cfg.JWTTokenTTL)
}

// defaultPlan picks the plan assigned to fresh registrations: the one with
// the smallest storage allowance.
func (a *API) defaultPlan(r *http.Request) (*models.Plan, error) {
	var plan models.Plan
	err := a.db.WithContext(r.Context()).Order("max_storage_mb asc").First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func userResponse(user *models.User, plan *models.Plan) map[string]any {
	return map[string]any{
		"id":            user.ID,
		"username":      user.Username,
		"role":          user.Role,
		"storage_used":  user.StorageUsed,
		"usage_seconds": user.UsageSeconds,
		"plan": map[string]any{
			"id":                 plan.ID,
			"name":               plan.Name,
			"max_storage_mb":     plan.MaxStorageMB,
			"allowed_types":      plan.AllowedTypes,
			"max_active_streams": plan.MaxActiveStreams,
			"daily_limit_hours":  plan.DailyLimitHours,
			"price":              plan.PriceText,
			"features":           plan.FeaturesText,
		},
	}
}

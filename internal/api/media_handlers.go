/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/litecasthq/litecast/internal/auth"
	"github.com/litecasthq/litecast/internal/media"
)

// defaultMaxUploadBytes bounds multipart uploads when no global limit is
// configured.
const defaultMaxUploadBytes = 512 << 20

func (a *API) handleListMedia(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	items, err := a.media.List(r.Context(), claims.UserID)
	if err != nil {
		a.logger.Error().Err(err).Msg("media list failed")
		writeError(w, http.StatusInternalServerError, "failed to list media")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	maxBytes := a.cfg.MaxUploadSizeBytes()
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	user, err := a.accounts.ByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	plan, err := a.accounts.PlanFor(r.Context(), user)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", user.ID).Msg("plan lookup failed")
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	item, err := a.media.Upload(r.Context(), user, plan, header.Filename, header.Size, file)
	switch {
	case errors.Is(err, media.ErrTypeNotAllowed):
		writeError(w, http.StatusUnprocessableEntity, "file type not allowed on your plan")
		return
	case errors.Is(err, media.ErrStorageQuota):
		writeError(w, http.StatusForbidden, "storage quota exceeded")
		return
	case err != nil:
		a.logger.Error().Err(err).Str("user_id", user.ID).Msg("media upload failed")
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	err := a.media.Delete(r.Context(), claims.UserID, chi.URLParam(r, "id"))
	if errors.Is(err, media.ErrNotFound) {
		writeError(w, http.StatusNotFound, "media item not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("media deletion failed")
		writeError(w, http.StatusInternalServerError, "failed to delete media")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

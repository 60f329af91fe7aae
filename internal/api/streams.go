/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/litecasthq/litecast/internal/auth"
	"github.com/litecasthq/litecast/internal/media"
	"github.com/litecasthq/litecast/internal/models"
	"github.com/litecasthq/litecast/internal/stream"
)

type streamStartRequest struct {
	MediaIDs       []string `json:"media_ids"`
	DestinationIDs []string `json:"destination_ids"`
	Mode           string   `json:"mode"`
	Loop           bool     `json:"loop"`
	CoverID        string   `json:"cover_id"`
}

func (a *API) handleStartStream(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	ctx := r.Context()

	var req streamStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode := stream.ModeAudio
	switch req.Mode {
	case "", string(stream.ModeAudio):
	case string(stream.ModeVideo):
		mode = stream.ModeVideo
	default:
		writeError(w, http.StatusBadRequest, "mode must be audio or video")
		return
	}
	if len(req.MediaIDs) == 0 {
		writeError(w, http.StatusBadRequest, "media_ids is required")
		return
	}
	if len(req.DestinationIDs) == 0 {
		writeError(w, http.StatusBadRequest, "destination_ids is required")
		return
	}

	user, err := a.accounts.ByID(ctx, claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	plan, err := a.accounts.PlanFor(ctx, user)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", user.ID).Msg("plan lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to start stream")
		return
	}

	// Roll the usage counter over before checking the allowance, so the
	// first start of a new day is never blocked by yesterday's usage.
	today := time.Now().Format("2006-01-02")
	if _, err := a.quota.ResetIfNewDay(ctx, user.ID, today); err != nil {
		a.logger.Error().Err(err).Str("user_id", user.ID).Msg("usage reset failed")
		writeError(w, http.StatusInternalServerError, "failed to start stream")
		return
	}

	if !claims.IsAdmin() {
		remaining, err := a.quota.Remaining(ctx, user.ID)
		if err != nil {
			a.logger.Error().Err(err).Str("user_id", user.ID).Msg("quota lookup failed")
			writeError(w, http.StatusInternalServerError, "failed to start stream")
			return
		}
		if remaining == 0 {
			writeError(w, http.StatusForbidden, "daily streaming limit reached")
			return
		}
		if a.engine.ActiveCount(user.ID) >= plan.MaxActiveStreams {
			writeError(w, http.StatusForbidden, "active stream limit reached")
			return
		}
	}

	wantKind := models.MediaAudio
	if mode == stream.ModeVideo {
		wantKind = models.MediaVideo
	}

	var (
		files     []string
		artifacts []string
	)
	cleanupStaged := func() {
		for _, path := range artifacts {
			os.Remove(path)
		}
	}
	for _, id := range req.MediaIDs {
		item, err := a.media.Get(ctx, user.ID, id)
		if errors.Is(err, media.ErrNotFound) {
			cleanupStaged()
			writeError(w, http.StatusNotFound, "media item not found")
			return
		}
		if err != nil {
			cleanupStaged()
			a.logger.Error().Err(err).Str("media_id", id).Msg("media lookup failed")
			writeError(w, http.StatusInternalServerError, "failed to start stream")
			return
		}
		if item.Kind != wantKind {
			cleanupStaged()
			writeError(w, http.StatusUnprocessableEntity, "media kind does not match stream mode")
			return
		}

		path, temp, err := a.media.Stage(ctx, item)
		if err != nil {
			cleanupStaged()
			a.logger.Error().Err(err).Str("media_id", id).Msg("media staging failed")
			writeError(w, http.StatusInternalServerError, "failed to start stream")
			return
		}
		files = append(files, path)
		if temp {
			artifacts = append(artifacts, path)
		}
	}

	coverPath := ""
	if mode == stream.ModeAudio && req.CoverID != "" {
		cover, err := a.media.Get(ctx, user.ID, req.CoverID)
		if err != nil || cover.Kind != models.MediaImage {
			cleanupStaged()
			writeError(w, http.StatusUnprocessableEntity, "cover must be an uploaded image")
			return
		}
		path, temp, err := a.media.Stage(ctx, cover)
		if err != nil {
			cleanupStaged()
			a.logger.Error().Err(err).Str("media_id", cover.ID).Msg("cover staging failed")
			writeError(w, http.StatusInternalServerError, "failed to start stream")
			return
		}
		coverPath = path
		if temp {
			artifacts = append(artifacts, path)
		}
	}

	var destinations []models.Destination
	err = a.db.WithContext(ctx).
		Where("user_id = ? AND id IN ? AND is_active = ?", user.ID, req.DestinationIDs, true).
		Find(&destinations).Error
	if err != nil {
		cleanupStaged()
		a.logger.Error().Err(err).Msg("destination lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to start stream")
		return
	}
	if len(destinations) == 0 {
		cleanupStaged()
		writeError(w, http.StatusBadRequest, "no active destinations selected")
		return
	}
	targets := make([]stream.Target, 0, len(destinations))
	for _, d := range destinations {
		targets = append(targets, stream.Target{
			PublishURL: d.PublishURL(),
			Name:       d.Name,
			Platform:   d.Platform,
		})
	}

	summary, err := a.engine.StartSession(ctx, stream.StartRequest{
		Owner:       user.ID,
		Mode:        mode,
		Files:       files,
		AudioFormat: "mp3",
		CoverPath:   coverPath,
		Targets:     targets,
		Loop:        req.Loop,
		Artifacts:   artifacts,
	})
	if err != nil {
		cleanupStaged()
		a.logger.Error().Err(err).Str("user_id", user.ID).Msg("stream start failed")
		writeError(w, http.StatusBadGateway, "encoder failed to start")
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (a *API) handleStopStream(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if !claims.IsAdmin() && !a.ownsSession(claims.UserID, id) {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}

	if err := a.engine.StopSession(id); err != nil {
		if errors.Is(err, stream.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "stream not found")
			return
		}
		a.logger.Error().Err(err).Str("stream_id", id).Msg("stream stop failed")
		writeError(w, http.StatusInternalServerError, "failed to stop stream")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// handleStopAllStreams tears down every live session the caller owns.
func (a *API) handleStopAllStreams(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	count := a.engine.StopOwner(claims.UserID, "stopped")
	writeJSON(w, http.StatusOK, map[string]any{
		"stopped": count > 0,
		"count":   count,
	})
}

func (a *API) handleListStreams(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	remaining, err := a.quota.Remaining(r.Context(), claims.UserID)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", claims.UserID).Msg("quota lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to list streams")
		return
	}

	streams := a.engine.ListActive(claims.UserID)
	if streams == nil {
		streams = []stream.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"streams":           streams,
		"remaining_seconds": remaining,
	})
}

func (a *API) ownsSession(owner, id string) bool {
	for _, s := range a.engine.ListActive(owner) {
		if s.ID == id {
			return true
		}
	}
	return false
}

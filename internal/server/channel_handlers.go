package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"cadenza/internal/auth"
	"cadenza/pkg/models"
)

// channelUpdate carries a partial channel edit. Absent fields leave the
// stored value untouched.
type channelUpdate struct {
	Title       *string `json:"title"`
	Cover       *string `json:"cover"`
	Description *string `json:"description"`
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.query.ListChannels(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list channels")
		s.respondError(w, http.StatusInternalServerError, "failed to load channels")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"channels": channels})
}

func (s *Server) handleChannelUpdate(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.Validate(r.Context(), bearerToken(r)); err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			s.respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		s.logger.WithError(err).Error("Session validation failed")
		s.respondError(w, http.StatusInternalServerError, "failed to validate session")
		return
	}

	chatID := r.PathValue("chat_id")
	if chatID == "" {
		s.respondError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	var update channelUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	channel, err := s.store.Channel(r.Context(), chatID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load channel")
		s.respondError(w, http.StatusInternalServerError, "failed to load channel")
		return
	}
	if channel == nil {
		channel = &models.Channel{ChatID: chatID}
	}

	if update.Title != nil {
		channel.Title = *update.Title
	}
	if update.Cover != nil {
		channel.Cover = update.Cover
	}
	if update.Description != nil {
		channel.Description = update.Description
	}
	channel.UpdatedAt = time.Now().UnixMilli()

	if err := s.store.SaveChannel(r.Context(), *channel); err != nil {
		s.logger.WithError(err).Error("Failed to save channel")
		s.respondError(w, http.StatusInternalServerError, "failed to save channel")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "channel": channel})
}

package server

import (
	"errors"
	"net/http"

	"cadenza/internal/catalog"
	"cadenza/pkg/models"
)

func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.query.List(r.Context())
	if err != nil {
		if errors.Is(err, catalog.ErrUpstream) {
			s.respondError(w, http.StatusBadGateway, "failed to fetch updates")
			return
		}
		s.logger.WithError(err).Error("Failed to list songs")
		s.respondError(w, http.StatusInternalServerError, "failed to load songs")
		return
	}
	if songs == nil {
		songs = []models.Song{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"songs": songs})
}

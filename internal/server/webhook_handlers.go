package server

import (
	"encoding/json"
	"net/http"

	tgmodels "github.com/go-telegram/bot/models"
)

// handleWebhook receives pushed updates. The response is always 200 with an
// ok body regardless of what the update contained, so the platform never
// retries a delivery because of a local failure.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgmodels.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.logger.WithError(err).Warn("Webhook payload not decodable")
		s.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	if err := s.sync.Ingest(r.Context(), &update); err != nil {
		s.logger.WithError(err).Error("Webhook ingest failed")
	}

	s.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

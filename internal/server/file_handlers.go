package server

import (
	"io"
	"net/http"
)

// handleFile relays audio content from the platform's file store, keeping
// the bot token off the client.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		s.respondError(w, http.StatusBadRequest, "file_id is required")
		return
	}

	if s.telegram == nil {
		s.respondError(w, http.StatusBadGateway, "file relay not configured")
		return
	}

	fileURL, err := s.telegram.FileURL(r.Context(), fileID)
	if err != nil {
		s.logger.WithError(err).Warn("File resolution failed")
		s.respondError(w, http.StatusBadGateway, "failed to resolve file")
		return
	}

	resp, err := s.telegram.Download(r.Context(), fileURL)
	if err != nil {
		s.logger.WithError(err).Warn("File download failed")
		s.respondError(w, http.StatusBadGateway, "failed to fetch file")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.respondError(w, http.StatusBadGateway, "failed to fetch file")
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	if length := resp.Header.Get("Content-Length"); length != "" {
		w.Header().Set("Content-Length", length)
	}
	w.Header().Set("Cache-Control", "no-cache")
	// Streams stay openly cross-origin even when the API-wide CORS
	// middleware is disabled.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.WithError(err).Debug("File stream interrupted")
	}
}

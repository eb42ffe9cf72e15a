package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"cadenza/internal/auth"
)

type adminCreateRequest struct {
	Secret   string `json:"secret"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleAdminCreate(w http.ResponseWriter, r *http.Request) {
	var req adminCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	admin, err := s.auth.Bootstrap(r.Context(), req.Secret, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrForbidden):
			s.respondError(w, http.StatusForbidden, "forbidden")
		case errors.Is(err, auth.ErrConflict):
			s.respondError(w, http.StatusConflict, "admin already exists")
		case errors.Is(err, auth.ErrPasswordRequired):
			s.respondError(w, http.StatusBadRequest, "password is required")
		default:
			s.logger.WithError(err).Error("Admin bootstrap failed")
			s.respondError(w, http.StatusInternalServerError, "failed to create admin")
		}
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"username": admin.Username,
	})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			s.respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger.WithError(err).Error("Login failed")
		s.respondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":   session.Token,
		"expires": session.ExpiresAt,
	})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), bearerToken(r)); err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			s.respondError(w, http.StatusUnauthorized, "missing token")
			return
		}
		s.logger.WithError(err).Error("Logout failed")
		s.respondError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

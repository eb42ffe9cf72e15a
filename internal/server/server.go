// Package server exposes the HTTP surface: the public catalog API, the
// webhook receiver, channel curation, and admin session endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"cadenza/internal/auth"
	"cadenza/internal/catalog"
	"cadenza/internal/config"
	"cadenza/internal/ngrok"
	"cadenza/internal/storage"
	"cadenza/internal/telegram"
)

// Server wires the HTTP handlers to the catalog, storage, and auth layers.
type Server struct {
	config   *config.Config
	logger   *logrus.Logger
	store    storage.Store
	sync     *catalog.Synchronizer
	query    *catalog.Query
	auth     *auth.Manager
	telegram *telegram.Client
	http     *http.Server
}

// New creates a Server. telegramClient may be nil when no bot token is
// configured; the file relay and backfill then degrade gracefully.
func New(cfg *config.Config, logger *logrus.Logger, store storage.Store, sync *catalog.Synchronizer, query *catalog.Query, authMgr *auth.Manager, telegramClient *telegram.Client) *Server {
	return &Server{
		config:   cfg,
		logger:   logger,
		store:    store,
		sync:     sync,
		query:    query,
		auth:     authMgr,
		telegram: telegramClient,
	}
}

// Handler builds the full route table with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)

	var handler http.Handler = mux
	if s.config.Server.EnableCORS {
		handler = s.corsMiddleware(handler)
	}
	if s.config.Logging.RequestLogging {
		handler = s.loggingMiddleware(handler)
	}
	handler = s.recoveryMiddleware(handler)
	return handler
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/songs", s.handleSongs)
	mux.HandleFunc("GET /api/file", s.handleFile)
	mux.HandleFunc("GET /api/channels", s.handleChannels)
	mux.HandleFunc("POST /api/channel/{chat_id}", s.handleChannelUpdate)
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("POST /api/admin/create", s.handleAdminCreate)
	mux.HandleFunc("POST /api/admin/login", s.handleAdminLogin)
	mux.HandleFunc("POST /api/admin/logout", s.handleAdminLogout)
	mux.HandleFunc("GET /health", s.handleHealth)
}

// Start runs the HTTP server until ctx is cancelled. When a tunnel service
// is supplied and running, the bot's webhook is pointed at the public URL.
func (s *Server) Start(ctx context.Context, tunnel *ngrok.Service) error {
	s.http = &http.Server{
		Addr:        s.config.GetAddress(),
		Handler:     s.Handler(),
		ReadTimeout: time.Duration(s.config.Server.ReadTimeout) * time.Second,
	}

	if tunnel != nil && s.telegram != nil {
		if publicURL := tunnel.GetPublicURL(); publicURL != "" {
			webhookURL := publicURL + "/webhook"
			if err := s.telegram.RegisterWebhook(ctx, webhookURL); err != nil {
				s.logger.WithError(err).Warn("Failed to register webhook")
			} else {
				s.logger.WithField("url", webhookURL).Info("Webhook registered")
			}
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("address", s.http.Addr).Info("HTTP server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	}
}

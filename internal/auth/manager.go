// Package auth implements admin account bootstrap and bearer-token
// sessions.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cadenza/internal/storage"
	"cadenza/pkg/models"
)

var (
	// ErrForbidden reports that admin provisioning is not available, either
	// because no bootstrap secret is configured or the secret did not match.
	ErrForbidden = errors.New("admin provisioning not permitted")

	// ErrConflict reports that the admin account already exists.
	ErrConflict = errors.New("admin account already exists")

	// ErrUnauthorized reports invalid credentials or an invalid session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrPasswordRequired reports a bootstrap request with no password.
	ErrPasswordRequired = errors.New("password is required")
)

// DefaultUsername is the account name used when a login request omits one.
const DefaultUsername = "admin"

// Manager handles admin accounts and their sessions.
type Manager struct {
	store      storage.Store
	secret     string
	sessionTTL time.Duration
	logger     *logrus.Logger
}

// NewManager creates a Manager. secret is the shared bootstrap secret that
// gates account creation; when empty, Bootstrap always refuses.
func NewManager(store storage.Store, secret string, sessionTTL time.Duration, logger *logrus.Logger) *Manager {
	return &Manager{
		store:      store,
		secret:     secret,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// Bootstrap creates the named admin account, gated on the shared secret.
func (m *Manager) Bootstrap(ctx context.Context, secret, username, password string) (*models.Admin, error) {
	if m.secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(m.secret)) != 1 {
		return nil, ErrForbidden
	}
	if username == "" {
		username = DefaultUsername
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}

	admin := models.Admin{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: HashPassword(password),
		CreatedAt:    time.Now().UnixMilli(),
	}

	if err := m.store.CreateAdmin(ctx, admin); err != nil {
		switch {
		case errors.Is(err, storage.ErrAdminExists):
			return nil, ErrConflict
		case errors.Is(err, storage.ErrNotConfigured):
			return nil, ErrForbidden
		default:
			return nil, fmt.Errorf("failed to create admin: %w", err)
		}
	}

	m.logger.WithField("username", username).Info("Admin account created")
	return &admin, nil
}

// Login verifies credentials and issues a new session token.
func (m *Manager) Login(ctx context.Context, username, password string) (*models.Session, error) {
	if username == "" {
		username = DefaultUsername
	}

	admin, err := m.store.AdminByUsername(ctx, username)
	if err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}
	if admin == nil {
		return nil, ErrUnauthorized
	}

	digest := HashPassword(password)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(admin.PasswordHash)) != 1 {
		return nil, ErrUnauthorized
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := models.Session{
		Token:     token,
		AdminID:   admin.ID,
		ExpiresAt: time.Now().Add(m.sessionTTL).UnixMilli(),
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	m.logger.WithField("username", username).Info("Admin logged in")
	return &session, nil
}

// Validate resolves a bearer token to its admin. Expired sessions are
// removed on sight.
func (m *Manager) Validate(ctx context.Context, token string) (*models.Admin, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	session, err := m.store.Session(ctx, token)
	if err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if session == nil {
		return nil, ErrUnauthorized
	}

	if time.Now().UnixMilli() > session.ExpiresAt {
		if err := m.store.DeleteSession(ctx, token); err != nil {
			m.logger.WithError(err).Warn("Failed to purge expired session")
		}
		return nil, ErrUnauthorized
	}

	admin, err := m.store.AdminByID(ctx, session.AdminID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}
	if admin == nil {
		return nil, ErrUnauthorized
	}
	return admin, nil
}

// Logout revokes a session token. Unknown tokens succeed silently, but a
// request that presents no token at all is rejected.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return ErrUnauthorized
	}
	if err := m.store.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// HashPassword returns the hex digest of the password. The digest is
// deterministic so both storage backends can compare stored credentials
// without a per-record salt.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

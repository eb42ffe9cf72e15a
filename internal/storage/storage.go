package storage

import (
	"context"
	"errors"
	"fmt"

	"cadenza/internal/config"
	"cadenza/pkg/models"

	"github.com/sirupsen/logrus"
)

// MaxCatalogSize bounds the persisted catalog; the oldest entries are
// truncated when an insert pushes past it.
const MaxCatalogSize = 500

var (
	// ErrNotConfigured is returned by write operations when no storage
	// backend is configured.
	ErrNotConfigured = errors.New("storage not configured")

	// ErrAdminExists is returned when creating an admin whose username is
	// already taken.
	ErrAdminExists = errors.New("admin already exists")
)

// Store is the capability interface over catalog, channel, admin and session
// persistence. Both real backends implement identical semantics; callers
// never branch on backend identity.
type Store interface {
	// Catalog returns the persisted catalog, newest-first. The second
	// result reports whether an incremental catalog exists at all; an
	// absent key and an empty table are both (nil, false, nil) so readers
	// can fall back to backfill on cold start.
	Catalog(ctx context.Context) ([]models.Song, bool, error)

	// InsertSong prepends a song to the catalog unless a record with the
	// same file_id is already present (in which case the call is a no-op),
	// then truncates the catalog to MaxCatalogSize.
	InsertSong(ctx context.Context, song models.Song) error

	Channels(ctx context.Context) (map[string]models.Channel, error)

	// Channel returns one channel record, or nil if none exists.
	Channel(ctx context.Context, chatID string) (*models.Channel, error)

	// SaveChannel writes the full channel record, replacing any existing
	// one with the same chat id.
	SaveChannel(ctx context.Context, ch models.Channel) error

	// EnsureChannel creates the channel record if absent and leaves an
	// existing record untouched.
	EnsureChannel(ctx context.Context, ch models.Channel) error

	CreateAdmin(ctx context.Context, admin models.Admin) error
	AdminByUsername(ctx context.Context, username string) (*models.Admin, error)
	AdminByID(ctx context.Context, id string) (*models.Admin, error)

	CreateSession(ctx context.Context, s models.Session) error

	// Session returns the session for a token, or nil if the token is
	// unknown or its owning admin no longer exists. Expiry is the
	// caller's concern.
	Session(ctx context.Context, token string) (*models.Session, error)

	// DeleteSession removes a session; deleting an unknown token is not
	// an error.
	DeleteSession(ctx context.Context, token string) error

	Close() error
}

// Open selects and opens the storage backend. The blob store wins when its
// endpoint is configured, then SQLite; with neither, an unconfigured store
// is returned so the process can still start in read-only degraded mode.
// Selection is fixed for the lifetime of the process.
func Open(cfg *config.Config, logger *logrus.Logger) (Store, error) {
	switch {
	case cfg.Blob.Endpoint != "":
		store, err := NewBlobStore(&cfg.Blob, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open blob store: %w", err)
		}
		logger.WithFields(logrus.Fields{
			"backend": "blob",
			"bucket":  cfg.Blob.Bucket,
		}).Info("Storage backend selected")
		return store, nil

	case cfg.Database.Path != "":
		store, err := NewSQLiteStore(cfg.Database.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		logger.WithFields(logrus.Fields{
			"backend": "sqlite",
			"path":    cfg.Database.Path,
		}).Info("Storage backend selected")
		return store, nil

	default:
		logger.Warn("No storage backend configured; catalog operations degrade to empty results")
		return NewUnconfiguredStore(), nil
	}
}

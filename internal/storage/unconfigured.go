package storage

import (
	"context"

	"cadenza/pkg/models"
)

// UnconfiguredStore serves deployments where neither backend is set: reads
// come back empty with no error so read endpoints degrade gracefully, and
// writes fail with ErrNotConfigured. DeleteSession is the one write that
// succeeds, since deleting a token that cannot exist is already idempotent.
type UnconfiguredStore struct{}

func NewUnconfiguredStore() *UnconfiguredStore {
	return &UnconfiguredStore{}
}

func (u *UnconfiguredStore) Catalog(ctx context.Context) ([]models.Song, bool, error) {
	return nil, false, nil
}

func (u *UnconfiguredStore) InsertSong(ctx context.Context, song models.Song) error {
	return ErrNotConfigured
}

func (u *UnconfiguredStore) Channels(ctx context.Context) (map[string]models.Channel, error) {
	return map[string]models.Channel{}, nil
}

func (u *UnconfiguredStore) Channel(ctx context.Context, chatID string) (*models.Channel, error) {
	return nil, nil
}

func (u *UnconfiguredStore) SaveChannel(ctx context.Context, ch models.Channel) error {
	return ErrNotConfigured
}

func (u *UnconfiguredStore) EnsureChannel(ctx context.Context, ch models.Channel) error {
	return ErrNotConfigured
}

func (u *UnconfiguredStore) CreateAdmin(ctx context.Context, admin models.Admin) error {
	return ErrNotConfigured
}

func (u *UnconfiguredStore) AdminByUsername(ctx context.Context, username string) (*models.Admin, error) {
	return nil, nil
}

func (u *UnconfiguredStore) AdminByID(ctx context.Context, id string) (*models.Admin, error) {
	return nil, nil
}

func (u *UnconfiguredStore) CreateSession(ctx context.Context, session models.Session) error {
	return ErrNotConfigured
}

func (u *UnconfiguredStore) Session(ctx context.Context, token string) (*models.Session, error) {
	return nil, nil
}

func (u *UnconfiguredStore) DeleteSession(ctx context.Context, token string) error {
	return nil
}

func (u *UnconfiguredStore) Close() error {
	return nil
}

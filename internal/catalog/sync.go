// Package catalog holds the write and read paths of the song catalog: the
// Synchronizer ingests webhook updates, the Query serves the catalog and
// backfills it from the update log when storage starts cold.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"cadenza/internal/metadata"
	"cadenza/internal/storage"
	"cadenza/pkg/models"
)

// Synchronizer applies incoming updates to the catalog. A mutex serializes
// writers so the read-modify-write cycle of blob-backed storage stays
// consistent under concurrent webhook deliveries.
type Synchronizer struct {
	store  storage.Store
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewSynchronizer creates a Synchronizer over the given store.
func NewSynchronizer(store storage.Store, logger *logrus.Logger) *Synchronizer {
	return &Synchronizer{
		store:  store,
		logger: logger,
	}
}

// Ingest extracts an audio attachment from the update and records it in the
// catalog. Updates without a usable audio attachment are ignored. The
// originating chat is registered as a channel stub unless one already
// exists.
func (s *Synchronizer) Ingest(ctx context.Context, update *tgmodels.Update) error {
	msg := metadata.MessageFromUpdate(update)
	if msg == nil {
		return nil
	}
	song, ok := metadata.ExtractSong(msg)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.InsertSong(ctx, song); err != nil {
		return fmt.Errorf("failed to record song %s: %w", song.FileID, err)
	}

	if song.Chat.ID != "" {
		stub := models.Channel{
			ChatID:    song.Chat.ID,
			Title:     song.Chat.Title,
			UpdatedAt: time.Now().UnixMilli(),
		}
		if err := s.store.EnsureChannel(ctx, stub); err != nil {
			return fmt.Errorf("failed to register channel %s: %w", song.Chat.ID, err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"file_id": song.FileID,
		"title":   song.Title,
		"chat":    song.Chat.ID,
	}).Debug("Song ingested")

	return nil
}

package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	tgmodels "github.com/go-telegram/bot/models"

	"cadenza/internal/metadata"
	"cadenza/internal/storage"
	"cadenza/pkg/models"
)

// ErrUpstream reports that the Bot API could not serve a backfill request.
var ErrUpstream = errors.New("update log unavailable")

// UpdateSource provides a bounded page of historical updates for cold-start
// backfill.
type UpdateSource interface {
	RecentUpdates(ctx context.Context, limit int) ([]tgmodels.Update, error)
}

// Query serves catalog reads, falling back to the platform's update log when
// storage has no songs yet.
type Query struct {
	store         storage.Store
	source        UpdateSource
	backfillLimit int
	logger        *logrus.Logger
}

// NewQuery creates a Query. source may be nil when no bot token is
// configured; cold starts then surface an empty catalog instead of a
// backfill.
func NewQuery(store storage.Store, source UpdateSource, backfillLimit int, logger *logrus.Logger) *Query {
	return &Query{
		store:         store,
		source:        source,
		backfillLimit: backfillLimit,
		logger:        logger,
	}
}

// List returns the catalog, newest first, with each song's chat enriched by
// curated channel metadata where available. An empty store is treated as a
// cold start and served from the update log instead.
func (q *Query) List(ctx context.Context) ([]models.Song, error) {
	songs, found, err := q.store.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	if !found {
		songs, err = q.backfill(ctx)
		if err != nil {
			return nil, err
		}
	}

	if err := q.attachChannelMeta(ctx, songs); err != nil {
		return nil, err
	}
	return songs, nil
}

// ListChannels returns all channel records keyed by chat identifier.
func (q *Query) ListChannels(ctx context.Context) (map[string]models.Channel, error) {
	channels, err := q.store.Channels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read channels: %w", err)
	}
	if channels == nil {
		channels = map[string]models.Channel{}
	}
	return channels, nil
}

// backfill reconstructs the catalog from the most recent page of the
// update log. Duplicate file identifiers keep their first position but carry
// the latest metadata. The result is served directly and never written back;
// storage only ever grows through webhook ingestion.
func (q *Query) backfill(ctx context.Context) ([]models.Song, error) {
	if q.source == nil {
		return []models.Song{}, nil
	}

	updates, err := q.source.RecentUpdates(ctx, q.backfillLimit)
	if err != nil {
		q.logger.WithError(err).Warn("Backfill fetch failed")
		return nil, ErrUpstream
	}

	var songs []models.Song
	index := make(map[string]int)
	for i := range updates {
		msg := metadata.MessageFromUpdate(&updates[i])
		if msg == nil {
			continue
		}
		song, ok := metadata.ExtractSong(msg)
		if !ok {
			continue
		}
		if at, seen := index[song.FileID]; seen {
			songs[at] = song
			continue
		}
		index[song.FileID] = len(songs)
		songs = append(songs, song)
	}

	sort.SliceStable(songs, func(i, j int) bool {
		return songs[i].Date > songs[j].Date
	})
	if len(songs) > storage.MaxCatalogSize {
		songs = songs[:storage.MaxCatalogSize]
	}

	q.logger.WithField("count", len(songs)).Info("Catalog backfilled from update log")
	return songs, nil
}

func (q *Query) attachChannelMeta(ctx context.Context, songs []models.Song) error {
	if len(songs) == 0 {
		return nil
	}

	channels, err := q.store.Channels(ctx)
	if err != nil {
		return fmt.Errorf("failed to read channels: %w", err)
	}
	if len(channels) == 0 {
		return nil
	}

	for i := range songs {
		if meta, ok := channels[songs[i].Chat.ID]; ok {
			m := meta
			songs[i].Chat.Meta = &m
		}
	}
	return nil
}

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"cadenza/internal/config"
	"cadenza/pkg/models"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// Object keys inside the bucket. Each holds one JSON blob.
const (
	catalogKey  = "songs"
	channelsKey = "channels"
	adminsKey   = "admins"
	sessionsKey = "sessions"
)

// BlobStore is the key-value backend, persisting each entity collection as
// a JSON blob in an S3-compatible bucket. Catalog mutations are
// read-modify-write; the Synchronizer serializes them in-process.
type BlobStore struct {
	client *minio.Client
	bucket string
	logger *logrus.Logger
}

// NewBlobStore connects to the object store and ensures the bucket exists.
func NewBlobStore(cfg *config.BlobConfig, logger *logrus.Logger) (*BlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	b := &BlobStore{client: client, bucket: cfg.Bucket, logger: logger}
	if err := b.ensureBucket(context.Background()); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *BlobStore) ensureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		b.logger.WithField("bucket", b.bucket).Info("Created storage bucket")
	}
	return nil
}

// getJSON loads one blob into v. A missing key reports found=false with no
// error.
func (b *BlobStore) getJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		// GetObject defers errors until the first read.
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode object %s: %w", key, err)
	}
	return true, nil
}

func (b *BlobStore) putJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode object %s: %w", key, err)
	}
	_, err = b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

func (b *BlobStore) Catalog(ctx context.Context) ([]models.Song, bool, error) {
	var songs []models.Song
	found, err := b.getJSON(ctx, catalogKey, &songs)
	if err != nil {
		return nil, false, err
	}
	return songs, found, nil
}

func (b *BlobStore) InsertSong(ctx context.Context, song models.Song) error {
	var songs []models.Song
	if _, err := b.getJSON(ctx, catalogKey, &songs); err != nil {
		return err
	}
	for _, existing := range songs {
		if existing.FileID == song.FileID {
			// Idempotent re-delivery: the first record wins.
			return nil
		}
	}
	songs = append([]models.Song{song}, songs...)
	if len(songs) > MaxCatalogSize {
		songs = songs[:MaxCatalogSize]
	}
	return b.putJSON(ctx, catalogKey, songs)
}

func (b *BlobStore) Channels(ctx context.Context) (map[string]models.Channel, error) {
	channels := make(map[string]models.Channel)
	if _, err := b.getJSON(ctx, channelsKey, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

func (b *BlobStore) Channel(ctx context.Context, chatID string) (*models.Channel, error) {
	channels, err := b.Channels(ctx)
	if err != nil {
		return nil, err
	}
	if ch, ok := channels[chatID]; ok {
		return &ch, nil
	}
	return nil, nil
}

func (b *BlobStore) SaveChannel(ctx context.Context, ch models.Channel) error {
	channels, err := b.Channels(ctx)
	if err != nil {
		return err
	}
	channels[ch.ChatID] = ch
	return b.putJSON(ctx, channelsKey, channels)
}

func (b *BlobStore) EnsureChannel(ctx context.Context, ch models.Channel) error {
	channels, err := b.Channels(ctx)
	if err != nil {
		return err
	}
	if _, ok := channels[ch.ChatID]; ok {
		return nil
	}
	channels[ch.ChatID] = ch
	return b.putJSON(ctx, channelsKey, channels)
}

// admins are keyed by username, sessions by token.

func (b *BlobStore) admins(ctx context.Context) (map[string]models.Admin, error) {
	admins := make(map[string]models.Admin)
	if _, err := b.getJSON(ctx, adminsKey, &admins); err != nil {
		return nil, err
	}
	return admins, nil
}

func (b *BlobStore) CreateAdmin(ctx context.Context, admin models.Admin) error {
	admins, err := b.admins(ctx)
	if err != nil {
		return err
	}
	if _, ok := admins[admin.Username]; ok {
		return ErrAdminExists
	}
	admins[admin.Username] = admin
	return b.putJSON(ctx, adminsKey, admins)
}

func (b *BlobStore) AdminByUsername(ctx context.Context, username string) (*models.Admin, error) {
	admins, err := b.admins(ctx)
	if err != nil {
		return nil, err
	}
	if admin, ok := admins[username]; ok {
		return &admin, nil
	}
	return nil, nil
}

func (b *BlobStore) AdminByID(ctx context.Context, id string) (*models.Admin, error) {
	admins, err := b.admins(ctx)
	if err != nil {
		return nil, err
	}
	for _, admin := range admins {
		if admin.ID == id {
			a := admin
			return &a, nil
		}
	}
	return nil, nil
}

func (b *BlobStore) sessions(ctx context.Context) (map[string]models.Session, error) {
	sessions := make(map[string]models.Session)
	if _, err := b.getJSON(ctx, sessionsKey, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (b *BlobStore) CreateSession(ctx context.Context, session models.Session) error {
	sessions, err := b.sessions(ctx)
	if err != nil {
		return err
	}
	sessions[session.Token] = session
	return b.putJSON(ctx, sessionsKey, sessions)
}

func (b *BlobStore) Session(ctx context.Context, token string) (*models.Session, error) {
	sessions, err := b.sessions(ctx)
	if err != nil {
		return nil, err
	}
	session, ok := sessions[token]
	if !ok {
		return nil, nil
	}
	owner, err := b.AdminByID(ctx, session.AdminID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, nil
	}
	return &session, nil
}

func (b *BlobStore) DeleteSession(ctx context.Context, token string) error {
	sessions, err := b.sessions(ctx)
	if err != nil {
		return err
	}
	if _, ok := sessions[token]; !ok {
		return nil
	}
	delete(sessions, token)
	return b.putJSON(ctx, sessionsKey, sessions)
}

func (b *BlobStore) Close() error {
	return nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"cadenza/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testSong(fileID string, date int64) models.Song {
	return models.Song{
		FileID: fileID,
		Title:  "song " + fileID,
		Date:   date,
		Chat:   models.Chat{ID: "-100", Title: "Test Channel"},
	}
}

func TestCatalogColdStart(t *testing.T) {
	store := newTestStore(t)

	songs, found, err := store.Catalog(context.Background())
	if err != nil {
		t.Fatalf("catalog failed: %v", err)
	}
	if found {
		t.Error("expected found=false on an empty catalog")
	}
	if len(songs) != 0 {
		t.Errorf("expected no songs, got %d", len(songs))
	}
}

func TestInsertSongOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := store.InsertSong(ctx, testSong(fmt.Sprintf("f%d", i), int64(i))); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	songs, found, err := store.Catalog(ctx)
	if err != nil {
		t.Fatalf("catalog failed: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if len(songs) != 3 {
		t.Fatalf("expected 3 songs, got %d", len(songs))
	}
	// Newest insert first.
	for i, want := range []string{"f3", "f2", "f1"} {
		if songs[i].FileID != want {
			t.Errorf("songs[%d].FileID = %q, want %q", i, songs[i].FileID, want)
		}
	}
}

func TestInsertSongDuplicateIsNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testSong("dup", 10)
	first.Title = "original title"
	if err := store.InsertSong(ctx, first); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := store.InsertSong(ctx, testSong("other", 11)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	again := testSong("dup", 12)
	again.Title = "replacement title"
	if err := store.InsertSong(ctx, again); err != nil {
		t.Fatalf("duplicate insert failed: %v", err)
	}

	songs, _, err := store.Catalog(ctx)
	if err != nil {
		t.Fatalf("catalog failed: %v", err)
	}
	if len(songs) != 2 {
		t.Fatalf("expected 2 songs, got %d", len(songs))
	}
	// The duplicate neither moved nor rewrote the existing record.
	if songs[0].FileID != "other" || songs[1].FileID != "dup" {
		t.Errorf("unexpected order: %q, %q", songs[0].FileID, songs[1].FileID)
	}
	if songs[1].Title != "original title" {
		t.Errorf("title = %q, want the original", songs[1].Title)
	}
}

func TestInsertSongBounded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i <= MaxCatalogSize; i++ {
		if err := store.InsertSong(ctx, testSong(fmt.Sprintf("f%04d", i), int64(i))); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}

	songs, _, err := store.Catalog(ctx)
	if err != nil {
		t.Fatalf("catalog failed: %v", err)
	}
	if len(songs) != MaxCatalogSize {
		t.Fatalf("expected %d songs, got %d", MaxCatalogSize, len(songs))
	}
	if songs[0].FileID != fmt.Sprintf("f%04d", MaxCatalogSize) {
		t.Errorf("newest song missing, got %q", songs[0].FileID)
	}
	// The oldest entry was truncated.
	for _, s := range songs {
		if s.FileID == "f0000" {
			t.Error("oldest song should have been pruned")
		}
	}
}

func TestChannelLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if ch, err := store.Channel(ctx, "-100"); err != nil || ch != nil {
		t.Fatalf("expected absent channel, got %+v err %v", ch, err)
	}

	if err := store.EnsureChannel(ctx, models.Channel{ChatID: "-100", Title: "Raw Title"}); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	cover := "https://img.example/cover.jpg"
	curated := models.Channel{ChatID: "-100", Title: "Curated", Cover: &cover, UpdatedAt: 5}
	if err := store.SaveChannel(ctx, curated); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// A later ensure must not clobber curated metadata.
	if err := store.EnsureChannel(ctx, models.Channel{ChatID: "-100", Title: "Raw Again"}); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	ch, err := store.Channel(ctx, "-100")
	if err != nil {
		t.Fatalf("channel failed: %v", err)
	}
	if ch == nil || ch.Title != "Curated" {
		t.Fatalf("channel = %+v, want curated title", ch)
	}
	if ch.Cover == nil || *ch.Cover != cover {
		t.Errorf("cover = %v", ch.Cover)
	}

	channels, err := store.Channels(ctx)
	if err != nil {
		t.Fatalf("channels failed: %v", err)
	}
	if len(channels) != 1 {
		t.Errorf("expected 1 channel, got %d", len(channels))
	}
}

func TestAdminConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	admin := models.Admin{ID: "id-1", Username: "admin", PasswordHash: "h", CreatedAt: 1}
	if err := store.CreateAdmin(ctx, admin); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	dup := models.Admin{ID: "id-2", Username: "admin", PasswordHash: "h2", CreatedAt: 2}
	if err := store.CreateAdmin(ctx, dup); !errors.Is(err, ErrAdminExists) {
		t.Errorf("expected ErrAdminExists, got %v", err)
	}

	got, err := store.AdminByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got == nil || got.ID != "id-1" {
		t.Errorf("admin = %+v, want the first account", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	admin := models.Admin{ID: "id-1", Username: "admin", PasswordHash: "h", CreatedAt: 1}
	if err := store.CreateAdmin(ctx, admin); err != nil {
		t.Fatalf("create admin failed: %v", err)
	}

	session := models.Session{Token: "tok", AdminID: "id-1", ExpiresAt: 99}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	got, err := store.Session(ctx, "tok")
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if got == nil || got.AdminID != "id-1" || got.ExpiresAt != 99 {
		t.Fatalf("session = %+v", got)
	}

	if got, err := store.Session(ctx, "unknown"); err != nil || got != nil {
		t.Errorf("unknown token: got %+v err %v", got, err)
	}

	if err := store.DeleteSession(ctx, "tok"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if got, _ := store.Session(ctx, "tok"); got != nil {
		t.Error("session should be gone after delete")
	}
	// Deleting again is not an error.
	if err := store.DeleteSession(ctx, "tok"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestUnconfiguredStore(t *testing.T) {
	store := NewUnconfiguredStore()
	ctx := context.Background()

	songs, found, err := store.Catalog(ctx)
	if err != nil || found || len(songs) != 0 {
		t.Errorf("catalog: %v %v %v", songs, found, err)
	}

	if err := store.InsertSong(ctx, testSong("f", 1)); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("insert: %v", err)
	}
	if err := store.SaveChannel(ctx, models.Channel{ChatID: "c"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("save channel: %v", err)
	}
	if err := store.CreateAdmin(ctx, models.Admin{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("create admin: %v", err)
	}

	// Reads surface absence, not failure.
	if ch, err := store.Channel(ctx, "c"); err != nil || ch != nil {
		t.Errorf("channel: %+v %v", ch, err)
	}
	if s, err := store.Session(ctx, "tok"); err != nil || s != nil {
		t.Errorf("session: %+v %v", s, err)
	}
	// Revoking a session nobody could have created still succeeds.
	if err := store.DeleteSession(ctx, "tok"); err != nil {
		t.Errorf("delete session: %v", err)
	}
}

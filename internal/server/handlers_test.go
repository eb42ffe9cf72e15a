package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"cadenza/internal/auth"
	"cadenza/internal/catalog"
	"cadenza/internal/config"
	"cadenza/internal/storage"
	"cadenza/internal/telegram"
	"cadenza/pkg/models"
)

type testEnv struct {
	server  *Server
	handler http.Handler
	store   storage.Store
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, config.DefaultConfig(), nil)
}

func newTestEnvWith(t *testing.T, cfg *config.Config, tg *telegram.Client) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg.Logging.RequestLogging = false
	cfg.Admin.Secret = "test-secret"

	sync := catalog.NewSynchronizer(store, logger)
	query := catalog.NewQuery(store, nil, cfg.Telegram.BackfillLimit, logger)
	authMgr := auth.NewManager(store, cfg.Admin.Secret, time.Hour, logger)

	srv := New(cfg, logger, store, sync, query, authMgr, tg)
	return &testEnv{server: srv, handler: srv.Handler(), store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/admin/create", map[string]string{
		"secret": "test-secret", "password": "pw",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin create returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "pw"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token   string `json:"token"`
		Expires int64  `json:"expires"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	if resp.Token == "" || resp.Expires == 0 {
		t.Fatalf("incomplete login response: %+v", resp)
	}
	return resp.Token
}

func webhookBody(fileID, caption string, date int, chatID int64, chatTitle string) map[string]interface{} {
	return map[string]interface{}{
		"update_id": 1,
		"channel_post": map[string]interface{}{
			"message_id": 10,
			"date":       date,
			"caption":    caption,
			"chat":       map[string]interface{}{"id": chatID, "title": chatTitle, "type": "channel"},
			"audio": map[string]interface{}{
				"file_id":        fileID,
				"file_unique_id": fileID + "-u",
				"duration":       200,
				"mime_type":      "audio/mpeg",
			},
		},
	}
}

func TestWebhookThenSongs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/webhook", webhookBody("f1", "First Song", 100, -77, "The Vault"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook returned %d", rec.Code)
	}
	var ack map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&ack); err != nil || !ack["ok"] {
		t.Fatalf("ack = %v err %v", ack, err)
	}

	rec = env.do(t, http.MethodGet, "/api/songs", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("songs returned %d", rec.Code)
	}
	var resp struct {
		Songs []models.Song `json:"songs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode songs: %v", err)
	}
	if len(resp.Songs) != 1 {
		t.Fatalf("expected 1 song, got %d", len(resp.Songs))
	}
	if resp.Songs[0].FileID != "f1" || resp.Songs[0].Title != "First Song" {
		t.Errorf("song = %+v", resp.Songs[0])
	}
	if resp.Songs[0].Chat.ID != "-77" {
		t.Errorf("chat id = %q", resp.Songs[0].Chat.ID)
	}
}

func TestWebhookAlwaysAcks(t *testing.T) {
	env := newTestEnv(t)

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("webhook returned %d", rec.Code)
		}
	})

	t.Run("no audio content", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/webhook", map[string]interface{}{
			"update_id": 2,
			"message":   map[string]interface{}{"message_id": 1, "date": 5, "text": "hi", "chat": map[string]interface{}{"id": 1, "type": "private"}},
		}, "")
		if rec.Code != http.StatusOK {
			t.Errorf("webhook returned %d", rec.Code)
		}
	})
}

func TestSongsEmptyCatalog(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/songs", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("songs returned %d", rec.Code)
	}
	if body := rec.Body.String(); !bytes.Contains([]byte(body), []byte(`"songs":[]`)) {
		t.Errorf("expected an empty songs array, got %s", body)
	}
}

func TestChannelUpdateRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/channel/-77", map[string]string{"title": "Hijack"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/channel/-77", map[string]string{"title": "Hijack"}, "bogus-token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	// The rejected writes left nothing behind.
	rec = env.do(t, http.MethodGet, "/api/channels", nil, "")
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"channels":{}`)) {
		t.Errorf("expected no channels, got %s", rec.Body.String())
	}
}

func TestChannelPartialUpdate(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	// Seed the stub through the ingestion path.
	env.do(t, http.MethodPost, "/webhook", webhookBody("f1", "Song", 100, -77, "Raw Title"), "")

	rec := env.do(t, http.MethodPost, "/api/channel/-77", map[string]string{
		"cover": "https://img.example/c.jpg",
	}, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("channel update returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/channels", nil, "")
	var resp struct {
		Channels map[string]models.Channel `json:"channels"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode channels: %v", err)
	}
	ch, ok := resp.Channels["-77"]
	if !ok {
		t.Fatalf("channel missing: %+v", resp.Channels)
	}
	// Only the cover was sent; the ingested title survives.
	if ch.Title != "Raw Title" {
		t.Errorf("title = %q", ch.Title)
	}
	if ch.Cover == nil || *ch.Cover != "https://img.example/c.jpg" {
		t.Errorf("cover = %v", ch.Cover)
	}
}

func TestChannelUpdateUnknownChat(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rec := env.do(t, http.MethodPost, "/api/channel/-999", map[string]string{"title": "Fresh"}, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("channel update returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/channels", nil, "")
	var resp struct {
		Channels map[string]models.Channel `json:"channels"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode channels: %v", err)
	}
	if ch := resp.Channels["-999"]; ch.Title != "Fresh" {
		t.Errorf("channel = %+v", ch)
	}
}

func TestAdminLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	t.Run("wrong secret forbidden", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/admin/create", map[string]string{
			"secret": "wrong", "password": "pw",
		}, "")
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})

	token := env.login(t)

	t.Run("second create conflicts", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/admin/create", map[string]string{
			"secret": "test-secret", "password": "pw2",
		}, "")
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("wrong password unauthorized", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "nope"}, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("empty password rejected", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/api/admin/create", map[string]string{
			"secret": "test-secret",
		}, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("logout without a token unauthorized", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/admin/logout", nil, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("logout revokes the token", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/admin/logout", nil, token)
		if rec.Code != http.StatusOK {
			t.Fatalf("logout returned %d", rec.Code)
		}
		rec = env.do(t, http.MethodPost, "/api/channel/-1", map[string]string{"title": "x"}, token)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 after logout, got %d", rec.Code)
		}
	})
}

func TestFileRelayErrors(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing file_id", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/file", nil, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("relay unconfigured", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/file?file_id=f1", nil, "")
		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
	})
}

func TestFileRelayStream(t *testing.T) {
	payload := []byte("mp3-bytes")
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"ok": true,
				"result": map[string]interface{}{
					"file_id":        "f1",
					"file_unique_id": "f1-u",
					"file_path":      "music/a.mp3",
				},
			})
		default:
			w.Header().Set("Content-Type", "audio/mpeg")
			w.Write(payload)
		}
	}))
	defer api.Close()

	tg, err := telegram.New("123:tok", telegram.WithAPIBase(api.URL))
	if err != nil {
		t.Fatalf("failed to create telegram client: %v", err)
	}

	// CORS middleware off: the relay must still mark streams cross-origin.
	cfg := config.DefaultConfig()
	cfg.Server.EnableCORS = false
	env := newTestEnvWith(t, cfg, tg)

	rec := env.do(t, http.MethodGet, "/api/file?file_id=f1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("relay returned %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q, want *", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("cache-control = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("content type = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/songs", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight returned %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestBoundedCatalogOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	total := storage.MaxCatalogSize + 3
	for i := 0; i < total; i++ {
		body := webhookBody(fmt.Sprintf("f%04d", i), fmt.Sprintf("Song %d", i), 100+i, -77, "The Vault")
		if rec := env.do(t, http.MethodPost, "/webhook", body, ""); rec.Code != http.StatusOK {
			t.Fatalf("webhook %d returned %d", i, rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/songs", nil, "")
	var resp struct {
		Songs []models.Song `json:"songs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode songs: %v", err)
	}
	if len(resp.Songs) != storage.MaxCatalogSize {
		t.Fatalf("expected %d songs, got %d", storage.MaxCatalogSize, len(resp.Songs))
	}
	if resp.Songs[0].FileID != fmt.Sprintf("f%04d", total-1) {
		t.Errorf("newest song = %q", resp.Songs[0].FileID)
	}
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cadenza/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteStore is the relational backend. It is safe for concurrent use
// because the underlying *sql.DB is concurrency-safe; single-statement
// upserts keep the ingestion race window small.
type SQLiteStore struct {
	conn   *sql.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at the provided path
// and ensures all required tables and indices exist. Schema creation is
// idempotent and safe to re-run. Caller should Close() it when finished.
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works better with fewer connections
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=memory;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	s := &SQLiteStore{conn: conn, logger: logger}
	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("SQLite store initialized")
	return s, nil
}

// createTables creates tables and indices if they do not already exist.
func (s *SQLiteStore) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS songs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			file_id TEXT NOT NULL UNIQUE,
			title TEXT,
			performer TEXT,
			duration INTEGER DEFAULT 0,
			mime TEXT,
			file_name TEXT,
			date INTEGER DEFAULT 0,
			chat_id TEXT,
			chat_title TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS channels (
			chat_id TEXT PRIMARY KEY,
			title TEXT,
			cover TEXT,
			description TEXT,
			updated_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS admins (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			admin_id TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		);`,
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_songs_date ON songs(date);",
		"CREATE INDEX IF NOT EXISTS idx_sessions_admin ON sessions(admin_id);",
	}

	for _, table := range tables {
		if _, err := s.conn.Exec(table); err != nil {
			return err
		}
	}
	for _, index := range indices {
		if _, err := s.conn.Exec(index); err != nil {
			return err
		}
	}
	return nil
}

// Catalog returns songs newest-insertion-first. Zero rows means no
// incremental catalog exists yet (cold start).
func (s *SQLiteStore) Catalog(ctx context.Context) ([]models.Song, bool, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT file_id, title, performer, duration, mime, file_name, date, chat_id, chat_title
		FROM songs ORDER BY seq DESC LIMIT ?`, MaxCatalogSize)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	var songs []models.Song
	for rows.Next() {
		var song models.Song
		var fileName sql.NullString
		if err := rows.Scan(&song.FileID, &song.Title, &song.Performer, &song.Duration,
			&song.Mime, &fileName, &song.Date, &song.Chat.ID, &song.Chat.Title); err != nil {
			return nil, false, fmt.Errorf("failed to scan song: %w", err)
		}
		song.FileName = fileName.String
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(songs) == 0 {
		return nil, false, nil
	}
	return songs, true, nil
}

// InsertSong inserts one song. Re-delivery of a known file_id is ignored,
// never merged; after a real insert the catalog is pruned to MaxCatalogSize
// by insertion recency.
func (s *SQLiteStore) InsertSong(ctx context.Context, song models.Song) error {
	var fileName sql.NullString
	if song.FileName != "" {
		fileName = sql.NullString{String: song.FileName, Valid: true}
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO songs (file_id, title, performer, duration, mime, file_name, date, chat_id, chat_title)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		song.FileID, song.Title, song.Performer, song.Duration, song.Mime,
		fileName, song.Date, song.Chat.ID, song.Chat.Title)
	if err != nil {
		return fmt.Errorf("failed to insert song: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		// Duplicate file_id: idempotent re-delivery, nothing to prune.
		return nil
	}

	_, err = s.conn.ExecContext(ctx, `
		DELETE FROM songs WHERE seq NOT IN (SELECT seq FROM songs ORDER BY seq DESC LIMIT ?)`,
		MaxCatalogSize)
	if err != nil {
		return fmt.Errorf("failed to prune catalog: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Channels(ctx context.Context) (map[string]models.Channel, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT chat_id, title, cover, description, updated_at FROM channels ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	channels := make(map[string]models.Channel)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels[ch.ChatID] = ch
	}
	return channels, rows.Err()
}

func (s *SQLiteStore) Channel(ctx context.Context, chatID string) (*models.Channel, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT chat_id, title, cover, description, updated_at FROM channels WHERE chat_id = ?`, chatID)
	ch, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *SQLiteStore) SaveChannel(ctx context.Context, ch models.Channel) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO channels (chat_id, title, cover, description, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		ch.ChatID, ch.Title, ch.Cover, ch.Description, ch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save channel: %w", err)
	}
	return nil
}

func (s *SQLiteStore) EnsureChannel(ctx context.Context, ch models.Channel) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO channels (chat_id, title, cover, description, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		ch.ChatID, ch.Title, ch.Cover, ch.Description, ch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to ensure channel: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateAdmin(ctx context.Context, admin models.Admin) error {
	res, err := s.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO admins (id, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		admin.ID, admin.Username, admin.PasswordHash, admin.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return ErrAdminExists
	}
	return nil
}

func (s *SQLiteStore) AdminByUsername(ctx context.Context, username string) (*models.Admin, error) {
	return s.adminWhere(ctx, "username = ?", username)
}

func (s *SQLiteStore) AdminByID(ctx context.Context, id string) (*models.Admin, error) {
	return s.adminWhere(ctx, "id = ?", id)
}

func (s *SQLiteStore) adminWhere(ctx context.Context, where, arg string) (*models.Admin, error) {
	var admin models.Admin
	err := s.conn.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM admins WHERE "+where, arg).
		Scan(&admin.ID, &admin.Username, &admin.PasswordHash, &admin.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query admin: %w", err)
	}
	return &admin, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session models.Session) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (token, admin_id, expires_at) VALUES (?, ?, ?)`,
		session.Token, session.AdminID, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Session joins against admins so a token whose admin row is gone is
// treated as unknown.
func (s *SQLiteStore) Session(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	err := s.conn.QueryRowContext(ctx, `
		SELECT s.token, s.admin_id, s.expires_at
		FROM sessions s JOIN admins a ON a.id = s.admin_id
		WHERE s.token = ?`, token).
		Scan(&session.Token, &session.AdminID, &session.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return &session, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// scanner covers both *sql.Row and *sql.Rows for channel scanning.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanChannel(row scanner) (models.Channel, error) {
	var ch models.Channel
	var cover, description sql.NullString
	if err := row.Scan(&ch.ChatID, &ch.Title, &cover, &description, &ch.UpdatedAt); err != nil {
		return models.Channel{}, err
	}
	if cover.Valid {
		ch.Cover = &cover.String
	}
	if description.Valid {
		ch.Description = &description.String
	}
	return ch, nil
}

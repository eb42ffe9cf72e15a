package models

// Song represents normalized metadata for one audio-bearing message
// attachment. FileID is the platform's opaque file identifier and the
// catalog's dedup key.
type Song struct {
	FileID    string `json:"file_id"`
	Title     string `json:"title"`
	Performer string `json:"performer"`
	Duration  int    `json:"duration"` // in seconds
	Mime      string `json:"mime"`
	FileName  string `json:"file_name,omitempty"`
	Date      int64  `json:"date"` // platform message time, unix seconds
	Chat      Chat   `json:"chat"`
}

// Chat is the embedded reference to the chat a song came from. Meta is
// attached by the query service when channel metadata exists; it is never
// persisted with the song itself.
type Chat struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Meta  *Channel `json:"meta,omitempty"`
}

// Channel carries editable display metadata for one chat or broadcast
// channel, independent of the songs themselves.
type Channel struct {
	ChatID      string  `json:"chat_id"`
	Title       string  `json:"title"`
	Cover       *string `json:"cover"`
	Description *string `json:"description"`
	UpdatedAt   int64   `json:"updated_at"` // unix milliseconds
}

// Admin is the single administrative identity. PasswordHash holds a hex
// SHA-256 digest; the plaintext is never stored.
type Admin struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	CreatedAt    int64  `json:"created_at"` // unix milliseconds
}

// Session is a time-bounded bearer credential issued after admin login.
type Session struct {
	Token     string `json:"token"`
	AdminID   string `json:"admin_id"`
	ExpiresAt int64  `json:"expires_at"` // unix milliseconds
}

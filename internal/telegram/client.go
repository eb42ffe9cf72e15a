// Package telegram talks to the messaging platform's Bot API: file
// resolution for the relay, webhook registration, and the historical update
// log used for catalog backfill.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

const defaultAPIBase = "https://api.telegram.org"

// Client wraps the Bot API client. API calls carry a request timeout; file
// downloads do not, so long audio streams are bounded only by the caller's
// context.
type Client struct {
	token    string
	apiBase  string
	bot      *tgbot.Bot
	api      *http.Client
	download *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIBase overrides the Bot API base URL. Used by tests.
func WithAPIBase(base string) Option {
	return func(c *Client) { c.apiBase = base }
}

// New creates a Telegram client for the given bot token. No network call is
// made at construction.
func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	c := &Client{
		token:    token,
		apiBase:  defaultAPIBase,
		api:      &http.Client{Timeout: 30 * time.Second},
		download: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}

	botOpts := []tgbot.Option{tgbot.WithSkipGetMe()}
	if c.apiBase != defaultAPIBase {
		botOpts = append(botOpts, tgbot.WithServerURL(c.apiBase))
	}
	b, err := tgbot.New(token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	c.bot = b

	return c, nil
}

// FileURL resolves a file identifier to a downloadable content URL.
func (c *Client) FileURL(ctx context.Context, fileID string) (string, error) {
	file, err := c.bot.GetFile(ctx, &tgbot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("getFile failed: %w", err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("getFile returned no file path")
	}
	return c.bot.FileDownloadLink(file), nil
}

// Download fetches the content behind a resolved file URL. The caller owns
// the response body.
func (c *Client) Download(ctx context.Context, fileURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	return c.download.Do(req)
}

// RegisterWebhook points the bot's webhook at the given URL.
func (c *Client) RegisterWebhook(ctx context.Context, webhookURL string) error {
	ok, err := c.bot.SetWebhook(ctx, &tgbot.SetWebhookParams{URL: webhookURL})
	if err != nil {
		return fmt.Errorf("setWebhook failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("setWebhook was not accepted")
	}
	return nil
}

// RecentUpdates fetches one bounded page of the bot's historical update
// log. The bot library only consumes updates through its internal poller,
// so the page is requested directly; it decodes into the same wire types
// the webhook path uses.
func (c *Client) RecentUpdates(ctx context.Context, limit int) ([]tgmodels.Update, error) {
	u := fmt.Sprintf("%s/bot%s/getUpdates?limit=%d", c.apiBase, c.token, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getUpdates returned status %d", resp.StatusCode)
	}

	var payload struct {
		OK     bool              `json:"ok"`
		Result []tgmodels.Update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode getUpdates response: %w", err)
	}
	if !payload.OK {
		return nil, fmt.Errorf("getUpdates reported failure")
	}
	return payload.Result, nil
}

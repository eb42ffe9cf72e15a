package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Telegram TelegramConfig `toml:"telegram"`
	Admin    AdminConfig    `toml:"admin"`
	Blob     BlobConfig     `toml:"blob"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Ngrok    NgrokConfig    `toml:"ngrok"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port        string `toml:"port"`
	Host        string `toml:"host"`
	EnableCORS  bool   `toml:"enable_cors"`
	ReadTimeout int    `toml:"read_timeout_seconds"`
}

// TelegramConfig contains Bot API access configuration. BotToken is usually
// supplied via the TELEGRAM_BOT_TOKEN environment variable.
type TelegramConfig struct {
	BotToken      string `toml:"bot_token"`
	BackfillLimit int    `toml:"backfill_limit"`
}

// AdminConfig guards the admin bootstrap endpoint and sessions. Secret is
// usually supplied via the ADMIN_SECRET environment variable.
type AdminConfig struct {
	Secret          string `toml:"secret"`
	SessionDuration string `toml:"session_duration"`
}

// BlobConfig selects and configures the S3-compatible key-value backend.
// Setting Endpoint activates it.
type BlobConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// DatabaseConfig selects and configures the SQLite backend; it is used only
// when no blob endpoint is set. Clearing Path as well runs the server in
// read-only degraded mode.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	RequestLogging bool   `toml:"request_logging"`
}

// NgrokConfig contains ngrok tunnel configuration
type NgrokConfig struct {
	Enabled   bool   `toml:"enabled"`
	AuthToken string `toml:"auth_token"`
	Domain    string `toml:"domain"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Host:        "0.0.0.0",
			EnableCORS:  true,
			ReadTimeout: 30,
		},
		Telegram: TelegramConfig{
			BotToken:      "",
			BackfillLimit: 100,
		},
		Admin: AdminConfig{
			Secret:          "",
			SessionDuration: "24h",
		},
		Blob: BlobConfig{
			Endpoint:  "",
			AccessKey: "",
			SecretKey: "",
			Bucket:    "cadenza",
			UseSSL:    true,
		},
		Database: DatabaseConfig{
			Path: "./cadenza.db",
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			RequestLogging: true,
		},
		Ngrok: NgrokConfig{
			Enabled:   false,
			AuthToken: "",
			Domain:    "",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creating a default file
// on first run, then applies environment overrides and validates.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
	} else {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides lets environment variables take precedence for secrets
// and backend selectors, so they can stay out of the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("ADMIN_SECRET"); v != "" {
		c.Admin.Secret = v
	}
	if v := os.Getenv("BLOB_ENDPOINT"); v != "" {
		c.Blob.Endpoint = v
	}
	if v := os.Getenv("BLOB_ACCESS_KEY"); v != "" {
		c.Blob.AccessKey = v
	}
	if v := os.Getenv("BLOB_SECRET_KEY"); v != "" {
		c.Blob.SecretKey = v
	}
	if v := os.Getenv("BLOB_BUCKET"); v != "" {
		c.Blob.Bucket = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("NGROK_AUTHTOKEN"); v != "" {
		c.Ngrok.AuthToken = v
	}
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Cadenza Configuration
# Secrets (bot token, admin secret, blob credentials) are better supplied via
# environment variables or a .env file; values set there override this file.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must not be negative")
	}

	if c.Telegram.BackfillLimit < 1 || c.Telegram.BackfillLimit > 100 {
		return fmt.Errorf("telegram backfill limit must be between 1 and 100")
	}

	if c.Blob.Endpoint != "" && c.Blob.Bucket == "" {
		return fmt.Errorf("blob bucket cannot be empty when an endpoint is configured")
	}

	if _, err := time.ParseDuration(c.Admin.SessionDuration); err != nil {
		return fmt.Errorf("invalid session duration: %w", err)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// SessionTTL returns the parsed session duration, defaulting to 24 hours
// when unset or unparseable.
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Admin.SessionDuration)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

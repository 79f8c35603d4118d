package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// TokenEnv overrides telegram.token when set, so the secret can stay out of
// the config file.
const TokenEnv = "DUYURUBOT_TOKEN"

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Fetch    FetchConfig    `json:"fetch"`
	Storage  StorageConfig  `json:"storage"`

	// Sources seeds the source registry at startup (INSERT OR IGNORE).
	// Sources already present in the store are left untouched.
	Sources []SourceConfig `json:"sources,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`

	// PollTimeout is a Go duration string for the long-poll timeout.
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console *bool             `json:"console,omitempty"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// FetchConfig controls the announcement fetch pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "15s", "10m").
type FetchConfig struct {
	// Schedule is either an interval ("10m") or a cron expression
	// ("*/10 * * * *", "@hourly"). Default: "10m".
	Schedule string `json:"schedule,omitempty"`

	// RequestTimeout bounds each outbound page request. Default: "15s".
	RequestTimeout string `json:"request_timeout,omitempty"`

	// MinDelay/MaxDelay bound the randomized pause before each page request.
	// Defaults: "100ms" / "400ms".
	MinDelay string `json:"min_delay,omitempty"`
	MaxDelay string `json:"max_delay,omitempty"`

	// UserAgents overrides the built-in identity pool when non-empty.
	UserAgents []string `json:"user_agents,omitempty"`
}

type StorageConfig struct {
	Path string `json:"path,omitempty"`

	// BusyTimeout is a Go duration string for the sqlite busy handler.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type SourceConfig struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	URL       string `json:"url"`
}

// Token resolves the bot token: env var wins over the config file.
func (c *Config) Token() string {
	if v := strings.TrimSpace(os.Getenv(TokenEnv)); v != "" {
		return v
	}
	return strings.TrimSpace(c.Telegram.Token)
}

// Validate checks fields whose failure should abort startup.
func (c *Config) Validate() error {
	if c.Token() == "" {
		return fmt.Errorf("telegram token missing (set telegram.token or %s)", TokenEnv)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	for i, s := range c.Sources {
		if s.ID <= 0 {
			return fmt.Errorf("sources[%d]: id must be > 0", i)
		}
		if strings.TrimSpace(s.ShortName) == "" {
			return fmt.Errorf("sources[%d]: short_name is required", i)
		}
		if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
			return fmt.Errorf("sources[%d]: url must be absolute http(s)", i)
		}
	}
	return nil
}

// PollTimeoutOr returns the parsed poll timeout or def.
func (c *Config) PollTimeoutOr(def time.Duration) (time.Duration, error) {
	return ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, def)
}

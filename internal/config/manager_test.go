package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
telegram:
  token: "123:abc"
  poll_timeout: "20s"
logging:
  level: debug
fetch:
  schedule: "10m"
  request_timeout: "15s"
storage:
  path: "./bot.db"
sources:
  - id: 42
    name: "Kimya Bölümü"
    short_name: "kimya"
    url: "https://example.edu/kimya"
`

func TestManagerParsesYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].ShortName != "kimya" {
		t.Fatalf("sources = %+v", cfg.Sources)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}

	d, err := cfg.PollTimeoutOr(10 * time.Second)
	if err != nil {
		t.Fatalf("PollTimeoutOr: %v", err)
	}
	if d != 20*time.Second {
		t.Fatalf("poll timeout = %v, want 20s", d)
	}
}

func TestManagerRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", "telegram:\n  tokken: \"oops\"\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "123:abc"},
			Storage:  StorageConfig{Path: "./bot.db"},
			Sources: []SourceConfig{
				{ID: 1, Name: "Kimya", ShortName: "kimya", URL: "https://example.edu/kimya"},
			},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	c := base()
	c.Telegram.Token = ""
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing token")
	}

	c = base()
	c.Storage.Path = ""
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing storage path")
	}

	c = base()
	c.Sources[0].URL = "ftp://example.edu"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for non-http source url")
	}

	c = base()
	c.Sources[0].ID = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for zero source id")
	}
}

func TestTokenEnvOverride(t *testing.T) {
	t.Setenv(TokenEnv, "env:token")
	c := &Config{Telegram: TelegramConfig{Token: "file:token"}}
	if got := c.Token(); got != "env:token" {
		t.Fatalf("Token = %q, want env override", got)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "90s"); err != nil || d != 90*time.Second {
		t.Fatalf("ParseDurationField = %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty should be zero, got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if _, err := ParseDurationField("x", "ten minutes"); err == nil {
		t.Fatal("expected error for junk duration")
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default not applied: %v, %v", d, err)
	}
}

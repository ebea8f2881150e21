package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DOTENV_PATH", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("ADMIN_TOKEN", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppMode != ModeAll {
		t.Fatalf("expected mode %s, got %s", ModeAll, cfg.AppMode)
	}
	if cfg.DB.Driver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", cfg.DB.Driver)
	}
	if cfg.Media.MaxBytes != 4*1024*1024 {
		t.Fatalf("unexpected media cap %d", cfg.Media.MaxBytes)
	}
	if cfg.Chat.ClientTimeout != 0 {
		t.Fatalf("expected no provider timeout by default, got %s", cfg.Chat.ClientTimeout)
	}
	if cfg.Crypto.Enabled() {
		t.Fatalf("crypto should be disabled without master keys")
	}
}

func TestLoadRequiresAdminToken(t *testing.T) {
	t.Setenv("DOTENV_PATH", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("ADMIN_TOKEN", "")

	if _, err := Load(); !errors.Is(err, ErrMissingAdminToken) {
		t.Fatalf("expected ErrMissingAdminToken, got %v", err)
	}

	t.Setenv("APP_MODE", "worker")
	if _, err := Load(); err != nil {
		t.Fatalf("worker mode should not need an admin token: %v", err)
	}
}

func TestLoadReadsDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "ADMIN_TOKEN=from-file\nRATE_LIMIT_PER_HOUR=5\nCHAT_HTTP_TIMEOUT=15s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	t.Setenv("DOTENV_PATH", path)
	t.Setenv("ADMIN_TOKEN", "")
	t.Setenv("RATE_LIMIT_PER_HOUR", "")
	t.Setenv("CHAT_HTTP_TIMEOUT", "")
	// godotenv.Load does not override variables that are already set, and
	// t.Setenv("") still counts as set, so clear them explicitly.
	os.Unsetenv("ADMIN_TOKEN")
	os.Unsetenv("RATE_LIMIT_PER_HOUR")
	os.Unsetenv("CHAT_HTTP_TIMEOUT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AdminToken != "from-file" {
		t.Fatalf("expected admin token from dotenv, got %q", cfg.AdminToken)
	}
	if cfg.Chat.RatePerHour != 5 {
		t.Fatalf("expected rate 5, got %d", cfg.Chat.RatePerHour)
	}
	if cfg.Chat.ClientTimeout != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %s", cfg.Chat.ClientTimeout)
	}
}

func TestLoadTelegramNeedsChatID(t *testing.T) {
	t.Setenv("DOTENV_PATH", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("ADMIN_TOKEN", "secret")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "")

	if _, err := Load(); !errors.Is(err, ErrMissingTelegramChat) {
		t.Fatalf("expected ErrMissingTelegramChat, got %v", err)
	}
}

func TestLoadMasterKey(t *testing.T) {
	t.Setenv("DOTENV_PATH", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("ADMIN_TOKEN", "secret")
	t.Setenv("MASTER_KEY_B64", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	t.Setenv("MASTER_KEY_CURRENT_ID", "k1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Crypto.Enabled() || cfg.Crypto.CurrentKeyID != "k1" {
		t.Fatalf("unexpected crypto config: %+v", cfg.Crypto)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnsureGeneratesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	cfg, err := Ensure(path)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if cfg.DatabasePath != "storagegate.db" || cfg.SweepMinutes != 60 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}

	// Second call loads the file instead of regenerating it.
	cfg.AdminID = 42
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	again, err := Ensure(path)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if again.AdminID != 42 {
		t.Errorf("ensure overwrote the existing file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	cfg := &Config{TelegramToken: "from-file", SweepMinutes: 30}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	t.Setenv("STORAGEBOT_TELEGRAM_TOKEN", "from-env")

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.TelegramToken != "from-env" {
		t.Errorf("environment must win over the file, got %q", got.TelegramToken)
	}
	if got.SweepMinutes != 30 {
		t.Errorf("untouched fields must come from the file, got %d", got.SweepMinutes)
	}
	if got.SweepInterval() != 30*time.Minute {
		t.Errorf("SweepInterval = %v", got.SweepInterval())
	}
}

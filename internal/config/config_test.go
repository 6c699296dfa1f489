package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"support_chat_server/internal/config"
)

const minimal = `
[jwtConfig]
secret = "0123456789abcdef0123456789abcdef"
`

func TestDecodeDefaults(t *testing.T) {
	conf, err := config.Decode(minimal)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if conf.Backend != "local" {
		t.Errorf("Backend = %q, want local", conf.Backend)
	}
	if conf.MainConfig.Port != 8000 {
		t.Errorf("Port = %d, want 8000", conf.MainConfig.Port)
	}
	if conf.TelegramConfig.Mode != "polling" {
		t.Errorf("telegram mode = %q, want polling", conf.TelegramConfig.Mode)
	}
	if conf.SqliteConfig.Path == "" {
		t.Error("sqlite path default not applied")
	}
}

func TestDecodeCloudDefaultsToRedisFeed(t *testing.T) {
	conf, err := config.Decode(minimal + `
[storeConfig]
backend = "cloud"
[mysqlConfig]
host = "db"
databaseName = "support"
`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if conf.ChangeFeed != "redis" {
		t.Errorf("ChangeFeed = %q, want redis", conf.ChangeFeed)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"short secret", `[jwtConfig]
secret = "short"`},
		{"unknown backend", minimal + `
[storeConfig]
backend = "firebase"`},
		{"cloud without mysql", minimal + `
[storeConfig]
backend = "cloud"`},
		{"kafka without brokers", minimal + `
[storeConfig]
backend = "cloud"
changeFeed = "kafka"
[mysqlConfig]
host = "db"
databaseName = "support"`},
		{"telegram without token", minimal + `
[telegramConfig]
enabled = true`},
		{"telegram bad mode", minimal + `
[telegramConfig]
enabled = true
token = "1:abc"
mode = "push"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.Decode(tt.toml); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadFirstReadablePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(minimal+`
[mainConfig]
port = 9100
`), 0o600); err != nil {
		t.Fatal(err)
	}

	conf, err := config.Load(filepath.Join(dir, "missing.toml"), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if conf.MainConfig.Port != 9100 {
		t.Errorf("Port = %d, want 9100", conf.MainConfig.Port)
	}
}

func TestLoadNoFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error when no config file exists")
	}
}

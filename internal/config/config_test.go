package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPathReadsSections(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, ".scribe.yaml")
	content := `server:
  port: 9000
templates:
  dir: docs
  schema: /etc/scribe/schema.yaml
session:
  backend: redis
  ttl: 2h
  sweep_schedule: "*/5 * * * *"
redis:
  addr: localhost:6379
  db: 2
profile:
  driver: postgres
  dsn: postgres://scribe@localhost/scribe
platforms:
  telegram:
    token: tg-token
security:
  allow_from:
    - "telegram:1001"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Templates.Dir != filepath.Join(tmp, "docs") {
		t.Fatalf("templates dir not resolved: %s", cfg.Templates.Dir)
	}
	if cfg.Templates.Schema != "/etc/scribe/schema.yaml" {
		t.Fatalf("absolute schema path changed: %s", cfg.Templates.Schema)
	}
	if cfg.Session.TTL != 2*time.Hour || cfg.Session.SweepSchedule != "*/5 * * * *" {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Profile.Driver != "postgres" || !cfg.ProfilesEnabled() {
		t.Fatalf("unexpected profile config: %+v", cfg.Profile)
	}
	if cfg.Platforms.Telegram.Token != "tg-token" {
		t.Fatalf("telegram token = %q", cfg.Platforms.Telegram.Token)
	}
	if !cfg.Allowed("telegram", "1001") || cfg.Allowed("telegram", "1002") {
		t.Fatalf("allow_from not applied: %#v", cfg.Security.AllowFrom)
	}
}

func TestLoadFromPathMissingFileUsesDefaults(t *testing.T) {
	tmp := t.TempDir()
	cfg, err := LoadFromPath(filepath.Join(tmp, "absent.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Port != 8686 || cfg.Session.Backend != "memory" || cfg.Session.TTL != 24*time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Templates.Dir != filepath.Join(tmp, "templates") {
		t.Fatalf("templates dir = %s", cfg.Templates.Dir)
	}
	if !cfg.Allowed("discord", "anyone") {
		t.Fatalf("empty allow_from should allow everyone")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-tg")
	t.Setenv("DISCORD_BOT_TOKEN", "env-dc")
	t.Setenv("SCRIBE_REDIS_ADDR", "redis:6379")
	t.Setenv("SCRIBE_PROFILE_DSN", "/data/p.db")
	t.Setenv("SCRIBE_API_TOKEN", "tok")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Platforms.Telegram.Token != "env-tg" || cfg.Platforms.Discord.Token != "env-dc" {
		t.Fatalf("tokens not overridden: %+v", cfg.Platforms)
	}
	if cfg.Session.Backend != "redis" || cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("redis not enabled: %+v %+v", cfg.Session, cfg.Redis)
	}
	if cfg.Profile.DSN != "/data/p.db" {
		t.Fatalf("profile dsn = %q", cfg.Profile.DSN)
	}
	if cfg.Server.APIToken != "tok" {
		t.Fatalf("api token = %q", cfg.Server.APIToken)
	}
}

func TestValidate(t *testing.T) {
	tmp := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"unknown backend", "session:\n  backend: etcd\n"},
		{"redis without addr", "session:\n  backend: redis\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"bad yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmp, tt.name+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := LoadFromPath(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".scribe.yaml")
	cfg := DefaultConfig()
	cfg.Server.Port = 9100
	cfg.Security.AllowFrom = []string{"discord:*"}
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Server.Port != 9100 || !loaded.Allowed("discord", "42") {
		t.Fatalf("unexpected round trip: %+v", loaded)
	}
}

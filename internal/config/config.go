package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	exeDirCache string
)

// getExecutableDir returns the directory where the executable is located
func getExecutableDir() string {
	if exeDirCache != "" {
		return exeDirCache
	}
	execPath, err := os.Executable()
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	exeDirCache = filepath.Dir(execPath)
	return exeDirCache
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Templates TemplatesConfig `yaml:"templates"`
	Session   SessionConfig   `yaml:"session"`
	Redis     RedisConfig     `yaml:"redis,omitempty"`
	Profile   ProfileConfig   `yaml:"profile"`
	Platforms PlatformConfig  `yaml:"platforms,omitempty"`
	Security  SecurityConfig  `yaml:"security,omitempty"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	// APIToken, when set, must be sent as a bearer token to the session API.
	APIToken string `yaml:"api_token,omitempty"`
}

// TemplatesConfig locates the template folder and the base schema. Relative
// paths are resolved against the config file's directory.
type TemplatesConfig struct {
	Dir    string `yaml:"dir"`
	Schema string `yaml:"schema"`
}

type SessionConfig struct {
	// Backend is "memory" or "redis".
	Backend       string        `yaml:"backend"`
	TTL           time.Duration `yaml:"ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type ProfileConfig struct {
	// Driver is "sqlite", "postgres" or "none".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn,omitempty"`
}

type PlatformConfig struct {
	Telegram TelegramConfig `yaml:"telegram,omitempty"`
	Discord  DiscordConfig  `yaml:"discord,omitempty"`
}

type TelegramConfig struct {
	Token string `yaml:"token,omitempty"`
	Debug bool   `yaml:"debug,omitempty"`
}

type DiscordConfig struct {
	Token string `yaml:"token,omitempty"`
}

type SecurityConfig struct {
	// AllowFrom limits the bots to "platform:user_id" entries. Empty allows everyone.
	AllowFrom []string `yaml:"allow_from,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8686},
		Templates: TemplatesConfig{
			Dir:    "templates",
			Schema: "schema.yaml",
		},
		Session: SessionConfig{
			Backend:       "memory",
			TTL:           24 * time.Hour,
			SweepSchedule: "@every 10m",
		},
		Profile: ProfileConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(ConfigDir(), "profiles.db"),
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func ConfigDir() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".scribe")
}

func ConfigPath() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".scribe.yaml")
}

// Load reads the default config file. A missing file yields defaults.
func Load() (*Config, error) {
	return LoadFromPath(ConfigPath())
}

// LoadFromPath reads the config at path over the defaults, then applies
// environment overrides. A missing file yields defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.resolvePaths(filepath.Dir(path))
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths makes template paths absolute against base.
func (c *Config) resolvePaths(base string) {
	if c.Templates.Dir != "" && !filepath.IsAbs(c.Templates.Dir) {
		c.Templates.Dir = filepath.Join(base, c.Templates.Dir)
	}
	if c.Templates.Schema != "" && !filepath.IsAbs(c.Templates.Schema) {
		c.Templates.Schema = filepath.Join(base, c.Templates.Schema)
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Platforms.Telegram.Token = v
	}
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		c.Platforms.Discord.Token = v
	}
	if v := os.Getenv("SCRIBE_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Session.Backend = "redis"
	}
	if v := os.Getenv("SCRIBE_PROFILE_DSN"); v != "" {
		c.Profile.DSN = v
	}
	if v := os.Getenv("SCRIBE_API_TOKEN"); v != "" {
		c.Server.APIToken = v
	}
	if v := os.Getenv("SCRIBE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Session.Backend) {
	case "", "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("session backend redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Session.TTL < 0 {
		return fmt.Errorf("session ttl must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// ProfilesEnabled reports whether a profile store should be opened.
func (c *Config) ProfilesEnabled() bool {
	return !strings.EqualFold(c.Profile.Driver, "none")
}

// Allowed reports whether platform:userID may use the bots.
func (c *Config) Allowed(platform, userID string) bool {
	if len(c.Security.AllowFrom) == 0 {
		return true
	}
	id := platform + ":" + userID
	for _, entry := range c.Security.AllowFrom {
		if entry == id || entry == platform+":*" {
			return true
		}
	}
	return false
}

func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo writes the config as YAML to path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

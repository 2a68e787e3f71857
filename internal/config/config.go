// Package config loads and exposes application configuration (TOML + environment).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath          = "config.toml"
	DefaultHTTPAddr            = ":8080"
	DefaultPGHost              = "127.0.0.1"
	DefaultPGPort              = 5432
	DefaultPGUser              = "postgres"
	DefaultPGDatabase          = "zrebot"
	DefaultPGSSLMode           = "disable"
	DefaultAliasBackend        = "postgres"
	DefaultSQLitePath          = "data/aliases.db"
	DefaultLegacyPath          = "event_names.yaml"
	DefaultLegacyFlush         = "5m"
	DefaultCheckTimeout        = "30s"
	DefaultReactionConcurrency = 4
	DefaultLookupConcurrency   = 16
	DefaultPageSize            = 100
	DefaultRequestsPerSecond   = 20
	DefaultBurst               = 5

	envPrefix = "ZREBOT"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Discord   DiscordConfig   `toml:"discord"`
	Alias     AliasConfig     `toml:"alias"`
	VoidCheck VoidCheckConfig `toml:"voidcheck"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level" envconfig:"LOG_LEVEL"`
	Format string `toml:"format" envconfig:"LOG_FORMAT"`
}

// ServerConfig holds the HTTP listen address for health and metrics.
type ServerConfig struct {
	Addr string `toml:"addr" envconfig:"HTTP_ADDR"`
}

// PostgresConfig holds PostgreSQL connection parameters.
// URL, when set, takes precedence over the discrete fields.
type PostgresConfig struct {
	URL      string `toml:"url" envconfig:"DATABASE_URL"`
	Host     string `toml:"host" envconfig:"DATABASE_HOST"`
	Port     int    `toml:"port" envconfig:"DATABASE_PORT"`
	User     string `toml:"user" envconfig:"DATABASE_USER"`
	Password string `toml:"password" envconfig:"DATABASE_PASSWORD"`
	Database string `toml:"database" envconfig:"DATABASE_NAME"`
	SSLMode  string `toml:"sslmode" envconfig:"DATABASE_SSLMODE"`
}

// DiscordConfig holds the bot token, the home guild and REST throttling.
type DiscordConfig struct {
	Token             string   `toml:"token" envconfig:"BOT_TOKEN"`
	GuildID           string   `toml:"guild_id" envconfig:"GUILD_ID"`
	ModRoleIDs        []string `toml:"mod_role_ids" envconfig:"MOD_ROLE_IDS"`
	RequestsPerSecond float64  `toml:"requests_per_second" envconfig:"DISCORD_RPS"`
	Burst             int      `toml:"burst" envconfig:"DISCORD_BURST"`
}

// AliasConfig selects the transactional alias backend and the legacy file to migrate from.
type AliasConfig struct {
	Backend             string `toml:"backend" envconfig:"ALIAS_BACKEND"`
	SQLitePath          string `toml:"sqlite_path" envconfig:"ALIAS_SQLITE_PATH"`
	LegacyPath          string `toml:"legacy_path" envconfig:"ALIAS_LEGACY_PATH"`
	LegacyFlushInterval string `toml:"legacy_flush_interval" envconfig:"ALIAS_LEGACY_FLUSH_INTERVAL"`
	MigrateOnStart      bool   `toml:"migrate_on_start" envconfig:"ALIAS_MIGRATE_ON_START"`
}

// VoidCheckConfig bounds the reaction fan-out.
type VoidCheckConfig struct {
	Timeout             string `toml:"timeout" envconfig:"VOIDCHECK_TIMEOUT"`
	ReactionConcurrency int    `toml:"reaction_concurrency" envconfig:"VOIDCHECK_REACTION_CONCURRENCY"`
	LookupConcurrency   int    `toml:"lookup_concurrency" envconfig:"VOIDCHECK_LOOKUP_CONCURRENCY"`
	PageSize            int    `toml:"page_size" envconfig:"VOIDCHECK_PAGE_SIZE"`
}

// TimeoutDuration parses Timeout, falling back to the default on empty or invalid input.
func (c VoidCheckConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(c.Timeout, DefaultCheckTimeout)
}

// FlushInterval parses LegacyFlushInterval, falling back to the default.
func (c AliasConfig) FlushInterval() time.Duration {
	return parseDurationOr(c.LegacyFlushInterval, DefaultLegacyFlush)
}

func parseDurationOr(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Discord: DiscordConfig{
			RequestsPerSecond: DefaultRequestsPerSecond,
			Burst:             DefaultBurst,
		},
		Alias: AliasConfig{
			Backend:             DefaultAliasBackend,
			SQLitePath:          DefaultSQLitePath,
			LegacyPath:          DefaultLegacyPath,
			LegacyFlushInterval: DefaultLegacyFlush,
			MigrateOnStart:      true,
		},
		VoidCheck: VoidCheckConfig{
			Timeout:             DefaultCheckTimeout,
			ReactionConcurrency: DefaultReactionConcurrency,
			LookupConcurrency:   DefaultLookupConcurrency,
			PageSize:            DefaultPageSize,
		},
	}
}

// Load reads and parses the TOML config file at path, applies default values for
// missing fields and then environment overrides (ZREBOT_ prefix).
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	sections := []any{&cfg.Log, &cfg.Server, &cfg.Postgres, &cfg.Discord, &cfg.Alias, &cfg.VoidCheck}
	for _, section := range sections {
		if err := envconfig.Process(envPrefix, section); err != nil {
			return fmt.Errorf("env overrides: %w", err)
		}
	}
	// envconfig already falls back to the unprefixed tag (BOT_TOKEN, DATABASE_URL, ...).
	if cfg.Discord.Token == "" {
		cfg.Discord.Token = strings.TrimSpace(os.Getenv("TOKEN"))
	}
	return nil
}

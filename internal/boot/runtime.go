// Package boot turns configuration into the runtime settings and stores the processes share.
package boot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opiyodhiambo/zrebot/internal/alias"
	"github.com/opiyodhiambo/zrebot/internal/config"
	"github.com/opiyodhiambo/zrebot/internal/db"
	"github.com/opiyodhiambo/zrebot/internal/discord"
	"github.com/opiyodhiambo/zrebot/internal/voidcheck"
)

// Alias backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// RuntimeConfig holds parsed runtime settings for the bot process.
// HTTP_ADDR overrides the server address.
type RuntimeConfig struct {
	ServerAddr   string
	GuildID      string
	ModRoleIDs   []string
	Check        voidcheck.Options
	Client       discord.ClientOptions
	LegacyFlush  time.Duration
	AliasBackend string
}

// ProvideRuntimeConfig validates cfg and builds RuntimeConfig.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	if strings.TrimSpace(cfg.Discord.Token) == "" {
		return nil, errors.New("discord token is required (discord.token, BOT_TOKEN or TOKEN)")
	}
	backend, err := parseBackend(cfg.Alias.Backend)
	if err != nil {
		return nil, err
	}
	timeout, err := parsePositiveDuration("voidcheck.timeout", cfg.VoidCheck.Timeout)
	if err != nil {
		return nil, err
	}
	flush, err := parsePositiveDuration("alias.legacy_flush_interval", cfg.Alias.LegacyFlushInterval)
	if err != nil {
		return nil, err
	}

	ret := &RuntimeConfig{
		ServerAddr: cfg.Server.Addr,
		GuildID:    strings.TrimSpace(cfg.Discord.GuildID),
		ModRoleIDs: cfg.Discord.ModRoleIDs,
		Check: voidcheck.Options{
			Timeout:             timeout,
			ReactionConcurrency: cfg.VoidCheck.ReactionConcurrency,
			LookupConcurrency:   cfg.VoidCheck.LookupConcurrency,
		},
		Client: discord.ClientOptions{
			RequestsPerSecond: cfg.Discord.RequestsPerSecond,
			Burst:             cfg.Discord.Burst,
			PageSize:          cfg.VoidCheck.PageSize,
		},
		LegacyFlush:  flush,
		AliasBackend: backend,
	}

	if value := os.Getenv("HTTP_ADDR"); value != "" {
		ret.ServerAddr = value
	}
	return ret, nil
}

func parseBackend(value string) (string, error) {
	switch backend := strings.ToLower(strings.TrimSpace(value)); backend {
	case "", BackendPostgres:
		return BackendPostgres, nil
	case BackendSQLite:
		return BackendSQLite, nil
	default:
		return "", fmt.Errorf("unknown alias backend %q (want %s or %s)", value, BackendPostgres, BackendSQLite)
	}
}

func parsePositiveDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// AliasBackend is the opened transactional alias store and, for Postgres, its pool.
type AliasBackend struct {
	Store alias.Importer
	Pool  *pgxpool.Pool
}

// Close closes the store and the pool.
func (b *AliasBackend) Close() error {
	if b == nil {
		return nil
	}
	err := b.Store.Close()
	if b.Pool != nil {
		b.Pool.Close()
	}
	return err
}

// OpenAliasBackend opens the transactional store selected by cfg.Alias.Backend.
// The Postgres schema must already be migrated.
func OpenAliasBackend(ctx context.Context, log *slog.Logger, cfg config.Config) (*AliasBackend, error) {
	backend, err := parseBackend(cfg.Alias.Backend)
	if err != nil {
		return nil, err
	}
	if backend == BackendSQLite {
		store, err := alias.OpenSQLite(log, cfg.Alias.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &AliasBackend{Store: store}, nil
	}
	pool, err := db.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", alias.ErrStoreUnavailable, err)
	}
	return &AliasBackend{Store: alias.NewPostgresStore(log, pool), Pool: pool}, nil
}

// OpenLegacyStore opens the legacy alias file, or returns nil when no path is configured.
func OpenLegacyStore(log *slog.Logger, cfg config.AliasConfig) (*alias.FileStore, error) {
	path := strings.TrimSpace(cfg.LegacyPath)
	if path == "" {
		return nil, nil
	}
	return alias.OpenFile(log, path, alias.FileOptions{FlushInterval: cfg.FlushInterval()})
}

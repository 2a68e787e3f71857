package boot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opiyodhiambo/zrebot/internal/config"
	"github.com/opiyodhiambo/zrebot/internal/logger"
)

func validConfig() config.Config {
	cfg := config.Default()
	cfg.Discord.Token = "token"
	return cfg
}

func TestProvideRuntimeConfig(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	cfg := validConfig()
	cfg.VoidCheck.Timeout = "45s"
	cfg.Discord.ModRoleIDs = []string{"r1"}

	rc, err := ProvideRuntimeConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, ":8080", rc.ServerAddr)
	assert.Equal(t, BackendPostgres, rc.AliasBackend)
	assert.Equal(t, 45*time.Second, rc.Check.Timeout)
	assert.Equal(t, 4, rc.Check.ReactionConcurrency)
	assert.Equal(t, 16, rc.Check.LookupConcurrency)
	assert.Equal(t, 100, rc.Client.PageSize)
	assert.Equal(t, 5*time.Minute, rc.LegacyFlush)
	assert.Equal(t, []string{"r1"}, rc.ModRoleIDs)
}

func TestProvideRuntimeConfigHTTPAddrOverride(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	rc, err := ProvideRuntimeConfig(validConfig())
	require.NoError(t, err)
	assert.Equal(t, ":9999", rc.ServerAddr)
}

func TestProvideRuntimeConfigRejects(t *testing.T) {
	cases := map[string]func(*config.Config){
		"missing token":    func(c *config.Config) { c.Discord.Token = " " },
		"unknown backend":  func(c *config.Config) { c.Alias.Backend = "mysql" },
		"bad timeout":      func(c *config.Config) { c.VoidCheck.Timeout = "soon" },
		"negative timeout": func(c *config.Config) { c.VoidCheck.Timeout = "-1s" },
		"bad flush":        func(c *config.Config) { c.Alias.LegacyFlushInterval = "0s" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			_, err := ProvideRuntimeConfig(cfg)
			assert.Error(t, err)
		})
	}
}

func TestOpenAliasBackendSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Alias.Backend = "SQLite"
	cfg.Alias.SQLitePath = filepath.Join(t.TempDir(), "aliases.db")

	b, err := OpenAliasBackend(context.Background(), logger.Discard(), cfg)
	require.NoError(t, err)
	assert.Nil(t, b.Pool)
	require.NoError(t, b.Store.Upsert(context.Background(), "1", "fox", time.Now()))
	assert.NoError(t, b.Close())
}

func TestOpenLegacyStore(t *testing.T) {
	s, err := OpenLegacyStore(logger.Discard(), config.AliasConfig{LegacyPath: ""})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = OpenLegacyStore(logger.Discard(), config.AliasConfig{LegacyPath: filepath.Join(t.TempDir(), "legacy.yaml")})
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.NoError(t, s.Close())
}

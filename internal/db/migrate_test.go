package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rootdb "github.com/opiyodhiambo/zrebot/db"
	"github.com/opiyodhiambo/zrebot/internal/config"
)

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "zrebot",
		Password: "secret",
		Database: "zrebot",
		SSLMode:  "disable",
	}
}

func TestRunMigrateUnknownCommand(t *testing.T) {
	err := RunMigrate(nil, testPostgresConfig(), nil, "invalid", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown migrate command")
}

func TestRunMigrateForceRequiresVersion(t *testing.T) {
	err := RunMigrate(nil, testPostgresConfig(), nil, MigrateForce, nil)
	require.Error(t, err)

	err = RunMigrate(nil, testPostgresConfig(), nil, MigrateForce, []string{"abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid version")
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(rootdb.MigrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)
}

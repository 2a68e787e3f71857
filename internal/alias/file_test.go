package alias

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opiyodhiambo/zrebot/internal/logger"
)

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "aliases.yaml")

	s, err := OpenFile(logger.Discard(), path, FileOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, "1", "Fox", baseTime))
	require.NoError(t, s.Upsert(ctx, "1", "wolf", baseTime.Add(time.Minute)))
	require.NoError(t, s.Upsert(ctx, "2", "bear", baseTime))
	require.NoError(t, s.Close())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file must not survive a flush")

	reopened, err := OpenFile(logger.Discard(), path, FileOptions{})
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "wolf", all["1"].Name)
	assert.True(t, all["1"].CreatedAt.Equal(baseTime))
	assert.True(t, all["1"].SubmittedAt.Equal(baseTime.Add(time.Minute)))
}

func TestFileStoreWritesThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	s, err := OpenFile(logger.Discard(), path, FileOptions{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Upsert(context.Background(), "7", "fox", baseTime))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "fox")
}

func TestFileStoreLoadsHandWrittenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	body := `version: 1
aliases:
  "100":
    name: SilverFox
    submitted_at: 1719835200000
  "":
    name: ignored
  "200":
    name: "  "
    submitted_at: 1
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	s, err := OpenFile(logger.Discard(), path, FileOptions{})
	require.NoError(t, err)
	defer s.Close()

	all, err := s.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "silverfox", all["100"].Name)
	assert.True(t, all["100"].SubmittedAt.Equal(baseTime))
	assert.True(t, all["100"].CreatedAt.Equal(baseTime))
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aliases: [unterminated"), 0o600))

	_, err := OpenFile(logger.Discard(), path, FileOptions{})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestFileStoreRemovesStaleSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.yaml")
	stale := []string{"aliases.yaml.tmp", "aliases.yaml.bak", "aliases.yaml.bak2", "aliases.yaml.backup"}
	for _, name := range stale {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	keep := filepath.Join(dir, "other.bak")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o600))

	s, err := OpenFile(logger.Discard(), path, FileOptions{})
	require.NoError(t, err)
	defer s.Close()

	for _, name := range stale {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), "%s should be removed", name)
	}
	_, err = os.Stat(keep)
	assert.NoError(t, err)
}

func TestFileStoreClosed(t *testing.T) {
	ctx := context.Background()
	s, err := OpenFile(logger.Discard(), filepath.Join(t.TempDir(), "aliases.yaml"), FileOptions{FlushInterval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get(ctx, "1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, s.Upsert(ctx, "1", "fox", baseTime), ErrStoreUnavailable)
	_, err = s.GetAll(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestFileStoreRequiresPath(t *testing.T) {
	_, err := OpenFile(logger.Discard(), "  ", FileOptions{})
	assert.Error(t, err)
}

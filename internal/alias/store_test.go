package alias

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opiyodhiambo/zrebot/internal/logger"
)

var baseTime = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("upsert normalises and last write wins", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "1", "  FoxHound ", baseTime))
		require.NoError(t, s.Upsert(ctx, "1", "Wolf", baseTime.Add(time.Hour)))

		rec, err := s.Get(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, "wolf", rec.Name)
		assert.True(t, rec.SubmittedAt.Equal(baseTime.Add(time.Hour)), "submitted %v", rec.SubmittedAt)
		assert.True(t, rec.CreatedAt.Equal(baseTime), "created %v", rec.CreatedAt)

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("millisecond precision", func(t *testing.T) {
		s := newStore(t)
		at := baseTime.Add(1234567 * time.Nanosecond)
		require.NoError(t, s.Upsert(ctx, "1", "fox", at))
		rec, err := s.Get(ctx, "1")
		require.NoError(t, err)
		assert.True(t, rec.SubmittedAt.Equal(baseTime.Add(time.Millisecond)), "got %v", rec.SubmittedAt)
	})

	t.Run("rejects empty fields", func(t *testing.T) {
		s := newStore(t)
		assert.ErrorIs(t, s.Upsert(ctx, "", "fox", baseTime), ErrInvalidRecord)
		assert.ErrorIs(t, s.Upsert(ctx, "1", "   ", baseTime), ErrInvalidRecord)
	})

	t.Run("rejects overlong names", func(t *testing.T) {
		s := newStore(t)
		long := strings.Repeat("é", MaxNameLength+1)
		assert.ErrorIs(t, s.Upsert(ctx, "1", long, baseTime), ErrInvalidRecord)
		require.NoError(t, s.Upsert(ctx, "1", strings.Repeat("é", MaxNameLength), baseTime))
		_, err := s.Get(ctx, "1")
		assert.NoError(t, err)
	})

	t.Run("search is case-insensitive containment", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "1", "SilverFox", baseTime))
		require.NoError(t, s.Upsert(ctx, "2", "fox", baseTime.Add(time.Minute)))
		require.NoError(t, s.Upsert(ctx, "3", "wolf", baseTime.Add(2*time.Minute)))

		got, err := s.Search(ctx, "FOX")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "1", got[0].UserID)
		assert.Equal(t, "2", got[1].UserID)

		got, err = s.Search(ctx, "bear")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("search treats wildcards literally", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "1", "100%fox", baseTime))
		require.NoError(t, s.Upsert(ctx, "2", "100 fox", baseTime))

		got, err := s.Search(ctx, "0%f")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "1", got[0].UserID)

		got, err = s.Search(ctx, "0_f")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("get exact is equality not containment", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "1", "silverfox", baseTime))

		rec, err := s.GetExact(ctx, "1", "SilverFox")
		require.NoError(t, err)
		assert.Equal(t, "silverfox", rec.Name)

		_, err = s.GetExact(ctx, "1", "fox")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetExact(ctx, "2", "silverfox")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("stats", func(t *testing.T) {
		s := newStore(t)
		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, st.Total)
		assert.True(t, st.LatestSubmitAt.IsZero())

		require.NoError(t, s.Upsert(ctx, "1", "a", baseTime))
		require.NoError(t, s.Upsert(ctx, "2", "b", baseTime.Add(time.Hour)))
		st, err = s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, st.Total)
		assert.True(t, st.LatestSubmitAt.Equal(baseTime.Add(time.Hour)))
	})
}

func TestFileStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, err := OpenFile(logger.Discard(), filepath.Join(t.TempDir(), "aliases.yaml"), FileOptions{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, err := OpenSQLite(logger.Discard(), filepath.Join(t.TempDir(), "aliases.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

// Package alias persists the names users register for events and moves them
// from the legacy single-file store into a transactional table.
package alias

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrNotFound is returned when no alias exists for the requested user (or user+name).
	ErrNotFound = errors.New("alias not found")
	// ErrStoreUnavailable wraps failures to reach a backend at all.
	ErrStoreUnavailable = errors.New("alias store unavailable")
	// ErrInvalidRecord is returned for empty user ids or names and for names over MaxNameLength.
	ErrInvalidRecord = errors.New("invalid alias record")
)

// MaxNameLength mirrors the column width of the transactional table.
const MaxNameLength = 64

// Record is the latest alias a user submitted. SubmittedAt is the time of that
// latest submission; CreatedAt is when the user first submitted any alias.
type Record struct {
	UserID      string
	Name        string
	SubmittedAt time.Time
	CreatedAt   time.Time
}

// Stats summarises a store.
type Stats struct {
	Total          int
	LatestSubmitAt time.Time
}

// Store is the contract shared by every alias backend.
// Names are stored lower-cased; Get and GetExact return ErrNotFound when absent.
type Store interface {
	Get(ctx context.Context, userID string) (Record, error)
	// Search returns every record whose name contains query, case-insensitively.
	Search(ctx context.Context, query string) ([]Record, error)
	// GetExact returns the user's record only when its name equals name, case-insensitively.
	GetExact(ctx context.Context, userID, name string) (Record, error)
	// Upsert inserts or overwrites the user's alias; the last write wins.
	Upsert(ctx context.Context, userID, name string, at time.Time) error
	GetAll(ctx context.Context) (map[string]Record, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Importer is implemented by transactional backends that can receive a migration.
type Importer interface {
	Store
	// Import inserts each record whose user id is not yet present, atomically.
	// Existing rows are never overwritten. It returns the number of rows inserted.
	Import(ctx context.Context, records []Record) (int, error)
}

// NormalizeName trims and lower-cases an alias or query.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeTime(at time.Time) time.Time {
	if at.IsZero() {
		at = time.Now()
	}
	return at.UTC().Truncate(time.Millisecond)
}

func validate(userID, name string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	name = NormalizeName(name)
	if userID == "" || name == "" {
		return "", "", fmt.Errorf("%w: user id and name are required", ErrInvalidRecord)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", "", fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRecord, MaxNameLength)
	}
	return userID, name, nil
}

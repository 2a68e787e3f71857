package alias

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const fileFormatVersion = 1

// FileStore is the legacy backend: the whole map lives in memory and is
// serialised to a single YAML file on every write and on a background schedule.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	records map[string]Record
	version uint64
	closed  bool

	flushMu   sync.Mutex
	flushedAt uint64
	cron      *cron.Cron
}

// FileOptions tunes the legacy store.
type FileOptions struct {
	// FlushInterval schedules a background flush of unsaved changes; zero disables it.
	FlushInterval time.Duration
}

type fileSnapshot struct {
	Version int                  `yaml:"version"`
	Aliases map[string]fileEntry `yaml:"aliases"`
}

type fileEntry struct {
	Name        string `yaml:"name"`
	SubmittedAt int64  `yaml:"submitted_at"`
	CreatedAt   int64  `yaml:"created_at,omitempty"`
}

// OpenFile loads the store at path (a missing file is an empty store), removes
// leftover temporary and backup siblings, and starts the background flush.
func OpenFile(log *slog.Logger, path string, opts FileOptions) (*FileStore, error) {
	if log == nil {
		log = slog.Default()
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("legacy alias path is required")
	}
	s := &FileStore{
		path:    path,
		logger:  log.With(slog.String("service", "alias/file"), slog.String("path", path)),
		records: map[string]Record{},
	}
	s.removeStaleSiblings()
	if err := s.load(); err != nil {
		return nil, err
	}
	if opts.FlushInterval > 0 {
		s.cron = cron.New()
		_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", opts.FlushInterval), func() {
			if err := s.Flush(); err != nil {
				s.logger.Warn("background flush failed", slog.Any("error", err))
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule flush: %w", err)
		}
		s.cron.Start()
	}
	return s, nil
}

func (s *FileStore) removeStaleSiblings() {
	dir := filepath.Dir(s.path)
	base := filepath.Base(s.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == base || !strings.HasPrefix(name, base) {
			continue
		}
		if strings.HasSuffix(name, ".tmp") || strings.Contains(name, ".bak") || strings.HasSuffix(name, ".backup") {
			if err := os.Remove(filepath.Join(dir, name)); err == nil {
				s.logger.Info("removed stale alias file", slog.String("file", name))
			}
		}
	}
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("no legacy alias file, starting empty")
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, s.path, err)
	}
	var snap fileSnapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrStoreUnavailable, s.path, err)
	}
	for userID, entry := range snap.Aliases {
		userID = strings.TrimSpace(userID)
		name := NormalizeName(entry.Name)
		if userID == "" || name == "" {
			continue
		}
		rec := Record{
			UserID:      userID,
			Name:        name,
			SubmittedAt: time.UnixMilli(entry.SubmittedAt).UTC(),
		}
		rec.CreatedAt = rec.SubmittedAt
		if entry.CreatedAt > 0 {
			rec.CreatedAt = time.UnixMilli(entry.CreatedAt).UTC()
		}
		s.records[userID] = rec
	}
	s.logger.Info("loaded legacy aliases", slog.Int("count", len(s.records)))
	return nil
}

// Flush writes the map to disk if it changed since the last flush.
// The file is replaced atomically through a temporary sibling.
func (s *FileStore) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	version := s.version
	if version == s.flushedAt {
		s.mu.RUnlock()
		return nil
	}
	snap := fileSnapshot{Version: fileFormatVersion, Aliases: make(map[string]fileEntry, len(s.records))}
	for userID, rec := range s.records {
		snap.Aliases[userID] = fileEntry{
			Name:        rec.Name,
			SubmittedAt: rec.SubmittedAt.UnixMilli(),
			CreatedAt:   rec.CreatedAt.UnixMilli(),
		}
	}
	s.mu.RUnlock()

	raw, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode aliases: %w", err)
	}
	if err := writeFileAtomic(s.path, raw); err != nil {
		return err
	}
	s.flushedAt = version
	s.logger.Debug("aliases flushed", slog.Int("count", len(snap.Aliases)))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create alias dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open temp alias file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp alias file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp alias file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp alias file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace alias file: %w", err)
	}
	return nil
}

func (s *FileStore) checkOpen() error {
	if s.closed {
		return fmt.Errorf("%w: legacy store closed", ErrStoreUnavailable)
	}
	return nil
}

// Get returns the user's alias.
func (s *FileStore) Get(ctx context.Context, userID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return Record{}, err
	}
	rec, ok := s.records[strings.TrimSpace(userID)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Search returns records whose name contains query, oldest submission first.
func (s *FileStore) Search(ctx context.Context, query string) ([]Record, error) {
	query = NormalizeName(query)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range s.records {
		if strings.Contains(rec.Name, query) {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// GetExact returns the user's alias only when it equals name.
func (s *FileStore) GetExact(ctx context.Context, userID, name string) (Record, error) {
	rec, err := s.Get(ctx, userID)
	if err != nil {
		return Record{}, err
	}
	if !strings.EqualFold(rec.Name, NormalizeName(name)) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Upsert stores the alias and writes the file through. A failed write is
// logged; the change stays in memory and is retried by the background flush.
func (s *FileStore) Upsert(ctx context.Context, userID, name string, at time.Time) error {
	userID, name, err := validate(userID, name)
	if err != nil {
		return err
	}
	at = normalizeTime(at)

	s.mu.Lock()
	if err := s.checkOpen(); err != nil {
		s.mu.Unlock()
		return err
	}
	rec := Record{UserID: userID, Name: name, SubmittedAt: at, CreatedAt: at}
	if prev, ok := s.records[userID]; ok && !prev.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	}
	s.records[userID] = rec
	s.version++
	s.mu.Unlock()

	if err := s.Flush(); err != nil {
		s.logger.Warn("write-through failed, will retry", slog.String("user_id", userID), slog.Any("error", err))
	}
	return nil
}

// GetAll returns a copy of every record.
func (s *FileStore) GetAll(ctx context.Context) (map[string]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	out := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out, nil
}

// Stats reports the record count and newest submission.
func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(s.records)}
	for _, rec := range s.records {
		if rec.SubmittedAt.After(st.LatestSubmitAt) {
			st.LatestSubmitAt = rec.SubmittedAt
		}
	}
	return st, nil
}

// Close stops the background flush and writes any pending changes.
func (s *FileStore) Close() error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	err := s.Flush()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].SubmittedAt.Equal(records[j].SubmittedAt) {
			return records[i].SubmittedAt.Before(records[j].SubmittedAt)
		}
		return records[i].UserID < records[j].UserID
	})
}

package alias

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// MigrationState is the outcome of one guard run.
type MigrationState string

const (
	// StateNothingToMigrate means the legacy store is empty.
	StateNothingToMigrate MigrationState = "nothing_to_migrate"
	// StateAlreadyMigrated means both stores hold data; nothing is written.
	StateAlreadyMigrated MigrationState = "already_migrated"
	// StateMigrated means legacy records were copied into an empty destination.
	StateMigrated MigrationState = "migrated"
)

// Report describes what a guard run saw and did.
type Report struct {
	State       MigrationState `json:"state"`
	LegacyCount int            `json:"legacy_count"`
	// DestinationCount is measured before the run.
	DestinationCount int `json:"destination_count"`
	Inserted         int `json:"inserted"`
}

// Guard moves aliases from the legacy store into a transactional one, at most once.
// It is the only code aware of both backends.
type Guard struct {
	legacy Store
	dest   Importer
	logger *slog.Logger
}

// NewGuard builds a migration guard.
func NewGuard(log *slog.Logger, legacy Store, dest Importer) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		legacy: legacy,
		dest:   dest,
		logger: log.With(slog.String("service", "alias/migrate")),
	}
}

// Run inspects both stores and copies legacy records only when the destination
// is empty. Copies never overwrite an existing destination row, so repeated runs
// neither duplicate nor lose records. A store that cannot be read aborts the run.
func (g *Guard) Run(ctx context.Context) (Report, error) {
	if g.legacy == nil || g.dest == nil {
		return Report{}, errors.New("migration guard requires both stores")
	}
	legacy, err := g.legacy.GetAll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("%w: read legacy aliases: %v", ErrStoreUnavailable, err)
	}
	current, err := g.dest.Stats(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("%w: inspect destination aliases: %v", ErrStoreUnavailable, err)
	}

	report := Report{LegacyCount: len(legacy), DestinationCount: current.Total}
	switch {
	case report.LegacyCount == 0:
		report.State = StateNothingToMigrate
		g.logger.Info("no alias migration needed")
		return report, nil
	case report.DestinationCount > 0:
		report.State = StateAlreadyMigrated
		g.logger.Warn("both alias stores hold data, skipping automatic migration",
			slog.Int("legacy", report.LegacyCount),
			slog.Int("destination", report.DestinationCount))
		return report, nil
	}

	g.logger.Info("migrating legacy aliases", slog.Int("count", report.LegacyCount))
	inserted, err := g.dest.Import(ctx, sortedRecords(legacy))
	if err != nil {
		return report, fmt.Errorf("import legacy aliases: %w", err)
	}
	report.Inserted = inserted
	report.State = StateMigrated
	g.logger.Info("alias migration complete",
		slog.Int("inserted", inserted),
		slog.Int("offered", report.LegacyCount))
	return report, nil
}

// Mismatch is a legacy record that is missing or different in the destination.
type Mismatch struct {
	UserID     string `json:"user_id"`
	LegacyName string `json:"legacy_name"`
	// DestName is empty when the destination has no record for the user.
	DestName string `json:"dest_name,omitempty"`
}

// Verification compares the two stores record by record.
type Verification struct {
	LegacyCount      int        `json:"legacy_count"`
	DestinationCount int        `json:"destination_count"`
	Matches          int        `json:"matches"`
	Mismatches       []Mismatch `json:"mismatches,omitempty"`
}

// OK reports whether every legacy record is present unchanged in the destination.
func (v Verification) OK() bool {
	return len(v.Mismatches) == 0
}

// Verify checks that each legacy alias exists with the same name in the destination.
// A destination name that differs may be a newer submission rather than a migration fault.
func (g *Guard) Verify(ctx context.Context) (Verification, error) {
	legacy, err := g.legacy.GetAll(ctx)
	if err != nil {
		return Verification{}, fmt.Errorf("%w: read legacy aliases: %v", ErrStoreUnavailable, err)
	}
	dest, err := g.dest.GetAll(ctx)
	if err != nil {
		return Verification{}, fmt.Errorf("%w: read destination aliases: %v", ErrStoreUnavailable, err)
	}
	v := Verification{LegacyCount: len(legacy), DestinationCount: len(dest)}
	for _, rec := range sortedRecords(legacy) {
		got, ok := dest[rec.UserID]
		if ok && got.Name == rec.Name {
			v.Matches++
			continue
		}
		v.Mismatches = append(v.Mismatches, Mismatch{
			UserID:     rec.UserID,
			LegacyName: rec.Name,
			DestName:   got.Name,
		})
	}
	return v, nil
}

func sortedRecords(m map[string]Record) []Record {
	out := make([]Record, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

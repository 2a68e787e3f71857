package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opiyodhiambo/zrebot/internal/alias"
	"github.com/opiyodhiambo/zrebot/internal/boot"
	"github.com/opiyodhiambo/zrebot/internal/config"
)

// AliasOptions holds flags shared by the alias commands.
type AliasOptions struct {
	*RootOptions
	// Legacy reads and writes the legacy alias file instead of the transactional store.
	Legacy     bool
	LegacyPath string
	Timeout    time.Duration
}

// NewAliasCommand groups the alias store commands.
func NewAliasCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AliasOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Inspect, edit and migrate event aliases",
	}
	cmd.PersistentFlags().BoolVar(&opts.Legacy, "legacy", false, "operate on the legacy alias file")
	cmd.PersistentFlags().StringVar(&opts.LegacyPath, "legacy-path", "", "legacy alias file (default alias.legacy_path)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "operation timeout")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <user-id>",
			Short: "Show a user's alias",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withStore(cmd, func(ctx context.Context, s alias.Store, p printer) error {
					rec, err := s.Get(ctx, args[0])
					if err != nil {
						return err
					}
					return p.print(viewOf(rec), func(w io.Writer) { writeRecord(w, rec) })
				})
			},
		},
		&cobra.Command{
			Use:   "search <text>",
			Short: "List aliases containing text",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withStore(cmd, func(ctx context.Context, s alias.Store, p printer) error {
					records, err := s.Search(ctx, strings.Join(args, " "))
					if err != nil {
						return err
					}
					return p.print(viewsOf(records), func(w io.Writer) {
						for _, rec := range records {
							writeRecord(w, rec)
						}
					})
				})
			},
		},
		&cobra.Command{
			Use:   "set <user-id> <name>",
			Short: "Record an alias for a user, replacing any previous one",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withStore(cmd, func(ctx context.Context, s alias.Store, p printer) error {
					if err := s.Upsert(ctx, args[0], strings.Join(args[1:], " "), time.Now()); err != nil {
						return err
					}
					rec, err := s.Get(ctx, args[0])
					if err != nil {
						return err
					}
					return p.print(viewOf(rec), func(w io.Writer) { writeRecord(w, rec) })
				})
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Count stored aliases",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withStore(cmd, func(ctx context.Context, s alias.Store, p printer) error {
					st, err := s.Stats(ctx)
					if err != nil {
						return err
					}
					view := struct {
						Total          int        `json:"total"`
						LatestSubmitAt *time.Time `json:"latest_submission,omitempty"`
					}{Total: st.Total}
					if !st.LatestSubmitAt.IsZero() {
						view.LatestSubmitAt = &st.LatestSubmitAt
					}
					return p.print(view, func(w io.Writer) {
						fmt.Fprintf(w, "total: %d\n", st.Total)
						if view.LatestSubmitAt != nil {
							fmt.Fprintf(w, "latest submission: %s\n", st.LatestSubmitAt.UTC().Format(time.RFC3339))
						}
					})
				})
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Copy the legacy alias file into an empty transactional store",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withGuard(cmd, func(ctx context.Context, g *alias.Guard, p printer) error {
					report, err := g.Run(ctx)
					if err != nil {
						return err
					}
					return p.print(report, func(w io.Writer) {
						fmt.Fprintf(w, "state: %s\nlegacy: %d\ndestination before: %d\ninserted: %d\n",
							report.State, report.LegacyCount, report.DestinationCount, report.Inserted)
					})
				})
			},
		},
		&cobra.Command{
			Use:   "verify",
			Short: "Compare the legacy alias file with the transactional store",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withGuard(cmd, func(ctx context.Context, g *alias.Guard, p printer) error {
					v, err := g.Verify(ctx)
					if err != nil {
						return err
					}
					if err := p.print(v, func(w io.Writer) {
						fmt.Fprintf(w, "legacy: %d\ndestination: %d\nmatches: %d\n", v.LegacyCount, v.DestinationCount, v.Matches)
						for _, m := range v.Mismatches {
							dest := m.DestName
							if dest == "" {
								dest = "(missing)"
							}
							fmt.Fprintf(w, "mismatch\t%s\t%s\t%s\n", m.UserID, m.LegacyName, dest)
						}
					}); err != nil {
						return err
					}
					if !v.OK() {
						return fmt.Errorf("%d aliases differ", len(v.Mismatches))
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func (o *AliasOptions) legacyConfig(cfg config.Config) config.AliasConfig {
	ac := cfg.Alias
	if strings.TrimSpace(o.LegacyPath) != "" {
		ac.LegacyPath = o.LegacyPath
	}
	return ac
}

func (o *AliasOptions) openLegacy(log *slog.Logger, cfg config.Config) (*alias.FileStore, error) {
	legacy, err := boot.OpenLegacyStore(log, o.legacyConfig(cfg))
	if err != nil {
		return nil, err
	}
	if legacy == nil {
		return nil, errors.New("no legacy alias file configured (alias.legacy_path or --legacy-path)")
	}
	return legacy, nil
}

func (o *AliasOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.Timeout)
}

// withStore opens the selected store, runs fn and closes the store.
func (o *AliasOptions) withStore(cmd *cobra.Command, fn func(ctx context.Context, s alias.Store, p printer) error) (err error) {
	cfg, log, err := o.load(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := o.context(cmd)
	defer cancel()

	var (
		store  alias.Store
		closer io.Closer
	)
	if o.Legacy {
		legacy, err := o.openLegacy(log, cfg)
		if err != nil {
			return err
		}
		store, closer = legacy, legacy
	} else {
		backend, err := boot.OpenAliasBackend(ctx, log, cfg)
		if err != nil {
			return err
		}
		store, closer = backend.Store, backend
	}
	defer func() {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, store, newPrinter(o.RootOptions, cmd.OutOrStdout()))
}

// withGuard opens both stores and hands a migration guard to fn.
func (o *AliasOptions) withGuard(cmd *cobra.Command, fn func(ctx context.Context, g *alias.Guard, p printer) error) (err error) {
	cfg, log, err := o.load(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := o.context(cmd)
	defer cancel()

	legacy, err := o.openLegacy(log, cfg)
	if err != nil {
		return err
	}
	defer legacy.Close()

	backend, err := boot.OpenAliasBackend(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, alias.NewGuard(log, legacy, backend.Store), newPrinter(o.RootOptions, cmd.OutOrStdout()))
}

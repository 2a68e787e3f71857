package voidcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opiyodhiambo/zrebot/internal/alias"
	"github.com/opiyodhiambo/zrebot/internal/logger"
)

// Options bounds one aggregation run. Zero values fall back to the defaults below.
type Options struct {
	// Timeout is the deadline for the whole run, enumeration and lookups included.
	Timeout             time.Duration
	ReactionConcurrency int
	LookupConcurrency   int
}

const (
	defaultTimeout             = 30 * time.Second
	defaultReactionConcurrency = 4
	defaultLookupConcurrency   = 16
)

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.ReactionConcurrency <= 0 {
		o.ReactionConcurrency = defaultReactionConcurrency
	}
	if o.LookupConcurrency <= 0 {
		o.LookupConcurrency = defaultLookupConcurrency
	}
	return o
}

// Aggregator builds a Snapshot from the reactions on a message.
type Aggregator struct {
	logger   *slog.Logger
	source   ReactionSource
	profiles ProfileLookup
	aliases  AliasLookup
	metrics  *Metrics
	opts     Options
}

// NewAggregator creates an Aggregator. aliases and metrics may be nil.
func NewAggregator(log *slog.Logger, source ReactionSource, profiles ProfileLookup, aliases AliasLookup, metrics *Metrics, opts Options) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		logger:   log.With(slog.String("component", "voidcheck_aggregator")),
		source:   source,
		profiles: profiles,
		aliases:  aliases,
		metrics:  metrics,
		opts:     opts.withDefaults(),
	}
}

// Aggregate enumerates every reactor of msg and returns one Identity per distinct
// non-bot user whose profile could be resolved.
//
// Reaction types are enumerated concurrently; each newly discovered user gets its
// own profile and alias lookups. Aggregate returns only after every task it
// spawned has finished. A failed enumeration or an expired deadline yields
// ErrReactionsUnavailable; failed per-user lookups only degrade that user.
func (a *Aggregator) Aggregate(ctx context.Context, guildID string, msg Message) (*Snapshot, error) {
	start := time.Now()
	defer func() { a.metrics.observeAggregation(time.Since(start)) }()

	_, log := logger.With(ctx, a.logger, slog.String("message_id", msg.ID))

	runCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	col := newCollector()
	if len(msg.Reactions) == 0 {
		return col.snapshot(), nil
	}

	// The reaction group's context is cancelled as soon as reactions.Wait returns,
	// so lookups get a group of their own that lives until lookups.Wait.
	reactions, reactionCtx := errgroup.WithContext(runCtx)
	reactions.SetLimit(a.opts.ReactionConcurrency)
	lookups, lookupCtx := errgroup.WithContext(runCtx)
	lookups.SetLimit(a.opts.LookupConcurrency)

	for _, reaction := range msg.Reactions {
		reactions.Go(func() error {
			for reactor, err := range a.source.ReactionUsers(reactionCtx, msg, reaction) {
				if err != nil {
					return fmt.Errorf("list users for %q: %w", reaction.Emoji, err)
				}
				if reactor.Bot || reactor.ID == "" || !col.claim(reactor.ID) {
					continue
				}
				userID := reactor.ID
				lookups.Go(func() error {
					a.lookup(lookupCtx, log, col, guildID, userID)
					return nil
				})
			}
			return nil
		})
	}

	// Lookups are only spawned by reaction tasks, so once those are done the
	// lookup group can no longer grow and waiting on it drains everything.
	enumErr := reactions.Wait()
	_ = lookups.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: no result within %s", ErrReactionsUnavailable, a.opts.Timeout)
	}
	if enumErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrReactionsUnavailable, enumErr)
	}

	snap := col.snapshot()
	log.Debug("reactors aggregated",
		slog.Int("reactions", len(msg.Reactions)),
		slog.Int("discovered", col.discovered()),
		slog.Int("identities", snap.Len()),
	)
	return snap, nil
}

// lookup resolves one user's profile and alias concurrently and records the
// result. A profile failure drops the user; an alias failure leaves Alias empty.
func (a *Aggregator) lookup(ctx context.Context, log *slog.Logger, col *collector, guildID, userID string) {
	aliasCh := make(chan string, 1)
	go func() {
		aliasCh <- a.lookupAlias(ctx, log, userID)
	}()

	profile, err := a.profiles.Profile(ctx, guildID, userID)
	aliasName := <-aliasCh
	if err != nil {
		a.metrics.lookupFailed(failureProfile)
		log.Warn("profile lookup failed, dropping reactor",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return
	}

	col.put(Identity{
		UserID:      userID,
		Handle:      normalizeName(profile.Handle),
		DisplayName: normalizeName(profile.DisplayName),
		Nickname:    normalizeName(profile.Nickname),
		Alias:       aliasName,
	})
}

func (a *Aggregator) lookupAlias(ctx context.Context, log *slog.Logger, userID string) string {
	if a.aliases == nil {
		return ""
	}
	rec, err := a.aliases.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, alias.ErrNotFound) {
			a.metrics.lookupFailed(failureAlias)
			log.Warn("alias lookup failed",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		}
		return ""
	}
	return normalizeName(rec.Name)
}

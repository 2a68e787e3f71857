package voidcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/opiyodhiambo/zrebot/internal/logger"
)

// CheckRequest names the host message and the person being looked for.
type CheckRequest struct {
	GuildID   string
	ChannelID string
	MessageID string
	Query     Query
}

// Service runs void checks: fetch the message, aggregate its reactors and resolve the query.
type Service struct {
	logger     *slog.Logger
	messages   MessageFetcher
	aggregator *Aggregator
	metrics    *Metrics
}

// NewService creates a Service over the platform and alias store. aliases and metrics may be nil.
func NewService(log *slog.Logger, platform Platform, aliases AliasLookup, metrics *Metrics, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		logger:     log.With(slog.String("service", "voidcheck")),
		messages:   platform,
		aggregator: NewAggregator(log, platform, platform, aliases, metrics, opts),
		metrics:    metrics,
	}
}

// Check reports whether the queried person reacted to the message.
//
// Errors are limited to ErrEmptyQuery, ErrMessageNotFound, ErrReactionsUnavailable
// and context cancellation; every other outcome is a Status.
func (s *Service) Check(ctx context.Context, req CheckRequest) (Result, error) {
	q := req.Query.Normalized()
	if q.Empty() {
		return Result{}, ErrEmptyQuery
	}

	ctx, log := logger.With(ctx, s.logger,
		slog.String("request_id", uuid.NewString()),
		slog.String("channel_id", req.ChannelID),
		slog.String("message_id", req.MessageID),
	)

	res, err := s.check(ctx, req.GuildID, req.ChannelID, req.MessageID, q)
	if err != nil {
		s.metrics.observeCheck(statusError)
		log.Log(ctx, failureLevel(err), "void check failed", slog.Any("error", err))
		return Result{}, err
	}
	s.metrics.observeCheck(string(res.Status))
	log.Info("void check done",
		slog.String("status", string(res.Status)),
		slog.Int("reactors", res.TotalReactors),
	)
	return res, nil
}

func (s *Service) check(ctx context.Context, guildID, channelID, messageID string, q Query) (Result, error) {
	msg, err := s.fetch(ctx, channelID, messageID)
	if err != nil {
		return Result{}, err
	}
	if len(msg.Reactions) == 0 {
		return Result{Status: StatusNoReactions}, nil
	}

	snap, err := s.aggregator.Aggregate(ctx, guildID, msg)
	if err != nil {
		return Result{}, err
	}
	if snap.Len() == 0 {
		return Result{Status: StatusNoValidReactions}, nil
	}

	identity, ok := Resolve(snap, q)
	if !ok {
		return Result{Status: StatusUserNotFound, TotalReactors: snap.Len()}, nil
	}
	return Result{Status: StatusFound, Identity: identity, TotalReactors: snap.Len()}, nil
}

// MessageExists reports whether the message can be fetched.
func (s *Service) MessageExists(ctx context.Context, channelID, messageID string) (bool, error) {
	_, err := s.fetch(ctx, channelID, messageID)
	if errors.Is(err, ErrMessageNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// fetch loads the message; any failure other than cancellation is reported as ErrMessageNotFound.
func (s *Service) fetch(ctx context.Context, channelID, messageID string) (Message, error) {
	msg, err := s.messages.FetchMessage(ctx, channelID, messageID)
	switch {
	case err == nil:
		return msg, nil
	case errors.Is(err, ErrMessageNotFound):
		return Message{}, err
	case ctx.Err() != nil:
		return Message{}, ctx.Err()
	default:
		return Message{}, fmt.Errorf("%w: %s/%s: %w", ErrMessageNotFound, channelID, messageID, err)
	}
}

// failureLevel keeps user-caused outcomes at INFO; platform failures are WARN.
func failureLevel(err error) slog.Level {
	switch {
	case errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrEmptyQuery), errors.Is(err, context.Canceled):
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

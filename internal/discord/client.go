// Package discord connects the void checker to Discord through discordgo.
package discord

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/opiyodhiambo/zrebot/internal/voidcheck"
)

// maxPageSize is the largest page the reactions endpoint accepts.
const maxPageSize = 100

// ClientOptions throttles REST calls and sizes reaction pages.
type ClientOptions struct {
	RequestsPerSecond float64
	Burst             int
	PageSize          int
}

// Client implements voidcheck.Platform over a discordgo session.
type Client struct {
	logger   *slog.Logger
	session  *discordgo.Session
	limiter  *rate.Limiter
	pageSize int
}

// NewSession creates a bot session for token; the caller opens and closes it.
func NewSession(token string) (*discordgo.Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bot "))
	if token == "" {
		return nil, errors.New("discord token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessageReactions
	return s, nil
}

// NewClient wraps session. A non-positive rate disables throttling.
func NewClient(log *slog.Logger, session *discordgo.Session, opts ClientOptions) *Client {
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return &Client{
		logger:   log.With(slog.String("adapter", "discord")),
		session:  session,
		limiter:  rate.NewLimiter(limit, burst),
		pageSize: pageSize,
	}
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("discord rate limiter: %w", err)
	}
	return nil
}

// FetchMessage loads a message and its reaction types.
func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (voidcheck.Message, error) {
	if err := c.wait(ctx); err != nil {
		return voidcheck.Message{}, err
	}
	m, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return voidcheck.Message{}, fmt.Errorf("%w: %s", voidcheck.ErrMessageNotFound, restReason(err))
		}
		return voidcheck.Message{}, fmt.Errorf("fetch message %s: %w", messageID, err)
	}
	return toMessage(m), nil
}

func toMessage(m *discordgo.Message) voidcheck.Message {
	msg := voidcheck.Message{ChannelID: m.ChannelID, ID: m.ID}
	for _, r := range m.Reactions {
		if r == nil || r.Emoji == nil {
			continue
		}
		msg.Reactions = append(msg.Reactions, voidcheck.Reaction{
			Emoji: r.Emoji.APIName(),
			Count: r.Count,
		})
	}
	return msg
}

// ReactionUsers pages through the users behind one reaction using the after cursor.
func (c *Client) ReactionUsers(ctx context.Context, msg voidcheck.Message, reaction voidcheck.Reaction) iter.Seq2[voidcheck.Reactor, error] {
	return func(yield func(voidcheck.Reactor, error) bool) {
		after := ""
		for {
			if err := c.wait(ctx); err != nil {
				yield(voidcheck.Reactor{}, err)
				return
			}
			users, err := c.session.MessageReactions(msg.ChannelID, msg.ID, reaction.Emoji, c.pageSize, "", after, discordgo.WithContext(ctx))
			if err != nil {
				yield(voidcheck.Reactor{}, fmt.Errorf("list %s reactions: %w", reaction.Emoji, err))
				return
			}
			for _, u := range users {
				if u == nil {
					continue
				}
				if !yield(voidcheck.Reactor{ID: u.ID, Bot: u.Bot}, nil) {
					return
				}
			}
			if len(users) < c.pageSize {
				return
			}
			after = users[len(users)-1].ID
		}
	}
}

// Profile resolves a member's names, from the state cache when it holds the member.
func (c *Client) Profile(ctx context.Context, guildID, userID string) (voidcheck.Profile, error) {
	if c.session.State != nil {
		if m, err := c.session.State.Member(guildID, userID); err == nil && m.User != nil {
			return toProfile(m), nil
		}
	}
	if err := c.wait(ctx); err != nil {
		return voidcheck.Profile{}, err
	}
	m, err := c.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return voidcheck.Profile{}, fmt.Errorf("guild member %s: %w", userID, err)
	}
	if m.User == nil {
		return voidcheck.Profile{}, fmt.Errorf("guild member %s: missing user", userID)
	}
	return toProfile(m), nil
}

func toProfile(m *discordgo.Member) voidcheck.Profile {
	return voidcheck.Profile{
		Handle:      m.User.Username,
		DisplayName: effectiveName(m),
		Nickname:    m.Nick,
	}
}

// effectiveName is the name shown in the guild: nickname, then global name, then username.
func effectiveName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

func isStatus(err error, status int) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == status
}

// restReason renders a REST failure as "code: message" for user-facing replies.
func restReason(err error) string {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err.Error()
	}
	if restErr.Message != nil && restErr.Message.Message != "" {
		return fmt.Sprintf("%d: %s", restErr.Message.Code, restErr.Message.Message)
	}
	if restErr.Response != nil {
		return restErr.Response.Status
	}
	return err.Error()
}

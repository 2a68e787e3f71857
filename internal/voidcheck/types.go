// Package voidcheck decides whether a given person reacted to a message.
//
// It collects every reactor of a message into a deduplicated identity snapshot
// (profile names plus the alias they registered for events) and resolves a
// query, by account id and/or free-text name, against that snapshot.
package voidcheck

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/opiyodhiambo/zrebot/internal/alias"
)

var (
	// ErrMessageNotFound is returned when the host message cannot be fetched.
	ErrMessageNotFound = errors.New("message not found")
	// ErrReactionsUnavailable is returned when reactor enumeration fails outright or the run times out.
	ErrReactionsUnavailable = errors.New("reactions unavailable")
	// ErrEmptyQuery is returned when neither a user id nor a name is supplied.
	ErrEmptyQuery = errors.New("a user or a name is required")
)

// Identity is the merged view of one reactor. All names are lower-cased;
// Nickname and Alias are empty when unset.
type Identity struct {
	UserID      string
	Handle      string
	DisplayName string
	Nickname    string
	Alias       string
}

// Reactor is one user who placed a reaction.
type Reactor struct {
	ID  string
	Bot bool
}

// Reaction is one reaction type on a message.
type Reaction struct {
	// Emoji is the platform's API name for the emoji ("name" or "name:id").
	Emoji string
	Count int
}

// Message is the host message with its reaction types.
type Message struct {
	ChannelID string
	ID        string
	Reactions []Reaction
}

// Profile is a user's names within the community.
type Profile struct {
	Handle      string
	DisplayName string
	// Nickname is empty when the member has no community-specific name.
	Nickname string
}

// MessageFetcher loads a message; a missing message yields an error wrapping ErrMessageNotFound.
type MessageFetcher interface {
	FetchMessage(ctx context.Context, channelID, messageID string) (Message, error)
}

// ReactionSource lazily enumerates the users behind one reaction, page by page.
// Enumeration stops at the first error yielded.
type ReactionSource interface {
	ReactionUsers(ctx context.Context, msg Message, reaction Reaction) iter.Seq2[Reactor, error]
}

// ProfileLookup resolves a user's names within a guild.
type ProfileLookup interface {
	Profile(ctx context.Context, guildID, userID string) (Profile, error)
}

// AliasLookup reads a user's registered alias; alias.Store satisfies it.
type AliasLookup interface {
	Get(ctx context.Context, userID string) (alias.Record, error)
}

// Platform is the chat platform surface the service needs.
type Platform interface {
	MessageFetcher
	ReactionSource
	ProfileLookup
}

// Query identifies the person being looked for. Either field may be empty, not both.
type Query struct {
	UserID string
	Name   string
}

// Normalized returns the query with the id trimmed and the name trimmed and lower-cased.
func (q Query) Normalized() Query {
	return Query{
		UserID: strings.TrimSpace(q.UserID),
		Name:   normalizeName(q.Name),
	}
}

// Empty reports whether the query carries neither an id nor a name.
func (q Query) Empty() bool {
	n := q.Normalized()
	return n.UserID == "" && n.Name == ""
}

// Status is the outcome of a check that did not fail.
type Status string

const (
	StatusFound            Status = "found"
	StatusUserNotFound     Status = "user_not_found"
	StatusNoReactions      Status = "no_reactions"
	StatusNoValidReactions Status = "no_valid_reactions"
)

// Result is returned by Service.Check. Identity is set only for StatusFound.
type Result struct {
	Status Status
	// Identity is the matched reactor.
	Identity Identity
	// TotalReactors counts distinct valid non-bot reactors.
	TotalReactors int
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

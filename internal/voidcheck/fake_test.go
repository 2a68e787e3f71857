package voidcheck

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/opiyodhiambo/zrebot/internal/alias"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakePlatform serves messages, reactors and profiles from memory.
type fakePlatform struct {
	messages map[string]Message
	fetchErr error

	// reactors is keyed by emoji; enumErr makes that emoji's enumeration fail after its reactors.
	reactors map[string][]Reactor
	enumErr  map[string]error

	profiles   map[string]Profile
	profileErr map[string]error
	// delay holds a profile lookup for that long, or until ctx is done.
	delay map[string]time.Duration

	mu           sync.Mutex
	profileCalls map[string]int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		messages:     map[string]Message{},
		reactors:     map[string][]Reactor{},
		enumErr:      map[string]error{},
		profiles:     map[string]Profile{},
		profileErr:   map[string]error{},
		delay:        map[string]time.Duration{},
		profileCalls: map[string]int{},
	}
}

// react adds a reaction to the message and records its reactors.
func (f *fakePlatform) react(messageID, emoji string, reactors ...Reactor) {
	msg := f.messages[messageID]
	msg.ID = messageID
	msg.ChannelID = "chan"
	msg.Reactions = append(msg.Reactions, Reaction{Emoji: emoji, Count: len(reactors)})
	f.messages[messageID] = msg
	f.reactors[emoji] = append(f.reactors[emoji], reactors...)
}

func (f *fakePlatform) person(id, handle, display, nick string) {
	f.profiles[id] = Profile{Handle: handle, DisplayName: display, Nickname: nick}
}

func (f *fakePlatform) FetchMessage(_ context.Context, _ string, messageID string) (Message, error) {
	if f.fetchErr != nil {
		return Message{}, f.fetchErr
	}
	msg, ok := f.messages[messageID]
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	return msg, nil
}

func (f *fakePlatform) ReactionUsers(ctx context.Context, _ Message, reaction Reaction) iter.Seq2[Reactor, error] {
	return func(yield func(Reactor, error) bool) {
		for _, r := range f.reactors[reaction.Emoji] {
			if err := ctx.Err(); err != nil {
				yield(Reactor{}, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := f.enumErr[reaction.Emoji]; err != nil {
			yield(Reactor{}, err)
		}
	}
}

func (f *fakePlatform) Profile(ctx context.Context, _ string, userID string) (Profile, error) {
	f.mu.Lock()
	f.profileCalls[userID]++
	f.mu.Unlock()

	if d := f.delay[userID]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return Profile{}, ctx.Err()
		}
	}
	if err := f.profileErr[userID]; err != nil {
		return Profile{}, err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return Profile{}, errors.New("unknown member")
	}
	return p, nil
}

func (f *fakePlatform) calls(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profileCalls[userID]
}

type fakeAliases struct {
	names map[string]string
	err   error
}

func (f fakeAliases) Get(_ context.Context, userID string) (alias.Record, error) {
	if f.err != nil {
		return alias.Record{}, f.err
	}
	name, ok := f.names[userID]
	if !ok {
		return alias.Record{}, alias.ErrNotFound
	}
	return alias.Record{UserID: userID, Name: name}, nil
}

func user(id string) Reactor { return Reactor{ID: id} }
func bot(id string) Reactor  { return Reactor{ID: id, Bot: true} }

// snapshotOf builds a snapshot holding ids in the given discovery order.
func snapshotOf(ids ...Identity) *Snapshot {
	col := newCollector()
	for _, id := range ids {
		col.claim(id.UserID)
	}
	for i := len(ids) - 1; i >= 0; i-- {
		col.put(ids[i])
	}
	return col.snapshot()
}

package services

import (
	"context"
	"sync"
	"time"

	"chatwarden/internal/core/domain"
)

type sayCall struct {
	channel domain.Channel
	text    string
}

type timeoutCall struct {
	channel  domain.Channel
	user     string
	duration time.Duration
	reason   string
}

type banCall struct {
	channel domain.Channel
	user    string
	reason  string
}

// fakeChat records every outbound chat action for assertions.
type fakeChat struct {
	mu        sync.Mutex
	says      []sayCall
	timeouts  []timeoutCall
	bans      []banCall
	moderated map[domain.Channel]bool
}

func newFakeChat() *fakeChat {
	return &fakeChat{moderated: make(map[domain.Channel]bool)}
}

func (f *fakeChat) Say(ctx context.Context, channel domain.Channel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.says = append(f.says, sayCall{channel: channel, text: text})
	return nil
}

func (f *fakeChat) Timeout(ctx context.Context, channel domain.Channel, user string, duration time.Duration, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts = append(f.timeouts, timeoutCall{channel: channel, user: user, duration: duration, reason: reason})
	return nil
}

func (f *fakeChat) Ban(ctx context.Context, channel domain.Channel, user string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bans = append(f.bans, banCall{channel: channel, user: user, reason: reason})
	return nil
}

func (f *fakeChat) IsModerator(channel domain.Channel) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.moderated[channel]
}

func (f *fakeChat) Channels() []domain.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	channels := make([]domain.Channel, 0, len(f.moderated))
	for ch := range f.moderated {
		channels = append(channels, ch)
	}
	return channels
}

// fakeClock is a manually advanced time source for the services' injectable
// now functions.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

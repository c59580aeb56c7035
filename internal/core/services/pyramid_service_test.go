package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatwarden/internal/core/domain"
	memoryrepo "chatwarden/internal/infrastructure/repositories/memory"

	"go.uber.org/zap/zaptest"
)

func newTestPyramidService(t *testing.T, chat *fakeChat, clock *fakeClock) *PyramidService {
	t.Helper()
	svc := NewPyramidService(
		[]string{"not on my watch"},
		chat,
		memoryrepo.NewStore(),
		zaptest.NewLogger(t).Sugar(),
	)
	svc.now = clock.Now
	svc.pick = func(n int) int { return 0 }
	return svc
}

// feed pushes a sequence of messages from one user through the detector and
// returns the detection produced by the last message, if any.
func feed(svc *PyramidService, channel domain.Channel, user string, messages []string) *domain.PyramidDetection {
	var detection *domain.PyramidDetection
	for _, msg := range messages {
		detection = svc.CheckMessage(context.Background(), channel, user, msg)
	}
	return detection
}

var classicPyramid = []string{
	"go",
	"go go",
	"go go go",
	"go go go go",
	"go go go",
	"go go",
}

func TestPyramid_DetectedOneStepBeforeCompletion(t *testing.T) {
	chat := newFakeChat()
	svc := newTestPyramidService(t, chat, newFakeClock())
	channel := domain.Channel("somechannel")
	svc.ChannelInit(channel)

	for i, msg := range classicPyramid[:len(classicPyramid)-1] {
		if d := svc.CheckMessage(context.Background(), channel, "bob", msg); d != nil {
			t.Fatalf("message %d %q fired early: %+v", i+1, msg, d)
		}
	}

	detection := svc.CheckMessage(context.Background(), channel, "bob", classicPyramid[len(classicPyramid)-1])
	if detection == nil {
		t.Fatal("expected detection on the penultimate pyramid row")
	}
	if detection.Channel != channel || detection.User != "bob" || detection.Phrase != "go" {
		t.Errorf("unexpected detection %+v", detection)
	}
	if detection.Strikes != 1 {
		t.Errorf("got %d strikes, want 1", detection.Strikes)
	}
	if detection.ID == "" {
		t.Error("detection should carry an ID")
	}

	if len(chat.says) != 1 {
		t.Fatalf("got %d chat messages, want exactly one interrupt", len(chat.says))
	}
	if chat.says[0].text != "@bob not on my watch" {
		t.Errorf("got interrupt %q", chat.says[0].text)
	}
	if len(chat.timeouts) != 0 {
		t.Errorf("normal mode must not time anyone out, got %v", chat.timeouts)
	}
}

func TestPyramid_TallerPyramid(t *testing.T) {
	chat := newFakeChat()
	svc := newTestPyramidService(t, chat, newFakeClock())
	channel := domain.Channel("somechannel")
	svc.ChannelInit(channel)

	messages := []string{
		"Kappa",
		"Kappa Kappa",
		"Kappa Kappa Kappa",
		"Kappa Kappa Kappa Kappa",
		"Kappa Kappa Kappa Kappa Kappa",
		"Kappa Kappa Kappa Kappa",
		"Kappa Kappa Kappa",
		"Kappa Kappa",
	}
	if detection := feed(svc, channel, "bob", messages); detection == nil {
		t.Fatal("expected detection one row before the five-high pyramid completes")
	}
}

func TestPyramid_IgnoredCases(t *testing.T) {
	tests := []struct {
		name     string
		messages []string
	}{
		{
			// Peak of two repetitions, below the minimum size.
			name:     "tiny pyramid",
			messages: []string{"go", "go go", "go"},
		},
		{
			name:     "flat repetition",
			messages: []string{"go", "go", "go", "go", "go", "go"},
		},
		{
			name:     "jumping step heights",
			messages: []string{"go", "go go go", "go go go go go", "go go go", "go"},
		},
		{
			name:     "descent never returns",
			messages: []string{"go", "go go", "go go go", "go go go go"},
		},
		{
			name:     "phrase changes midway",
			messages: []string{"go", "go go", "go go go", "stop stop", "go go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := newFakeChat()
			svc := newTestPyramidService(t, chat, newFakeClock())
			channel := domain.Channel("somechannel")
			svc.ChannelInit(channel)

			if d := feed(svc, channel, "bob", tt.messages); d != nil {
				t.Fatalf("unexpected detection: %+v", d)
			}
			if len(chat.says) != 0 {
				t.Fatalf("unexpected chat output: %v", chat.says)
			}
		})
	}
}

func TestPyramid_OtherUserBreaksCandidate(t *testing.T) {
	chat := newFakeChat()
	svc := newTestPyramidService(t, chat, newFakeClock())
	channel := domain.Channel("somechannel")
	svc.ChannelInit(channel)

	feed(svc, channel, "bob", classicPyramid[:4])
	// alice interjects and becomes the tracked candidate.
	svc.CheckMessage(context.Background(), channel, "alice", "hi chat")

	if d := feed(svc, channel, "bob", classicPyramid[4:]); d != nil {
		t.Fatalf("interrupted pyramid should not fire: %+v", d)
	}
}

func TestPyramid_ChannelsAreIndependent(t *testing.T) {
	chat := newFakeChat()
	svc := newTestPyramidService(t, chat, newFakeClock())
	svc.ChannelInit("chana")
	svc.ChannelInit("chanb")

	for _, msg := range classicPyramid {
		svc.CheckMessage(context.Background(), "chana", "bob", msg)
		// Same user builds slower in the second channel.
		svc.CheckMessage(context.Background(), "chanb", "bob", "unrelated chatter")
	}

	if len(chat.says) != 1 {
		t.Fatalf("got %d interrupts, want 1", len(chat.says))
	}
	if chat.says[0].channel != domain.Channel("chana") {
		t.Errorf("interrupt went to %s", chat.says[0].channel)
	}
}

func TestPyramid_ModeOffDisablesDetection(t *testing.T) {
	chat := newFakeChat()
	svc := newTestPyramidService(t, chat, newFakeClock())
	channel := domain.Channel("somechannel")
	svc.ChannelInit(channel)

	if err := svc.ToggleBlocking(channel, domain.ModeOff); err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if d := feed(svc, channel, "bob", classicPyramid); d != nil {
		t.Fatalf("detection while off: %+v", d)
	}
	if len(chat.says) != 0 {
		t.Fatalf("chat output while off: %v", chat.says)
	}
}

func TestPyramid_UnjoinedChannelIgnored(t *testing.T) {
	chat := newFakeChat()
	svc := newTestPyramidService(t, chat, newFakeClock())

	if d := feed(svc, "somechannel", "bob", classicPyramid); d != nil {
		t.Fatalf("detection without channel init: %+v", d)
	}
}

func TestPyramid_MaxModeEscalatesTimeouts(t *testing.T) {
	chat := newFakeChat()
	clock := newFakeClock()
	svc := newTestPyramidService(t, chat, clock)
	channel := domain.Channel("somechannel")
	svc.ChannelInit(channel)
	chat.moderated[channel] = true

	if err := svc.ToggleBlocking(channel, domain.ModeMax); err != nil {
		t.Fatalf("toggle max: %v", err)
	}

	wantTimeouts := []time.Duration{1 * time.Second, 15 * time.Second, 30 * time.Second, 60 * time.Second}
	for i, want := range wantTimeouts {
		detection := feed(svc, channel, "bob", classicPyramid)
		if detection == nil {
			t.Fatalf("round %d: no detection", i+1)
		}
		if detection.Strikes != i+1 {
			t.Fatalf("round %d: got %d strikes, want %d", i+1, detection.Strikes, i+1)
		}
		if len(chat.timeouts) != i+1 {
			t.Fatalf("round %d: got %d timeouts", i+1, len(chat.timeouts))
		}
		last := chat.timeouts[i]
		if last.duration != want {
			t.Errorf("round %d: got timeout %v, want %v", i+1, last.duration, want)
		}
		if last.user != "bob" {
			t.Errorf("round %d: timed out %s", i+1, last.user)
		}
		clock.Advance(time.Minute)
	}
}

func TestPyramid_StrikesResetOutsideWindow(t *testing.T) {
	chat := newFakeChat()
	clock := newFakeClock()
	svc := newTestPyramidService(t, chat, clock)
	channel := domain.Channel("somechannel")
	svc.ChannelInit(channel)

	if d := feed(svc, channel, "bob", classicPyramid); d == nil || d.Strikes != 1 {
		t.Fatalf("first pyramid: %+v", d)
	}

	clock.Advance(StrikeWindow + time.Second)
	if d := feed(svc, channel, "bob", classicPyramid); d == nil || d.Strikes != 1 {
		t.Fatalf("pyramid after the window should reset strikes: %+v", d)
	}
}

func TestPyramid_ToggleMaxRequiresModerator(t *testing.T) {
	chat := newFakeChat()
	svc := newTestPyramidService(t, chat, newFakeClock())
	channel := domain.Channel("somechannel")
	svc.ChannelInit(channel)

	err := svc.ToggleBlocking(channel, domain.ModeMax)
	if !errors.Is(err, domain.ErrInsufficientPrivilege) {
		t.Fatalf("got %v, want ErrInsufficientPrivilege", err)
	}
	if got := svc.Mode(channel); got != domain.ModeNormal {
		t.Fatalf("mode changed to %s on a failed toggle", got)
	}
}

func TestPyramid_ToggleRejectsUnknownMode(t *testing.T) {
	svc := newTestPyramidService(t, newFakeChat(), newFakeClock())

	if err := svc.ToggleBlocking("somechannel", "aggressive"); !errors.Is(err, domain.ErrInvalidModerationMode) {
		t.Fatalf("got %v, want ErrInvalidModerationMode", err)
	}
}

func TestPyramid_StrikeHistorySurvivesReload(t *testing.T) {
	store := memoryrepo.NewStore()
	log := zaptest.NewLogger(t).Sugar()
	chat := newFakeChat()
	clock := newFakeClock()
	ctx := context.Background()

	svc := NewPyramidService(nil, chat, store, log)
	svc.now = clock.Now
	svc.pick = func(n int) int { return 0 }
	svc.ChannelInit("somechannel")
	if d := feed(svc, "somechannel", "bob", classicPyramid); d == nil {
		t.Fatal("expected detection")
	}
	if err := svc.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := NewPyramidService(nil, chat, store, log)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	history := reloaded.StrikeHistory("somechannel")
	if entry, ok := history["bob"]; !ok || entry.Strikes != 1 {
		t.Fatalf("history lost across reload: %v", history)
	}
}

func TestPyramid_EmptyMessagePoolSkipsInterrupt(t *testing.T) {
	chat := newFakeChat()
	clock := newFakeClock()
	svc := NewPyramidService(nil, chat, memoryrepo.NewStore(), zaptest.NewLogger(t).Sugar())
	svc.now = clock.Now
	svc.ChannelInit("somechannel")

	if d := feed(svc, "somechannel", "bob", classicPyramid); d == nil {
		t.Fatal("expected detection")
	}
	if len(chat.says) != 0 {
		t.Fatalf("no interrupt should be sent without a message pool, got %v", chat.says)
	}
}

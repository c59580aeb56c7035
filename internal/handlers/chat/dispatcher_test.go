package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"chatwarden/internal/core/domain"
	"chatwarden/internal/core/services"
	memoryrepo "chatwarden/internal/infrastructure/repositories/memory"

	"go.uber.org/zap/zaptest"
)

type fakeChat struct {
	mu        sync.Mutex
	says      []string
	timeouts  []string
	moderated map[domain.Channel]bool
}

func newFakeChat() *fakeChat {
	return &fakeChat{moderated: make(map[domain.Channel]bool)}
}

func (f *fakeChat) Say(ctx context.Context, channel domain.Channel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.says = append(f.says, text)
	return nil
}

func (f *fakeChat) Timeout(ctx context.Context, channel domain.Channel, user string, duration time.Duration, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts = append(f.timeouts, user)
	return nil
}

func (f *fakeChat) Ban(ctx context.Context, channel domain.Channel, user string, reason string) error {
	return nil
}

func (f *fakeChat) IsModerator(channel domain.Channel) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.moderated[channel]
}

func (f *fakeChat) Channels() []domain.Channel { return nil }

func (f *fakeChat) lastSay(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.says) == 0 {
		t.Fatal("expected a chat reply, got none")
	}
	return f.says[len(f.says)-1]
}

type fakeSink struct {
	mu       sync.Mutex
	commands []domain.CommandMetric
	pyramids []domain.PyramidDetection
}

func (f *fakeSink) PublishCommandMetric(m domain.CommandMetric) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, m)
}

func (f *fakeSink) PublishPyramidMetric(d domain.PyramidDetection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pyramids = append(f.pyramids, d)
}

type fakeProtector struct {
	protected map[domain.Channel]bool
}

func (f *fakeProtector) Protect(channel domain.Channel)   { f.protected[channel] = true }
func (f *fakeProtector) Unprotect(channel domain.Channel) { delete(f.protected, channel) }
func (f *fakeProtector) IsProtected(channel domain.Channel) bool {
	return f.protected[channel]
}

type testBot struct {
	dispatcher *Dispatcher
	chat       *fakeChat
	sink       *fakeSink
	policies   *services.PolicyService
	cooldowns  *services.CooldownService
	pyramids   *services.PyramidService
}

func newTestBot(t *testing.T, owners ...string) *testBot {
	t.Helper()
	return newTestBotWithPrefix(t, "!", owners...)
}

func newTestBotWithPrefix(t *testing.T, prefix string, owners ...string) *testBot {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	store := memoryrepo.NewStore()
	chatClient := newFakeChat()
	sink := &fakeSink{}

	policies := services.NewPolicyService(store, log)
	cooldowns := services.NewCooldownService(store, log)
	gate := services.NewGateService(owners, policies, cooldowns, log)
	pyramids := services.NewPyramidService([]string{"not on my watch"}, chatClient, store, log)
	accountAge := services.NewAccountAgeService(store, chatClient, log)

	d := NewDispatcher(prefix, gate, policies, cooldowns, pyramids, accountAge, chatClient, sink, log)
	RegisterBuiltins(d)
	if err := policies.Load(context.Background(), d.DefaultRoles()); err != nil {
		t.Fatalf("load policies: %v", err)
	}
	d.HandleJoin("somechannel")

	return &testBot{
		dispatcher: d,
		chat:       chatClient,
		sink:       sink,
		policies:   policies,
		cooldowns:  cooldowns,
		pyramids:   pyramids,
	}
}

func message(user, text string, badges domain.Badges) domain.ChatMessage {
	return domain.ChatMessage{
		Channel: "somechannel",
		User:    domain.ChatUser{Name: user, Badges: badges},
		Text:    text,
	}
}

func modBadges() domain.Badges {
	return domain.Badges{"moderator": "1"}
}

func TestDispatcher_PingRepliesPong(t *testing.T) {
	bot := newTestBot(t)

	bot.dispatcher.HandleMessage(context.Background(), message("viewer", "!ping", nil))

	if got := bot.chat.lastSay(t); got != "@viewer pong" {
		t.Fatalf("got reply %q", got)
	}
	if len(bot.sink.commands) != 1 {
		t.Fatalf("got %d command metrics, want 1", len(bot.sink.commands))
	}
	m := bot.sink.commands[0]
	if m.Command != "ping" || m.Caller != "viewer" || !m.Success {
		t.Fatalf("unexpected metric %+v", m)
	}
	if m.Latency <= 0 {
		t.Fatal("latency must be positive")
	}
}

func TestDispatcher_CommandsAreCaseInsensitive(t *testing.T) {
	bot := newTestBot(t)

	bot.dispatcher.HandleMessage(context.Background(), message("viewer", "  !PING  ", nil))

	if got := bot.chat.lastSay(t); got != "@viewer pong" {
		t.Fatalf("got reply %q", got)
	}
}

func TestDispatcher_IgnoresOwnMessages(t *testing.T) {
	bot := newTestBot(t)

	msg := message("chatwarden", "!ping", nil)
	msg.Self = true
	bot.dispatcher.HandleMessage(context.Background(), msg)

	if len(bot.chat.says) != 0 || len(bot.sink.commands) != 0 {
		t.Fatal("self messages must be ignored entirely")
	}
}

func TestDispatcher_UnknownCommandFallsThroughToFreeText(t *testing.T) {
	bot := newTestBot(t)

	bot.dispatcher.HandleMessage(context.Background(), message("viewer", "!nosuch", nil))

	if len(bot.chat.says) != 0 {
		t.Fatalf("unknown commands must not produce replies, got %v", bot.chat.says)
	}
	if len(bot.sink.commands) != 0 {
		t.Fatal("unknown commands must not produce command metrics")
	}
}

func TestDispatcher_RoleDenialNamesRequiredRoles(t *testing.T) {
	bot := newTestBot(t)

	bot.dispatcher.HandleMessage(context.Background(), message("viewer", "!setroles ping all", nil))

	got := bot.chat.lastSay(t)
	want := "@viewer Not allowed to use !setroles command. Must be one of: broadcaster, moderator"
	if got != want {
		t.Fatalf("got reply %q, want %q", got, want)
	}
	if len(bot.sink.commands) != 1 || bot.sink.commands[0].Success {
		t.Fatalf("denied dispatch should emit an unsuccessful metric: %+v", bot.sink.commands)
	}
}

func TestDispatcher_BannedUserGetsSilence(t *testing.T) {
	bot := newTestBot(t)
	bot.policies.Ban("troll")

	bot.dispatcher.HandleMessage(context.Background(), message("troll", "!ping", nil))

	if len(bot.chat.says) != 0 {
		t.Fatalf("banned users must get no reply, got %v", bot.chat.says)
	}
	if len(bot.sink.commands) != 1 || bot.sink.commands[0].Success {
		t.Fatal("banned dispatch still emits an unsuccessful metric")
	}
}

func TestDispatcher_CooldownDenialReply(t *testing.T) {
	bot := newTestBot(t)
	bot.cooldowns.SetDuration("somechannel", "ping", 10)

	bot.dispatcher.HandleMessage(context.Background(), message("viewer", "!ping", nil))
	bot.dispatcher.HandleMessage(context.Background(), message("viewer", "!ping", nil))

	got := bot.chat.lastSay(t)
	if got != "@viewer !ping is on cooldown for 10 seconds" {
		t.Fatalf("got reply %q", got)
	}
}

func TestDispatcher_SetRolesRoundTrip(t *testing.T) {
	bot := newTestBot(t)
	ctx := context.Background()

	bot.dispatcher.HandleMessage(ctx, message("somemod", "!setroles ping vip", modBadges()))
	if got := bot.chat.lastSay(t); got != "@somemod !ping now requires one of: vip (custom)" {
		t.Fatalf("got reply %q", got)
	}

	// The override is live: plain viewers are now locked out of !ping.
	bot.dispatcher.HandleMessage(ctx, message("viewer", "!ping", nil))
	got := bot.chat.lastSay(t)
	if !strings.HasPrefix(got, "@viewer Not allowed to use !ping") {
		t.Fatalf("got reply %q", got)
	}

	// And "default" restores the open default.
	bot.dispatcher.HandleMessage(ctx, message("somemod", "!setroles ping default", modBadges()))
	bot.dispatcher.HandleMessage(ctx, message("viewer", "!ping", nil))
	if got := bot.chat.lastSay(t); got != "@viewer pong" {
		t.Fatalf("got reply %q", got)
	}
}

func TestDispatcher_SetRolesRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"missing args", "!setroles", "@somemod usage: !setroles <command> <roles...|all|default>"},
		{"unknown command", "!setroles nosuch vip", "@somemod no such command: !nosuch"},
		{"bad role", "!setroles ping wizard", "@somemod unrecognized role; valid roles: broadcaster, moderator, vip, subscriber"},
		{"conflicting levels", "!setroles ping all vip", "@somemod 'all' and 'default' cannot be combined with other levels"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := newTestBot(t)
			bot.dispatcher.HandleMessage(context.Background(), message("somemod", tt.text, modBadges()))
			if got := bot.chat.lastSay(t); got != tt.want {
				t.Fatalf("got reply %q, want %q", got, tt.want)
			}
			if bot.sink.commands[0].Success {
				t.Fatal("rejected input should mark the dispatch unsuccessful")
			}
		})
	}
}

func TestDispatcher_CooldownCommand(t *testing.T) {
	bot := newTestBot(t)
	ctx := context.Background()

	bot.dispatcher.HandleMessage(ctx, message("somemod", "!cooldown ping", modBadges()))
	if got := bot.chat.lastSay(t); got != "@somemod !ping has no cooldown" {
		t.Fatalf("got reply %q", got)
	}

	bot.dispatcher.HandleMessage(ctx, message("somemod", "!cooldown ping 30", modBadges()))
	if got := bot.chat.lastSay(t); got != "@somemod !ping cooldown set to 30 seconds" {
		t.Fatalf("got reply %q", got)
	}
	if got := bot.cooldowns.Duration("somechannel", "ping"); got != 30 {
		t.Fatalf("got stored duration %d, want 30", got)
	}

	bot.dispatcher.HandleMessage(ctx, message("somemod", "!cooldown ping 0", modBadges()))
	if got := bot.chat.lastSay(t); got != "@somemod !ping cooldown removed" {
		t.Fatalf("got reply %q", got)
	}
}

func TestDispatcher_WardModeRequiresBotModerator(t *testing.T) {
	bot := newTestBot(t)
	ctx := context.Background()

	bot.dispatcher.HandleMessage(ctx, message("somemod", "!wardmode max", modBadges()))
	if got := bot.chat.lastSay(t); got != "@somemod max mode needs the bot to be a moderator here" {
		t.Fatalf("got reply %q", got)
	}

	bot.chat.moderated["somechannel"] = true
	bot.dispatcher.HandleMessage(ctx, message("somemod", "!wardmode max", modBadges()))
	if got := bot.chat.lastSay(t); got != "@somemod pyramid moderation set to max" {
		t.Fatalf("got reply %q", got)
	}
	if got := bot.pyramids.Mode("somechannel"); got != domain.ModeMax {
		t.Fatalf("mode is %s, want max", got)
	}
}

func TestDispatcher_ProtectRequiresBanWave(t *testing.T) {
	bot := newTestBot(t)
	ctx := context.Background()

	bot.dispatcher.HandleMessage(ctx, message("somemod", "!protect", modBadges()))
	if got := bot.chat.lastSay(t); got != "@somemod ban-wave protection is not enabled on this bot" {
		t.Fatalf("got reply %q", got)
	}

	protector := &fakeProtector{protected: make(map[domain.Channel]bool)}
	bot.dispatcher.SetProtection(protector)

	bot.dispatcher.HandleMessage(ctx, message("somemod", "!protect", modBadges()))
	if !protector.IsProtected("somechannel") {
		t.Fatal("channel should be protected")
	}
	bot.dispatcher.HandleMessage(ctx, message("somemod", "!unprotect", modBadges()))
	if protector.IsProtected("somechannel") {
		t.Fatal("channel should be unprotected")
	}
}

func TestDispatcher_BanUserIsOwnerOnly(t *testing.T) {
	bot := newTestBot(t, "theowner")
	ctx := context.Background()

	// Non-owners get silence, not a usage hint.
	bot.dispatcher.HandleMessage(ctx, message("somemod", "!banuser troll", modBadges()))
	if len(bot.chat.says) != 0 {
		t.Fatalf("non-owner banuser must stay silent, got %v", bot.chat.says)
	}
	if bot.policies.IsBanned("troll") {
		t.Fatal("non-owner must not ban anyone")
	}

	bot.dispatcher.HandleMessage(ctx, message("theowner", "!banuser @Troll", nil))
	if got := bot.chat.lastSay(t); got != "@theowner troll is now ignored everywhere" {
		t.Fatalf("got reply %q", got)
	}
	if !bot.policies.IsBanned("troll") {
		t.Fatal("troll should be banned")
	}

	bot.dispatcher.HandleMessage(ctx, message("theowner", "!unbanuser troll", nil))
	if bot.policies.IsBanned("troll") {
		t.Fatal("troll should be unbanned")
	}
}

func TestDispatcher_FreeTextFeedsPyramidDetector(t *testing.T) {
	bot := newTestBot(t)
	ctx := context.Background()

	rows := []string{"go", "go go", "go go go", "go go go go", "go go go", "go go"}
	for _, row := range rows {
		bot.dispatcher.HandleMessage(ctx, message("bob", row, nil))
	}

	if len(bot.sink.pyramids) != 1 {
		t.Fatalf("got %d pyramid metrics, want 1", len(bot.sink.pyramids))
	}
	d := bot.sink.pyramids[0]
	if d.User != "bob" || d.Phrase != "go" {
		t.Fatalf("unexpected detection %+v", d)
	}
	if got := bot.chat.lastSay(t); got != "@bob not on my watch" {
		t.Fatalf("got interrupt %q", got)
	}
}

func TestDispatcher_UsageTextFollowsPrefix(t *testing.T) {
	bot := newTestBotWithPrefix(t, "?")
	ctx := context.Background()

	bot.dispatcher.HandleMessage(ctx, message("somemod", "?wardmode bogus", modBadges()))
	if got := bot.chat.lastSay(t); got != "@somemod usage: ?wardmode <off|normal|max>" {
		t.Fatalf("got reply %q", got)
	}

	bot.dispatcher.HandleMessage(ctx, message("somemod", "?agegate nope", modBadges()))
	if got := bot.chat.lastSay(t); got != "@somemod usage: ?agegate <hours> [timeout|ban]" {
		t.Fatalf("got reply %q", got)
	}
}

func TestDispatcher_RegisterPanicsOnDuplicate(t *testing.T) {
	bot := newTestBot(t)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	bot.dispatcher.Register(&Command{ID: "ping"})
}

func TestDispatcher_HelpListsCommands(t *testing.T) {
	bot := newTestBot(t)
	ctx := context.Background()

	bot.dispatcher.HandleMessage(ctx, message("viewer", "!help", nil))
	got := bot.chat.lastSay(t)
	if !strings.HasPrefix(got, "@viewer commands: ") || !strings.Contains(got, "!ping") {
		t.Fatalf("got reply %q", got)
	}

	bot.dispatcher.HandleMessage(ctx, message("viewer", "!help ping", nil))
	if got := bot.chat.lastSay(t); got != "@viewer !ping: check that the bot is alive" {
		t.Fatalf("got reply %q", got)
	}
}

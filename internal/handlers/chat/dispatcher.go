package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatwarden/internal/core/domain"
	"chatwarden/internal/core/ports"
	"chatwarden/internal/core/services"
	"chatwarden/pkg/tracing"

	"go.uber.org/zap"
)

// HandlerFunc is the body of one chat command. The dispatch gate has already
// allowed the invocation by the time a handler runs; handlers only implement
// the command's business behaviour.
type HandlerFunc func(ctx context.Context, d *Dispatcher, msg domain.ChatMessage, args []string) error

// Command pairs an identifier with its default access roles and handler.
type Command struct {
	ID           domain.CommandID
	Description  string
	DefaultRoles []domain.Role
	Handler      HandlerFunc
}

// Dispatcher classifies every inbound message as a command or free text,
// routes commands through the gate and free text through the pyramid
// detector, and reports both paths to the metrics sink. One instance owns
// the command registry; it is constructed once at startup.
type Dispatcher struct {
	prefix   string
	commands map[domain.CommandID]*Command

	gate       *services.GateService
	policies   *services.PolicyService
	cooldowns  *services.CooldownService
	pyramids   *services.PyramidService
	accountAge *services.AccountAgeService

	chat       ports.ChatClient
	metrics    ports.MetricsSink
	protection ChannelProtector
	logger     *zap.SugaredLogger
	now        func() time.Time
}

// ChannelProtector is the ban-wave opt-in surface exposed to chat commands.
type ChannelProtector interface {
	Protect(channel domain.Channel)
	Unprotect(channel domain.Channel)
	IsProtected(channel domain.Channel) bool
}

// SetProtection wires the ban-wave worker. Optional; the protect commands
// report unavailability when unset.
func (d *Dispatcher) SetProtection(p ChannelProtector) { d.protection = p }

func NewDispatcher(
	prefix string,
	gate *services.GateService,
	policies *services.PolicyService,
	cooldowns *services.CooldownService,
	pyramids *services.PyramidService,
	accountAge *services.AccountAgeService,
	chatClient ports.ChatClient,
	metrics ports.MetricsSink,
	logger *zap.SugaredLogger,
) *Dispatcher {
	if prefix == "" {
		prefix = "!"
	}
	return &Dispatcher{
		prefix:     prefix,
		commands:   make(map[domain.CommandID]*Command),
		gate:       gate,
		policies:   policies,
		cooldowns:  cooldowns,
		pyramids:   pyramids,
		accountAge: accountAge,
		chat:       chatClient,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Register adds a command to the registry. Panics on duplicates, which are
// always a programming error caught at startup.
func (d *Dispatcher) Register(cmd *Command) {
	if _, ok := d.commands[cmd.ID]; ok {
		panic(fmt.Sprintf("duplicate command registration: %s", cmd.ID))
	}
	d.commands[cmd.ID] = cmd
}

// DefaultRoles returns the default access roles of every registered command,
// used to seed the policy store for commands never configured before.
func (d *Dispatcher) DefaultRoles() map[domain.CommandID][]domain.Role {
	defaults := make(map[domain.CommandID][]domain.Role, len(d.commands))
	for id, cmd := range d.commands {
		defaults[id] = cmd.DefaultRoles
	}
	return defaults
}

// HandleJoin enables pyramid detection for a freshly joined channel.
func (d *Dispatcher) HandleJoin(channel domain.Channel) {
	d.pyramids.ChannelInit(channel)
}

// HandleMessage processes one inbound chat message to completion. The
// transport calls it serially, which keeps all core state single-writer.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg domain.ChatMessage) {
	if msg.Self {
		return
	}

	text := strings.ToLower(strings.TrimSpace(msg.Text))
	args := strings.Fields(text)
	if len(args) == 0 {
		return
	}

	if strings.HasPrefix(args[0], d.prefix) {
		id := domain.CommandID(strings.TrimPrefix(args[0], d.prefix))
		if cmd, ok := d.commands[id]; ok {
			d.dispatch(ctx, cmd, msg, args)
			return
		}
	}

	spanCtx, span := tracing.TracePyramidCheck(ctx, string(msg.Channel), msg.User.Name)
	detection := d.pyramids.CheckMessage(spanCtx, msg.Channel, msg.User.Name, text)
	if detection != nil {
		span.SetAttributes(
			tracing.PhraseKey.String(detection.Phrase),
			tracing.StrikesKey.Int(detection.Strikes),
		)
	}
	span.End()

	if detection != nil {
		d.metrics.PublishPyramidMetric(*detection)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd *Command, msg domain.ChatMessage, args []string) {
	ctx, span := tracing.TraceCommandDispatch(ctx, string(msg.Channel), string(cmd.ID), msg.User.Name)
	defer span.End()

	start := d.now()
	roles := services.ResolveRoles(msg.User.Badges)

	decision, err := d.gate.Evaluate(msg.Channel, msg.User.Name, roles, cmd.ID)
	if err != nil {
		d.logger.Errorw("gate evaluation failed", "command", cmd.ID, "error", err)
		tracing.RecordError(ctx, err)
		return
	}

	var success bool
	switch decision.Type {
	case domain.DecisionAllowed:
		if err := cmd.Handler(ctx, d, msg, args); err != nil {
			d.logger.Errorw("command handler failed",
				"channel", msg.Channel,
				"command", cmd.ID,
				"error", err,
			)
			tracing.RecordError(ctx, err)
		} else {
			success = true
		}
	case domain.DecisionDeniedCooldown:
		unit := "seconds"
		if decision.RemainingSeconds == 1 {
			unit = "second"
		}
		d.reply(ctx, msg, fmt.Sprintf("%s%s is on cooldown for %d %s",
			d.prefix, cmd.ID, decision.RemainingSeconds, unit))
	case domain.DecisionDeniedRole:
		d.reply(ctx, msg, fmt.Sprintf("Not allowed to use %s%s command. Must be one of: %s",
			d.prefix, cmd.ID, joinRoles(decision.RequiredRoles)))
	case domain.DecisionDeniedBanned:
		// Banned users get silence, not a hint that they are banned.
	}

	latency := d.now().Sub(start)
	if latency <= 0 {
		latency = time.Millisecond
	}
	d.metrics.PublishCommandMetric(domain.CommandMetric{
		Channel:   msg.Channel,
		Command:   cmd.ID,
		Caller:    msg.User.Name,
		StartTime: start,
		Latency:   latency,
		Success:   success,
	})
}

// reply sends an @-addressed chat response. Send failures are logged and
// swallowed: outbound chat is fire-and-forget for the core.
func (d *Dispatcher) reply(ctx context.Context, msg domain.ChatMessage, text string) {
	if err := d.chat.Say(ctx, msg.Channel, fmt.Sprintf("@%s %s", msg.User.Name, text)); err != nil {
		d.logger.Errorw("chat reply failed", "channel", msg.Channel, "error", err)
	}
}

// commandErr reports a user-facing failure: the text goes to chat and the
// handler result marks the dispatch unsuccessful.
func (d *Dispatcher) commandErr(ctx context.Context, msg domain.ChatMessage, text string) error {
	d.reply(ctx, msg, text)
	return errors.New(text)
}

func joinRoles(roles []domain.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

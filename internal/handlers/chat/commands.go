package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"chatwarden/internal/core/domain"
)

// RegisterBuiltins installs the bot's built-in command set. Commands with an
// empty DefaultRoles list are open to everyone until a channel overrides
// them.
func RegisterBuiltins(d *Dispatcher) {
	modOnly := []domain.Role{domain.RoleBroadcaster, domain.RoleModerator}

	d.Register(&Command{
		ID:          "ping",
		Description: "check that the bot is alive",
		Handler:     handlePing,
	})
	d.Register(&Command{
		ID:          "help",
		Description: "list commands, or describe one: !help <command>",
		Handler:     handleHelp,
	})
	d.Register(&Command{
		ID:           "getroles",
		Description:  "show who may use a command: !getroles <command>",
		DefaultRoles: modOnly,
		Handler:      handleGetRoles,
	})
	d.Register(&Command{
		ID:           "setroles",
		Description:  "set who may use a command: !setroles <command> <roles...|all|default>",
		DefaultRoles: modOnly,
		Handler:      handleSetRoles,
	})
	d.Register(&Command{
		ID:           "cooldown",
		Description:  "get or set a command cooldown: !cooldown <command> [seconds]",
		DefaultRoles: modOnly,
		Handler:      handleCooldown,
	})
	d.Register(&Command{
		ID:           "wardmode",
		Description:  "set pyramid moderation mode: !wardmode <off|normal|max>",
		DefaultRoles: modOnly,
		Handler:      handleWardMode,
	})
	d.Register(&Command{
		ID:           "protect",
		Description:  "opt this channel into shared ban waves",
		DefaultRoles: modOnly,
		Handler:      handleProtect,
	})
	d.Register(&Command{
		ID:           "unprotect",
		Description:  "opt this channel out of shared ban waves",
		DefaultRoles: modOnly,
		Handler:      handleUnprotect,
	})
	d.Register(&Command{
		ID:           "agegate",
		Description:  "set minimum account age: !agegate <hours> [timeout|ban]",
		DefaultRoles: modOnly,
		Handler:      handleAgeGate,
	})
	d.Register(&Command{
		ID:          "banuser",
		Description: "bot-ban a user everywhere (owner only): !banuser <name>",
		Handler:     handleBanUser,
	})
	d.Register(&Command{
		ID:          "unbanuser",
		Description: "lift a bot ban (owner only): !unbanuser <name>",
		Handler:     handleUnbanUser,
	})
}

func handlePing(ctx context.Context, d *Dispatcher, msg domain.ChatMessage, args []string) error {
	d.reply(ctx, msg, "pong")
	return nil
}

func handleHelp(ctx context.Context, d *Dispatcher, msg domain.ChatMessage, args []string) error {
	if len(args) >= 2 {
		id := domain.CommandID(strings.TrimPrefix(args[1], d.prefix))
		cmd, ok := d.commands[id]
		if !ok {
			return d.commandErr(ctx, msg, fmt.Sprintf("no such command: %s%s", d.prefix, id))
		}
		d.reply(ctx, msg, fmt.Sprintf("%s%s: %s", d.prefix, cmd.ID, cmd.Description))
		return nil
	}

	names := make([]string, 0, len(d.commands))
	for id := range d.commands {
		names = append(names, d.prefix+string(id))
	}
	sort.Strings(names)
	d.reply(ctx, msg, "commands: "+strings.Join(names, ", "))
	return nil
}

func handleGetRoles(ctx context.Context, d *Dispatcher, msg domain.ChatMessage, args []string) error {
	if len(args) < 2 {
		return d.commandErr(ctx, msg, fmt.Sprintf("usage: %sgetroles <command>", d.prefix))
	}
	id := domain.CommandID(strings.TrimPrefix(args[1], d.prefix))
	policy, err := d.policies.GetPolicy(id)
	if err != nil {
		return d.commandErr(ctx, msg, fmt.Sprintf("no such command: %s%s", d.prefix, id))
	}

	kind := domain.PolicyDefault
	if _, ok := policy.Overrides[msg.Channel]; ok {
		kind = domain.PolicyCustom
	}
	roles := policy.EffectiveRoles(msg.Channel)
	if len(roles) == 0 {
		d.reply(ctx, msg, fmt.Sprintf("%s%s is available to everyone (%s)", d.prefix, id, kind))
		return nil
	}
	d.reply(ctx, msg, fmt.Sprintf("%s%s requires one of: %s (%s)", d.prefix, id, joinRoles(roles), kind))
	return nil
}

func handleSetRoles(ctx context.Context, d *Dispatcher, msg domain.ChatMessage, args []string) error {
	if len(args) < 3 {
		return d.commandErr(ctx, msg, fmt.Sprintf("usage: %ssetroles <command> <roles...|all|default>", d.prefix))
	}
	id := domain.CommandID(strings.TrimPrefix(args[1], d.prefix))

	effective, err := d.policies.SetOverride(msg.Channel, id, args[2:])
	switch {
	case errors.Is(err, domain.ErrUnknownCommand):
		return d.commandErr(ctx, msg, fmt.Sprintf("no such command: %s%s", d.prefix, id))
	case errors.Is(err, domain.ErrConflictingLevels):
		return d.commandErr(ctx, msg, "'all' and 'default' cannot be combined with other levels")
	case errors.Is(err, domain.ErrInvalidRole):
		return d.commandErr(ctx, msg, "unrecognized role; valid roles: broadcaster, moderator, vip, subscriber")
	case err != nil:
		return err
	}

	if len(effective.Roles) == 0 {
		d.reply(ctx, msg, fmt.Sprintf("%s%s is now available to everyone (%s)", d.prefix, id, effective.Kind))
		return nil
	}
	d.reply(ctx, msg, fmt.Sprintf("%s%s now requires one of: %s (%s)", d.prefix, id, joinRoles(effective.Roles), effective.Kind))
	return nil
}

func handleCooldown(ctx context.Context, d *Dispatcher, msg domain.ChatMessage, args []string) error {
	if len(args) < 2 {
		return d.commandErr(ctx, msg, fmt.Sprintf("usage: %scooldown <command> [seconds]", d.prefix))
	}
	id := domain.CommandID(strings.TrimPrefix(args[1], d.prefix))
	if _, err := d.policies.GetPolicy(id); err != nil {
		return d.commandErr(ctx, msg, fmt.Sprintf("no such command: %s%s", d.prefix, id))
	}

	if len(args) < 3 {
		secs := d.cooldowns.Duration(msg.Channel, id)
		if secs <= 0 {
			d.reply(ctx, msg, fmt.Sprintf("%s%s has no cooldown", d.prefix, id))
			return nil
		}
		d.reply(ctx, msg, fmt.Sprintf("%s%s cooldown is %d seconds", d.prefix, id, secs))
		return nil
	}

	secs, err := strconv.Atoi(args[2])
	if err != nil || secs < 0 {
		return d.commandErr(ctx, msg, "cooldown must be a non-negative number of seconds")
	}
	d.cooldowns.SetDuration(msg.Channel, id, secs)
	if secs == 0 {
		d.reply(ctx, msg, fmt.Sprintf("%s%s cooldown removed", d.prefix, id))
		return nil
	}
	d.reply(ctx, msg, fmt.Sprintf("%s%s cooldown set to %d seconds", d.prefix, id, secs))
	return nil
}

func handleWardMode(ctx context.Context, d *Dispatcher, msg domain.ChatMessage, args []string) error {
	if len(args) < 2 {
		d.reply(ctx, msg, fmt.Sprintf("pyramid moderation is %s", d.pyramids.Mode(msg.Channel)))
		return nil
	}

	mode, err := domain.ParseModerationMode(args[1])
	if err != nil {
		return d.commandErr(ctx, msg, fmt.Sprintf("usage: %swardmode <off|normal|max>", d.prefix))
	}
	if err := d.pyramids.ToggleBlocking(msg.Channel, mode); err != nil {
		if errors.Is(err, domain.ErrInsufficientPrivilege) {
			return d.commandErr(ctx, msg, "max mode needs the bot to be a moderator here")
		}
		return err
	}
	d.reply(ctx, msg, fmt.Sprintf("pyramid moderation set to %s", mode))
	return nil
}

func handleProtect(ctx context.Context, d *Dispatcher, msg domain.ChatMessage, args []string) error {
	if d.protection == nil {
		return d.commandErr(ctx, msg, "ban-wave protection is not enabled on this bot")
	}
	d.protection.Protect(msg.Channel)
	d.reply(ctx, msg, "this channel now receives shared ban waves")
	return nil
}

func handleUnprotect(ctx context.Context, d *Dispatcher, msg domain.ChatMessage, args []string) error {
	if d.protection == nil {
		return d.commandErr(ctx, msg, "ban-wave protection is not enabled on this bot")
	}
	d.protection.Unprotect(msg.Channel)
	d.reply(ctx, msg, "this channel no longer receives ban waves")
	return nil
}

func handleAgeGate(ctx context.Context, d *Dispatcher, msg domain.ChatMessage, args []string) error {
	if len(args) < 2 {
		t := d.accountAge.Threshold(msg.Channel)
		if t.ThresholdHours <= 0 {
			d.reply(ctx, msg, "no minimum account age is set")
			return nil
		}
		d.reply(ctx, msg, fmt.Sprintf("accounts younger than %dh get a %s", t.ThresholdHours, t.Action))
		return nil
	}

	hours, err := strconv.Atoi(args[1])
	if err != nil || hours < 0 {
		return d.commandErr(ctx, msg, fmt.Sprintf("usage: %sagegate <hours> [timeout|ban]", d.prefix))
	}
	action := domain.ActionTimeout
	if len(args) >= 3 {
		switch args[2] {
		case string(domain.ActionTimeout):
			action = domain.ActionTimeout
		case string(domain.ActionBan):
			action = domain.ActionBan
		default:
			return d.commandErr(ctx, msg, fmt.Sprintf("usage: %sagegate <hours> [timeout|ban]", d.prefix))
		}
	}
	d.accountAge.SetThreshold(msg.Channel, hours, action)
	if hours == 0 {
		d.reply(ctx, msg, "account age gate disabled")
		return nil
	}
	d.reply(ctx, msg, fmt.Sprintf("accounts younger than %dh now get a %s", hours, action))
	return nil
}

func handleBanUser(ctx context.Context, d *Dispatcher, msg domain.ChatMessage, args []string) error {
	if !d.gate.IsOwner(msg.User.Name) {
		// Non-owners get no acknowledgement at all.
		return errors.New("banuser invoked by non-owner")
	}
	if len(args) < 2 {
		return d.commandErr(ctx, msg, fmt.Sprintf("usage: %sbanuser <name>", d.prefix))
	}
	name := strings.TrimPrefix(args[1], "@")
	d.policies.Ban(name)
	d.reply(ctx, msg, fmt.Sprintf("%s is now ignored everywhere", name))
	return nil
}

func handleUnbanUser(ctx context.Context, d *Dispatcher, msg domain.ChatMessage, args []string) error {
	if !d.gate.IsOwner(msg.User.Name) {
		return errors.New("unbanuser invoked by non-owner")
	}
	if len(args) < 2 {
		return d.commandErr(ctx, msg, fmt.Sprintf("usage: %sunbanuser <name>", d.prefix))
	}
	name := strings.TrimPrefix(args[1], "@")
	d.policies.Unban(name)
	d.reply(ctx, msg, fmt.Sprintf("%s is no longer ignored", name))
	return nil
}

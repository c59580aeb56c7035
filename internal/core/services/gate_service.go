package services

import (
	"strings"

	"chatwarden/internal/core/domain"

	"go.uber.org/zap"
)

// GateService composes the policy store and cooldown tracker into a single
// allow/deny decision per command invocation. Evaluation order is fixed:
// ban, then role, then cooldown. A cooldown only starts when the first two
// checks pass.
type GateService struct {
	owners    map[string]struct{}
	policies  *PolicyService
	cooldowns *CooldownService
	logger    *zap.SugaredLogger
}

func NewGateService(owners []string, policies *PolicyService, cooldowns *CooldownService, logger *zap.SugaredLogger) *GateService {
	ownerSet := make(map[string]struct{}, len(owners))
	for _, name := range owners {
		ownerSet[strings.ToLower(name)] = struct{}{}
	}
	return &GateService{
		owners:    ownerSet,
		policies:  policies,
		cooldowns: cooldowns,
		logger:    logger,
	}
}

// IsOwner reports whether the user is on the bot-level owner allow-list.
func (g *GateService) IsOwner(user string) bool {
	_, ok := g.owners[strings.ToLower(user)]
	return ok
}

// Evaluate decides whether the user may invoke the command in the channel.
// Returns domain.ErrUnknownCommand when no policy is configured for it.
func (g *GateService) Evaluate(channel domain.Channel, user string, roles domain.RoleSet, cmd domain.CommandID) (domain.Decision, error) {
	owner := g.IsOwner(user)

	if g.policies.IsBanned(user) && !owner {
		// Callers must stay silent on this one.
		return domain.Decision{Type: domain.DecisionDeniedBanned}, nil
	}

	required, err := g.policies.EffectiveRoles(channel, cmd)
	if err != nil {
		return domain.Decision{}, err
	}
	if !owner && !roles.Has(domain.RoleBroadcaster) && len(required) > 0 && !intersects(required, roles) {
		return domain.Decision{
			Type:          domain.DecisionDeniedRole,
			RequiredRoles: required,
		}, nil
	}

	if status := g.cooldowns.Check(channel, cmd); !status.Available {
		return domain.Decision{
			Type:             domain.DecisionDeniedCooldown,
			RemainingSeconds: status.RemainingSeconds,
		}, nil
	}

	return domain.Decision{Type: domain.DecisionAllowed}, nil
}

func intersects(required []domain.Role, roles domain.RoleSet) bool {
	for _, r := range required {
		if roles.Has(r) {
			return true
		}
	}
	return false
}

package services

import (
	"context"
	"fmt"
	"sync"

	"chatwarden/internal/core/domain"
	"chatwarden/internal/core/ports"

	"go.uber.org/zap"
)

// PolicyService owns the per-command access policies and the global ban
// list. It is the single writer for both maps; callers only see copies.
type PolicyService struct {
	mu       sync.RWMutex
	policies map[domain.CommandID]*domain.AccessPolicy
	banned   map[string]struct{}

	repo   ports.PolicyRepository
	logger *zap.SugaredLogger
}

func NewPolicyService(repo ports.PolicyRepository, logger *zap.SugaredLogger) *PolicyService {
	return &PolicyService{
		policies: make(map[domain.CommandID]*domain.AccessPolicy),
		banned:   make(map[string]struct{}),
		repo:     repo,
		logger:   logger,
	}
}

// Load restores persisted policies and the ban list, then registers default
// roles for any known command the persisted data does not cover yet.
func (s *PolicyService) Load(ctx context.Context, defaults map[domain.CommandID][]domain.Role) error {
	policies, err := s.repo.LoadPolicies(ctx)
	if err != nil {
		return fmt.Errorf("load access policies: %w", err)
	}
	banned, err := s.repo.LoadBanList(ctx)
	if err != nil {
		return fmt.Errorf("load ban list: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if policies != nil {
		s.policies = policies
	}
	for cmd, roles := range defaults {
		if _, ok := s.policies[cmd]; !ok {
			s.policies[cmd] = &domain.AccessPolicy{Default: roles}
		}
	}
	for _, name := range banned {
		s.banned[name] = struct{}{}
	}
	s.logger.Infow("access policies loaded",
		"commands", len(s.policies),
		"banned_users", len(s.banned),
	)
	return nil
}

// Save writes the current policies and ban list through the repository.
func (s *PolicyService) Save(ctx context.Context) error {
	s.mu.RLock()
	policies := clonePolicies(s.policies)
	banned := make([]string, 0, len(s.banned))
	for name := range s.banned {
		banned = append(banned, name)
	}
	s.mu.RUnlock()

	if err := s.repo.SavePolicies(ctx, policies); err != nil {
		return fmt.Errorf("save access policies: %w", err)
	}
	if err := s.repo.SaveBanList(ctx, banned); err != nil {
		return fmt.Errorf("save ban list: %w", err)
	}
	return nil
}

// GetPolicy returns a copy of the command's access policy.
func (s *PolicyService) GetPolicy(cmd domain.CommandID) (*domain.AccessPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policy, ok := s.policies[cmd]
	if !ok {
		return nil, domain.ErrUnknownCommand
	}
	return clonePolicy(policy), nil
}

// EffectiveRoles returns the roles required to run the command in the given
// channel, after applying any override.
func (s *PolicyService) EffectiveRoles(channel domain.Channel, cmd domain.CommandID) ([]domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policy, ok := s.policies[cmd]
	if !ok {
		return nil, domain.ErrUnknownCommand
	}
	return append([]domain.Role(nil), policy.EffectiveRoles(channel)...), nil
}

// SetOverride updates the channel's role requirement for a command. Levels
// are role names plus the "all" and "default" sentinels: "all" stores an
// unrestricted override, "default" deletes the override, and neither may be
// combined with any other entry.
func (s *PolicyService) SetOverride(channel domain.Channel, cmd domain.CommandID, levels []string) (domain.EffectivePolicy, error) {
	if len(levels) == 0 {
		return domain.EffectivePolicy{}, domain.ErrInvalidRole
	}
	sentinel := ""
	roles := make([]domain.Role, 0, len(levels))
	for _, lvl := range levels {
		if lvl == domain.LevelAll || lvl == domain.LevelDefault {
			sentinel = lvl
			continue
		}
		role, err := domain.ParseRole(lvl)
		if err != nil {
			return domain.EffectivePolicy{}, fmt.Errorf("%w: %q", domain.ErrInvalidRole, lvl)
		}
		roles = append(roles, role)
	}
	if sentinel != "" && len(levels) > 1 {
		return domain.EffectivePolicy{}, domain.ErrConflictingLevels
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	policy, ok := s.policies[cmd]
	if !ok {
		return domain.EffectivePolicy{}, domain.ErrUnknownCommand
	}

	switch sentinel {
	case domain.LevelAll:
		if policy.Overrides == nil {
			policy.Overrides = make(map[domain.Channel]domain.Override)
		}
		policy.Overrides[channel] = domain.Override{Unrestricted: true}
		return domain.EffectivePolicy{Kind: domain.PolicyCustom}, nil
	case domain.LevelDefault:
		delete(policy.Overrides, channel)
		return domain.EffectivePolicy{
			Kind:  domain.PolicyDefault,
			Roles: append([]domain.Role(nil), policy.Default...),
		}, nil
	default:
		if policy.Overrides == nil {
			policy.Overrides = make(map[domain.Channel]domain.Override)
		}
		policy.Overrides[channel] = domain.Override{Roles: roles}
		return domain.EffectivePolicy{
			Kind:  domain.PolicyCustom,
			Roles: append([]domain.Role(nil), roles...),
		}, nil
	}
}

// Ban adds a username to the global ban list. Idempotent.
func (s *PolicyService) Ban(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banned[username] = struct{}{}
}

// Unban removes a username from the global ban list. Idempotent.
func (s *PolicyService) Unban(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.banned, username)
}

func (s *PolicyService) IsBanned(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.banned[username]
	return ok
}

func (s *PolicyService) BanList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	banned := make([]string, 0, len(s.banned))
	for name := range s.banned {
		banned = append(banned, name)
	}
	return banned
}

func clonePolicy(p *domain.AccessPolicy) *domain.AccessPolicy {
	cp := &domain.AccessPolicy{
		Default: append([]domain.Role(nil), p.Default...),
	}
	if p.Overrides != nil {
		cp.Overrides = make(map[domain.Channel]domain.Override, len(p.Overrides))
		for ch, ov := range p.Overrides {
			cp.Overrides[ch] = domain.Override{
				Unrestricted: ov.Unrestricted,
				Roles:        append([]domain.Role(nil), ov.Roles...),
			}
		}
	}
	return cp
}

func clonePolicies(policies map[domain.CommandID]*domain.AccessPolicy) map[domain.CommandID]*domain.AccessPolicy {
	cp := make(map[domain.CommandID]*domain.AccessPolicy, len(policies))
	for cmd, p := range policies {
		cp[cmd] = clonePolicy(p)
	}
	return cp
}

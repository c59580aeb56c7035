package services

import (
	"chatwarden/internal/core/domain"
)

// ResolveRoles maps a user's platform badges to a capability set. Pure
// function: missing or empty badges yield an empty set. The owner role is
// never derived from badges; it comes from the configured allow-list held by
// the gate.
func ResolveRoles(badges domain.Badges) domain.RoleSet {
	roles := make(domain.RoleSet)
	if badges == nil {
		return roles
	}
	if _, ok := badges["broadcaster"]; ok {
		roles.Add(domain.RoleBroadcaster)
	}
	if _, ok := badges["moderator"]; ok {
		roles.Add(domain.RoleModerator)
	}
	if _, ok := badges["vip"]; ok {
		roles.Add(domain.RoleVIP)
	}
	if _, ok := badges["subscriber"]; ok {
		roles.Add(domain.RoleSubscriber)
	}
	return roles
}

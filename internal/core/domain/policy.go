package domain

// Override is a per-channel replacement for a command's default role
// requirements. An unrestricted override (empty role set) is distinct from no
// override at all, which falls back to the default.
type Override struct {
	Unrestricted bool   `json:"unrestricted"`
	Roles        []Role `json:"roles,omitempty"`
}

// AccessPolicy holds the role requirements for one command. An empty default
// role list means the command is unrestricted.
type AccessPolicy struct {
	Default   []Role               `json:"default"`
	Overrides map[Channel]Override `json:"overrides,omitempty"`
}

// EffectiveRoles returns the roles required to invoke the command in the
// given channel.
func (p *AccessPolicy) EffectiveRoles(channel Channel) []Role {
	if ov, ok := p.Overrides[channel]; ok {
		if ov.Unrestricted {
			return nil
		}
		return ov.Roles
	}
	return p.Default
}

// PolicyKind reports whether an effective policy comes from a channel
// override or the command default.
type PolicyKind string

const (
	PolicyDefault PolicyKind = "default"
	PolicyCustom  PolicyKind = "custom"
)

// EffectivePolicy is the result of a policy mutation, reported back to the
// caller for confirmation messages.
type EffectivePolicy struct {
	Kind  PolicyKind
	Roles []Role
}

// Access level sentinels accepted by SetOverride alongside role names.
const (
	LevelAll     = "all"
	LevelDefault = "default"
)

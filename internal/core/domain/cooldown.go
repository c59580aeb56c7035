package domain

// CooldownStatus is the result of a cooldown availability check. A check
// that finds the command available also starts the cooldown.
type CooldownStatus struct {
	Available        bool
	RemainingSeconds int
}

// AccountAgeThreshold is the per-channel minimum account age policy enforced
// by the account-age gate.
type AccountAgeThreshold struct {
	ThresholdHours int       `json:"threshold_hours"`
	Action         ModAction `json:"mod_action"`
}

// ModAction is the punishment applied when a gate trips.
type ModAction string

const (
	ActionTimeout ModAction = "timeout"
	ActionBan     ModAction = "ban"
)

package domain

// DecisionType is the outcome of a command dispatch evaluation.
type DecisionType string

const (
	DecisionAllowed        DecisionType = "allowed"
	DecisionDeniedBanned   DecisionType = "denied_banned"
	DecisionDeniedRole     DecisionType = "denied_role"
	DecisionDeniedCooldown DecisionType = "denied_cooldown"
)

// Decision is the dispatch gate's verdict for one command invocation.
// DeniedBanned must produce no chat response; the other denials do.
type Decision struct {
	Type             DecisionType
	RequiredRoles    []Role // set when Type == DecisionDeniedRole
	RemainingSeconds int    // set when Type == DecisionDeniedCooldown
}

func (d Decision) Allowed() bool {
	return d.Type == DecisionAllowed
}

package domain

// Channel is a chat channel name, normalized to lowercase without the leading '#'.
type Channel string

// CommandID is a command identifier without the leading invocation prefix.
type CommandID string

// Badges maps platform badge names to badge versions, as delivered on each
// chat message. The versions are opaque; only badge presence matters here.
type Badges map[string]string

// ChatUser identifies the author of a chat message.
type ChatUser struct {
	Name   string
	Badges Badges
}

// ChatMessage is a single inbound message from the chat transport.
type ChatMessage struct {
	Channel Channel
	User    ChatUser
	Text    string
	Self    bool
}

type Role string

const (
	RoleOwner       Role = "owner"
	RoleBroadcaster Role = "broadcaster"
	RoleModerator   Role = "moderator"
	RoleVIP         Role = "vip"
	RoleSubscriber  Role = "subscriber"
)

// ParseRole maps a user-supplied access level string to a Role. Owner is a
// bot-level role granted by configuration, never by chat input, so it is not
// accepted here.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleBroadcaster, RoleModerator, RoleVIP, RoleSubscriber:
		return Role(s), nil
	default:
		return "", ErrInvalidRole
	}
}

// RoleSet is the capability set resolved from a user's badges.
type RoleSet map[Role]struct{}

func (rs RoleSet) Has(r Role) bool {
	_, ok := rs[r]
	return ok
}

func (rs RoleSet) Add(r Role) {
	rs[r] = struct{}{}
}

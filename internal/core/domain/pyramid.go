package domain

import "time"

// ModerationMode controls how aggressively pyramid detection acts in a
// channel. Max mode issues timeouts and requires the bot to hold moderator
// capability.
type ModerationMode string

const (
	ModeOff    ModerationMode = "off"
	ModeNormal ModerationMode = "normal"
	ModeMax    ModerationMode = "max"
)

func ParseModerationMode(s string) (ModerationMode, error) {
	switch ModerationMode(s) {
	case ModeOff, ModeNormal, ModeMax:
		return ModerationMode(s), nil
	default:
		return "", ErrInvalidModerationMode
	}
}

// PyramidHistory tracks repeat pyramid offenses by one user in one channel.
// Events more than the strike window apart reset the counter.
type PyramidHistory struct {
	LastEvent time.Time `json:"last_event"`
	Strikes   int       `json:"strikes"`
}

// PyramidDetection is the record emitted when a pyramid completes, consumed
// by the metrics sink.
type PyramidDetection struct {
	ID      string
	Channel Channel
	User    string
	Phrase  string
	Time    time.Time
	Strikes int
}

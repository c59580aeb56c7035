package services

import "time"

// StrikeWindow is the sliding window for repeat-offense counting: events
// further apart than this reset the strike count to one.
const StrikeWindow = 5 * time.Minute

// Escalate maps a strike count within the window to a timeout duration.
func Escalate(strikes int) time.Duration {
	switch strikes {
	case 1:
		return 1 * time.Second
	case 2:
		return 15 * time.Second
	case 3:
		return 30 * time.Second
	default:
		return 60 * time.Second
	}
}

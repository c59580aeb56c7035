package domain

import "time"

// CommandMetric is emitted once per command dispatch, allowed or denied.
type CommandMetric struct {
	Channel   Channel
	Command   CommandID
	Caller    string
	StartTime time.Time
	Latency   time.Duration
	Success   bool
}

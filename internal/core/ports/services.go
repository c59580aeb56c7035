package ports

import (
	"context"
	"time"

	"chatwarden/internal/core/domain"
)

// ChatClient is the outbound side of the chat transport. All methods are
// fire-and-forget from the core's perspective: failures are logged by the
// caller and never fed back into gate or detector state.
type ChatClient interface {
	Say(ctx context.Context, channel domain.Channel, text string) error
	Timeout(ctx context.Context, channel domain.Channel, user string, duration time.Duration, reason string) error
	Ban(ctx context.Context, channel domain.Channel, user string, reason string) error
	// IsModerator reports whether the bot currently holds moderator
	// capability in the channel.
	IsModerator(channel domain.Channel) bool
	Channels() []domain.Channel
}

// MetricsSink receives per-dispatch and per-detection records. Sink failures
// are the sink's own concern.
type MetricsSink interface {
	PublishCommandMetric(m domain.CommandMetric)
	PublishPyramidMetric(d domain.PyramidDetection)
}

package ports

import (
	"context"

	"chatwarden/internal/core/domain"
)

// PolicyRepository persists command access policies and the global ban list.
// The core treats these as durable key-value loads and stores; the storage
// format belongs to the implementation.
type PolicyRepository interface {
	LoadPolicies(ctx context.Context) (map[domain.CommandID]*domain.AccessPolicy, error)
	SavePolicies(ctx context.Context, policies map[domain.CommandID]*domain.AccessPolicy) error
	LoadBanList(ctx context.Context) ([]string, error)
	SaveBanList(ctx context.Context, banned []string) error
}

// CooldownRepository persists configured cooldown durations in seconds,
// keyed by channel then command. Live timer state is never persisted.
type CooldownRepository interface {
	LoadDurations(ctx context.Context) (map[domain.Channel]map[domain.CommandID]int, error)
	SaveDurations(ctx context.Context, durations map[domain.Channel]map[domain.CommandID]int) error
}

// HistoryRepository persists pyramid strike history keyed by channel then
// username.
type HistoryRepository interface {
	LoadHistory(ctx context.Context) (map[domain.Channel]map[string]*domain.PyramidHistory, error)
	SaveHistory(ctx context.Context, history map[domain.Channel]map[string]*domain.PyramidHistory) error
}

// BanCacheRepository persists the ban-wave bookkeeping: which channels opted
// into bot protection, which usernames each channel already banned, and the
// per-channel account-age thresholds.
type BanCacheRepository interface {
	LoadProtectedChannels(ctx context.Context) ([]domain.Channel, error)
	SaveProtectedChannels(ctx context.Context, channels []domain.Channel) error
	LoadBanCache(ctx context.Context) (map[domain.Channel][]string, error)
	SaveBanCache(ctx context.Context, cache map[domain.Channel][]string) error
	LoadAgeThresholds(ctx context.Context) (map[domain.Channel]domain.AccountAgeThreshold, error)
	SaveAgeThresholds(ctx context.Context, thresholds map[domain.Channel]domain.AccountAgeThreshold) error
}

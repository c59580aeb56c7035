package modtools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatwarden/internal/core/domain"
	"chatwarden/internal/core/ports"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BanListSource supplies the usernames to ban on each wave. The production
// implementation reads a shared moderation document; tests supply a stub.
type BanListSource interface {
	FetchBanList(ctx context.Context) ([]string, error)
}

// BanWave periodically applies a shared ban list across channels that opted
// into bot protection. Bans are paced by a rate limiter so the wave never
// trips the platform's own flood limits; names a channel has already banned
// are skipped via the ban cache.
type BanWave struct {
	mu        sync.Mutex
	protected map[domain.Channel]struct{}
	cache     map[domain.Channel]map[string]struct{}

	source  BanListSource
	chat    ports.ChatClient
	repo    ports.BanCacheRepository
	limiter *rate.Limiter
	guard   WaveGuard
	logger  *zap.SugaredLogger
}

// WaveGuard serializes waves across bot instances sharing one state store.
// Satisfied by distributed.Lock.
type WaveGuard interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

func NewBanWave(source BanListSource, chat ports.ChatClient, repo ports.BanCacheRepository, actionsPerSecond float64, logger *zap.SugaredLogger) *BanWave {
	if actionsPerSecond <= 0 {
		actionsPerSecond = 2
	}
	return &BanWave{
		protected: make(map[domain.Channel]struct{}),
		cache:     make(map[domain.Channel]map[string]struct{}),
		source:    source,
		chat:      chat,
		repo:      repo,
		limiter:   rate.NewLimiter(rate.Limit(actionsPerSecond), 1),
		logger:    logger,
	}
}

// Load restores the protected-channel list and per-channel ban caches.
func (w *BanWave) Load(ctx context.Context) error {
	channels, err := w.repo.LoadProtectedChannels(ctx)
	if err != nil {
		return fmt.Errorf("load protected channels: %w", err)
	}
	cache, err := w.repo.LoadBanCache(ctx)
	if err != nil {
		return fmt.Errorf("load ban cache: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range channels {
		w.protected[ch] = struct{}{}
	}
	for ch, names := range cache {
		set := make(map[string]struct{}, len(names))
		for _, name := range names {
			set[name] = struct{}{}
		}
		w.cache[ch] = set
	}
	return nil
}

// Save persists the protected-channel list and ban caches.
func (w *BanWave) Save(ctx context.Context) error {
	w.mu.Lock()
	channels := make([]domain.Channel, 0, len(w.protected))
	for ch := range w.protected {
		channels = append(channels, ch)
	}
	cache := make(map[domain.Channel][]string, len(w.cache))
	for ch, set := range w.cache {
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		cache[ch] = names
	}
	w.mu.Unlock()

	if err := w.repo.SaveProtectedChannels(ctx, channels); err != nil {
		return fmt.Errorf("save protected channels: %w", err)
	}
	if err := w.repo.SaveBanCache(ctx, cache); err != nil {
		return fmt.Errorf("save ban cache: %w", err)
	}
	return nil
}

// Protect opts a channel into ban waves. Idempotent.
func (w *BanWave) Protect(channel domain.Channel) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.protected[channel] = struct{}{}
}

// Unprotect opts a channel out and drops its ban cache.
func (w *BanWave) Unprotect(channel domain.Channel) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.protected, channel)
	delete(w.cache, channel)
}

// IsProtected reports whether a channel receives ban waves.
func (w *BanWave) IsProtected(channel domain.Channel) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.protected[channel]
	return ok
}

// Run executes waves on the given period until the context is cancelled.
func (w *BanWave) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Apply(ctx); err != nil {
				w.logger.Errorw("ban wave failed", "error", err)
			}
		}
	}
}

// SetGuard installs a cross-instance wave lock. Optional.
func (w *BanWave) SetGuard(guard WaveGuard) { w.guard = guard }

// Apply runs a single ban wave across all protected joined channels.
func (w *BanWave) Apply(ctx context.Context) error {
	if w.guard != nil {
		acquired, err := w.guard.TryLock(ctx)
		if err != nil {
			return fmt.Errorf("acquire wave lock: %w", err)
		}
		if !acquired {
			w.logger.Debugw("ban wave already running elsewhere, skipping")
			return nil
		}
		defer func() {
			if err := w.guard.Unlock(ctx); err != nil {
				w.logger.Errorw("release wave lock failed", "error", err)
			}
		}()
	}

	banList, err := w.source.FetchBanList(ctx)
	if err != nil {
		return fmt.Errorf("fetch ban list: %w", err)
	}
	w.logger.Infow("starting ban wave", "list_size", len(banList))

	var applied int
	for _, channel := range w.chat.Channels() {
		if !w.IsProtected(channel) {
			continue
		}
		for _, name := range banList {
			if w.alreadyBanned(channel, name) {
				continue
			}
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := w.chat.Ban(ctx, channel, name, "shared moderation list"); err != nil {
				w.logger.Errorw("ban failed", "channel", channel, "user", name, "error", err)
				continue
			}
			w.markBanned(channel, name)
			applied++
		}
	}

	w.logger.Infow("ban wave completed", "bans_applied", applied)
	return nil
}

func (w *BanWave) alreadyBanned(channel domain.Channel, name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.cache[channel][name]
	return ok
}

func (w *BanWave) markBanned(channel domain.Channel, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cache[channel] == nil {
		w.cache[channel] = make(map[string]struct{})
	}
	w.cache[channel][name] = struct{}{}
}

package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatwarden/internal/core/domain"
	"chatwarden/internal/core/ports"

	"go.uber.org/zap"
)

// AccountAgeService gates chat participation on minimum account age. It
// reuses the moderation escalation policy's sliding-window strike counting:
// repeat violations inside the window climb the same punishment tiers.
type AccountAgeService struct {
	mu         sync.Mutex
	thresholds map[domain.Channel]domain.AccountAgeThreshold
	offenses   map[domain.Channel]map[string]*domain.PyramidHistory

	repo   ports.BanCacheRepository
	chat   ports.ChatClient
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewAccountAgeService(repo ports.BanCacheRepository, chat ports.ChatClient, logger *zap.SugaredLogger) *AccountAgeService {
	return &AccountAgeService{
		thresholds: make(map[domain.Channel]domain.AccountAgeThreshold),
		offenses:   make(map[domain.Channel]map[string]*domain.PyramidHistory),
		repo:       repo,
		chat:       chat,
		logger:     logger,
		now:        time.Now,
	}
}

// Load restores per-channel thresholds.
func (s *AccountAgeService) Load(ctx context.Context) error {
	thresholds, err := s.repo.LoadAgeThresholds(ctx)
	if err != nil {
		return fmt.Errorf("load account age thresholds: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if thresholds != nil {
		s.thresholds = thresholds
	}
	return nil
}

// Save persists per-channel thresholds.
func (s *AccountAgeService) Save(ctx context.Context) error {
	s.mu.Lock()
	thresholds := make(map[domain.Channel]domain.AccountAgeThreshold, len(s.thresholds))
	for ch, t := range s.thresholds {
		thresholds[ch] = t
	}
	s.mu.Unlock()

	if err := s.repo.SaveAgeThresholds(ctx, thresholds); err != nil {
		return fmt.Errorf("save account age thresholds: %w", err)
	}
	return nil
}

// SetThreshold configures the channel's minimum account age and the action
// taken when an account fails it.
func (s *AccountAgeService) SetThreshold(channel domain.Channel, hours int, action domain.ModAction) domain.AccountAgeThreshold {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := domain.AccountAgeThreshold{ThresholdHours: hours, Action: action}
	s.thresholds[channel] = t
	return t
}

// Threshold returns the channel's threshold, defaulting to no minimum with a
// timeout action.
func (s *AccountAgeService) Threshold(channel domain.Channel) domain.AccountAgeThreshold {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.thresholds[channel]; ok {
		return t
	}
	return domain.AccountAgeThreshold{ThresholdHours: 0, Action: domain.ActionTimeout}
}

// CheckAccount applies the channel's age gate to a user whose account was
// created at the given time. Returns true when a moderation action was
// taken.
func (s *AccountAgeService) CheckAccount(ctx context.Context, channel domain.Channel, user string, createdAt time.Time) bool {
	s.mu.Lock()

	t, ok := s.thresholds[channel]
	if !ok || t.ThresholdHours <= 0 {
		s.mu.Unlock()
		return false
	}
	now := s.now()
	if now.Sub(createdAt) >= time.Duration(t.ThresholdHours)*time.Hour {
		s.mu.Unlock()
		return false
	}

	users := s.offenses[channel]
	if users == nil {
		users = make(map[string]*domain.PyramidHistory)
		s.offenses[channel] = users
	}
	entry := users[user]
	if entry != nil && now.Sub(entry.LastEvent) <= StrikeWindow {
		entry.Strikes++
		entry.LastEvent = now
	} else {
		entry = &domain.PyramidHistory{LastEvent: now, Strikes: 1}
		users[user] = entry
	}
	strikes := entry.Strikes
	action := t.Action
	s.mu.Unlock()

	switch action {
	case domain.ActionBan:
		if err := s.chat.Ban(ctx, channel, user, "account below minimum age"); err != nil {
			s.logger.Errorw("account age ban failed", "channel", channel, "user", user, "error", err)
		}
	default:
		if err := s.chat.Timeout(ctx, channel, user, Escalate(strikes), "account below minimum age"); err != nil {
			s.logger.Errorw("account age timeout failed", "channel", channel, "user", user, "error", err)
		}
	}
	return true
}

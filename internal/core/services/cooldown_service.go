package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"chatwarden/internal/core/domain"
	"chatwarden/internal/core/ports"

	"go.uber.org/zap"
)

type cooldownState struct {
	startedAt time.Time
	duration  time.Duration
	active    bool
	timer     *time.Timer
}

// CooldownService tracks per-(channel, command) cooldown state. The expiry
// timer only flips the cached active flag of the state it was scheduled for;
// availability is always recomputed from elapsed wall-clock time, so a timer
// callback running late can never produce a wrong answer.
type CooldownService struct {
	mu        sync.Mutex
	durations map[domain.Channel]map[domain.CommandID]int
	states    map[domain.Channel]map[domain.CommandID]*cooldownState

	repo   ports.CooldownRepository
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewCooldownService(repo ports.CooldownRepository, logger *zap.SugaredLogger) *CooldownService {
	return &CooldownService{
		durations: make(map[domain.Channel]map[domain.CommandID]int),
		states:    make(map[domain.Channel]map[domain.CommandID]*cooldownState),
		repo:      repo,
		logger:    logger,
		now:       time.Now,
	}
}

// Load restores configured cooldown durations. Live cooldowns do not survive
// a restart.
func (s *CooldownService) Load(ctx context.Context) error {
	durations, err := s.repo.LoadDurations(ctx)
	if err != nil {
		return fmt.Errorf("load cooldown durations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if durations != nil {
		s.durations = durations
	}
	return nil
}

// Save persists the configured durations.
func (s *CooldownService) Save(ctx context.Context) error {
	s.mu.Lock()
	durations := make(map[domain.Channel]map[domain.CommandID]int, len(s.durations))
	for ch, cmds := range s.durations {
		cp := make(map[domain.CommandID]int, len(cmds))
		for cmd, secs := range cmds {
			cp[cmd] = secs
		}
		durations[ch] = cp
	}
	s.mu.Unlock()

	if err := s.repo.SaveDurations(ctx, durations); err != nil {
		return fmt.Errorf("save cooldown durations: %w", err)
	}
	return nil
}

// Check reports whether the command is available in the channel. When it is,
// the cooldown transitions to active as a side effect and an expiry callback
// is scheduled.
func (s *CooldownService) Check(channel domain.Channel, cmd domain.CommandID) domain.CooldownStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	secs := s.durations[channel][cmd]
	if secs <= 0 {
		return domain.CooldownStatus{Available: true}
	}

	now := s.now()
	if st := s.states[channel][cmd]; st != nil && st.active {
		elapsed := now.Sub(st.startedAt)
		if elapsed < st.duration {
			remaining := int(math.Ceil((st.duration - elapsed).Seconds()))
			return domain.CooldownStatus{Available: false, RemainingSeconds: remaining}
		}
		// Clock says expired even if the timer has not fired yet.
		st.stop()
	}

	st := &cooldownState{
		startedAt: now,
		duration:  time.Duration(secs) * time.Second,
		active:    true,
	}
	st.timer = time.AfterFunc(st.duration, func() { s.expire(channel, cmd, st) })
	if s.states[channel] == nil {
		s.states[channel] = make(map[domain.CommandID]*cooldownState)
	}
	s.states[channel][cmd] = st
	return domain.CooldownStatus{Available: true}
}

// SetDuration updates the configured cooldown. Zero seconds clears both the
// configured duration and any tracked state. If a cooldown is active, its
// expiry is rescheduled against the original start time: shortening can end
// it immediately, lengthening extends the remaining wait.
func (s *CooldownService) SetDuration(channel domain.Channel, cmd domain.CommandID, seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seconds <= 0 {
		if cmds, ok := s.durations[channel]; ok {
			delete(cmds, cmd)
		}
		if st := s.states[channel][cmd]; st != nil {
			st.stop()
			delete(s.states[channel], cmd)
		}
		return
	}

	if s.durations[channel] == nil {
		s.durations[channel] = make(map[domain.CommandID]int)
	}
	s.durations[channel][cmd] = seconds

	st := s.states[channel][cmd]
	if st == nil || !st.active {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	st.duration = time.Duration(seconds) * time.Second
	elapsed := s.now().Sub(st.startedAt)
	if elapsed >= st.duration {
		st.active = false
		return
	}
	st.timer = time.AfterFunc(st.duration-elapsed, func() { s.expire(channel, cmd, st) })
}

// Duration returns the configured cooldown in seconds, zero when none.
func (s *CooldownService) Duration(channel domain.Channel, cmd domain.CommandID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durations[channel][cmd]
}

// expire deactivates the state a timer was scheduled for. A callback that
// fires after its state was replaced by a fresh cooldown is a no-op.
func (s *CooldownService) expire(channel domain.Channel, cmd domain.CommandID, scheduled *cooldownState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.states[channel][cmd]; st == scheduled {
		st.active = false
	}
}

func (st *cooldownState) stop() {
	st.active = false
	if st.timer != nil {
		st.timer.Stop()
	}
}

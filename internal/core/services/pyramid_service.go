package services

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"chatwarden/internal/core/domain"
	"chatwarden/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// A pyramid needs at least this many recorded steps before the completion
// check runs; smaller shapes (peak of two repeats) are ignored.
const minPyramidSize = 4

// candidate is the at-most-one live pyramid attempt tracked per channel.
type candidate struct {
	user    string
	phrase  string
	pattern *regexp.Regexp
	steps   []int
}

// PyramidService recognizes triangular repeated-phrase spam in free-form
// chat, interrupts it, and escalates punishments for repeat offenders. One
// instance owns all per-channel state; mutation is serialized by its mutex.
type PyramidService struct {
	mu         sync.Mutex
	candidates map[domain.Channel]*candidate
	history    map[domain.Channel]map[string]*domain.PyramidHistory
	modes      map[domain.Channel]domain.ModerationMode

	messagePool []string
	chat        ports.ChatClient
	repo        ports.HistoryRepository
	logger      *zap.SugaredLogger
	now         func() time.Time
	pick        func(n int) int
}

func NewPyramidService(messagePool []string, chat ports.ChatClient, repo ports.HistoryRepository, logger *zap.SugaredLogger) *PyramidService {
	return &PyramidService{
		candidates:  make(map[domain.Channel]*candidate),
		history:     make(map[domain.Channel]map[string]*domain.PyramidHistory),
		modes:       make(map[domain.Channel]domain.ModerationMode),
		messagePool: messagePool,
		chat:        chat,
		repo:        repo,
		logger:      logger,
		now:         time.Now,
		pick:        rand.Intn,
	}
}

// Load restores persisted strike history.
func (s *PyramidService) Load(ctx context.Context) error {
	history, err := s.repo.LoadHistory(ctx)
	if err != nil {
		return fmt.Errorf("load pyramid history: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if history != nil {
		s.history = history
	}
	return nil
}

// Save persists strike history.
func (s *PyramidService) Save(ctx context.Context) error {
	s.mu.Lock()
	history := make(map[domain.Channel]map[string]*domain.PyramidHistory, len(s.history))
	for ch, users := range s.history {
		cp := make(map[string]*domain.PyramidHistory, len(users))
		for user, h := range users {
			entry := *h
			cp[user] = &entry
		}
		history[ch] = cp
	}
	s.mu.Unlock()

	if err := s.repo.SaveHistory(ctx, history); err != nil {
		return fmt.Errorf("save pyramid history: %w", err)
	}
	return nil
}

// ChannelInit enables detection for a freshly joined channel. Every channel
// starts in normal mode.
func (s *PyramidService) ChannelInit(channel domain.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modes[channel]; !ok {
		s.modes[channel] = domain.ModeNormal
	}
}

// Mode returns the channel's current moderation mode.
func (s *PyramidService) Mode(channel domain.Channel) domain.ModerationMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode, ok := s.modes[channel]; ok {
		return mode
	}
	return domain.ModeOff
}

// ToggleBlocking sets the channel's moderation mode. Max mode requires the
// bot to hold moderator capability in the channel; without it the call fails
// and the mode is unchanged.
func (s *PyramidService) ToggleBlocking(channel domain.Channel, mode domain.ModerationMode) error {
	if _, err := domain.ParseModerationMode(string(mode)); err != nil {
		return err
	}
	if mode == domain.ModeMax && !s.chat.IsModerator(channel) {
		return domain.ErrInsufficientPrivilege
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes[channel] = mode
	if mode == domain.ModeOff {
		delete(s.candidates, channel)
	}
	s.logger.Infow("pyramid blocking mode updated",
		"channel", channel,
		"mode", mode,
	)
	return nil
}

// CheckMessage feeds one free-text chat message through the detector. When a
// pyramid is one step from completion it fires the interrupt action, records
// the strike, punishes in max mode, and returns the detection record;
// otherwise it returns nil.
func (s *PyramidService) CheckMessage(ctx context.Context, channel domain.Channel, user, message string) *domain.PyramidDetection {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode, ok := s.modes[channel]
	if !ok || mode == domain.ModeOff {
		return nil
	}

	cand := s.candidates[channel]
	if cand == nil || cand.user != user ||
		!cand.pattern.MatchString(message) ||
		!strings.HasPrefix(message, cand.phrase) {
		s.track(channel, user, message)
		return nil
	}

	steps := len(cand.pattern.FindAllString(message, -1))
	cand.steps = append(cand.steps, steps)
	if len(cand.steps) < 2 {
		return nil
	}

	// Each pyramid step must change height by exactly one repetition.
	last := cand.steps[len(cand.steps)-1]
	prev := cand.steps[len(cand.steps)-2]
	if delta := last - prev; delta != 1 && delta != -1 {
		s.track(channel, user, message)
		return nil
	}

	// A pyramid one step from completion has an even number of recorded
	// steps: the descending leg mirrors the ascending one around the peak.
	seq := cand.steps
	if len(seq) < minPyramidSize || len(seq)%2 != 0 {
		return nil
	}
	if seq[2]-seq[1] != seq[1]-seq[0] {
		// Ascent is not linear; candidate stays open.
		return nil
	}
	for i := 1; i < len(seq)/2; i++ {
		if seq[i] != seq[len(seq)-i] {
			// Not at the final stage yet.
			return nil
		}
	}

	detection := s.complete(ctx, channel, user, cand.phrase, mode)
	delete(s.candidates, channel)
	return detection
}

// track replaces the channel's candidate using the message as the new seed.
func (s *PyramidService) track(channel domain.Channel, user, message string) {
	fields := strings.Fields(message)
	if len(fields) == 0 {
		delete(s.candidates, channel)
		return
	}
	phrase := fields[0]
	pattern := regexp.MustCompile("(" + regexp.QuoteMeta(phrase) + ")")
	s.candidates[channel] = &candidate{
		user:    user,
		phrase:  phrase,
		pattern: pattern,
		steps:   []int{len(pattern.FindAllString(message, -1))},
	}
}

// complete fires the countermeasures for a finished pyramid and returns the
// detection record. Chat action failures are logged and never roll back the
// already-committed state.
func (s *PyramidService) complete(ctx context.Context, channel domain.Channel, user, phrase string, mode domain.ModerationMode) *domain.PyramidDetection {
	if len(s.messagePool) > 0 {
		interrupt := s.messagePool[s.pick(len(s.messagePool))]
		if err := s.chat.Say(ctx, channel, fmt.Sprintf("@%s %s", user, interrupt)); err != nil {
			s.logger.Errorw("pyramid interrupt failed", "channel", channel, "error", err)
		}
	}
	s.logger.Infow("pyramid countermeasure activated",
		"channel", channel,
		"user", user,
		"phrase", phrase,
	)

	now := s.now()
	users := s.history[channel]
	if users == nil {
		users = make(map[string]*domain.PyramidHistory)
		s.history[channel] = users
	}
	entry := users[user]
	if entry != nil && now.Sub(entry.LastEvent) <= StrikeWindow {
		entry.Strikes++
		entry.LastEvent = now
	} else {
		entry = &domain.PyramidHistory{LastEvent: now, Strikes: 1}
		users[user] = entry
	}

	if mode == domain.ModeMax {
		timeout := Escalate(entry.Strikes)
		if err := s.chat.Timeout(ctx, channel, user, timeout, "pyramids are not welcome here"); err != nil {
			s.logger.Errorw("pyramid timeout failed", "channel", channel, "user", user, "error", err)
		}
		if entry.Strikes > 1 {
			warning := fmt.Sprintf("@%s That's pyramid #%d in the last 5 minutes. Watch yourself", user, entry.Strikes)
			if err := s.chat.Say(ctx, channel, warning); err != nil {
				s.logger.Errorw("pyramid warning failed", "channel", channel, "user", user, "error", err)
			}
		}
	}

	return &domain.PyramidDetection{
		ID:      uuid.NewString(),
		Channel: channel,
		User:    user,
		Phrase:  phrase,
		Time:    now,
		Strikes: entry.Strikes,
	}
}

// StrikeHistory returns a copy of the channel's strike records.
func (s *PyramidService) StrikeHistory(channel domain.Channel) map[string]domain.PyramidHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.PyramidHistory, len(s.history[channel]))
	for user, h := range s.history[channel] {
		out[user] = *h
	}
	return out
}

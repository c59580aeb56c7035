package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"chatwarden/internal/core/domain"
)

// Store is an in-memory implementation of every persistence port. It backs
// tests and the no-redis deployment; contents vanish with the process.
type Store struct {
	mu sync.RWMutex

	policies   map[domain.CommandID]*domain.AccessPolicy
	banList    []string
	durations  map[domain.Channel]map[domain.CommandID]int
	history    map[domain.Channel]map[string]*domain.PyramidHistory
	protected  []domain.Channel
	banCache   map[domain.Channel][]string
	thresholds map[domain.Channel]domain.AccountAgeThreshold
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) LoadPolicies(ctx context.Context) (map[domain.CommandID]*domain.AccessPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policies, nil
}

func (s *Store) SavePolicies(ctx context.Context, policies map[domain.CommandID]*domain.AccessPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies = policies
	return nil
}

func (s *Store) LoadBanList(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.banList, nil
}

func (s *Store) SaveBanList(ctx context.Context, banned []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banList = banned
	return nil
}

func (s *Store) LoadDurations(ctx context.Context) (map[domain.Channel]map[domain.CommandID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.durations, nil
}

func (s *Store) SaveDurations(ctx context.Context, durations map[domain.Channel]map[domain.CommandID]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.durations = durations
	return nil
}

func (s *Store) LoadHistory(ctx context.Context) (map[domain.Channel]map[string]*domain.PyramidHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history, nil
}

func (s *Store) SaveHistory(ctx context.Context, history map[domain.Channel]map[string]*domain.PyramidHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = history
	return nil
}

func (s *Store) LoadProtectedChannels(ctx context.Context) ([]domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protected, nil
}

func (s *Store) SaveProtectedChannels(ctx context.Context, channels []domain.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protected = channels
	return nil
}

func (s *Store) LoadBanCache(ctx context.Context) (map[domain.Channel][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.banCache, nil
}

func (s *Store) SaveBanCache(ctx context.Context, cache map[domain.Channel][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banCache = cache
	return nil
}

func (s *Store) LoadAgeThresholds(ctx context.Context) (map[domain.Channel]domain.AccountAgeThreshold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds, nil
}

func (s *Store) SaveAgeThresholds(ctx context.Context, thresholds map[domain.Channel]domain.AccountAgeThreshold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds = thresholds
	return nil
}

// Export serializes every collection as raw JSON, keyed by collection name.
// Used by the file-backup snapshot path.
func (s *Store) Export() (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collections := map[string]interface{}{
		"cmd_access":         s.policies,
		"ban_list":           s.banList,
		"cmd_cooldown":       s.durations,
		"pyramid_history":    s.history,
		"protected_channels": s.protected,
		"ban_cache":          s.banCache,
		"age_thresholds":     s.thresholds,
	}

	out := make(map[string]json.RawMessage, len(collections))
	for name, value := range collections {
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

// Import replaces collections from previously exported raw JSON. Unknown
// collection names are ignored so old backups stay loadable.
func (s *Store) Import(collections map[string]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	targets := map[string]interface{}{
		"cmd_access":         &s.policies,
		"ban_list":           &s.banList,
		"cmd_cooldown":       &s.durations,
		"pyramid_history":    &s.history,
		"protected_channels": &s.protected,
		"ban_cache":          &s.banCache,
		"age_thresholds":     &s.thresholds,
	}

	for name, data := range collections {
		target, ok := targets[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(data, target); err != nil {
			return fmt.Errorf("import %s: %w", name, err)
		}
	}
	return nil
}

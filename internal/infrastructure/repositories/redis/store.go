package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"chatwarden/internal/core/domain"
	"chatwarden/pkg/tracing"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Snapshots are versioned: each save bumps a per-name version counter and
// writes a new blob, keeping the most recent few for manual rollback.
const keptVersions = 5

// Store persists bot state as versioned JSON blobs in Redis. It implements
// all of the core's persistence ports.
type Store struct {
	client *redis.Client
	prefix string
	logger *zap.SugaredLogger
}

func NewStore(client *redis.Client, prefix string, logger *zap.SugaredLogger) *Store {
	if prefix == "" {
		prefix = "chatwarden"
	}
	return &Store{client: client, prefix: prefix, logger: logger}
}

func (s *Store) versionKey(name string) string {
	return fmt.Sprintf("%s:data:%s:version", s.prefix, name)
}

func (s *Store) blobKey(name string, version int64) string {
	return fmt.Sprintf("%s:data:%s:v%d", s.prefix, name, version)
}

// saveBlob writes v as the next version of the named snapshot and prunes
// versions that fell out of the retention window.
func (s *Store) saveBlob(ctx context.Context, name string, v interface{}) (err error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "save", name)
	defer func() {
		if err != nil {
			tracing.RecordError(ctx, err)
		}
		span.End()
	}()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s snapshot: %w", name, err)
	}

	version, err := s.client.Incr(ctx, s.versionKey(name)).Result()
	if err != nil {
		return fmt.Errorf("bump %s snapshot version: %w", name, err)
	}
	if err := s.client.Set(ctx, s.blobKey(name, version), data, 0).Err(); err != nil {
		return fmt.Errorf("write %s snapshot: %w", name, err)
	}
	if stale := version - keptVersions; stale > 0 {
		if err := s.client.Del(ctx, s.blobKey(name, stale)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Warnw("failed to prune stale snapshot", "name", name, "version", stale, "error", err)
		}
	}

	s.logger.Debugw("snapshot saved", "name", name, "version", version, "bytes", len(data))
	return nil
}

// loadBlob reads the latest version of the named snapshot into out. A
// missing snapshot leaves out untouched and returns no error.
func (s *Store) loadBlob(ctx context.Context, name string, out interface{}) (err error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "load", name)
	defer func() {
		if err != nil {
			tracing.RecordError(ctx, err)
		}
		span.End()
	}()

	raw, err := s.client.Get(ctx, s.versionKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		s.logger.Infow("no snapshot found, starting empty", "name", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s snapshot version: %w", name, err)
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s snapshot version: %w", name, err)
	}

	data, err := s.client.Get(ctx, s.blobKey(name, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		s.logger.Warnw("snapshot version points to missing blob", "name", name, "version", version)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s snapshot: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s snapshot: %w", name, err)
	}

	s.logger.Infow("snapshot loaded", "name", name, "version", version)
	return nil
}

func (s *Store) LoadPolicies(ctx context.Context) (map[domain.CommandID]*domain.AccessPolicy, error) {
	var policies map[domain.CommandID]*domain.AccessPolicy
	if err := s.loadBlob(ctx, "cmd_access", &policies); err != nil {
		return nil, err
	}
	return policies, nil
}

func (s *Store) SavePolicies(ctx context.Context, policies map[domain.CommandID]*domain.AccessPolicy) error {
	return s.saveBlob(ctx, "cmd_access", policies)
}

func (s *Store) LoadBanList(ctx context.Context) ([]string, error) {
	var banned []string
	if err := s.loadBlob(ctx, "ban_list", &banned); err != nil {
		return nil, err
	}
	return banned, nil
}

func (s *Store) SaveBanList(ctx context.Context, banned []string) error {
	return s.saveBlob(ctx, "ban_list", banned)
}

func (s *Store) LoadDurations(ctx context.Context) (map[domain.Channel]map[domain.CommandID]int, error) {
	var durations map[domain.Channel]map[domain.CommandID]int
	if err := s.loadBlob(ctx, "cmd_cooldown", &durations); err != nil {
		return nil, err
	}
	return durations, nil
}

func (s *Store) SaveDurations(ctx context.Context, durations map[domain.Channel]map[domain.CommandID]int) error {
	return s.saveBlob(ctx, "cmd_cooldown", durations)
}

func (s *Store) LoadHistory(ctx context.Context) (map[domain.Channel]map[string]*domain.PyramidHistory, error) {
	var history map[domain.Channel]map[string]*domain.PyramidHistory
	if err := s.loadBlob(ctx, "pyramid_history", &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) SaveHistory(ctx context.Context, history map[domain.Channel]map[string]*domain.PyramidHistory) error {
	return s.saveBlob(ctx, "pyramid_history", history)
}

func (s *Store) LoadProtectedChannels(ctx context.Context) ([]domain.Channel, error) {
	var channels []domain.Channel
	if err := s.loadBlob(ctx, "protected_channels", &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

func (s *Store) SaveProtectedChannels(ctx context.Context, channels []domain.Channel) error {
	return s.saveBlob(ctx, "protected_channels", channels)
}

func (s *Store) LoadBanCache(ctx context.Context) (map[domain.Channel][]string, error) {
	var cache map[domain.Channel][]string
	if err := s.loadBlob(ctx, "ban_cache", &cache); err != nil {
		return nil, err
	}
	return cache, nil
}

func (s *Store) SaveBanCache(ctx context.Context, cache map[domain.Channel][]string) error {
	return s.saveBlob(ctx, "ban_cache", cache)
}

func (s *Store) LoadAgeThresholds(ctx context.Context) (map[domain.Channel]domain.AccountAgeThreshold, error) {
	var thresholds map[domain.Channel]domain.AccountAgeThreshold
	if err := s.loadBlob(ctx, "age_thresholds", &thresholds); err != nil {
		return nil, err
	}
	return thresholds, nil
}

func (s *Store) SaveAgeThresholds(ctx context.Context, thresholds map[domain.Channel]domain.AccountAgeThreshold) error {
	return s.saveBlob(ctx, "age_thresholds", thresholds)
}

package modtools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chatwarden/pkg/cache"
	"chatwarden/pkg/circuitbreaker"
)

// HTTPBanListSource fetches the shared ban list from a moderation service
// endpoint serving a JSON array of account names. Responses are cached so a
// wave never hammers the endpoint, and the fetch sits behind a circuit
// breaker so a dead endpoint fails fast instead of stalling every wave.
type HTTPBanListSource struct {
	url     string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	cache   *cache.CacheWithFallback
	ttl     time.Duration
}

func NewHTTPBanListSource(url string, ttl time.Duration) *HTTPBanListSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &HTTPBanListSource{
		url:     url,
		client:  &http.Client{Timeout: 15 * time.Second},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		cache:   cache.NewCacheWithFallback(ttl),
		ttl:     ttl,
	}
}

func (s *HTTPBanListSource) FetchBanList(ctx context.Context) ([]string, error) {
	value, err := s.cache.GetOrSet(ctx, "ban_list", func(ctx context.Context) (interface{}, error) {
		return s.breaker.Do(ctx, func() (interface{}, error) {
			return s.fetch(ctx)
		})
	}, s.ttl)
	if err != nil {
		return nil, err
	}

	names, ok := value.([]string)
	if !ok {
		return nil, fmt.Errorf("unexpected ban list cache entry type %T", value)
	}
	return names, nil
}

func (s *HTTPBanListSource) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build ban list request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ban list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ban list endpoint returned %d", resp.StatusCode)
	}

	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, fmt.Errorf("decode ban list: %w", err)
	}
	return names, nil
}

// Close releases the cache's cleanup goroutine.
func (s *HTTPBanListSource) Close() {
	s.cache.Stop()
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Chat struct {
		URL      string   `yaml:"url"`
		Username string   `yaml:"username"`
		// OAuthToken is normally injected via CHATWARDEN_OAUTH_TOKEN.
		OAuthToken string   `yaml:"oauth_token"`
		Channels   []string `yaml:"channels"`
		Owners     []string `yaml:"owners"`
		Prefix     string   `yaml:"prefix"`
	} `yaml:"chat"`

	Admin struct {
		// Username/Password guard the admin API login. Login is disabled
		// while Password is empty.
		Username        string        `yaml:"username"`
		Password        string        `yaml:"password"`
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"admin"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	} `yaml:"auth"`

	Pyramid struct {
		// MessagePool holds the interrupt lines dropped into chat when a
		// pyramid completes; one is picked at random.
		MessagePool []string `yaml:"message_pool"`
	} `yaml:"pyramid"`

	BanWave struct {
		Enabled          bool          `yaml:"enabled"`
		Period           time.Duration `yaml:"period"`
		ActionsPerSecond float64       `yaml:"actions_per_second"`
		SourceURL        string        `yaml:"source_url"`
		SourceCacheTTL   time.Duration `yaml:"source_cache_ttl"`
	} `yaml:"ban_wave"`

	Persistence struct {
		// SnapshotInterval is how often in-memory state is flushed to the
		// configured store.
		SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	} `yaml:"persistence"`

	Monitoring struct {
		PrometheusEnabled bool   `yaml:"prometheus_enabled"`
		TracingEnabled    bool   `yaml:"tracing_enabled"`
		JaegerEndpoint    string `yaml:"jaeger_endpoint"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Chat
	if c.Chat.URL == "" {
		return fmt.Errorf("chat.url must not be empty")
	}
	if c.Chat.Username == "" {
		return fmt.Errorf("chat.username must not be empty")
	}
	if c.Chat.OAuthToken == "" {
		return fmt.Errorf("chat.oauth_token must not be empty")
	}
	if len(c.Chat.Channels) == 0 {
		return fmt.Errorf("chat.channels must list at least one channel")
	}
	if c.Chat.Prefix == "" {
		return fmt.Errorf("chat.prefix must not be empty")
	}

	// Admin
	if c.Admin.Address == "" {
		return fmt.Errorf("admin.address must not be empty")
	}
	if c.Admin.ReadTimeout <= 0 {
		return fmt.Errorf("admin.read_timeout must be > 0")
	}
	if c.Admin.WriteTimeout <= 0 {
		return fmt.Errorf("admin.write_timeout must be > 0")
	}
	if c.Admin.ShutdownTimeout <= 0 {
		return fmt.Errorf("admin.shutdown_timeout must be > 0")
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}

	// Pyramid
	if len(c.Pyramid.MessagePool) == 0 {
		return fmt.Errorf("pyramid.message_pool must list at least one message")
	}

	// Ban wave
	if c.BanWave.Enabled {
		if c.BanWave.Period <= 0 {
			return fmt.Errorf("ban_wave.period must be > 0 when ban_wave.enabled=true")
		}
		if c.BanWave.ActionsPerSecond <= 0 {
			return fmt.Errorf("ban_wave.actions_per_second must be > 0 when ban_wave.enabled=true")
		}
		if c.BanWave.SourceURL == "" {
			return fmt.Errorf("ban_wave.source_url must not be empty when ban_wave.enabled=true")
		}
	}

	// Persistence
	if c.Persistence.SnapshotInterval <= 0 {
		return fmt.Errorf("persistence.snapshot_interval must be > 0")
	}

	// Monitoring
	if c.Monitoring.TracingEnabled && c.Monitoring.JaegerEndpoint == "" {
		return fmt.Errorf("monitoring.jaeger_endpoint must not be empty when tracing_enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Chat.URL = "wss://irc-ws.chat.twitch.tv:443"
	cfg.Chat.Username = "chatwarden"
	cfg.Chat.Prefix = "!"

	cfg.Admin.Username = "admin"
	cfg.Admin.Address = ":8080"
	cfg.Admin.ReadTimeout = 30 * time.Second
	cfg.Admin.WriteTimeout = 30 * time.Second
	cfg.Admin.ShutdownTimeout = 30 * time.Second

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute

	cfg.Pyramid.MessagePool = []string{
		"nice try",
		"not on my watch",
		"pyramid averted",
	}

	cfg.BanWave.Enabled = false
	cfg.BanWave.Period = 30 * time.Minute
	cfg.BanWave.ActionsPerSecond = 2
	cfg.BanWave.SourceCacheTTL = 5 * time.Minute

	cfg.Persistence.SnapshotInterval = 5 * time.Minute

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.TracingEnabled = false
	cfg.Monitoring.JaegerEndpoint = "http://localhost:14268/api/traces"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if token := os.Getenv("CHATWARDEN_OAUTH_TOKEN"); token != "" {
		c.Chat.OAuthToken = token
	}
	if channels := os.Getenv("CHATWARDEN_CHANNELS"); channels != "" {
		c.Chat.Channels = splitList(channels)
	}
	if owners := os.Getenv("CHATWARDEN_OWNERS"); owners != "" {
		c.Chat.Owners = splitList(owners)
	}
	if addr := os.Getenv("CHATWARDEN_ADMIN_ADDRESS"); addr != "" {
		c.Admin.Address = addr
	}
	if level := os.Getenv("CHATWARDEN_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("CHATWARDEN_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if password := os.Getenv("CHATWARDEN_ADMIN_PASSWORD"); password != "" {
		c.Admin.Password = password
	}
	if addr := os.Getenv("CHATWARDEN_REDIS_ADDRESS"); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Address = addr
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

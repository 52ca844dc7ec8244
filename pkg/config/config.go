package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	API struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"api"`

	Signaling struct {
		URL          string        `yaml:"url"`
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`

		SendRate struct {
			MessagesPerSecond float64 `yaml:"messages_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"send_rate"`
	} `yaml:"signaling"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		PortRange struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
	} `yaml:"webrtc"`

	Media struct {
		Width     int `yaml:"width"`
		Height    int `yaml:"height"`
		FrameRate int `yaml:"frame_rate"`
	} `yaml:"media"`

	Call struct {
		JoinWindow struct {
			Early time.Duration `yaml:"early"`
			Late  time.Duration `yaml:"late"`
		} `yaml:"join_window"`
	} `yaml:"call"`

	Journal struct {
		CacheTTL time.Duration `yaml:"cache_ttl"`
		Redis    struct {
			Enabled  bool   `yaml:"enabled"`
			Address  string `yaml:"address"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size"`
		} `yaml:"redis"`
	} `yaml:"journal"`

	Status struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"status"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		SampleRate  float64 `yaml:"sample_rate"`
		Environment string  `yaml:"environment"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// API
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be > 0")
	}

	// Signaling
	if c.Signaling.URL == "" {
		return fmt.Errorf("signaling.url must not be empty")
	}
	if c.Signaling.PingInterval <= 0 {
		return fmt.Errorf("signaling.ping_interval must be > 0")
	}
	if c.Signaling.PongTimeout <= c.Signaling.PingInterval {
		return fmt.Errorf("signaling.pong_timeout must be > ping_interval")
	}
	if c.Signaling.WriteTimeout <= 0 {
		return fmt.Errorf("signaling.write_timeout must be > 0")
	}
	if c.Signaling.DialTimeout <= 0 {
		return fmt.Errorf("signaling.dial_timeout must be > 0")
	}
	if c.Signaling.SendRate.MessagesPerSecond <= 0 {
		return fmt.Errorf("signaling.send_rate.messages_per_second must be > 0")
	}
	if c.Signaling.SendRate.Burst <= 0 {
		return fmt.Errorf("signaling.send_rate.burst must be > 0")
	}

	// WebRTC
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}

	// Media
	if c.Media.Width <= 0 || c.Media.Height <= 0 {
		return fmt.Errorf("media.width and media.height must be > 0")
	}
	if c.Media.FrameRate <= 0 {
		return fmt.Errorf("media.frame_rate must be > 0")
	}

	// Call
	if c.Call.JoinWindow.Early < 0 {
		return fmt.Errorf("call.join_window.early must be >= 0")
	}
	if c.Call.JoinWindow.Late < 0 {
		return fmt.Errorf("call.join_window.late must be >= 0")
	}

	// Journal
	if c.Journal.CacheTTL <= 0 {
		return fmt.Errorf("journal.cache_ttl must be > 0")
	}
	if c.Journal.Redis.Enabled {
		if c.Journal.Redis.Address == "" {
			return fmt.Errorf("journal.redis.address must not be empty when journal.redis.enabled=true")
		}
		if c.Journal.Redis.PoolSize <= 0 {
			return fmt.Errorf("journal.redis.pool_size must be > 0 when journal.redis.enabled=true")
		}
	}

	// Status
	if c.Status.Enabled && c.Status.Address == "" {
		return fmt.Errorf("status.address must not be empty when status.enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1]")
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

	cfg.API.BaseURL = "https://localhost:8443"
	cfg.API.Timeout = 15 * time.Second

	cfg.Signaling.URL = "wss://localhost:8443"
	cfg.Signaling.PingInterval = 20 * time.Second
	cfg.Signaling.PongTimeout = 30 * time.Second
	cfg.Signaling.WriteTimeout = 10 * time.Second
	cfg.Signaling.DialTimeout = 30 * time.Second
	cfg.Signaling.SendRate.MessagesPerSecond = 50
	cfg.Signaling.SendRate.Burst = 100

	cfg.Media.Width = 1280
	cfg.Media.Height = 720
	cfg.Media.FrameRate = 30

	cfg.Call.JoinWindow.Early = 15 * time.Minute
	cfg.Call.JoinWindow.Late = 30 * time.Minute

	cfg.Journal.CacheTTL = 30 * time.Second
	cfg.Journal.Redis.Enabled = false
	cfg.Journal.Redis.Address = "localhost:6379"
	cfg.Journal.Redis.DB = 0
	cfg.Journal.Redis.PoolSize = 10

	cfg.Status.Enabled = true
	cfg.Status.Address = "127.0.0.1:9091"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0
	cfg.Tracing.Environment = "development"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if base := os.Getenv("TELECARE_API_BASE_URL"); base != "" {
		c.API.BaseURL = base
	}
	if url := os.Getenv("TELECARE_SIGNALING_URL"); url != "" {
		c.Signaling.URL = url
	}
	if level := os.Getenv("TELECARE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("TELECARE_REDIS_ADDRESS"); addr != "" {
		c.Journal.Redis.Address = addr
	}
}

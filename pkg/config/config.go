package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Storage backend names accepted by storage.backend.
const (
	StorageBackendMemory = "memory"
	StorageBackendRedis  = "redis"
	StorageBackendSQLite = "sqlite"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		URL            string        `yaml:"url"`
		APIBaseURL     string        `yaml:"api_base_url"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
	} `yaml:"signal"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		FetchICEServers bool          `yaml:"fetch_ice_servers"`
		ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	} `yaml:"webrtc"`

	Media struct {
		RTPListenAddress string `yaml:"rtp_listen_address"`
		MimeType         string `yaml:"mime_type"`
		ClockRate        uint32 `yaml:"clock_rate"`
	} `yaml:"media"`

	Logger struct {
		LogInterval   time.Duration `yaml:"log_interval"`
		FlushInterval time.Duration `yaml:"flush_interval"`
		MaxBufferSize int           `yaml:"max_buffer_size"`
	} `yaml:"logger"`

	Storage struct {
		Backend string `yaml:"backend"` // memory, redis or sqlite

		Redis struct {
			Address  string `yaml:"address"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size"`
		} `yaml:"redis"`

		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
	} `yaml:"storage"`

	Monitoring struct {
		PrometheusEnabled bool          `yaml:"prometheus_enabled"`
		PrometheusPort    int           `yaml:"prometheus_port"`
		MetricsInterval   time.Duration `yaml:"metrics_interval"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		DeviceID  string        `yaml:"device_id"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	Alerts struct {
		Enabled bool   `yaml:"enabled"`
		Speaker string `yaml:"speaker"` // log or tts
		TTSURL  string `yaml:"tts_url"`
	} `yaml:"alerts"`

	Tracing struct {
		Enabled        bool   `yaml:"enabled"`
		JaegerEndpoint string `yaml:"jaeger_endpoint"`
		ServiceName    string `yaml:"service_name"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.URL == "" {
		return fmt.Errorf("signal.url must not be empty")
	}
	if c.Signal.ConnectTimeout <= 0 {
		return fmt.Errorf("signal.connect_timeout must be > 0")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= 0 {
		return fmt.Errorf("signal.pong_timeout must be > 0")
	}
	if c.WebRTC.FetchICEServers && c.Signal.APIBaseURL == "" {
		return fmt.Errorf("signal.api_base_url must not be empty when webrtc.fetch_ice_servers=true")
	}

	// WebRTC
	if c.WebRTC.ConnectTimeout <= 0 {
		return fmt.Errorf("webrtc.connect_timeout must be > 0")
	}

	// Media
	if c.Media.RTPListenAddress == "" {
		return fmt.Errorf("media.rtp_listen_address must not be empty")
	}
	if c.Media.MimeType == "" {
		return fmt.Errorf("media.mime_type must not be empty")
	}
	if c.Media.ClockRate == 0 {
		return fmt.Errorf("media.clock_rate must be > 0")
	}

	// Logger
	if c.Logger.LogInterval <= 0 {
		return fmt.Errorf("logger.log_interval must be > 0")
	}
	if c.Logger.FlushInterval <= 0 {
		return fmt.Errorf("logger.flush_interval must be > 0")
	}
	if c.Logger.MaxBufferSize <= 0 {
		return fmt.Errorf("logger.max_buffer_size must be > 0")
	}

	// Storage
	switch c.Storage.Backend {
	case StorageBackendMemory:
	case StorageBackendRedis:
		if c.Storage.Redis.Address == "" {
			return fmt.Errorf("storage.redis.address must not be empty when storage.backend=redis")
		}
		if c.Storage.Redis.PoolSize <= 0 {
			return fmt.Errorf("storage.redis.pool_size must be > 0 when storage.backend=redis")
		}
	case StorageBackendSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path must not be empty when storage.backend=sqlite")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, redis, sqlite")
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}
	if c.Monitoring.MetricsInterval <= 0 {
		return fmt.Errorf("monitoring.metrics_interval must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.DeviceID == "" {
		return fmt.Errorf("auth.device_id must not be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}

	// Alerts
	if c.Alerts.Enabled {
		switch c.Alerts.Speaker {
		case "log":
		case "tts":
			if c.Alerts.TTSURL == "" {
				return fmt.Errorf("alerts.tts_url must not be empty when alerts.speaker=tts")
			}
		default:
			return fmt.Errorf("alerts.speaker must be one of log, tts")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerEndpoint == "" {
			return fmt.Errorf("tracing.jaeger_endpoint must not be empty when tracing.enabled=true")
		}
		if c.Tracing.ServiceName == "" {
			return fmt.Errorf("tracing.service_name must not be empty when tracing.enabled=true")
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

	// Default values
	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.URL = "ws://localhost:8000/ws"
	cfg.Signal.APIBaseURL = "http://localhost:8000"
	cfg.Signal.ConnectTimeout = 10 * time.Second
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second

	cfg.WebRTC.FetchICEServers = true
	cfg.WebRTC.ConnectTimeout = 15 * time.Second

	cfg.Media.RTPListenAddress = "127.0.0.1:5004"
	cfg.Media.MimeType = "video/VP8"
	cfg.Media.ClockRate = 90000

	cfg.Logger.LogInterval = 3 * time.Second
	cfg.Logger.FlushInterval = 6 * time.Second
	cfg.Logger.MaxBufferSize = 20

	cfg.Storage.Backend = StorageBackendMemory
	cfg.Storage.Redis.Address = "localhost:6379"
	cfg.Storage.Redis.DB = 0
	cfg.Storage.Redis.PoolSize = 10
	cfg.Storage.SQLite.Path = "manobela.db"

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090
	cfg.Monitoring.MetricsInterval = 30 * time.Second

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.DeviceID = "dev-device"
	cfg.Auth.TokenTTL = 24 * time.Hour

	cfg.Alerts.Enabled = true
	cfg.Alerts.Speaker = "log"

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerEndpoint = "http://localhost:14268/api/traces"
	cfg.Tracing.ServiceName = "manobela"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if addr := os.Getenv("MANOBELA_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if url := os.Getenv("MANOBELA_SIGNAL_URL"); url != "" {
		c.Signal.URL = url
	}
	if url := os.Getenv("MANOBELA_API_BASE_URL"); url != "" {
		c.Signal.APIBaseURL = url
	}
	if level := os.Getenv("MANOBELA_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("MANOBELA_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if device := os.Getenv("MANOBELA_DEVICE_ID"); device != "" {
		c.Auth.DeviceID = device
	}
	if backend := os.Getenv("MANOBELA_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/technosupport/roomview/internal/ratelimit"
)

const DefaultPath = "config/default.yaml"

// Config holds all configuration for the gateway
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Platform  PlatformConfig  `yaml:"platform"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	PTZ       PTZConfig       `yaml:"ptz"`
	Live      LiveConfig      `yaml:"live"`
	Redis     RedisConfig     `yaml:"redis"`
	Events    EventsConfig    `yaml:"events"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	LogLevel  string          `yaml:"log_level"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// PlatformConfig points at the building-management platform API.
type PlatformConfig struct {
	BaseURL        string        `yaml:"base_url"`
	WebsocketURL   string        `yaml:"websocket_url"`
	Token          string        `yaml:"token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PageSize       int           `yaml:"page_size"`
}

type DiscoveryConfig struct {
	Strategy         string        `yaml:"strategy"` // channels | ndi
	RecordingRole    string        `yaml:"recording_role"`
	Keyword          string        `yaml:"keyword"`
	ChannelTimeout   time.Duration `yaml:"channel_timeout"`
	NDIInputs        int           `yaml:"ndi_inputs"`
	NDIStatusTimeout time.Duration `yaml:"ndi_status_timeout"`
	ProxyDomain      string        `yaml:"proxy_domain"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	CacheSize        int           `yaml:"cache_size"`
}

type PTZConfig struct {
	RepeatInterval time.Duration `yaml:"repeat_interval"`
	MaxRadius      float64       `yaml:"max_radius"`
	Deadzone       float64       `yaml:"deadzone"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

type LiveConfig struct {
	PreviewRefresh  time.Duration `yaml:"preview_refresh"`
	LatencyInterval time.Duration `yaml:"latency_interval"`
	MaxBuffer       float64       `yaml:"max_buffer"`
	TelemetryLimit  int           `yaml:"telemetry_limit"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EventsConfig selects the audit event sink: "nats", "amqp" or "" (disabled).
type EventsConfig struct {
	Driver       string `yaml:"driver"`
	NatsURL      string `yaml:"nats_url"`
	NatsSubject  string `yaml:"nats_subject"`
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
	RetryMax     int    `yaml:"retry_max"`
}

type RateLimitConfig struct {
	Enabled  bool                  `yaml:"enabled"`
	GlobalIP ratelimit.LimitConfig `yaml:"global_ip"`
	Salt     string                `yaml:"salt"`
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Platform: PlatformConfig{
			RequestTimeout: 10 * time.Second,
			PageSize:       20,
		},
		Discovery: DiscoveryConfig{
			Strategy:         "channels",
			RecordingRole:    "Recording",
			Keyword:          "view",
			ChannelTimeout:   3 * time.Second,
			NDIInputs:        20,
			NDIStatusTimeout: time.Second,
			ProxyDomain:      "placeos-prod.avit.it.ucla.edu",
			CacheTTL:         5 * time.Minute,
			CacheSize:        512,
		},
		PTZ: PTZConfig{
			RepeatInterval: 100 * time.Millisecond,
			MaxRadius:      80,
			Deadzone:       10,
			CommandTimeout: 2 * time.Second,
		},
		Live: LiveConfig{
			PreviewRefresh:  3 * time.Second,
			LatencyInterval: time.Second,
			MaxBuffer:       2.0,
			TelemetryLimit:  40,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Events: EventsConfig{
			NatsSubject:  "roomview.events",
			AMQPExchange: "roomview",
			RetryMax:     2,
		},
		RateLimit: RateLimitConfig{
			GlobalIP: ratelimit.LimitConfig{Rate: 100, Window: time.Second},
		},
		LogLevel: "info",
	}
}

// Load reads .env (optional), the YAML file at path (optional) and env overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// defaults + env only
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvAsInt("PORT", cfg.Server.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	cfg.Platform.BaseURL = getEnv("PLATFORM_URL", cfg.Platform.BaseURL)
	cfg.Platform.WebsocketURL = getEnv("PLATFORM_WS_URL", cfg.Platform.WebsocketURL)
	cfg.Platform.Token = getEnv("PLATFORM_TOKEN", cfg.Platform.Token)

	cfg.Discovery.Strategy = getEnv("DISCOVERY_STRATEGY", cfg.Discovery.Strategy)
	cfg.Discovery.Keyword = getEnv("DISCOVERY_KEYWORD", cfg.Discovery.Keyword)
	cfg.Discovery.ProxyDomain = getEnv("PROXY_DOMAIN", cfg.Discovery.ProxyDomain)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)

	cfg.Events.Driver = getEnv("EVENTS_DRIVER", cfg.Events.Driver)
	cfg.Events.NatsURL = getEnv("NATS_URL", cfg.Events.NatsURL)
	cfg.Events.AMQPURL = getEnv("AMQP_URL", cfg.Events.AMQPURL)

	cfg.RateLimit.Salt = getEnv("RATE_LIMIT_SALT", cfg.RateLimit.Salt)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
}

// Validate rejects values the gesture and discovery logic cannot work with.
func (c *Config) Validate() error {
	if c.Discovery.NDIInputs < 0 || c.Discovery.NDIInputs > 20 {
		return fmt.Errorf("discovery.ndi_inputs must be within 0..20, got %d", c.Discovery.NDIInputs)
	}
	if c.Discovery.ChannelTimeout <= 0 {
		return errors.New("discovery.channel_timeout must be positive")
	}
	if c.PTZ.RepeatInterval <= 0 {
		return errors.New("ptz.repeat_interval must be positive")
	}
	if c.PTZ.Deadzone < 0 || c.PTZ.MaxRadius <= c.PTZ.Deadzone {
		return fmt.Errorf("ptz.max_radius (%v) must exceed ptz.deadzone (%v)", c.PTZ.MaxRadius, c.PTZ.Deadzone)
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

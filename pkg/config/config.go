package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values for optional configuration fields.
const (
	DefaultRedisURL             = "redis://localhost:6379"
	DefaultTopic                = "notification"
	DefaultBusHealthInterval    = 15 * time.Second
	DefaultProducerPort         = 3000
	DefaultGatewayPort          = 4000
	DefaultPublishMaxAttempts   = 3
	DefaultPublishRetryDelay    = 0
	DefaultPublishMaxRetryDelay = 1 * time.Second
	DefaultPublishTimeout       = 2 * time.Second
	DefaultDedupTTL             = 1 * time.Minute
	DefaultDedupSize            = 10000
	DefaultSendBuffer           = 64
	DefaultCORSOrigins          = "*"
	DefaultLogLevel             = "info"
)

// Keys double as environment variable names once upper-cased.
const (
	KeyRedisURL             = "redis_url"
	KeyTopic                = "bus_topic"
	KeyRequirePing          = "bus_require_ping"
	KeyBusHealthInterval    = "bus_health_interval"
	KeyProducerPort         = "producer_port"
	KeyGatewayPort          = "gateway_port"
	KeyPublishMaxAttempts   = "publish_max_attempts"
	KeyPublishRetryDelay    = "publish_retry_delay"
	KeyPublishMaxRetryDelay = "publish_max_retry_delay"
	KeyPublishTimeout       = "publish_attempt_timeout"
	KeyDedupTTL             = "dedup_ttl"
	KeyDedupSize            = "dedup_size"
	KeySendBuffer           = "send_buffer"
	KeyJWTSecret            = "jwt_secret"
	KeyCORSOrigins          = "cors_origins"
	KeyLogLevel             = "log_level"
	KeyLogJSON              = "log_json"
)

type Config struct {
	Bus      BusConfig
	Publish  PublishConfig
	Gateway  GatewayConfig
	Producer ProducerConfig
	CORS     string
	LogLevel string
	LogJSON  bool
}

type BusConfig struct {
	RedisURL       string
	Topic          string
	RequirePing    bool
	HealthInterval time.Duration
}

type PublishConfig struct {
	MaxAttempts    int
	RetryDelay     time.Duration
	MaxRetryDelay  time.Duration
	AttemptTimeout time.Duration
}

type GatewayConfig struct {
	Port       int
	JWTSecret  string
	SendBuffer int
	DedupTTL   time.Duration
	DedupSize  int
}

type ProducerConfig struct {
	Port int
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyRedisURL, DefaultRedisURL)
	v.SetDefault(KeyTopic, DefaultTopic)
	v.SetDefault(KeyRequirePing, false)
	v.SetDefault(KeyBusHealthInterval, DefaultBusHealthInterval)
	v.SetDefault(KeyProducerPort, DefaultProducerPort)
	v.SetDefault(KeyGatewayPort, DefaultGatewayPort)
	v.SetDefault(KeyPublishMaxAttempts, DefaultPublishMaxAttempts)
	v.SetDefault(KeyPublishRetryDelay, time.Duration(DefaultPublishRetryDelay))
	v.SetDefault(KeyPublishMaxRetryDelay, DefaultPublishMaxRetryDelay)
	v.SetDefault(KeyPublishTimeout, DefaultPublishTimeout)
	v.SetDefault(KeyDedupTTL, DefaultDedupTTL)
	v.SetDefault(KeyDedupSize, DefaultDedupSize)
	v.SetDefault(KeySendBuffer, DefaultSendBuffer)
	v.SetDefault(KeyJWTSecret, "")
	v.SetDefault(KeyCORSOrigins, DefaultCORSOrigins)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogJSON, false)
	return v
}

// Load reads the configuration out of v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Bus: BusConfig{
			RedisURL:       v.GetString(KeyRedisURL),
			Topic:          v.GetString(KeyTopic),
			RequirePing:    v.GetBool(KeyRequirePing),
			HealthInterval: v.GetDuration(KeyBusHealthInterval),
		},
		Publish: PublishConfig{
			MaxAttempts:    v.GetInt(KeyPublishMaxAttempts),
			RetryDelay:     v.GetDuration(KeyPublishRetryDelay),
			MaxRetryDelay:  v.GetDuration(KeyPublishMaxRetryDelay),
			AttemptTimeout: v.GetDuration(KeyPublishTimeout),
		},
		Gateway: GatewayConfig{
			Port:       v.GetInt(KeyGatewayPort),
			JWTSecret:  v.GetString(KeyJWTSecret),
			SendBuffer: v.GetInt(KeySendBuffer),
			DedupTTL:   v.GetDuration(KeyDedupTTL),
			DedupSize:  v.GetInt(KeyDedupSize),
		},
		Producer: ProducerConfig{
			Port: v.GetInt(KeyProducerPort),
		},
		CORS:     v.GetString(KeyCORSOrigins),
		LogLevel: v.GetString(KeyLogLevel),
		LogJSON:  v.GetBool(KeyLogJSON),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the relay cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Bus.RedisURL == "" {
		errs = append(errs, errors.New("redis url is required"))
	}
	if c.Bus.Topic == "" {
		errs = append(errs, errors.New("bus topic is required"))
	}
	if c.Bus.HealthInterval <= 0 {
		errs = append(errs, errors.New("bus health interval must be positive"))
	}
	if c.Publish.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("publish max attempts must be at least 1, got %d", c.Publish.MaxAttempts))
	}
	if c.Publish.RetryDelay < 0 || c.Publish.MaxRetryDelay < 0 {
		errs = append(errs, errors.New("publish retry delays must not be negative"))
	}
	if c.Publish.AttemptTimeout < 0 {
		errs = append(errs, errors.New("publish attempt timeout must not be negative"))
	}
	if c.Gateway.SendBuffer < 1 {
		errs = append(errs, fmt.Errorf("send buffer must be at least 1, got %d", c.Gateway.SendBuffer))
	}
	if c.Gateway.DedupTTL < 0 || c.Gateway.DedupSize < 0 {
		errs = append(errs, errors.New("dedup ttl and size must not be negative"))
	}
	if !validPort(c.Gateway.Port) || !validPort(c.Producer.Port) {
		errs = append(errs, errors.New("ports must be between 1 and 65535"))
	}
	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p < 65536
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "FANREEL"

	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "fanreel.db"
	defaultLogLevel        = "info"
	defaultTokenTTL        = 24 * time.Hour
	defaultAPIBaseURL      = "http://127.0.0.1:8080"
	defaultBindingBackend  = BindingBackendSQLite
	defaultBindingPath     = "fanreel-local.db"
	defaultRedisAddress    = "127.0.0.1:6379"
	defaultStaleAfter      = time.Duration(0)
	defaultRetryCount      = 3
	defaultRetryDelay      = 500 * time.Millisecond
	defaultMediaProbe      = ProbeMP4
	defaultFFProbePath     = "ffprobe"
	defaultRedisNamespace  = "fanreel:binding"
	defaultMaxContentBytes = int64(256 << 20)
)

// Binding backends and duration probes accepted by the client.
const (
	BindingBackendSQLite = "sqlite"
	BindingBackendRedis  = "redis"
	BindingBackendMemory = "memory"

	ProbeMP4     = "mp4"
	ProbeFFProbe = "ffprobe"
)

// ServerConfig captures runtime configuration for the API server.
type ServerConfig struct {
	HTTPAddress     string
	DatabasePath    string
	SigningSecret   string
	TokenTTL        time.Duration
	CreatorIdentity string
	PublicBaseURL   string
	MaxContentBytes int64
	LogLevel        string
}

// ClientConfig captures runtime configuration for the viewer client.
type ClientConfig struct {
	APIBaseURL     string
	APIToken       string
	BindingBackend string
	BindingPath    string
	RedisAddress   string
	RedisPassword  string
	RedisDB        int
	RedisNamespace string
	StaleAfter     time.Duration
	RetryCount     int
	RetryDelay     time.Duration
	MediaProbe     string
	FFProbePath    string
	LogLevel       string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("log.level", defaultLogLevel)

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("content.max_bytes", defaultMaxContentBytes)

	configViper.SetDefault("api.base_url", defaultAPIBaseURL)
	configViper.SetDefault("binding.backend", defaultBindingBackend)
	configViper.SetDefault("binding.path", defaultBindingPath)
	configViper.SetDefault("redis.address", defaultRedisAddress)
	configViper.SetDefault("redis.db", 0)
	configViper.SetDefault("redis.namespace", defaultRedisNamespace)
	configViper.SetDefault("query.stale_after", defaultStaleAfter)
	configViper.SetDefault("query.retry_count", defaultRetryCount)
	configViper.SetDefault("query.retry_delay", defaultRetryDelay)
	configViper.SetDefault("media.probe", defaultMediaProbe)
	configViper.SetDefault("media.ffprobe_path", defaultFFProbePath)
}

// LoadServer parses API server configuration from viper.
func LoadServer(configViper *viper.Viper) (ServerConfig, error) {
	cfg := ServerConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		TokenTTL:        configViper.GetDuration("auth.token_ttl"),
		CreatorIdentity: strings.TrimSpace(configViper.GetString("creator.identity")),
		PublicBaseURL:   strings.TrimSpace(configViper.GetString("public.base_url")),
		MaxContentBytes: configViper.GetInt64("content.max_bytes"),
		LogLevel:        configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return ServerConfig{}, err
	}

	return cfg, nil
}

func (c ServerConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.MaxContentBytes <= 0 {
		return fmt.Errorf("content.max_bytes must be positive")
	}
	return nil
}

// LoadClient parses viewer client configuration from viper.
func LoadClient(configViper *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		APIBaseURL:     strings.TrimSpace(configViper.GetString("api.base_url")),
		APIToken:       strings.TrimSpace(configViper.GetString("api.token")),
		BindingBackend: strings.ToLower(strings.TrimSpace(configViper.GetString("binding.backend"))),
		BindingPath:    configViper.GetString("binding.path"),
		RedisAddress:   configViper.GetString("redis.address"),
		RedisPassword:  configViper.GetString("redis.password"),
		RedisDB:        configViper.GetInt("redis.db"),
		RedisNamespace: configViper.GetString("redis.namespace"),
		StaleAfter:     configViper.GetDuration("query.stale_after"),
		RetryCount:     configViper.GetInt("query.retry_count"),
		RetryDelay:     configViper.GetDuration("query.retry_delay"),
		MediaProbe:     strings.ToLower(strings.TrimSpace(configViper.GetString("media.probe"))),
		FFProbePath:    configViper.GetString("media.ffprobe_path"),
		LogLevel:       configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return ClientConfig{}, err
	}

	return cfg, nil
}

func (c ClientConfig) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	switch c.BindingBackend {
	case BindingBackendSQLite:
		if strings.TrimSpace(c.BindingPath) == "" {
			return fmt.Errorf("binding.path is required for the sqlite backend")
		}
	case BindingBackendRedis:
		if strings.TrimSpace(c.RedisAddress) == "" {
			return fmt.Errorf("redis.address is required for the redis backend")
		}
	case BindingBackendMemory:
	default:
		return fmt.Errorf("binding.backend must be one of sqlite, redis, memory (got %q)", c.BindingBackend)
	}
	switch c.MediaProbe {
	case ProbeMP4:
	case ProbeFFProbe:
		if strings.TrimSpace(c.FFProbePath) == "" {
			return fmt.Errorf("media.ffprobe_path is required for the ffprobe probe")
		}
	default:
		return fmt.Errorf("media.probe must be one of mp4, ffprobe (got %q)", c.MediaProbe)
	}
	if c.StaleAfter < 0 {
		return fmt.Errorf("query.stale_after must not be negative")
	}
	return nil
}

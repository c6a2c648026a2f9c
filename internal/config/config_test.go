package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadServerAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := LoadServer(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address %s", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected database path %s", cfg.DatabasePath)
	}
	if cfg.TokenTTL != defaultTokenTTL {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL)
	}
	if cfg.MaxContentBytes != defaultMaxContentBytes {
		t.Fatalf("unexpected content limit %d", cfg.MaxContentBytes)
	}
}

func TestLoadServerRequiresSigningSecret(t *testing.T) {
	if _, err := LoadServer(NewViper()); err == nil || !strings.Contains(err.Error(), "auth.signing_secret") {
		t.Fatalf("expected signing secret error, got %v", err)
	}
}

func TestLoadServerReadsEnvironment(t *testing.T) {
	t.Setenv("FANREEL_AUTH_SIGNING_SECRET", "env-secret")
	t.Setenv("FANREEL_CREATOR_IDENTITY", " creator-1 ")
	t.Setenv("FANREEL_AUTH_TOKEN_TTL", "90m")

	cfg, err := LoadServer(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SigningSecret != "env-secret" {
		t.Fatalf("unexpected signing secret %q", cfg.SigningSecret)
	}
	if cfg.CreatorIdentity != "creator-1" {
		t.Fatalf("unexpected creator identity %q", cfg.CreatorIdentity)
	}
	if cfg.TokenTTL != 90*time.Minute {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL)
	}
}

func TestLoadClientAppliesDefaults(t *testing.T) {
	cfg, err := LoadClient(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BindingBackend != BindingBackendSQLite {
		t.Fatalf("unexpected binding backend %s", cfg.BindingBackend)
	}
	if cfg.RetryCount != defaultRetryCount {
		t.Fatalf("unexpected retry count %d", cfg.RetryCount)
	}
	if cfg.RetryDelay != defaultRetryDelay {
		t.Fatalf("unexpected retry delay %s", cfg.RetryDelay)
	}
	if cfg.MediaProbe != ProbeMP4 {
		t.Fatalf("unexpected media probe %s", cfg.MediaProbe)
	}
	if cfg.StaleAfter != 0 {
		t.Fatalf("expected data to stay fresh until invalidated, got %s", cfg.StaleAfter)
	}
}

func TestLoadClientValidation(t *testing.T) {
	testCases := []struct {
		name     string
		settings map[string]any
		message  string
	}{
		{name: "unknown backend", settings: map[string]any{"binding.backend": "etcd"}, message: "binding.backend"},
		{name: "redis without address", settings: map[string]any{"binding.backend": "redis", "redis.address": ""}, message: "redis.address"},
		{name: "sqlite without path", settings: map[string]any{"binding.path": " "}, message: "binding.path"},
		{name: "unknown probe", settings: map[string]any{"media.probe": "mediainfo"}, message: "media.probe"},
		{name: "ffprobe without path", settings: map[string]any{"media.probe": "ffprobe", "media.ffprobe_path": ""}, message: "media.ffprobe_path"},
		{name: "negative staleness", settings: map[string]any{"query.stale_after": "-1s"}, message: "query.stale_after"},
		{name: "missing api", settings: map[string]any{"api.base_url": ""}, message: "api.base_url"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.settings {
				configViper.Set(key, value)
			}
			_, err := LoadClient(configViper)
			if err == nil || !strings.Contains(err.Error(), testCase.message) {
				t.Fatalf("expected error mentioning %s, got %v", testCase.message, err)
			}
		})
	}
}

func TestLoadClientAcceptsMemoryBackend(t *testing.T) {
	configViper := NewViper()
	configViper.Set("binding.backend", "MEMORY")
	cfg, err := LoadClient(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BindingBackend != BindingBackendMemory {
		t.Fatalf("unexpected backend %s", cfg.BindingBackend)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-streamer
feed:
  host: feed.example.com
  secure: true
  token: abc123
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-streamer" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-streamer")
	}
	if cfg.Feed.Host != "feed.example.com" {
		t.Errorf("Feed.Host = %q, want %q", cfg.Feed.Host, "feed.example.com")
	}
	if !cfg.Feed.Secure {
		t.Error("Feed.Secure = false, want true")
	}
	if cfg.Feed.Token != "abc123" {
		t.Errorf("Feed.Token = %q, want %q", cfg.Feed.Token, "abc123")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_FEED_TOKEN", "secret123")

	yaml := `
instance:
  id: test-streamer
feed:
  host: feed.example.com
  token: ${TEST_FEED_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Feed.Token != "secret123" {
		t.Errorf("Feed.Token = %q, want %q", cfg.Feed.Token, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-streamer
feed:
  host: feed.example.com
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Feed.Path != DefaultFeedPath {
		t.Errorf("Feed.Path = %q, want %q", cfg.Feed.Path, DefaultFeedPath)
	}
	if cfg.Connection.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.Connection.HeartbeatInterval)
	}
	if cfg.Connection.ReconnectBaseDelay != 1*time.Second {
		t.Errorf("ReconnectBaseDelay = %v, want 1s", cfg.Connection.ReconnectBaseDelay)
	}
	if cfg.Connection.ReconnectMaxDelay != 30*time.Second {
		t.Errorf("ReconnectMaxDelay = %v, want 30s", cfg.Connection.ReconnectMaxDelay)
	}
	if cfg.Connection.BackoffFactor != 1.5 {
		t.Errorf("BackoffFactor = %v, want 1.5", cfg.Connection.BackoffFactor)
	}
	if cfg.Batch.FlushInterval != 100*time.Millisecond {
		t.Errorf("Batch.FlushInterval = %v, want 100ms", cfg.Batch.FlushInterval)
	}
	if cfg.Cache.TTL != 300*time.Second {
		t.Errorf("Cache.TTL = %v, want 300s", cfg.Cache.TTL)
	}
	if cfg.Health.Port != DefaultHealthPort {
		t.Errorf("Health.Port = %d, want %d", cfg.Health.Port, DefaultHealthPort)
	}
}

func TestValidate_MissingFeedHost(t *testing.T) {
	yaml := `
instance:
  id: test-streamer
`
	path := writeTempFile(t, yaml)

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation error for missing feed.host")
	}
}

func TestValidate_MissingInstanceID(t *testing.T) {
	yaml := `
feed:
  host: feed.example.com
`
	path := writeTempFile(t, yaml)

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation error for missing instance.id")
	}
}

func TestValidate_BackoffFactor(t *testing.T) {
	yaml := `
instance:
  id: test-streamer
feed:
  host: feed.example.com
connection:
  backoff_factor: 0.5
`
	path := writeTempFile(t, yaml)

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation error for backoff_factor <= 1")
	}
}

func TestValidate_CacheRequiresAddr(t *testing.T) {
	yaml := `
instance:
  id: test-streamer
feed:
  host: feed.example.com
cache:
  enabled: true
`
	path := writeTempFile(t, yaml)

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation error for missing cache.redis.addr")
	}
}

func TestValidate_RecorderRequiresDatabase(t *testing.T) {
	yaml := `
instance:
  id: test-streamer
feed:
  host: feed.example.com
recorder:
  enabled: true
`
	path := writeTempFile(t, yaml)

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation error for missing recorder.database")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

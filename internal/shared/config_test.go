package shared

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		t.Setenv(SecretKeyEnv, "")
		config := DefaultConfig()

		if config.Database.Path != "./immport.db" {
			t.Errorf("expected database path ./immport.db, got %s", config.Database.Path)
		}

		if config.Queue.Name != "import" {
			t.Errorf("expected queue name import, got %s", config.Queue.Name)
		}

		if config.Queue.Timeout.Duration != 24*time.Hour {
			t.Errorf("expected queue timeout 24h, got %v", config.Queue.Timeout)
		}

		if config.Queue.StaleAfter.Duration != time.Hour {
			t.Errorf("expected stale_after 1h, got %v", config.Queue.StaleAfter)
		}

		if config.Target.Timeout.Duration != time.Minute {
			t.Errorf("expected target timeout 60s, got %v", config.Target.Timeout)
		}

		if config.Pipeline.RetryAttempts != 3 {
			t.Errorf("expected 3 retry attempts, got %d", config.Pipeline.RetryAttempts)
		}

		if config.Pipeline.RetryMinDelay.Duration != 4*time.Second {
			t.Errorf("expected retry min delay 4s, got %v", config.Pipeline.RetryMinDelay)
		}

		if config.Pipeline.RetryMaxDelay.Duration != 10*time.Second {
			t.Errorf("expected retry max delay 10s, got %v", config.Pipeline.RetryMaxDelay)
		}

		if config.Pipeline.HashChunkSize != 8192 {
			t.Errorf("expected hash chunk size 8192, got %d", config.Pipeline.HashChunkSize)
		}

		if !config.Pipeline.Defaults.SkipDuplicates {
			t.Error("expected skip_duplicates default to be true")
		}

		if config.Archive.Enabled() {
			t.Error("expected archive to be disabled by default")
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		t.Setenv(SecretKeyEnv, "")
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[redis]
addr = "redis:6379"

[pipeline]
retry_min_delay = "1s"
download_rate = 2.5

[pipeline.defaults]
download_concurrency = 4
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Redis.Addr != "redis:6379" {
			t.Errorf("expected redis addr redis:6379, got %s", config.Redis.Addr)
		}

		if config.Pipeline.RetryMinDelay.Duration != time.Second {
			t.Errorf("expected retry min delay 1s, got %v", config.Pipeline.RetryMinDelay)
		}

		if config.Pipeline.RetryMaxDelay.Duration != 10*time.Second {
			t.Errorf("expected untouched retry max delay to keep default, got %v", config.Pipeline.RetryMaxDelay)
		}

		if config.Pipeline.Defaults.DownloadConcurrency != 4 {
			t.Errorf("expected download concurrency 4, got %d", config.Pipeline.Defaults.DownloadConcurrency)
		}
	})

	t.Run("LoadConfig invalid duration", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[pipeline]\nretry_min_delay = \"soon\"\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected parse error for invalid duration")
		}
	})

	t.Run("SecretKey", func(t *testing.T) {
		t.Setenv(SecretKeyEnv, "")

		t.Run("missing", func(t *testing.T) {
			config := DefaultConfig()
			if _, err := config.SecretKey(); !errors.Is(err, ErrMissingCipherKey) {
				t.Errorf("expected ErrMissingCipherKey, got %v", err)
			}
		})

		t.Run("wrong length", func(t *testing.T) {
			config := DefaultConfig()
			config.Security.SecretKey = base64.StdEncoding.EncodeToString([]byte("short"))
			if _, err := config.SecretKey(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("from environment", func(t *testing.T) {
			raw := make([]byte, 32)
			for i := range raw {
				raw[i] = byte(i)
			}
			t.Setenv(SecretKeyEnv, base64.StdEncoding.EncodeToString(raw))

			config := DefaultConfig()
			key, err := config.SecretKey()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if key[31] != 31 {
				t.Errorf("expected decoded key, got %v", key)
			}
		})
	})
}

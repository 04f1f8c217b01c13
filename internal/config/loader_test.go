package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Parallel()

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		t.Parallel()

		cfg, err := parse(envMap(nil))
		if err != nil {
			t.Fatalf("parse returned error: %v", err)
		}
		if cfg.SQLiteDSN != "telescope.db" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.SessionTTL != 24*time.Hour || cfg.ActivationTTL != 24*time.Hour {
			t.Fatalf("unexpected default TTLs: %v %v", cfg.SessionTTL, cfg.ActivationTTL)
		}
		if cfg.CompletionSchedule != "@every 1m" || cfg.TokenSchedule != "@every 1h" {
			t.Fatalf("unexpected default schedules: %+v", cfg)
		}
		if cfg.TopicPrefix != "telescope." || cfg.RedisAddr != "" {
			t.Fatalf("unexpected notification defaults: %+v", cfg)
		}
		if len(cfg.CategoryCaps) != 0 {
			t.Fatalf("expected no cap overrides, got %v", cfg.CategoryCaps)
		}
	})

	t.Run("reads overrides", func(t *testing.T) {
		t.Parallel()

		cfg, err := parse(envMap(map[string]string{
			"TELESCOPE_SQLITE_DSN":            "/var/lib/telescope.db",
			"TELESCOPE_SESSION_TTL":           "2h",
			"TELESCOPE_NOTIFICATION_SCHEDULE": "@every 30s",
			"TELESCOPE_REDIS_ADDR":            "localhost:6379",
			"TELESCOPE_REDIS_DB":              "2",
			"TELESCOPE_CAP_STUDENT":           "10h",
			"TELESCOPE_CAP_OTHER":             "Unlimited",
		}))
		if err != nil {
			t.Fatalf("parse returned error: %v", err)
		}
		if cfg.SQLiteDSN != "/var/lib/telescope.db" || cfg.SessionTTL != 2*time.Hour {
			t.Fatalf("unexpected storage settings: %+v", cfg)
		}
		if cfg.NotificationSchedule != "@every 30s" || cfg.RedisAddr != "localhost:6379" || cfg.RedisDB != 2 {
			t.Fatalf("unexpected notification settings: %+v", cfg)
		}
		if got := cfg.CategoryCaps["STUDENT"]; got.Unlimited || got.Limit != 10*time.Hour {
			t.Fatalf("unexpected STUDENT cap: %+v", got)
		}
		if got := cfg.CategoryCaps["OTHER"]; !got.Unlimited {
			t.Fatalf("expected unlimited OTHER cap, got %+v", got)
		}
	})

	t.Run("reports every invalid value", func(t *testing.T) {
		t.Parallel()

		_, err := parse(envMap(map[string]string{
			"TELESCOPE_SESSION_TTL":    "-1h",
			"TELESCOPE_REDIS_DB":       "first",
			"TELESCOPE_CAP_RESEARCHER": "lots",
		}))
		if err == nil {
			t.Fatal("expected error for invalid values")
		}
		for _, name := range []string{"TELESCOPE_SESSION_TTL", "TELESCOPE_REDIS_DB", "TELESCOPE_CAP_RESEARCHER"} {
			if !strings.Contains(err.Error(), name) {
				t.Fatalf("expected %s in error %q", name, err.Error())
			}
		}
	})
}

func TestLoadFilesReadsDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("TELESCOPE_TOPIC_PREFIX=observatory.\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("TELESCOPE_TOPIC_PREFIX", "")
	if err := os.Unsetenv("TELESCOPE_TOPIC_PREFIX"); err != nil {
		t.Fatalf("failed to unset: %v", err)
	}

	cfg, err := LoadFiles(filepath.Join(t.TempDir(), "missing.env"), path)
	if err != nil {
		t.Fatalf("LoadFiles returned error: %v", err)
	}
	if cfg.TopicPrefix != "observatory." {
		t.Fatalf("expected prefix from dotenv file, got %q", cfg.TopicPrefix)
	}
}

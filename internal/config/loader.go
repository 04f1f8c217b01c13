package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "TELESCOPE_"

// Categories whose allotted time cap defaults may be overridden with
// TELESCOPE_CAP_<CATEGORY>.
var Categories = []string{"GUEST", "MEMBER", "STUDENT", "RESEARCHER", "ALUMNI", "OTHER"}

// CapOverride is a configured category cap. Unlimited wins over Limit.
type CapOverride struct {
	Limit     time.Duration
	Unlimited bool
}

// Config captures environment driven configuration values for the telescope scheduler.
type Config struct {
	SQLiteDSN     string
	SessionTTL    time.Duration
	ActivationTTL time.Duration

	CompletionSchedule   string
	NotificationSchedule string
	TokenSchedule        string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TopicPrefix   string

	CategoryCaps map[string]CapOverride
}

// Load reads an optional .env file from the working directory and then
// parses the process environment.
func Load() (Config, error) {
	return LoadFiles(".env")
}

// LoadFiles loads the given dotenv files, skipping missing ones, and parses
// the process environment. Variables already set in the environment win over
// file values.
func LoadFiles(files ...string) (Config, error) {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	return parse(os.Getenv)
}

func parse(getenv func(string) string) (Config, error) {
	cfg := Config{
		SQLiteDSN:            "telescope.db",
		SessionTTL:           24 * time.Hour,
		ActivationTTL:        24 * time.Hour,
		CompletionSchedule:   "@every 1m",
		NotificationSchedule: "@every 1m",
		TokenSchedule:        "@every 1h",
		TopicPrefix:          "telescope.",
		CategoryCaps:         make(map[string]CapOverride),
	}

	var invalid []string
	lookup := func(name string) string {
		return strings.TrimSpace(getenv(envPrefix + name))
	}

	if dsn := lookup("SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	durations := []struct {
		name   string
		target *time.Duration
	}{
		{"SESSION_TTL", &cfg.SessionTTL},
		{"ACTIVATION_TTL", &cfg.ActivationTTL},
	}
	for _, d := range durations {
		value := lookup(d.name)
		if value == "" {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			invalid = append(invalid, envPrefix+d.name)
			continue
		}
		*d.target = parsed
	}

	schedules := []struct {
		name   string
		target *string
	}{
		{"COMPLETION_SCHEDULE", &cfg.CompletionSchedule},
		{"NOTIFICATION_SCHEDULE", &cfg.NotificationSchedule},
		{"TOKEN_SCHEDULE", &cfg.TokenSchedule},
	}
	for _, s := range schedules {
		if value := lookup(s.name); value != "" {
			*s.target = value
		}
	}

	cfg.RedisAddr = lookup("REDIS_ADDR")
	cfg.RedisPassword = getenv(envPrefix + "REDIS_PASSWORD")
	if value := lookup("REDIS_DB"); value != "" {
		db, err := strconv.Atoi(value)
		if err != nil || db < 0 {
			invalid = append(invalid, envPrefix+"REDIS_DB")
		} else {
			cfg.RedisDB = db
		}
	}

	if prefix := lookup("TOPIC_PREFIX"); prefix != "" {
		cfg.TopicPrefix = prefix
	}

	for _, category := range Categories {
		name := "CAP_" + category
		value := lookup(name)
		if value == "" {
			continue
		}
		if strings.EqualFold(value, "unlimited") {
			cfg.CategoryCaps[category] = CapOverride{Unlimited: true}
			continue
		}
		limit, err := time.ParseDuration(value)
		if err != nil || limit < 0 {
			invalid = append(invalid, envPrefix+name)
			continue
		}
		cfg.CategoryCaps[category] = CapOverride{Limit: limit}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

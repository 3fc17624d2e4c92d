package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds attendance daemon configuration. Durations are stored as
// whole seconds so the TOML surface stays plain numbers.
type Config struct {
	TimetablePath string `toml:"timetable"`
	RosterPath    string `toml:"roster"`
	FeedPath      string `toml:"recognizer_feed"`
	AttendanceDir string `toml:"attendance_dir"`
	LogDir        string `toml:"log_dir"`

	MinPresentSeconds    int     `toml:"min_present_seconds"`
	MaxDistance          float64 `toml:"max_distance"`
	PullTimeoutSeconds   int     `toml:"pull_timeout_seconds"`
	BoundaryGraceSeconds int     `toml:"boundary_grace_seconds"`
	FeedPollMillis       int     `toml:"feed_poll_ms"`
}

// Default returns the default configuration rooted under the user's data
// directory.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "attendd")
	return &Config{
		TimetablePath: filepath.Join(dataDir, "timetable.csv"),
		RosterPath:    filepath.Join(dataDir, "roster.yaml"),
		FeedPath:      filepath.Join(dataDir, "recognizer.jsonl"),
		AttendanceDir: filepath.Join(dataDir, "attendance"),
		LogDir:        filepath.Join(dataDir, "log"),

		MinPresentSeconds:    10,
		MaxDistance:          70,
		PullTimeoutSeconds:   2,
		BoundaryGraceSeconds: 2,
		FeedPollMillis:       100,
	}
}

// Load returns configuration from defaults, an optional TOML file, and
// ATTEND_* environment overrides, in that precedence order. An empty path
// skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	overrideString(&cfg.TimetablePath, "ATTEND_TIMETABLE")
	overrideString(&cfg.RosterPath, "ATTEND_ROSTER")
	overrideString(&cfg.FeedPath, "ATTEND_RECOGNIZER_FEED")
	overrideString(&cfg.AttendanceDir, "ATTEND_ATTENDANCE_DIR")
	overrideString(&cfg.LogDir, "ATTEND_LOG_DIR")
	overrideInt(&cfg.MinPresentSeconds, "ATTEND_MIN_PRESENT_SECONDS")
	overrideFloat(&cfg.MaxDistance, "ATTEND_MAX_DISTANCE")
	overrideInt(&cfg.PullTimeoutSeconds, "ATTEND_PULL_TIMEOUT_SECONDS")
	overrideInt(&cfg.BoundaryGraceSeconds, "ATTEND_BOUNDARY_GRACE_SECONDS")
	overrideInt(&cfg.FeedPollMillis, "ATTEND_FEED_POLL_MS")

	return cfg, nil
}

// MinPresent is the dwell gate as a duration.
func (c *Config) MinPresent() time.Duration {
	return time.Duration(c.MinPresentSeconds) * time.Second
}

// PullTimeout bounds a single recognizer pull.
func (c *Config) PullTimeout() time.Duration {
	return time.Duration(c.PullTimeoutSeconds) * time.Second
}

// BoundaryGrace is the epsilon added after a phase boundary before the
// scheduler re-checks.
func (c *Config) BoundaryGrace() time.Duration {
	return time.Duration(c.BoundaryGraceSeconds) * time.Second
}

// FeedPoll is the recognizer feed tail polling interval.
func (c *Config) FeedPoll() time.Duration {
	return time.Duration(c.FeedPollMillis) * time.Millisecond
}

func overrideString(dest *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val
	}
}

func overrideInt(dest *int, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			*dest = parsed
		}
	}
}

func overrideFloat(dest *float64, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			*dest = parsed
		}
	}
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	MetadataDir string `toml:"metadata_dir"`
	LogDir      string `toml:"log_dir"`
	StateDir    string `toml:"state_dir"`
	AssetDir    string `toml:"asset_dir"`
}

// Archive contains configuration for the remote archive endpoints.
type Archive struct {
	ScrapeURL         string   `toml:"scrape_url"`
	PagedURL          string   `toml:"paged_url"`
	PagedToken        string   `toml:"paged_token"`
	Collections       []string `toml:"collections"`
	YearlyCollections []string `toml:"yearly_collections"`
	PagedCollections  []string `toml:"paged_collections"`
	DateRange         []int    `toml:"date_range"`
}

// Playback contains configuration for format selection and scoring.
type Playback struct {
	PlayLossless     bool     `toml:"play_lossless"`
	FavoredTapers    []string `toml:"favored_tapers"`
	DefaultStartTime string   `toml:"default_start_time"`
}

// Refresh contains configuration for the background catalog refresher.
type Refresh struct {
	AutoUpdate         bool `toml:"auto_update"`
	IntervalSeconds    int  `toml:"interval_seconds"`
	MinGapSeconds      int  `toml:"min_gap_seconds"`
	LockTimeoutSeconds int  `toml:"lock_timeout_seconds"`
	StopOnError        bool `toml:"stop_on_error"`
}

// Breaks contains configuration for the set-break table.
type Breaks struct {
	TablePath           string  `toml:"table_path"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the tapedeck core.
//
// Configuration sections by subsystem:
//   - Paths: metadata root, log and state directories
//   - Archive: remote endpoints, collection list, and the year window
//   - Playback: lossless preference, favored tapers, default start time
//   - Refresh: background updater cadence and locking
//   - Breaks: set-break table location and matching threshold
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Archive       Archive       `toml:"archive"`
	Playback      Playback      `toml:"playback"`
	Refresh       Refresh       `toml:"refresh"`
	Breaks        Breaks        `toml:"breaks"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tapedeck/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return is
// the resolved path; the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(defaultPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaultPath, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return defaultPath, true, nil
}

// EnsureDirectories creates the directories the core needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.MetadataDir, c.Paths.LogDir, c.Paths.StateDir, c.Paths.AssetDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ShardDir returns the shard directory for a collection.
func (c *Config) ShardDir(collection string) string {
	return filepath.Join(c.Paths.MetadataDir, collection+"_ids")
}

// PagedCollection reports whether the collection is served by the paged
// endpoint instead of the scrape endpoint.
func (c *Config) PagedCollection(collection string) bool {
	for _, name := range c.Archive.PagedCollections {
		if name == collection {
			return true
		}
	}
	return false
}

// YearlyCollection reports whether the collection uses year-bucketed shards.
func (c *Config) YearlyCollection(collection string) bool {
	for _, name := range c.Archive.YearlyCollections {
		if name == collection {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	trimmed := strings.TrimSpace(pathValue)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", pathValue, err)
	}
	return abs, nil
}

// ExpandPath expands a leading ~ and returns an absolute path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to path,
// replacing any existing file.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if expanded == "" {
		return errors.New("config path required")
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeArchive(); err != nil {
		return err
	}
	c.normalizePlayback()
	c.normalizeRefresh()
	c.normalizeBreaks()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.MetadataDir, err = expandPath(c.Paths.MetadataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return err
	}
	if c.Paths.AssetDir, err = expandPath(c.Paths.AssetDir); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizeArchive() error {
	c.Archive.ScrapeURL = strings.TrimRight(strings.TrimSpace(c.Archive.ScrapeURL), "/")
	c.Archive.PagedURL = strings.TrimRight(strings.TrimSpace(c.Archive.PagedURL), "/")

	// Env var wins over the config file for the API token.
	if env := strings.TrimSpace(os.Getenv("TAPEDECK_PAGED_TOKEN")); env != "" {
		c.Archive.PagedToken = env
	}

	trimmed := make([]string, 0, len(c.Archive.Collections))
	for _, name := range c.Archive.Collections {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		trimmed = append(trimmed, name)
	}
	c.Archive.Collections = trimmed

	switch len(c.Archive.DateRange) {
	case 0, 2:
	case 1:
		c.Archive.DateRange = []int{c.Archive.DateRange[0], c.Archive.DateRange[0]}
	default:
		return fmt.Errorf("archive date_range: expected at most two years, got %d", len(c.Archive.DateRange))
	}
	if len(c.Archive.DateRange) == 2 && c.Archive.DateRange[0] > c.Archive.DateRange[1] {
		c.Archive.DateRange = []int{c.Archive.DateRange[1], c.Archive.DateRange[0]}
	}
	return nil
}

func (c *Config) normalizePlayback() {
	tapers := make([]string, 0, len(c.Playback.FavoredTapers))
	for _, taper := range c.Playback.FavoredTapers {
		taper = strings.ToLower(strings.TrimSpace(taper))
		if taper == "" {
			continue
		}
		tapers = append(tapers, taper)
	}
	c.Playback.FavoredTapers = tapers
	c.Playback.DefaultStartTime = strings.TrimSpace(c.Playback.DefaultStartTime)
	if c.Playback.DefaultStartTime == "" {
		c.Playback.DefaultStartTime = defaultStartTime
	}
}

func (c *Config) normalizeRefresh() {
	if c.Refresh.IntervalSeconds <= 0 {
		c.Refresh.IntervalSeconds = defaultRefreshInterval
	}
	if c.Refresh.MinGapSeconds <= 0 {
		c.Refresh.MinGapSeconds = defaultRefreshMinGap
	}
	if c.Refresh.LockTimeoutSeconds <= 0 {
		c.Refresh.LockTimeoutSeconds = defaultRefreshLockTimeout
	}
}

func (c *Config) normalizeBreaks() {
	if c.Breaks.SimilarityThreshold <= 0 || c.Breaks.SimilarityThreshold > 1 {
		c.Breaks.SimilarityThreshold = defaultSimilarityThreshold
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

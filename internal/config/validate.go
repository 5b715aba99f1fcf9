package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks the configuration for values the core cannot run with.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validatePlayback(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.MetadataDir == "" {
		return errors.New("paths metadata_dir is required")
	}
	return nil
}

func (c *Config) validateArchive() error {
	if c.Archive.ScrapeURL == "" {
		return errors.New("archive scrape_url is required")
	}
	if len(c.Archive.Collections) == 0 {
		return errors.New("archive collections: at least one collection is required")
	}
	for _, year := range c.Archive.DateRange {
		if year < 1850 || year > time.Now().Year()+1 {
			return fmt.Errorf("archive date_range: year %d out of range", year)
		}
	}
	return nil
}

func (c *Config) validatePlayback() error {
	if _, err := time.Parse("15:04", c.Playback.DefaultStartTime); err != nil {
		return fmt.Errorf("playback default_start_time: expected HH:MM, got %q", c.Playback.DefaultStartTime)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

// StartTime parses the configured default start time of day.
func (c *Config) StartTime() (hour, minute int) {
	parsed, err := time.Parse("15:04", c.Playback.DefaultStartTime)
	if err != nil {
		return 19, 0
	}
	return parsed.Hour(), parsed.Minute()
}

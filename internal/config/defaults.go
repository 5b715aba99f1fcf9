package config

const (
	defaultMetadataDir         = "~/.local/share/tapedeck/metadata"
	defaultLogDir              = "~/.local/share/tapedeck/logs"
	defaultStateDir            = "~/.local/share/tapedeck/state"
	defaultAssetDir            = "~/.local/share/tapedeck/assets"
	defaultScrapeURL           = "https://archive.org"
	defaultPagedURL            = "https://phish.in"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultStartTime           = "19:00"
	defaultRefreshInterval     = 3600
	defaultRefreshMinGap       = 5 * 3600
	defaultRefreshLockTimeout  = 10
	defaultSimilarityThreshold = 0.6
	defaultNotifyTimeout       = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			MetadataDir: defaultMetadataDir,
			LogDir:      defaultLogDir,
			StateDir:    defaultStateDir,
			AssetDir:    defaultAssetDir,
		},
		Archive: Archive{
			ScrapeURL:         defaultScrapeURL,
			PagedURL:          defaultPagedURL,
			Collections:       []string{"GratefulDead"},
			YearlyCollections: []string{"etree", "georgeblood"},
			PagedCollections:  []string{"Phish"},
		},
		Playback: Playback{
			PlayLossless:     false,
			DefaultStartTime: defaultStartTime,
		},
		Refresh: Refresh{
			AutoUpdate:         true,
			IntervalSeconds:    defaultRefreshInterval,
			MinGapSeconds:      defaultRefreshMinGap,
			LockTimeoutSeconds: defaultRefreshLockTimeout,
		},
		Breaks: Breaks{
			SimilarityThreshold: defaultSimilarityThreshold,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

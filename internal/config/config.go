package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the main application configuration
type Config struct {
	Spaces      SpacesConfig      `mapstructure:"spaces"`
	AudioDB     AudioDBConfig     `mapstructure:"audiodb"`
	LastFM      LastFMConfig      `mapstructure:"lastfm"`
	MusicBrainz MusicBrainzConfig `mapstructure:"musicbrainz"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Log         LogConfig         `mapstructure:"log"`
}

// SpacesConfig holds the object store credentials and location
type SpacesConfig struct {
	Key      string `mapstructure:"key"`
	Secret   string `mapstructure:"secret"`
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Prefix   string `mapstructure:"prefix"`
	Endpoint string `mapstructure:"endpoint"`
}

// AudioDBConfig holds TheAudioDB service settings. The primary service has
// no enabled switch: resolution without it falls apart.
type AudioDBConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// LastFMConfig holds Last.fm service settings
type LastFMConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Enabled bool   `mapstructure:"enabled"`
}

// MusicBrainzConfig holds MusicBrainz service settings
type MusicBrainzConfig struct {
	AppName    string `mapstructure:"app_name"`
	AppVersion string `mapstructure:"app_version"`
	Contact    string `mapstructure:"contact"`
	Enabled    bool   `mapstructure:"enabled"`
}

// PipelineConfig holds processing settings
type PipelineConfig struct {
	Workers      int    `mapstructure:"workers"`
	ConvertedDir string `mapstructure:"converted_dir"`
}

// DatabaseConfig holds the local state database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Regions with a Spaces endpoint at the time of writing
var knownRegions = []string{"nyc3", "ams3", "sfo2", "sfo3", "sgp1", "fra1", "syd1"}

// ConfigLoader loads configuration from file and environment
type ConfigLoader struct {
	viper *viper.Viper
}

// NewConfigLoader creates a loader with defaults and environment binding applied
func NewConfigLoader() *ConfigLoader {
	v := viper.New()

	v.SetConfigName("shellac")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("spaces.key", "")
	v.SetDefault("spaces.secret", "")
	v.SetDefault("spaces.bucket", "")
	v.SetDefault("spaces.region", "nyc3")
	v.SetDefault("spaces.prefix", "music")
	v.SetDefault("spaces.endpoint", "")

	v.SetDefault("audiodb.api_key", "123") // free tier key

	v.SetDefault("lastfm.api_key", "")
	v.SetDefault("lastfm.enabled", true)

	v.SetDefault("musicbrainz.app_name", "shellac")
	v.SetDefault("musicbrainz.app_version", "1.0")
	v.SetDefault("musicbrainz.contact", "")
	v.SetDefault("musicbrainz.enabled", true)

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.converted_dir", "converted")

	v.SetDefault("database.path", "shellac.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetEnvPrefix("SHELLAC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &ConfigLoader{viper: v}
}

// Load reads the configuration file if present and unmarshals the result
func (l *ConfigLoader) Load() (*Config, error) {
	if err := l.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, using defaults
	}

	var config Config
	if err := l.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// LoadConfig loads application configuration from various sources
func LoadConfig() (*Config, error) {
	return NewConfigLoader().Load()
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	if config.Spaces.Key == "" {
		return fmt.Errorf("spaces.key cannot be empty")
	}

	if config.Spaces.Secret == "" {
		return fmt.Errorf("spaces.secret cannot be empty")
	}

	if config.Spaces.Bucket == "" {
		return fmt.Errorf("spaces.bucket cannot be empty")
	}

	if config.Pipeline.Workers < 1 || config.Pipeline.Workers > 32 {
		return fmt.Errorf("pipeline.workers must be between 1 and 32")
	}

	if config.Database.Path == "" {
		return fmt.Errorf("database.path cannot be empty")
	}

	return nil
}

// KnownRegion reports whether the configured region has a known Spaces endpoint
func (c *Config) KnownRegion() bool {
	for _, r := range knownRegions {
		if c.Spaces.Region == r {
			return true
		}
	}
	return false
}

// LastFMActive reports whether the fallback service can be queried
func (c *Config) LastFMActive() bool {
	return c.LastFM.Enabled && c.LastFM.APIKey != ""
}

// MusicBrainzUserAgent builds the identifying User-Agent the service requires
func (c *Config) MusicBrainzUserAgent() string {
	ua := fmt.Sprintf("%s/%s", c.MusicBrainz.AppName, c.MusicBrainz.AppVersion)
	if c.MusicBrainz.Contact != "" {
		ua = fmt.Sprintf("%s ( %s )", ua, c.MusicBrainz.Contact)
	}
	return ua
}

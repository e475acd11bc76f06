package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.satchel/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	// APIBaseURL is the origin of the application API the daemon fronts.
	APIBaseURL string `toml:"api_base_url"`

	// HealthPath is probed to detect connectivity transitions.
	HealthPath string `toml:"health_path"`

	// CacheVersion names the active cache generation. Bumping it causes a
	// fresh precache on the next start and rotates old partitions away.
	CacheVersion string `toml:"cache_version"`

	// ShellAssets is the fixed asset list precached at install time.
	// Install fails entirely if any of these cannot be fetched.
	ShellAssets []string `toml:"shell_assets"`

	// OfflinePage is the navigation fallback served when a page request
	// fails with no cached copy. Must be listed in ShellAssets.
	OfflinePage string `toml:"offline_page"`

	// DynamicPrefixes classify request paths as dynamic API resources.
	DynamicPrefixes []string `toml:"dynamic_prefixes"`

	// ProbeInterval is how often connectivity is checked.
	ProbeInterval duration `toml:"probe_interval"`

	// DrainInterval is how often the pending-operation queue is drained
	// while online, independent of connectivity transitions.
	DrainInterval duration `toml:"drain_interval"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a config with working defaults for every field the
// daemon requires. Load overlays the file on top of these.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		APIBaseURL:     "http://localhost:5000",
		HealthPath:     "/api/health",
		CacheVersion:   "v1",
		ShellAssets: []string{
			"/",
			"/offline",
			"/static/css/style.css",
			"/static/js/app.js",
			"/static/icons/icon-192x192.png",
		},
		OfflinePage:     "/offline",
		DynamicPrefixes: []string{"/api/"},
		ProbeInterval:   duration{15 * time.Second},
		DrainInterval:   duration{30 * time.Second},
	}
}

// Load reads config from the given path, overlaid on Default values.
// Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault reads config from path, falling back to Default when the
// file does not exist. Malformed files still fail.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ProbeEvery returns the configured probe interval.
func (c *Config) ProbeEvery() time.Duration { return c.ProbeInterval.Duration }

// DrainEvery returns the configured drain interval.
func (c *Config) DrainEvery() time.Duration { return c.DrainInterval.Duration }

// Package config handles configuration loading and management for eof.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for eof.
type Config struct {
	SaveDir    string        `mapstructure:"save_dir"`
	SearchPath string        `mapstructure:"search_path"`
	Source     string        `mapstructure:"source"`
	OrbitType  string        `mapstructure:"orbit_type"`
	Workers    int           `mapstructure:"workers"`
	HTTP       HTTPConfig    `mapstructure:"http"`
	ESA        ArchiveConfig `mapstructure:"esa"`
	ASF        ArchiveConfig `mapstructure:"asf"`
	Scihub     ScihubConfig  `mapstructure:"scihub"`
	Catalog    CatalogConfig `mapstructure:"catalog"`
	Watch      WatchConfig   `mapstructure:"watch"`
}

// HTTPConfig holds settings shared by every remote source.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	Retries   int           `mapstructure:"retries"`
	UserAgent string        `mapstructure:"user_agent"`
}

// ArchiveConfig holds the location of a listing-based archive.
type ArchiveConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// ScihubConfig holds GNSS hub settings.
type ScihubConfig struct {
	APIURL   string `mapstructure:"api_url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// CatalogConfig controls the download history database.
type CatalogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// WatchConfig holds settings for `eof watch`.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (EOF_*, SCIHUB_USER, SCIHUB_PASSWORD)
// 2. Project config (.eof.yaml in current directory or parent)
// 3. User config (~/.config/eof/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v, err := readUserConfig()
	if err != nil {
		return nil, err
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	return expandAll(cfg), nil
}

// LoadUser loads only the user config file over the built-in defaults.
// Project overrides and environment variables are ignored and ${VAR}
// references are left unexpanded, so the result is safe to pass to Save.
func LoadUser() (*Config, error) {
	v, err := readUserConfig()
	if err != nil {
		return nil, err
	}
	return unmarshal(v)
}

func readUserConfig() (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}
	return v, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	return expandAll(cfg), nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

func expandAll(cfg *Config) *Config {
	cfg.Scihub.User = expandEnv(cfg.Scihub.User)
	cfg.Scihub.Password = expandEnv(cfg.Scihub.Password)
	cfg.SaveDir = expandEnv(cfg.SaveDir)
	cfg.SearchPath = expandEnv(cfg.SearchPath)
	return cfg
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("EOF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The GNSS hub credentials keep their historical names.
	v.BindEnv("scihub.user", "EOF_SCIHUB_USER", "SCIHUB_USER")
	v.BindEnv("scihub.password", "EOF_SCIHUB_PASSWORD", "SCIHUB_PASSWORD")
}

// Save writes cfg to the user config file. Pass a config from LoadUser;
// one from Load carries project and environment values.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("save_dir", cfg.SaveDir)
	v.Set("search_path", cfg.SearchPath)
	v.Set("source", cfg.Source)
	v.Set("orbit_type", cfg.OrbitType)
	v.Set("workers", cfg.Workers)
	v.Set("http.timeout", cfg.HTTP.Timeout.String())
	v.Set("http.retries", cfg.HTTP.Retries)
	v.Set("http.user_agent", cfg.HTTP.UserAgent)
	v.Set("esa.base_url", cfg.ESA.BaseURL)
	v.Set("asf.base_url", cfg.ASF.BaseURL)
	v.Set("scihub.api_url", cfg.Scihub.APIURL)
	v.Set("scihub.user", cfg.Scihub.User)
	v.Set("scihub.password", cfg.Scihub.Password)
	v.Set("catalog.enabled", cfg.Catalog.Enabled)
	v.Set("catalog.path", cfg.Catalog.Path)
	v.Set("watch.debounce", cfg.Watch.Debounce.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("save_dir", d.SaveDir)
	v.SetDefault("search_path", d.SearchPath)
	v.SetDefault("source", d.Source)
	v.SetDefault("orbit_type", d.OrbitType)
	v.SetDefault("workers", d.Workers)

	v.SetDefault("http.timeout", d.HTTP.Timeout.String())
	v.SetDefault("http.retries", d.HTTP.Retries)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)

	v.SetDefault("esa.base_url", d.ESA.BaseURL)
	v.SetDefault("asf.base_url", d.ASF.BaseURL)
	v.SetDefault("scihub.api_url", d.Scihub.APIURL)
	v.SetDefault("scihub.user", d.Scihub.User)
	v.SetDefault("scihub.password", d.Scihub.Password)

	v.SetDefault("catalog.enabled", d.Catalog.Enabled)
	v.SetDefault("catalog.path", d.Catalog.Path)

	v.SetDefault("watch.debounce", d.Watch.Debounce.String())
}

// getUserConfigDir returns the XDG config directory for eof.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "eof")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "eof")
	}
	return filepath.Join(home, ".config", "eof")
}

// findProjectConfig searches for .eof.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".eof.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		SaveDir:    ".",
		SearchPath: ".",
		Source:     "esa",
		OrbitType:  "precise",
		Workers:    20,
		HTTP: HTTPConfig{
			Timeout:   60 * time.Second,
			Retries:   3,
			UserAgent: "",
		},
		ESA:    ArchiveConfig{BaseURL: "http://aux.sentinel1.eo.esa.int"},
		ASF:    ArchiveConfig{BaseURL: "https://s1qc.asf.alaska.edu"},
		Scihub: ScihubConfig{APIURL: "https://scihub.copernicus.eu/gnss/", User: GuestUser, Password: GuestPassword},
		Catalog: CatalogConfig{
			Enabled: true,
			Path:    "",
		},
		Watch: WatchConfig{Debounce: 2 * time.Second},
	}
}

package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/MikeBee/notis/internal/syncengine"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// WatchOff disables file monitoring entirely; the other values are the
// change-detection strategies understood by syncengine.NewNotifier.
const WatchOff = "off"

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Notes  NotesConfig       `yaml:"notes"`
	Index  IndexConfig       `yaml:"index"`
	Legacy LegacyConfig      `yaml:"legacy"`
	Sync   SyncConfig        `yaml:"sync"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Notes.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// NotesConfig holds the path to the Markdown notes directory.
type NotesConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the notes configuration.
func (c *NotesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IndexConfig holds the SQLite index database configuration.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// LegacyConfig points at the legacy sheet database. An empty path means no
// legacy store is attached; deep sync and migration then refuse to run.
type LegacyConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether a legacy database is configured.
func (c *LegacyConfig) Enabled() bool {
	return c.Path != ""
}

// SyncConfig controls file monitoring.
//
// Watch selects the change-detection strategy:
//   - "auto" (default): fsnotify when the platform supports it, else polling.
//   - "fsnotify", "poll": force one strategy.
//   - "off": no monitoring; only explicit sync requests run.
type SyncConfig struct {
	Watch       string `yaml:"watch"`
	DebounceMS  int    `yaml:"debounce_ms"`
	PollSeconds int    `yaml:"poll_seconds"`
	StartupSync string `yaml:"startup_sync"`
}

// Debounce returns the fsnotify debounce window; zero means the notifier
// default.
func (c *SyncConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// PollInterval returns the poller interval; zero means the notifier default.
func (c *SyncConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if c.Watch == "" {
		c.Watch = syncengine.StrategyAuto
	}
	if c.StartupSync == "" {
		c.StartupSync = string(syncengine.ModeFull)
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Watch, validation.Required,
			validation.In(syncengine.StrategyAuto, syncengine.StrategyFSNotify, syncengine.StrategyPoll, WatchOff)),
		validation.Field(&c.DebounceMS, validation.Min(0)),
		validation.Field(&c.PollSeconds, validation.Min(0)),
	); err != nil {
		return err
	}
	if _, err := syncengine.ParseMode(c.StartupSync); err != nil {
		return fmt.Errorf("sync: startup_sync: %w", err)
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Notes: NotesConfig{
			Path: "./notes",
		},
		Index: IndexConfig{
			Path: "./notis.db",
		},
		Sync: SyncConfig{
			Watch:       syncengine.StrategyAuto,
			StartupSync: string(syncengine.ModeFull),
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

package internal

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/noteapi/internal/index"
	"github.com/starford/noteapi/internal/reindex"
	"github.com/starford/noteapi/internal/watcher"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Log formats.
const (
	LogFormatAuto = "auto"
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Vault   VaultConfig       `yaml:"vault"`
	Index   IndexConfig       `yaml:"index"`
	Watcher WatcherConfig     `yaml:"watcher"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if err := c.Index.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := c.Watcher.Validate(); err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatAuto
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatAuto, LogFormatJSON, LogFormatText)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// FileMode is an octal permission string in YAML ("0644").
type FileMode os.FileMode

// UnmarshalText parses an octal mode, with or without a 0o prefix.
func (m *FileMode) UnmarshalText(text []byte) error {
	v, err := strconv.ParseUint(strings.TrimPrefix(string(text), "0o"), 8, 32)
	if err != nil {
		return fmt.Errorf("file mode %q: %w", text, err)
	}
	*m = FileMode(v)
	return nil
}

// MarshalText renders the mode in octal.
func (m FileMode) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%04o", uint32(m))), nil
}

// VaultConfig holds the Markdown vault directory and write policy.
type VaultConfig struct {
	Path         string   `yaml:"path"`
	TrashEnabled bool     `yaml:"trash_enabled"`
	FileMode     FileMode `yaml:"file_mode"`
	// FileUID and FileGID chown written notes; nil leaves ownership alone.
	FileUID *int `yaml:"file_uid"`
	FileGID *int `yaml:"file_gid"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.FileMode, validation.Required, validation.Max(FileMode(0o777))),
		validation.Field(&c.FileUID, validation.Min(0), validation.By(c.pairedOwner)),
		validation.Field(&c.FileGID, validation.Min(0), validation.By(c.pairedOwner)),
	)
}

func (c *VaultConfig) pairedOwner(any) error {
	if (c.FileUID == nil) != (c.FileGID == nil) {
		return fmt.Errorf("file_uid and file_gid must be set together")
	}
	return nil
}

// Owner returns the uid/gid pair for written notes, -1 meaning unchanged.
func (c *VaultConfig) Owner() (int, int) {
	if c.FileUID == nil || c.FileGID == nil {
		return -1, -1
	}
	return *c.FileUID, *c.FileGID
}

// IndexConfig selects and tunes the search engine.
type IndexConfig struct {
	Engine        string        `yaml:"engine"`
	Path          string        `yaml:"path"`
	Name          string        `yaml:"name"`
	ChunkSize     int           `yaml:"chunk_size"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Engine, validation.Required, validation.In(index.EngineBleve, index.EngineSQLite, index.EngineMemory)),
		validation.Field(&c.Path, validation.Required.When(c.Engine != index.EngineMemory)),
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.ChunkSize, validation.Required, validation.Min(1)),
		validation.Field(&c.ProbeInterval, validation.Required, validation.Min(100*time.Millisecond)),
	)
}

// WatcherConfig tunes the filesystem watcher.
type WatcherConfig struct {
	Enabled           bool          `yaml:"enabled"`
	FlushInterval     time.Duration `yaml:"flush_interval"`
	SummaryInterval   time.Duration `yaml:"summary_interval"`
	Ignore            []string      `yaml:"ignore"`
	IgnoredSampleSize int           `yaml:"ignored_sample_size"`
}

// Validate validates the watcher configuration.
func (c *WatcherConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FlushInterval, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.SummaryInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.Ignore, validation.Each(validation.By(validGlob))),
		validation.Field(&c.IgnoredSampleSize, validation.Required, validation.Min(1)),
	)
}

func validGlob(v any) error {
	s, _ := v.(string)
	if !doublestar.ValidatePattern(s) {
		return fmt.Errorf("invalid pattern %q", s)
	}
	return nil
}

// Watcher converts the section to the watcher's own config.
func (c *WatcherConfig) Watcher() watcher.Config {
	return watcher.Config{
		FlushInterval:   c.FlushInterval,
		SummaryInterval: c.SummaryInterval,
		Ignore:          c.Ignore,
		IgnoredSample:   c.IgnoredSampleSize,
	}
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatAuto,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 3000,
			},
		},
		Vault: VaultConfig{
			Path:     "./vault",
			FileMode: 0o644,
		},
		Index: IndexConfig{
			Engine:        index.EngineBleve,
			Path:          "./data/notes.bleve",
			Name:          "notes",
			ChunkSize:     reindex.DefaultChunkSize,
			ProbeInterval: 10 * time.Second,
		},
		Watcher: WatcherConfig{
			Enabled:           true,
			FlushInterval:     time.Second,
			SummaryInterval:   time.Minute,
			Ignore:            []string{"attachments/**"},
			IgnoredSampleSize: 50,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/craftmd/internal/exporter"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Input       InputConfig       `yaml:"input"`
	Output      OutputConfig      `yaml:"output"`
	Convert     ConvertConfig     `yaml:"convert"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Auth        AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Input.Validate(); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := c.Convert.Validate(); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	if err := c.Attachments.Validate(); err != nil {
		return fmt.Errorf("attachments: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
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

// InputConfig points at the JSON export.
type InputConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the input configuration.
func (c *InputConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// OutputConfig describes the Markdown vault that is written.
type OutputConfig struct {
	Path           string   `yaml:"path"`
	AttachmentsDir string   `yaml:"attachments_dir"`
	Frontmatter    bool     `yaml:"frontmatter"`
	PreserveTimes  bool     `yaml:"preserve_times"`
	Skip           []string `yaml:"skip"`
	ReportName     string   `yaml:"report_name"`
}

// Validate validates the output configuration.
func (c *OutputConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.AttachmentsDir, validation.Required),
		validation.Field(&c.ReportName, validation.Required),
	)
}

// ConvertConfig tunes the converter.
type ConvertConfig struct {
	Workers  int `yaml:"workers"`
	MaxDepth int `yaml:"max_depth"`
}

// Validate validates the convert configuration.
func (c *ConvertConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(0), validation.Max(256)),
		validation.Field(&c.MaxDepth, validation.Min(0)),
	)
}

// AttachmentsConfig controls how referenced files are fetched.
type AttachmentsConfig struct {
	Download   bool          `yaml:"download"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxBytes   int64         `yaml:"max_bytes"`
	BlockLocal bool          `yaml:"block_local"`
}

// Validate validates the attachments configuration.
func (c *AttachmentsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxBytes, validation.Min(int64(0))),
	)
}

// SQLiteConfig holds the ledger database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the review API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
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

// ExporterOptions maps the output and convert sections onto exporter options.
func (c *Config) ExporterOptions() exporter.Options {
	return exporter.Options{
		AttachmentsDir: c.Output.AttachmentsDir,
		Frontmatter:    c.Output.Frontmatter,
		PreserveTimes:  c.Output.PreserveTimes,
		Skip:           c.Output.Skip,
		ReportName:     c.Output.ReportName,
		Workers:        c.Convert.Workers,
		MaxDepth:       c.Convert.MaxDepth,
	}
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
		Input: InputConfig{
			Path: "./craft.json",
		},
		Output: OutputConfig{
			Path:           "./out",
			AttachmentsDir: "Attachments",
			PreserveTimes:  true,
			Skip:           []string{"Trash"},
			ReportName:     exporter.DefaultReportName,
		},
		Convert: ConvertConfig{
			Workers:  4,
			MaxDepth: 256,
		},
		Attachments: AttachmentsConfig{
			Download: true,
			Timeout:  30 * time.Second,
			MaxBytes: 100 << 20,
		},
		SQLite: SQLiteConfig{
			Path: "./craftmd.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

// Package config provides configuration management for elmdev.
//
// Configuration is loaded from four sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (ELMDEV_ prefix)
//  3. Config file (.elmdev.yaml)
//  4. Built-in defaults
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Supported request log formats. The names follow the morgan presets.
const (
	RequestLogDev      = "dev"
	RequestLogTiny     = "tiny"
	RequestLogShort    = "short"
	RequestLogCommon   = "common"
	RequestLogCombined = "combined"
	RequestLogJSON     = "json"
	RequestLogNone     = "none"
)

// Project defaults.
const (
	DefaultSource   = "./Todo.elm"
	DefaultOutDir   = "./dist"
	DefaultCompiler = "elm"
	DefaultAddr     = ":4000"
	DefaultDebounce = 300 * time.Millisecond
)

// DefaultCompilerArgs is the argument template passed to the compiler.
// {src}, {out} and {outdir} are substituted before invocation.
var DefaultCompilerArgs = []string{"make", "{src}", "--output={out}"}

// DefaultWatchExtensions are the file extensions considered relevant
// inside the extra watch directories.
var DefaultWatchExtensions = []string{".elm"}

// RequestLogFormats lists every accepted request log format.
var RequestLogFormats = []string{
	RequestLogDev, RequestLogTiny, RequestLogShort, RequestLogCommon,
	RequestLogCombined, RequestLogJSON, RequestLogNone,
}

// Config represents the global configuration for elmdev.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel" yaml:"log-level" toml:"log-level"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat" yaml:"log-format" toml:"log-format"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no-color" json:"noColor" yaml:"no-color" toml:"no-color"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet" yaml:"quiet" toml:"quiet"`

	// Source is the input file handed to the compiler.
	Source string `mapstructure:"source" json:"source" yaml:"source" toml:"source"`

	// OutDir receives the compiled artifacts and is served over HTTP.
	OutDir string `mapstructure:"out-dir" json:"outDir" yaml:"out-dir" toml:"out-dir"`

	// OutputName overrides the artifact file name. Empty means the
	// source stem with a .js extension.
	OutputName string `mapstructure:"output-name" json:"outputName,omitempty" yaml:"output-name,omitempty" toml:"output-name,omitempty"`

	// Compiler is the compiler executable.
	Compiler string `mapstructure:"compiler" json:"compiler" yaml:"compiler" toml:"compiler"`

	// CompilerArgs is the argument template for a compile run.
	CompilerArgs []string `mapstructure:"compiler-args" json:"compilerArgs" yaml:"compiler-args" toml:"compiler-args"`

	// CompilerVersion is an optional semver constraint the compiler
	// version must satisfy, e.g. ">=0.19.0".
	CompilerVersion string `mapstructure:"compiler-version" json:"compilerVersion,omitempty" yaml:"compiler-version,omitempty" toml:"compiler-version,omitempty"`

	// Addr is the HTTP listen address.
	Addr string `mapstructure:"addr" json:"addr" yaml:"addr" toml:"addr"`

	// RequestLog selects the request log format.
	RequestLog string `mapstructure:"request-log" json:"requestLog" yaml:"request-log" toml:"request-log"`

	// Debounce is the quiet period before a change triggers a compile.
	Debounce time.Duration `mapstructure:"debounce" json:"debounce" yaml:"debounce" toml:"debounce"`

	// WatchDirs are additional directories watched recursively.
	WatchDirs []string `mapstructure:"watch-dirs" json:"watchDirs,omitempty" yaml:"watch-dirs,omitempty" toml:"watch-dirs,omitempty"`

	// WatchExt filters events inside WatchDirs by file extension.
	WatchExt []string `mapstructure:"watch-ext" json:"watchExt" yaml:"watch-ext" toml:"watch-ext"`

	// ConfigFile is the resolved path to the config file used.
	// Set after Load(), not read from config itself.
	ConfigFile string `mapstructure:"-" json:"-" yaml:"-" toml:"-"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:     LogLevelInfo,
		LogFormat:    LogFormatText,
		Source:       DefaultSource,
		OutDir:       DefaultOutDir,
		Compiler:     DefaultCompiler,
		CompilerArgs: append([]string(nil), DefaultCompilerArgs...),
		Addr:         DefaultAddr,
		RequestLog:   RequestLogDev,
		Debounce:     DefaultDebounce,
		WatchExt:     append([]string(nil), DefaultWatchExtensions...),
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// valid
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	if !isRequestLogFormat(c.RequestLog) {
		return fmt.Errorf("invalid request log format %q: must be one of %s",
			c.RequestLog, strings.Join(RequestLogFormats, ", "))
	}

	if strings.TrimSpace(c.Source) == "" {
		return fmt.Errorf("source must not be empty")
	}

	if strings.TrimSpace(c.OutDir) == "" {
		return fmt.Errorf("out-dir must not be empty")
	}

	if strings.TrimSpace(c.Compiler) == "" {
		return fmt.Errorf("compiler must not be empty")
	}

	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("addr must not be empty")
	}

	if c.Debounce < 0 {
		return fmt.Errorf("invalid debounce %s: must not be negative", c.Debounce)
	}

	if c.CompilerVersion != "" {
		if _, err := semver.NewConstraint(c.CompilerVersion); err != nil {
			return fmt.Errorf("invalid compiler version constraint %q: %w", c.CompilerVersion, err)
		}
	}

	return nil
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

func isRequestLogFormat(name string) bool {
	for _, f := range RequestLogFormats {
		if f == name {
			return true
		}
	}

	return false
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Store the resolved config file path so downstream code can locate it.
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("no-color", d.NoColor)
	v.SetDefault("quiet", d.Quiet)
	v.SetDefault("source", d.Source)
	v.SetDefault("out-dir", d.OutDir)
	v.SetDefault("output-name", d.OutputName)
	v.SetDefault("compiler", d.Compiler)
	v.SetDefault("compiler-args", d.CompilerArgs)
	v.SetDefault("compiler-version", d.CompilerVersion)
	v.SetDefault("addr", d.Addr)
	v.SetDefault("request-log", d.RequestLog)
	v.SetDefault("debounce", d.Debounce)
	v.SetDefault("watch-dirs", []string{})
	v.SetDefault("watch-ext", d.WatchExt)
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("ELMDEV")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	// Auto-discovery mode.
	v.SetConfigName(".elmdev")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "elmdev"))
	}

	if err := v.ReadInConfig(); err != nil {
		// No config file found → perfectly fine in auto-discovery.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}

		// Found a file but it was malformed.
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags walks from cmd up to the root and binds all PersistentFlags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	// Bind the current command's own flags.
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	// Walk up to root and bind all persistent flags at each level.
	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}

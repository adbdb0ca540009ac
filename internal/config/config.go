// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Page() PageConfig
	Input() InputConfig
	Wait() WaitConfig
	Capture() CaptureConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserBinary(string)

	// Capture Setters
	SetCaptureInactivityTimeout(time.Duration)
	SetCaptureMimePatterns([]string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	PageCfg    PageConfig    `mapstructure:"page" yaml:"page"`
	InputCfg   InputConfig   `mapstructure:"input" yaml:"input"`
	WaitCfg    WaitConfig    `mapstructure:"wait" yaml:"wait"`
	CaptureCfg CaptureConfig `mapstructure:"capture" yaml:"capture"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Page() PageConfig       { return c.PageCfg }
func (c *Config) Input() InputConfig     { return c.InputCfg }
func (c *Config) Wait() WaitConfig       { return c.WaitCfg }
func (c *Config) Capture() CaptureConfig { return c.CaptureCfg }

func (c *Config) SetBrowserHeadless(b bool)    { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserBinary(path string) { c.BrowserCfg.Binary = path }

func (c *Config) SetCaptureMimePatterns(p []string) {
	c.CaptureCfg.MimePatterns = append([]string(nil), p...)
}
func (c *Config) SetCaptureInactivityTimeout(d time.Duration) {
	c.CaptureCfg.InactivityTimeout = d
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls how the browser process is launched and attached.
type BrowserConfig struct {
	Binary   string `mapstructure:"binary" yaml:"binary"`
	Headless bool   `mapstructure:"headless" yaml:"headless"`
	// Debug port is drawn uniformly from [PortMin, PortMax).
	PortMin      int    `mapstructure:"port_min" yaml:"port_min"`
	PortMax      int    `mapstructure:"port_max" yaml:"port_max"`
	ProfileRoot  string `mapstructure:"profile_root" yaml:"profile_root"`
	Display      string `mapstructure:"display" yaml:"display"`
	WindowWidth  int    `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int    `mapstructure:"window_height" yaml:"window_height"`
	// Bounds the wait for the debug port to accept connections.
	StartupTimeout   time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	KillGracePeriod  time.Duration `mapstructure:"kill_grace_period" yaml:"kill_grace_period"`
	// Extra flags appended after the fixed flag set.
	Args []string `mapstructure:"args" yaml:"args"`
}

// PageConfig holds navigation settings.
type PageConfig struct {
	LoadTimeout   time.Duration `mapstructure:"load_timeout" yaml:"load_timeout"`
	PostLoadDelay time.Duration `mapstructure:"post_load_delay" yaml:"post_load_delay"`
}

// WaitConfig holds defaults for the polling wait combinator.
type WaitConfig struct {
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ScreenshotPath string        `mapstructure:"screenshot_path" yaml:"screenshot_path"`
}

// CaptureConfig holds defaults for the streaming capture pipeline.
type CaptureConfig struct {
	FlushInterval     time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout" yaml:"inactivity_timeout"`
	ScreenshotPath    string        `mapstructure:"screenshot_path" yaml:"screenshot_path"`
	MimePatterns      []string      `mapstructure:"mime_patterns" yaml:"mime_patterns"`
	// FetchDrain bounds how long shutdown waits for in-flight body fetches.
	FetchDrain        time.Duration `mapstructure:"fetch_drain" yaml:"fetch_drain"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "tabctl")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.binary", "chromium")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.port_min", 5001)
	v.SetDefault("browser.port_max", 32000)
	v.SetDefault("browser.profile_root", os.TempDir())
	v.SetDefault("browser.display", ":0")
	v.SetDefault("browser.window_width", 1200)
	v.SetDefault("browser.window_height", 960)
	v.SetDefault("browser.startup_timeout", "15s")
	v.SetDefault("browser.handshake_timeout", "15s")
	v.SetDefault("browser.kill_grace_period", "5s")
	v.SetDefault("browser.args", []string{})

	// -- Page --
	v.SetDefault("page.load_timeout", "60s")
	v.SetDefault("page.post_load_delay", "0s")

	// -- Input --
	setInputDefaults(v)

	// -- Wait --
	v.SetDefault("wait.timeout", "30s")
	v.SetDefault("wait.poll_interval", "10ms")
	v.SetDefault("wait.screenshot_path", "/tmp/wait_failed_ss.png")

	// -- Capture --
	v.SetDefault("capture.flush_interval", "50ms")
	v.SetDefault("capture.inactivity_timeout", "10s")
	v.SetDefault("capture.screenshot_path", "/tmp/capture_failed_ss.png")
	v.SetDefault("capture.mime_patterns", []string{"video/*", "audio/*"})
	v.SetDefault("capture.fetch_drain", "5s")
}

// EnvPrefix prefixes every environment override, e.g. TABCTL_BROWSER_BINARY.
const EnvPrefix = "TABCTL"

// BindEnv makes every key overridable from the environment.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewConfigFromViper unmarshals, expands and validates a configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("error expanding config paths: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in every path-valued field.
func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.LoggerCfg.LogFile,
		&c.BrowserCfg.ProfileRoot,
		&c.WaitCfg.ScreenshotPath,
		&c.CaptureCfg.ScreenshotPath,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	b := c.BrowserCfg
	if b.Binary == "" {
		return errors.New("browser.binary is a required configuration field")
	}
	if b.PortMin <= 0 || b.PortMax > 65536 || b.PortMin >= b.PortMax {
		return fmt.Errorf("browser port range [%d, %d) is invalid", b.PortMin, b.PortMax)
	}
	if b.StartupTimeout <= 0 || b.HandshakeTimeout <= 0 {
		return errors.New("browser.startup_timeout and browser.handshake_timeout must be positive")
	}
	if b.KillGracePeriod < 0 {
		return errors.New("browser.kill_grace_period must not be negative")
	}
	if c.PageCfg.LoadTimeout <= 0 {
		return errors.New("page.load_timeout must be positive")
	}
	if err := c.InputCfg.Validate(); err != nil {
		return fmt.Errorf("input configuration invalid: %w", err)
	}
	if c.WaitCfg.Timeout <= 0 {
		return errors.New("wait.timeout must be positive")
	}
	if c.WaitCfg.PollInterval < 0 {
		return errors.New("wait.poll_interval must not be negative")
	}
	if c.CaptureCfg.FlushInterval <= 0 {
		return errors.New("capture.flush_interval must be positive")
	}
	if c.CaptureCfg.InactivityTimeout <= 0 {
		return errors.New("capture.inactivity_timeout must be positive")
	}
	if c.CaptureCfg.FetchDrain < 0 {
		return errors.New("capture.fetch_drain must not be negative")
	}
	return nil
}

// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MaxPollInterval bounds how long a wait may sleep between two DOM probes.
const MaxPollInterval = 500 * time.Millisecond

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Suite    SuiteConfig    `mapstructure:"suite" yaml:"suite"`
	Evidence EvidenceConfig `mapstructure:"evidence" yaml:"evidence"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
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

// BrowserConfig holds settings for the browser process driven by the suite.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	ExecPath        string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	WindowWidth     int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int           `mapstructure:"window_height" yaml:"window_height"`
	LaunchTimeout   time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// SuiteConfig controls how scenarios are executed.
type SuiteConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// Workers > 1 runs scenarios in parallel, one browser per worker.
	Workers int `mapstructure:"workers" yaml:"workers"`
	// NavigationRate caps page loads per second per session. Zero disables pacing.
	NavigationRate float64  `mapstructure:"navigation_rate" yaml:"navigation_rate"`
	ScenarioFile   string   `mapstructure:"scenario_file" yaml:"scenario_file"`
	Scenarios      []string `mapstructure:"scenarios" yaml:"scenarios"`
}

// EvidenceConfig controls screenshot capture.
type EvidenceConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	FullPage bool   `mapstructure:"full_page" yaml:"full_page"`
	Quality  int    `mapstructure:"quality" yaml:"quality"`
}

// ReportConfig controls where and in which formats the run report is written.
type ReportConfig struct {
	Path    string   `mapstructure:"path" yaml:"path"`
	Formats []string `mapstructure:"formats" yaml:"formats"`
}

// StoreConfig holds the optional run history database connection.
type StoreConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
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
	v.SetDefault("logger.service_name", "uicheck")
	v.SetDefault("logger.log_file", "uicheck.log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.launch_timeout", "45s")
	v.SetDefault("browser.ignore_tls_errors", false)

	// -- Suite --
	v.SetDefault("suite.base_url", "https://www.amazon.com")
	v.SetDefault("suite.default_timeout", "10s")
	v.SetDefault("suite.poll_interval", "250ms")
	v.SetDefault("suite.navigation_timeout", "60s")
	v.SetDefault("suite.workers", 1)
	v.SetDefault("suite.navigation_rate", 0.0)

	// -- Evidence --
	v.SetDefault("evidence.dir", "screenshots")
	v.SetDefault("evidence.full_page", false)
	v.SetDefault("evidence.quality", 90)

	// -- Report --
	v.SetDefault("report.path", "reports/report.html")
	v.SetDefault("report.formats", []string{"html"})
}

// DefaultUserAgent is the desktop user agent the suite presents unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The database URL usually carries a password, so it gets a dedicated variable.
	_ = v.BindEnv("store.url", "UICHECK_STORE_URL", "UICHECK_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Suite.Validate(); err != nil {
		return fmt.Errorf("suite configuration invalid: %w", err)
	}
	if c.Browser.LaunchTimeout <= 0 {
		return fmt.Errorf("browser.launch_timeout must be a positive duration")
	}
	if c.Evidence.Dir == "" {
		return fmt.Errorf("evidence.dir is a required configuration field")
	}
	if c.Evidence.Quality < 0 || c.Evidence.Quality > 100 {
		return fmt.Errorf("evidence.quality must be between 0 and 100")
	}
	if err := c.Report.Validate(); err != nil {
		return fmt.Errorf("report configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the suite execution settings.
func (s *SuiteConfig) Validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if !strings.HasPrefix(s.BaseURL, "http://") && !strings.HasPrefix(s.BaseURL, "https://") {
		return fmt.Errorf("base_url must start with http:// or https://")
	}
	if s.DefaultTimeout <= 0 {
		return fmt.Errorf("default_timeout must be a positive duration")
	}
	if s.PollInterval <= 0 || s.PollInterval > MaxPollInterval {
		return fmt.Errorf("poll_interval must be in (0, %s]", MaxPollInterval)
	}
	if s.Workers <= 0 {
		return fmt.Errorf("workers must be a positive integer")
	}
	if s.NavigationRate < 0 {
		return fmt.Errorf("navigation_rate must not be negative")
	}
	return nil
}

// SupportedReportFormats lists the formats the reporting package can write.
var SupportedReportFormats = []string{"html", "json", "junit", "sarif"}

// Validate checks the report output settings.
func (r *ReportConfig) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("path is required")
	}
	if len(r.Formats) == 0 {
		return fmt.Errorf("at least one format is required")
	}
	for _, f := range r.Formats {
		supported := false
		for _, s := range SupportedReportFormats {
			if strings.EqualFold(f, s) {
				supported = true
				break
			}
		}
		if !supported {
			return fmt.Errorf("unsupported format %q (supported: %s)", f, strings.Join(SupportedReportFormats, ", "))
		}
	}
	return nil
}

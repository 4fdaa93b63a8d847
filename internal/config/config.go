// Package config provides centralized configuration for the storefront E2E harness.
// Values come from built-in defaults, then a config file (config.json; YAML is
// accepted too), then environment variables. CLI flags select the file and the
// run-time switches (--no-report, --headed, feature paths, tags).
//
// Secrets (test-management token, storefront password, S3 keys, Resend key)
// are expected in environment variables only.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/kuitang/storefront-e2e/internal/logutil"
)

const (
	defaultConfigPath     = "config.json"
	defaultBaseURL        = "https://www.gmarket.co.kr"
	defaultCartURL        = "https://cart.gmarket.co.kr/ko/pc/cart/"
	defaultKeyword        = "노트북"
	defaultTimeout        = 10 * time.Second
	defaultScreenshotDir  = "screenshots"
	defaultRunNamePrefix  = "Automated Run"
	defaultArtifactRegion = "auto"
)

// Config holds all harness configuration.
type Config struct {
	// Storefront under test
	BaseURL        string `yaml:"base_url" envconfig:"STOREFRONT_BASE_URL"`
	CartURL        string `yaml:"cart_url" envconfig:"STOREFRONT_CART_URL"`
	Username       string `yaml:"username" envconfig:"STOREFRONT_USERNAME"`
	Password       string `yaml:"-" envconfig:"STOREFRONT_PASSWORD"`
	DefaultKeyword string `yaml:"default_keyword" envconfig:"STOREFRONT_DEFAULT_KEYWORD"`

	// Browser
	Headless          bool          `yaml:"headless" envconfig:"HEADLESS"`
	BrowserArgs       []string      `yaml:"browser_args" envconfig:"BROWSER_ARGS"`
	DefaultTimeout    time.Duration `yaml:"default_timeout" envconfig:"DEFAULT_TIMEOUT"`
	ScreenshotTimeout time.Duration `yaml:"screenshot_timeout" envconfig:"SCREENSHOT_TIMEOUT"`
	ScreenshotDir     string        `yaml:"screenshot_dir" envconfig:"SCREENSHOT_DIR"`
	KeepScreenshots   bool          `yaml:"keep_screenshots" envconfig:"KEEP_SCREENSHOTS"`

	// BDD runner (usually set by flags)
	FeaturePaths  []string `yaml:"features" envconfig:"FEATURES"`
	Tags          string   `yaml:"tags" envconfig:"TAGS"`
	Format        string   `yaml:"format" envconfig:"FORMAT"`
	StopOnFailure bool     `yaml:"stop_on_failure" envconfig:"STOP_ON_FAILURE"`

	// Test management reporting
	NoReport bool           `yaml:"-" envconfig:"NO_REPORT"`
	TestRail TestRailConfig `yaml:",inline" envconfig:"TESTRAIL"`

	// Failure artifact archive (S3-compatible; empty bucket disables it)
	Artifacts ArtifactsConfig `yaml:"artifacts" envconfig:"ARTIFACTS"`

	// Run summary notification (empty API key logs the summary instead)
	Notify NotifyConfig `yaml:"notify" envconfig:"NOTIFY"`

	// Metrics push (empty URL disables it)
	PushgatewayURL string `yaml:"pushgateway_url" envconfig:"PUSHGATEWAY_URL"`
	MetricsJob     string `yaml:"metrics_job" envconfig:"METRICS_JOB"`
}

// TestRailConfig holds the test-management connection and run plan. The yaml
// keys keep the names used by the existing config.json files. Environment
// names are prefixed by the parent field (TESTRAIL_PROJECT_ID, ARTIFACTS_BUCKET,
// NOTIFY_RESEND_API_KEY); untagged fields keep envconfig from falling back to
// bare names such as USER.
type TestRailConfig struct {
	URL           string        `yaml:"tr_url" split_words:"true"`
	User          string        `yaml:"tr_user" split_words:"true"`
	Token         string        `yaml:"-" split_words:"true"`
	ProjectID     int           `yaml:"project_id" split_words:"true"`
	SuiteID       int           `yaml:"suite_id" split_words:"true"`
	SectionID     int           `yaml:"section_id" split_words:"true"`
	MilestoneID   int           `yaml:"milestone_id" split_words:"true"`
	RunID         int           `yaml:"run_id" split_words:"true"` // reuse an existing run instead of creating one
	RunNamePrefix string        `yaml:"run_name_prefix" split_words:"true"`
	RPS           float64       `yaml:"rps" split_words:"true"`
	Burst         int           `yaml:"burst" split_words:"true"`
	MaxRetries    int           `yaml:"max_retries" split_words:"true"`
	Timeout       time.Duration `yaml:"timeout" split_words:"true"`
}

// ArtifactsConfig configures the S3 bucket that archives failure screenshots.
type ArtifactsConfig struct {
	Endpoint        string `yaml:"endpoint" split_words:"true"`
	Region          string `yaml:"region" split_words:"true"`
	AccessKeyID     string `yaml:"-" split_words:"true"`
	SecretAccessKey string `yaml:"-" split_words:"true"`
	Bucket          string `yaml:"bucket" split_words:"true"`
	PublicURL       string `yaml:"public_url" split_words:"true"`
	Prefix          string `yaml:"prefix" split_words:"true"`
	UsePathStyle    bool   `yaml:"use_path_style" split_words:"true"`
}

// NotifyConfig configures the run summary email.
type NotifyConfig struct {
	ResendAPIKey string   `yaml:"-" split_words:"true"`
	From         string   `yaml:"from" split_words:"true"`
	To           []string `yaml:"to" split_words:"true"`
}

// Flags are the command-line switches. Zero values leave the loaded
// configuration untouched.
type Flags struct {
	ConfigPath    string
	Features      []string
	Tags          string
	Format        string
	NoReport      bool
	Headed        bool
	StopOnFailure bool
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags registers and parses the harness flags on fs.
func ParseFlags(fs *flag.FlagSet, args []string) (Flags, error) {
	var f Flags
	var features string
	fs.StringVar(&f.ConfigPath, "config", defaultConfigPath, "Path to the JSON or YAML config file")
	fs.StringVar(&features, "features", "", "Comma-separated feature files or directories (default: features)")
	fs.StringVar(&f.Tags, "tags", "", "Tag expression selecting scenarios, e.g. \"@cart && ~@wip\"")
	fs.StringVar(&f.Format, "format", "", "godog output format (pretty, progress, cucumber, junit)")
	fs.BoolVar(&f.NoReport, "no-report", false, "Do not create a test run or post results")
	fs.BoolVar(&f.Headed, "headed", false, "Show the browser window")
	fs.BoolVar(&f.StopOnFailure, "stop-on-failure", false, "Stop at the first failed scenario")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	f.Features = splitList(features)
	return f, nil
}

// Defaults returns the configuration used when neither file nor env set a value.
func Defaults() *Config {
	return &Config{
		BaseURL:           defaultBaseURL,
		CartURL:           defaultCartURL,
		DefaultKeyword:    defaultKeyword,
		Headless:          true,
		BrowserArgs:       []string{"--start-maximized"},
		DefaultTimeout:    defaultTimeout,
		ScreenshotTimeout: 2 * time.Second,
		ScreenshotDir:     defaultScreenshotDir,
		FeaturePaths:      []string{"features"},
		Format:            "pretty",
		TestRail: TestRailConfig{
			RunNamePrefix: defaultRunNamePrefix,
			RPS:           2,
			Burst:         4,
			MaxRetries:    3,
			Timeout:       30 * time.Second,
		},
		Artifacts: ArtifactsConfig{
			Region: defaultArtifactRegion,
			Prefix: "e2e",
		},
		MetricsJob: "storefront_e2e",
	}
}

// LoadConfig loads defaults, the config file named by flags, environment
// variables and finally flag overrides, then validates the result.
// A missing config file is not an error when the default path is used.
func LoadConfig(f Flags) (*Config, error) {
	cfg := Defaults()

	path := f.ConfigPath
	if path == "" {
		path = defaultConfigPath
	}
	if err := cfg.loadFile(path, path != defaultConfigPath); err != nil {
		return nil, err
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	cfg.applyFlags(f)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyFlags(f Flags) {
	if len(f.Features) > 0 {
		c.FeaturePaths = f.Features
	}
	if f.Tags != "" {
		c.Tags = f.Tags
	}
	if f.Format != "" {
		c.Format = f.Format
	}
	if f.NoReport {
		c.NoReport = true
	}
	if f.Headed {
		c.Headless = false
	}
	if f.StopOnFailure {
		c.StopOnFailure = true
	}
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.CartURL = strings.TrimSpace(c.CartURL)
	if c.CartURL == "" {
		c.CartURL = c.BaseURL + "/cart"
	}
	c.TestRail.URL = strings.TrimRight(strings.TrimSpace(c.TestRail.URL), "/")
	c.Artifacts.PublicURL = strings.TrimRight(strings.TrimSpace(c.Artifacts.PublicURL), "/")
	if c.Artifacts.PublicURL == "" && c.Artifacts.Endpoint != "" && c.Artifacts.Bucket != "" {
		c.Artifacts.PublicURL = strings.TrimRight(c.Artifacts.Endpoint, "/") + "/" + c.Artifacts.Bucket
	}
	if c.Notify.From == "" {
		c.Notify.From = "qa-bot@storefront-e2e.dev"
	}
}

// Validate checks that all required configuration is present and valid.
// Reporting credentials are only required when reporting is enabled.
func (c *Config) Validate() error {
	var errs []string

	if c.BaseURL == "" {
		errs = append(errs, "STOREFRONT_BASE_URL (base_url) is required")
	}
	if c.DefaultTimeout <= 0 {
		errs = append(errs, "DEFAULT_TIMEOUT must be positive")
	}
	if c.ScreenshotTimeout <= 0 {
		errs = append(errs, "SCREENSHOT_TIMEOUT must be positive")
	}
	if len(c.FeaturePaths) == 0 {
		errs = append(errs, "at least one feature path is required (--features)")
	}

	if c.ReportingEnabled() {
		tr := c.TestRail
		if tr.URL == "" {
			errs = append(errs, "TESTRAIL_URL (tr_url) is required (or use --no-report)")
		}
		if tr.User == "" {
			errs = append(errs, "TESTRAIL_USER is required (or use --no-report)")
		}
		if tr.Token == "" {
			errs = append(errs, "TESTRAIL_TOKEN is required (or use --no-report)")
		}
		if tr.ProjectID <= 0 {
			errs = append(errs, "TESTRAIL_PROJECT_ID (project_id) must be positive")
		}
		if tr.RunID <= 0 {
			if tr.SuiteID <= 0 {
				errs = append(errs, "TESTRAIL_SUITE_ID (suite_id) must be positive unless TESTRAIL_RUN_ID is set")
			}
			if tr.SectionID <= 0 {
				errs = append(errs, "TESTRAIL_SECTION_ID (section_id) must be positive unless TESTRAIL_RUN_ID is set")
			}
		}
		if tr.RPS <= 0 {
			errs = append(errs, "TESTRAIL_RPS must be positive")
		}
		if tr.Burst <= 0 {
			errs = append(errs, "TESTRAIL_BURST must be positive")
		}
	}

	if c.ArtifactsEnabled() && c.Artifacts.Region == "" {
		errs = append(errs, "ARTIFACTS_REGION is required when ARTIFACTS_BUCKET is set")
	}

	if c.Notify.ResendAPIKey != "" && len(c.Notify.To) == 0 {
		errs = append(errs, "NOTIFY_TO is required when NOTIFY_RESEND_API_KEY is set")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ReportingEnabled returns true when results are posted to the test-management service.
func (c *Config) ReportingEnabled() bool {
	return !c.NoReport
}

// ArtifactsEnabled returns true when failure screenshots are archived to S3.
func (c *Config) ArtifactsEnabled() bool {
	return c.Artifacts.Bucket != ""
}

// PrintStartupSummary prints a human-readable summary of the configuration to stderr.
func (c *Config) PrintStartupSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "storefront-e2e starting...")
	fmt.Fprintf(os.Stderr, "  Target:    %s (user: %s)\n", c.BaseURL, orUnset(c.Username))
	fmt.Fprintf(os.Stderr, "  Browser:   headless=%t timeout=%s\n", c.Headless, c.DefaultTimeout)
	fmt.Fprintf(os.Stderr, "  Features:  %s", strings.Join(c.FeaturePaths, ", "))
	if c.Tags != "" {
		fmt.Fprintf(os.Stderr, " (tags: %s)", c.Tags)
	}
	fmt.Fprintln(os.Stderr)

	if c.ReportingEnabled() {
		fmt.Fprintf(os.Stderr, "  Reporting: %s project=%d suite=%d section=%d (token %s)\n",
			logutil.RedactURL(c.TestRail.URL), c.TestRail.ProjectID, c.TestRail.SuiteID,
			c.TestRail.SectionID, logutil.RedactValue(c.TestRail.Token))
	} else {
		fmt.Fprintln(os.Stderr, "  Reporting: disabled (--no-report)")
	}

	if c.ArtifactsEnabled() {
		fmt.Fprintf(os.Stderr, "  Artifacts: s3://%s/%s\n", c.Artifacts.Bucket, c.Artifacts.Prefix)
	} else {
		fmt.Fprintf(os.Stderr, "  Artifacts: local only (%s)\n", c.ScreenshotDir)
	}

	if c.Notify.ResendAPIKey != "" {
		fmt.Fprintf(os.Stderr, "  Notify:    Resend -> %s\n", strings.Join(c.Notify.To, ", "))
	} else {
		fmt.Fprintln(os.Stderr, "  Notify:    log only")
	}
	fmt.Fprintln(os.Stderr, "")
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func orUnset(v string) string {
	if v == "" {
		return "<unset>"
	}
	return v
}

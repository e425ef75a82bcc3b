// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Automator() AutomatorConfig
	Perception() PerceptionConfig
	Target() TargetConfig
	Workflow() WorkflowConfig
	Metrics() MetricsConfig

	// Target Setters
	SetQMPAddress(network, address string)

	// Workflow Setters
	SetOutputDir(dir string)
	SetAccountSubmit(bool)

	// Metrics Setters
	SetMetricsEnabled(bool)
}

// Config holds the entire application configuration.
// Fields are reached through the Interface's getter methods.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	AutomatorCfg  AutomatorConfig  `mapstructure:"automator" yaml:"automator"`
	PerceptionCfg PerceptionConfig `mapstructure:"perception" yaml:"perception"`
	TargetCfg     TargetConfig     `mapstructure:"target" yaml:"target"`
	WorkflowCfg   WorkflowConfig   `mapstructure:"workflow" yaml:"workflow"`
	MetricsCfg    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Automator() AutomatorConfig   { return c.AutomatorCfg }
func (c *Config) Perception() PerceptionConfig { return c.PerceptionCfg }
func (c *Config) Target() TargetConfig         { return c.TargetCfg }
func (c *Config) Workflow() WorkflowConfig     { return c.WorkflowCfg }
func (c *Config) Metrics() MetricsConfig       { return c.MetricsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetQMPAddress(network, address string) {
	c.TargetCfg.QMP.Network = network
	c.TargetCfg.QMP.Address = address
}
func (c *Config) SetOutputDir(dir string)  { c.WorkflowCfg.OutputDir = dir }
func (c *Config) SetAccountSubmit(b bool)  { c.WorkflowCfg.Account.Submit = b }
func (c *Config) SetMetricsEnabled(b bool) { c.MetricsCfg.Enabled = b }

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

// AutomatorConfig controls condition polling.
type AutomatorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// WaitTimeout of zero waits forever.
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
}

// PerceptionConfig groups OCR and image matching settings.
type PerceptionConfig struct {
	OCR   OCRConfig   `mapstructure:"ocr" yaml:"ocr"`
	Match MatchConfig `mapstructure:"match" yaml:"match"`
}

// OCRConfig configures the tesseract engine.
type OCRConfig struct {
	Binary        string  `mapstructure:"binary" yaml:"binary"`
	Language      string  `mapstructure:"language" yaml:"language"`
	PageSegMode   int     `mapstructure:"psm" yaml:"psm"`
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
}

// MatchConfig configures reference image matching.
type MatchConfig struct {
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
}

// TargetConfig describes how to reach the virtual machine.
type TargetConfig struct {
	QMP     QMPConfig     `mapstructure:"qmp" yaml:"qmp"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Input   InputConfig   `mapstructure:"input" yaml:"input"`
}

// QMPConfig is the monitor socket of the target.
type QMPConfig struct {
	Network string `mapstructure:"network" yaml:"network"`
	Address string `mapstructure:"address" yaml:"address"`
	// ConnectTimeout bounds how long to keep retrying while the socket is not up yet.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// DisplayConfig controls how frames are pulled from the target.
type DisplayConfig struct {
	Dir             string        `mapstructure:"dir" yaml:"dir"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
	Device          string        `mapstructure:"device" yaml:"device"`
}

// InputConfig controls keyboard pacing.
type InputConfig struct {
	KeysPerSecond float64 `mapstructure:"keys_per_second" yaml:"keys_per_second"`
	Burst         int     `mapstructure:"burst" yaml:"burst"`
	Device        string  `mapstructure:"device" yaml:"device"`
}

// WorkflowConfig holds setup-assistant inputs and where run artefacts go.
type WorkflowConfig struct {
	Account   AccountConfig `mapstructure:"account" yaml:"account"`
	Assets    AssetsConfig  `mapstructure:"assets" yaml:"assets"`
	OutputDir string        `mapstructure:"output_dir" yaml:"output_dir"`
}

// AccountConfig is the local user created at the end of setup.
type AccountConfig struct {
	FullName string `mapstructure:"full_name" yaml:"full_name"`
	Password string `mapstructure:"password" yaml:"password"`
	Hint     string `mapstructure:"hint" yaml:"hint"`
	Submit   bool   `mapstructure:"submit" yaml:"submit"`
}

// AssetsConfig points at reference images.
type AssetsConfig struct {
	Globe  string `mapstructure:"globe" yaml:"globe"`
	GlobeX int    `mapstructure:"globe_x" yaml:"globe_x"`
	GlobeY int    `mapstructure:"globe_y" yaml:"globe_y"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
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
	v.SetDefault("logger.service_name", "vzpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Automator --
	v.SetDefault("automator.poll_interval", "50ms")
	v.SetDefault("automator.wait_timeout", "0s")

	// -- Perception --
	v.SetDefault("perception.ocr.binary", "tesseract")
	v.SetDefault("perception.ocr.language", "eng")
	v.SetDefault("perception.ocr.psm", 11)
	v.SetDefault("perception.ocr.min_confidence", 0.0)
	v.SetDefault("perception.match.threshold", 0.5)

	// -- Target --
	v.SetDefault("target.qmp.network", "unix")
	v.SetDefault("target.qmp.address", "/tmp/vzpilot-qmp.sock")
	v.SetDefault("target.qmp.connect_timeout", "30s")
	v.SetDefault("target.display.dir", "")
	v.SetDefault("target.display.refresh_interval", "250ms")
	v.SetDefault("target.input.keys_per_second", 20.0)
	v.SetDefault("target.input.burst", 4)

	// -- Workflow --
	v.SetDefault("workflow.account.full_name", "admin")
	v.SetDefault("workflow.account.password", "secret123")
	v.SetDefault("workflow.account.submit", false)
	v.SetDefault("workflow.assets.globe", "")
	v.SetDefault("workflow.assets.globe_x", 915)
	v.SetDefault("workflow.assets.globe_y", 682)
	v.SetDefault("workflow.output_dir", "~/.vzpilot/runs")

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", "127.0.0.1:9464")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("workflow.account.password", "VZPILOT_ACCOUNT_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in every path-valued setting.
func (c *Config) expandPaths() error {
	paths := []*string{
		&c.LoggerCfg.LogFile,
		&c.TargetCfg.Display.Dir,
		&c.WorkflowCfg.Assets.Globe,
		&c.WorkflowCfg.OutputDir,
	}
	if c.TargetCfg.QMP.Network == "unix" {
		paths = append(paths, &c.TargetCfg.QMP.Address)
	}
	for _, p := range paths {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.AutomatorCfg.PollInterval <= 0 {
		return fmt.Errorf("automator.poll_interval must be a positive duration")
	}
	if c.AutomatorCfg.WaitTimeout < 0 {
		return fmt.Errorf("automator.wait_timeout cannot be negative")
	}
	if err := c.PerceptionCfg.Validate(); err != nil {
		return fmt.Errorf("perception configuration invalid: %w", err)
	}
	if err := c.TargetCfg.Validate(); err != nil {
		return fmt.Errorf("target configuration invalid: %w", err)
	}
	if c.WorkflowCfg.OutputDir == "" {
		return fmt.Errorf("workflow.output_dir is a required configuration field")
	}
	if c.MetricsCfg.Enabled && c.MetricsCfg.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}
	return nil
}

// Validate checks the perception settings.
func (p *PerceptionConfig) Validate() error {
	if p.OCR.Binary == "" {
		return fmt.Errorf("ocr.binary is required")
	}
	if p.OCR.MinConfidence < 0 || p.OCR.MinConfidence > 100 {
		return fmt.Errorf("ocr.min_confidence must be between 0 and 100")
	}
	if p.Match.Threshold <= 0 || p.Match.Threshold > 2 {
		return fmt.Errorf("match.threshold must be in (0, 2]")
	}
	return nil
}

// Validate checks the target settings.
func (t *TargetConfig) Validate() error {
	switch t.QMP.Network {
	case "unix", "tcp", "tcp4", "tcp6":
	default:
		return fmt.Errorf("qmp.network %q is not supported", t.QMP.Network)
	}
	if t.QMP.Address == "" {
		return fmt.Errorf("qmp.address is required")
	}
	if t.QMP.ConnectTimeout < 0 {
		return fmt.Errorf("qmp.connect_timeout cannot be negative")
	}
	if t.Display.RefreshInterval <= 0 {
		return fmt.Errorf("display.refresh_interval must be a positive duration")
	}
	if t.Input.KeysPerSecond <= 0 {
		return fmt.Errorf("input.keys_per_second must be positive")
	}
	if t.Input.Burst <= 0 {
		return fmt.Errorf("input.burst must be a positive integer")
	}
	return nil
}

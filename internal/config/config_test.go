// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "vzpilot", cfg.Logger().ServiceName)
	assert.Equal(t, 50*time.Millisecond, cfg.Automator().PollInterval)
	assert.Zero(t, cfg.Automator().WaitTimeout, "waits are unbounded by default")
	assert.Equal(t, "tesseract", cfg.Perception().OCR.Binary)
	assert.Equal(t, 0.5, cfg.Perception().Match.Threshold)
	assert.Equal(t, "unix", cfg.Target().QMP.Network)
	assert.Equal(t, 30*time.Second, cfg.Target().QMP.ConnectTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Target().Display.RefreshInterval)
	assert.Equal(t, 4, cfg.Target().Input.Burst)
	assert.Equal(t, "admin", cfg.Workflow().Account.FullName)
	assert.False(t, cfg.Workflow().Account.Submit)
	assert.Equal(t, 915, cfg.Workflow().Assets.GlobeX)
	assert.Equal(t, 682, cfg.Workflow().Assets.GlobeY)
	assert.False(t, cfg.Metrics().Enabled)

	assert.NoError(t, cfg.Validate(), "defaults must be valid")
}

func TestSetters(t *testing.T) {
	var cfg Interface = NewDefaultConfig()

	cfg.SetQMPAddress("tcp", "127.0.0.1:4444")
	cfg.SetOutputDir("/tmp/out")
	cfg.SetAccountSubmit(true)
	cfg.SetMetricsEnabled(true)

	assert.Equal(t, QMPConfig{Network: "tcp", Address: "127.0.0.1:4444", ConnectTimeout: 30 * time.Second}, cfg.Target().QMP)
	assert.Equal(t, "/tmp/out", cfg.Workflow().OutputDir)
	assert.True(t, cfg.Workflow().Account.Submit)
	assert.True(t, cfg.Metrics().Enabled)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"zero poll interval", func(c *Config) { c.AutomatorCfg.PollInterval = 0 }, "automator.poll_interval must be a positive duration"},
		{"negative wait timeout", func(c *Config) { c.AutomatorCfg.WaitTimeout = -time.Second }, "automator.wait_timeout cannot be negative"},
		{"missing ocr binary", func(c *Config) { c.PerceptionCfg.OCR.Binary = "" }, "ocr.binary is required"},
		{"confidence out of range", func(c *Config) { c.PerceptionCfg.OCR.MinConfidence = 101 }, "ocr.min_confidence must be between 0 and 100"},
		{"zero threshold", func(c *Config) { c.PerceptionCfg.Match.Threshold = 0 }, "match.threshold must be in (0, 2]"},
		{"threshold above max distance", func(c *Config) { c.PerceptionCfg.Match.Threshold = 2.5 }, "match.threshold must be in (0, 2]"},
		{"unknown network", func(c *Config) { c.TargetCfg.QMP.Network = "udp" }, `qmp.network "udp" is not supported`},
		{"missing address", func(c *Config) { c.TargetCfg.QMP.Address = "" }, "qmp.address is required"},
		{"negative connect timeout", func(c *Config) { c.TargetCfg.QMP.ConnectTimeout = -time.Second }, "qmp.connect_timeout cannot be negative"},
		{"zero refresh", func(c *Config) { c.TargetCfg.Display.RefreshInterval = 0 }, "display.refresh_interval must be a positive duration"},
		{"zero key rate", func(c *Config) { c.TargetCfg.Input.KeysPerSecond = 0 }, "input.keys_per_second must be positive"},
		{"zero burst", func(c *Config) { c.TargetCfg.Input.Burst = 0 }, "input.burst must be a positive integer"},
		{"missing output dir", func(c *Config) { c.WorkflowCfg.OutputDir = "" }, "workflow.output_dir is a required configuration field"},
		{"metrics without address", func(c *Config) {
			c.MetricsCfg.Enabled = true
			c.MetricsCfg.ListenAddr = ""
		}, "metrics.listen_addr is required when metrics are enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("disabled metrics ignore address", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.MetricsCfg.ListenAddr = ""
		assert.NoError(t, cfg.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
automator:
  poll_interval: 100ms
  wait_timeout: 10m
target:
  qmp:
    network: tcp
    address: "localhost:4444"
  input:
    keys_per_second: 5
workflow:
  account:
    full_name: "Jane Appleseed"
    submit: true
  output_dir: /var/lib/vzpilot
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 100*time.Millisecond, cfg.Automator().PollInterval)
		assert.Equal(t, 10*time.Minute, cfg.Automator().WaitTimeout)
		assert.Equal(t, QMPConfig{Network: "tcp", Address: "localhost:4444", ConnectTimeout: 30 * time.Second}, cfg.Target().QMP)
		assert.Equal(t, 5.0, cfg.Target().Input.KeysPerSecond)
		assert.Equal(t, "Jane Appleseed", cfg.Workflow().Account.FullName)
		assert.True(t, cfg.Workflow().Account.Submit)
		assert.Equal(t, "/var/lib/vzpilot", cfg.Workflow().OutputDir)
		// Untouched sections keep their defaults.
		assert.Equal(t, "secret123", cfg.Workflow().Account.Password)
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("target.input.burst", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "input.burst must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
workflow:
  account:
    password: "from-file"
`)))

		t.Setenv("VZPILOT_ACCOUNT_PASSWORD", "from-env")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Workflow().Account.Password)
	})

	t.Run("Home Paths Are Expanded", func(t *testing.T) {
		home, err := homedir.Dir()
		require.NoError(t, err)

		v := viper.New()
		SetDefaults(v)
		v.Set("workflow.assets.globe", "~/assets/globe.png")
		v.Set("target.qmp.address", "~/vm/qmp.sock")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".vzpilot", "runs"), cfg.Workflow().OutputDir)
		assert.Equal(t, filepath.Join(home, "assets", "globe.png"), cfg.Workflow().Assets.Globe)
		assert.Equal(t, filepath.Join(home, "vm", "qmp.sock"), cfg.Target().QMP.Address)
	})

	t.Run("TCP Address Is Not Expanded", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("target.qmp.network", "tcp")
		v.Set("target.qmp.address", "~host:4444")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "~host:4444", cfg.Target().QMP.Address)
	})
}

// -- Struct and Mapping Tests --

func TestConfigStructureMapping(t *testing.T) {
	yamlInput := `
logger:
  level: debug
  log_file: /var/log/vzpilot.log
  colors:
    info: green
perception:
  ocr:
    psm: 6
    min_confidence: 42.5
  match:
    threshold: 0.8
metrics:
  enabled: true
  listen_addr: ":9000"
`
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yamlInput)))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.Equal(t, "/var/log/vzpilot.log", cfg.Logger().LogFile)
	assert.Equal(t, "green", cfg.Logger().Colors.Info)
	assert.Equal(t, 6, cfg.Perception().OCR.PageSegMode)
	assert.Equal(t, 42.5, cfg.Perception().OCR.MinConfidence)
	assert.Equal(t, 0.8, cfg.Perception().Match.Threshold)
	assert.Equal(t, MetricsConfig{Enabled: true, ListenAddr: ":9000"}, cfg.Metrics())
}

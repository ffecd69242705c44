// Package config loads the stepcap configuration from
// .stepcap/config.yaml. Absent file or fields fall back to defaults, so a
// bare checkout records out of the box.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stepcap/stepcap/internal/browser"
	"github.com/stepcap/stepcap/internal/coordinator"
)

// DefaultPath is the config file location relative to the project
// directory.
const DefaultPath = ".stepcap/config.yaml"

// Config is the complete stepcap configuration.
type Config struct {
	Browser   browser.Config  `yaml:"browser"`
	Storage   StorageConfig   `yaml:"storage"`
	Control   ControlConfig   `yaml:"control"`
	Capture   CaptureConfig   `yaml:"capture"`
	Recording RecordingConfig `yaml:"recording"`
}

// StorageConfig locates the session database.
type StorageConfig struct {
	// Path of the SQLite file. Empty selects .stepcap/sessions.db under
	// the project directory.
	Path string `yaml:"path,omitempty"`
}

// ControlConfig configures the UI-facing WebSocket endpoint.
type ControlConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// CaptureConfig tunes the screenshot queue. Fields are pointers so an
// explicit zero in the file (no delay, no retries) is distinguishable from
// an absent key.
type CaptureConfig struct {
	SettleDelayMS *int `yaml:"settle_delay_ms,omitempty"`
	FocusDelayMS  *int `yaml:"focus_delay_ms,omitempty"`
	InitDelayMS   *int `yaml:"init_delay_ms,omitempty"`
	MaxRetries    *int `yaml:"max_retries,omitempty"`
	QueueSize     *int `yaml:"queue_size,omitempty"`
}

// RecordingConfig mirrors the persisted recording settings; values here
// seed the store on first run.
type RecordingConfig struct {
	AutoScreenshot   bool `yaml:"auto_screenshot"`
	BlurPasswords    bool `yaml:"blur_passwords"`
	CaptureScrolling bool `yaml:"capture_scrolling"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Browser: browser.Config{Headless: false},
		Control: ControlConfig{ListenAddr: "127.0.0.1:8642"},
		Capture: CaptureConfig{
			SettleDelayMS: intp(300),
			FocusDelayMS:  intp(200),
			InitDelayMS:   intp(500),
			MaxRetries:    intp(3),
			QueueSize:     intp(64),
		},
		Recording: RecordingConfig{
			AutoScreenshot:   true,
			BlurPasswords:    true,
			CaptureScrolling: true,
		},
	}
}

// Load reads the config file under projectDir, applying defaults for
// anything missing. A missing file is not an error.
func Load(projectDir string) (*Config, error) {
	cfg := Default()
	path := filepath.Join(projectDir, DefaultPath)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config file under projectDir, creating the directory as
// needed.
func (c *Config) Save(projectDir string) error {
	path := filepath.Join(projectDir, DefaultPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyDefaults backfills keys absent from a partial config file. Keys set
// to an explicit zero are kept.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Control.ListenAddr == "" {
		c.Control.ListenAddr = def.Control.ListenAddr
	}
	if c.Capture.SettleDelayMS == nil {
		c.Capture.SettleDelayMS = def.Capture.SettleDelayMS
	}
	if c.Capture.FocusDelayMS == nil {
		c.Capture.FocusDelayMS = def.Capture.FocusDelayMS
	}
	if c.Capture.InitDelayMS == nil {
		c.Capture.InitDelayMS = def.Capture.InitDelayMS
	}
	if c.Capture.MaxRetries == nil {
		c.Capture.MaxRetries = def.Capture.MaxRetries
	}
	if c.Capture.QueueSize == nil {
		c.Capture.QueueSize = def.Capture.QueueSize
	}
}

func intp(v int) *int {
	return &v
}

// StoragePath resolves the SQLite file location for projectDir.
func (c *Config) StoragePath(projectDir string) string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(projectDir, ".stepcap", "sessions.db")
}

// CoordinatorConfig converts the capture tuning into coordinator form.
func (c *Config) CoordinatorConfig() coordinator.Config {
	return coordinator.Config{
		SettleDelay: time.Duration(*c.Capture.SettleDelayMS) * time.Millisecond,
		FocusDelay:  time.Duration(*c.Capture.FocusDelayMS) * time.Millisecond,
		InitDelay:   time.Duration(*c.Capture.InitDelayMS) * time.Millisecond,
		MaxRetries:  *c.Capture.MaxRetries,
		QueueSize:   *c.Capture.QueueSize,
	}
}

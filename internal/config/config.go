package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skobkin/picodbg/internal/transport"
)

const (
	DefaultVendorID     = "2E8A"
	DefaultBaudRate     = 9600
	DefaultRestartDelay = "2s"
	DefaultLogLevel     = "info"
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// SerialConfig describes the debug link to the device.
type SerialConfig struct {
	// VendorID is the USB vendor ID in hex used to filter ports offered for authorization.
	VendorID     string `json:"vendor_id"`
	BaudRate     int    `json:"baud_rate"`
	RestartDelay string `json:"restart_delay"`
	// AutoSelect picks the only matching port without prompting.
	AutoSelect bool `json:"auto_select"`
}

// NotificationConfig stores desktop notification preferences.
type NotificationConfig struct {
	Enabled bool `json:"enabled"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Serial        SerialConfig       `json:"serial"`
	Logging       LoggingConfig      `json:"logging"`
	Notifications NotificationConfig `json:"notifications"`
}

func Default() AppConfig {
	return AppConfig{
		Serial: SerialConfig{
			VendorID:     DefaultVendorID,
			BaudRate:     DefaultBaudRate,
			RestartDelay: DefaultRestartDelay,
			AutoSelect:   false,
		},
		Logging: LoggingConfig{
			Level:     DefaultLogLevel,
			LogToFile: false,
		},
		Notifications: NotificationConfig{
			Enabled: true,
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	c.Serial.VendorID = strings.TrimSpace(c.Serial.VendorID)
	if c.Serial.VendorID == "" {
		c.Serial.VendorID = DefaultVendorID
	}
	if c.Serial.BaudRate <= 0 {
		c.Serial.BaudRate = DefaultBaudRate
	}
	c.Serial.RestartDelay = strings.TrimSpace(c.Serial.RestartDelay)
	if c.Serial.RestartDelay == "" {
		c.Serial.RestartDelay = DefaultRestartDelay
	}
	c.Logging.Level = normalizeLogLevel(c.Logging.Level)
}

func normalizeLogLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return "debug"
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	default:
		return DefaultLogLevel
	}
}

func (c AppConfig) Validate() error {
	if _, err := c.Serial.ParsedVendorID(); err != nil {
		return err
	}
	if c.Serial.BaudRate <= 0 {
		return errors.New("serial baud rate must be positive")
	}
	if _, err := c.Serial.ParsedRestartDelay(); err != nil {
		return err
	}

	return nil
}

// ParsedVendorID returns the vendor filter as a number.
func (s SerialConfig) ParsedVendorID() (uint16, error) {
	vid, err := transport.ParseVendorID(s.VendorID)
	if err != nil {
		return 0, fmt.Errorf("serial vendor id: %w", err)
	}

	return vid, nil
}

// ParsedRestartDelay returns the pause between a restart request and the next start.
func (s SerialConfig) ParsedRestartDelay() (time.Duration, error) {
	d, err := time.ParseDuration(s.RestartDelay)
	if err != nil {
		return 0, fmt.Errorf("serial restart delay: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("serial restart delay must be positive, got %s", d)
	}

	return d, nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// MaxScanLatency bounds the simulated scan duration so that shutdown
// cancellation always completes in bounded time.
const MaxScanLatency = 5 * time.Second

// Channel describes one supported channel of the band.
type Channel struct {
	HWValue    int  `yaml:"hw_value" json:"hw_value"`
	CenterFreq int  `yaml:"center_freq" json:"center_freq"` // MHz
	NoIBSS     bool `yaml:"no_ibss" json:"no_ibss"`
}

// Bitrate is a legacy rate in units of 100 kbps.
type Bitrate struct {
	Bitrate int    `yaml:"bitrate" json:"bitrate"`
	HWValue uint16 `yaml:"hw_value" json:"hw_value"`
}

// Band is the single frequency band the device advertises.
type Band struct {
	Name        string    `yaml:"name" json:"name" default:"2.4GHz"`
	Channels    []Channel `yaml:"channels" json:"channels"`
	Bitrates    []Bitrate `yaml:"bitrates" json:"bitrates"`
	HTSupported bool      `yaml:"ht_supported" json:"ht_supported" default:"true"`
	SGI20       bool      `yaml:"sgi_20" json:"sgi_20" default:"true"`
	SGI40       bool      `yaml:"sgi_40" json:"sgi_40" default:"true"`
}

// DBusConfig controls how `vwifi serve` exports the device.
type DBusConfig struct {
	BusName    string `yaml:"bus_name" json:"bus_name" default:"org.vwifi.Device"`
	ObjectPath string `yaml:"object_path" json:"object_path" default:"/org/vwifi/Device"`
}

// Config holds application configuration
type Config struct {
	LogLevel         logrus.Level  `yaml:"log_level" json:"log_level" default:"4"`
	PhyName          string        `yaml:"phy_name" json:"phy_name" default:"vwifi_phy"`
	InterfacePattern string        `yaml:"interface_pattern" json:"interface_pattern" default:"vwifi%d"`
	InterfaceModes   []string      `yaml:"interface_modes" json:"interface_modes"`
	MaxInterfaces    int           `yaml:"max_interfaces" json:"max_interfaces" default:"8"`
	MaxScanSSIDs     int           `yaml:"max_scan_ssids" json:"max_scan_ssids" default:"69"`
	ScanLatency      time.Duration `yaml:"scan_latency" json:"scan_latency" default:"100ms"`
	EventBuffer      int           `yaml:"event_buffer" json:"event_buffer" default:"64"`
	JournalSize      uint32        `yaml:"journal_size" json:"journal_size" default:"256"`
	TapSize          int           `yaml:"tap_size" json:"tap_size" default:"4096"`
	MetricsAddr      string        `yaml:"metrics_addr" json:"metrics_addr" default:"127.0.0.1:9110"`
	Band             Band          `yaml:"band" json:"band"`
	DBus             DBusConfig    `yaml:"dbus" json:"dbus"`
}

// DefaultChannels returns channels 6, 1 and 11. Channel 6 comes first
// because announcements are always published on the first channel.
func DefaultChannels() []Channel {
	return []Channel{
		{HWValue: 6, CenterFreq: 2437, NoIBSS: true},
		{HWValue: 1, CenterFreq: 2412, NoIBSS: true},
		{HWValue: 11, CenterFreq: 2462, NoIBSS: true},
	}
}

// DefaultBitrates returns the mandatory 2.4GHz rates followed by the 40MHz set.
func DefaultBitrates() []Bitrate {
	return []Bitrate{
		{Bitrate: 10, HWValue: 0x1},
		{Bitrate: 20, HWValue: 0x2},
		{Bitrate: 55, HWValue: 0x4},
		{Bitrate: 110, HWValue: 0x8},
		{Bitrate: 30, HWValue: 0x10},
		{Bitrate: 60, HWValue: 0x20},
		{Bitrate: 150, HWValue: 0x40},
		{Bitrate: 300, HWValue: 0x80},
	}
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.InterfaceModes = []string{"station", "ap"}
	cfg.Band.Channels = DefaultChannels()
	cfg.Band.Bitrates = DefaultBitrates()
	return cfg
}

// Load reads a YAML file on top of DefaultConfig. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the static capability tables and timings.
func (c *Config) Validate() error {
	if len(c.Band.Channels) == 0 {
		return fmt.Errorf("band %q has no channels", c.Band.Name)
	}
	if len(c.Band.Bitrates) == 0 {
		return fmt.Errorf("band %q has no bitrates", c.Band.Name)
	}
	if c.MaxInterfaces < 1 {
		return fmt.Errorf("max_interfaces must be >= 1, got %d", c.MaxInterfaces)
	}
	if c.MaxScanSSIDs < 1 {
		return fmt.Errorf("max_scan_ssids must be >= 1, got %d", c.MaxScanSSIDs)
	}
	if c.ScanLatency < 0 || c.ScanLatency > MaxScanLatency {
		return fmt.Errorf("scan_latency must be within [0, %s], got %s", MaxScanLatency, c.ScanLatency)
	}
	if !strings.Contains(c.InterfacePattern, "%d") {
		return fmt.Errorf("interface_pattern %q must contain %%d", c.InterfacePattern)
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be >= 1, got %d", c.EventBuffer)
	}
	for _, mode := range c.InterfaceModes {
		if mode != "station" && mode != "ap" {
			return fmt.Errorf("unsupported interface mode %q", mode)
		}
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

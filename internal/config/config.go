// If you are AI: This file defines the configuration structure for pnrelay.
// It uses strict YAML decoding and explicit defaults.

package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the complete relay configuration.
// All fields must have explicit defaults or be required.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Streams StreamsConfig `yaml:"streams"`
	Limits  LimitsConfig  `yaml:"limits"`
}

// ServerConfig defines the relay's listen ports.
type ServerConfig struct {
	DetectorPort  int `yaml:"detector_port"`  // Detector stream (50 kHz float32 I/Q)
	DisplayPort   int `yaml:"display_port"`   // Display stream (12 kHz float32 I/Q)
	ControlPort   int `yaml:"control_port"`   // Control bridge (text commands)
	DiscoveryPort int `yaml:"discovery_port"` // Discovery coordinator (TCP registry)
	HTTPPort      int `yaml:"http_port"`      // Health, metrics, API, WebSocket taps
}

// StreamsConfig defines stream parameters.
type StreamsConfig struct {
	DetectorSampleRate int `yaml:"detector_sample_rate"` // Hz
	DisplaySampleRate  int `yaml:"display_sample_rate"`  // Hz
	BufferSeconds      int `yaml:"buffer_seconds"`       // Per-consumer ring depth
}

// LimitsConfig defines the hard caps.
type LimitsConfig struct {
	MaxConsumers int `yaml:"max_consumers"` // Per stream
	MaxEdges     int `yaml:"max_edges"`     // Discovery sessions
	MaxServices  int `yaml:"max_services"`  // Registry entries, all edges
}

// Load reads configuration from a YAML file.
// Returns an error if the file cannot be read or decoded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields

	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Apply defaults
	cfg.SetDefaults()

	return &cfg, nil
}

// Default returns the built-in configuration, used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies explicit default values to unset fields.
func (c *Config) SetDefaults() {
	if c.Server.DetectorPort == 0 {
		c.Server.DetectorPort = 4410
	}
	if c.Server.DisplayPort == 0 {
		c.Server.DisplayPort = 4411
	}
	if c.Server.ControlPort == 0 {
		c.Server.ControlPort = 4409
	}
	if c.Server.DiscoveryPort == 0 {
		c.Server.DiscoveryPort = 5401
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Streams.DetectorSampleRate == 0 {
		c.Streams.DetectorSampleRate = 50000
	}
	if c.Streams.DisplaySampleRate == 0 {
		c.Streams.DisplaySampleRate = 12000
	}
	if c.Streams.BufferSeconds == 0 {
		c.Streams.BufferSeconds = 30
	}
	if c.Limits.MaxConsumers == 0 {
		c.Limits.MaxConsumers = 100
	}
	if c.Limits.MaxEdges == 0 {
		c.Limits.MaxEdges = 32
	}
	if c.Limits.MaxServices == 0 {
		c.Limits.MaxServices = 128
	}
}

// DetectorRingBytes returns the per-consumer ring size for the detector
// stream.
func (c *Config) DetectorRingBytes() int {
	return c.Streams.DetectorSampleRate * c.Streams.BufferSeconds
}

// DisplayRingBytes returns the per-consumer ring size for the display
// stream.
func (c *Config) DisplayRingBytes() int {
	return c.Streams.DisplaySampleRate * c.Streams.BufferSeconds
}

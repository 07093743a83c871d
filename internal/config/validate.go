// If you are AI: This file validates configuration values and returns descriptive errors.

package config

import (
	"fmt"
)

// Validate checks that all configuration values are within acceptable ranges.
// Returns an error describing the first validation failure found.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Streams.Validate(); err != nil {
		return fmt.Errorf("streams config: %w", err)
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits config: %w", err)
	}
	return nil
}

// Validate checks the listen ports.
func (s *ServerConfig) Validate() error {
	ports := map[string]int{
		"detector_port":  s.DetectorPort,
		"display_port":   s.DisplayPort,
		"control_port":   s.ControlPort,
		"discovery_port": s.DiscoveryPort,
		"http_port":      s.HTTPPort,
	}

	seen := make(map[int]string, len(ports))
	for name, port := range ports {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
		}
		if other, dup := seen[port]; dup {
			return fmt.Errorf("%s and %s must be different, both are %d", other, name, port)
		}
		seen[port] = name
	}
	return nil
}

// Validate checks stream parameters.
func (s *StreamsConfig) Validate() error {
	if s.DetectorSampleRate <= 0 {
		return fmt.Errorf("detector_sample_rate must be positive, got %d", s.DetectorSampleRate)
	}
	if s.DisplaySampleRate <= 0 {
		return fmt.Errorf("display_sample_rate must be positive, got %d", s.DisplaySampleRate)
	}
	if s.BufferSeconds <= 0 {
		return fmt.Errorf("buffer_seconds must be positive, got %d", s.BufferSeconds)
	}
	return nil
}

// Validate checks the hard caps.
func (l *LimitsConfig) Validate() error {
	if l.MaxConsumers <= 0 {
		return fmt.Errorf("max_consumers must be positive, got %d", l.MaxConsumers)
	}
	if l.MaxEdges <= 0 {
		return fmt.Errorf("max_edges must be positive, got %d", l.MaxEdges)
	}
	if l.MaxServices <= 0 {
		return fmt.Errorf("max_services must be positive, got %d", l.MaxServices)
	}
	return nil
}

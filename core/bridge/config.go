package bridge

import (
	"fmt"

	"github.com/evbridge/voc2mqtt/core/instrument"
)

// Config holds the bridge-level settings consumed by entities and the
// runtime.
type Config struct {
	// DiscoveryPrefix is the automation platform's discovery namespace.
	DiscoveryPrefix string `json:"discovery_prefix"`
	// TopicPrefix namespaces all state/availability/command topics.
	TopicPrefix string `json:"topic_prefix"`
	// LocationPrefix is the side channel position fixes publish under.
	LocationPrefix string `json:"location_prefix"`
	// LocationKey enables end-to-end encryption of location records when
	// non-empty.
	LocationKey string `json:"location_key"`
	// PollIntervalSeconds is the vehicle poll cadence.
	PollIntervalSeconds int `json:"poll_interval_seconds"`

	Instrument instrument.Config `json:"instrument"`
}

// SetDefaults fills the platform conventions.
func (c *Config) SetDefaults() {
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = "homeassistant"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "volvo"
	}
	if c.LocationPrefix == "" {
		c.LocationPrefix = "owntracks"
	}
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = 300
	}
	c.Instrument.SetDefaults()
}

// Validate rejects configurations the runtime cannot operate with.
func (c *Config) Validate() error {
	if c.PollIntervalSeconds < 0 {
		return fmt.Errorf("poll_interval_seconds must be positive, got %d", c.PollIntervalSeconds)
	}
	return nil
}

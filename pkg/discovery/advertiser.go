package discovery

import (
	"context"
	"time"
)

// Advertiser announces a host on the network.
type Advertiser interface {
	// Advertise starts announcing the host, replacing any earlier
	// announcement.
	Advertise(ctx context.Context, info *HostInfo) error

	// Update replaces the TXT records of the current announcement.
	Update(info *HostInfo) error

	// Stop withdraws the announcement.
	Stop() error
}

// Browser finds hosts on the network.
type Browser interface {
	// Browse streams hosts until ctx is cancelled. Each instance is
	// reported once, when first seen.
	Browse(ctx context.Context) (<-chan *HostService, error)
}

// AdvertiserConfig configures the mDNS advertiser.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string `yaml:"interface"`

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration `yaml:"ttl"`
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: DefaultTTL}
}

// BrowserConfig configures the mDNS browser.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface.
	Interface string
}

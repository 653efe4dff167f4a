package discovery

import (
	"errors"
	"time"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service type of a device host.
	ServiceType = "_devhost._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63

	// DefaultTTL is the record TTL used when none is configured.
	DefaultTTL = 120 * time.Second
)

// TXT record keys.
const (
	TXTKeyHostID  = "host"
	TXTKeyName    = "name"
	TXTKeyRoot    = "root"
	TXTKeyNetwork = "net"
)

// Discovery errors.
var (
	ErrMissingRequired     = errors.New("missing required TXT field")
	ErrInvalidPort         = errors.New("invalid port")
	ErrInstanceNameTooLong = errors.New("instance name too long")
	ErrNotAdvertising      = errors.New("not advertising")
)

// HostInfo is what a host announces.
type HostInfo struct {
	// HostID is the host instance ID (required).
	HostID string

	// Name is the configured host name.
	Name string

	// RootName is the name of the root device handle 1 is opened on.
	RootName string

	// Network is the RPC listener network, normally "tcp".
	Network string

	// Port is the RPC listener port (required).
	Port uint16
}

// InstanceName returns the DNS-SD instance name for the host.
func (h *HostInfo) InstanceName() string {
	name := "devhost-" + h.HostID
	if h.Name != "" {
		name = h.Name + "-" + h.HostID
	}
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// HostService is a host found by browsing.
type HostService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	HostID   string
	Name     string
	RootName string
	Network  string
}

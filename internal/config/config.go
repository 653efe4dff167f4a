package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devhost-project/devhost-go/pkg/coordinator"
	"github.com/devhost-project/devhost-go/pkg/discovery"
)

// Coordinator kinds.
const (
	CoordinatorNone   = "none"
	CoordinatorStream = "stream"
	CoordinatorMQTT   = "mqtt"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DEVHOST_"

// Config is the root configuration of the devhost daemon.
type Config struct {
	Host        HostConfig        `yaml:"host"`
	RPC         RPCConfig         `yaml:"rpc"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Resource    ResourceConfig    `yaml:"resource"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// HostConfig configures the device tree.
type HostConfig struct {
	// ID addresses the host in coordinator topics and discovery. Empty
	// picks a random UUID on every start.
	ID string `yaml:"id"`

	Name         string `yaml:"name"`
	RemovePolicy string `yaml:"remove_policy"`
	MaxDevices   int    `yaml:"max_devices"`
	LockDebug    bool   `yaml:"lock_debug"`

	// FirmwareDir serves driver firmware requests when set.
	FirmwareDir string `yaml:"firmware_dir"`

	// ShutdownTimeout bounds how long shutdown waits for open references.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RPCConfig configures the remote I/O listener.
type RPCConfig struct {
	Network        string `yaml:"network"`
	Address        string `yaml:"address"`
	MaxMessageSize uint32 `yaml:"max_message_size"`
	MaxHandles     int    `yaml:"max_handles"`
}

// CoordinatorConfig selects and configures the coordinator link.
type CoordinatorConfig struct {
	// Kind is one of none, stream or mqtt.
	Kind string `yaml:"kind"`

	// Network and Address are used by the stream kind.
	Network string `yaml:"network"`
	Address string `yaml:"address"`

	MQTT       coordinator.MQTTConfig    `yaml:"mqtt"`
	Backoff    coordinator.BackoffConfig `yaml:"backoff"`
	MaxPending int                       `yaml:"max_pending"`
}

// ResourceConfig locates the bootstrap secret for resource grants.
type ResourceConfig struct {
	// Secret is hex encoded. It is normally supplied through
	// DEVHOST_RESOURCE_SECRET rather than the file.
	Secret string `yaml:"secret"`

	// SecretFile is read when Secret is empty.
	SecretFile string `yaml:"secret_file"`
}

// DiscoveryConfig configures mDNS advertisement.
type DiscoveryConfig struct {
	Enabled    bool                       `yaml:"enabled"`
	Advertiser discovery.AdvertiserConfig `yaml:"advertiser"`

	// Port is announced when the RPC listener is not tcp (0 = listener port).
	Port uint16 `yaml:"port"`
}

// LoggingConfig configures operational and protocol logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`

	// ProtocolFile receives CBOR protocol events when set.
	ProtocolFile string `yaml:"protocol_file"`

	// ProtocolSlog mirrors protocol events into the operational log.
	ProtocolSlog bool `yaml:"protocol_slog"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Host: HostConfig{
			Name:            "devhost",
			RemovePolicy:    "cascade",
			ShutdownTimeout: 10 * time.Second,
		},
		RPC: RPCConfig{
			Network:    "unix",
			Address:    "/tmp/devhost.sock",
			MaxHandles: 1024,
		},
		Coordinator: CoordinatorConfig{
			Kind:    CoordinatorNone,
			Network: "tcp",
			MQTT: coordinator.MQTTConfig{
				TopicPrefix: "devhost",
			},
		},
		Discovery: DiscoveryConfig{
			Advertiser: discovery.DefaultAdvertiserConfig(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies DEVHOST_SECTION_KEY variables.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"HOST_ID":              &cfg.Host.ID,
		"HOST_NAME":            &cfg.Host.Name,
		"HOST_REMOVE_POLICY":   &cfg.Host.RemovePolicy,
		"RPC_NETWORK":          &cfg.RPC.Network,
		"RPC_ADDRESS":          &cfg.RPC.Address,
		"COORDINATOR_KIND":     &cfg.Coordinator.Kind,
		"COORDINATOR_ADDRESS":  &cfg.Coordinator.Address,
		"MQTT_BROKER":          &cfg.Coordinator.MQTT.Broker,
		"MQTT_USERNAME":        &cfg.Coordinator.MQTT.Username,
		"MQTT_PASSWORD":        &cfg.Coordinator.MQTT.Password,
		"RESOURCE_SECRET":      &cfg.Resource.Secret,
		"RESOURCE_SECRET_FILE": &cfg.Resource.SecretFile,
		"DISCOVERY_INTERFACE":  &cfg.Discovery.Advertiser.Interface,
		"LOG_LEVEL":            &cfg.Logging.Level,
		"LOG_FORMAT":           &cfg.Logging.Format,
		"LOG_PROTOCOL_FILE":    &cfg.Logging.ProtocolFile,
	}
	for key, dst := range str {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	boolean := map[string]*bool{
		"HOST_LOCK_DEBUG":   &cfg.Host.LockDebug,
		"DISCOVERY_ENABLED": &cfg.Discovery.Enabled,
	}
	for key, dst := range boolean {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}

	if v := os.Getenv(EnvPrefix + "HOST_MAX_DEVICES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sHOST_MAX_DEVICES: %w", EnvPrefix, err)
		}
		cfg.Host.MaxDevices = n
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if strings.ContainsAny(c.Host.ID, "/+# \t") {
		errs = append(errs, "host.id must not contain '/', '+', '#' or whitespace")
	}
	if c.Host.Name == "" {
		errs = append(errs, "host.name is required")
	}
	switch c.Host.RemovePolicy {
	case "", "cascade", "reject":
	default:
		errs = append(errs, "host.remove_policy must be cascade or reject")
	}
	if c.Host.MaxDevices < 0 {
		errs = append(errs, "host.max_devices must not be negative")
	}

	switch c.RPC.Network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		errs = append(errs, "rpc.network must be tcp or unix")
	}
	if c.RPC.Address == "" {
		errs = append(errs, "rpc.address is required")
	}
	if c.RPC.MaxHandles < 0 {
		errs = append(errs, "rpc.max_handles must not be negative")
	}

	switch c.Coordinator.Kind {
	case "", CoordinatorNone:
	case CoordinatorStream:
		if c.Coordinator.Address == "" {
			errs = append(errs, "coordinator.address is required for the stream kind")
		}
	case CoordinatorMQTT:
		if c.Coordinator.MQTT.Broker == "" {
			errs = append(errs, "coordinator.mqtt.broker is required for the mqtt kind")
		}
	default:
		errs = append(errs, "coordinator.kind must be none, stream or mqtt")
	}

	if c.Resource.Secret != "" {
		if _, err := hex.DecodeString(c.Resource.Secret); err != nil {
			errs = append(errs, "resource.secret must be hex encoded")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ErrNoSecret indicates neither a secret nor a secret file is configured.
var ErrNoSecret = errors.New("no resource secret configured")

// ResourceSecret returns the bootstrap secret for resource grants.
func (c *Config) ResourceSecret() ([]byte, error) {
	if c.Resource.Secret != "" {
		return hex.DecodeString(c.Resource.Secret)
	}
	if c.Resource.SecretFile != "" {
		data, err := os.ReadFile(c.Resource.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("reading secret file: %w", err)
		}
		return hex.DecodeString(strings.TrimSpace(string(data)))
	}
	return nil, ErrNoSecret
}

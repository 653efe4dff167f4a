package devhost

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/devhost-project/devhost-go/pkg/coordinator"
	"github.com/devhost-project/devhost-go/pkg/log"
	"github.com/devhost-project/devhost-go/pkg/resource"
	"github.com/devhost-project/devhost-go/pkg/wire"
)

// Coordinator receives topology notifications. Implementations must not
// block: they are called with the tree lock held.
type Coordinator interface {
	NotifyAdd(msg wire.AddDevice) error
	NotifyRemove(msg wire.RemoveDevice) error
	RequestBind(msg wire.BindDevice) error
}

// RemovePolicy decides what Remove does with a device that has children.
type RemovePolicy uint8

const (
	// RemoveCascade removes children depth-first before the device.
	RemoveCascade RemovePolicy = iota

	// RemoveReject fails with ErrBusy while children exist.
	RemoveReject
)

// String returns the policy name.
func (p RemovePolicy) String() string {
	switch p {
	case RemoveCascade:
		return "cascade"
	case RemoveReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseRemovePolicy parses "cascade" or "reject".
func ParseRemovePolicy(s string) (RemovePolicy, error) {
	switch s {
	case "", "cascade":
		return RemoveCascade, nil
	case "reject":
		return RemoveReject, nil
	default:
		return 0, fmt.Errorf("%w: remove policy %q", ErrInvalidArgs, s)
	}
}

// HostConfig configures a Host.
type HostConfig struct {
	// ID is the host instance ID (default: a random UUID).
	ID string

	// Name identifies the host to the coordinator.
	Name string

	// Registry resolves driver library names (default: empty registry).
	Registry *Registry

	// Coordinator receives topology notifications (default: coordinator.Nop).
	Coordinator Coordinator

	// Firmware loads firmware blobs (default: unsupported).
	Firmware FirmwareLoader

	// RootResource is the bootstrap resource drivers derive device grants
	// from (optional; without it devices carry no grants).
	RootResource *resource.Root

	// RemovePolicy applies to devices with children (default: cascade).
	RemovePolicy RemovePolicy

	// MaxDevices bounds the number of tree-resident devices (0 = unlimited).
	MaxDevices int

	// LockDebug turns re-entrant tree lock acquisition into a panic.
	LockDebug bool

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives device state change events (optional).
	ProtocolLogger log.Logger
}

// Host owns the device tree.
type Host struct {
	id       string
	name     string
	lock     *TreeLock
	registry *Registry
	coord    Coordinator
	firmware FirmwareLoader
	rootRes  *resource.Root
	policy   RemovePolicy
	maxDevs  int

	logger         *slog.Logger
	protocolLogger log.Logger

	// Arena of every device not yet destroyed.
	arenaMu sync.RWMutex
	devices map[DeviceID]*Device
	root    *Device
	nextID  atomic.Uint64

	// Tree-resident device count, guarded by the tree lock.
	resident int

	shuttingDown atomic.Bool
}

// NewHost creates a host with an empty tree.
func NewHost(cfg HostConfig) *Host {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Coordinator == nil {
		cfg.Coordinator = coordinator.Nop{}
	}
	if cfg.Firmware == nil {
		cfg.Firmware = NoFirmware{}
	}
	if cfg.Name == "" {
		cfg.Name = "devhost"
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	return &Host{
		id:             cfg.ID,
		name:           cfg.Name,
		lock:           NewTreeLock(cfg.LockDebug),
		registry:       cfg.Registry,
		coord:          cfg.Coordinator,
		firmware:       cfg.Firmware,
		rootRes:        cfg.RootResource,
		policy:         cfg.RemovePolicy,
		maxDevs:        cfg.MaxDevices,
		logger:         cfg.Logger,
		protocolLogger: cfg.ProtocolLogger,
		devices:        make(map[DeviceID]*Device),
	}
}

// ID returns the host instance ID.
func (h *Host) ID() string { return h.id }

// Name returns the configured host name.
func (h *Host) Name() string { return h.name }

// Registry returns the host's driver registry.
func (h *Host) Registry() *Registry { return h.registry }

// RootResource returns the bootstrap resource, or nil when grants are
// disabled.
func (h *Host) RootResource() *resource.Root { return h.rootRes }

// Lock returns the tree lock.
func (h *Host) Lock() *TreeLock { return h.lock }

// Root returns the root device, or nil before AddRoot.
func (h *Host) Root() *Device {
	h.arenaMu.RLock()
	defer h.arenaMu.RUnlock()
	return h.root
}

// Device returns a live device by ID.
func (h *Host) Device(id DeviceID) (*Device, error) {
	h.arenaMu.RLock()
	defer h.arenaMu.RUnlock()
	d, ok := h.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: device %d", ErrNotFound, id)
	}
	return d, nil
}

// Len returns the number of devices that have not been destroyed.
func (h *Host) Len() int {
	h.arenaMu.RLock()
	defer h.arenaMu.RUnlock()
	return len(h.devices)
}

// Do runs fn under the tree lock.
func (h *Host) Do(ctx context.Context, fn func(tx *Tx) error) error {
	lctx, err := h.lock.Lock(ctx)
	if err != nil {
		h.debugLog("tree lock re-entered", "error", err)
		return err
	}
	defer h.lock.Unlock()
	return fn(&Tx{host: h, ctx: lctx})
}

// destroy tears down a device whose last reference was just dropped.
func (h *Host) destroy(d *Device) {
	if d.parent != NoDevice || len(d.children) > 0 {
		invariant("destroy", "device %d (%s) destroyed while linked (parent=%d children=%d)",
			d.id, d.name, d.parent, len(d.children))
	}
	old := d.State()
	d.setState(StateDestroyed)
	d.setFlags(FlagDead)

	d.ops.Release()
	d.owner.release()

	h.arenaMu.Lock()
	delete(h.devices, d.id)
	if h.root == d {
		h.root = nil
	}
	h.arenaMu.Unlock()

	close(d.done)
	h.debugLog("device destroyed", "deviceID", d.id, "name", d.name)
	h.logState(d, old, StateDestroyed, "")
}

func (h *Host) debugLog(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, args...)
	}
}

func (h *Host) warnLog(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, args...)
	}
}

func (h *Host) logState(d *Device, old, new State, reason string) {
	if h.protocolLogger == nil {
		return
	}
	h.protocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerHost,
		Category:  log.CategoryState,
		DeviceID:  uint64(d.id),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityDevice,
			OldState: old.String(),
			NewState: new.String(),
			Reason:   reason,
		},
	})
}
